package sdoclient

import "encoding/binary"

// requestInitDownload builds the init frame for a Download transaction.
// Grounded on pkg/sdo/client.go's downloadInitiate: command byte is
// 0x20 (DL_INIT_REQ) with size-indicated always set, plus the expedited
// bit and the 2-bit "n" (unused trailing bytes, only meaningful with
// size-indicated+expedited) when the payload fits inline.
func requestInitDownload(nodeId uint8, index uint16, subindex uint8, payload []byte, expedited bool, quirks Quirks) frame {
	f := newFrame(clientBaseId+uint32(nodeId), index, subindex)
	cmd := ccsDownloadInitiate<<5 | 0x01 // size-indicated
	if expedited {
		n := uint8(4 - len(payload))
		cmd |= 0x02 | (n << 2)
		copy(f.data[4:], payload)
		f.dlc = uint8(4 + len(payload))
	} else {
		binary.LittleEndian.PutUint32(f.data[4:], uint32(len(payload)))
		f.dlc = 8
	}
	f.data[0] = cmd
	f.applyQuirks(quirks)
	return f
}

// requestInitUpload builds the init frame for an Upload transaction.
func requestInitUpload(nodeId uint8, index uint16, subindex uint8, quirks Quirks) frame {
	f := newFrame(clientBaseId+uint32(nodeId), index, subindex)
	f.data[0] = ccsUploadInitiate << 5
	f.dlc = 4
	f.applyQuirks(quirks)
	return f
}

// requestDownloadSegment builds the next download segment request. payload
// (up to 7 bytes) is placed at data offset 1; last marks the segment that
// exhausts the buffer.
//
// Unlike the teacher's downloadSegment, which packs the unused-byte "n"
// field into the command byte, this follows the original C source's
// sdo_async__request_dl_segment: only the toggle and end-of-transfer bits
// are set, and the frame's DLC conveys the segment size.
func requestDownloadSegment(nodeId uint8, toggle uint8, payload []byte, last bool, quirks Quirks) frame {
	f := frame{id: clientBaseId + uint32(nodeId)}
	cmd := ccsDownloadSegment<<5 | toggle
	if last {
		cmd |= 0x01
	}
	f.data[0] = cmd
	copy(f.data[1:], payload)
	f.dlc = uint8(1 + len(payload))
	f.applyQuirks(quirks)
	return f
}

// requestUploadSegment builds the next upload segment request.
func requestUploadSegment(nodeId uint8, toggle uint8, quirks Quirks) frame {
	f := frame{id: clientBaseId + uint32(nodeId)}
	f.data[0] = ccsUploadSegment<<5 | toggle
	f.dlc = 1
	f.applyQuirks(quirks)
	return f
}

// requestAbort builds the outbound Abort frame for a local abort.
func requestAbort(nodeId uint8, index uint16, subindex uint8, code AbortCode, quirks Quirks) frame {
	f := newFrame(clientBaseId+uint32(nodeId), index, subindex)
	f.data[0] = ccsAbort << 5
	binary.LittleEndian.PutUint32(f.data[4:], uint32(code))
	f.dlc = 8
	f.applyQuirks(quirks)
	return f
}

// frame is the outbound wire representation the codec glue builds before
// handing it to the send endpoint.
type frame struct {
	id   uint32
	dlc  uint8
	data [8]byte
}

func newFrame(id uint32, index uint16, subindex uint8) frame {
	var f frame
	f.id = id
	binary.LittleEndian.PutUint16(f.data[1:3], index)
	f.data[3] = subindex
	return f
}

// applyQuirks forces DLC=8 when NeedsFullFrame is set, per §4.3.
func (f *frame) applyQuirks(quirks Quirks) {
	if quirks.has(NeedsFullFrame) {
		f.dlc = 8
	}
}
