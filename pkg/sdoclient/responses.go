package sdoclient

import "encoding/binary"

// inboundFrame is a read-only view over an 8-byte received CAN frame's
// SDO payload, with the field accessors the machine needs. Grounded on
// pkg/sdo/common.go's SDOResponse accessors, narrowed to the
// expedited/segmented subset this core supports.
type inboundFrame struct {
	dlc  uint8
	data [8]byte
}

func (r inboundFrame) commandSpecifier() uint8 {
	return r.data[0] >> 5
}

func (r inboundFrame) isAbort() bool {
	return r.commandSpecifier() == scsAbort
}

func (r inboundFrame) abortCode() AbortCode {
	return AbortCode(binary.LittleEndian.Uint32(r.data[4:8]))
}

func (r inboundFrame) index() uint16 {
	return binary.LittleEndian.Uint16(r.data[1:3])
}

func (r inboundFrame) subindex() uint8 {
	return r.data[3]
}

// toggle returns the toggle bit (bit4), already shifted so it compares
// directly against the client's own toggle state (0x00 or 0x10).
func (r inboundFrame) toggle() uint8 {
	return r.data[0] & 0x10
}

// isExpedited reads the init response's expedited bit (bit1).
func (r inboundFrame) isExpedited() bool {
	return r.data[0]&0x02 != 0
}

// isSizeIndicated reads the init response's size-indicated bit (bit0).
func (r inboundFrame) isSizeIndicated() bool {
	return r.data[0]&0x01 != 0
}

// expeditedSize reads the init response's 2-bit "n" field (bits 3-2) and
// returns 4-n, the number of meaningful payload bytes.
func (r inboundFrame) expeditedSize() int {
	n := (r.data[0] >> 2) & 0x03
	return 4 - int(n)
}

// indicatedSize reads the 32-bit declared total size carried at data
// offset 4 of a segmented init response.
func (r inboundFrame) indicatedSize() uint32 {
	return binary.LittleEndian.Uint32(r.data[4:8])
}

// isEndSegment reads the upload segment response's "c" bit (bit0).
func (r inboundFrame) isEndSegment() bool {
	return r.data[0]&0x01 != 0
}

// segmentSize reads an upload segment response's 3-bit "n" field (bits
// 3-1) and returns 7-n, the number of meaningful payload bytes at data
// offset 1.
func (r inboundFrame) segmentSize() int {
	n := (r.data[0] >> 1) & 0x07
	return 7 - int(n)
}

// segmentPayload returns the up to 7 payload bytes of a segment frame.
func (r inboundFrame) segmentPayload(n int) []byte {
	return r.data[1 : 1+n]
}

// expeditedPayload returns the up to 4 payload bytes of an expedited
// upload init response, starting at data offset 4.
func (r inboundFrame) expeditedPayload(n int) []byte {
	return r.data[4 : 4+n]
}
