package sdoclient

import log "github.com/sirupsen/logrus"

// sendInitDownload emits the download initiate frame, expedited if the
// whole payload fits in 4 bytes, segmented otherwise. Grounded on
// sdo_async__send_init_dl.
func (t *Transaction) sendInitDownload() {
	payload := t.buf.bytes()
	expedited := len(payload) <= 4
	f := requestInitDownload(t.nodeId, t.index, t.subindex, payload, expedited, t.quirks)

	if expedited {
		log.Debugf("[SDOCLIENT][TX][x%x] DOWNLOAD EXPEDITED | x%x:x%x %v", t.nodeId, t.index, t.subindex, payload)
	} else {
		log.Debugf("[SDOCLIENT][TX][x%x] DOWNLOAD INITIATE SEGMENTED | x%x:x%x size=%d", t.nodeId, t.index, t.subindex, len(payload))
	}
	t.send(f)
}

// feedDownloadInitResponse handles the server's reply to a download
// initiate request. Grounded on sdo_async__feed_init_dl_response: an
// expedited Download is already complete once acknowledged; a segmented
// one starts the segment loop.
func (t *Transaction) feedDownloadInitResponse(in inboundFrame) {
	if in.dlc < 4 {
		t.localAbort(AbortGeneral)
		return
	}
	if in.commandSpecifier() != scsDownloadInitiate {
		t.localAbort(AbortCmd)
		return
	}
	if !t.quirks.has(IgnoreMultiplexer) && (in.index() != t.index || in.subindex() != t.subindex) {
		t.localAbort(AbortGeneral)
		return
	}

	if t.buf.len() <= 4 {
		t.finish(StatusOk, 0)
		return
	}

	t.phase = phaseAwaitingSegmentResponse
	t.armTimer()
	t.sendDownloadSegment()
}

// sendDownloadSegment emits the next download segment request, up to 7
// payload bytes per frame, marking the last one with the end-of-transfer
// bit. Grounded on sdo_async__request_dl_segment.
func (t *Transaction) sendDownloadSegment() {
	total := t.buf.len()
	size := total - t.pos
	if size > 7 {
		size = 7
	}
	payload, _ := t.buf.at(t.pos, size)
	t.pos += size
	last := t.pos >= total

	f := requestDownloadSegment(t.nodeId, t.toggle, payload, last, t.quirks)
	log.Debugf("[SDOCLIENT][TX][x%x] DOWNLOAD SEGMENT | x%x:x%x %v", t.nodeId, t.index, t.subindex, payload)
	t.send(f)
}

// feedDownloadSegmentResponse handles the server's ack of a download
// segment. Grounded on sdo_async__feed_dl_seg_response: validate the
// toggle, flip it, then either finish (if the buffer is exhausted) or send
// the next segment.
func (t *Transaction) feedDownloadSegmentResponse(in inboundFrame) {
	if in.dlc < 1 {
		t.localAbort(AbortGeneral)
		return
	}
	if in.commandSpecifier() != scsDownloadSegment {
		t.localAbort(AbortCmd)
		return
	}

	atEnd := t.pos >= t.buf.len()
	if !atEnd && in.toggle() != t.toggle {
		t.localAbort(AbortToggleBit)
		return
	}
	t.toggle ^= 0x10

	if atEnd {
		t.finish(StatusOk, 0)
		return
	}
	t.armTimer()
	t.sendDownloadSegment()
}
