package sdoclient

import log "github.com/sirupsen/logrus"

// sendInitUpload emits the upload initiate request. Grounded on
// sdo_async__send_init_ul.
func (t *Transaction) sendInitUpload() {
	f := requestInitUpload(t.nodeId, t.index, t.subindex, t.quirks)
	log.Debugf("[SDOCLIENT][TX][x%x] UPLOAD INITIATE | x%x:x%x", t.nodeId, t.index, t.subindex)
	t.send(f)
}

// feedUploadInitResponse handles the server's reply to an upload initiate
// request. Grounded on sdo_async__feed_init_ul_response, dispatching on
// the expedited bit to either finish immediately (expedited) or reserve a
// buffer and start the segment loop (segmented).
func (t *Transaction) feedUploadInitResponse(in inboundFrame) {
	if in.dlc < 4 {
		t.localAbort(AbortGeneral)
		return
	}
	if in.commandSpecifier() != scsUploadInitiate {
		t.localAbort(AbortCmd)
		return
	}
	if !t.quirks.has(IgnoreMultiplexer) && (in.index() != t.index || in.subindex() != t.subindex) {
		t.localAbort(AbortGeneral)
		return
	}

	if in.isExpedited() {
		t.handleExpeditedUpload(in)
		return
	}
	t.handleSegmentedUploadInit(in)
}

func (t *Transaction) handleExpeditedUpload(in inboundFrame) {
	size := 4
	t.isSizeIndicated = in.isSizeIndicated()
	if t.isSizeIndicated {
		size = in.expeditedSize()
	}
	t.buf.assign(in.expeditedPayload(size))

	log.Debugf("[SDOCLIENT][RX][x%x] UPLOAD EXPEDITED | x%x:x%x", t.nodeId, t.index, t.subindex)
	t.finish(StatusOk, 0)
}

func (t *Transaction) handleSegmentedUploadInit(in inboundFrame) {
	t.isSizeIndicated = in.isSizeIndicated()
	if t.isSizeIndicated && in.dlc == 8 {
		if err := t.buf.reserve(int(in.indicatedSize())); err != nil {
			t.localAbort(AbortOutOfMem)
			return
		}
	}
	t.phase = phaseAwaitingSegmentResponse

	log.Debugf("[SDOCLIENT][RX][x%x] UPLOAD SEGMENTED INIT | x%x:x%x size-indicated=%v", t.nodeId, t.index, t.subindex, t.isSizeIndicated)
	t.armTimer()
	t.sendUploadSegment()
}

// sendUploadSegment emits the next upload segment request. Grounded on
// sdo_async__request_ul_segment.
func (t *Transaction) sendUploadSegment() {
	f := requestUploadSegment(t.nodeId, t.toggle, t.quirks)
	log.Debugf("[SDOCLIENT][TX][x%x] UPLOAD SEGMENT | x%x:x%x", t.nodeId, t.index, t.subindex)
	t.send(f)
}

// feedUploadSegmentResponse handles one upload segment reply. Grounded on
// sdo_async__feed_ul_seg_response: validate the toggle (skipped on the
// final segment), flip it, append the payload, then either finish or ask
// for the next segment.
func (t *Transaction) feedUploadSegmentResponse(in inboundFrame) {
	if in.dlc < 1 {
		t.localAbort(AbortGeneral)
		return
	}
	if in.commandSpecifier() != scsUploadSegment {
		t.localAbort(AbortCmd)
		return
	}

	end := in.isEndSegment()
	if !end && in.toggle() != t.toggle {
		t.localAbort(AbortToggleBit)
		return
	}
	t.toggle ^= 0x10

	n := in.segmentSize()
	if err := t.buf.append(in.segmentPayload(n)); err != nil {
		t.localAbort(AbortOutOfMem)
		return
	}

	if end {
		t.finish(StatusOk, 0)
		return
	}
	t.armTimer()
	t.sendUploadSegment()
}
