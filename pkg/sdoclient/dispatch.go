package sdoclient

// feedInitResponse dispatches an init-phase response to the download or
// upload handler, per Request.Direction. Grounded on
// sdo_async__feed_init_response.
func (t *Transaction) feedInitResponse(in inboundFrame) {
	switch t.direction {
	case Download:
		t.feedDownloadInitResponse(in)
	case Upload:
		t.feedUploadInitResponse(in)
	}
}

// feedSegmentResponse dispatches a segment-phase response to the download
// or upload handler, per Request.Direction. Grounded on
// sdo_async__feed_seg_response.
func (t *Transaction) feedSegmentResponse(in inboundFrame) {
	switch t.direction {
	case Download:
		t.feedDownloadSegmentResponse(in)
	case Upload:
		t.feedUploadSegmentResponse(in)
	}
}
