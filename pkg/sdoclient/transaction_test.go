package sdoclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samsamfire/sdoasync/pkg/can"
)

// fakeSender records every frame handed to Send and lets a test synthesize
// a response by calling feed on the Transaction directly.
type fakeSender struct {
	sent []can.Frame
	err  error
}

func (f *fakeSender) Send(frame can.Frame) error {
	f.sent = append(f.sent, frame)
	return f.err
}

func (f *fakeSender) last() can.Frame {
	return f.sent[len(f.sent)-1]
}

// fakeTimer is a manually-driven [Timer]: Start just records the callback,
// fire invokes it, nothing runs on a real clock.
type fakeTimer struct {
	fn      func()
	armed   bool
	stopped int
}

func (f *fakeTimer) Start(d time.Duration, fn func()) {
	f.fn = fn
	f.armed = true
}

func (f *fakeTimer) Stop() {
	f.stopped++
	f.armed = false
}

func (f *fakeTimer) fire() {
	fn := f.fn
	f.armed = false
	fn()
}

func newTestTransaction() (*Transaction, *fakeSender, *fakeTimer) {
	sender := &fakeSender{}
	timer := &fakeTimer{}
	txn := New(0x20, sender, 0)
	txn.SetTimer(timer)
	return txn, sender, timer
}

func abortFrame(nodeId uint8, code AbortCode) can.Frame {
	f := can.Frame{ID: 0x580 + uint32(nodeId), DLC: 8}
	f.Data[0] = ccsAbort << 5
	f.Data[4] = byte(code)
	f.Data[5] = byte(code >> 8)
	f.Data[6] = byte(code >> 16)
	f.Data[7] = byte(code >> 24)
	return f
}

func TestExpeditedUpload(t *testing.T) {
	txn, sender, timer := newTestTransaction()
	var done *Transaction
	err := txn.Start(Request{
		Direction: Upload,
		Index:     0x1018,
		Subindex:  1,
		Timeout:   time.Second,
		OnDone:    func(tr *Transaction) { done = tr },
	})
	require.NoError(t, err)
	require.True(t, txn.IsRunning())
	require.True(t, timer.armed)

	resp := can.Frame{ID: 0x5A0, DLC: 8}
	resp.Data[0] = scsUploadInitiate<<5 | 0x02 | 0x01 | (0 << 2) // expedited, size-indicated, n=0
	resp.Data[1], resp.Data[2] = 0x18, 0x10
	resp.Data[3] = 1
	copy(resp.Data[4:8], []byte{0x7B, 0x00, 0x00, 0x00})

	txn.Feed(resp)

	require.NotNil(t, done)
	assert.Equal(t, StatusOk, txn.Status())
	assert.Equal(t, []byte{0x7B, 0x00, 0x00, 0x00}, txn.Result())
	assert.False(t, txn.IsRunning())
	assert.Len(t, sender.sent, 1)
}

func TestExpeditedDownload(t *testing.T) {
	txn, sender, _ := newTestTransaction()
	done := false
	err := txn.Start(Request{
		Direction: Download,
		Index:     0x2000,
		Subindex:  0,
		Timeout:   time.Second,
		Data:      []byte{0x01, 0x02},
		OnDone:    func(*Transaction) { done = true },
	})
	require.NoError(t, err)

	initFrame := sender.last()
	assert.Equal(t, ccsDownloadInitiate<<5|0x01|0x02|(2<<2), initFrame.Data[0])

	resp := can.Frame{ID: 0x5A0, DLC: 4}
	resp.Data[0] = scsDownloadInitiate << 5
	resp.Data[1], resp.Data[2] = 0x00, 0x20
	resp.Data[3] = 0

	txn.Feed(resp)

	assert.True(t, done)
	assert.Equal(t, StatusOk, txn.Status())
}

func TestSegmentedDownload(t *testing.T) {
	txn, sender, _ := newTestTransaction()
	payload := make([]byte, 10)
	for i := range payload {
		payload[i] = byte(i)
	}
	err := txn.Start(Request{
		Direction: Download,
		Index:     0x2001,
		Timeout:   time.Second,
		Data:      payload,
	})
	require.NoError(t, err)

	// init ack -> first segment request (7 bytes)
	initAck := can.Frame{ID: 0x5A0, DLC: 4}
	initAck.Data[0] = scsDownloadInitiate << 5
	initAck.Data[1], initAck.Data[2] = 0x01, 0x20
	txn.Feed(initAck)

	first := sender.last()
	assert.Equal(t, uint8(ccsDownloadSegment<<5), first.Data[0])
	assert.Equal(t, payload[0:7], first.Data[1:8])

	// first segment ack, toggle 0 -> second (last) segment, 3 bytes
	segAck1 := can.Frame{ID: 0x5A0, DLC: 1}
	segAck1.Data[0] = scsDownloadSegment << 5
	txn.Feed(segAck1)

	second := sender.last()
	assert.Equal(t, uint8(ccsDownloadSegment<<5|0x10|0x01), second.Data[0])
	assert.Equal(t, payload[7:10], second.Data[1:4])

	segAck2 := can.Frame{ID: 0x5A0, DLC: 1}
	segAck2.Data[0] = scsDownloadSegment<<5 | 0x10
	txn.Feed(segAck2)

	assert.Equal(t, StatusOk, txn.Status())
	assert.False(t, txn.IsRunning())
}

func TestSegmentedUpload(t *testing.T) {
	txn, sender, _ := newTestTransaction()
	err := txn.Start(Request{
		Direction: Upload,
		Index:     0x2002,
		Timeout:   time.Second,
	})
	require.NoError(t, err)

	initResp := can.Frame{ID: 0x5A0, DLC: 8}
	initResp.Data[0] = scsUploadInitiate<<5 | 0x01 // size-indicated, not expedited
	initResp.Data[1], initResp.Data[2] = 0x02, 0x20
	initResp.Data[4] = 10
	txn.Feed(initResp)

	firstReq := sender.last()
	assert.Equal(t, uint8(ccsUploadSegment<<5), firstReq.Data[0])

	seg1 := can.Frame{ID: 0x5A0, DLC: 8}
	seg1.Data[0] = scsUploadSegment<<5 | ((7 - 7) << 1) // n=0, 7 bytes, not end
	copy(seg1.Data[1:8], []byte{0, 1, 2, 3, 4, 5, 6})
	txn.Feed(seg1)

	secondReq := sender.last()
	assert.Equal(t, uint8(ccsUploadSegment<<5|0x10), secondReq.Data[0])

	seg2 := can.Frame{ID: 0x5A0, DLC: 4}
	seg2.Data[0] = scsUploadSegment<<5 | 0x10 | ((7-3)<<1) | 0x01 // toggled, n=4 (3 bytes), end
	copy(seg2.Data[1:4], []byte{7, 8, 9})
	txn.Feed(seg2)

	assert.Equal(t, StatusOk, txn.Status())
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, txn.Result())
}

func TestTimeoutAborts(t *testing.T) {
	txn, sender, timer := newTestTransaction()
	var gotCode AbortCode
	err := txn.Start(Request{
		Direction: Upload,
		Index:     0x1000,
		Timeout:   time.Millisecond,
		OnDone:    func(tr *Transaction) { gotCode = tr.AbortCode() },
	})
	require.NoError(t, err)
	require.True(t, timer.armed)

	timer.fire()

	assert.Equal(t, StatusLocalAbort, txn.Status())
	assert.Equal(t, AbortTimeout, gotCode)
	assert.False(t, txn.IsRunning())
	// init frame + abort frame
	require.Len(t, sender.sent, 2)
	abortSent := sender.last()
	assert.Equal(t, uint8(ccsAbort<<5), abortSent.Data[0])
}

func TestRemoteAbort(t *testing.T) {
	txn, _, _ := newTestTransaction()
	err := txn.Start(Request{Direction: Upload, Index: 0x1001, Timeout: time.Second})
	require.NoError(t, err)

	txn.Feed(abortFrame(0x20, AbortOutOfMem))

	assert.Equal(t, StatusRemoteAbort, txn.Status())
	assert.Equal(t, AbortOutOfMem, txn.AbortCode())
}

func TestSegmentedUploadReserveFailureAborts(t *testing.T) {
	txn, sender, _ := newTestTransaction()
	err := txn.Start(Request{
		Direction: Upload,
		Index:     0x2004,
		Timeout:   time.Second,
	})
	require.NoError(t, err)

	initResp := can.Frame{ID: 0x5A0, DLC: 8}
	initResp.Data[0] = scsUploadInitiate<<5 | 0x01 // size-indicated, not expedited
	initResp.Data[1], initResp.Data[2] = 0x04, 0x20
	// indicated size comfortably past maxBufferSize
	copy(initResp.Data[4:8], []byte{0x01, 0x00, 0x00, 0x10})
	txn.Feed(initResp)

	assert.Equal(t, StatusLocalAbort, txn.Status())
	assert.Equal(t, AbortOutOfMem, txn.AbortCode())
	assert.False(t, txn.IsRunning())
	// init frame + abort frame only: no upload segment request is ever sent.
	require.Len(t, sender.sent, 2)
	assert.Equal(t, uint8(ccsAbort<<5), sender.last().Data[0])
}

func TestToggleMismatchAborts(t *testing.T) {
	txn, sender, _ := newTestTransaction()
	err := txn.Start(Request{
		Direction: Download,
		Index:     0x2003,
		Timeout:   time.Second,
		Data:      make([]byte, 10),
	})
	require.NoError(t, err)

	initAck := can.Frame{ID: 0x5A0, DLC: 4}
	initAck.Data[0] = scsDownloadInitiate << 5
	initAck.Data[1], initAck.Data[2] = 0x03, 0x20
	txn.Feed(initAck)

	// Wrong toggle bit on first segment ack (should be 0, server sends 1).
	badAck := can.Frame{ID: 0x5A0, DLC: 1}
	badAck.Data[0] = scsDownloadSegment<<5 | 0x10
	txn.Feed(badAck)

	assert.Equal(t, StatusLocalAbort, txn.Status())
	assert.Equal(t, AbortToggleBit, txn.AbortCode())
	assert.Equal(t, uint8(ccsAbort<<5), sender.last().Data[0])
}

func TestStartWhileRunningFails(t *testing.T) {
	txn, _, _ := newTestTransaction()
	require.NoError(t, txn.Start(Request{Direction: Upload, Index: 1, Timeout: time.Second}))
	err := txn.Start(Request{Direction: Upload, Index: 2, Timeout: time.Second})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStopSuppressesCallback(t *testing.T) {
	txn, _, timer := newTestTransaction()
	called := false
	require.NoError(t, txn.Start(Request{
		Direction: Upload,
		Index:     1,
		Timeout:   time.Second,
		OnDone:    func(*Transaction) { called = true },
	}))

	require.NoError(t, txn.Stop())
	assert.False(t, called)
	assert.False(t, txn.IsRunning())
	assert.Equal(t, 1, timer.stopped)

	err := txn.Stop()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestReentrantStartFromOnDone(t *testing.T) {
	txn, _, _ := newTestTransaction()
	secondDone := false

	first := Request{
		Direction: Upload,
		Index:     1,
		Timeout:   time.Second,
	}
	first.OnDone = func(tr *Transaction) {
		err := tr.Start(Request{
			Direction: Upload,
			Index:     2,
			Timeout:   time.Second,
			OnDone:    func(*Transaction) { secondDone = true },
		})
		require.NoError(t, err)
	}
	require.NoError(t, txn.Start(first))

	resp := can.Frame{ID: 0x5A0, DLC: 8}
	resp.Data[0] = scsUploadInitiate<<5 | 0x02 | 0x01
	txn.Feed(resp)

	require.True(t, txn.IsRunning())

	resp2 := can.Frame{ID: 0x5A0, DLC: 8}
	resp2.Data[0] = scsUploadInitiate<<5 | 0x02 | 0x01
	txn.Feed(resp2)

	assert.True(t, secondDone)
	assert.False(t, txn.IsRunning())
}
