package sdoclient

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/sdoasync/pkg/can"
)

// FrameSender is the outbound half of the transport a Transaction is bound
// to. [can.Bus] and [*can.BusManager] both satisfy it.
type FrameSender interface {
	Send(f can.Frame) error
}

// Request describes one transaction to run, passed to [Transaction.Start].
type Request struct {
	Direction Direction
	Index     uint16
	Subindex  uint8
	// Timeout is (re-)armed each time an init or segment request is
	// sent; exceeding it aborts the transaction with [AbortTimeout].
	Timeout time.Duration
	// Data is the payload to send for a Download. Ignored for Upload.
	// The transaction copies it; the caller retains ownership.
	Data []byte
	// OnDone is invoked exactly once, synchronously, when the
	// transaction reaches a terminal state (ok, local abort or remote
	// abort). It may call Start again to chain a new transaction; doing
	// so is safe and does not disturb the book-keeping of the
	// transaction that just finished.
	OnDone func(*Transaction)
	// Context is opaque caller state, handed back to Release once the
	// transaction is done and OnDone has returned. Optional.
	Context any
	Release func(any)
}

// Transaction runs one client-side SDO upload or download against a single
// remote node. Scheduling model is single-threaded cooperative: Start,
// Stop, Feed, the timeout firing and the completion callback all run on
// whichever single goroutine drives the bound Bus. There is no internal
// locking — none is needed, and none is provided; callers must not call
// into a Transaction from more than one goroutine.
//
// Grounded function-for-function on original_source/src/sdo_async.c's
// sdo_async struct and its sdo_async_start/sdo_async_stop/sdo_async_feed/
// sdo_async__on_done functions.
type Transaction struct {
	nodeId uint8
	sender FrameSender
	quirks Quirks
	timer  Timer

	isRunning bool
	phase     phase

	direction Direction
	index     uint16
	subindex  uint8
	timeout   time.Duration
	onDone    func(*Transaction)
	context   any
	release   func(any)

	toggle          uint8
	pos             int
	isSizeIndicated bool

	buf buffer

	status    Status
	abortCode AbortCode
}

// New creates a Transaction bound to a node id and an outbound frame sink.
// It does not subscribe itself to inbound frames; the caller routes frames
// addressed to 0x580+nodeId into Feed, typically via [can.BusManager.Subscribe].
func New(nodeId uint8, sender FrameSender, quirks Quirks) *Transaction {
	return &Transaction{
		nodeId: nodeId,
		sender: sender,
		quirks: quirks,
		timer:  NewTimer(),
	}
}

// SetTimer overrides the default real-clock timer, for tests.
func (t *Transaction) SetTimer(timer Timer) {
	t.timer = timer
}

// IsRunning reports whether a transaction is currently in flight.
func (t *Transaction) IsRunning() bool {
	return t.isRunning
}

// Status reports the outcome of the most recently completed transaction.
// Meaningless while IsRunning is true.
func (t *Transaction) Status() Status {
	return t.status
}

// AbortCode reports the abort code of the most recently completed
// transaction. Meaningless unless Status is StatusLocalAbort or
// StatusRemoteAbort.
func (t *Transaction) AbortCode() AbortCode {
	return t.abortCode
}

// Result returns the accumulated Upload payload. Meaningless for a
// Download, or before completion.
func (t *Transaction) Result() []byte {
	return t.buf.bytes()
}

// Stop cancels a running transaction without sending an abort frame on the
// wire — use this for local teardown (e.g. the node is going away), not for
// a protocol error the peer should be told about. By design it suppresses
// the completion callback: the caller initiated the cancel and already
// knows the outcome.
//
// Grounded on sdo_async_stop, which likewise fires no completion and sends
// nothing: it only disarms the timer and releases the caller's context.
func (t *Transaction) Stop() error {
	if !t.isRunning {
		return ErrNotRunning
	}

	t.timer.Stop()

	context, release := t.context, t.release
	t.isRunning = false
	t.phase = phaseStart

	if context != nil && release != nil {
		release(context)
	}
	return nil
}

// Start begins a new transaction. It fails with ErrAlreadyRunning if one is
// already in flight; the caller must Stop it (or wait for completion)
// first.
//
// Grounded on sdo_async_start: installs the new context/callback/comm
// parameters, resets pos/toggle/size-indicated, flips running, then emits
// the initiate frame.
func (t *Transaction) Start(req Request) error {
	if t.isRunning {
		return ErrAlreadyRunning
	}

	t.context = req.Context
	t.release = req.Release
	t.onDone = req.OnDone
	t.direction = req.Direction
	t.index = req.Index
	t.subindex = req.Subindex
	t.timeout = req.Timeout
	t.pos = 0
	t.toggle = 0
	t.isSizeIndicated = false

	if req.Direction == Download {
		t.buf.assign(req.Data)
	} else {
		t.buf.reset()
	}

	t.phase = phaseAwaitingInitResponse
	t.isRunning = true

	t.armTimer()

	if req.Direction == Download {
		t.sendInitDownload()
	} else {
		t.sendInitUpload()
	}

	return nil
}

// Destroy releases the buffer and timer, returning the Transaction to a
// reusable zero state. Precondition: not running — returns
// ErrAlreadyRunning otherwise, mirroring sdo_async_destroy's assertion
// that a transaction must be stopped or completed before it is torn
// down. In this GC'd runtime there is no allocator call to make here,
// but the op is kept for parity with spec.md §4.1's public lifecycle
// surface, and it does drop the buffer's backing array so a long-lived
// Transaction doesn't pin a large Upload payload's memory indefinitely.
func (t *Transaction) Destroy() error {
	if t.isRunning {
		return ErrAlreadyRunning
	}
	t.timer.Stop()
	t.buf = buffer{}
	return nil
}

// Feed delivers one received CAN frame addressed to this transaction's
// TSDO id. Frames received while no transaction is running, and frames
// whose CAN id is not 0x580+nodeId, are logged and ignored without
// touching the timeout.
//
// Grounded on sdo_async_feed: bail out (logged) if no transaction is
// running or the id is not the bound node's TSDO id, otherwise stop the
// timer, handle a remote Abort generically regardless of phase, and
// otherwise dispatch by comm_state.
func (t *Transaction) Feed(f can.Frame) {
	if !t.isRunning {
		log.Debugf("[SDOCLIENT][x%x] frame received with no transaction running", t.nodeId)
		return
	}
	if f.ID&can.CanSffMask != serverBaseId+uint32(t.nodeId) {
		log.Warnf("[SDOCLIENT][RX][x%x] ignoring frame with unexpected id x%x", t.nodeId, f.ID)
		return
	}
	t.timer.Stop()

	in := toInboundFrame(f)

	if in.isAbort() {
		code := in.abortCode()
		log.Debugf("[SDOCLIENT][RX][x%x] SERVER ABORT | x%x:x%x | x%x", t.nodeId, t.index, t.subindex, uint32(code))
		t.finish(StatusRemoteAbort, code)
		return
	}

	switch t.phase {
	case phaseAwaitingInitResponse:
		t.feedInitResponse(in)
	case phaseAwaitingSegmentResponse:
		t.feedSegmentResponse(in)
	case phaseStart:
		// Can't happen: isRunning implies phase != phaseStart.
	}
}

func toInboundFrame(f can.Frame) inboundFrame {
	var in inboundFrame
	in.dlc = f.DLC
	copy(in.data[:], f.Data[:])
	return in
}

// armTimer (re-)arms the timeout, called each time an init or segment
// request is about to be sent.
func (t *Transaction) armTimer() {
	t.timer.Start(t.timeout, t.onTimeout)
}

func (t *Transaction) onTimeout() {
	log.Warnf("[SDOCLIENT][x%x] timeout | x%x:x%x", t.nodeId, t.index, t.subindex)
	t.localAbort(AbortTimeout)
}

// localAbort sends an Abort frame to the peer and finishes the transaction
// with StatusLocalAbort. Grounded on sdo_async__abort.
func (t *Transaction) localAbort(code AbortCode) {
	t.timer.Stop()
	f := requestAbort(t.nodeId, t.index, t.subindex, code, t.quirks)
	log.Warnf("[SDOCLIENT][TX][x%x] CLIENT ABORT | x%x:x%x | x%x", t.nodeId, t.index, t.subindex, uint32(code))
	t.send(f)

	t.finish(StatusLocalAbort, code)
}

// finish marks the transaction terminal, invokes the completion callback
// exactly once, then releases the caller context. Grounded on
// sdo_async__on_done: capture context/release locally and flip isRunning
// before invoking the callback, so a reentrant Start from within OnDone
// installs its own context without this call clobbering or freeing it.
func (t *Transaction) finish(status Status, code AbortCode) {
	if !t.isRunning {
		return
	}
	t.timer.Stop()
	t.status = status
	t.abortCode = code

	onDone := t.onDone
	context, release := t.context, t.release

	t.isRunning = false
	t.phase = phaseStart

	if onDone != nil {
		onDone(t)
	}
	if context != nil && release != nil {
		release(context)
	}
}

// send forwards an outbound frame to the bound sender, converting it to
// [can.Frame] and logging send failures without treating them as protocol
// errors (matching the router's own send-failure handling).
func (t *Transaction) send(f frame) {
	out := can.Frame{ID: f.id, DLC: f.dlc}
	copy(out.Data[:], f.data[:])
	if err := t.sender.Send(out); err != nil {
		log.Warnf("[SDOCLIENT][TX][x%x] send failed: %v", t.nodeId, err)
	}
}
