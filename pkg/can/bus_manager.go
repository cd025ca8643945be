package can

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	// Max Standard CAN ID is 0x7FF (2047).
	MaxCanId = 0x7FF

	// The array must hold standard frames + RTR frames (so 2x size)
	LookupArraySize = (MaxCanId + 1) * 2
)

type subscriber struct {
	id       uint64
	callback FrameListener
}

// BusManager wraps a [Bus] and demultiplexes received frames to whichever
// listeners subscribed to a given CAN id. Several consumers (e.g. several
// SDO transactions bound to different nodes) can share one Bus through one
// BusManager.
type BusManager struct {
	mu    sync.Mutex
	bus   Bus
	// CAN id indexed subscribers, RTR frames offset by MaxCanId+1
	listeners [LookupArraySize][]subscriber
	nextSubId uint64
}

func NewBusManager(bus Bus) *BusManager {
	return &BusManager{bus: bus}
}

// Handle implements [FrameListener]. Subscribe the BusManager to a [Bus] to
// have it dispatch received frames to its own subscribers.
func (bm *BusManager) Handle(frame Frame) {
	ident := frame.ID & CanSffMask
	if ident >= LookupArraySize {
		return
	}

	bm.mu.Lock()
	listeners := append([]subscriber(nil), bm.listeners[ident]...)
	bm.mu.Unlock()

	for _, sub := range listeners {
		sub.callback.Handle(frame)
	}
}

// Send a frame on the underlying bus.
func (bm *BusManager) Send(frame Frame) error {
	err := bm.bus.Send(frame)
	if err != nil {
		log.Warnf("[BUS] error sending frame x%x: %v", frame.ID, err)
	}
	return err
}

// Subscribe to frames carrying the given 11-bit CAN identifier. Returns a
// cancel func removing the subscription; safe to call more than once.
// Handle does not inspect the RTR flag: every frame goes to the non-RTR
// subscribers of its 11-bit id, so a subscription made with rtr set
// receives no frames.
func (bm *BusManager) Subscribe(ident uint32, rtr bool, callback FrameListener) (cancel func(), err error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	idx := ident & CanSffMask
	if rtr {
		idx += MaxCanId + 1
	}
	if int(idx) >= len(bm.listeners) {
		return nil, ErrIllegalArgument
	}

	bm.nextSubId++
	subId := bm.nextSubId
	bm.listeners[idx] = append(bm.listeners[idx], subscriber{id: subId, callback: callback})

	cancelled := false
	cancel = func() {
		bm.mu.Lock()
		defer bm.mu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		subs := bm.listeners[idx]
		for i, sub := range subs {
			if sub.id == subId {
				bm.listeners[idx] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
	return cancel, nil
}
