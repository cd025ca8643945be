// Package sdoclient implements the client side of a CANopen SDO
// transaction: one in-flight expedited or segmented upload/download
// against a single remote node, driven by inbound CAN frames and a
// timeout, delivering exactly one completion event.
//
// The shape is deliberately close to [notnil/canbus]'s async SDO client
// (callback-free channels there, callback here) and to gocanopen's
// synchronous SDO client: same wire protocol, same command-specifier
// naming, different control-flow discipline — feed-driven rather than
// polled.
//
// [notnil/canbus]: https://github.com/notnil/canbus
package sdoclient

import "fmt"

// AbortCode is a 32-bit CANopen SDO abort code, delivered on the wire in
// an Abort frame and observable on a [Transaction] after completion.
type AbortCode uint32

const (
	AbortToggleBit AbortCode = 0x05030000
	AbortTimeout   AbortCode = 0x05040000
	AbortCmd       AbortCode = 0x05040001
	AbortOutOfMem  AbortCode = 0x05040005
	AbortGeneral   AbortCode = 0x08000000
)

var abortDescriptions = map[AbortCode]string{
	AbortToggleBit: "toggle bit not altered",
	AbortTimeout:   "SDO protocol timed out",
	AbortCmd:       "command specifier not valid or unknown",
	AbortOutOfMem:  "out of memory",
	AbortGeneral:   "general error",
}

func (a AbortCode) Error() string {
	return fmt.Sprintf("x%x: %s", uint32(a), a.Description())
}

func (a AbortCode) Description() string {
	if d, ok := abortDescriptions[a]; ok {
		return d
	}
	return abortDescriptions[AbortGeneral]
}

// Direction of a transaction, fixed for its whole lifetime at Start.
type Direction uint8

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// Status is the outcome recorded on a Transaction once its completion
// callback has fired.
type Status uint8

const (
	StatusOk Status = iota
	StatusLocalAbort
	StatusRemoteAbort
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "ok"
	case StatusLocalAbort:
		return "local-abort"
	case StatusRemoteAbort:
		return "remote-abort"
	default:
		return "unknown"
	}
}

// phase is the communication phase of the state machine, invariant 3:
// phase == phaseStart iff the transaction is not running.
type phase uint8

const (
	phaseStart phase = iota
	phaseAwaitingInitResponse
	phaseAwaitingSegmentResponse
)

// Quirks are per-peer leniency flags, set on the Binding.
type Quirks uint8

const (
	// NeedsFullFrame forces DLC=8 on every outbound frame.
	NeedsFullFrame Quirks = 1 << iota
	// IgnoreMultiplexer skips the (index, subindex) equality check on
	// init responses.
	IgnoreMultiplexer
)

func (q Quirks) has(flag Quirks) bool { return q&flag != 0 }

// Client command specifiers (CCS), occupying bits 7..5 of the command byte.
const (
	ccsDownloadSegment  uint8 = 0
	ccsDownloadInitiate uint8 = 1
	ccsUploadInitiate   uint8 = 2
	ccsUploadSegment    uint8 = 3
	ccsAbort            uint8 = 4
)

// Server command specifiers (SCS).
const (
	scsUploadSegment    uint8 = 0
	scsDownloadSegment  uint8 = 1
	scsUploadInitiate   uint8 = 2
	scsDownloadInitiate uint8 = 3
	scsAbort            uint8 = 4
)

const (
	clientBaseId = 0x600 // RSDO: client -> server
	serverBaseId = 0x580 // TSDO: server -> client
)
