// Package config loads the binding a Transaction needs to talk to one
// remote node: which CAN interface to use, which node id, and the
// per-peer timing/leniency parameters.
package config

import (
	"fmt"
	"strconv"
	"time"

	"gopkg.in/ini.v1"

	"github.com/samsamfire/sdoasync/pkg/sdoclient"
)

// Binding is everything needed to open a bus and run transactions against
// one node, as read from one `.ini` section.
type Binding struct {
	NodeId    uint8
	Interface string
	Channel   string
	Bitrate   int
	Timeout   time.Duration
	Quirks    sdoclient.Quirks
}

// Load reads one node Binding from the named section of an ini file.
// Grounded on od_parser.go's ini.Load(filePathOrData)+section.Key(...)
// pattern, narrowed to the handful of keys a Binding needs instead of a
// full EDS object dictionary.
func Load(filePathOrData any, section string) (Binding, error) {
	var b Binding

	cfg, err := ini.Load(filePathOrData)
	if err != nil {
		return b, fmt.Errorf("config: loading ini: %w", err)
	}

	sec, err := cfg.GetSection(section)
	if err != nil {
		return b, fmt.Errorf("config: section %q: %w", section, err)
	}

	// Parsed with strconv directly, base 0, the same way od_parser.go reads
	// every numeric EDS key — NodeId is written in hex in practice (e.g.
	// "0x20") and base 0 is what lets that and plain decimal both work.
	nodeId, err := strconv.ParseUint(sec.Key("NodeId").Value(), 0, 8)
	if err != nil {
		return b, fmt.Errorf("config: %s.NodeId: %w", section, err)
	}
	b.NodeId = uint8(nodeId)

	b.Interface = sec.Key("Interface").MustString("virtualcan")
	b.Channel = sec.Key("Channel").MustString("default")
	b.Bitrate = sec.Key("Bitrate").MustInt(500000)

	timeoutMs := sec.Key("TimeoutMs").MustInt(1000)
	b.Timeout = time.Duration(timeoutMs) * time.Millisecond

	if sec.Key("NeedsFullFrame").MustBool(false) {
		b.Quirks |= sdoclient.NeedsFullFrame
	}
	if sec.Key("IgnoreMultiplexer").MustBool(false) {
		b.Quirks |= sdoclient.IgnoreMultiplexer
	}

	return b, nil
}
