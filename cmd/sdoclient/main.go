// Command sdoclient runs one SDO upload or download against a single
// CANopen node and prints the result.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/samsamfire/sdoasync/pkg/can"
	_ "github.com/samsamfire/sdoasync/pkg/can/socketcan"
	_ "github.com/samsamfire/sdoasync/pkg/can/virtual"
	"github.com/samsamfire/sdoasync/pkg/config"
	"github.com/samsamfire/sdoasync/pkg/sdoclient"
)

func main() {
	log.SetLevel(log.DebugLevel)

	configFile := flag.String("config", "", "path to an ini config file (see testdata/sdoclient.ini)")
	section := flag.String("section", "node", "config section to load")
	iface := flag.String("i", "virtualcan", "CAN interface type (virtualcan, socketcan)")
	channel := flag.String("channel", "default", "CAN channel (e.g. can0, vcan0)")
	bitrate := flag.Int("bitrate", 500000, "CAN bitrate")
	nodeId := flag.Int("node", 0x20, "target node id")
	indexFlag := flag.String("index", "0x1018", "object index, hex")
	subindexFlag := flag.Int("subindex", 0, "object subindex")
	download := flag.String("download", "", "hex payload to download; if unset, an upload is performed")
	timeout := flag.Duration("timeout", time.Second, "SDO timeout")
	flag.Parse()

	binding := config.Binding{
		NodeId:    uint8(*nodeId),
		Interface: *iface,
		Channel:   *channel,
		Bitrate:   *bitrate,
		Timeout:   *timeout,
	}
	if *configFile != "" {
		loaded, err := config.Load(*configFile, *section)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		binding = loaded
	}

	index, err := strconv.ParseUint(*indexFlag, 0, 16)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad index %q: %v\n", *indexFlag, err)
		os.Exit(1)
	}

	bus, err := can.NewBus(binding.Interface, binding.Channel, binding.Bitrate)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := bus.Connect(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer bus.Disconnect()

	busManager := can.NewBusManager(bus)
	if err := bus.Subscribe(busManager); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	txn := sdoclient.New(binding.NodeId, busManager, binding.Quirks)
	cancel, err := busManager.Subscribe(0x580+uint32(binding.NodeId), false, frameListenerFunc(txn.Feed))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer cancel()

	req := sdoclient.Request{
		Index:    uint16(index),
		Subindex: uint8(*subindexFlag),
		Timeout:  binding.Timeout,
	}

	done := make(chan struct{})
	req.OnDone = func(t *sdoclient.Transaction) { close(done) }

	if *download != "" {
		payload, err := hex.DecodeString(*download)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bad hex payload %q: %v\n", *download, err)
			os.Exit(1)
		}
		req.Direction = sdoclient.Download
		req.Data = payload
	} else {
		req.Direction = sdoclient.Upload
	}

	if err := txn.Start(req); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	select {
	case <-done:
	case <-time.After(*timeout + time.Second):
		fmt.Fprintln(os.Stderr, "sdoclient: no completion callback fired, bus misconfigured?")
		os.Exit(1)
	}

	switch txn.Status() {
	case sdoclient.StatusOk:
		if req.Direction == sdoclient.Upload {
			fmt.Printf("ok: %x\n", txn.Result())
		} else {
			fmt.Println("ok")
		}
	case sdoclient.StatusLocalAbort, sdoclient.StatusRemoteAbort:
		fmt.Printf("abort (%s): %v\n", txn.Status(), txn.AbortCode())
		os.Exit(1)
	}
}

// frameListenerFunc adapts a plain func(can.Frame) to [can.FrameListener].
type frameListenerFunc func(can.Frame)

func (f frameListenerFunc) Handle(frame can.Frame) { f(frame) }
