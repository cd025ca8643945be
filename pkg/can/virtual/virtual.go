// Package virtual implements an in-process CAN bus used for tests and
// local examples that don't have real hardware available.
package virtual

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/samsamfire/sdoasync/pkg/can"
	log "github.com/sirupsen/logrus"
)

// Virtual CAN bus implementation with TCP primarily used for testing.
// This needs a broker server to send CAN frames to all connected clients,
// or SetReceiveOwn(true) for pure loopback within a single process.

func init() {
	can.RegisterInterface("virtual", NewVirtualCanBus)
	can.RegisterInterface("virtualcan", NewVirtualCanBus)
}

type Bus struct {
	mu            sync.Mutex
	channel       string
	conn          net.Conn
	receiveOwn    bool
	frameListener can.FrameListener
	stopChan      chan bool
	wg            sync.WaitGroup
	isRunning     bool
	errSubscriber bool
}

func NewVirtualCanBus(channel string) (can.Bus, error) {
	return &Bus{channel: channel, stopChan: make(chan bool)}, nil
}

// serializeFrame encodes a frame as a 4-byte length prefix followed by its
// fixed-size binary representation.
func serializeFrame(frame can.Frame) ([]byte, error) {
	buffer := new(bytes.Buffer)
	err := binary.Write(buffer, binary.BigEndian, frame)
	if err != nil {
		return nil, err
	}
	dataBytes := buffer.Bytes()
	frameBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(frameBytes, uint32(len(dataBytes)))
	return append(frameBytes, dataBytes...), nil
}

func deserializeFrame(buffer []byte) (*can.Frame, error) {
	var frame can.Frame
	buf := bytes.NewBuffer(buffer)
	err := binary.Read(buf, binary.BigEndian, &frame)
	if err != nil {
		return nil, err
	}
	return &frame, nil
}

// Connect dials the broker at b.channel (e.g. "localhost:18000"). With
// SetReceiveOwn(true) and no broker running, Send still loops frames back
// to the subscribed listener locally.
func (b *Bus) Connect(...any) error {
	conn, err := net.Dial("tcp", b.channel)
	if err != nil {
		if b.receiveOwn {
			return nil
		}
		return err
	}
	b.conn = conn
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		return tcpConn.SetNoDelay(true)
	}
	return nil
}

func (b *Bus) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.errSubscriber && b.isRunning {
		b.stopChan <- true
		b.wg.Wait()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func (b *Bus) Send(frame can.Frame) error {
	if b.receiveOwn && b.frameListener != nil {
		b.frameListener.Handle(frame)
	} else if b.conn == nil {
		return can.ErrNotConnected
	}
	if b.conn != nil {
		frameBytes, err := serializeFrame(frame)
		if err != nil {
			return err
		}
		_ = b.conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
		_, err = b.conn.Write(frameBytes)
		return err
	}
	return nil
}

func (b *Bus) Subscribe(frameListener can.FrameListener) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frameListener = frameListener
	if b.isRunning || b.conn == nil {
		return nil
	}
	b.wg.Add(1)
	b.isRunning = true
	b.errSubscriber = false
	go b.handleReception()
	return nil
}

func (b *Bus) recv() (*can.Frame, error) {
	if b.conn == nil {
		return nil, can.ErrNotConnected
	}
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	headerBytes := make([]byte, 4)
	n, err := b.conn.Read(headerBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n < 4 || err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(headerBytes)
	frameBytes := make([]byte, length)
	_ = b.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	n, err = b.conn.Read(frameBytes)
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, err
	}
	if n != int(length) || err != nil {
		return nil, err
	}
	return deserializeFrame(frameBytes)
}

func (b *Bus) handleReception() {
	defer func() {
		b.isRunning = false
		b.wg.Done()
	}()
	for {
		select {
		case <-b.stopChan:
			return
		default:
			if !b.mu.TryLock() {
				break
			}
			frame, err := b.recv()
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// No message received, this is OK
			} else if err != nil {
				log.Warnf("[VIRTUAL] listening routine closed: %v", err)
				b.errSubscriber = true
				b.mu.Unlock()
				return
			} else if b.frameListener != nil {
				b.frameListener.Handle(*frame)
			}
			b.mu.Unlock()
		}
	}
}

// SetReceiveOwn makes Send loop frames directly back to the subscribed
// listener without going through the broker, useful for single-process
// tests that never start a broker.
func (b *Bus) SetReceiveOwn(receiveOwn bool) {
	b.receiveOwn = receiveOwn
}
