package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// CANBus is a bidirectional frame transport.
type CANBus interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	// Receive blocks until a frame arrives, the bus closes or ctx is done.
	Receive(ctx context.Context) (can.Frame, error)
	Close() error
}

// ErrBusClosed is returned by Receive after Close.
var ErrBusClosed = errors.New("can bus closed")

// SocketCANBus implements CANBus on two SocketCAN connections, one per
// direction, so a blocked receive never stalls transmission.
type SocketCANBus struct {
	txConn net.Conn
	rxConn net.Conn
	tx     *socketcan.Transmitter
	rx     *socketcan.Receiver

	frames chan can.Frame
	errs   chan error
	done   chan struct{}
	once   sync.Once
}

func NewSocketCANBus(ctx context.Context, iface string) (*SocketCANBus, error) {
	txConn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, fmt.Errorf("socketcan dial tx: %w", err)
	}
	rxConn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		_ = txConn.Close()
		return nil, fmt.Errorf("socketcan dial rx: %w", err)
	}
	b := &SocketCANBus{
		txConn: txConn,
		rxConn: rxConn,
		tx:     socketcan.NewTransmitter(txConn),
		rx:     socketcan.NewReceiver(rxConn),
		frames: make(chan can.Frame, 64),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go b.pump()
	return b, nil
}

func (b *SocketCANBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	return b.tx.TransmitFrame(ctx, frame)
}

// pump moves frames from the socket to the channel until the socket fails.
func (b *SocketCANBus) pump() {
	defer close(b.frames)
	for b.rx.Receive() {
		if b.rx.HasErrorFrame() {
			continue
		}
		select {
		case b.frames <- b.rx.Frame():
		case <-b.done:
			return
		}
	}
	if err := b.rx.Err(); err != nil {
		b.errs <- err
	}
}

func (b *SocketCANBus) Receive(ctx context.Context) (can.Frame, error) {
	select {
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f, ok := <-b.frames:
		if ok {
			return f, nil
		}
		select {
		case err := <-b.errs:
			return can.Frame{}, fmt.Errorf("socketcan receive: %w", err)
		default:
			return can.Frame{}, ErrBusClosed
		}
	}
}

func (b *SocketCANBus) Close() error {
	var err error
	b.once.Do(func() {
		close(b.done)
		err = errors.Join(b.rxConn.Close(), b.txConn.Close())
	})
	return err
}

// MemBus is an in-process CANBus endpoint. Frames written to one end of a
// pair are received by the other.
type MemBus struct {
	in   <-chan can.Frame
	out  chan<- can.Frame
	done chan struct{}
	peer *MemBus
	once sync.Once
}

// NewMemBusPair returns two connected endpoints with the given queue depth.
func NewMemBusPair(depth int) (*MemBus, *MemBus) {
	ab := make(chan can.Frame, depth)
	ba := make(chan can.Frame, depth)
	a := &MemBus{in: ba, out: ab, done: make(chan struct{})}
	b := &MemBus{in: ab, out: ba, done: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (m *MemBus) WriteFrame(ctx context.Context, frame can.Frame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if m.closed() || m.peer.closed() {
		return ErrBusClosed
	}
	select {
	case <-m.done:
		return ErrBusClosed
	case <-m.peer.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	case m.out <- frame:
		return nil
	}
}

func (m *MemBus) Receive(ctx context.Context) (can.Frame, error) {
	if m.closed() {
		return can.Frame{}, ErrBusClosed
	}
	select {
	case <-m.done:
		return can.Frame{}, ErrBusClosed
	case <-ctx.Done():
		return can.Frame{}, ctx.Err()
	case f := <-m.in:
		return f, nil
	}
}

func (m *MemBus) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *MemBus) Close() error {
	m.once.Do(func() { close(m.done) })
	return nil
}
