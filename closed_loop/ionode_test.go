package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"arc-weld-core/utils"
)

// respondFunc builds the feedback frame sent after each command frame. cmd is
// empty for the frame sent on start. It runs on the node goroutine only.
type respondFunc func(cmd string, values map[string]float64) map[string]float64

func constantFeedback(values map[string]float64) respondFunc {
	return func(string, map[string]float64) map[string]float64 { return values }
}

// ioNode plays the remote I/O node: it answers every command frame with a
// feedback frame and records the last command of each kind.
type ioNode struct {
	cmap    *utils.CANMap
	bus     *utils.MemBus
	respond respondFunc

	mu      sync.Mutex
	last    map[string]map[string]float64
	maxDuty float64
	seq     int
}

func newIONode(cmap *utils.CANMap, bus *utils.MemBus, respond respondFunc) *ioNode {
	return &ioNode{cmap: cmap, bus: bus, respond: respond, last: map[string]map[string]float64{}}
}

// start runs the node until the test ends.
func (n *ioNode) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
}

func (n *ioNode) run(ctx context.Context) error {
	if err := n.reply(ctx, "", nil); err != nil {
		return err
	}
	for {
		frame, err := n.bus.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		fd, err := n.cmap.FrameByID(frame.ID)
		if err != nil {
			return err
		}
		values, err := n.cmap.DecodeFrame(frame)
		if err != nil {
			return err
		}
		n.mu.Lock()
		n.last[fd.Name] = values
		if fd.Name == powerFrame && values["duty"] > n.maxDuty {
			n.maxDuty = values["duty"]
		}
		n.mu.Unlock()
		if err := n.reply(ctx, fd.Name, values); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
}

func (n *ioNode) reply(ctx context.Context, cmd string, values map[string]float64) error {
	n.seq++
	fb := map[string]float64{"sequence": float64(n.seq % 256)}
	for k, v := range n.respond(cmd, values) {
		fb[k] = v
	}
	frame, err := n.cmap.EncodeFrame(feedbackFrame, fb)
	if err != nil {
		return err
	}
	return n.bus.WriteFrame(ctx, frame)
}

func (n *ioNode) command(name string) map[string]float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last[name]
}

func (n *ioNode) maxDutySeen() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.maxDuty
}
