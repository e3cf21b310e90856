//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"sync"

	"github.com/born-ml/syncmem/internal/device"
	"github.com/go-webgpu/webgpu/wgpu"
)

// Stream accumulates command buffers and submits them together.
type Stream struct {
	dev      *Device
	maxBatch int // flush once this many commands are queued (0 = no limit)

	mu       sync.Mutex
	pending  []*wgpu.CommandBuffer
	staging  []*wgpu.Buffer // released once the batch has completed
	lastDst  *wgpu.Buffer   // fence target for Synchronize
	inFlight bool
	closed   bool
}

// DeviceID returns DeviceID.
func (s *Stream) DeviceID() int { return DeviceID }

// Pending returns the number of command buffers not yet submitted.
func (s *Stream) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// queueCommand adds a command buffer to the pending batch. staging is
// released after the batch completes.
func (s *Stream) queueCommand(cmd *wgpu.CommandBuffer, staging, dst *wgpu.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		staging.Release()
		return device.ErrStreamClosed
	}
	s.pending = append(s.pending, cmd)
	s.staging = append(s.staging, staging)
	s.lastDst = dst

	if s.maxBatch > 0 && len(s.pending) >= s.maxBatch {
		s.flushLocked()
	}
	return nil
}

// Flush submits the pending batch without waiting for it.
func (s *Stream) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
}

func (s *Stream) flushLocked() {
	if len(s.pending) == 0 {
		return
	}
	s.dev.queueMu.Lock()
	s.dev.queue.Submit(s.pending...)
	s.dev.queueMu.Unlock()

	s.pending = s.pending[:0]
	s.inFlight = true
}

// Synchronize submits the pending batch and blocks until the GPU has
// executed it. The queue runs submissions in order, so a readback of the
// last written buffer completes only after every queued copy.
func (s *Stream) Synchronize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.flushLocked()
	if !s.inFlight {
		return nil
	}
	if s.lastDst != nil {
		if _, err := s.dev.readBuffer(s.lastDst, 4); err != nil {
			return fmt.Errorf("webgpu: stream fence: %w", err)
		}
	}
	for _, b := range s.staging {
		b.Release()
	}
	s.staging = s.staging[:0]
	s.lastDst = nil
	s.inFlight = false
	return nil
}

// Close synchronizes outstanding work and rejects further commands.
func (s *Stream) Close() error {
	err := s.Synchronize(context.Background())
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}
