// Package video acquires the live camera stream and keeps the most recent
// frame available for preview and mood inference.
package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera device configured")
	ErrStreamClosed     = errors.New("camera stream closed")
)

// Frame is one captured JPEG image. Data must not be modified after capture.
type Frame struct {
	Seq        uint64
	Data       []byte
	CapturedAt time.Time
}

// Stream is a granted video-only capture stream.
//
// Frames returns a channel that stays open until Close. Close is idempotent.
type Stream interface {
	Frames() <-chan Frame
	Close() error
}

// Device is the host platform boundary for camera capture.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// Source requests the capture stream once and attaches it to a Sink.
type Source struct {
	device Device
	sink   *Sink

	mu     sync.Mutex
	stream Stream
	closed bool
}

// NewSource binds a device to the sink that downstream consumers sample.
func NewSource(device Device, sink *Sink) *Source {
	return &Source{device: device, sink: sink}
}

// Sink returns the frame sink the stream is attached to.
func (s *Source) Sink() *Sink {
	return s.sink
}

// Acquire issues a single capture request. On failure the error is logged and
// returned; no retry is attempted and the sink simply never receives frames.
// After Close it returns ErrStreamClosed.
func (s *Source) Acquire(ctx context.Context) (Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.stream != nil {
		return s.stream, nil
	}
	if s.device == nil {
		glog.Warningf("[video] camera unavailable: %v", ErrNoDevice)
		return nil, ErrNoDevice
	}

	stream, err := s.device.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			glog.Warningf("[video] camera access denied: %v", err)
		} else {
			glog.Errorf("[video] failed to open camera: %v", err)
		}
		return nil, fmt.Errorf("acquire camera stream: %w", err)
	}

	s.stream = stream
	s.sink.Attach(stream)
	glog.Info("[video] camera stream attached to sink")
	return stream, nil
}

// Close releases the acquired stream, if any. It is safe to call more than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.stream == nil {
		return nil
	}
	s.sink.Detach()
	return s.stream.Close()
}
