package video

import "sync"

// Sink keeps only the latest frame of an attached stream. Frames are
// overwritten, never queued, so readers always sample the freshest image.
type Sink struct {
	mu      sync.RWMutex
	latest  Frame
	has     bool
	drops   uint64
	stop    chan struct{}
	stopped chan struct{}
}

// NewSink creates an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Attach starts copying frames from stream into the sink. A previously
// attached stream is detached first.
func (s *Sink) Attach(stream Stream) {
	s.Detach()

	stop := make(chan struct{})
	stopped := make(chan struct{})

	s.mu.Lock()
	s.stop = stop
	s.stopped = stopped
	s.mu.Unlock()

	go func() {
		defer close(stopped)
		frames := stream.Frames()
		for {
			select {
			case <-stop:
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				s.Put(frame)
			}
		}
	}()
}

// Detach stops the pump of the currently attached stream and waits for it.
func (s *Sink) Detach() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop, s.stopped = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}

// Put overwrites the latest frame.
func (s *Sink) Put(frame Frame) {
	s.mu.Lock()
	if s.has {
		s.drops++
	}
	s.latest = frame
	s.has = true
	s.mu.Unlock()
}

// Current returns the latest frame and whether any frame has arrived yet.
func (s *Sink) Current() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.has
}

// Overwrites reports how many frames were replaced by a newer one.
func (s *Sink) Overwrites() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drops
}
