package video

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

// SnapshotConfig describes an HTTP camera that serves a JPEG per request.
type SnapshotConfig struct {
	URL      string
	Username string
	Password string
	FPS      float64
	Client   *http.Client
}

// SnapshotDevice polls a JPEG snapshot endpoint as a video-only stream.
type SnapshotDevice struct {
	cfg    SnapshotConfig
	client *http.Client
}

// NewSnapshotDevice validates cfg and returns a device.
func NewSnapshotDevice(cfg SnapshotConfig) (*SnapshotDevice, error) {
	if cfg.URL == "" {
		return nil, ErrNoDevice
	}
	if cfg.FPS <= 0 || cfg.FPS > 30 {
		return nil, fmt.Errorf("invalid camera fps %.2f (must be 0-30)", cfg.FPS)
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &SnapshotDevice{cfg: cfg, client: client}, nil
}

// Open fetches the first frame to confirm access, then polls in the background.
func (d *SnapshotDevice) Open(ctx context.Context) (Stream, error) {
	first, err := d.fetch(ctx)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	s := &snapshotStream{
		device: d,
		frames: make(chan Frame, 2),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.emit(first)

	go s.poll(streamCtx)
	return s, nil
}

func (d *SnapshotDevice) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	if d.cfg.Username != "" {
		req.SetBasicAuth(d.cfg.Username, d.cfg.Password)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d", ErrPermissionDenied, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("snapshot request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("snapshot body is empty")
	}
	return data, nil
}

type snapshotStream struct {
	device *SnapshotDevice
	frames chan Frame
	seq    atomic.Uint64
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *snapshotStream) Frames() <-chan Frame {
	return s.frames
}

func (s *snapshotStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		close(s.frames)
	})
	return nil
}

func (s *snapshotStream) poll(ctx context.Context) {
	defer close(s.done)

	interval := time.Duration(float64(time.Second) / s.device.cfg.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := s.device.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				glog.V(1).Infof("[video] snapshot poll failed: %v", err)
				continue
			}
			s.emit(data)
		}
	}
}

// emit never blocks; a full channel drops the frame.
func (s *snapshotStream) emit(data []byte) {
	frame := Frame{
		Seq:        s.seq.Add(1),
		Data:       data,
		CapturedAt: time.Now(),
	}
	select {
	case s.frames <- frame:
	default:
		glog.V(2).Infof("[video] dropped frame seq=%d", frame.Seq)
	}
}
