// Package session wires user input, the current mood, the message history and
// the channel into one chat session.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/zhouzirui/z-tavern/moodchat/internal/metrics"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/chat"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/channel"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
)

// History is the append-only message store.
type History interface {
	Append(message chat.Message)
	Snapshot() []chat.Message
}

// MoodReader exposes the latest detected mood.
type MoodReader interface {
	Current() mood.Label
}

// Channel is the outbound side of the channel client plus its lifecycle.
type Channel interface {
	Start(ctx context.Context) error
	Send(ctx context.Context, text string) error
	State() channel.State
	Close() error
}

// Detector is the periodic mood task.
type Detector interface {
	Run(ctx context.Context)
}

// Camera acquires the video stream once.
type Camera interface {
	Acquire(ctx context.Context) (video.Stream, error)
	Close() error
}

// Deps are the collaborators of a Session. Detector and Camera may be nil, in
// which case the mood simply stays unset.
type Deps struct {
	History  History
	Mood     MoodReader
	Channel  Channel
	Detector Detector
	Camera   Camera
	Now      func() time.Time
}

// Session is the single owner of the chat screen state.
type Session struct {
	// sendMu 串行化发送动作，mu 只保护输入框，网络写入期间不持有 mu。
	sendMu sync.Mutex
	mu     sync.Mutex
	input  string

	history  History
	mood     MoodReader
	channel  Channel
	detector Detector
	camera   Camera
	now      func() time.Time

	stopDetector context.CancelFunc
	detectorDone chan struct{}
	closeOnce    sync.Once
}

// New creates a session from its collaborators.
func New(deps Deps) *Session {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		history:  deps.History,
		mood:     deps.Mood,
		channel:  deps.Channel,
		detector: deps.Detector,
		camera:   deps.Camera,
		now:      now,
	}
}

// Start connects the channel, requests the camera and schedules the mood task.
// Camera and channel failures degrade the session rather than abort it.
func (s *Session) Start(ctx context.Context) error {
	if err := s.channel.Start(ctx); err != nil {
		return fmt.Errorf("start channel: %w", err)
	}

	if s.camera != nil {
		if _, err := s.camera.Acquire(ctx); err != nil {
			glog.Warningf("[session] continuing without camera: %v", err)
		}
	}

	if s.detector != nil {
		detectorCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		s.mu.Lock()
		s.stopDetector = cancel
		s.detectorDone = done
		s.mu.Unlock()

		go func() {
			defer close(done)
			s.detector.Run(detectorCtx)
		}()
	}
	return nil
}

// SetInput replaces the input buffer.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// Send performs the user send action and reports whether a user message was
// appended to the history.
//
// Whitespace-only input is a no-op and reports (false, nil). When the channel
// is not Connected nothing is appended or transmitted, the input is kept, and
// an error wrapping channel.ErrChannelUnavailable is returned. If the write
// itself fails after the append, the message stays in the history and the
// error is returned alongside true.
func (s *Session) Send(ctx context.Context) (bool, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	if strings.TrimSpace(s.input) == "" {
		s.mu.Unlock()
		return false, nil
	}

	if state := s.channel.State(); state != channel.Connected {
		s.mu.Unlock()
		metrics.SendsRejected.Inc()
		return false, fmt.Errorf("send rejected: %w (state=%s)", channel.ErrChannelUnavailable, state)
	}

	// The user message is appended before the write so a reply can never
	// precede it in the history.
	text := Annotate(s.input, s.mood.Current())
	s.history.Append(chat.NewMessage(chat.SenderUser, text, s.now()))
	s.input = ""
	s.mu.Unlock()

	if err := s.channel.Send(ctx, text); err != nil {
		glog.Warningf("[session] message stored but not delivered: %v", err)
		return true, err
	}
	return true, nil
}

// View projects the current state for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	input := s.input
	s.mu.Unlock()

	return Project(s.history.Snapshot(), s.mood.Current(), input, s.channel.State())
}

// Close cancels the mood task and waits for it, then releases the channel and
// the camera.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		stop, done := s.stopDetector, s.detectorDone
		s.mu.Unlock()

		if stop != nil {
			stop()
			<-done
		}

		if cerr := s.channel.Close(); cerr != nil {
			err = fmt.Errorf("close channel: %w", cerr)
		}
		if s.camera != nil {
			if cerr := s.camera.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("close camera: %w", cerr)
			}
		}
		glog.Info("[session] closed")
	})
	return err
}
