package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-tavern/moodchat/internal/model/chat"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/channel"
	chatservice "github.com/zhouzirui/z-tavern/moodchat/internal/service/chat"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
)

type fakeChannel struct {
	mu      sync.Mutex
	state   channel.State
	sent    []string
	sendErr error
	started bool
	closed  bool

	// block, when set, holds Send until it is closed.
	block chan struct{}
}

func (f *fakeChannel) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return nil
}

func (f *fakeChannel) Send(_ context.Context, text string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeChannel) State() channel.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.state = channel.Disconnected
	return nil
}

type fixedMood mood.Label

func (m fixedMood) Current() mood.Label { return mood.Label(m) }

type blockingDetector struct {
	started chan struct{}
	stopped chan struct{}
}

func (d *blockingDetector) Run(ctx context.Context) {
	close(d.started)
	<-ctx.Done()
	close(d.stopped)
}

type deniedCamera struct{ closed bool }

func (c *deniedCamera) Acquire(context.Context) (video.Stream, error) {
	return nil, video.ErrPermissionDenied
}

func (c *deniedCamera) Close() error {
	c.closed = true
	return nil
}

func newSession(label mood.Label, state channel.State) (*Session, *chatservice.Store, *fakeChannel) {
	store := chatservice.NewStore()
	ch := &fakeChannel{state: state}
	s := New(Deps{
		History: store,
		Mood:    fixedMood(label),
		Channel: ch,
		Now:     func() time.Time { return time.Date(2024, 5, 1, 14, 3, 9, 0, time.UTC) },
	})
	return s, store, ch
}

func TestSendAnnotatesWithMood(t *testing.T) {
	s, store, ch := newSession(mood.Happy, channel.Connected)
	s.SetInput("hello")

	sent, err := s.Send(context.Background())
	require.NoError(t, err)
	assert.True(t, sent)

	snap := store.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "hello (Mood: happy)", snap[0].Text)
	assert.Equal(t, chat.SenderUser, snap[0].Sender)
	assert.Equal(t, "14:03:09", snap[0].Timestamp)
	assert.Equal(t, []string{"hello (Mood: happy)"}, ch.sent)
	assert.Equal(t, "", s.View().Input)
}

func TestSendWithUnsetMood(t *testing.T) {
	s, store, ch := newSession(mood.Unset, channel.Connected)
	s.SetInput("hi")

	_, err := s.Send(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hi (Mood: )", store.Snapshot()[0].Text)
	assert.Equal(t, []string{"hi (Mood: )"}, ch.sent)
}

func TestSendIgnoresWhitespaceInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n"} {
		s, store, ch := newSession(mood.Sad, channel.Connected)
		s.SetInput(input)

		for i := 0; i < 2; i++ {
			sent, err := s.Send(context.Background())
			require.NoError(t, err)
			assert.False(t, sent)
		}
		assert.Equal(t, 0, store.Len())
		assert.Empty(t, ch.sent)
	}
}

func TestSendRejectedWhileNotConnected(t *testing.T) {
	for _, state := range []channel.State{channel.Disconnected, channel.Connecting} {
		s, store, ch := newSession(mood.Happy, state)
		s.SetInput("hello")

		sent, err := s.Send(context.Background())
		assert.False(t, sent)
		assert.ErrorIs(t, err, channel.ErrChannelUnavailable)
		assert.Equal(t, 0, store.Len())
		assert.Empty(t, ch.sent)
		assert.Equal(t, "hello", s.View().Input)
	}
}

func TestSendWriteFailureKeepsMessage(t *testing.T) {
	s, store, ch := newSession(mood.Neutral, channel.Connected)
	ch.sendErr = errors.New("broken pipe")
	s.SetInput("still there?")

	sent, err := s.Send(context.Background())
	assert.True(t, sent)
	assert.Error(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestSlowWriteDoesNotBlockView(t *testing.T) {
	s, store, ch := newSession(mood.Sad, channel.Connected)
	ch.block = make(chan struct{})
	s.SetInput("are you there")

	result := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background())
		result <- err
	}()

	require.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, time.Millisecond)

	viewed := make(chan View, 1)
	go func() {
		s.SetInput("next")
		viewed <- s.View()
	}()
	select {
	case v := <-viewed:
		assert.Equal(t, "next", v.Input)
		require.Len(t, v.Messages, 1)
		assert.Equal(t, "are you there (Mood: sad)", v.Messages[0].Text)
	case <-time.After(time.Second):
		t.Fatal("View blocked behind an in-flight write")
	}

	close(ch.block)
	require.NoError(t, <-result)
	assert.Equal(t, []string{"are you there (Mood: sad)"}, ch.sent)
}

func TestViewProjection(t *testing.T) {
	s, store, _ := newSession(mood.Unset, channel.Connecting)

	view := s.View()
	assert.Equal(t, EmptyHistoryPlaceholder, view.Placeholder)
	assert.NotNil(t, view.Messages)
	assert.Equal(t, "Detecting...", view.MoodDisplay)
	assert.False(t, view.CanSend)
	assert.Equal(t, channel.Connecting, view.Connection)

	store.Append(chat.NewMessage(chat.SenderBot, "Hi there!", time.Now()))
	s.SetInput("  typed  ")
	view = s.View()
	assert.Empty(t, view.Placeholder)
	assert.True(t, view.CanSend)
	require.Len(t, view.Messages, 1)
}

func TestStartAndCloseLifecycle(t *testing.T) {
	store := chatservice.NewStore()
	ch := &fakeChannel{}
	det := &blockingDetector{started: make(chan struct{}), stopped: make(chan struct{})}
	cam := &deniedCamera{}

	s := New(Deps{History: store, Mood: fixedMood(mood.Unset), Channel: ch, Detector: det, Camera: cam})
	require.NoError(t, s.Start(context.Background()))
	<-det.started
	assert.True(t, ch.started)

	require.NoError(t, s.Close())
	select {
	case <-det.stopped:
	default:
		t.Fatal("detector still running after Close")
	}
	assert.True(t, ch.closed)
	assert.True(t, cam.closed)
	require.NoError(t, s.Close())
}

func TestAnnotate(t *testing.T) {
	assert.Equal(t, "hello (Mood: happy)", Annotate("hello", mood.Happy))
	assert.Equal(t, "hello (Mood: )", Annotate("hello", mood.Unset))
}
