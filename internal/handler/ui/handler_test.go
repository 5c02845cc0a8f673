package ui_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern/moodchat/internal/handler"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/chat"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/channel"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/session"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
)

type fakeSession struct {
	input   string
	sent    bool
	sendErr error
	view    session.View
}

func (f *fakeSession) View() session.View   { return f.view }
func (f *fakeSession) SetInput(text string) { f.input = text }
func (f *fakeSession) Send(context.Context) (bool, error) {
	return f.sent, f.sendErr
}

func setupRouter(fake *fakeSession) http.Handler {
	return handler.NewRouter(fake, nil)
}

func TestStateRendersView(t *testing.T) {
	view := session.Project([]chat.Message{chat.NewMessage(chat.SenderBot, "Hi there!", time.Now())},
		mood.Happy, "draft", channel.Connected)
	r := setupRouter(&fakeSession{view: view})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var got struct {
		Messages   []chat.Message `json:"messages"`
		Mood       string         `json:"mood"`
		Connection string         `json:"connection"`
		Input      string         `json:"input"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if got.Mood != "happy" || got.Connection != "connected" || got.Input != "draft" {
		t.Fatalf("unexpected state: %+v", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Text != "Hi there!" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestInputRequiresText(t *testing.T) {
	fake := &fakeSession{}
	r := setupRouter(fake)

	req := httptest.NewRequest(http.MethodPut, "/api/input", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/input", bytes.NewReader([]byte(`{"text":"hello"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	if fake.input != "hello" {
		t.Fatalf("expected input to be stored, got %q", fake.input)
	}
}

func TestSendStatusCodes(t *testing.T) {
	cases := []struct {
		name   string
		sent   bool
		err    error
		status int
	}{
		{name: "sent", sent: true, status: http.StatusAccepted},
		{name: "empty", status: http.StatusNoContent},
		{name: "rejected", err: channel.ErrChannelUnavailable, status: http.StatusServiceUnavailable},
		{name: "undelivered", sent: true, err: errors.New("broken pipe"), status: http.StatusBadGateway},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSession{sent: tc.sent, sendErr: tc.err}
			r := setupRouter(fake)

			req := httptest.NewRequest(http.MethodPost, "/api/send", bytes.NewReader([]byte(`{"text":"hello"}`)))
			req.Header.Set("Content-Type", "application/json")
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)

			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.Code)
			}
			if fake.input != "hello" {
				t.Fatalf("expected text to be buffered before send, got %q", fake.input)
			}
		})
	}
}

func TestSendWithoutBodyUsesBuffer(t *testing.T) {
	fake := &fakeSession{input: "buffered", sent: true}
	r := setupRouter(fake)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/send", nil))

	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.Code)
	}
	if fake.input != "buffered" {
		t.Fatalf("buffer should be untouched, got %q", fake.input)
	}
}

func TestPreview(t *testing.T) {
	sink := video.NewSink()
	r := handler.NewRouter(&fakeSession{}, sink)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/preview.jpg", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before the first frame, got %d", resp.Code)
	}

	jpeg := []byte{0xff, 0xd8, 0xff, 0xd9}
	sink.Put(video.Frame{Seq: 1, Data: jpeg})

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/preview.jpg", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !bytes.Equal(resp.Body.Bytes(), jpeg) {
		t.Fatalf("unexpected body % x", resp.Body.Bytes())
	}
}

func TestStreamSendsInitialState(t *testing.T) {
	view := session.Project(nil, mood.Unset, "", channel.Connecting)
	srv := httptest.NewServer(setupRouter(&fakeSession{view: view}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read event line: %v", err)
	}
	if event != "event: state\n" {
		t.Fatalf("expected state event, got %q", event)
	}

	data, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read data line: %v", err)
	}
	if !strings.Contains(data, session.EmptyHistoryPlaceholder) {
		t.Fatalf("expected placeholder in %q", data)
	}
}
