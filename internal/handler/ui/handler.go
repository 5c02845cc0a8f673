package ui

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang/glog"

	"github.com/zhouzirui/z-tavern/moodchat/internal/service/channel"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/session"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
	"github.com/zhouzirui/z-tavern/moodchat/pkg/utils"
)

// Session is the chat session rendered by the handler.
type Session interface {
	View() session.View
	SetInput(text string)
	Send(ctx context.Context) (bool, error)
}

// Preview exposes the latest camera frame.
type Preview interface {
	Current() (video.Frame, bool)
}

// Handler 聊天界面的HTTP处理器
type Handler struct {
	session        Session
	preview        Preview
	streamInterval time.Duration
}

// New 创建界面处理器；preview 可以为空
func New(s Session, preview Preview) *Handler {
	return &Handler{
		session:        s,
		preview:        preview,
		streamInterval: time.Second,
	}
}

// RegisterRoutes 注册界面相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Get("/stream", h.handleStream)
	r.Put("/input", h.handleInput)
	r.Post("/send", h.handleSend)
}

// HandlePreview 返回最新的摄像头画面
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	if h.preview == nil {
		utils.RespondError(w, http.StatusNotFound, "camera unavailable")
		return
	}
	frame, ok := h.preview.Current()
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "no frame yet")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(frame.Data); err != nil {
		glog.V(1).Infof("[ui] write preview failed: %v", err)
	}
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.session.View())
}

type inputPayload struct {
	Text *string `json:"text"`
}

func (h *Handler) handleInput(w http.ResponseWriter, r *http.Request) {
	var payload inputPayload
	ok, err := utils.DecodeJSON(r, &payload)
	if err != nil || !ok || payload.Text == nil {
		utils.RespondError(w, http.StatusBadRequest, "text is required")
		return
	}

	h.session.SetInput(*payload.Text)
	w.WriteHeader(http.StatusNoContent)
}

// handleSend 可选地先写入输入框，再执行发送
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload inputPayload
	if _, err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Text != nil {
		h.session.SetInput(*payload.Text)
	}

	sent, err := h.session.Send(r.Context())
	switch {
	case err != nil && !sent && errors.Is(err, channel.ErrChannelUnavailable):
		utils.RespondError(w, http.StatusServiceUnavailable, "channel not connected")
	case err != nil:
		glog.Warningf("[ui] send failed after append: %v", err)
		utils.RespondError(w, http.StatusBadGateway, "message stored but not delivered")
	case !sent:
		w.WriteHeader(http.StatusNoContent)
	default:
		utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
	}
}

// handleStream 通过 SSE 推送界面状态，状态变化时立即推送
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)

	ctx := r.Context()
	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	last := h.session.View()
	if err := utils.SendSSEEvent(w, flusher, "state", last); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			view := h.session.View()
			if reflect.DeepEqual(view, last) {
				if err := utils.SendSSEEvent(w, flusher, "heartbeat", map[string]string{
					"time": t.UTC().Format(time.RFC3339),
				}); err != nil {
					return
				}
				continue
			}
			last = view
			if err := utils.SendSSEEvent(w, flusher, "state", view); err != nil {
				return
			}
		}
	}
}
