package session

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/z-tavern/moodchat/internal/model/chat"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/channel"
)

// EmptyHistoryPlaceholder is shown while no message has been exchanged.
const EmptyHistoryPlaceholder = "Start a conversation..."

// View is the rendered state of the chat screen.
type View struct {
	Messages    []chat.Message `json:"messages"`
	Placeholder string         `json:"placeholder,omitempty"`
	Mood        mood.Label     `json:"mood"`
	MoodDisplay string         `json:"moodDisplay"`
	Input       string         `json:"input"`
	CanSend     bool           `json:"canSend"`
	Connection  channel.State  `json:"connection"`
}

// Annotate tags user text with the mood label. An unset mood renders as an
// empty label.
func Annotate(input string, label mood.Label) string {
	return fmt.Sprintf("%s (Mood: %s)", input, string(label))
}

// Project renders a view from a history snapshot, the mood label, the input
// buffer and the connection state. It has no side effects.
func Project(messages []chat.Message, label mood.Label, input string, state channel.State) View {
	view := View{
		Messages:    messages,
		Mood:        label,
		MoodDisplay: label.Display(),
		Input:       input,
		CanSend:     strings.TrimSpace(input) != "",
		Connection:  state,
	}
	if len(messages) == 0 {
		view.Messages = []chat.Message{}
		view.Placeholder = EmptyHistoryPlaceholder
	}
	return view
}
