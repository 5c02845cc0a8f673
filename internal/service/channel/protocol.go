package channel

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Event kinds carried over the channel.
const (
	EventAIMessage         = "ai-message"
	EventAIMessageResponse = "ai-message-response"
)

// Envelope is one event frame: {"event": "<kind>", "data": "<payload>"}.
type Envelope struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

func encodeEnvelope(event, data string) ([]byte, error) {
	payload, err := sonic.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", event, err)
	}
	return payload, nil
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing event kind")
	}
	return env, nil
}
