package mood

import (
	"sync/atomic"

	"github.com/zhouzirui/z-tavern/moodchat/internal/model/mood"
)

// State holds the most recently detected mood label. Only the Detector that
// owns it writes; everyone else reads through Current.
type State struct {
	label atomic.Value
}

// NewState returns a state holding the Unset sentinel.
func NewState() *State {
	s := &State{}
	s.label.Store(mood.Unset)
	return s
}

// Current returns the latest label, or mood.Unset before the first detection.
func (s *State) Current() mood.Label {
	return s.label.Load().(mood.Label)
}

func (s *State) publish(label mood.Label) {
	s.label.Store(label)
}
