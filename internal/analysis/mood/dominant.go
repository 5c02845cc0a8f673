package mood

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zhouzirui/z-tavern/moodchat/internal/model/mood"
)

// Scores 按引擎返回顺序保存每个情绪标签的得分。
type Scores = orderedmap.OrderedMap[mood.Label, float64]

// NewScores 创建空的得分表。
func NewScores() *Scores {
	return orderedmap.New[mood.Label, float64]()
}

// FromRaw 把引擎的原始得分表转换为已知标签的得分表，未知标签被丢弃。
func FromRaw(raw *orderedmap.OrderedMap[string, float64]) *Scores {
	scores := NewScores()
	if raw == nil {
		return scores
	}
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		label, ok := mood.Parse(pair.Key)
		if !ok {
			continue
		}
		if _, exists := scores.Get(label); exists {
			continue
		}
		scores.Set(label, pair.Value)
	}
	return scores
}

// Dominant 返回得分最高的标签；得分相同时保留最先出现的标签。
func Dominant(scores *Scores) (mood.Label, bool) {
	if scores == nil || scores.Len() == 0 {
		return mood.Unset, false
	}

	best := scores.Oldest()
	for pair := best.Next(); pair != nil; pair = pair.Next() {
		if pair.Value > best.Value {
			best = pair
		}
	}
	return best.Key, true
}
