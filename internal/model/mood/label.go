package mood

import "strings"

// Label 表示面部表情推断出的情绪标签。
type Label string

const (
	// Unset 表示尚未检测到任何情绪。
	Unset Label = ""

	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Fearful   Label = "fearful"
	Disgusted Label = "disgusted"
	Surprised Label = "surprised"
)

// Labels 是推断引擎可以返回的全部标签，顺序与引擎输出一致。
var Labels = []Label{Neutral, Happy, Sad, Angry, Fearful, Disgusted, Surprised}

// Parse 将引擎返回的原始字符串规范化为已知标签。
func Parse(raw string) (Label, bool) {
	normalized := Label(strings.ToLower(strings.TrimSpace(raw)))
	for _, label := range Labels {
		if label == normalized {
			return label, true
		}
	}
	return Unset, false
}

// IsSet 报告标签是否来自一次成功的检测。
func (l Label) IsSet() bool {
	return l != Unset
}

// Display 返回界面上展示的文本，未检测时显示占位符。
func (l Label) Display() string {
	if !l.IsSet() {
		return "Detecting..."
	}
	return string(l)
}
