// Package vision defines the face and expression inference boundary and its
// engine implementations.
package vision

import (
	"context"
	"errors"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	analysis "github.com/zhouzirui/z-tavern/moodchat/internal/analysis/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
)

var (
	ErrEngineNotLoaded = errors.New("inference engine not loaded")
	ErrNoExpressions   = errors.New("no known expression labels in engine output")
)

// Box is a face bounding box in pixel coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Face is one candidate face region.
//
// Engines that classify expressions during detection attach them to
// Expressions so a second pass is not needed.
type Face struct {
	Box         Box
	Score       float64
	Expressions *analysis.Scores
}

// Engine runs face localization and expression inference on a frame.
// DetectFaces returns candidates in the engine's natural order.
type Engine interface {
	DetectFaces(ctx context.Context, frame video.Frame) ([]Face, error)
	Expressions(ctx context.Context, frame video.Frame, face Face) (*analysis.Scores, error)
}

// wireFace is the JSON shape of a detection shared by the engines.
type wireFace struct {
	Box         Box                                     `json:"box"`
	Score       float64                                 `json:"score"`
	Expressions *orderedmap.OrderedMap[string, float64] `json:"expressions,omitempty"`
}

type wireFaces struct {
	Faces []wireFace `json:"faces"`
}

func (w wireFaces) toFaces() []Face {
	faces := make([]Face, 0, len(w.Faces))
	for _, f := range w.Faces {
		face := Face{Box: f.Box, Score: f.Score}
		if f.Expressions != nil {
			face.Expressions = analysis.FromRaw(f.Expressions)
		}
		faces = append(faces, face)
	}
	return faces
}

func knownScores(raw *orderedmap.OrderedMap[string, float64]) (*analysis.Scores, error) {
	scores := analysis.FromRaw(raw)
	if scores.Len() == 0 {
		return nil, ErrNoExpressions
	}
	return scores, nil
}
