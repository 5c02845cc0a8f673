// Package mood periodically samples the camera sink, runs face and expression
// inference, and publishes the dominant mood label.
package mood

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	analysis "github.com/zhouzirui/z-tavern/moodchat/internal/analysis/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/metrics"
	"github.com/zhouzirui/z-tavern/moodchat/internal/model/mood"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/video"
	"github.com/zhouzirui/z-tavern/moodchat/internal/service/vision"
)

// DefaultInterval is the pause between the end of one tick and the start of the next.
const DefaultInterval = time.Second

// FrameSampler returns the current frame of the video sink.
type FrameSampler interface {
	Current() (video.Frame, bool)
}

// Outcome describes what a single tick observed.
type Outcome string

const (
	Detected Outcome = metrics.OutcomeDetected
	NoFace   Outcome = metrics.OutcomeNoFace
	NoFrame  Outcome = metrics.OutcomeNoFrame
	Failed   Outcome = metrics.OutcomeError
)

// Detector runs the mood inference loop. Ticks are serialized: the next tick
// is armed only after the previous one has finished, so slow inference never
// overlaps.
type Detector struct {
	sampler  FrameSampler
	engine   vision.Engine
	state    *State
	interval time.Duration
}

// NewDetector wires a sampler and engine to state. A non-positive interval
// falls back to DefaultInterval.
func NewDetector(sampler FrameSampler, engine vision.Engine, state *State, interval time.Duration) *Detector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Detector{
		sampler:  sampler,
		engine:   engine,
		state:    state,
		interval: interval,
	}
}

// State returns the state this detector publishes to.
func (d *Detector) State() *State {
	return d.state
}

// Run executes ticks until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) {
	glog.Infof("[mood] detector started interval=%s", d.interval)
	defer glog.Info("[mood] detector stopped")

	timer := time.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			d.Tick(ctx)
			timer.Reset(d.interval)
		}
	}
}

// Tick performs one detection. Failures are absorbed: the published label is
// left untouched and the error only shows up in logs and metrics.
func (d *Detector) Tick(ctx context.Context) Outcome {
	start := time.Now()
	outcome, label, err := d.detect(ctx)
	metrics.MoodTickDuration.Observe(time.Since(start).Seconds())
	metrics.MoodTicks.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case Detected:
		d.state.publish(label)
		glog.V(2).Infof("[mood] detected %s", label)
	case Failed:
		if !errors.Is(err, context.Canceled) {
			glog.V(1).Infof("[mood] tick failed: %v", err)
		}
	}
	return outcome
}

func (d *Detector) detect(ctx context.Context) (Outcome, mood.Label, error) {
	if d.engine == nil {
		return Failed, mood.Unset, vision.ErrEngineNotLoaded
	}

	frame, ok := d.sampler.Current()
	if !ok {
		return NoFrame, mood.Unset, nil
	}

	faces, err := d.engine.DetectFaces(ctx, frame)
	if err != nil {
		return Failed, mood.Unset, err
	}
	if len(faces) == 0 {
		return NoFace, mood.Unset, nil
	}

	// First candidate in engine order; no size or confidence ranking.
	scores, err := d.engine.Expressions(ctx, frame, faces[0])
	if err != nil {
		return Failed, mood.Unset, err
	}

	label, ok := analysis.Dominant(scores)
	if !ok {
		return Failed, mood.Unset, fmt.Errorf("no expression scores for face")
	}
	return Detected, label, nil
}
