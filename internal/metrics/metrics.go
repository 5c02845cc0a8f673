// Package metrics holds the Prometheus collectors for the session client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Tick outcomes.
const (
	OutcomeDetected = "detected"
	OutcomeNoFace   = "no_face"
	OutcomeNoFrame  = "no_frame"
	OutcomeError    = "error"
)

var (
	MoodTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodchat_mood_ticks_total",
		Help: "Mood detection ticks by outcome",
	}, []string{"outcome"})

	MoodTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "moodchat_mood_tick_duration_seconds",
		Help:    "Duration of one mood detection tick",
		Buckets: prometheus.DefBuckets,
	})

	ChannelState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "moodchat_channel_state",
		Help: "Channel connection state (0=disconnected, 1=connecting, 2=connected)",
	})

	ChannelReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodchat_channel_reconnects_total",
		Help: "Channel reconnection attempts",
	})

	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moodchat_messages_total",
		Help: "Messages appended to the history by sender",
	}, []string{"sender"})

	SendsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moodchat_sends_rejected_total",
		Help: "Sends rejected because the channel was not connected",
	})
)
