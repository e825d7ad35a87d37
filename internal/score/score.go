// Package score derives the displayed positivity and engagement from the most
// recent live signal. Each signal replaces the previous state wholesale.
package score

import (
	"math"
	"strings"
	"time"
)

const (
	emotionWeight    = 0.6
	engagementWeight = 0.4
	unknownWeight    = 0.5
	neutral          = 0.5
)

var weights = map[string]float64{
	"happy":    1.0,
	"surprise": 0.8,
	"neutral":  0.8,
	"sad":      0.3,
	"fear":     0.2,
	"angry":    0.1,
	"disgust":  0.1,
}

// EmotionWeight maps a facial emotion label to its positivity weight.
// Unrecognized labels weigh 0.5.
func EmotionWeight(label string) float64 {
	if w, ok := weights[strings.ToLower(strings.TrimSpace(label))]; ok {
		return w
	}
	return unknownWeight
}

// Signal is one inbound scoring event.
type Signal struct {
	Emotion       string
	HasEmotion    bool
	Engagement    float64
	HasEngagement bool
	At            time.Time
}

// State is the score shown for the current question.
type State struct {
	Positivity float64
	Engagement float64
	Emotion    string
	UpdatedAt  time.Time
}

// Initial is the state shown before any signal arrives.
func Initial() State {
	return State{Positivity: neutral, Engagement: neutral}
}

// Aggregator holds the latest derived State.
type Aggregator struct {
	state State
}

func NewAggregator() *Aggregator {
	return &Aggregator{state: Initial()}
}

// Apply replaces the state with one derived from s alone.
func (a *Aggregator) Apply(s Signal) State {
	engagement := neutral
	if s.HasEngagement {
		engagement = clamp01(s.Engagement)
	}
	weight := unknownWeight
	if s.HasEmotion {
		weight = EmotionWeight(s.Emotion)
	}

	a.state = State{
		Positivity: clamp01(emotionWeight*weight + engagementWeight*engagement),
		Engagement: engagement,
		Emotion:    s.Emotion,
		UpdatedAt:  s.At,
	}
	return a.state
}

func (a *Aggregator) State() State {
	return a.state
}

func (a *Aggregator) Reset() {
	a.state = Initial()
}

// Percent renders a [0,1] score as a whole percentage.
func Percent(v float64) int {
	return int(math.Round(clamp01(v) * 100))
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return max(0, min(1, v))
}
