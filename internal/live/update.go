package live

import (
	"encoding/json"
	"time"
)

// Update is one inbound live event. Any subset of fields may be present.
type Update struct {
	Transcript    *string
	Emotion       *string
	Engagement    *float64
	QuestionIndex *int // set when the server tags the event with its source question
	ReceivedAt    time.Time
}

// HasSignal reports whether the update carries scoring data.
func (u Update) HasSignal() bool {
	return u.Emotion != nil || u.Engagement != nil
}

func (u Update) empty() bool {
	return u.Transcript == nil && !u.HasSignal()
}

type payload struct {
	Transcript      *string  `json:"transcript"`
	Emotion         *string  `json:"emotion"`
	EngagementScore *float64 `json:"engagement_score"`
	Engagement      *float64 `json:"engagement"`
	QuestionIndex   *int     `json:"question_index"`
}

func (p payload) update() Update {
	u := Update{
		Transcript:    p.Transcript,
		Emotion:       p.Emotion,
		Engagement:    p.EngagementScore,
		QuestionIndex: p.QuestionIndex,
	}
	if u.Engagement == nil {
		u.Engagement = p.Engagement
	}
	return u
}

type envelope struct {
	Event string          `json:"event"`
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	payload
}

// decodeFrame accepts
//
//	{"event":"update","data":{...}}
//	{"transcript":"...","emotion":"...","engagement_score":0.4}
//	{"type":"transcript","data":"..."}
//	{"type":"metrics","data":{"emotion":"...","engagement":0.4}}
//
// ok is false for well-formed frames that carry nothing this client uses.
func decodeFrame(data []byte) (Update, bool, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Update{}, false, err
	}

	var u Update
	switch {
	case env.Type == "transcript":
		var text string
		if err := json.Unmarshal(env.Data, &text); err != nil {
			return Update{}, false, err
		}
		u = Update{Transcript: &text, QuestionIndex: env.QuestionIndex}
	case env.Type == "metrics" || env.Event == "update":
		var p payload
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &p); err != nil {
				return Update{}, false, err
			}
		}
		u = p.update()
		if u.QuestionIndex == nil {
			u.QuestionIndex = env.QuestionIndex
		}
	case env.Type == "" && env.Event == "":
		u = env.payload.update()
	default:
		return Update{}, false, nil
	}

	if u.empty() {
		return Update{}, false, nil
	}
	return u, true, nil
}
