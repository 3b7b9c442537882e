package sentiment

import (
	"errors"
	"fmt"
)

const (
	TonePositive = "positive"
	ToneNeutral  = "neutral"
	ToneNegative = "negative"
)

var ErrInvalidTone = errors.New("invalid tone")

// Analysis is the structured payload the scoring service produces for the
// sentiment path. Numeric fields default to 0 when the service omits them.
type Analysis struct {
	Tone           string     `json:"tone"`
	Emotions       *Emotions  `json:"emotions,omitempty"`
	Rhetoric       *Rhetoric  `json:"rhetoric,omitempty"`
	LoadedLanguage float64    `json:"loaded_language"`
	Certainty      *Certainty `json:"certainty,omitempty"`
}

type Emotions struct {
	Joy          float64 `json:"joy"`
	Trust        float64 `json:"trust"`
	Fear         float64 `json:"fear"`
	Anger        float64 `json:"anger"`
	Sadness      float64 `json:"sadness"`
	Anticipation float64 `json:"anticipation"`
	Disgust      float64 `json:"disgust"`
	Surprise     float64 `json:"surprise"`
}

type Rhetoric struct {
	Analytical float64 `json:"analytical"`
	Supportive float64 `json:"supportive"`
	Persuasive float64 `json:"persuasive"`
	Alarmist   float64 `json:"alarmist"`
	Dismissive float64 `json:"dismissive"`
	Sarcastic  float64 `json:"sarcastic"`
}

type Certainty struct {
	Certainty   float64 `json:"certainty"`
	Speculation float64 `json:"speculation"`
}

// Validate only checks the tone: every numeric field has a usable default.
func (a *Analysis) Validate() error {
	switch a.Tone {
	case TonePositive, ToneNeutral, ToneNegative:
		return nil
	case "":
		return fmt.Errorf("%w: missing", ErrInvalidTone)
	default:
		return fmt.Errorf("%w: %q", ErrInvalidTone, a.Tone)
	}
}

// Normalize clamps every dimension into [0, 1].
func (a *Analysis) Normalize() {
	a.LoadedLanguage = unit(a.LoadedLanguage)

	if e := a.Emotions; e != nil {
		for _, v := range []*float64{&e.Joy, &e.Trust, &e.Fear, &e.Anger, &e.Sadness, &e.Anticipation, &e.Disgust, &e.Surprise} {
			*v = unit(*v)
		}
	}
	if r := a.Rhetoric; r != nil {
		for _, v := range []*float64{&r.Analytical, &r.Supportive, &r.Persuasive, &r.Alarmist, &r.Dismissive, &r.Sarcastic} {
			*v = unit(*v)
		}
	}
	if c := a.Certainty; c != nil {
		c.Certainty = unit(c.Certainty)
		c.Speculation = unit(c.Speculation)
	}
}

func unit(v float64) float64 {
	return clamp(v, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
