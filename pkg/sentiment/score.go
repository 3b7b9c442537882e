package sentiment

import (
	"math"
	"strings"
)

type Classification string

const (
	Positive Classification = "positive"
	Neutral  Classification = "neutral"
	Negative Classification = "negative"
)

const (
	toneWeight             = 0.25
	emotionPolarityWeight  = 0.25
	emotionIntensityWeight = 0.15
	rhetoricPolarityWeight = 0.15
	loadedLanguageWeight   = 0.10
	certaintyWeight        = 0.10

	classifyThreshold = 0.1
)

// Score turns an analysis into a polarity in [-1, 1], rounded to four
// decimal places. Missing sub-structures count as all-zero vectors.
func Score(a Analysis) float64 {
	var e Emotions
	if a.Emotions != nil {
		e = *a.Emotions
	}
	var r Rhetoric
	if a.Rhetoric != nil {
		r = *a.Rhetoric
	}
	var c Certainty
	if a.Certainty != nil {
		c = *a.Certainty
	}

	var tone float64
	switch a.Tone {
	case TonePositive:
		tone = 1
	case ToneNegative:
		tone = -1
	}

	emotionPolarity := (e.Joy + e.Trust - e.Anger - e.Fear - e.Sadness - e.Disgust) / 6
	emotionIntensity := (e.Joy + e.Trust + e.Fear + e.Anger + e.Sadness + e.Disgust + e.Anticipation + e.Surprise) / 8
	rhetoricPolarity := (r.Supportive + r.Analytical - r.Alarmist - r.Dismissive - r.Sarcastic) / 5
	loaded := -a.LoadedLanguage
	certainty := c.Certainty - c.Speculation

	score := toneWeight*tone +
		emotionPolarityWeight*emotionPolarity +
		emotionIntensityWeight*emotionIntensity +
		rhetoricPolarityWeight*rhetoricPolarity +
		loadedLanguageWeight*loaded +
		certaintyWeight*certainty

	score = clamp(score, -1, 1)
	return math.Round(score*1e4) / 1e4
}

// Classify buckets a score; the closed band [-0.1, 0.1] is neutral.
func Classify(score float64) Classification {
	switch {
	case score > classifyThreshold:
		return Positive
	case score < -classifyThreshold:
		return Negative
	default:
		return Neutral
	}
}

// Label is the capitalised classification, used as a display token.
func Label(score float64) string {
	c := string(Classify(score))
	return strings.ToUpper(c[:1]) + c[1:]
}
