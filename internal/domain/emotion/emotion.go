// Package emotion maps primitive facial-expression scores to one labelled
// emotion. Classify is pure: identical input always yields identical output.
package emotion

import (
	"fmt"
	"math"
)

// Label is a classified emotion.
type Label string

// Basic labels, in argmax enumeration order.
const (
	Neutral   Label = "neutral"
	Happy     Label = "happy"
	Sad       Label = "sad"
	Angry     Label = "angry"
	Scared    Label = "scared"
	Disgusted Label = "disgusted"
	Surprised Label = "surprised"
)

// Compound labels derived from two or more primitives.
const (
	Confused    Label = "confused"
	Stressed    Label = "stressed"
	Overwhelmed Label = "overwhelmed"
	Bored       Label = "bored"
)

// Scores holds the seven primitive expression confidences, each in [0,1].
type Scores struct {
	Neutral   float64 `json:"neutral"`
	Happy     float64 `json:"happy"`
	Sad       float64 `json:"sad"`
	Angry     float64 `json:"angry"`
	Fearful   float64 `json:"fearful"`
	Disgusted float64 `json:"disgusted"`
	Surprised float64 `json:"surprised"`
}

// FromMap builds Scores from a name->score map. Unknown names are ignored and
// missing names are zero.
func FromMap(m map[string]float64) Scores {
	return Scores{
		Neutral:   m["neutral"],
		Happy:     m["happy"],
		Sad:       m["sad"],
		Angry:     m["angry"],
		Fearful:   m["fearful"],
		Disgusted: m["disgusted"],
		Surprised: m["surprised"],
	}
}

// Validate reports the first score outside [0,1].
func (s Scores) Validate() error {
	for _, f := range s.fields() {
		if math.IsNaN(f.v) || f.v < 0 || f.v > 1 {
			return fmt.Errorf("%w: %s=%v", ErrScoreOutOfRange, f.name, f.v)
		}
	}
	return nil
}

type namedScore struct {
	name string
	v    float64
}

func (s Scores) fields() []namedScore {
	return []namedScore{
		{"neutral", s.Neutral},
		{"happy", s.Happy},
		{"sad", s.Sad},
		{"angry", s.Angry},
		{"fearful", s.Fearful},
		{"disgusted", s.Disgusted},
		{"surprised", s.Surprised},
	}
}

// Classified is one immutable classification result. Confidence is the
// winning score and is never re-normalised.
type Classified struct {
	Label      Label   `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NoFace is the policy result emitted when a frame contains no face.
var NoFace = Classified{Label: Neutral, Confidence: 0.5} //nolint:gochecknoglobals // immutable value

// Classify applies the compound rules in priority order and falls back to an
// argmax over the basic labels, first label winning ties.
func Classify(s Scores) Classified {
	if score := s.Surprised*0.7 + s.Neutral*0.3; s.Surprised > 0.3 && s.Neutral > 0.2 && score > 0.35 {
		return Classified{Label: Confused, Confidence: score}
	}
	if score := s.Angry*0.35 + s.Fearful*0.35 + s.Sad*0.3; s.Angry > 0.2 && s.Fearful > 0.2 && score > 0.4 {
		return Classified{Label: Stressed, Confidence: score}
	}
	if score := s.Fearful*0.6 + s.Sad*0.4; s.Fearful > 0.35 && s.Sad > 0.25 && score > 0.45 {
		return Classified{Label: Overwhelmed, Confidence: score}
	}
	if score := s.Neutral*0.8 + s.Sad*0.2; s.Neutral > 0.6 && s.Sad > 0.1 && s.Happy < 0.2 && s.Surprised < 0.2 && score > 0.5 {
		return Classified{Label: Bored, Confidence: score}
	}
	return argmax(s)
}

func argmax(s Scores) Classified {
	basic := [...]Classified{
		{Neutral, s.Neutral},
		{Happy, s.Happy},
		{Sad, s.Sad},
		{Angry, s.Angry},
		{Scared, s.Fearful},
		{Disgusted, s.Disgusted},
		{Surprised, s.Surprised},
	}
	best := basic[0]
	for _, c := range basic[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best
}

// IsConcerning reports whether a label should be surfaced to monitors.
func IsConcerning(l Label) bool {
	switch l {
	case Sad, Angry, Scared, Disgusted:
		return true
	default:
		return false
	}
}

// Valid reports whether l is one of the eleven known labels.
func (l Label) Valid() bool {
	switch l {
	case Neutral, Happy, Sad, Angry, Scared, Disgusted, Surprised,
		Confused, Stressed, Overwhelmed, Bored:
		return true
	default:
		return false
	}
}
