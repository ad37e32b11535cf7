package tone

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tone is the closed set of message registers the agent recognises.
// The declaration order doubles as the tie-break order for every argmax.
type Tone uint8

const (
	Casual Tone = iota
	Formal
	Playful
	Caring
	Business
	Romantic
	Friendly
	Serious

	NumTones = int(Serious) + 1
)

var toneNames = [NumTones]string{
	Casual:   "casual",
	Formal:   "formal",
	Playful:  "playful",
	Caring:   "caring",
	Business: "business",
	Romantic: "romantic",
	Friendly: "friendly",
	Serious:  "serious",
}

// All returns every tone in enumeration order.
func All() []Tone {
	out := make([]Tone, NumTones)
	for i := range out {
		out[i] = Tone(i)
	}
	return out
}

func (t Tone) String() string {
	if int(t) < NumTones {
		return toneNames[t]
	}
	return fmt.Sprintf("tone(%d)", uint8(t))
}

// Valid reports whether t belongs to the enumeration.
func (t Tone) Valid() bool {
	return int(t) < NumTones
}

// Parse maps a tone name (case-insensitive) to its Tone.
func Parse(name string) (Tone, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range toneNames {
		if n == name {
			return Tone(i), true
		}
	}
	return Casual, false
}

// ParseOrDefault parses name and returns Casual when it is unknown.
func ParseOrDefault(name string) Tone {
	t, _ := Parse(name)
	return t
}

func (t Tone) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tone %d", uint8(t))
	}
	return []byte(t.String()), nil
}

func (t *Tone) UnmarshalText(text []byte) error {
	parsed, ok := Parse(string(text))
	if !ok {
		return fmt.Errorf("unknown tone %q", string(text))
	}
	*t = parsed
	return nil
}

// Scores holds one value per tone, indexed by Tone.
type Scores [NumTones]float64

// Get returns the score of t.
func (s Scores) Get(t Tone) float64 {
	return s[t]
}

// Sum returns the total over all tones.
func (s Scores) Sum() float64 {
	var total float64
	for _, v := range s {
		total += v
	}
	return total
}

// Argmax returns the highest scoring tone; ties resolve to the earlier tone.
func (s Scores) Argmax() (Tone, float64) {
	best := Casual
	bestScore := s[Casual]
	for i := 1; i < NumTones; i++ {
		if s[i] > bestScore {
			best = Tone(i)
			bestScore = s[i]
		}
	}
	return best, bestScore
}

// Map converts the scores into a name keyed map for transport layers.
func (s Scores) Map() map[string]float64 {
	out := make(map[string]float64, NumTones)
	for i, v := range s {
		out[toneNames[i]] = v
	}
	return out
}

func (s Scores) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Map())
}

func (s *Scores) UnmarshalJSON(data []byte) error {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var out Scores
	for name, v := range raw {
		t, ok := Parse(name)
		if !ok {
			return fmt.Errorf("unknown tone %q in scores", name)
		}
		out[t] = v
	}
	*s = out
	return nil
}
