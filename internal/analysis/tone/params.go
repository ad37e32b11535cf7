package tone

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

// Rule is one row of the keyword table.
type Rule struct {
	Keywords []string `yaml:"keywords" toml:"keywords"`
	Weight   float64  `yaml:"weight" toml:"weight"`
}

// RuleTable is indexed by tone. Tones without keywords score zero before nudges.
type RuleTable [model.NumTones]Rule

// UnmarshalYAML accepts a mapping keyed by tone name and overrides only the listed tones.
func (rt *RuleTable) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]Rule
	if err := node.Decode(&raw); err != nil {
		return err
	}
	for name, rule := range raw {
		t, ok := model.Parse(name)
		if !ok {
			return goerr.New("unknown tone in rule table", goerr.V("tone", name))
		}
		rt[t] = rule
	}
	return nil
}

// UnmarshalTOML is the TOML counterpart of UnmarshalYAML.
func (rt *RuleTable) UnmarshalTOML(data any) error {
	raw, ok := data.(map[string]any)
	if !ok {
		return goerr.New("rule table must be a table keyed by tone")
	}
	for name, v := range raw {
		t, ok := model.Parse(name)
		if !ok {
			return goerr.New("unknown tone in rule table", goerr.V("tone", name))
		}
		fields, ok := v.(map[string]any)
		if !ok {
			return goerr.New("rule must be a table", goerr.V("tone", name))
		}
		rule, err := ruleFromTOML(fields)
		if err != nil {
			return goerr.Wrap(err, "invalid rule", goerr.V("tone", name))
		}
		rt[t] = rule
	}
	return nil
}

func ruleFromTOML(fields map[string]any) (Rule, error) {
	var rule Rule
	for key, v := range fields {
		switch key {
		case "keywords":
			list, ok := v.([]any)
			if !ok {
				return Rule{}, goerr.New("keywords must be an array")
			}
			for _, kw := range list {
				s, ok := kw.(string)
				if !ok {
					return Rule{}, goerr.New("keyword must be a string", goerr.V("value", kw))
				}
				rule.Keywords = append(rule.Keywords, s)
			}
		case "weight":
			switch w := v.(type) {
			case float64:
				rule.Weight = w
			case int64:
				rule.Weight = float64(w)
			default:
				return Rule{}, goerr.New("weight must be a number", goerr.V("value", v))
			}
		default:
			return Rule{}, goerr.New("unknown rule field", goerr.V("field", key))
		}
	}
	return rule, nil
}

// Nudges are the structural adjustments applied after keyword scoring.
type Nudges struct {
	PlayfulPerExclamation float64 `yaml:"playful_per_exclamation" toml:"playful_per_exclamation"`
	CapsRatioThreshold    float64 `yaml:"caps_ratio_threshold" toml:"caps_ratio_threshold"`
	CapsBusinessBoost     float64 `yaml:"caps_business_boost" toml:"caps_business_boost"`
	QuestionFormalBoost   float64 `yaml:"question_formal_boost" toml:"question_formal_boost"`
	LongMessageWords      int     `yaml:"long_message_words" toml:"long_message_words"`
	LongFormalBoost       float64 `yaml:"long_formal_boost" toml:"long_formal_boost"`
	ShortMessageWords     int     `yaml:"short_message_words" toml:"short_message_words"`
	ShortCasualBoost      float64 `yaml:"short_casual_boost" toml:"short_casual_boost"`
}

// FusionParams control how vector and rule estimates are blended.
type FusionParams struct {
	VectorTrust     float64 `yaml:"vector_trust" toml:"vector_trust"`
	RuleTrust       float64 `yaml:"rule_trust" toml:"rule_trust"`
	PrimaryWeight   float64 `yaml:"primary_weight" toml:"primary_weight"`
	SecondaryWeight float64 `yaml:"secondary_weight" toml:"secondary_weight"`
}

// VectorParams control the similarity resolver.
type VectorParams struct {
	SimilarityWeight          float64 `yaml:"similarity_weight" toml:"similarity_weight"`
	ConfidenceWeight          float64 `yaml:"confidence_weight" toml:"confidence_weight"`
	GroupThreshold            float64 `yaml:"group_threshold" toml:"group_threshold"`
	AcceptThreshold           float64 `yaml:"accept_threshold" toml:"accept_threshold"`
	UserTopK                  int     `yaml:"user_top_k" toml:"user_top_k"`
	RelationshipTopK          int     `yaml:"relationship_top_k" toml:"relationship_top_k"`
	RelationshipMinSimilarity float64 `yaml:"relationship_min_similarity" toml:"relationship_min_similarity"`
}

// Params gathers every tunable constant of the tone engine. The defaults reproduce the
// behaviour of the production heuristics; they are tuned by inspection, not learned.
type Params struct {
	Rules               RuleTable    `yaml:"rules" toml:"rules"`
	Nudges              Nudges       `yaml:"nudges" toml:"nudges"`
	RuleFloor           float64      `yaml:"rule_floor" toml:"rule_floor"`
	FallbackConfidence  float64      `yaml:"fallback_confidence" toml:"fallback_confidence"`
	FormalKeywords      []string     `yaml:"formal_keywords" toml:"formal_keywords"`
	InformalKeywords    []string     `yaml:"informal_keywords" toml:"informal_keywords"`
	IntensityIndicators []string     `yaml:"intensity_indicators" toml:"intensity_indicators"`
	Fusion              FusionParams `yaml:"fusion" toml:"fusion"`
	Vector              VectorParams `yaml:"vector" toml:"vector"`
}

// DefaultParams returns the production constants.
func DefaultParams() Params {
	var rules RuleTable
	rules[model.Formal] = Rule{Weight: 1.0, Keywords: []string{"dear", "sir", "madam", "please", "thank you", "regards", "sincerely", "kindly"}}
	rules[model.Casual] = Rule{Weight: 1.0, Keywords: []string{"hey", "hi", "hello", "what's up", "how's it going", "yeah", "yep"}}
	rules[model.Playful] = Rule{Weight: 1.2, Keywords: []string{"haha", "lol", "😂", "🤣", "funny", "crazy", "awesome", "cool"}}
	rules[model.Caring] = Rule{Weight: 1.1, Keywords: []string{"love", "care", "miss", "❤️", "💕", "worried", "hope", "safe"}}
	rules[model.Business] = Rule{Weight: 1.0, Keywords: []string{"meeting", "project", "deadline", "report", "schedule", "appointment"}}
	rules[model.Romantic] = Rule{Weight: 1.3, Keywords: []string{"baby", "babe", "honey", "sweetheart", "my love", "💕", "😘", "kiss"}}

	return Params{
		Rules: rules,
		Nudges: Nudges{
			PlayfulPerExclamation: 0.1,
			CapsRatioThreshold:    0.3,
			CapsBusinessBoost:     0.2,
			QuestionFormalBoost:   0.1,
			LongMessageWords:      20,
			LongFormalBoost:       0.1,
			ShortMessageWords:     5,
			ShortCasualBoost:      0.1,
		},
		RuleFloor:           0.3,
		FallbackConfidence:  0.5,
		FormalKeywords:      []string{"please", "thank you", "sir", "madam", "kindly", "regards", "sincerely", "hereby", "furthermore"},
		InformalKeywords:    []string{"yeah", "yep", "nah", "gonna", "wanna", "lol", "haha", "😂", "👍", "sup", "dude"},
		IntensityIndicators: []string{"!", "!!!", "😍", "😭", "😂", "❤️", "💕", "🔥", "AMAZING", "TERRIBLE", "LOVE", "HATE"},
		Fusion: FusionParams{
			VectorTrust:     0.7,
			RuleTrust:       0.6,
			PrimaryWeight:   0.7,
			SecondaryWeight: 0.3,
		},
		Vector: VectorParams{
			SimilarityWeight:          0.7,
			ConfidenceWeight:          0.3,
			GroupThreshold:            0.6,
			AcceptThreshold:           0.7,
			UserTopK:                  5,
			RelationshipTopK:          3,
			RelationshipMinSimilarity: 0.6,
		},
	}
}

// LoadParams overlays YAML overrides on top of DefaultParams.
func LoadParams(r io.Reader) (Params, error) {
	params := DefaultParams()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&params); err != nil && err != io.EOF {
		return Params{}, goerr.Wrap(err, "failed to decode tone params")
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// LoadParamsTOML overlays TOML overrides on top of DefaultParams.
func LoadParamsTOML(r io.Reader) (Params, error) {
	params := DefaultParams()
	md, err := toml.NewDecoder(r).Decode(&params)
	if err != nil {
		return Params{}, goerr.Wrap(err, "failed to decode tone params")
	}
	for _, key := range md.Undecoded() {
		// rules 由 RuleTable.UnmarshalTOML 自行校验
		if len(key) > 0 && key[0] == "rules" {
			continue
		}
		return Params{}, goerr.New("unknown tone param", goerr.V("key", key.String()))
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// LoadParamsFile reads overrides from path; an empty path yields the defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func LoadParamsFile(path string) (Params, error) {
	if path == "" {
		return DefaultParams(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Params{}, goerr.Wrap(err, "failed to open tone params file", goerr.V("path", path))
	}
	defer f.Close()

	load := LoadParams
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		load = LoadParamsTOML
	}
	params, err := load(f)
	if err != nil {
		return Params{}, goerr.Wrap(err, "invalid tone params file", goerr.V("path", path))
	}
	return params, nil
}

// Validate checks that thresholds and weights are usable.
func (p Params) Validate() error {
	unit := map[string]float64{
		"rule_floor":                         p.RuleFloor,
		"fallback_confidence":                p.FallbackConfidence,
		"fusion.vector_trust":                p.Fusion.VectorTrust,
		"fusion.rule_trust":                  p.Fusion.RuleTrust,
		"fusion.primary_weight":              p.Fusion.PrimaryWeight,
		"fusion.secondary_weight":            p.Fusion.SecondaryWeight,
		"vector.similarity_weight":           p.Vector.SimilarityWeight,
		"vector.confidence_weight":           p.Vector.ConfidenceWeight,
		"vector.group_threshold":             p.Vector.GroupThreshold,
		"vector.accept_threshold":            p.Vector.AcceptThreshold,
		"vector.relationship_min_similarity": p.Vector.RelationshipMinSimilarity,
	}
	for name, v := range unit {
		if v < 0 || v > 1 {
			return goerr.New("tone param out of [0,1]", goerr.V("param", name), goerr.V("value", v))
		}
	}
	for i, rule := range p.Rules {
		if rule.Weight < 0 {
			return goerr.New("negative rule weight", goerr.V("tone", model.Tone(i).String()))
		}
	}
	if p.Vector.UserTopK < 1 || p.Vector.RelationshipTopK < 1 {
		return goerr.New("vector top-k must be positive")
	}
	return nil
}
