package tone_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

func TestDefaultParamsAreValid(t *testing.T) {
	require.NoError(t, tonerules.DefaultParams().Validate())
}

func TestLoadParamsOverlaysDefaults(t *testing.T) {
	src := `
fusion:
  vector_trust: 0.8
rules:
  serious:
    weight: 1.0
    keywords: [urgent, critical]
`
	p, err := tonerules.LoadParams(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 0.8, p.Fusion.VectorTrust)
	assert.Equal(t, 0.6, p.Fusion.RuleTrust)
	assert.Equal(t, []string{"urgent", "critical"}, p.Rules[model.Serious].Keywords)
	assert.Equal(t, tonerules.DefaultParams().Rules[model.Formal], p.Rules[model.Formal])

	got := p.ClassifyByRules("this is urgent and critical", "")
	assert.Equal(t, model.Serious, got.Tone)
}

func TestLoadParamsRejectsBadInput(t *testing.T) {
	for name, src := range map[string]string{
		"unknown field": "bogus: 1\n",
		"out of range":  "rule_floor: 1.5\n",
		"unknown tone":  "rules:\n  grumpy:\n    weight: 1\n",
		"zero top-k":    "vector:\n  user_top_k: 0\n",
	} {
		_, err := tonerules.LoadParams(strings.NewReader(src))
		assert.Error(t, err, name)
	}
}

func TestLoadParamsEmptyYieldsDefaults(t *testing.T) {
	p, err := tonerules.LoadParams(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, tonerules.DefaultParams(), p)
}

func TestLoadParamsFile(t *testing.T) {
	p, err := tonerules.LoadParamsFile("")
	require.NoError(t, err)
	assert.Equal(t, tonerules.DefaultParams(), p)

	path := filepath.Join(t.TempDir(), "tone.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rule_floor: 0.4\n"), 0o600))
	p, err = tonerules.LoadParamsFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.4, p.RuleFloor)

	_, err = tonerules.LoadParamsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadParamsTOML(t *testing.T) {
	src := `
rule_floor = 0.35

[fusion]
vector_trust = 0.75

[rules.serious]
weight = 1
keywords = ["urgent", "asap"]
`
	p, err := tonerules.LoadParamsTOML(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, 0.35, p.RuleFloor)
	assert.Equal(t, 0.75, p.Fusion.VectorTrust)
	assert.Equal(t, 1.0, p.Rules[model.Serious].Weight)
	assert.Equal(t, []string{"urgent", "asap"}, p.Rules[model.Serious].Keywords)
	assert.Equal(t, tonerules.DefaultParams().Rules[model.Casual], p.Rules[model.Casual])

	path := filepath.Join(t.TempDir(), "tone.toml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	fromFile, err := tonerules.LoadParamsFile(path)
	require.NoError(t, err)
	assert.Equal(t, p, fromFile)
}

func TestLoadParamsTOMLRejectsBadInput(t *testing.T) {
	for name, src := range map[string]string{
		"unknown field": "bogus = 1\n",
		"out of range":  "rule_floor = 1.5\n",
		"unknown tone":  "[rules.grumpy]\nweight = 1\n",
		"bad weight":    "[rules.serious]\nweight = \"high\"\n",
	} {
		_, err := tonerules.LoadParamsTOML(strings.NewReader(src))
		assert.Error(t, err, name)
	}
}
