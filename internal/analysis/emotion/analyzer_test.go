package emotion

import (
	"math"
	"testing"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestAnalyzePositiveExcited(t *testing.T) {
	profile := Analyze("What an amazing, wonderful day!")
	if !approx(profile.Positivity, 0.6) {
		t.Fatalf("expected positivity 0.6, got %f", profile.Positivity)
	}
	if !approx(profile.Excitement, 0.4) {
		t.Fatalf("expected excitement 0.4, got %f", profile.Excitement)
	}
	if !approx(profile.Neutrality, 0.2) {
		t.Fatalf("expected neutrality 0.2, got %f", profile.Neutrality)
	}
	if profile.Intensity <= 0.3 || profile.Intensity > 1 {
		t.Fatalf("intensity out of range: %f", profile.Intensity)
	}
}

func TestAnalyzeNegative(t *testing.T) {
	profile := Analyze("I am so sad and angry")
	if !approx(profile.Negativity, 0.6) {
		t.Fatalf("expected negativity 0.6, got %f", profile.Negativity)
	}
	if profile.Positivity != 0 {
		t.Fatalf("expected no positivity, got %f", profile.Positivity)
	}
}

func TestAnalyzeEmptyText(t *testing.T) {
	profile := Analyze("")
	if profile.Neutrality != 1 {
		t.Fatalf("expected full neutrality, got %f", profile.Neutrality)
	}
	if !approx(profile.Intensity, 0.1) {
		t.Fatalf("expected intensity floor, got %f", profile.Intensity)
	}
	if profile.Formality != 0.5 {
		t.Fatalf("expected neutral formality, got %f", profile.Formality)
	}
}

func TestAnalyzeSaturates(t *testing.T) {
	profile := Analyze("great awesome good happy love amazing wonderful excellent fantastic perfect")
	if profile.Positivity != 1 {
		t.Fatalf("expected positivity capped at 1, got %f", profile.Positivity)
	}
	if profile.Neutrality != 0 {
		t.Fatalf("expected neutrality floored at 0, got %f", profile.Neutrality)
	}
}
