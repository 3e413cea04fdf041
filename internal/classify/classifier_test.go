package classify

import (
	"image"
	"testing"

	"subclean/internal/vision"
)

func testContext(streak int) Context {
	return Context{
		FrameWidth:      1280,
		FrameHeight:     720,
		OverlapStreak:   streak,
		ConfidenceFloor: 0.5,
	}
}

func mustDefaultRuleSet(t *testing.T) *RuleSet {
	t.Helper()
	set, err := LoadRuleSet("")
	if err != nil {
		t.Fatalf("LoadRuleSet failed: %v", err)
	}
	return set
}

func subtitleRegion() vision.TextRegion {
	// Bottom band of a 1280x720 frame.
	return vision.TextRegion{
		Box:        image.Rect(400, 650, 880, 690),
		Text:       "LIVE UPDATE from the floor",
		Confidence: 0.9,
	}
}

func TestProtectedZoneOverridesEverything(t *testing.T) {
	classifier := New(mustDefaultRuleSet(t))

	// Top ticker strip, persistent, language-like: zone still wins.
	region := vision.TextRegion{
		Box:        image.Rect(100, 5, 400, 40),
		Text:       "breaking market news scrolling here",
		Confidence: 0.99,
	}
	result := classifier.Classify(region, testContext(50))
	if result.Label != LabelNotSubtitle {
		t.Fatalf("protected region classified %s", result.Label)
	}
	if result.Reason != "protected_zone:ticker" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestStableBandTextIsSubtitle(t *testing.T) {
	classifier := New(mustDefaultRuleSet(t))

	result := classifier.Classify(subtitleRegion(), testContext(4))
	if result.Label != LabelSubtitle {
		t.Fatalf("expected SUBTITLE, got %s (%s)", result.Label, result.Reason)
	}
	if result.Reason != "subtitle_band" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestUnstableRegionIsNotSubtitle(t *testing.T) {
	classifier := New(mustDefaultRuleSet(t))

	// First sighting: streak 0 + current frame = 1 < min_frames.
	result := classifier.Classify(subtitleRegion(), testContext(0))
	if result.Label != LabelSubtitle && result.Reason == "subtitle_band" {
		t.Fatalf("inconsistent result: %+v", result)
	}
	if result.Label == LabelSubtitle {
		t.Fatalf("single-frame region must not be SUBTITLE")
	}
}

func TestNumericTextProtected(t *testing.T) {
	classifier := New(mustDefaultRuleSet(t))

	cases := []string{"$1,234.56", "+2.4%", "152.30", "09:41:05"}
	for _, text := range cases {
		region := vision.TextRegion{
			Box:        image.Rect(400, 650, 600, 690),
			Text:       text,
			Confidence: 0.95,
		}
		result := classifier.Classify(region, testContext(10))
		if result.Label != LabelNotSubtitle {
			t.Fatalf("numeric text %q classified %s", text, result.Label)
		}
	}
}

func TestLowConfidenceFallsThrough(t *testing.T) {
	classifier := New(mustDefaultRuleSet(t))

	region := subtitleRegion()
	region.Confidence = 0.3
	result := classifier.Classify(region, testContext(10))
	if result.Label != LabelNotSubtitle {
		t.Fatalf("low-confidence region classified %s", result.Label)
	}
}

func TestMidScreenTextDefaultsToNotSubtitle(t *testing.T) {
	classifier := New(mustDefaultRuleSet(t))

	region := vision.TextRegion{
		Box:        image.Rect(500, 300, 700, 340),
		Text:       "candlestick pattern",
		Confidence: 0.9,
	}
	result := classifier.Classify(region, testContext(10))
	if result.Label != LabelNotSubtitle || result.Reason != "default" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRuleOrderIsDeclarative(t *testing.T) {
	classifier := New(mustDefaultRuleSet(t))
	rules := classifier.Rules()

	want := []string{"protected_zone", "subtitle_band", "numeric_guard", "default"}
	if len(rules) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(rules))
	}
	for i, name := range want {
		if rules[i].Name != name {
			t.Fatalf("rule %d = %q, want %q", i, rules[i].Name, name)
		}
	}
}

func TestLoadRuleSetRejectsBadData(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"wrong version", "version = 99\n[band]\nposition = \"bottom\"\nheight_frac = 0.2\n[persistence]\nmin_frames = 2\n"},
		{"bad band", "version = 1\n[band]\nposition = \"left\"\nheight_frac = 0.2\n[persistence]\nmin_frames = 2\n"},
		{"bad regexp", "version = 1\n[band]\nposition = \"bottom\"\nheight_frac = 0.2\n[persistence]\nmin_frames = 2\n[numeric]\ndeny_patterns = [\"[\"]\n"},
		{"zone out of bounds", "version = 1\n[band]\nposition = \"bottom\"\nheight_frac = 0.2\n[persistence]\nmin_frames = 2\n[[protected_zones]]\nname = \"z\"\nx = 0.9\ny = 0.0\nw = 0.5\nh = 0.1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseRuleSet([]byte(tc.data)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}
