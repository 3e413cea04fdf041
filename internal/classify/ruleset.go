package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed default_rules.toml
var defaultRules []byte

// rulesetVersion is the RuleSet schema version this build understands.
const rulesetVersion = 1

// Zone is a relative-coordinate screen rectangle (fractions of frame size).
type Zone struct {
	Name string  `toml:"name"`
	X    float64 `toml:"x"`
	Y    float64 `toml:"y"`
	W    float64 `toml:"w"`
	H    float64 `toml:"h"`
}

// Band describes where subtitle overlays are expected on screen.
type Band struct {
	Position   string  `toml:"position"` // "top" or "bottom"
	HeightFrac float64 `toml:"height_frac"`
}

// Persistence describes the stability signal real subtitles exhibit.
type Persistence struct {
	MinFrames int `toml:"min_frames"`
}

// Language bounds the natural-language heuristic.
type Language struct {
	MinLetterRatio float64 `toml:"min_letter_ratio"`
	MinChars       int     `toml:"min_chars"`
}

// Numeric bounds the chart-data guard.
type Numeric struct {
	MaxNumericRatio float64  `toml:"max_numeric_ratio"`
	DenyPatterns    []string `toml:"deny_patterns"`
}

// RuleSet is the externally loaded, versioned heuristic configuration. It is
// read-only at pipeline run time and reloadable between tasks only.
type RuleSet struct {
	Version        int         `toml:"version"`
	ProtectedZones []Zone      `toml:"protected_zones"`
	Band           Band        `toml:"band"`
	Persistence    Persistence `toml:"persistence"`
	Language       Language    `toml:"language"`
	Numeric        Numeric     `toml:"numeric"`

	denyRegexps []*regexp.Regexp
}

// LoadRuleSet reads a ruleset from path, or the embedded default when path is
// empty.
func LoadRuleSet(path string) (*RuleSet, error) {
	data := defaultRules
	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read ruleset: %w", err)
		}
		data = raw
	}
	return parseRuleSet(data)
}

func parseRuleSet(data []byte) (*RuleSet, error) {
	var set RuleSet
	if err := toml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}
	if set.Version != rulesetVersion {
		return nil, fmt.Errorf("ruleset version %d unsupported (expected %d)", set.Version, rulesetVersion)
	}
	if err := set.compile(); err != nil {
		return nil, err
	}
	if err := set.validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

func (s *RuleSet) compile() error {
	s.denyRegexps = make([]*regexp.Regexp, 0, len(s.Numeric.DenyPatterns))
	for _, pattern := range s.Numeric.DenyPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("deny pattern %q: %w", pattern, err)
		}
		s.denyRegexps = append(s.denyRegexps, re)
	}
	return nil
}

func (s *RuleSet) validate() error {
	switch s.Band.Position {
	case "top", "bottom":
	default:
		return fmt.Errorf("band.position: unsupported value %q", s.Band.Position)
	}
	if s.Band.HeightFrac <= 0 || s.Band.HeightFrac > 0.5 {
		return fmt.Errorf("band.height_frac must be in (0, 0.5], got %v", s.Band.HeightFrac)
	}
	if s.Persistence.MinFrames < 1 {
		return fmt.Errorf("persistence.min_frames must be at least 1, got %d", s.Persistence.MinFrames)
	}
	for _, zone := range s.ProtectedZones {
		if zone.W <= 0 || zone.H <= 0 || zone.X < 0 || zone.Y < 0 || zone.X+zone.W > 1 || zone.Y+zone.H > 1 {
			return fmt.Errorf("protected zone %q exceeds unit bounds", zone.Name)
		}
	}
	return nil
}

func (s *RuleSet) matchesDeny(text string) bool {
	for _, re := range s.denyRegexps {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
