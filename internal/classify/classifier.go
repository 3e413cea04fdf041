package classify

import (
	"image"

	"subclean/internal/textutil"
	"subclean/internal/vision"
)

// Label marks a region as overlay subtitle or legitimate screen content.
type Label string

const (
	LabelSubtitle    Label = "SUBTITLE"
	LabelNotSubtitle Label = "NOT_SUBTITLE"
)

// Classification is a decorated TextRegion: the label plus the reason code of
// the rule that fired.
type Classification struct {
	Region vision.TextRegion
	Label  Label
	Reason string
}

// Context carries the positional and temporal signals a rule may consult.
// OverlapStreak counts the consecutive frames immediately before the current
// one in which a near-identical region was detected; it never looks ahead.
type Context struct {
	FrameWidth      int
	FrameHeight     int
	OverlapStreak   int
	ConfidenceFloor float64
}

// Rule is one ordered heuristic: a predicate plus the label it assigns when
// it matches. First match wins, so earlier rules override later ones.
type Rule struct {
	Name  string
	Label Label
	Match func(region vision.TextRegion, rctx Context) bool
}

// Classifier evaluates the ordered rule list built from a RuleSet.
type Classifier struct {
	set   *RuleSet
	rules []Rule
}

// New builds a classifier for the given ruleset.
func New(set *RuleSet) *Classifier {
	c := &Classifier{set: set}
	c.rules = []Rule{
		{
			Name:  "protected_zone",
			Label: LabelNotSubtitle,
			Match: c.matchProtectedZone,
		},
		{
			Name:  "subtitle_band",
			Label: LabelSubtitle,
			Match: c.matchSubtitleBand,
		},
		{
			Name:  "numeric_guard",
			Label: LabelNotSubtitle,
			Match: c.matchNumericGuard,
		},
		{
			Name:  "default",
			Label: LabelNotSubtitle,
			Match: func(vision.TextRegion, Context) bool { return true },
		},
	}
	return c
}

// Rules exposes the ordered rule list for inspection and tests.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify labels one region. Pure: depends only on the region and the
// bounded history carried in rctx.
func (c *Classifier) Classify(region vision.TextRegion, rctx Context) Classification {
	for _, rule := range c.rules {
		if rule.Match(region, rctx) {
			reason := rule.Name
			if rule.Name == "protected_zone" {
				if zone := c.protectedZoneFor(region, rctx); zone != "" {
					reason = "protected_zone:" + zone
				}
			}
			return Classification{Region: region, Label: rule.Label, Reason: reason}
		}
	}
	// Unreachable: the default rule always matches.
	return Classification{Region: region, Label: LabelNotSubtitle, Reason: "default"}
}

func (c *Classifier) matchProtectedZone(region vision.TextRegion, rctx Context) bool {
	return c.protectedZoneFor(region, rctx) != ""
}

func (c *Classifier) protectedZoneFor(region vision.TextRegion, rctx Context) string {
	for _, zone := range c.set.ProtectedZones {
		rect := zoneRect(zone, rctx.FrameWidth, rctx.FrameHeight)
		if region.Box.Overlaps(rect) {
			return zone.Name
		}
	}
	return ""
}

func (c *Classifier) matchSubtitleBand(region vision.TextRegion, rctx Context) bool {
	if region.Confidence < rctx.ConfidenceFloor {
		return false
	}
	if !c.inBand(region.Box, rctx) {
		return false
	}
	// Stability: streak counts prior frames, the current sighting adds one.
	if rctx.OverlapStreak+1 < c.set.Persistence.MinFrames {
		return false
	}
	return c.looksLikeLanguage(region.Text)
}

func (c *Classifier) matchNumericGuard(region vision.TextRegion, _ Context) bool {
	text := textutil.NormalizeOCR(region.Text)
	if c.set.matchesDeny(text) {
		return true
	}
	return textutil.Analyze(text).NumericRatio() > c.set.Numeric.MaxNumericRatio
}

func (c *Classifier) inBand(box image.Rectangle, rctx Context) bool {
	bandHeight := int(float64(rctx.FrameHeight) * c.set.Band.HeightFrac)
	var band image.Rectangle
	switch c.set.Band.Position {
	case "top":
		band = image.Rect(0, 0, rctx.FrameWidth, bandHeight)
	default:
		band = image.Rect(0, rctx.FrameHeight-bandHeight, rctx.FrameWidth, rctx.FrameHeight)
	}
	center := image.Pt(box.Min.X+box.Dx()/2, box.Min.Y+box.Dy()/2)
	return center.In(band)
}

func (c *Classifier) looksLikeLanguage(text string) bool {
	text = textutil.NormalizeOCR(text)
	comp := textutil.Analyze(text)
	visible := comp.Total - comp.Spaces
	if visible < c.set.Language.MinChars {
		return false
	}
	if comp.LetterRatio() < c.set.Language.MinLetterRatio {
		return false
	}
	return !c.set.matchesDeny(text)
}

func zoneRect(zone Zone, frameWidth, frameHeight int) image.Rectangle {
	x0 := int(zone.X * float64(frameWidth))
	y0 := int(zone.Y * float64(frameHeight))
	x1 := int((zone.X + zone.W) * float64(frameWidth))
	y1 := int((zone.Y + zone.H) * float64(frameHeight))
	return image.Rect(x0, y0, x1, y1)
}
