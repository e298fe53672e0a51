package scraper

import (
	"fmt"
	"regexp"
	"strings"
)

// BlockType classifies why a site refused to serve product pages
type BlockType string

const (
	BlockCaptcha BlockType = "captcha"
	BlockBotWall BlockType = "bot_wall"
	BlockOutage  BlockType = "outage"
)

// BotWallError disqualifies a site from the current comparison. The
// site still counts against the attempt budget.
type BotWallError struct {
	Hostname   string
	Type       BlockType
	Confidence float64
	Reason     string
}

func (e *BotWallError) Error() string {
	return fmt.Sprintf("site %s is blocking automation (%s, confidence %.2f): %s", e.Hostname, e.Type, e.Confidence, e.Reason)
}

type patternGroup struct {
	kind     BlockType
	weight   float64
	patterns []*regexp.Regexp
}

// BotDetector recognizes bot walls, CAPTCHA challenges and outage
// pages from their text, so the engine stops shopping a site that will
// never answer honestly
type BotDetector struct {
	groups    []patternGroup
	threshold float64
}

func NewBotDetector() *BotDetector {
	compile := func(exprs ...string) []*regexp.Regexp {
		patterns := make([]*regexp.Regexp, 0, len(exprs))
		for _, expr := range exprs {
			patterns = append(patterns, regexp.MustCompile(`(?i)`+expr))
		}
		return patterns
	}

	return &BotDetector{
		threshold: 0.3,
		groups: []patternGroup{
			{
				kind:   BlockCaptcha,
				weight: 0.5,
				patterns: compile(
					`captcha`,
					`recaptcha`,
					`hcaptcha`,
					`turnstile`,
					`verify you are human`,
					`select all images`,
					`click the checkbox`,
				),
			},
			{
				kind:   BlockBotWall,
				weight: 0.3,
				patterns: compile(
					`access denied`,
					`bot detected`,
					`unusual traffic`,
					`checking your browser`,
					`security check`,
					`cloudflare`,
					`distil networks`,
					`imperva`,
					`akamai`,
					`ddos protection`,
					`rate limit`,
					`too many requests`,
				),
			},
			{
				kind:   BlockOutage,
				weight: 0.4,
				patterns: compile(
					`403 forbidden`,
					`429 too many requests`,
					`503 service unavailable`,
					`site temporarily unavailable`,
					`under maintenance`,
				),
			},
		},
	}
}

// Check scores the page against the block patterns and returns a
// disqualifying error, or nil when the page looks like a normal retail
// page. A single weak indicator alone is not enough to disqualify.
func (bd *BotDetector) Check(hostname, pageText, pageTitle string) *BotWallError {
	content := strings.ToLower(pageText + " " + pageTitle)

	score := 0.0
	var reasons []string
	dominant := BlockBotWall
	dominantWeight := 0.0

	for _, group := range bd.groups {
		for _, pattern := range group.patterns {
			if pattern.MatchString(content) {
				score += group.weight
				reasons = append(reasons, pattern.String())
				if group.weight > dominantWeight {
					dominant = group.kind
					dominantWeight = group.weight
				}
			}
		}
	}

	// A nearly empty page with any block indicator is conclusive
	if len(content) < 1000 && score > 0 {
		score += 0.2
		reasons = append(reasons, "very short page content")
	}

	if score > 1.0 {
		score = 1.0
	}
	if score <= bd.threshold {
		return nil
	}

	return &BotWallError{
		Hostname:   hostname,
		Type:       dominant,
		Confidence: score,
		Reason:     strings.Join(reasons, "; "),
	}
}
