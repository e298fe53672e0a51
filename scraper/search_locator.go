package scraper

import (
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"cartscout/config"
)

// ErrNoSearchInput means the site has no recognizable search box, so
// it cannot be shopped programmatically
var ErrNoSearchInput = errors.New("no search input found")

const searchInputCandidates = "input[type=search], input[type=text], input:not([type]), [role=searchbox]"

// Words that mark a text input as a product search box, across the
// locales the engine ships with
var searchVocabPattern = regexp.MustCompile(`(?i)(search|query|find|keyword|buscar|recherche|suche)`)

// Attribute weights. A type=search input wins outright, everything
// else accumulates evidence.
const (
	scoreTypeSearch  = 100
	scoreRoleSearch  = 60
	scoreNameExactQ  = 50
	scoreNameVocab   = 40
	scoreFormAction  = 35
	scorePlaceholder = 30
	scoreAriaLabel   = 30
	scoreLabelText   = 25
	scoreClassVocab  = 20
)

// ScoreInput rates how likely an input is the site's product search
// box, from its attributes and the text of its associated label.
// Returns 0 for inputs that cannot be a search box.
func ScoreInput(attrs map[string]string, labelText string) int {
	typ := strings.ToLower(attrs["type"])
	switch typ {
	case "hidden", "password", "email", "number", "tel", "date", "checkbox", "radio", "file", "submit", "button":
		return 0
	}

	score := 0
	if typ == "search" {
		score += scoreTypeSearch
	}
	if strings.EqualFold(attrs["role"], "searchbox") {
		score += scoreRoleSearch
	}

	name := strings.ToLower(attrs["name"])
	id := strings.ToLower(attrs["id"])
	if name == "q" || id == "q" {
		score += scoreNameExactQ
	}
	if searchVocabPattern.MatchString(name) || searchVocabPattern.MatchString(id) {
		score += scoreNameVocab
	}
	if searchVocabPattern.MatchString(attrs["placeholder"]) {
		score += scorePlaceholder
	}
	if searchVocabPattern.MatchString(attrs["aria-label"]) {
		score += scoreAriaLabel
	}
	if searchVocabPattern.MatchString(attrs["class"]) {
		score += scoreClassVocab
	}
	if searchVocabPattern.MatchString(attrs["form-action"]) {
		score += scoreFormAction
	}
	if searchVocabPattern.MatchString(labelText) {
		score += scoreLabelText
	}

	return score
}

// SearchLocator finds the product search box on a retail page
type SearchLocator struct {
	cfg *config.Config
}

func NewSearchLocator(cfg *config.Config) *SearchLocator {
	return &SearchLocator{cfg: cfg}
}

// Locate returns the page's search input and a CSS selector that can
// be persisted for the site. A non-empty knownSelector from a previous
// visit is tried first and only falls back to scoring when stale.
func (sl *SearchLocator) Locate(page *rod.Page, knownSelector string) (*rod.Element, string, error) {
	if knownSelector != "" {
		if el := sl.tryKnown(page, knownSelector); el != nil {
			log.Printf("✅ Reusing known search selector %q", knownSelector)
			return el, knownSelector, nil
		}
		log.Printf("⚠️ Known search selector %q is stale, re-scoring inputs", knownSelector)
	}

	bounded := page.Timeout(sl.cfg.SelectorTimeout)
	elements, err := bounded.Elements(searchInputCandidates)
	if err != nil || len(elements) == 0 {
		return nil, "", ErrNoSearchInput
	}

	var best *rod.Element
	bestScore := 0
	bestSelector := ""

	for _, el := range elements {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		attrs := collectInputAttrs(el)
		score := ScoreInput(attrs, sl.labelFor(page, attrs["id"]))
		if score > bestScore {
			best = el
			bestScore = score
			bestSelector = deriveInputSelector(attrs)
		}
	}

	if best == nil {
		return nil, "", ErrNoSearchInput
	}
	return best, bestSelector, nil
}

// SubmitQuery types the query into the located input and submits it
// with Enter
func (sl *SearchLocator) SubmitQuery(page *rod.Page, el *rod.Element, query string) error {
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to focus search input: %v", err)
	}
	// Clear any prefilled text before typing
	_ = el.SelectAllText()
	if err := el.Input(query); err != nil {
		return fmt.Errorf("failed to type query: %v", err)
	}
	if err := page.Keyboard.Press(input.Enter); err != nil {
		return fmt.Errorf("failed to submit query: %v", err)
	}
	return nil
}

func (sl *SearchLocator) tryKnown(page *rod.Page, selector string) *rod.Element {
	bounded := page.Timeout(sl.cfg.SelectorTimeout)
	elements, err := bounded.Elements(selector)
	if err != nil || len(elements) == 0 {
		return nil
	}
	el := elements.First()
	if visible, err := el.Visible(); err != nil || !visible {
		return nil
	}
	return el
}

func (sl *SearchLocator) labelFor(page *rod.Page, id string) string {
	if id == "" || !cssIdentPattern.MatchString(id) {
		return ""
	}
	elements, err := page.Elements(fmt.Sprintf("label[for=%s]", id))
	if err != nil || len(elements) == 0 {
		return ""
	}
	text, err := elements.First().Text()
	if err != nil {
		return ""
	}
	return text
}

func collectInputAttrs(el *rod.Element) map[string]string {
	attrs := map[string]string{}
	for _, key := range []string{"type", "name", "id", "placeholder", "aria-label", "class", "role"} {
		if v, err := el.Attribute(key); err == nil && v != nil {
			attrs[key] = *v
		}
	}
	if res, err := el.Eval(`() => this.form ? (this.form.getAttribute('action') || '') : ''`); err == nil {
		attrs["form-action"] = res.Value.Str()
	}
	return attrs
}

// deriveInputSelector builds a selector stable enough to store in the
// site profile and reuse on the next visit
func deriveInputSelector(attrs map[string]string) string {
	if id := attrs["id"]; cssIdentPattern.MatchString(id) {
		return "#" + id
	}
	if name := attrs["name"]; name != "" && !strings.ContainsAny(name, `"\`) {
		return fmt.Sprintf(`input[name=%q]`, name)
	}
	if class := attrs["class"]; class != "" {
		var clean []string
		for _, c := range strings.Fields(class) {
			if cssIdentPattern.MatchString(c) {
				clean = append(clean, c)
			}
		}
		if len(clean) > 0 {
			return "input." + strings.Join(clean, ".")
		}
	}
	if strings.EqualFold(attrs["type"], "search") {
		return "input[type=search]"
	}
	return ""
}
