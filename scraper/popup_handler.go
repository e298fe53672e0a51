package scraper

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"cartscout/config"
	"cartscout/models"
)

// PopupState tracks what we have learned about a site's overlay
// behavior. Once resolved it is never re-evaluated for that site.
type PopupState int

const (
	PopupStateUnknown PopupState = iota
	PopupStatePresent
	PopupStateNone
)

func (s PopupState) String() string {
	switch s {
	case PopupStatePresent:
		return "popup_present"
	case PopupStateNone:
		return "no_popup"
	default:
		return "unknown"
	}
}

// PopupDismissError reports that an overlay was detected but could not
// be removed, so the page content cannot be trusted
type PopupDismissError struct {
	Hostname   string
	Selector   string
	Screenshot string
}

func (e *PopupDismissError) Error() string {
	msg := fmt.Sprintf("failed to dismiss popup on %s (selector %q)", e.Hostname, e.Selector)
	if e.Screenshot != "" {
		msg += fmt.Sprintf(", screenshot saved to %s", e.Screenshot)
	}
	return msg
}

// Overlay containers worth evaluating. Kept broad on purpose, the
// vocabulary check filters out false positives.
var popupContainerSelectors = []string{
	"[role=dialog]",
	"[role=alertdialog]",
	"[aria-modal=true]",
	"div[class*=modal]",
	"div[class*=popup]",
	"div[class*=overlay]",
	"div[id*=cookie]",
	"div[class*=cookie]",
	"div[id*=consent]",
	"div[class*=consent]",
	"div[class*=newsletter]",
	"div[class*=banner]",
}

// Phrases that identify an overlay regardless of which buttons it has
var popupSignalWords = []string{
	"cookie",
	"cookies",
	"consent",
	"privacy",
	"gdpr",
	"newsletter",
	"subscribe",
	"sign up",
	"special offer",
	"discount",
	"before you go",
	"your experience",
}

// Button phrases in priority order. Rejecting phrases come first so a
// banner offering both "Reject all" and "Accept all" is declined, not
// accepted.
var popupRejectPhrases = []string{
	"reject all",
	"decline all",
	"refuse all",
	"only necessary",
	"necessary only",
	"essential only",
	"continue without",
	"reject",
	"decline",
	"refuse",
	"no thanks",
	"no, thanks",
	"not now",
	"maybe later",
	"dismiss",
	"close",
}

var popupAcceptPhrases = []string{
	"accept all",
	"allow all",
	"i agree",
	"got it",
	"understood",
	"accept",
	"agree",
	"allow",
	"ok",
}

// Single-glyph close buttons are matched exactly, not by substring
var popupCloseGlyphs = []string{"×", "✕", "✗", "x"}

var cssIdentPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// PopupHandler resolves and removes blocking overlays for one site
// visit. Create a fresh handler per site, reuse it across that site's
// pages. Safe for the concurrent pages of a product batch; dismissals
// are serialized so the first page resolves the state for the rest.
type PopupHandler struct {
	cfg            *config.Config
	hostname       string
	mutex          sync.Mutex
	state          PopupState
	rejectSelector string
}

func NewPopupHandler(cfg *config.Config, hostname string) *PopupHandler {
	return &PopupHandler{cfg: cfg, hostname: hostname, state: PopupStateUnknown}
}

// State returns what the handler has concluded about this site so far
func (ph *PopupHandler) State() PopupState {
	ph.mutex.Lock()
	defer ph.mutex.Unlock()
	return ph.state
}

// HandlePage clears any blocking overlay from the page. Sites already
// resolved as popup-free return immediately. A site known to show a
// popup reuses the selector that worked before and only re-evaluates
// when that selector stops matching.
func (ph *PopupHandler) HandlePage(page *rod.Page) error {
	ph.mutex.Lock()
	defer ph.mutex.Unlock()

	if ph.state == PopupStateNone {
		return nil
	}

	if ph.state == PopupStatePresent && ph.rejectSelector != "" {
		if ph.gone(page, ph.rejectSelector) {
			return nil
		}
		if err := ph.dismiss(page, ph.rejectSelector); err == nil {
			return nil
		}
		log.Printf("⚠️ Remembered popup selector %q no longer works on %s, re-evaluating", ph.rejectSelector, ph.hostname)
	}

	eval, err := ph.detect(page)
	if err != nil {
		return err
	}

	if !eval.IsPopup {
		ph.state = PopupStateNone
		log.Printf("✅ No popup on %s", ph.hostname)
		return nil
	}

	ph.state = PopupStatePresent
	ph.rejectSelector = eval.RejectSelector
	log.Printf("🔍 Popup detected on %s (selector %q, %d bytes evaluated)", ph.hostname, eval.RejectSelector, eval.Length)

	if eval.RejectSelector == "" {
		// No usable button in the overlay markup, Escape is the
		// only move left
		if ph.pressEscape(page) {
			return nil
		}
		shot := ph.captureFailure(page)
		return &PopupDismissError{Hostname: ph.hostname, Screenshot: shot}
	}

	return ph.dismiss(page, eval.RejectSelector)
}

// detect scans the live page for overlay candidates and evaluates
// their markup locally
func (ph *PopupHandler) detect(page *rod.Page) (*models.PopupEvaluation, error) {
	selector := strings.Join(popupContainerSelectors, ", ")

	bounded := page.Timeout(ph.cfg.SelectorTimeout)
	elements, err := bounded.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("popup candidate query failed on %s: %v", ph.hostname, err)
	}

	for _, el := range elements {
		visible, err := el.Visible()
		if err != nil || !visible {
			continue
		}
		html, err := el.HTML()
		if err != nil {
			continue
		}
		eval := ph.Evaluate(html)
		if eval.IsPopup {
			return eval, nil
		}
	}

	return &models.PopupEvaluation{IsPopup: false}, nil
}

// Evaluate inspects a candidate overlay's markup without touching the
// browser. Containers over the configured size bound are whole page
// sections misclassified by the candidate selectors, not overlays.
func (ph *PopupHandler) Evaluate(html string) *models.PopupEvaluation {
	eval := &models.PopupEvaluation{Length: len(html)}

	if max := ph.cfg.PopupMaxHTMLBytes; max > 0 && len(html) > max {
		return eval
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return eval
	}

	root := doc.Find("body").Children().First()
	if root.Length() > 0 && staticallyHidden(root) {
		return eval
	}

	text := strings.ToLower(doc.Text())
	signal := false
	for _, word := range popupSignalWords {
		if strings.Contains(text, word) {
			signal = true
			break
		}
	}
	if !signal {
		return eval
	}

	eval.IsPopup = true
	eval.RejectSelector = pickDismissControl(doc)
	return eval
}

// staticallyHidden reports markup-level hiding on the candidate root.
// Live layout visibility is the browser's call, not ours.
func staticallyHidden(sel *goquery.Selection) bool {
	if _, ok := sel.Attr("hidden"); ok {
		return true
	}
	if v, ok := sel.Attr("aria-hidden"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		return true
	}
	style, ok := sel.Attr("style")
	if !ok {
		return false
	}
	style = strings.ToLower(strings.ReplaceAll(style, " ", ""))
	return strings.Contains(style, "display:none") ||
		strings.Contains(style, "visibility:hidden") ||
		strings.Contains(style, "opacity:0;") ||
		strings.HasSuffix(style, "opacity:0")
}

type clickable struct {
	text     string
	selector string
}

// pickDismissControl finds the button to click, preferring anything
// that declines over anything that accepts
func pickDismissControl(doc *goquery.Document) string {
	var candidates []clickable
	doc.Find("button, a, [role=button], input[type=button], input[type=submit]").Each(func(_ int, sel *goquery.Selection) {
		text := strings.ToLower(strings.TrimSpace(sel.Text()))
		if value, ok := sel.Attr("value"); ok {
			text += " " + strings.ToLower(value)
		}
		if label, ok := sel.Attr("aria-label"); ok {
			text += " " + strings.ToLower(label)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		derived := deriveSelector(sel)
		if derived == "" {
			return
		}
		candidates = append(candidates, clickable{text: text, selector: derived})
	})

	for _, phrase := range popupRejectPhrases {
		for _, c := range candidates {
			if strings.Contains(c.text, phrase) {
				return c.selector
			}
		}
	}
	for _, glyph := range popupCloseGlyphs {
		for _, c := range candidates {
			if c.text == glyph {
				return c.selector
			}
		}
	}
	for _, phrase := range popupAcceptPhrases {
		for _, c := range candidates {
			if strings.Contains(c.text, phrase) {
				return c.selector
			}
		}
	}
	return ""
}

// deriveSelector builds a CSS selector that will find the same element
// on the live page. Prefers ids, then classes, then aria-label.
func deriveSelector(sel *goquery.Selection) string {
	if id, ok := sel.Attr("id"); ok && cssIdentPattern.MatchString(id) {
		return "#" + id
	}

	tag := goquery.NodeName(sel)
	if class, ok := sel.Attr("class"); ok {
		var clean []string
		for _, c := range strings.Fields(class) {
			// Utility-framework classes with ':' or '[' are not
			// valid in a plain selector
			if cssIdentPattern.MatchString(c) {
				clean = append(clean, c)
			}
		}
		if len(clean) > 0 {
			return tag + "." + strings.Join(clean, ".")
		}
	}

	if label, ok := sel.Attr("aria-label"); ok && label != "" && !strings.ContainsAny(label, `"\`) {
		return fmt.Sprintf(`%s[aria-label="%s"]`, tag, label)
	}

	return ""
}

// dismiss works down the ladder: real click, then JS click, then
// Escape. Each step is verified before declaring success.
func (ph *PopupHandler) dismiss(page *rod.Page, selector string) error {
	bounded := page.Timeout(ph.cfg.SelectorTimeout)
	if elements, err := bounded.Elements(selector); err == nil && len(elements) > 0 {
		if err := elements.First().Click(proto.InputMouseButtonLeft, 1); err == nil {
			time.Sleep(ph.cfg.SettleDelay)
			if ph.gone(page, selector) {
				log.Printf("✅ Popup dismissed on %s via click on %q", ph.hostname, selector)
				return nil
			}
		}
	}

	js := fmt.Sprintf(`() => { const el = document.querySelector(%q); if (el) { el.click(); return true; } return false; }`, selector)
	if res, err := page.Eval(js); err == nil && res.Value.Bool() {
		time.Sleep(ph.cfg.SettleDelay)
		if ph.gone(page, selector) {
			log.Printf("✅ Popup dismissed on %s via JS click on %q", ph.hostname, selector)
			return nil
		}
	}

	if ph.pressEscape(page) && ph.gone(page, selector) {
		log.Printf("✅ Popup dismissed on %s via Escape", ph.hostname)
		return nil
	}

	shot := ph.captureFailure(page)
	return &PopupDismissError{Hostname: ph.hostname, Selector: selector, Screenshot: shot}
}

func (ph *PopupHandler) pressEscape(page *rod.Page) bool {
	if err := page.Keyboard.Press(input.Escape); err != nil {
		return false
	}
	time.Sleep(ph.cfg.SettleDelay)
	return true
}

// gone reports whether the selector no longer matches a visible
// element
func (ph *PopupHandler) gone(page *rod.Page, selector string) bool {
	elements, err := page.Elements(selector)
	if err != nil || len(elements) == 0 {
		return true
	}
	visible, err := elements.First().Visible()
	if err != nil {
		return true
	}
	return !visible
}

// captureFailure saves a viewport screenshot for debugging and returns
// its path, or "" if the capture itself failed
func (ph *PopupHandler) captureFailure(page *rod.Page) string {
	data, err := page.Screenshot(false, nil)
	if err != nil {
		log.Printf("⚠️ Screenshot failed on %s: %v", ph.hostname, err)
		return ""
	}

	dir := ph.cfg.ScreenshotDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("popup_%s_%d.png", sanitizeFilename(ph.hostname), time.Now().Unix())
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("⚠️ Failed to save screenshot: %v", err)
		return ""
	}

	log.Printf("⚠️ Popup dismissal failed on %s, screenshot: %s", ph.hostname, path)
	return path
}

var filenamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeFilename(s string) string {
	return filenamePattern.ReplaceAllString(s, "_")
}
