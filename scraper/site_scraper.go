package scraper

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"cartscout/config"
	"cartscout/models"
)

// ProfileStore persists per-hostname hints across comparisons.
// Satisfied by repository.SiteProfileRepository.
type ProfileStore interface {
	GetProfile(hostname string) (*models.SiteProfile, error)
	RecordSuccess(hostname, searchSelector string) error
	RecordFailure(hostname string) error
}

// SiteScraper shops one candidate site for a whole cart: per product
// it opens a page, clears popups, runs the site's own search and
// extracts the offers. A site either matches every product or is
// discarded, partial carts never leave this type.
type SiteScraper struct {
	cfg       *config.Config
	browser   *BrowserController
	locator   *SearchLocator
	extractor *Extractor
	detector  *BotDetector
	profiles  ProfileStore
}

func NewSiteScraper(cfg *config.Config, browser *BrowserController, locator *SearchLocator, extractor *Extractor, detector *BotDetector, profiles ProfileStore) *SiteScraper {
	return &SiteScraper{
		cfg:       cfg,
		browser:   browser,
		locator:   locator,
		extractor: extractor,
		detector:  detector,
		profiles:  profiles,
	}
}

// ShopSite assembles an alternative cart on site. Products run in
// batches of ProductBatchSize, each on its own page. The first product
// that cannot be matched fails the whole site.
func (ss *SiteScraper) ShopSite(ctx context.Context, site string, products []models.CartProduct) (*models.AlternativeCart, error) {
	log.Printf("🛒 Shopping %s for %d products", site, len(products))

	knownSelector := ""
	if ss.profiles != nil {
		if profile, err := ss.profiles.GetProfile(site); err != nil {
			log.Printf("⚠️ Failed to load site profile for %s: %v", site, err)
		} else if profile != nil {
			knownSelector = profile.SearchSelector
		}
	}

	popups := NewPopupHandler(ss.cfg, site)

	matches := make([]models.AlternativeProduct, len(products))
	selectors := make([]string, len(products))
	errs := make([]error, len(products))

	batchSize := ss.cfg.ProductBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(products); start += batchSize {
		end := start + batchSize
		if end > len(products) {
			end = len(products)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						errs[idx] = fmt.Errorf("panic while shopping %s: %v", site, r)
					}
				}()
				match, selector, err := ss.shopProduct(ctx, site, knownSelector, popups, products[idx])
				if err != nil {
					errs[idx] = err
					return
				}
				matches[idx] = *match
				selectors[idx] = selector
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			if errs[i] != nil {
				log.Printf("❌ %s disqualified: %v", site, errs[i])
				ss.recordFailure(site)
				return nil, errs[i]
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Reuse whatever selector the first batch learned
		if knownSelector == "" {
			for i := start; i < end; i++ {
				if selectors[i] != "" {
					knownSelector = selectors[i]
					break
				}
			}
		}
	}

	ss.recordSuccess(site, knownSelector)

	cart := &models.AlternativeCart{Products: matches, OriginalProducts: products}
	log.Printf("✅ Complete cart on %s: total %.2f", site, cart.GetTotalPrice())
	return cart, nil
}

// shopProduct finds the cheapest offer for one cart product on site.
// The returned price is already scaled by the cart quantity.
func (ss *SiteScraper) shopProduct(ctx context.Context, site, knownSelector string, popups *PopupHandler, product models.CartProduct) (*models.AlternativeProduct, string, error) {
	var page *rod.Page
	err := WithRetry(ctx, fmt.Sprintf("open %s", site), nil, func() error {
		p, err := ss.browser.NewPage(site)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	defer page.Close()

	time.Sleep(ss.cfg.SettleDelay)

	if err := popups.HandlePage(page); err != nil {
		return nil, "", err
	}

	text, title := harvestText(page)
	if wallErr := ss.detector.Check(site, text, title); wallErr != nil {
		return nil, "", wallErr
	}

	el, selector, err := ss.locator.Locate(page, knownSelector)
	if err != nil {
		return nil, "", err
	}

	err = WithRetry(ctx, fmt.Sprintf("search %s for %q", site, product.ProductName), nil, func() error {
		return ss.locator.SubmitQuery(page, el, product.ProductName)
	})
	if err != nil {
		return nil, "", err
	}
	ss.waitSettled(page)

	// Search results pages bring their own overlays
	if err := popups.HandlePage(page); err != nil {
		return nil, "", err
	}

	pageText, pageTitle := harvestText(page)
	if wallErr := ss.detector.Check(site, pageText, pageTitle); wallErr != nil {
		return nil, "", wallErr
	}
	anchors := harvestAnchors(page)

	offers, err := ss.extractor.ExtractSearchResults(ctx, site, product.ProductName, pageText, anchors)
	if err != nil {
		return nil, "", err
	}

	description := ""
	var best models.ExtractedProduct
	if len(offers) == 0 {
		// Exact-name searches sometimes land directly on the
		// product page instead of a results list
		detail, derr := ss.extractor.ExtractProductDetail(ctx, site, pageURL(page), pageText)
		if derr != nil {
			return nil, "", fmt.Errorf("no offers for %q on %s", product.ProductName, site)
		}
		best = models.ExtractedProduct{ProductName: detail.ProductName, Price: detail.Price, URL: pageURL(page)}
		description = detail.Description
	} else {
		best = cheapestOffer(offers)
	}

	match := &models.AlternativeProduct{
		ProductName: best.ProductName,
		Price:       best.Price * float64(product.Quantity),
		URL:         best.URL,
		SiteURL:     site,
		Description: description,
	}
	log.Printf("🔍 Matched %q on %s at %.2f (x%d)", best.ProductName, site, best.Price, product.Quantity)
	return match, selector, nil
}

// waitSettled waits out the navigation a search submit may or may not
// trigger
func (ss *SiteScraper) waitSettled(page *rod.Page) {
	bounded := page.Timeout(ss.cfg.NavTimeout)
	// SPA search boxes rerender in place without a navigation, a
	// WaitLoad timeout here is not a failure
	_ = bounded.WaitLoad()
	time.Sleep(ss.cfg.SettleDelay)
}

func (ss *SiteScraper) recordSuccess(site, selector string) {
	if ss.profiles == nil {
		return
	}
	if err := ss.profiles.RecordSuccess(site, selector); err != nil {
		log.Printf("⚠️ Failed to record success for %s: %v", site, err)
	}
}

func (ss *SiteScraper) recordFailure(site string) {
	if ss.profiles == nil {
		return
	}
	if err := ss.profiles.RecordFailure(site); err != nil {
		log.Printf("⚠️ Failed to record failure for %s: %v", site, err)
	}
}

func cheapestOffer(offers []models.ExtractedProduct) models.ExtractedProduct {
	best := offers[0]
	for _, offer := range offers[1:] {
		if offer.Price < best.Price {
			best = offer
		}
	}
	return best
}

// harvestText pulls the rendered text and title out of the page
func harvestText(page *rod.Page) (text, title string) {
	if res, err := page.Eval(`() => document.body ? document.body.innerText : ''`); err == nil {
		text = res.Value.Str()
	}
	if res, err := page.Eval(`() => document.title`); err == nil {
		title = res.Value.Str()
	}
	return text, title
}

// harvestAnchors collects the page's links with their visible text,
// capped so enormous listing pages stay cheap
func harvestAnchors(page *rod.Page) []Anchor {
	res, err := page.Eval(`() => Array.from(document.querySelectorAll('a[href]'))
		.slice(0, 400)
		.map(a => ({text: (a.innerText || '').trim().slice(0, 300), href: a.href}))`)
	if err != nil {
		return nil
	}

	var anchors []Anchor
	for _, item := range res.Value.Arr() {
		anchor := Anchor{
			Text: item.Get("text").Str(),
			Href: item.Get("href").Str(),
		}
		if anchor.Text != "" && anchor.Href != "" {
			anchors = append(anchors, anchor)
		}
	}
	return anchors
}

func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
