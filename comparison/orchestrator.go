package comparison

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"cartscout/config"
	"cartscout/models"
)

// SiteDiscoverer finds candidate retail hostnames for a cart.
// Satisfied by discovery.SiteDiscovery.
type SiteDiscoverer interface {
	DiscoverSites(ctx context.Context, products []models.CartProduct, currentHostname string) ([]models.HostnameScore, error)
}

// CartShopper assembles a full alternative cart on one site. Satisfied
// by scraper.SiteScraper.
type CartShopper interface {
	ShopSite(ctx context.Context, site string, products []models.CartProduct) (*models.AlternativeCart, error)
}

// HistoryRecorder persists a summary of each finished comparison.
// Satisfied by repository.HistoryRepository.
type HistoryRecorder interface {
	RecordComparison(record *models.ComparisonRecord) error
}

// Orchestrator runs a whole comparison: discovery, then shopping the
// candidates in bounded concurrent batches until enough complete carts
// exist or the attempt budget runs out
type Orchestrator struct {
	cfg       *config.Config
	discovery SiteDiscoverer
	shopper   CartShopper
	history   HistoryRecorder
}

// NewOrchestrator wires the engine together. history may be nil when
// persistence is disabled.
func NewOrchestrator(cfg *config.Config, discovery SiteDiscoverer, shopper CartShopper, history HistoryRecorder) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		discovery: discovery,
		shopper:   shopper,
		history:   history,
	}
}

// Compare takes a captured cart and returns up to MaxResults cheaper
// alternative carts, sorted cheapest first
func (o *Orchestrator) Compare(ctx context.Context, req *models.ComparisonRequest) (*models.ComparisonResponse, error) {
	start := time.Now()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	scores, err := o.discovery.DiscoverSites(ctx, req.CartProducts, req.Hostname)
	if err != nil {
		return nil, fmt.Errorf("site discovery failed: %v", err)
	}

	candidates := make([]string, 0, len(scores))
	for _, s := range scores {
		candidates = append(candidates, s.NormalizedHostname)
	}
	log.Printf("🔍 %d candidate sites for cart from %s", len(candidates), req.Hostname)

	carts, attempted := o.shopCandidates(ctx, candidates, req.CartProducts)

	sortCartsByTotal(carts)
	if len(carts) > o.cfg.MaxResults {
		carts = carts[:o.cfg.MaxResults]
	}

	resp := o.buildResponse(req, carts, attempted, time.Since(start))
	o.record(req, len(candidates), attempted, carts, resp)

	log.Printf("✅ Comparison done for %s: %d alternatives from %d attempted sites in %dms",
		req.Hostname, len(carts), attempted, resp.DurationMs)
	return resp, nil
}

type siteOutcome struct {
	site string
	cart *models.AlternativeCart
	err  error
}

// shopCandidates walks the ranked candidates in batches of
// SiteBatchSize. Every launched site counts against the attempt budget
// whether or not it produced a cart. Batches already running always
// finish; the budget only stops new ones from starting.
func (o *Orchestrator) shopCandidates(ctx context.Context, candidates []string, products []models.CartProduct) ([]*models.AlternativeCart, int) {
	var carts []*models.AlternativeCart
	attempted := 0

	batchSize := o.cfg.SiteBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	next := 0
	for next < len(candidates) {
		if attempted >= o.cfg.MaxAttempts {
			log.Printf("🛑 Attempt budget reached (%d sites)", attempted)
			break
		}
		if len(carts) >= o.cfg.MaxResults {
			log.Printf("✅ Enough complete carts (%d), stopping early", len(carts))
			break
		}
		if ctx.Err() != nil {
			log.Printf("🛑 Comparison cancelled after %d sites", attempted)
			break
		}

		size := batchSize
		if remaining := o.cfg.MaxAttempts - attempted; size > remaining {
			size = remaining
		}
		if rest := len(candidates) - next; size > rest {
			size = rest
		}

		batch := candidates[next : next+size]
		next += size
		attempted += len(batch)

		for _, outcome := range o.shopBatch(ctx, batch, products) {
			if outcome.err != nil {
				log.Printf("❌ %s yielded no cart: %v", outcome.site, outcome.err)
				continue
			}
			if outcome.cart != nil && outcome.cart.IsComplete() {
				carts = append(carts, outcome.cart)
			}
		}
	}

	return carts, attempted
}

// shopBatch runs one batch of sites concurrently and waits for all of
// them. A panicking site becomes a failed outcome, never a crashed
// comparison.
func (o *Orchestrator) shopBatch(ctx context.Context, batch []string, products []models.CartProduct) []siteOutcome {
	outcomes := make([]siteOutcome, len(batch))

	var wg sync.WaitGroup
	for i, site := range batch {
		wg.Add(1)
		go func(idx int, site string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[idx] = siteOutcome{site: site, err: fmt.Errorf("panic while shopping %s: %v", site, r)}
				}
			}()

			siteCtx, cancel := context.WithTimeout(ctx, o.cfg.SiteTimeout)
			defer cancel()

			cart, err := o.shopper.ShopSite(siteCtx, site, products)
			outcomes[idx] = siteOutcome{site: site, cart: cart, err: err}
		}(i, site)
	}
	wg.Wait()

	return outcomes
}

func (o *Orchestrator) buildResponse(req *models.ComparisonRequest, carts []*models.AlternativeCart, attempted int, elapsed time.Duration) *models.ComparisonResponse {
	views := make([]models.AlternativeCartView, 0, len(carts))
	for _, cart := range carts {
		views = append(views, cart.View())
	}

	return &models.ComparisonResponse{
		OriginalCart:     req.CartProducts,
		OriginalTotal:    models.CartTotal(req.CartProducts),
		AlternativeCarts: views,
		SitesAttempted:   attempted,
		DurationMs:       elapsed.Milliseconds(),
	}
}

func (o *Orchestrator) record(req *models.ComparisonRequest, candidatesFound, attempted int, carts []*models.AlternativeCart, resp *models.ComparisonResponse) {
	if o.history == nil {
		return
	}

	best := 0.0
	for _, cart := range carts {
		if savings := cart.GetPotentialSavings(); savings > best {
			best = savings
		}
	}

	record := &models.ComparisonRecord{
		Hostname:          req.Hostname,
		ProductCount:      len(req.CartProducts),
		CandidatesFound:   candidatesFound,
		SitesAttempted:    attempted,
		AlternativesFound: len(carts),
		BestSavings:       best,
		DurationMs:        resp.DurationMs,
	}
	if err := o.history.RecordComparison(record); err != nil {
		log.Printf("⚠️ Failed to record comparison: %v", err)
	}
}

// sortCartsByTotal orders carts cheapest first, with the site name
// breaking ties so output is stable
func sortCartsByTotal(carts []*models.AlternativeCart) {
	sort.Slice(carts, func(i, j int) bool {
		ti, tj := carts[i].GetTotalPrice(), carts[j].GetTotalPrice()
		if ti != tj {
			return ti < tj
		}
		return carts[i].GetSiteURL() < carts[j].GetSiteURL()
	})
}
