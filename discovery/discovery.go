package discovery

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"cartscout/config"
	"cartscout/models"
)

// SiteDiscovery turns a cart into ranked candidate retailer hostnames.
// Products are searched in small concurrent batches with a stagger
// between queries so the search API's rate limits are respected.
type SiteDiscovery struct {
	searcher Searcher
	cfg      *config.Config
	limiter  *rate.Limiter
}

// NewSiteDiscovery creates the discovery stage
func NewSiteDiscovery(searcher Searcher, cfg *config.Config) *SiteDiscovery {
	return &SiteDiscovery{
		searcher: searcher,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(cfg.SearchStagger), 1),
	}
}

// DiscoverSites searches for every cart product and returns candidate
// hostnames ranked by score, current hostname excluded
func (d *SiteDiscovery) DiscoverSites(ctx context.Context, products []models.CartProduct, currentHostname string) ([]models.HostnameScore, error) {
	if len(products) == 0 {
		return nil, fmt.Errorf("no products to discover sites for")
	}

	scorer := NewScorer(currentHostname, d.cfg.SearchMaxResults, d.cfg.ScoreThreshold)

	batchSize := d.cfg.DiscoveryBatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(products); start += batchSize {
		end := start + batchSize
		if end > len(products) {
			end = len(products)
		}
		batch := products[start:end]

		batchResults := make([][]models.SearchResult, len(batch))
		var wg sync.WaitGroup
		for i := range batch {
			wg.Add(1)
			go func(slot int, product models.CartProduct) {
				defer wg.Done()

				if err := d.limiter.Wait(ctx); err != nil {
					log.Printf("⚠️ Search stagger interrupted for %q: %v", product.ProductName, err)
					return
				}

				query := d.buildQuery(product)
				results, err := d.searcher.Search(ctx, query, d.cfg.SearchMaxResults)
				if err != nil {
					// A failed search contributes zero score, never
					// aborts the batch
					log.Printf("⚠️ Search failed for %q: %v", product.ProductName, err)
					return
				}
				batchResults[slot] = results
			}(i, batch[i])
		}
		wg.Wait()

		for _, results := range batchResults {
			scorer.AddResults(results)
		}
	}

	ranked := scorer.Ranked(len(products))
	log.Printf("🔍 Discovery found %d candidate sites above threshold %.2f", len(ranked), d.cfg.ScoreThreshold)

	return ranked, nil
}

// buildQuery combines the product name with purchase-intent keywords
func (d *SiteDiscovery) buildQuery(product models.CartProduct) string {
	name := strings.TrimSpace(product.ProductName)
	keywords := strings.TrimSpace(d.cfg.SearchIntentKeywords)
	if keywords == "" {
		return name
	}
	return name + " " + keywords
}
