package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"cartscout/cache"
	"cartscout/config"
	"cartscout/models"
)

// ExtractionMode selects which page shape the model is asked to read
type ExtractionMode string

const (
	ModeSearchResults ExtractionMode = "searchResults"
	ModeSingleProduct ExtractionMode = "singleProduct"
)

// ExtractionError reports that the model could not produce usable
// structured data for a page
type ExtractionError struct {
	Mode ExtractionMode
	Site string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed (%s) on %s: %v", e.Mode, e.Site, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

var priceParser = NewLocaleParser()

// PriceValue tolerates the model returning prices as numbers or as
// locale-formatted strings like "$49.99" or "1.299,00"
type PriceValue float64

func (p *PriceValue) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*p = PriceValue(f)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("price is neither number nor string: %s", string(data))
	}

	value, _, err := priceParser.ParsePrice(s)
	if err != nil {
		return err
	}
	*p = PriceValue(value)
	return nil
}

// Anchor is one link harvested from the live page, used to attach URLs
// to extracted products
type Anchor struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

type searchResultRow struct {
	ProductName string     `json:"productName"`
	Price       PriceValue `json:"price"`
}

type productDetailRow struct {
	ProductName string     `json:"productName"`
	Price       PriceValue `json:"price"`
	Description string     `json:"description"`
}

// Response schemas in the generateContent OpenAPI subset
var searchResultsSchema = json.RawMessage(`{
	"type": "ARRAY",
	"items": {
		"type": "OBJECT",
		"properties": {
			"productName": {"type": "STRING"},
			"price": {"type": "NUMBER"}
		},
		"required": ["productName", "price"]
	}
}`)

var productDetailSchema = json.RawMessage(`{
	"type": "OBJECT",
	"properties": {
		"productName": {"type": "STRING"},
		"price": {"type": "NUMBER"},
		"description": {"type": "STRING"}
	},
	"required": ["productName", "price"]
}`)

// Page text beyond this many bytes adds cost without adding products
const promptMaxTextBytes = 20000

// Extractor turns harvested page text into structured product data,
// with a write-through cache in front of the model
type Extractor struct {
	cfg       *config.Config
	generator Generator
	store     cache.Store

	cacheHits   atomic.Int64
	cacheMisses atomic.Int64
}

func NewExtractor(cfg *config.Config, generator Generator, store cache.Store) *Extractor {
	return &Extractor{cfg: cfg, generator: generator, store: store}
}

// CacheStats returns how often extraction was served from cache
func (ex *Extractor) CacheStats() (hits, misses int64) {
	return ex.cacheHits.Load(), ex.cacheMisses.Load()
}

// ExtractSearchResults reads a search results page and returns the
// product offers on it, with URLs attached from the page's own links.
// Products whose name matches no link keep an empty URL.
func (ex *Extractor) ExtractSearchResults(ctx context.Context, site, productName, pageText string, anchors []Anchor) ([]models.ExtractedProduct, error) {
	if strings.TrimSpace(pageText) == "" {
		return nil, &ExtractionError{Mode: ModeSearchResults, Site: site, Err: errors.New("page text is empty")}
	}

	key := cache.Key("search", site, productName)

	var rows []searchResultRow
	if err := ex.store.Get(ctx, key, &rows); err == nil {
		ex.cacheHits.Add(1)
		log.Printf("✅ Extraction cache hit for %q on %s", productName, site)
		return mapLinks(rows, anchors), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("⚠️ Extraction cache read failed: %v", err)
	}
	ex.cacheMisses.Add(1)

	prompt := buildSearchPrompt(productName, boundText(pageText))
	raw, err := ex.generator.GenerateJSON(ctx, prompt, searchResultsSchema)
	if err != nil {
		return nil, &ExtractionError{Mode: ModeSearchResults, Site: site, Err: err}
	}

	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &ExtractionError{Mode: ModeSearchResults, Site: site, Err: fmt.Errorf("malformed model output: %v", err)}
	}

	rows = filterRows(rows)
	if err := ex.store.Set(ctx, key, rows, ex.cfg.CacheTTL); err != nil {
		log.Printf("⚠️ Extraction cache write failed: %v", err)
	}

	log.Printf("🔍 Extracted %d offers for %q on %s", len(rows), productName, site)
	return mapLinks(rows, anchors), nil
}

// ExtractProductDetail reads a single product page. pageURL identifies
// the page for caching; when it is unknown the text digest stands in.
func (ex *Extractor) ExtractProductDetail(ctx context.Context, site, pageURL, pageText string) (*models.ProductDetail, error) {
	if strings.TrimSpace(pageText) == "" {
		return nil, &ExtractionError{Mode: ModeSingleProduct, Site: site, Err: errors.New("page text is empty")}
	}

	ident := pageURL
	if ident == "" {
		ident = cache.ContentDigest(pageText)
	}
	key := cache.Key("product", site, ident)

	var row productDetailRow
	if err := ex.store.Get(ctx, key, &row); err == nil {
		ex.cacheHits.Add(1)
		log.Printf("✅ Extraction cache hit for product page on %s", site)
		return detailFromRow(row), nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		log.Printf("⚠️ Extraction cache read failed: %v", err)
	}
	ex.cacheMisses.Add(1)

	prompt := buildDetailPrompt(boundText(pageText))
	raw, err := ex.generator.GenerateJSON(ctx, prompt, productDetailSchema)
	if err != nil {
		return nil, &ExtractionError{Mode: ModeSingleProduct, Site: site, Err: err}
	}

	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, &ExtractionError{Mode: ModeSingleProduct, Site: site, Err: fmt.Errorf("malformed model output: %v", err)}
	}
	if strings.TrimSpace(row.ProductName) == "" || row.Price <= 0 {
		return nil, &ExtractionError{Mode: ModeSingleProduct, Site: site, Err: errors.New("model found no product on page")}
	}

	if err := ex.store.Set(ctx, key, row, ex.cfg.CacheTTL); err != nil {
		log.Printf("⚠️ Extraction cache write failed: %v", err)
	}

	return detailFromRow(row), nil
}

func detailFromRow(row productDetailRow) *models.ProductDetail {
	return &models.ProductDetail{
		ProductName: strings.TrimSpace(row.ProductName),
		Price:       float64(row.Price),
		Description: strings.TrimSpace(row.Description),
	}
}

// filterRows drops records the model should not have produced
func filterRows(rows []searchResultRow) []searchResultRow {
	kept := rows[:0]
	for _, row := range rows {
		if strings.TrimSpace(row.ProductName) == "" || row.Price <= 0 {
			continue
		}
		kept = append(kept, row)
	}
	return kept
}

// mapLinks attaches a page URL to each extracted product by matching
// product names against the harvested link texts
func mapLinks(rows []searchResultRow, anchors []Anchor) []models.ExtractedProduct {
	products := make([]models.ExtractedProduct, 0, len(rows))
	for _, row := range rows {
		products = append(products, models.ExtractedProduct{
			ProductName: strings.TrimSpace(row.ProductName),
			Price:       float64(row.Price),
			URL:         matchAnchor(row.ProductName, anchors),
		})
	}
	return products
}

// matchAnchor finds the link most likely pointing at the named
// product. Returns "" when no link text resembles the name.
func matchAnchor(productName string, anchors []Anchor) string {
	name := normalizeText(productName)
	if name == "" {
		return ""
	}

	bestHref := ""
	bestOverlap := 0.0

	for _, a := range anchors {
		text := normalizeText(a.Text)
		if text == "" || a.Href == "" {
			continue
		}
		if text == name {
			return a.Href
		}
		if strings.Contains(text, name) || (len(name) > len(text) && strings.Contains(name, text) && len(text) >= 10) {
			return a.Href
		}
		if overlap := tokenOverlap(name, text); overlap > bestOverlap {
			bestOverlap = overlap
			bestHref = a.Href
		}
	}

	if bestOverlap >= 0.6 {
		return bestHref
	}
	return ""
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// tokenOverlap returns the share of name tokens present in text
func tokenOverlap(name, text string) float64 {
	nameTokens := strings.Fields(name)
	if len(nameTokens) == 0 {
		return 0
	}
	textTokens := map[string]bool{}
	for _, t := range strings.Fields(text) {
		textTokens[t] = true
	}
	matched := 0
	for _, t := range nameTokens {
		if textTokens[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(nameTokens))
}

func boundText(text string) string {
	if len(text) > promptMaxTextBytes {
		return text[:promptMaxTextBytes]
	}
	return text
}

func buildSearchPrompt(productName, pageText string) string {
	return fmt.Sprintf(`You are reading the text of a retail search results page.

List every product offer on the page that matches or is a close substitute for %q. For each offer give:
- productName: the product title exactly as written on the page
- price: the current selling price as a plain number, no currency symbols

Rules:
- Include only real product offers that show a price.
- Skip accessories, warranties, sponsored duplicates and unrelated items.
- Return an empty array if nothing on the page matches.

Page text:
"""
%s
"""`, productName, pageText)
}

func buildDetailPrompt(pageText string) string {
	return fmt.Sprintf(`You are reading the text of a single product page on a retail site.

Extract:
- productName: the product title
- price: the current selling price as a plain number, no currency symbols
- description: a one or two sentence description of the product

Use the discounted price when the page shows both an original and a sale price.

Page text:
"""
%s
"""`, pageText)
}
