package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"cartscout/cache"
	"cartscout/config"
)

// fakeGenerator is a canned model response with call counting
type fakeGenerator struct {
	calls    int
	response []byte
	err      error
}

func (f *fakeGenerator) GenerateJSON(ctx context.Context, prompt string, schema json.RawMessage) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func newTestExtractor(gen *fakeGenerator) (*Extractor, *cache.MemoryStore) {
	store := cache.NewMemoryStore()
	cfg := &config.Config{CacheTTL: time.Hour}
	return NewExtractor(cfg, gen, store), store
}

func TestPriceValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    float64
		wantErr bool
	}{
		{"plain number", `19.99`, 19.99, false},
		{"integer", `45`, 45, false},
		{"dollar string", `"$49.99"`, 49.99, false},
		{"euro string", `"49,99 €"`, 49.99, false},
		{"european grouping", `"1.299,00"`, 1299, false},
		{"us grouping", `"1,234.56"`, 1234.56, false},
		{"unparseable string", `"call for price"`, 0, true},
		{"boolean", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p PriceValue
			err := json.Unmarshal([]byte(tt.data), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal(%s) error = %v, wantErr %v", tt.data, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(float64(p)-tt.want) > 1e-9 {
				t.Errorf("Unmarshal(%s) = %v, want %v", tt.data, float64(p), tt.want)
			}
		})
	}
}

func TestExtractor_ExtractSearchResults(t *testing.T) {
	gen := &fakeGenerator{response: []byte(`[
		{"productName": "Widget Pro 2000", "price": 19.99},
		{"productName": "", "price": 5.00},
		{"productName": "Freebie Widget", "price": 0}
	]`)}
	ex, store := newTestExtractor(gen)
	defer store.Stop()

	anchors := []Anchor{
		{Text: "Widget Pro 2000", Href: "https://shop.example.com/widget-pro-2000"},
		{Text: "Cart", Href: "https://shop.example.com/cart"},
	}

	products, err := ex.ExtractSearchResults(context.Background(), "shop.example.com", "widget", "Widget Pro 2000 $19.99 In stock", anchors)
	if err != nil {
		t.Fatalf("ExtractSearchResults() error = %v", err)
	}

	// Nameless and zero-priced rows are dropped
	if len(products) != 1 {
		t.Fatalf("got %d products, want 1 (invalid rows filtered)", len(products))
	}
	if products[0].ProductName != "Widget Pro 2000" || products[0].Price != 19.99 {
		t.Errorf("product = %+v, want Widget Pro 2000 at 19.99", products[0])
	}
	if products[0].URL != "https://shop.example.com/widget-pro-2000" {
		t.Errorf("product URL = %q, want the matching anchor href", products[0].URL)
	}
}

func TestExtractor_CacheHitSkipsModel(t *testing.T) {
	gen := &fakeGenerator{response: []byte(`[{"productName": "Widget Pro 2000", "price": 19.99}]`)}
	ex, store := newTestExtractor(gen)
	defer store.Stop()

	ctx := context.Background()
	pageText := "Widget Pro 2000 $19.99"

	if _, err := ex.ExtractSearchResults(ctx, "shop.example.com", "widget", pageText, nil); err != nil {
		t.Fatalf("first extraction error = %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("model calls after first extraction = %d, want 1", gen.calls)
	}

	// Second call with fresh anchors: served from cache, links mapped
	// against the live page
	anchors := []Anchor{{Text: "Widget Pro 2000", Href: "https://shop.example.com/p/42"}}
	products, err := ex.ExtractSearchResults(ctx, "shop.example.com", "widget", pageText, anchors)
	if err != nil {
		t.Fatalf("second extraction error = %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("model calls after cache hit = %d, want still 1", gen.calls)
	}
	if len(products) != 1 || products[0].URL != "https://shop.example.com/p/42" {
		t.Errorf("cached products = %+v, want link from the fresh anchors", products)
	}

	hits, misses := ex.CacheStats()
	if hits != 1 || misses != 1 {
		t.Errorf("CacheStats() = %d hits %d misses, want 1 and 1", hits, misses)
	}
}

func TestExtractor_ExtractSearchResults_Errors(t *testing.T) {
	t.Run("empty page text", func(t *testing.T) {
		gen := &fakeGenerator{}
		ex, store := newTestExtractor(gen)
		defer store.Stop()

		_, err := ex.ExtractSearchResults(context.Background(), "shop.example.com", "widget", "   ", nil)
		var extErr *ExtractionError
		if !errors.As(err, &extErr) {
			t.Fatalf("error = %v, want *ExtractionError", err)
		}
		if extErr.Mode != ModeSearchResults || extErr.Site != "shop.example.com" {
			t.Errorf("ExtractionError = %+v, want searchResults mode on shop.example.com", extErr)
		}
		if gen.calls != 0 {
			t.Errorf("model called %d times for empty text, want 0", gen.calls)
		}
	})

	t.Run("model failure", func(t *testing.T) {
		modelErr := errors.New("model unavailable")
		gen := &fakeGenerator{err: modelErr}
		ex, store := newTestExtractor(gen)
		defer store.Stop()

		_, err := ex.ExtractSearchResults(context.Background(), "shop.example.com", "widget", "some page", nil)
		var extErr *ExtractionError
		if !errors.As(err, &extErr) {
			t.Fatalf("error = %v, want *ExtractionError", err)
		}
		if !errors.Is(err, modelErr) {
			t.Errorf("error chain does not carry the model error: %v", err)
		}
	})

	t.Run("malformed model output", func(t *testing.T) {
		gen := &fakeGenerator{response: []byte(`the model apologizes`)}
		ex, store := newTestExtractor(gen)
		defer store.Stop()

		_, err := ex.ExtractSearchResults(context.Background(), "shop.example.com", "widget", "some page", nil)
		var extErr *ExtractionError
		if !errors.As(err, &extErr) {
			t.Fatalf("error = %v, want *ExtractionError", err)
		}
	})
}

func TestExtractor_StringPricesFromModel(t *testing.T) {
	gen := &fakeGenerator{response: []byte(`[{"productName": "Widget", "price": "$24.50"}]`)}
	ex, store := newTestExtractor(gen)
	defer store.Stop()

	products, err := ex.ExtractSearchResults(context.Background(), "shop.example.com", "widget", "Widget $24.50", nil)
	if err != nil {
		t.Fatalf("ExtractSearchResults() error = %v", err)
	}
	if len(products) != 1 || products[0].Price != 24.50 {
		t.Errorf("products = %+v, want Widget at 24.50", products)
	}
}

func TestExtractor_ExtractProductDetail(t *testing.T) {
	gen := &fakeGenerator{response: []byte(`{"productName": "Widget Pro 2000", "price": 49.99, "description": "The professional widget."}`)}
	ex, store := newTestExtractor(gen)
	defer store.Stop()

	ctx := context.Background()
	detail, err := ex.ExtractProductDetail(ctx, "shop.example.com", "https://shop.example.com/p/42", "Widget Pro 2000 ... $49.99")
	if err != nil {
		t.Fatalf("ExtractProductDetail() error = %v", err)
	}
	if detail.ProductName != "Widget Pro 2000" || detail.Price != 49.99 {
		t.Errorf("detail = %+v, want Widget Pro 2000 at 49.99", detail)
	}
	if detail.Description != "The professional widget." {
		t.Errorf("description = %q", detail.Description)
	}

	// Same page URL: cache serves it
	if _, err := ex.ExtractProductDetail(ctx, "shop.example.com", "https://shop.example.com/p/42", "Widget Pro 2000 ... $49.99"); err != nil {
		t.Fatalf("second ExtractProductDetail() error = %v", err)
	}
	if gen.calls != 1 {
		t.Errorf("model calls = %d, want 1 after cache hit", gen.calls)
	}
}

func TestExtractor_ExtractProductDetail_NoProduct(t *testing.T) {
	gen := &fakeGenerator{response: []byte(`{"productName": "", "price": 0}`)}
	ex, store := newTestExtractor(gen)
	defer store.Stop()

	_, err := ex.ExtractProductDetail(context.Background(), "shop.example.com", "", "some unrelated page")
	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("error = %v, want *ExtractionError", err)
	}
	if extErr.Mode != ModeSingleProduct {
		t.Errorf("mode = %q, want %q", extErr.Mode, ModeSingleProduct)
	}
}

func TestMatchAnchor(t *testing.T) {
	tests := []struct {
		name    string
		product string
		anchors []Anchor
		want    string
	}{
		{
			name:    "exact match",
			product: "Widget Pro 2000",
			anchors: []Anchor{{Text: "Widget Pro 2000", Href: "/p/1"}},
			want:    "/p/1",
		},
		{
			name:    "case and spacing normalized",
			product: "Widget  Pro 2000",
			anchors: []Anchor{{Text: "  WIDGET PRO 2000 ", Href: "/p/1"}},
			want:    "/p/1",
		},
		{
			name:    "anchor contains name",
			product: "Widget Pro 2000",
			anchors: []Anchor{{Text: "Widget Pro 2000 - Best Seller", Href: "/p/2"}},
			want:    "/p/2",
		},
		{
			name:    "name contains long anchor",
			product: "Widget Pro 2000 Deluxe Edition",
			anchors: []Anchor{{Text: "Widget Pro 2000", Href: "/p/3"}},
			want:    "/p/3",
		},
		{
			name:    "short anchor fragment is not enough",
			product: "Widget Pro 2000 Deluxe Edition",
			anchors: []Anchor{{Text: "Widget", Href: "/p/4"}},
			want:    "",
		},
		{
			name:    "token overlap above threshold",
			product: "Stainless Steel Blender Jug",
			anchors: []Anchor{{Text: "Blender with stainless steel jug and lid", Href: "/p/5"}},
			want:    "/p/5",
		},
		{
			name:    "weak overlap rejected",
			product: "Stainless Steel Blender Jug",
			anchors: []Anchor{{Text: "Steel garden rake", Href: "/p/6"}},
			want:    "",
		},
		{
			name:    "empty href skipped",
			product: "Widget Pro 2000",
			anchors: []Anchor{{Text: "Widget Pro 2000", Href: ""}},
			want:    "",
		},
		{
			name:    "no anchors",
			product: "Widget Pro 2000",
			anchors: nil,
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchAnchor(tt.product, tt.anchors); got != tt.want {
				t.Errorf("matchAnchor(%q) = %q, want %q", tt.product, got, tt.want)
			}
		})
	}
}
