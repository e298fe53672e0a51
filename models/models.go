package models

import (
	"fmt"
	"strings"
	"time"
)

// CartProduct represents one line item captured from the user's cart.
// Quantity times price defines the line cost.
type CartProduct struct {
	ProductName string  `json:"productName" validate:"required"`
	Price       float64 `json:"price" validate:"required,gt=0"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
}

// LineTotal returns price scaled by quantity
func (p *CartProduct) LineTotal() float64 {
	return p.Price * float64(p.Quantity)
}

// Validate checks that the product is usable for comparison
func (p *CartProduct) Validate() error {
	if strings.TrimSpace(p.ProductName) == "" {
		return fmt.Errorf("product name is required")
	}
	if p.Price <= 0 {
		return fmt.Errorf("product %q has invalid price %.2f", p.ProductName, p.Price)
	}
	if p.Quantity < 1 {
		return fmt.Errorf("product %q has invalid quantity %d", p.ProductName, p.Quantity)
	}
	return nil
}

// CartTotal returns the total cost of an original cart
func CartTotal(products []CartProduct) float64 {
	total := 0.0
	for i := range products {
		total += products[i].LineTotal()
	}
	return total
}

// AlternativeProduct represents one matched product on a candidate site.
// Price is already quantity-scaled at match time, so cart totals are a
// plain sum over products.
type AlternativeProduct struct {
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	URL         string  `json:"url"`
	SiteURL     string  `json:"siteUrl"`
	Description string  `json:"description,omitempty"`
}

// AlternativeCart is a full-cart match on a single candidate site.
// It only exists when every original product was matched; partial
// matches are discarded upstream and never surfaced.
type AlternativeCart struct {
	Products         []AlternativeProduct `json:"products"`
	OriginalProducts []CartProduct        `json:"originalProducts"`
}

// IsComplete reports whether every original product has a match
func (c *AlternativeCart) IsComplete() bool {
	return len(c.Products) > 0 && len(c.Products) == len(c.OriginalProducts)
}

// GetTotalPrice returns the alternative cart total
func (c *AlternativeCart) GetTotalPrice() float64 {
	total := 0.0
	for i := range c.Products {
		total += c.Products[i].Price
	}
	return total
}

// GetOriginalTotal returns the original cart total
func (c *AlternativeCart) GetOriginalTotal() float64 {
	return CartTotal(c.OriginalProducts)
}

// GetPotentialSavings returns how much cheaper the alternative cart is,
// never negative
func (c *AlternativeCart) GetPotentialSavings() float64 {
	savings := c.GetOriginalTotal() - c.GetTotalPrice()
	if savings < 0 {
		return 0.0
	}
	return savings
}

// GetSiteURL returns the site the cart was assembled from
func (c *AlternativeCart) GetSiteURL() string {
	if len(c.Products) > 0 {
		return c.Products[0].SiteURL
	}
	return ""
}

// View converts the cart into its response shape
func (c *AlternativeCart) View() AlternativeCartView {
	return AlternativeCartView{
		SiteURL:  c.GetSiteURL(),
		Products: c.Products,
		Total:    c.GetTotalPrice(),
		Savings:  c.GetPotentialSavings(),
	}
}

// HostnameScore is the ranking signal for one discovered hostname
type HostnameScore struct {
	Hostname           string  `json:"hostname"`
	NormalizedHostname string  `json:"normalizedHostname"`
	RawScore           float64 `json:"rawScore"`
	Appearances        int     `json:"appearances"`
	FinalScore         float64 `json:"finalScore"`
}

// SearchResult is one entry returned by the web-search collaborator
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// PopupEvaluation is the transient result of popup detection on one
// page. Never persisted.
type PopupEvaluation struct {
	IsPopup        bool   `json:"isPopup"`
	RejectSelector string `json:"rejectSelector,omitempty"`
	Length         int    `json:"length,omitempty"`
}

// ExtractedProduct is one product record produced by search-results
// extraction, with its page link filled in after link mapping
type ExtractedProduct struct {
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	URL         string  `json:"url,omitempty"`
}

// ProductDetail is the result of single-product-page extraction
type ProductDetail struct {
	ProductName string  `json:"productName"`
	Price       float64 `json:"price"`
	Description string  `json:"description,omitempty"`
}

// ComparisonRequest is the HTTP boundary input: the captured cart plus
// the hostname the user is currently on
type ComparisonRequest struct {
	CartProducts []CartProduct `json:"cartProducts" validate:"required"`
	Hostname     string        `json:"hostname" validate:"required"`
}

// Validate checks the request is well-formed before the engine runs
func (r *ComparisonRequest) Validate() error {
	if len(r.CartProducts) == 0 {
		return fmt.Errorf("cartProducts must not be empty")
	}
	if strings.TrimSpace(r.Hostname) == "" {
		return fmt.Errorf("hostname is required")
	}
	for i := range r.CartProducts {
		if err := r.CartProducts[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// AlternativeCartView is the response shape for one alternative cart
type AlternativeCartView struct {
	SiteURL  string               `json:"siteUrl"`
	Products []AlternativeProduct `json:"products"`
	Total    float64              `json:"total"`
	Savings  float64              `json:"savings"`
}

// ComparisonResponse is the HTTP boundary output
type ComparisonResponse struct {
	OriginalCart     []CartProduct         `json:"originalCart"`
	OriginalTotal    float64               `json:"originalTotal"`
	AlternativeCarts []AlternativeCartView `json:"alternativeCarts"`
	SitesAttempted   int                   `json:"sitesAttempted"`
	DurationMs       int64                 `json:"durationMs"`
}

// ComparisonRecord is one persisted comparison summary
type ComparisonRecord struct {
	ID                int       `json:"id" db:"id"`
	Hostname          string    `json:"hostname" db:"hostname"`
	ProductCount      int       `json:"product_count" db:"product_count"`
	CandidatesFound   int       `json:"candidates_found" db:"candidates_found"`
	SitesAttempted    int       `json:"sites_attempted" db:"sites_attempted"`
	AlternativesFound int       `json:"alternatives_found" db:"alternatives_found"`
	BestSavings       float64   `json:"best_savings" db:"best_savings"`
	DurationMs        int64     `json:"duration_ms" db:"duration_ms"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// SiteProfile remembers per-hostname hints learned from successful
// visits, so later visits can skip the heuristics that already worked
type SiteProfile struct {
	Hostname       string     `json:"hostname" db:"hostname"`
	SearchSelector string     `json:"search_selector" db:"search_selector"`
	SuccessCount   int        `json:"success_count" db:"success_count"`
	FailureCount   int        `json:"failure_count" db:"failure_count"`
	LastSuccessAt  *time.Time `json:"last_success_at" db:"last_success_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
