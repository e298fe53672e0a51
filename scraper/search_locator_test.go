package scraper

import "testing"

func TestScoreInput(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		label string
		want  int
	}{
		{
			name:  "type search wins outright",
			attrs: map[string]string{"type": "search"},
			want:  scoreTypeSearch,
		},
		{
			name:  "role searchbox",
			attrs: map[string]string{"type": "text", "role": "searchbox"},
			want:  scoreRoleSearch,
		},
		{
			name:  "name q",
			attrs: map[string]string{"type": "text", "name": "q"},
			want:  scoreNameExactQ,
		},
		{
			name:  "id q",
			attrs: map[string]string{"type": "text", "id": "q"},
			want:  scoreNameExactQ,
		},
		{
			name:  "name vocabulary",
			attrs: map[string]string{"type": "text", "name": "site-search"},
			want:  scoreNameVocab,
		},
		{
			name:  "placeholder vocabulary",
			attrs: map[string]string{"type": "text", "placeholder": "Search products..."},
			want:  scorePlaceholder,
		},
		{
			name:  "aria label vocabulary",
			attrs: map[string]string{"type": "text", "aria-label": "Suche"},
			want:  scoreAriaLabel,
		},
		{
			name:  "form action vocabulary",
			attrs: map[string]string{"type": "text", "form-action": "/search"},
			want:  scoreFormAction,
		},
		{
			name:  "class vocabulary",
			attrs: map[string]string{"type": "text", "class": "header-search-field"},
			want:  scoreClassVocab,
		},
		{
			name:  "label text vocabulary",
			attrs: map[string]string{"type": "text"},
			label: "Search our catalog",
			want:  scoreLabelText,
		},
		{
			name: "evidence accumulates",
			attrs: map[string]string{
				"type":        "text",
				"name":        "q",
				"id":          "search-field",
				"placeholder": "Buscar productos",
				"class":       "search-input",
			},
			want: scoreNameExactQ + scoreNameVocab + scorePlaceholder + scoreClassVocab,
		},
		{
			name:  "untyped input with no evidence",
			attrs: map[string]string{},
			want:  0,
		},
		{
			name:  "newsletter email field rejected",
			attrs: map[string]string{"type": "email", "placeholder": "Search for deals in your inbox"},
			want:  0,
		},
		{
			name:  "hidden input rejected",
			attrs: map[string]string{"type": "hidden", "name": "q"},
			want:  0,
		},
		{
			name:  "password rejected",
			attrs: map[string]string{"type": "password", "name": "search"},
			want:  0,
		},
		{
			name:  "quantity spinner rejected",
			attrs: map[string]string{"type": "number", "name": "qty"},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ScoreInput(tt.attrs, tt.label); got != tt.want {
				t.Errorf("ScoreInput(%v, %q) = %d, want %d", tt.attrs, tt.label, got, tt.want)
			}
		})
	}
}

func TestScoreInput_RanksRealisticHeader(t *testing.T) {
	// A typical site header: the search box must outscore the
	// newsletter signup and the coupon code field
	searchBox := ScoreInput(map[string]string{
		"type":        "text",
		"name":        "q",
		"placeholder": "Search",
		"class":       "nav-search",
	}, "")
	newsletter := ScoreInput(map[string]string{
		"type":        "email",
		"placeholder": "Your email address",
	}, "")
	coupon := ScoreInput(map[string]string{
		"type": "text",
		"name": "coupon_code",
	}, "")

	if searchBox <= newsletter || searchBox <= coupon {
		t.Errorf("search box score %d must beat newsletter %d and coupon %d", searchBox, newsletter, coupon)
	}
	if newsletter != 0 {
		t.Errorf("newsletter field score = %d, want 0", newsletter)
	}
	if coupon != 0 {
		t.Errorf("coupon field score = %d, want 0", coupon)
	}
}

func TestDeriveInputSelector(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string]string
		want  string
	}{
		{
			name:  "id preferred",
			attrs: map[string]string{"id": "search-box", "name": "q", "class": "input"},
			want:  "#search-box",
		},
		{
			name:  "invalid id falls back to name",
			attrs: map[string]string{"id": "search box", "name": "q"},
			want:  `input[name="q"]`,
		},
		{
			name:  "class chain",
			attrs: map[string]string{"class": "header search wide"},
			want:  "input.header.search.wide",
		},
		{
			name:  "hostile class tokens dropped",
			attrs: map[string]string{"class": `search [x] valid-token`},
			want:  "input.search.valid-token",
		},
		{
			name:  "type search last resort",
			attrs: map[string]string{"type": "search"},
			want:  "input[type=search]",
		},
		{
			name:  "nothing usable",
			attrs: map[string]string{"type": "text"},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := deriveInputSelector(tt.attrs); got != tt.want {
				t.Errorf("deriveInputSelector(%v) = %q, want %q", tt.attrs, got, tt.want)
			}
		})
	}
}
