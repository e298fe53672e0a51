package discovery

import (
	"net"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"cartscout/models"
)

// hostTally accumulates evidence for one hostname across product
// searches. Position weights are kept as integer units of
// 1/maxResults so accumulation order can never change the outcome.
type hostTally struct {
	units       int
	appearances int
}

// Scorer turns per-product search results into ranked candidate
// hostnames. One Scorer serves one discovery run.
type Scorer struct {
	maxResults int
	threshold  float64
	exclude    *regexp.Regexp
	tallies    map[string]*hostTally
}

// NewScorer creates a scorer that excludes the hostname the user is
// currently on, protocol- and www-agnostic.
func NewScorer(currentHostname string, maxResults int, threshold float64) *Scorer {
	normalized := NormalizeHostname(currentHostname)
	exclude := regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?` + regexp.QuoteMeta(normalized) + `(?:[/:?#].*)?$`)

	return &Scorer{
		maxResults: maxResults,
		threshold:  threshold,
		exclude:    exclude,
		tallies:    make(map[string]*hostTally),
	}
}

// AddResults folds one product's search results into the tallies.
// Earlier results carry more weight: (maxResults - rank) / maxResults.
func (s *Scorer) AddResults(results []models.SearchResult) {
	for rank, result := range results {
		hostname := NormalizeHostname(result.Link)
		if hostname == "" {
			continue
		}
		if s.exclude.MatchString(result.Link) || s.exclude.MatchString(hostname) {
			continue
		}

		weight := s.maxResults - rank
		if weight < 0 {
			weight = 0
		}

		tally, exists := s.tallies[hostname]
		if !exists {
			tally = &hostTally{}
			s.tallies[hostname] = tally
		}
		tally.units += weight
		tally.appearances++
	}
}

// Ranked computes final scores, filters by threshold and returns
// candidates best-first. Ties break on hostname so identical inputs
// always produce identical output order.
func (s *Scorer) Ranked(totalProducts int) []models.HostnameScore {
	if totalProducts <= 0 {
		return nil
	}

	scored := make([]models.HostnameScore, 0, len(s.tallies))
	for hostname, tally := range s.tallies {
		rawScore := float64(tally.units) / float64(s.maxResults)
		finalScore := (rawScore / float64(totalProducts)) *
			(float64(tally.appearances) / float64(totalProducts))

		if finalScore < s.threshold {
			continue
		}

		scored = append(scored, models.HostnameScore{
			Hostname:           hostname,
			NormalizedHostname: hostname,
			RawScore:           rawScore,
			Appearances:        tally.appearances,
			FinalScore:         finalScore,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		return scored[i].Hostname < scored[j].Hostname
	})

	return scored
}

// NormalizeHostname reduces a link or bare host to its canonical
// hostname: scheme and port dropped, www. stripped, lowercased.
// Returns "" for links that cannot name a retailer (bare IPs,
// non-http schemes, garbage).
func NormalizeHostname(link string) string {
	trimmed := strings.TrimSpace(link)
	if trimmed == "" {
		return ""
	}

	candidate := trimmed
	if strings.Contains(candidate, "://") {
		parsed, err := url.Parse(candidate)
		if err != nil {
			return ""
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return ""
		}
		candidate = parsed.Hostname()
	} else {
		// Bare host, possibly with port or path
		if idx := strings.IndexAny(candidate, "/?#"); idx >= 0 {
			candidate = candidate[:idx]
		}
		if host, _, err := net.SplitHostPort(candidate); err == nil {
			candidate = host
		}
	}

	candidate = strings.ToLower(strings.TrimSuffix(candidate, "."))
	candidate = strings.TrimPrefix(candidate, "www.")

	if candidate == "" || net.ParseIP(candidate) != nil || !strings.Contains(candidate, ".") {
		return ""
	}

	return candidate
}
