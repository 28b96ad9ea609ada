// Package detector decides when a static fetch should be retried in a browser.
package detector

import (
	"bytes"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

const (
	defaultBodyThreshold = 2048
	// scriptSharePercent is the share of a short page taken up by <script>
	// elements above which the page is treated as a client-rendered shell.
	scriptSharePercent = 25
)

var shellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("window.__nuxt__"),
	[]byte("noscript>you need to enable javascript"),
}

// Heuristic flags pages that look like JavaScript shells without a data table.
type Heuristic struct {
	bodyThreshold int
}

// NewHeuristic returns a Heuristic. A non-positive threshold selects the default.
func NewHeuristic(bodyThreshold int) *Heuristic {
	if bodyThreshold <= 0 {
		bodyThreshold = defaultBodyThreshold
	}
	return &Heuristic{bodyThreshold: bodyThreshold}
}

// ShouldPromote reports whether resp should be fetched again with a browser.
// Only 200 responses from the static fetcher qualify, and any page that
// already carries a <table> is kept as is.
func (h *Heuristic) ShouldPromote(resp citypop.FetchResponse) bool {
	if resp.UsedHeadless || resp.StatusCode != 200 {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	if bytes.Contains(lower, []byte("<table")) {
		return false
	}
	for _, marker := range shellMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	if len(body) >= h.bodyThreshold {
		return false
	}
	return scriptShare(body) >= scriptSharePercent
}

// scriptShare returns the percentage of body bytes inside <script> elements.
func scriptShare(body []byte) int {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}
	scripted := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if html, err := goquery.OuterHtml(s); err == nil {
			scripted += len(html)
		}
	})
	return scripted * 100 / len(body)
}
