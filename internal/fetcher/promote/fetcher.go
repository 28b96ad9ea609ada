// Package promote wraps a static fetcher and re-fetches JavaScript shells
// through a headless browser.
package promote

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
	"github.com/JakeFAU/citypop-crawler/internal/metrics"
)

// Detector decides whether a static response needs a browser.
type Detector interface {
	ShouldPromote(resp citypop.FetchResponse) bool
}

// Fetcher implements citypop.Fetcher.
type Fetcher struct {
	static   citypop.Fetcher
	headless citypop.Fetcher
	detector Detector
	logger   *zap.Logger
}

// New builds a promoting fetcher. A nil headless fetcher or detector turns
// it into a pass-through for static.
func New(static, headless citypop.Fetcher, detector Detector, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{static: static, headless: headless, detector: detector, logger: logger}
}

// Fetch runs the static fetch and, when the detector fires, the headless one.
// A failed promotion falls back to the static response.
func (f *Fetcher) Fetch(ctx context.Context, req citypop.FetchRequest) (citypop.FetchResponse, error) {
	resp, err := f.static.Fetch(ctx, req)
	if err != nil || f.headless == nil || f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, err
	}

	f.logger.Debug("promoting fetch to headless", zap.String("url", req.URL))
	rendered, herr := f.headless.Fetch(ctx, req)
	metrics.ObservePromotion(req.URL, herr == nil)
	if herr != nil {
		f.logger.Warn("headless promotion failed; keeping static response",
			zap.String("url", req.URL), zap.Error(herr))
		return resp, nil
	}
	return rendered, nil
}
