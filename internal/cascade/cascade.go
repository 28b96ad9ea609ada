// Package cascade drives the source adapters for each country, in priority
// order, and keeps the first non-empty result.
package cascade

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
	"github.com/JakeFAU/citypop-crawler/internal/metrics"
	"github.com/JakeFAU/citypop-crawler/internal/normalize"
	"github.com/JakeFAU/citypop-crawler/internal/telemetry"
)

// DefaultMaxCities caps the records kept per country.
const DefaultMaxCities = 10

// Options tunes a Cascade.
type Options struct {
	MaxCities int
	// Pacer runs between countries; nil disables pacing.
	Pacer citypop.Pacer
}

// Cascade is a first-success fold over an ordered list of sources.
type Cascade struct {
	sources   []citypop.Source
	maxCities int
	pacer     citypop.Pacer
	logger    *zap.Logger
}

// New builds a Cascade. Sources are stably ordered by priority.
func New(sources []citypop.Source, opts Options, logger *zap.Logger) *Cascade {
	ordered := make([]citypop.Source, len(sources))
	copy(ordered, sources)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() < ordered[j].Priority()
	})
	if opts.MaxCities <= 0 {
		opts.MaxCities = DefaultMaxCities
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cascade{
		sources:   ordered,
		maxCities: opts.MaxCities,
		pacer:     opts.Pacer,
		logger:    logger,
	}
}

// Extract returns exactly one result for country: the normalized rows of the
// first source that yields any, or the "not found" sentinel once every source
// came back empty. A done ctx aborts the fold with ctx.Err() instead.
func (c *Cascade) Extract(ctx context.Context, country citypop.Country) (citypop.CountryResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "cascade.extract",
		trace.WithAttributes(attribute.String("country", country.Name)))
	defer span.End()

	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return citypop.CountryResult{}, err
		}
		raw := src.Extract(ctx, country, c.maxCities)
		records := normalize.Records(raw, src.Policy(), c.maxCities)
		observeParse(src, raw, records)
		if len(records) == 0 {
			metrics.ObserveSourceAttempt(src.Name(), metrics.OutcomeNoData)
			c.logger.Debug("source yielded nothing",
				zap.String("country", country.Name),
				zap.String("source", src.Name()),
			)
			continue
		}
		metrics.ObserveSourceAttempt(src.Name(), metrics.OutcomeRows)
		metrics.ObserveCountry(true)
		span.SetAttributes(attribute.String("source", src.Name()), attribute.Int("cities", len(records)))
		c.logger.Info("country extracted",
			zap.String("country", country.Name),
			zap.String("source", src.Name()),
			zap.Int("cities", len(records)),
		)
		return citypop.CountryResult{Country: country, Records: records, Source: src.Name()}, nil
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return citypop.CountryResult{}, err
	}
	metrics.ObserveCountry(false)
	span.SetAttributes(attribute.Bool("not_found", true))
	c.logger.Warn("no source yielded cities", zap.String("country", country.Name))
	return NotFound(country), nil
}

// Run processes countries sequentially in input order, pacing between them.
// It only fails when ctx is done.
func (c *Cascade) Run(ctx context.Context, countries []citypop.Country) ([]citypop.CountryResult, error) {
	results := make([]citypop.CountryResult, 0, len(countries))
	for i, country := range countries {
		if i > 0 && c.pacer != nil {
			if err := c.pacer.Wait(ctx); err != nil {
				return results, fmt.Errorf("pacing before %s: %w", country.Name, err)
			}
		}
		res, err := c.Extract(ctx, country)
		if err != nil {
			return results, fmt.Errorf("extract %s: %w", country.Name, err)
		}
		results = append(results, res)
	}
	return results, nil
}

// NotFound is the sentinel result for a country no source could serve.
func NotFound(country citypop.Country) citypop.CountryResult {
	return citypop.CountryResult{
		Country: country,
		Records: []citypop.CityRecord{citypop.NotFoundRecord},
	}
}

func observeParse(src citypop.Source, raw []citypop.RawRow, records []citypop.CityRecord) {
	failed := 0
	switch src.Policy() {
	case citypop.ParsePolicySkip:
		if len(raw) > len(records) {
			for _, row := range raw {
				if _, ok := normalize.ParsePopulation(row.Population); !ok {
					failed++
				}
			}
		}
	default:
		for _, rec := range records {
			if !rec.ParseOK {
				failed++
			}
		}
	}
	metrics.ObserveUnparsedPopulation(src.Name(), string(src.Policy()), failed)
}

// FixedDelay sleeps for a constant duration, returning early if ctx is done.
type FixedDelay time.Duration

// Wait implements citypop.Pacer.
func (d FixedDelay) Wait(ctx context.Context) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(time.Duration(d))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
