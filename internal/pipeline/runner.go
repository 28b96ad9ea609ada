// Package pipeline runs one end-to-end report generation: load countries,
// extract cities, render the spreadsheet, store it, and record the run.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
	"github.com/JakeFAU/citypop-crawler/internal/metrics"
	"github.com/JakeFAU/citypop-crawler/internal/report"
	"github.com/JakeFAU/citypop-crawler/internal/telemetry"
)

// CountryLoader returns the ordered country list for a run.
type CountryLoader interface {
	Load() ([]citypop.Country, error)
}

// Extractor produces one result per country, in order.
type Extractor interface {
	Run(ctx context.Context, countries []citypop.Country) ([]citypop.CountryResult, error)
}

// Config holds the static knobs of a Runner.
type Config struct {
	// ArtifactPath is the blob path overwritten on every run.
	ArtifactPath string
	// Topic receives a RunSummary after each run; empty disables publishing.
	Topic  string
	Report report.Options
}

// Deps are the collaborators of a Runner. Runs, Publisher, Clock, IDs and
// Hasher are optional.
type Deps struct {
	Countries CountryLoader
	Extractor Extractor
	Resolver  report.MetadataResolver
	Blobs     citypop.BlobStore
	Runs      citypop.RunStore
	Publisher citypop.Publisher
	Clock     citypop.Clock
	IDs       citypop.IDGenerator
	Hasher    citypop.Hasher
	Logger    *zap.Logger
}

// Result is the outcome of a successful run.
type Result struct {
	Filename string
	Content  []byte
	Hash     string
	Summary  citypop.RunSummary
}

// Runner executes report generation.
type Runner struct {
	cfg  Config
	deps Deps
}

// New validates deps and fills optional collaborators.
func New(cfg Config, deps Deps) (*Runner, error) {
	if cfg.ArtifactPath == "" {
		return nil, errors.New("artifact path is required")
	}
	if deps.Countries == nil || deps.Extractor == nil || deps.Blobs == nil {
		return nil, errors.New("countries, extractor and blob store are required")
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = uuidV7{}
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256Hasher{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, deps: deps}, nil
}

// Filename is the base name of the generated artifact.
func (r *Runner) Filename() string {
	return path.Base(r.cfg.ArtifactPath)
}

// Run generates and stores the report. Country-list failures wrap
// countries.ErrNoCountries; failures after the artifact is stored are logged
// and do not fail the run.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "pipeline.run")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	started := r.deps.Clock.Now()
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return Result{}, fmt.Errorf("run id: %w", err)
	}
	span.SetAttributes(attribute.String("run_id", runID))
	logger := r.deps.Logger.With(zap.String("run_id", runID))

	list, err := r.deps.Countries.Load()
	if err != nil {
		return Result{}, fmt.Errorf("load countries: %w", err)
	}
	logger.Info("run started", zap.Int("countries", len(list)))

	results, err := r.deps.Extractor.Run(ctx, list)
	if err != nil {
		return Result{}, fmt.Errorf("extract: %w", err)
	}

	rows := report.Flatten(results, r.deps.Resolver)
	var buf bytes.Buffer
	if err := report.Write(&buf, rows, r.cfg.Report); err != nil {
		return Result{}, fmt.Errorf("render report: %w", err)
	}
	content := buf.Bytes()

	hash, err := r.deps.Hasher.Hash(content)
	if err != nil {
		return Result{}, fmt.Errorf("hash report: %w", err)
	}
	uri, err := r.deps.Blobs.PutObject(ctx, r.cfg.ArtifactPath, report.ContentType, bytes.NewReader(content))
	if err != nil {
		return Result{}, fmt.Errorf("store report: %w", err)
	}

	finished := r.deps.Clock.Now()
	summary := citypop.RunSummary{
		ID:          runID,
		StartedAt:   started,
		FinishedAt:  finished,
		Countries:   len(results),
		Rows:        len(rows),
		NotFound:    countNotFound(results),
		ArtifactURI: uri,
		ContentHash: hash,
	}
	metrics.ObserveRun(finished.Sub(started))
	r.record(ctx, logger, summary)

	logger.Info("run finished",
		zap.Int("rows", summary.Rows),
		zap.Int("not_found", summary.NotFound),
		zap.String("artifact", uri),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	return Result{
		Filename: r.Filename(),
		Content:  content,
		Hash:     hash,
		Summary:  summary,
	}, nil
}

func (r *Runner) record(ctx context.Context, logger *zap.Logger, summary citypop.RunSummary) {
	if r.deps.Runs != nil {
		if err := r.deps.Runs.RecordRun(ctx, summary); err != nil {
			logger.Warn("record run failed", zap.Error(err))
		}
	}
	if r.deps.Publisher != nil && r.cfg.Topic != "" {
		id, err := r.deps.Publisher.Publish(ctx, r.cfg.Topic, summary)
		if err != nil {
			logger.Warn("publish run failed", zap.String("topic", r.cfg.Topic), zap.Error(err))
			return
		}
		logger.Debug("run published", zap.String("message_id", id))
	}
}

func countNotFound(results []citypop.CountryResult) int {
	n := 0
	for _, res := range results {
		if !res.Found() {
			n++
		}
	}
	return n
}
