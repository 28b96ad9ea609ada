package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

// Placeholders understood by URL templates.
const (
	placeholderName = "{name}"
	placeholderAlt  = "{alt}"
	placeholderSlug = "{slug}"
)

// TableSource fetches candidate pages and extracts the first matching data table.
type TableSource struct {
	spec    citypop.SourceSpec
	fetcher citypop.Fetcher
	logger  *zap.Logger
}

// New validates spec and builds a TableSource.
func New(spec citypop.SourceSpec, fetcher citypop.Fetcher, logger *zap.Logger) (*TableSource, error) {
	if err := Validate(spec); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, errors.New("source fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TableSource{
		spec:    spec,
		fetcher: fetcher,
		logger:  logger.With(zap.String("source", spec.Name)),
	}, nil
}

// Validate checks that spec is usable.
func Validate(spec citypop.SourceSpec) error {
	if strings.TrimSpace(spec.Name) == "" {
		return errors.New("source name is required")
	}
	if len(spec.URLTemplates) == 0 {
		return fmt.Errorf("source %s: at least one url template is required", spec.Name)
	}
	if strings.TrimSpace(spec.TableSelector) == "" {
		return fmt.Errorf("source %s: table selector is required", spec.Name)
	}
	if !spec.Policy.Valid() {
		return fmt.Errorf("source %s: unknown parse policy %q", spec.Name, spec.Policy)
	}
	return nil
}

// Name returns the source name.
func (s *TableSource) Name() string { return s.spec.Name }

// Priority returns the cascade rank; lower runs first.
func (s *TableSource) Priority() int { return s.spec.Priority }

// Policy returns the parse-failure policy for rows from this source.
func (s *TableSource) Policy() citypop.ParsePolicy { return s.spec.Policy }

// Extract tries each candidate URL in order and returns the rows of the first
// page holding a matching table. Failures of any kind yield nil.
func (s *TableSource) Extract(ctx context.Context, country citypop.Country, limit int) (rows []citypop.RawRow) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("source panicked", zap.String("country", country.Name), zap.Any("panic", rec))
			rows = nil
		}
	}()

	for _, candidate := range CandidateURLs(s.spec.URLTemplates, country) {
		if ctx.Err() != nil {
			return nil
		}
		resp, err := s.fetcher.Fetch(ctx, citypop.FetchRequest{URL: candidate})
		if err != nil {
			s.logger.Debug("fetch failed",
				zap.String("country", country.Name),
				zap.String("url", candidate),
				zap.Error(err),
			)
			continue
		}
		found, err := ExtractTable(resp.Body, s.spec.TableSelector, s.spec.HeaderFilter, limit)
		if err != nil {
			s.logger.Debug("parse failed", zap.String("url", candidate), zap.Error(err))
			continue
		}
		if len(found) == 0 {
			s.logger.Debug("no data table", zap.String("url", candidate))
			continue
		}
		s.logger.Debug("table extracted",
			zap.String("country", country.Name),
			zap.String("url", candidate),
			zap.Int("rows", len(found)),
		)
		return found
	}
	return nil
}

// CandidateURLs expands templates for country. Templates that need the
// alternate name are dropped when the country has none.
func CandidateURLs(templates []string, country citypop.Country) []string {
	name := strings.TrimSpace(country.Name)
	alt := strings.TrimSpace(country.AltName)
	replacer := strings.NewReplacer(
		placeholderName, url.PathEscape(strings.ReplaceAll(name, " ", "_")),
		placeholderAlt, url.PathEscape(strings.ReplaceAll(alt, " ", "_")),
		placeholderSlug, url.PathEscape(Slug(name)),
	)
	out := make([]string, 0, len(templates))
	for _, tmpl := range templates {
		if strings.Contains(tmpl, placeholderAlt) && alt == "" {
			continue
		}
		if strings.Contains(tmpl, placeholderName) && name == "" {
			continue
		}
		out = append(out, replacer.Replace(tmpl))
	}
	return out
}

// Slug lower-cases name and joins its words with hyphens: "United States" -> "united-states".
func Slug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
