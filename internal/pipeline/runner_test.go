package pipeline

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
	"github.com/JakeFAU/citypop-crawler/internal/countries"
	"github.com/JakeFAU/citypop-crawler/internal/metadata"
	pubmemory "github.com/JakeFAU/citypop-crawler/internal/publisher/memory"
	"github.com/JakeFAU/citypop-crawler/internal/report"
	"github.com/JakeFAU/citypop-crawler/internal/storage/memory"
)

type fakeExtractor struct {
	results []citypop.CountryResult
	err     error
	got     []citypop.Country
}

func (f *fakeExtractor) Run(_ context.Context, list []citypop.Country) ([]citypop.CountryResult, error) {
	f.got = list
	return f.results, f.err
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixedID string

func (f fixedID) NewID() (string, error) { return string(f), nil }

type failingRuns struct{}

func (failingRuns) RecordRun(context.Context, citypop.RunSummary) error { return errors.New("db down") }
func (failingRuns) ListRuns(context.Context, int) ([]citypop.RunSummary, error) {
	return nil, nil
}

func sampleResults() []citypop.CountryResult {
	return []citypop.CountryResult{
		{
			Country: citypop.Country{Name: "Egypt", AltName: "埃及"},
			Records: []citypop.CityRecord{{City: "Cairo", Population: 9000, ParseOK: true}, {City: "Giza", Population: 4000, ParseOK: true}},
			Source:  "en-wiki",
		},
		{Country: citypop.Country{Name: "Atlantis"}, Records: []citypop.CityRecord{citypop.NotFoundRecord}},
	}
}

func newRunner(t *testing.T, deps Deps) *Runner {
	t.Helper()
	if deps.Countries == nil {
		deps.Countries = countries.NewLoader("", []citypop.Country{{Name: "Egypt", AltName: "埃及"}, {Name: "Atlantis"}})
	}
	if deps.Extractor == nil {
		deps.Extractor = &fakeExtractor{results: sampleResults()}
	}
	if deps.Blobs == nil {
		deps.Blobs = memory.NewBlobStore()
	}
	deps.Resolver = metadata.NewResolver(metadata.DefaultTable())
	deps.Clock = &stepClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	deps.IDs = fixedID("run-1")
	r, err := New(Config{
		ArtifactPath: "data/global_country_population.xlsx",
		Topic:        "runs",
		Report:       report.Options{IncludeAltName: true},
	}, deps)
	require.NoError(t, err)
	return r
}

func TestRunStoresReportAndRecordsRun(t *testing.T) {
	blobs := memory.NewBlobStore()
	runs := memory.NewRunStore()
	pub := pubmemory.New()
	r := newRunner(t, Deps{Blobs: blobs, Runs: runs, Publisher: pub})

	res, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "global_country_population.xlsx", res.Filename)
	assert.Len(t, res.Hash, 64)

	obj, ok := blobs.Get("data/global_country_population.xlsx")
	require.True(t, ok)
	assert.Equal(t, res.Content, obj.Data)
	assert.Equal(t, report.ContentType, obj.ContentType)

	f, err := excelize.OpenReader(bytes.NewReader(res.Content))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Cairo", rows[1][0])
	assert.Equal(t, citypop.NotFoundCity, rows[3][0])

	want := citypop.RunSummary{
		ID:          "run-1",
		StartedAt:   time.Date(2024, 5, 1, 0, 0, 1, 0, time.UTC),
		FinishedAt:  time.Date(2024, 5, 1, 0, 0, 2, 0, time.UTC),
		Countries:   2,
		Rows:        3,
		NotFound:    1,
		ArtifactURI: "memory://data/global_country_population.xlsx",
		ContentHash: res.Hash,
	}
	assert.Equal(t, want, res.Summary)

	stored, err := runs.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []citypop.RunSummary{want}, stored)
	assert.Equal(t, []any{want}, pub.ByTopic("runs"))
}

func TestRunPassesCountriesInOrder(t *testing.T) {
	ext := &fakeExtractor{results: sampleResults()}
	r := newRunner(t, Deps{Extractor: ext})

	_, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, ext.got, 2)
	assert.Equal(t, "Egypt", ext.got[0].Name)
	assert.Equal(t, "Atlantis", ext.got[1].Name)
}

func TestRunEmptyCountryList(t *testing.T) {
	blobs := memory.NewBlobStore()
	r := newRunner(t, Deps{Countries: countries.NewLoader("", nil), Blobs: blobs})

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, countries.ErrNoCountries)
	assert.Zero(t, blobs.Len())
}

func TestRunExtractorError(t *testing.T) {
	blobs := memory.NewBlobStore()
	r := newRunner(t, Deps{Extractor: &fakeExtractor{err: context.Canceled}, Blobs: blobs})

	_, err := r.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, countries.ErrNoCountries)
	assert.Zero(t, blobs.Len())
}

func sheetRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	return rows
}

func TestRunTwiceOverwritesWithSameRows(t *testing.T) {
	blobs := memory.NewBlobStore()
	r := newRunner(t, Deps{Blobs: blobs})

	first, err := r.Run(context.Background())
	require.NoError(t, err)
	firstObj, ok := blobs.Get("data/global_country_population.xlsx")
	require.True(t, ok)

	second, err := r.Run(context.Background())
	require.NoError(t, err)
	secondObj, ok := blobs.Get("data/global_country_population.xlsx")
	require.True(t, ok)

	assert.Equal(t, 1, blobs.Len())
	assert.Equal(t, first.Summary.ArtifactURI, second.Summary.ArtifactURI)
	assert.Equal(t, second.Content, secondObj.Data)
	assert.Equal(t, sheetRows(t, firstObj.Data), sheetRows(t, secondObj.Data))
}

func TestRunPostStepFailuresAreNotFatal(t *testing.T) {
	pub := pubmemory.New()
	pub.FailWith(errors.New("pubsub down"))
	r := newRunner(t, Deps{Runs: failingRuns{}, Publisher: pub})

	res, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.Content)
}

func TestNewValidates(t *testing.T) {
	_, err := New(Config{}, Deps{})
	require.Error(t, err)
	_, err = New(Config{ArtifactPath: "x.xlsx"}, Deps{})
	require.Error(t, err)
}

func TestDefaultCollaborators(t *testing.T) {
	id, err := uuidV7{}.NewID()
	require.NoError(t, err)
	assert.Len(t, id, 36)

	sum, err := sha256Hasher{}.Hash([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", sum)

	assert.Equal(t, time.UTC, systemClock{}.Now().Location())
}
