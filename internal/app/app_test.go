package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/app"
	"github.com/JakeFAU/citypop-crawler/internal/citypop"
	"github.com/JakeFAU/citypop-crawler/internal/config"
)

const egyptPage = `<html><body>
<table class="wikitable">
  <tr><th>City</th><th>Population</th></tr>
  <tr><td>Cairo</td><td>9,539,673</td></tr>
  <tr><td>Alexandria</td><td>5,200,000<sup class="reference">[1]</sup></td></tr>
  <tr><td>Giza</td><td>4,367,343</td></tr>
  <tr><td>Shubra El Kheima</td><td>1,165,000</td></tr>
</table>
</body></html>`

func newFixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/egypt", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(egyptPage))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) config.Config {
	t.Helper()
	return config.Config{
		HTTP: config.HTTPConfig{TimeoutSeconds: 5, UserAgent: "citypop-test"},
		Pipeline: config.PipelineConfig{
			MaxCities: 3,
			Countries: []citypop.Country{{Name: "Egypt", AltName: "埃及"}, {Name: "Atlantis"}},
		},
		Sources: []citypop.SourceSpec{{
			Name:          "fixture",
			Priority:      1,
			URLTemplates:  []string{baseURL + "/{slug}"},
			TableSelector: "table.wikitable",
			Policy:        citypop.ParsePolicyZero,
		}},
		Report:  config.ReportConfig{IncludeAltName: true},
		Output:  config.OutputConfig{Dir: t.TempDir(), Filename: "global_country_population.xlsx"},
		Storage: config.StorageConfig{Backend: config.BackendLocal},
	}
}

func TestGenerateExcelEndToEnd(t *testing.T) {
	srv := newFixtureServer(t)
	cfg := testConfig(t, srv.URL)

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generate_excel", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"Cairo", "9539673", "Egypt", "埃及", "Arabic", "UTC+2", "Africa"}, rows[1])
	assert.Equal(t, "Alexandria", rows[2][0])
	assert.Equal(t, "5200000", rows[2][1])
	assert.Equal(t, "Giza", rows[3][0])
	assert.Equal(t, []string{citypop.NotFoundCity, "0", "Atlantis", "", citypop.Unknown, citypop.Unknown, citypop.Unknown}, rows[4])

	onDisk, err := os.ReadFile(filepath.Join(cfg.Output.Dir, cfg.Output.Filename))
	require.NoError(t, err)
	assert.Equal(t, rec.Body.Bytes(), onDisk)

	rec = httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Runs []citypop.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	assert.Equal(t, 4, body.Runs[0].Rows)
	assert.Equal(t, 1, body.Runs[0].NotFound)
}

func TestGenerateExcelEmptyCountriesEndToEnd(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Pipeline.Countries = nil

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generate_excel", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNewConfigErrors(t *testing.T) {
	cases := map[string]func(*config.Config){
		"unknown backend":  func(c *config.Config) { c.Storage.Backend = "s3" },
		"missing metadata": func(c *config.Config) { c.Pipeline.MetadataFile = filepath.Join(t.TempDir(), "nope.yaml") },
		"bad source": func(c *config.Config) {
			c.Sources = []citypop.SourceSpec{{Name: "x", Policy: citypop.ParsePolicyZero}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, "http://127.0.0.1:1")
			mutate(&cfg)
			a, err := app.New(context.Background(), cfg, nil)
			require.Error(t, err)
			assert.Nil(t, a)
		})
	}
}

func TestNewMemoryBackend(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Storage.Backend = config.BackendMemory

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.NotNil(t, a.Runner)
	require.NotNil(t, a.Server)
	assert.Nil(t, a.Publisher)

	closed := 0
	a.AddCloser(func() { closed++ })
	a.Close()
	a.Close()
	assert.Equal(t, 1, closed)
}
