package source

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

func TestCandidateURLs(t *testing.T) {
	t.Parallel()

	templates := []string{
		"https://zh.wikipedia.org/wiki/{alt}城市列表",
		"https://en.wikipedia.org/wiki/List_of_cities_in_{name}",
		"https://worldpopulationreview.com/cities/{slug}",
	}

	got := CandidateURLs(templates, citypop.Country{Name: "United States"})
	assert.Equal(t, []string{
		"https://en.wikipedia.org/wiki/List_of_cities_in_United_States",
		"https://worldpopulationreview.com/cities/united-states",
	}, got)

	got = CandidateURLs(templates[:1], citypop.Country{Name: "Egypt", AltName: "埃及"})
	assert.Equal(t, []string{"https://zh.wikipedia.org/wiki/%E5%9F%83%E5%8F%8A城市列表"}, got)
}

func TestSlug(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "united-states", Slug("United States"))
	assert.Equal(t, "egypt", Slug("  Egypt "))
	assert.Equal(t, "", Slug(""))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := citypop.SourceSpec{
		Name:          "x",
		URLTemplates:  []string{"https://example.com/{name}"},
		TableSelector: "table",
		Policy:        citypop.ParsePolicyZero,
	}
	require.NoError(t, Validate(valid))

	noName := valid
	noName.Name = ""
	require.Error(t, Validate(noName))

	noTemplates := valid
	noTemplates.URLTemplates = nil
	require.Error(t, Validate(noTemplates))

	noSelector := valid
	noSelector.TableSelector = " "
	require.Error(t, Validate(noSelector))

	badPolicy := valid
	badPolicy.Policy = "maybe"
	require.Error(t, Validate(badPolicy))

	for _, spec := range DefaultSpecs() {
		require.NoError(t, Validate(spec), spec.Name)
	}
}

func TestTableSourceFallsThroughCandidates(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://en.example/List_of_largest_cities_in_Egypt": cityListPage,
	}}
	src, err := New(citypop.SourceSpec{
		Name:     "en-wiki",
		Priority: 30,
		URLTemplates: []string{
			"https://en.example/List_of_cities_in_{name}",
			"https://en.example/List_of_largest_cities_in_{name}",
		},
		TableSelector: "table.wikitable",
		HeaderFilter:  "population",
		Policy:        citypop.ParsePolicyZero,
	}, fetcher, zap.NewNop())
	require.NoError(t, err)

	rows := src.Extract(context.Background(), citypop.Country{Name: "Egypt"}, 10)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{
		"https://en.example/List_of_cities_in_Egypt",
		"https://en.example/List_of_largest_cities_in_Egypt",
	}, fetcher.requested())
	assert.Equal(t, "en-wiki", src.Name())
	assert.Equal(t, 30, src.Priority())
	assert.Equal(t, citypop.ParsePolicyZero, src.Policy())
}

func TestTableSourceEmptyTableMovesOn(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{pages: map[string]string{
		"https://a.example/Egypt": `<table class="wikitable"><tr><th>City</th><th>Population</th></tr></table>`,
		"https://b.example/Egypt": cityListPage,
	}}
	src, err := New(citypop.SourceSpec{
		Name:          "two-pages",
		URLTemplates:  []string{"https://a.example/{name}", "https://b.example/{name}"},
		TableSelector: "table.wikitable",
		Policy:        citypop.ParsePolicySkip,
	}, fetcher, nil)
	require.NoError(t, err)

	rows := src.Extract(context.Background(), citypop.Country{Name: "Egypt"}, 1)
	assert.Equal(t, []citypop.RawRow{{City: "Cairo", Population: "9,000"}}, rows)
}

func TestTableSourceNeverFails(t *testing.T) {
	t.Parallel()

	src, err := New(citypop.SourceSpec{
		Name:          "broken",
		URLTemplates:  []string{"https://x.example/{name}"},
		TableSelector: "table",
		Policy:        citypop.ParsePolicyZero,
	}, &fakeFetcher{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, src.Extract(context.Background(), citypop.Country{Name: "Egypt"}, 10))

	panicky, err := New(citypop.SourceSpec{
		Name:          "panicky",
		URLTemplates:  []string{"https://x.example/{name}"},
		TableSelector: "table",
		Policy:        citypop.ParsePolicyZero,
	}, panicFetcher{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, panicky.Extract(context.Background(), citypop.Country{Name: "Egypt"}, 10))
}

func TestTableSourceSkipsAltTemplatesWithoutAltName(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{}
	src, err := New(DefaultSpecs()[0], fetcher, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, src.Extract(context.Background(), citypop.Country{Name: "Egypt"}, 10))
	assert.Empty(t, fetcher.requested())
}

func TestNewRequiresFetcher(t *testing.T) {
	t.Parallel()

	_, err := New(DefaultSpecs()[0], nil, nil)
	require.Error(t, err)
}

func TestBuildOrdersAndRoutesHeadless(t *testing.T) {
	t.Parallel()

	static := &fakeFetcher{pages: map[string]string{}}
	browser := &fakeFetcher{pages: map[string]string{"https://js.example/egypt": cityListPage}}

	specs := []citypop.SourceSpec{
		{Name: "late", Priority: 50, URLTemplates: []string{"https://late.example/{slug}"}, TableSelector: "table", Policy: citypop.ParsePolicySkip},
		{Name: "js", Priority: 5, URLTemplates: []string{"https://js.example/{slug}"}, TableSelector: "table.wikitable", Policy: citypop.ParsePolicySkip, Headless: true},
	}
	sources, err := Build(specs, static, browser, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "js", sources[0].Name())
	assert.Equal(t, "late", sources[1].Name())

	rows := sources[0].Extract(context.Background(), citypop.Country{Name: "Egypt"}, 10)
	assert.Len(t, rows, 3)
	assert.Empty(t, static.requested())

	// Without a browser the static fetcher serves headless specs.
	sources, err = Build(specs, static, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, sources[0].Extract(context.Background(), citypop.Country{Name: "Egypt"}, 10))
	assert.Equal(t, []string{"https://js.example/egypt"}, static.requested())
}

func TestBuildRejectsDuplicates(t *testing.T) {
	t.Parallel()

	specs := DefaultSpecs()
	specs = append(specs, specs[0])
	_, err := Build(specs, &fakeFetcher{}, nil, nil)
	require.Error(t, err)
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	urls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, req citypop.FetchRequest) (citypop.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, req.URL)
	body, ok := f.pages[req.URL]
	if !ok {
		return citypop.FetchResponse{}, errors.New("status 404")
	}
	return citypop.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte(body)}, nil
}

func (f *fakeFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, citypop.FetchRequest) (citypop.FetchResponse, error) {
	panic("boom")
}
