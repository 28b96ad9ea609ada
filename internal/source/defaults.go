package source

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

// DefaultSpecs returns the built-in sources in cascade order.
func DefaultSpecs() []citypop.SourceSpec {
	return []citypop.SourceSpec{
		{
			Name:          "zh-wiki-city-list",
			Priority:      10,
			URLTemplates:  []string{"https://zh.wikipedia.org/wiki/{alt}城市列表"},
			TableSelector: "table.wikitable",
			Policy:        citypop.ParsePolicyZero,
		},
		{
			Name:          "zh-wiki-country",
			Priority:      20,
			URLTemplates:  []string{"https://zh.wikipedia.org/wiki/{alt}"},
			TableSelector: "table.wikitable",
			Policy:        citypop.ParsePolicyZero,
		},
		{
			Name:     "en-wiki",
			Priority: 30,
			URLTemplates: []string{
				"https://en.wikipedia.org/wiki/List_of_cities_in_{name}",
				"https://en.wikipedia.org/wiki/List_of_largest_cities_in_{name}",
			},
			TableSelector: "table.wikitable",
			HeaderFilter:  "population",
			Policy:        citypop.ParsePolicyZero,
		},
		{
			Name:          "worldpopulationreview",
			Priority:      40,
			URLTemplates:  []string{"https://worldpopulationreview.com/cities/{slug}"},
			TableSelector: "table",
			Policy:        citypop.ParsePolicySkip,
		},
		{
			Name:          "citypopulation",
			Priority:      50,
			URLTemplates:  []string{"https://www.citypopulation.de/en/{slug}/cities/"},
			TableSelector: "table.data",
			Policy:        citypop.ParsePolicySkip,
		},
	}
}

// Build turns specs into sources ordered by priority. Specs flagged Headless
// use the headless fetcher when one is supplied and the static one otherwise.
func Build(
	specs []citypop.SourceSpec,
	static citypop.Fetcher,
	headless citypop.Fetcher,
	logger *zap.Logger,
) ([]citypop.Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ordered := make([]citypop.SourceSpec, len(specs))
	copy(ordered, specs)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	seen := make(map[string]struct{}, len(ordered))
	sources := make([]citypop.Source, 0, len(ordered))
	for _, spec := range ordered {
		if _, dup := seen[spec.Name]; dup {
			return nil, fmt.Errorf("duplicate source name %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}

		fetcher := static
		if spec.Headless {
			if headless != nil {
				fetcher = headless
			} else {
				logger.Warn("headless fetcher unavailable; using static fetcher", zap.String("source", spec.Name))
			}
		}
		src, err := New(spec, fetcher, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
