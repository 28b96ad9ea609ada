package citypop

import "time"

// NotFoundCity is the city label of the sentinel record emitted when no
// source yields any row for a country.
const NotFoundCity = "not found"

// Unknown is the placeholder used for every metadata field of an unmapped country.
const Unknown = "unknown"

// ParsePolicy decides what happens to a row whose population text does not parse.
type ParsePolicy string

// Supported parse policies.
const (
	// ParsePolicyZero keeps the row with population 0 and ParseOK=false.
	ParsePolicyZero ParsePolicy = "zero"
	// ParsePolicySkip drops the row.
	ParsePolicySkip ParsePolicy = "skip"
)

// Valid reports whether p is a known policy.
func (p ParsePolicy) Valid() bool {
	return p == ParsePolicyZero || p == ParsePolicySkip
}

// Country is one entry of the input list.
type Country struct {
	// Name is the canonical identifier, also the metadata key.
	Name string `json:"name" mapstructure:"name"`
	// AltName is the alternate-language name used by localized sources.
	AltName string `json:"alt_name,omitempty" mapstructure:"alt_name"`
}

// CountryMetadata annotates a country in the report.
type CountryMetadata struct {
	Language  string `json:"language" yaml:"language"`
	Timezone  string `json:"timezone" yaml:"timezone"`
	Continent string `json:"continent" yaml:"continent"`
}

// UnknownMetadata is returned for countries absent from the metadata table.
var UnknownMetadata = CountryMetadata{Language: Unknown, Timezone: Unknown, Continent: Unknown}

// RawRow is the untouched cell text of one table row.
type RawRow struct {
	City       string
	Population string
}

// CityRecord is a normalized row. Population is never negative.
type CityRecord struct {
	City       string `json:"city"`
	Population int64  `json:"population"`
	// ParseOK is false when Population was defaulted to 0 after a parse failure.
	ParseOK bool `json:"parse_ok"`
}

// NotFoundRecord is the single record of a country no source could serve.
var NotFoundRecord = CityRecord{City: NotFoundCity, Population: 0, ParseOK: true}

// CountryResult holds the records gathered for one country.
type CountryResult struct {
	Country Country      `json:"country"`
	Records []CityRecord `json:"records"`
	// Source names the adapter that produced Records; empty for the sentinel result.
	Source string `json:"source,omitempty"`
}

// Found reports whether the result came from a source rather than the sentinel.
func (r CountryResult) Found() bool {
	return r.Source != ""
}

// ReportRow is one flattened spreadsheet row.
type ReportRow struct {
	City       string
	Population int64
	Country    string
	AltName    string
	Language   string
	Timezone   string
	Continent  string
}

// SourceSpec describes one page shape and where to find it.
type SourceSpec struct {
	Name     string `mapstructure:"name"`
	Priority int    `mapstructure:"priority"`
	// URLTemplates accept {name}, {alt} and {slug} placeholders.
	URLTemplates []string `mapstructure:"url_templates"`
	// TableSelector is the CSS selector of candidate data tables.
	TableSelector string `mapstructure:"table_selector"`
	// HeaderFilter, when set, must appear (case-insensitive) in the table's header row.
	HeaderFilter string      `mapstructure:"header_filter"`
	Policy       ParsePolicy `mapstructure:"parse_policy"`
	// Headless routes fetches through the browser fetcher when one is configured.
	Headless bool `mapstructure:"headless"`
}

// RunSummary describes one completed pipeline run.
type RunSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Countries   int       `json:"countries"`
	Rows        int       `json:"rows"`
	NotFound    int       `json:"not_found"`
	ArtifactURI string    `json:"artifact_uri"`
	ContentHash string    `json:"content_hash"`
}
