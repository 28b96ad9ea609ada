// Package metadata maps country names to descriptive attributes used to
// annotate the report. The table is static for the life of the process.
package metadata

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

// Table is keyed by canonical country name.
type Table map[string]citypop.CountryMetadata

// Resolver looks up country metadata.
type Resolver struct {
	table Table
}

// NewResolver copies table into a Resolver.
func NewResolver(table Table) *Resolver {
	cp := make(Table, len(table))
	for name, meta := range table {
		cp[strings.TrimSpace(name)] = meta
	}
	return &Resolver{table: cp}
}

// Resolve returns the metadata for name, or citypop.UnknownMetadata when the
// country is not mapped.
func (r *Resolver) Resolve(name string) citypop.CountryMetadata {
	if r == nil {
		return citypop.UnknownMetadata
	}
	meta, ok := r.table[strings.TrimSpace(name)]
	if !ok {
		return citypop.UnknownMetadata
	}
	return fillUnknown(meta)
}

// Len returns the number of mapped countries.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.table)
}

func fillUnknown(meta citypop.CountryMetadata) citypop.CountryMetadata {
	if strings.TrimSpace(meta.Language) == "" {
		meta.Language = citypop.Unknown
	}
	if strings.TrimSpace(meta.Timezone) == "" {
		meta.Timezone = citypop.Unknown
	}
	if strings.TrimSpace(meta.Continent) == "" {
		meta.Continent = citypop.Unknown
	}
	return meta
}

// DefaultTable returns the built-in metadata for the default country list.
func DefaultTable() Table {
	return Table{
		"China":         {Language: "Chinese", Timezone: "UTC+8", Continent: "Asia"},
		"United States": {Language: "English", Timezone: "UTC-5", Continent: "North America"},
		"Egypt":         {Language: "Arabic", Timezone: "UTC+2", Continent: "Africa"},
		"Nigeria":       {Language: "English", Timezone: "UTC+1", Continent: "Africa"},
		"India":         {Language: "Hindi", Timezone: "UTC+5:30", Continent: "Asia"},
	}
}

// LoadFile reads a YAML document of the form
//
//	Egypt:
//	  language: Arabic
//	  timezone: UTC+2
//	  continent: Africa
//
// and merges it over base. Entries in the file win.
func LoadFile(path string, base Table) (Table, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}
	var fromFile Table
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse metadata file %s: %w", path, err)
	}
	merged := make(Table, len(base)+len(fromFile))
	for name, meta := range base {
		merged[name] = meta
	}
	for name, meta := range fromFile {
		merged[strings.TrimSpace(name)] = meta
	}
	return merged, nil
}
