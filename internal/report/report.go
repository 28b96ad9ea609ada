// Package report flattens per-country results into rows and renders them as
// a single-sheet spreadsheet grouped by country.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/xuri/excelize/v2"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

const (
	// DefaultSheetName is used when Options.SheetName is blank.
	DefaultSheetName = "Population"
	// ContentType is the MIME type of rendered reports.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	widthPadding = 2
)

// MetadataResolver maps a country name to its static metadata.
type MetadataResolver interface {
	Resolve(name string) citypop.CountryMetadata
}

// Options controls the rendered layout.
type Options struct {
	IncludeAltName bool
	SheetName      string
}

// Group is a contiguous run of rows sharing a country. Row indexes are
// 0-based and inclusive.
type Group struct {
	Country  string
	FirstRow int
	LastRow  int
}

// Span is the number of rows in the group.
func (g Group) Span() int { return g.LastRow - g.FirstRow + 1 }

// Flatten expands results into report rows, preserving country order and
// per-country record order.
func Flatten(results []citypop.CountryResult, resolver MetadataResolver) []citypop.ReportRow {
	var rows []citypop.ReportRow
	for _, res := range results {
		meta := citypop.UnknownMetadata
		if resolver != nil {
			meta = resolver.Resolve(res.Country.Name)
		}
		for _, rec := range res.Records {
			rows = append(rows, citypop.ReportRow{
				City:       rec.City,
				Population: rec.Population,
				Country:    res.Country.Name,
				AltName:    res.Country.AltName,
				Language:   meta.Language,
				Timezone:   meta.Timezone,
				Continent:  meta.Continent,
			})
		}
	}
	return rows
}

// Groups splits rows into maximal contiguous runs of the same country.
func Groups(rows []citypop.ReportRow) []Group {
	var groups []Group
	for i, row := range rows {
		if n := len(groups); n > 0 && groups[n-1].Country == row.Country {
			groups[n-1].LastRow = i
			continue
		}
		groups = append(groups, Group{Country: row.Country, FirstRow: i, LastRow: i})
	}
	return groups
}

type column struct {
	header   string
	value    func(citypop.ReportRow) any
	metadata bool
}

func columns(opts Options) []column {
	cols := []column{
		{header: "City", value: func(r citypop.ReportRow) any { return r.City }},
		{header: "Population", value: func(r citypop.ReportRow) any { return r.Population }},
		{header: "Country", value: func(r citypop.ReportRow) any { return r.Country }, metadata: true},
	}
	if opts.IncludeAltName {
		cols = append(cols, column{header: "Country (alt)", value: func(r citypop.ReportRow) any { return r.AltName }, metadata: true})
	}
	return append(cols,
		column{header: "Language", value: func(r citypop.ReportRow) any { return r.Language }, metadata: true},
		column{header: "Timezone", value: func(r citypop.ReportRow) any { return r.Timezone }, metadata: true},
		column{header: "Continent", value: func(r citypop.ReportRow) any { return r.Continent }, metadata: true},
	)
}

// Headers returns the column headers for opts, in sheet order.
func Headers(opts Options) []string {
	cols := columns(opts)
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.header
	}
	return out
}

// Render builds the workbook in memory. The caller owns the returned file
// and must Close it.
func Render(rows []citypop.ReportRow, opts Options) (*excelize.File, error) {
	sheet := opts.SheetName
	if sheet == "" {
		sheet = DefaultSheetName
	}
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if err := render(f, sheet, rows, columns(opts)); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// Write renders rows and streams the workbook to w.
func Write(w io.Writer, rows []citypop.ReportRow, opts Options) error {
	f, err := Render(rows, opts)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func render(f *excelize.File, sheet string, rows []citypop.ReportRow, cols []column) error {
	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	widths := make([]int, len(cols))
	for c, col := range cols {
		if err := setCell(f, sheet, c, 0, col.header); err != nil {
			return err
		}
		widths[c] = runewidth.StringWidth(col.header)
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := f.SetCellStyle(sheet, "A1", last, styles.header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for r, row := range rows {
		for c, col := range cols {
			v := col.value(row)
			if err := setCell(f, sheet, c, r+1, v); err != nil {
				return err
			}
			if w := displayWidth(v); w > widths[c] {
				widths[c] = w
			}
		}
	}

	if len(rows) > 0 {
		top, _ := excelize.CoordinatesToCellName(2, 2)
		bottom, _ := excelize.CoordinatesToCellName(2, len(rows)+1)
		if err := f.SetCellStyle(sheet, top, bottom, styles.number); err != nil {
			return fmt.Errorf("style population: %w", err)
		}
	}

	for _, g := range Groups(rows) {
		if g.Span() < 2 {
			continue
		}
		for c, col := range cols {
			if !col.metadata {
				continue
			}
			// Sheet rows are 1-based and row 1 is the header.
			top, _ := excelize.CoordinatesToCellName(c+1, g.FirstRow+2)
			bottom, _ := excelize.CoordinatesToCellName(c+1, g.LastRow+2)
			if err := f.MergeCell(sheet, top, bottom); err != nil {
				return fmt.Errorf("merge %s:%s: %w", top, bottom, err)
			}
			if err := f.SetCellStyle(sheet, top, bottom, styles.merged); err != nil {
				return fmt.Errorf("style %s:%s: %w", top, bottom, err)
			}
		}
	}

	for c, w := range widths {
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, float64(w+widthPadding)); err != nil {
			return fmt.Errorf("width %s: %w", name, err)
		}
	}
	return nil
}

func setCell(f *excelize.File, sheet string, col, row int, v any) error {
	cell, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, v); err != nil {
		return fmt.Errorf("set %s: %w", cell, err)
	}
	return nil
}

func displayWidth(v any) int {
	switch t := v.(type) {
	case string:
		return runewidth.StringWidth(t)
	case int64:
		return len(strconv.FormatInt(t, 10))
	default:
		return runewidth.StringWidth(fmt.Sprint(t))
	}
}

type styleSet struct {
	header int
	number int
	merged int
}

func newStyles(f *excelize.File) (styleSet, error) {
	var s styleSet
	var err error
	s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, fmt.Errorf("header style: %w", err)
	}
	s.number, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return s, fmt.Errorf("number style: %w", err)
	}
	s.merged, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return s, fmt.Errorf("merged style: %w", err)
	}
	return s, nil
}
