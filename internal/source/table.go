package source

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

// ExtractTable finds the first table matching selector (and, when set, whose
// header row mentions headerFilter) and returns up to limit raw rows. The
// header row is skipped and rows with fewer than two cells are ignored
// without counting towards limit. A non-positive limit means no cap.
func ExtractTable(body []byte, selector, headerFilter string, limit int) ([]citypop.RawRow, error) {
	if len(body) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	table := findTable(doc, selector, headerFilter)
	if table == nil {
		return nil, nil
	}

	var rows []citypop.RawRow
	tableRows(table).EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if i == 0 {
			return true
		}
		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() < 2 {
			return true
		}
		rows = append(rows, citypop.RawRow{
			City:       cellText(cells.Eq(0)),
			Population: cellText(cells.Eq(1)),
		})
		return limit <= 0 || len(rows) < limit
	})
	return rows, nil
}

func findTable(doc *goquery.Document, selector, headerFilter string) *goquery.Selection {
	filter := strings.ToLower(strings.TrimSpace(headerFilter))
	var match *goquery.Selection
	doc.Find(selector).EachWithBreak(func(_ int, t *goquery.Selection) bool {
		if !t.Is("table") {
			return true
		}
		if filter != "" && !headerMentions(t, filter) {
			return true
		}
		match = t
		return false
	})
	return match
}

// tableRows returns the rows that belong to table itself, not to nested tables.
func tableRows(table *goquery.Selection) *goquery.Selection {
	return table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").IsSelection(table)
	})
}

func headerMentions(table *goquery.Selection, filter string) bool {
	header := tableRows(table).First()
	if header.Length() == 0 {
		return false
	}
	mentioned := false
	header.ChildrenFiltered("td, th").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(cell.Text()), filter) {
			mentioned = true
			return false
		}
		return true
	})
	return mentioned
}

// cellText returns the visible text of a cell, dropping footnote superscripts
// and hidden sort keys.
func cellText(cell *goquery.Selection) string {
	c := cell.Clone()
	c.Find("sup.reference, .sortkey, style, script").Remove()
	return strings.TrimSpace(c.Text())
}
