// Package normalize turns raw table cell text into city records.
package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

// separatorStripper removes thousands separators seen on reference pages.
var separatorStripper = strings.NewReplacer(
	",", "",
	"，", "",
	"'", "",
	"\u2009", "", // thin space
	"\u202f", "", // narrow no-break space
)

// Normalize converts one raw row. The boolean is false when the row must be
// dropped, which only happens under ParsePolicySkip.
func Normalize(raw citypop.RawRow, policy citypop.ParsePolicy) (citypop.CityRecord, bool) {
	record := citypop.CityRecord{City: strings.TrimSpace(raw.City)}
	pop, ok := ParsePopulation(raw.Population)
	if ok {
		record.Population = pop
		record.ParseOK = true
		return record, true
	}
	if policy == citypop.ParsePolicySkip {
		return citypop.CityRecord{}, false
	}
	record.Population = 0
	record.ParseOK = false
	return record, true
}

// ParsePopulation parses population cell text such as "1,234,567" or
// "1,234 (2020)". Only the leading whitespace-delimited token is considered.
func ParsePopulation(text string) (int64, bool) {
	cleaned := separatorStripper.Replace(text)
	cleaned = stripFootnotes(cleaned)
	fields := strings.FieldsFunc(cleaned, unicode.IsSpace)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// stripFootnotes drops bracketed reference marks like "[1]" or "[note 2]".
func stripFootnotes(s string) string {
	if !strings.Contains(s, "[") {
		return s
	}
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
			b.WriteRune(' ')
		case r == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Records normalizes rows in order, applying policy and keeping at most limit
// records. A non-positive limit keeps everything.
func Records(rows []citypop.RawRow, policy citypop.ParsePolicy, limit int) []citypop.CityRecord {
	out := make([]citypop.CityRecord, 0, len(rows))
	for _, raw := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		record, ok := Normalize(raw, policy)
		if !ok {
			continue
		}
		out = append(out, record)
	}
	return out
}
