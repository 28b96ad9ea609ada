package source

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

const cityListPage = `<html><body>
<table class="infobox"><tr><th>Capital</th><td>Cairo</td></tr></table>
<table class="wikitable sortable">
  <thead><tr><th>City</th><th>Population</th><th>Governorate</th></tr></thead>
  <tbody>
    <tr><td>Cairo</td><td>9,000<sup class="reference">[1]</sup></td><td>Cairo</td></tr>
    <tr><td colspan="3">Lower Egypt</td></tr>
    <tr><td>Giza</td><td>4,000</td><td>Giza</td></tr>
    <tr><td>Alexandria</td><td>5,200,000 (2017)</td><td>Alexandria</td></tr>
  </tbody>
</table>
</body></html>`

func TestExtractTableSkipsHeaderAndShortRows(t *testing.T) {
	t.Parallel()

	rows, err := ExtractTable([]byte(cityListPage), "table.wikitable", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []citypop.RawRow{
		{City: "Cairo", Population: "9,000"},
		{City: "Giza", Population: "4,000"},
		{City: "Alexandria", Population: "5,200,000 (2017)"},
	}, rows)
}

func TestExtractTableLimit(t *testing.T) {
	t.Parallel()

	rows, err := ExtractTable([]byte(cityListPage), "table.wikitable", "", 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Giza", rows[1].City)
}

func TestExtractTableCapsAtDefaultTen(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString(`<table class="wikitable"><tr><th>City</th><th>Population</th></tr>`)
	for i := 0; i < 25; i++ {
		fmt.Fprintf(&b, "<tr><td>City %d</td><td>%d</td></tr>", i, 1000-i)
	}
	b.WriteString("</table>")

	rows, err := ExtractTable([]byte(b.String()), "table.wikitable", "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.Equal(t, "City 0", rows[0].City)
	assert.Equal(t, "City 9", rows[9].City)
}

func TestExtractTableHeaderFilterRejectsNonPopulationTable(t *testing.T) {
	t.Parallel()

	page := `<table class="wikitable"><tr><th>City</th><th>Mayor</th></tr>
<tr><td>Lagos</td><td>Someone</td></tr></table>`
	rows, err := ExtractTable([]byte(page), "table.wikitable", "population", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Without the filter the same table is accepted.
	rows, err = ExtractTable([]byte(page), "table.wikitable", "", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestExtractTableHeaderFilterPicksLaterTable(t *testing.T) {
	t.Parallel()

	page := `<table class="wikitable"><tr><th>Rank</th><th>Mayor</th></tr><tr><td>1</td><td>x</td></tr></table>
<table class="wikitable"><tr><th>City</th><th>Population (2022 est.)</th></tr><tr><td>Lagos</td><td>15,000</td></tr></table>`
	rows, err := ExtractTable([]byte(page), "table.wikitable", "POPULATION", 10)
	require.NoError(t, err)
	assert.Equal(t, []citypop.RawRow{{City: "Lagos", Population: "15,000"}}, rows)
}

func TestExtractTableIgnoresNestedTableRows(t *testing.T) {
	t.Parallel()

	page := `<table class="data"><tr><th>Name</th><th>Population</th></tr>
<tr><td>Kano<table><tr><td>inner</td><td>1</td></tr></table></td><td>4,100</td></tr></table>`
	rows, err := ExtractTable([]byte(page), "table.data", "", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "4,100", rows[0].Population)
}

func TestExtractTableNoMatch(t *testing.T) {
	t.Parallel()

	rows, err := ExtractTable([]byte("<p>nothing</p>"), "table.wikitable", "", 10)
	require.NoError(t, err)
	assert.Nil(t, rows)

	rows, err = ExtractTable(nil, "table", "", 10)
	require.NoError(t, err)
	assert.Nil(t, rows)
}
