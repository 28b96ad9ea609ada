// Package countries loads the list of countries to process.
package countries

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JakeFAU/citypop-crawler/internal/citypop"
)

// ErrNoCountries is returned when the configured country list is missing or empty.
var ErrNoCountries = errors.New("country list is empty")

// Loader resolves the country list for a run.
type Loader struct {
	path   string
	inline []citypop.Country
}

// NewLoader returns a Loader reading path when set, or the inline list otherwise.
func NewLoader(path string, inline []citypop.Country) *Loader {
	cp := make([]citypop.Country, len(inline))
	copy(cp, inline)
	return &Loader{path: strings.TrimSpace(path), inline: cp}
}

// Load returns the countries in input order.
func (l *Loader) Load() ([]citypop.Country, error) {
	if l.path == "" {
		list := clean(l.inline)
		if len(list) == 0 {
			return nil, ErrNoCountries
		}
		return list, nil
	}
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrNoCountries, l.path)
		}
		return nil, fmt.Errorf("open country list: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only handle
	return Parse(f)
}

// Parse reads one country per line. A line may carry a second, tab separated
// alternate-language name. Blank lines and lines starting with '#' are ignored.
func Parse(r io.Reader) ([]citypop.Country, error) {
	var out []citypop.Country
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		country := citypop.Country{Name: strings.TrimSpace(parts[0])}
		if len(parts) == 2 {
			country.AltName = strings.TrimSpace(parts[1])
		}
		if country.Name == "" {
			continue
		}
		out = append(out, country)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read country list: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrNoCountries
	}
	return out, nil
}

func clean(list []citypop.Country) []citypop.Country {
	out := make([]citypop.Country, 0, len(list))
	for _, c := range list {
		c.Name = strings.TrimSpace(c.Name)
		c.AltName = strings.TrimSpace(c.AltName)
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
