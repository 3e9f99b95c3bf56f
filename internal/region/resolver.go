// Package region resolves Berlin zip codes to borough (Bezirk) names.
package region

import (
	_ "embed"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed plz_bezirk.yaml
var plzBezirkYAML []byte

var zipRe = regexp.MustCompile(`\b\d{5}\b`)

type zipRange struct {
	from, to int
	boroughs []string
}

// Resolver maps zip codes to borough names. It is immutable after
// construction and safe for concurrent readers.
type Resolver struct {
	exact  map[string][]string
	ranges []zipRange
}

// New builds a Resolver from the embedded mapping table.
func New() (*Resolver, error) {
	var raw map[string][]string
	if err := yaml.Unmarshal(plzBezirkYAML, &raw); err != nil {
		return nil, eris.Wrap(err, "region: parse embedded mapping")
	}
	return NewFromMap(raw)
}

// NewFromMap builds a Resolver from an explicit mapping. Keys are single
// codes ("14109") or inclusive ranges ("10115-10119").
func NewFromMap(raw map[string][]string) (*Resolver, error) {
	r := &Resolver{exact: make(map[string][]string)}
	for pattern, boroughs := range raw {
		from, to, ok := strings.Cut(pattern, "-")
		if !ok {
			r.exact[pattern] = boroughs
			continue
		}
		lo, err := strconv.Atoi(from)
		if err != nil {
			return nil, eris.Wrapf(err, "region: bad range %q", pattern)
		}
		hi, err := strconv.Atoi(to)
		if err != nil {
			return nil, eris.Wrapf(err, "region: bad range %q", pattern)
		}
		r.ranges = append(r.ranges, zipRange{from: lo, to: hi, boroughs: boroughs})
	}
	return r, nil
}

// Boroughs returns every borough a zip code belongs to, or nil when the
// code is unknown. Exact entries win over ranges.
func (r *Resolver) Boroughs(zip string) []string {
	if b, ok := r.exact[zip]; ok {
		return b
	}
	n, err := strconv.Atoi(zip)
	if err != nil {
		return nil
	}
	for _, zr := range r.ranges {
		if n >= zr.from && n <= zr.to {
			return zr.boroughs
		}
	}
	return nil
}

// Borough returns the primary borough for a zip code, or fallback when
// the code is unknown.
func (r *Resolver) Borough(zip, fallback string) string {
	if b := r.Boroughs(zip); len(b) > 0 {
		return b[0]
	}
	return fallback
}

// ExtractZip pulls the first 5-digit zip code out of an address string.
// Returns "" when the address contains none.
func ExtractZip(address string) string {
	return zipRe.FindString(address)
}

// Format joins borough names for display.
func Format(boroughs []string) string {
	return strings.Join(boroughs, ", ")
}
