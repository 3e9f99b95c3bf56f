// Package model defines the core listing entity shared by all components.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"
)

// NA is the sentinel for fields a source could not provide. Unknown values
// are never empty strings or nulls; every consumer checks against NA.
const NA = "N/A"

// Listing is one externally observed apartment offer, normalized across
// sources. Identifier doubles as the detail-page URL when one exists;
// otherwise it is a content fingerprint (see Builder.Build).
type Listing struct {
	Identifier string    `json:"identifier"`
	Source     string    `json:"source"`
	Address    string    `json:"address"`
	Borough    string    `json:"borough"`
	SQM        string    `json:"sqm"`
	PriceCold  string    `json:"price_cold"`
	PriceTotal string    `json:"price_total"`
	Rooms      string    `json:"rooms"`
	WBS        bool      `json:"wbs"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`
}

// URL returns the detail-page link, or NA when the identifier is a
// content fingerprint rather than a URL.
func (l Listing) URL() string {
	if strings.HasPrefix(l.Identifier, "http") {
		return l.Identifier
	}
	return NA
}

func (l Listing) String() string {
	return fmt.Sprintf("Listing(%s, %s, %s m², %s €)", l.Source, l.Address, l.SQM, l.PriceCold)
}

// Builder accumulates optional listing fields and materializes an
// immutable Listing. Every content field defaults to the NA sentinel.
type Builder struct {
	source     string
	identifier string
	address    string
	borough    string
	sqm        string
	priceCold  string
	priceTotal string
	rooms      string
	wbs        bool
}

// NewBuilder starts a listing for the named source.
func NewBuilder(source string) *Builder {
	return &Builder{
		source:     source,
		address:    NA,
		borough:    NA,
		sqm:        NA,
		priceCold:  NA,
		priceTotal: NA,
		rooms:      NA,
	}
}

// Link sets the canonical detail-page URL, which becomes the identifier.
func (b *Builder) Link(url string) *Builder {
	if url != "" && url != NA {
		b.identifier = url
	}
	return b
}

func (b *Builder) Address(v string) *Builder { b.address = orNA(v); return b }
func (b *Builder) Borough(v string) *Builder { b.borough = orNA(v); return b }
func (b *Builder) SQM(v string) *Builder     { b.sqm = orNA(v); return b }

func (b *Builder) PriceCold(v string) *Builder  { b.priceCold = orNA(v); return b }
func (b *Builder) PriceTotal(v string) *Builder { b.priceTotal = orNA(v); return b }
func (b *Builder) Rooms(v string) *Builder      { b.rooms = orNA(v); return b }
func (b *Builder) WBS(v bool) *Builder          { b.wbs = v; return b }

// Build materializes the listing. When no link was provided the
// identifier falls back to a deterministic fingerprint of the normalized
// content fields, so re-scraping identical content yields the same
// identifier. Construction fails only when neither a link nor any
// content field is available to derive an identifier from.
func (b *Builder) Build() (Listing, error) {
	id := b.identifier
	if id == "" {
		if b.address == NA && b.sqm == NA && b.priceCold == NA && b.priceTotal == NA && b.rooms == NA {
			return Listing{}, eris.Errorf("model: listing from %s has no derivable identifier", b.source)
		}
		id = Fingerprint(b.address, b.sqm, b.priceCold, b.priceTotal, b.rooms, b.wbs)
	}
	return Listing{
		Identifier: id,
		Source:     b.source,
		Address:    b.address,
		Borough:    b.borough,
		SQM:        b.sqm,
		PriceCold:  b.priceCold,
		PriceTotal: b.priceTotal,
		Rooms:      b.rooms,
		WBS:        b.wbs,
	}, nil
}

// Fingerprint derives a stable 16-hex-character identifier from the
// normalized content fields. Input strings are NFC-normalized first so
// that visually identical addresses with different Unicode compositions
// hash identically.
func Fingerprint(address, sqm, priceCold, priceTotal, rooms string, wbs bool) string {
	key := fmt.Sprintf("%s-%s-%s-%s-%s-%t",
		norm.NFC.String(address),
		norm.NFC.String(sqm),
		priceCold, priceTotal,
		norm.NFC.String(rooms),
		wbs,
	)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])[:16]
}

func orNA(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return NA
	}
	return v
}
