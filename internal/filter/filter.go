// Package filter decides which newly discovered listings are worth a
// notification. All rules are independent ANDs; a single failing rule
// excludes the listing.
package filter

import (
	"strings"

	"go.uber.org/zap"

	"github.com/flathunters/flatwatch/internal/config"
	"github.com/flathunters/flatwatch/internal/model"
	"github.com/flathunters/flatwatch/internal/region"
)

// Categorical values the eligibility allow-list matches against.
const (
	WBSRequired    = "required"
	WBSNotRequired = "not_required"
)

// Engine evaluates the configured rules against listings. Missing data
// (the N/A sentinel) always passes the specific rule: incomplete
// information never excludes a listing.
type Engine struct {
	cfg      config.FilterConfig
	resolver *region.Resolver
	log      *zap.Logger
}

// New creates a filter engine. resolver may be nil, which disables the
// borough rule.
func New(cfg config.FilterConfig, resolver *region.Resolver) *Engine {
	return &Engine{
		cfg:      cfg,
		resolver: resolver,
		log:      zap.L().With(zap.String("component", "filter")),
	}
}

// Excluded reports whether the listing fails any configured rule.
func (e *Engine) Excluded(l model.Listing) bool {
	if !e.cfg.Enabled {
		return false
	}
	return e.excludedByPrice(l) ||
		e.excludedBySQM(l) ||
		e.excludedByRooms(l) ||
		e.excludedByWBS(l) ||
		e.excludedByBorough(l)
}

// Select partitions listings into those worth notifying about.
func (e *Engine) Select(listings map[string]model.Listing) []model.Listing {
	out := make([]model.Listing, 0, len(listings))
	for _, l := range listings {
		if !e.Excluded(l) {
			out = append(out, l)
		}
	}
	return out
}

// passesRange checks a numeric value against min/max bounds. Values
// that could not be parsed pass unconditionally.
func passesRange(value string, r config.Range) bool {
	v, ok := model.ToNumeric(value)
	if !ok {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// excludedByPrice checks total rent against the price rule, falling
// back to cold rent when total is unavailable.
func (e *Engine) excludedByPrice(l model.Listing) bool {
	price, kind := l.PriceTotal, "total"
	if _, ok := model.ToNumeric(price); !ok {
		price, kind = l.PriceCold, "cold"
	}
	if !passesRange(price, e.cfg.PriceTotal) {
		e.log.Info("filtered by price",
			zap.String("identifier", l.Identifier),
			zap.String("price", price),
			zap.String("kind", kind),
		)
		return true
	}
	return false
}

func (e *Engine) excludedBySQM(l model.Listing) bool {
	if !passesRange(l.SQM, e.cfg.SQM) {
		e.log.Info("filtered by size",
			zap.String("identifier", l.Identifier),
			zap.String("sqm", l.SQM),
		)
		return true
	}
	return false
}

func (e *Engine) excludedByRooms(l model.Listing) bool {
	if !passesRange(l.Rooms, e.cfg.Rooms) {
		e.log.Info("filtered by rooms",
			zap.String("identifier", l.Identifier),
			zap.String("rooms", l.Rooms),
		)
		return true
	}
	return false
}

func (e *Engine) excludedByWBS(l model.Listing) bool {
	if len(e.cfg.WBSAllowed) == 0 {
		return false
	}
	category := WBSNotRequired
	if l.WBS {
		category = WBSRequired
	}
	for _, allowed := range e.cfg.WBSAllowed {
		if strings.EqualFold(strings.TrimSpace(allowed), category) {
			return false
		}
	}
	e.log.Info("filtered by wbs",
		zap.String("identifier", l.Identifier),
		zap.String("wbs", category),
	)
	return true
}

// excludedByBorough checks the borough allow-list. An address without a
// zip code passes (nothing to resolve), while a zip code the table does
// not map is excluded.
func (e *Engine) excludedByBorough(l model.Listing) bool {
	if len(e.cfg.BoroughsAllowed) == 0 || e.resolver == nil {
		return false
	}

	zip := region.ExtractZip(l.Address)
	if zip == "" {
		e.log.Debug("no zip code in address, borough rule passes",
			zap.String("identifier", l.Identifier),
		)
		return false
	}

	boroughs := e.resolver.Boroughs(zip)
	allowed := make(map[string]struct{}, len(e.cfg.BoroughsAllowed))
	for _, b := range e.cfg.BoroughsAllowed {
		allowed[strings.ToLower(b)] = struct{}{}
	}
	for _, b := range boroughs {
		if _, ok := allowed[strings.ToLower(b)]; ok {
			return false
		}
	}

	e.log.Info("filtered by borough",
		zap.String("identifier", l.Identifier),
		zap.String("boroughs", region.Format(boroughs)),
	)
	return true
}
