// Package apply submits automated applications for qualifying new
// listings through provider-specific handlers.
package apply

import (
	"context"

	"go.uber.org/zap"

	"github.com/flathunters/flatwatch/internal/model"
)

// Status is the outcome class of an application attempt. Appliers
// report failure through statuses, never through errors, so the
// dispatcher's handling is total.
type Status string

const (
	StatusSuccess            Status = "success"
	StatusFailed             Status = "failed"
	StatusSkipped            Status = "skipped"
	StatusFormNotFound       Status = "form_not_found"
	StatusMissingConfig      Status = "missing_config"
	StatusListingUnavailable Status = "listing_unavailable"
)

// Result is the outcome of one application attempt.
type Result struct {
	Status  Status
	Message string
	// ApplicantData echoes the submitted fields for the follow-up
	// notification. Only set on success.
	ApplicantData map[string]string
	// FieldOrder preserves a stable display order for ApplicantData.
	FieldOrder []string
}

// Success reports whether the application went through.
func (r Result) Success() bool { return r.Status == StatusSuccess }

// Applier is one provider-specific application handler.
type Applier interface {
	// Name identifies the provider (e.g. "wbm").
	Name() string

	// CanHandle reports whether this applier covers the listing's URL.
	CanHandle(l model.Listing) bool

	// Apply submits the application. All failure modes are expressed
	// through the Result status.
	Apply(ctx context.Context, l model.Listing) Result
}

// Dispatcher routes qualifying listings to the first registered applier
// that can handle them. No fallback: if the chosen applier fails, no
// second provider is tried.
type Dispatcher struct {
	appliers []Applier
	log      *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		log: zap.L().With(zap.String("component", "apply")),
	}
}

// Register adds an applier. Registration order is dispatch priority.
func (d *Dispatcher) Register(a Applier) {
	d.appliers = append(d.appliers, a)
}

// Dispatch tries the listing against the registered appliers in order
// and runs the first match. Returns a skipped Result when no applier
// covers the listing.
func (d *Dispatcher) Dispatch(ctx context.Context, l model.Listing) Result {
	for _, a := range d.appliers {
		if !a.CanHandle(l) {
			continue
		}

		d.log.Info("applying to listing",
			zap.String("applier", a.Name()),
			zap.String("identifier", l.Identifier),
		)
		res := a.Apply(ctx, l)
		d.log.Info("application finished",
			zap.String("applier", a.Name()),
			zap.String("status", string(res.Status)),
			zap.String("message", res.Message),
		)
		return res
	}

	return Result{Status: StatusSkipped, Message: "no applier handles this listing"}
}
