package apply

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/flathunters/flatwatch/internal/config"
	"github.com/flathunters/flatwatch/internal/fetcher"
	"github.com/flathunters/flatwatch/internal/htmlutil"
	"github.com/flathunters/flatwatch/internal/model"
)

// WBM submits the powermail application form on wbm.de listing pages.
// Hidden inputs (request tokens) are carried over verbatim; visible
// fields are matched by the "[suffix]" convention powermail uses in
// field names.
type WBM struct {
	cfg     config.ApplierConfig
	client  *fetcher.Client
	baseURL string
	log     *zap.Logger
}

// NewWBM creates the wbm.de applier.
func NewWBM(cfg config.ApplierConfig, client *fetcher.Client) *WBM {
	return &WBM{
		cfg:     cfg,
		client:  client,
		baseURL: "https://www.wbm.de",
		log:     zap.L().With(zap.String("component", "apply.wbm")),
	}
}

func (w *WBM) Name() string { return "wbm" }

// CanHandle matches listings whose detail page lives on wbm.de.
func (w *WBM) CanHandle(l model.Listing) bool {
	u := l.URL()
	if u == model.NA {
		return false
	}
	return strings.HasPrefix(u, "https://www.wbm.de/") || strings.HasPrefix(u, "https://wbm.de/")
}

// Config keys mapped onto powermail field-name suffixes.
var wbmFieldSuffixes = map[string]string{
	"name":    "name",
	"vorname": "vorname",
	"strasse": "strasse",
	"plz":     "plz",
	"ort":     "ort",
	"email":   "e_mail",
	"telefon": "telefon",
}

// Ordering for the follow-up notification.
var wbmFieldOrder = []string{"anrede", "vorname", "name", "strasse", "plz", "ort", "email", "telefon"}

func (w *WBM) Apply(ctx context.Context, l model.Listing) Result {
	if len(w.cfg.Applicant) == 0 {
		return Result{
			Status:  StatusMissingConfig,
			Message: "wbm applicant configuration is missing",
		}
	}

	page, err := w.client.Get(ctx, l.URL())
	if err != nil {
		w.log.Warn("listing page unreachable", zap.String("url", l.URL()), zap.Error(err))
		return Result{
			Status:  StatusListingUnavailable,
			Message: "listing page could not be fetched",
		}
	}

	form, err := findPowermailForm(page)
	if err != nil || form == nil {
		return Result{
			Status:  StatusFormNotFound,
			Message: "no application form on listing page",
		}
	}

	data, submitted := w.fillForm(form)
	action := w.formAction(form, l.URL())

	if _, err := w.client.PostForm(ctx, action, data); err != nil {
		w.log.Error("form submission failed", zap.String("url", action), zap.Error(err))
		return Result{
			Status:  StatusFailed,
			Message: "form submission failed",
		}
	}

	return Result{
		Status:        StatusSuccess,
		Message:       "application submitted",
		ApplicantData: submitted,
		FieldOrder:    wbmFieldOrder,
	}
}

// findPowermailForm locates the form carrying powermail field names.
func findPowermailForm(page []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	for _, form := range htmlutil.Elements(doc, "form") {
		for _, field := range htmlutil.Elements(form, "input", "select", "textarea") {
			if strings.Contains(htmlutil.Attr(field, "name"), "tx_powermail_pi1") {
				return form, nil
			}
		}
	}
	return nil, nil
}

// fillForm builds the submission payload: hidden inputs pass through
// unchanged, applicant fields are matched by suffix, and the privacy
// checkbox is ticked. Returns the payload and the human-readable subset
// that was filled from the applicant config.
func (w *WBM) fillForm(form *html.Node) (url.Values, map[string]string) {
	data := url.Values{}
	submitted := make(map[string]string)

	for _, input := range htmlutil.Elements(form, "input") {
		if htmlutil.Attr(input, "type") == "hidden" && htmlutil.Attr(input, "name") != "" {
			data.Set(htmlutil.Attr(input, "name"), htmlutil.Attr(input, "value"))
		}
	}

	for key, suffix := range wbmFieldSuffixes {
		value := w.cfg.Applicant[key]
		if value == "" {
			continue
		}
		if name := fieldName(form, suffix); name != "" {
			data.Set(name, value)
			submitted[key] = value
		}
	}

	if name := fieldName(form, "anrede"); name != "" {
		anrede := w.cfg.Applicant["anrede"]
		if anrede == "" {
			anrede = "Frau"
		}
		data.Set(name, anrede)
		submitted["anrede"] = anrede
	}

	if name := fieldName(form, "wbsvorhanden"); name != "" {
		if isAffirmative(w.cfg.Applicant["wbs"]) {
			data.Set(name, "1")
		} else {
			data.Set(name, "0")
		}
	}

	// The privacy checkbox must be ticked for the form to validate.
	for _, input := range htmlutil.Elements(form, "input") {
		if htmlutil.Attr(input, "type") == "checkbox" &&
			strings.Contains(htmlutil.Attr(input, "name"), "datenschutzhinweis") {
			value := htmlutil.Attr(input, "value")
			if value == "" {
				value = "1"
			}
			data.Set(htmlutil.Attr(input, "name"), value)
			break
		}
	}

	return data, submitted
}

// fieldName finds the full form field name carrying the "[suffix]"
// powermail marker.
func fieldName(form *html.Node, suffix string) string {
	marker := "[" + suffix + "]"
	for _, field := range htmlutil.Elements(form, "input", "select", "textarea") {
		if name := htmlutil.Attr(field, "name"); strings.Contains(name, marker) {
			return name
		}
	}
	return ""
}

// formAction resolves the form target against the listing page URL.
func (w *WBM) formAction(form *html.Node, pageURL string) string {
	action := htmlutil.Attr(form, "action")
	if action == "" {
		return pageURL
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return action
	}
	ref, err := url.Parse(action)
	if err != nil {
		return action
	}
	return base.ResolveReference(ref).String()
}

func isAffirmative(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "ja", "yes", "true", "1":
		return true
	}
	return false
}
