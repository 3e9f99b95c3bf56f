package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/flathunters/flatwatch/internal/fetcher"
	"github.com/flathunters/flatwatch/internal/model"
	"github.com/flathunters/flatwatch/internal/region"
)

// Listings per request. The feed is date-descending, so one batch plus
// early termination covers live updates.
const deutschewohnenBatchSize = 50

// Deutschewohnen polls the wohnraumkarte.de JSON API behind
// deutsche-wohnen.com. Warm rent is not exposed by the list API (the
// detail API needs session cookies), so PriceTotal stays N/A.
type Deutschewohnen struct {
	client   *fetcher.Client
	resolver *region.Resolver
	apiURL   string
	baseURL  string
}

// NewDeutschewohnen creates the deutsche-wohnen.com adapter.
func NewDeutschewohnen(client *fetcher.Client, resolver *region.Resolver) *Deutschewohnen {
	return &Deutschewohnen{
		client:   client,
		resolver: resolver,
		apiURL:   "https://www.wohnraumkarte.de/api/getImmoList",
		baseURL:  "https://www.deutsche-wohnen.com",
	}
}

// flexString decodes a JSON value that the API serves inconsistently as
// either a string or a number.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type immoItem struct {
	Slug   flexString `json:"slug"`
	WrkID  flexString `json:"wrk_id"`
	Street flexString `json:"strasse"`
	Zip    flexString `json:"plz"`
	City   flexString `json:"ort"`
	Price  flexString `json:"preis"`
	Size   flexString `json:"groesse"`
	Rooms  flexString `json:"anzahl_zimmer"`
}

type immoListResponse struct {
	Results []immoItem `json:"results"`
	Paging  struct {
		TotalCount flexString `json:"totalCount"`
	} `json:"paging"`
}

func (d *Deutschewohnen) Name() string { return "deutschewohnen" }

func (d *Deutschewohnen) SupportsEarlyTermination() bool { return true }

// Fetch pulls the newest batch from the API and scans it against the
// known state.
func (d *Deutschewohnen) Fetch(ctx context.Context, known map[string]model.Listing) (*Result, error) {
	q := url.Values{
		"rentType": {"miete"},
		"city":     {"Berlin"},
		"immoType": {"wohnung"},
		"limit":    {fmt.Sprint(deutschewohnenBatchSize)},
		"offset":   {"0"},
		"orderBy":  {"date_desc"},
		"dataSet":  {"deuwo"},
	}

	var resp immoListResponse
	if err := d.client.GetJSON(ctx, d.apiURL+"?"+q.Encode(), &resp); err != nil {
		return nil, eris.Wrap(err, "deutschewohnen: fetch listing batch")
	}

	newListings, reconfirmed := Scan(resp.Results, KnownIDs(known),
		ScanOptions[immoItem]{
			Source:           d.Name(),
			EarlyTermination: true,
			FastID:           d.listingURL,
		},
		d.parse,
	)

	return &Result{New: newListings, Reconfirmed: reconfirmed}, nil
}

// listingURL builds the detail page URL, which doubles as the listing
// identifier. Returns "" when slug or id is missing.
func (d *Deutschewohnen) listingURL(item immoItem) string {
	slug := strings.TrimSpace(string(item.Slug))
	id := strings.TrimSpace(string(item.WrkID))
	if slug == "" || id == "" {
		return ""
	}
	return fmt.Sprintf("%s/mieten/mietangebote/%s-%s", d.baseURL, slug, id)
}

func (d *Deutschewohnen) parse(item immoItem) (model.Listing, string, error) {
	link := d.listingURL(item)
	if link == "" {
		return model.Listing{}, "", eris.New("deutschewohnen: listing without slug or wrk_id")
	}

	l, err := model.NewBuilder(d.Name()).
		Link(link).
		Address(d.address(item)).
		Borough(d.borough(item)).
		SQM(string(item.Size)).
		PriceCold(string(item.Price)).
		Rooms(d.rooms(item)).
		Build()
	if err != nil {
		return model.Listing{}, "", err
	}
	return l, l.Identifier, nil
}

func (d *Deutschewohnen) address(item immoItem) string {
	street := strings.TrimSpace(string(item.Street))
	zip := strings.TrimSpace(string(item.Zip))
	city := strings.TrimSpace(string(item.City))

	switch {
	case street != "" && zip != "" && city != "":
		return fmt.Sprintf("%s, %s %s", street, zip, city)
	case zip != "" && city != "":
		return fmt.Sprintf("%s %s", zip, city)
	case street != "":
		return street
	}
	return model.NA
}

// borough prefers the "Berlin OT <Ortsteil>" convention in the city
// field and falls back to the zip code mapping.
func (d *Deutschewohnen) borough(item immoItem) string {
	city := string(item.City)
	if _, after, ok := strings.Cut(city, "OT"); ok {
		if b := strings.TrimSpace(after); b != "" {
			return b
		}
	}
	if zip := strings.TrimSpace(string(item.Zip)); zip != "" {
		return d.resolver.Borough(zip, model.NA)
	}
	return model.NA
}

func (d *Deutschewohnen) rooms(item immoItem) string {
	rooms := strings.TrimSpace(string(item.Rooms))
	if rooms == "" {
		return "1"
	}
	return model.NormalizeRooms(rooms)
}
