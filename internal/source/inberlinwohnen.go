package source

import (
	"bytes"
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/flathunters/flatwatch/internal/fetcher"
	"github.com/flathunters/flatwatch/internal/htmlutil"
	"github.com/flathunters/flatwatch/internal/model"
	"github.com/flathunters/flatwatch/internal/region"
)

// Inberlinwohnen scrapes the Wohnungsfinder of inberlinwohnen.de, the
// shared portal of Berlin's state-owned housing companies. The site has
// no public JSON API (Livewire with encrypted state), so listing cards
// are parsed out of the rendered page. The page shows newest offers
// first, which makes early termination safe.
type Inberlinwohnen struct {
	client   *fetcher.Client
	resolver *region.Resolver
	url      string
}

// NewInberlinwohnen creates the inberlinwohnen.de adapter.
func NewInberlinwohnen(client *fetcher.Client, resolver *region.Resolver) *Inberlinwohnen {
	return &Inberlinwohnen{
		client:   client,
		resolver: resolver,
		url:      "https://www.inberlinwohnen.de/wohnungsfinder",
	}
}

func (s *Inberlinwohnen) Name() string { return "inberlinwohnen" }

func (s *Inberlinwohnen) SupportsEarlyTermination() bool { return true }

// Fetch downloads the finder page, extracts the listing cards, and
// scans them against the known state.
func (s *Inberlinwohnen) Fetch(ctx context.Context, known map[string]model.Listing) (*Result, error) {
	body, err := s.client.Get(ctx, s.url)
	if err != nil {
		return nil, eris.Wrap(err, "inberlinwohnen: fetch finder page")
	}

	items, err := s.extractItems(body)
	if err != nil {
		return nil, err
	}

	newListings, reconfirmed := Scan(items, KnownIDs(known),
		ScanOptions[*html.Node]{
			Source:           s.Name(),
			EarlyTermination: true,
			FastID:           detailLink,
		},
		s.parse,
	)

	return &Result{New: newListings, Reconfirmed: reconfirmed}, nil
}

// extractItems returns the listing card nodes, identified by the
// "apartment-" id prefix the Livewire frontend stamps on each card.
func (s *Inberlinwohnen) extractItems(body []byte) ([]*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "inberlinwohnen: parse finder page")
	}

	var items []*html.Node
	htmlutil.Walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "div" &&
			strings.HasPrefix(htmlutil.Attr(n, "id"), "apartment-") {
			items = append(items, n)
			return false // don't descend into a card looking for more cards
		}
		return true
	})

	if len(items) == 0 {
		if strings.Contains(string(body), "Keine Wohnungen gefunden") {
			zap.L().Info("no listings currently available", zap.String("source", s.Name()))
			return nil, nil
		}
		return nil, eris.New("inberlinwohnen: no listing cards found, page layout may have changed")
	}
	return items, nil
}

// detailLink returns the href of the card's "Alle Details" link, which
// serves as the listing identifier.
func detailLink(card *html.Node) string {
	var href string
	htmlutil.Walk(card, func(n *html.Node) bool {
		if href != "" {
			return false
		}
		if n.Type == html.ElementNode && n.Data == "a" &&
			strings.Contains(htmlutil.Text(n), "Alle Details") {
			href = htmlutil.Attr(n, "href")
			return false
		}
		return true
	})
	return href
}

func (s *Inberlinwohnen) parse(card *html.Node) (model.Listing, string, error) {
	b := model.NewBuilder(s.Name()).Link(detailLink(card))

	definitionPairs(card)(func(dt, dd *html.Node) bool {
		label := strings.TrimSpace(htmlutil.Text(dt))
		value := model.CleanText(htmlutil.Text(dd))

		switch {
		case strings.Contains(label, "Adresse:"):
			addr := value
			// The address sits on a map button when one is rendered.
			if btn := htmlutil.FirstElement(dd, "button"); btn != nil {
				addr = model.CleanText(htmlutil.Text(btn))
			}
			b.Address(addr)
			if zip := region.ExtractZip(addr); zip != "" {
				b.Borough(s.resolver.Borough(zip, model.NA))
			}
		case strings.Contains(label, "Wohnfläche:"):
			b.SQM(model.NormalizeGermanNumber(value))
		case strings.Contains(label, "Kaltmiete:"):
			b.PriceCold(model.NormalizeGermanNumber(value))
		case strings.Contains(label, "Gesamtmiete:"):
			b.PriceTotal(model.NormalizeGermanNumber(value))
		case strings.Contains(label, "Zimmeranzahl:"):
			b.Rooms(model.NormalizeRooms(value))
		case strings.Contains(label, "WBS:"):
			b.WBS(!strings.Contains(strings.ToLower(value), "nicht erforderlich"))
		}
		return true
	})

	l, err := b.Build()
	if err != nil {
		return model.Listing{}, "", err
	}
	return l, l.Identifier, nil
}

// definitionPairs yields each dt element of the card together with its
// following dd sibling.
func definitionPairs(card *html.Node) func(yield func(*html.Node, *html.Node) bool) {
	return func(yield func(*html.Node, *html.Node) bool) {
		stop := false
		htmlutil.Walk(card, func(n *html.Node) bool {
			if stop {
				return false
			}
			if n.Type == html.ElementNode && n.Data == "dt" {
				if dd := htmlutil.NextSiblingElement(n, "dd"); dd != nil {
					if !yield(n, dd) {
						stop = true
						return false
					}
				}
			}
			return true
		})
	}
}
