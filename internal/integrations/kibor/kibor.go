// Package kibor fetches daily KIBOR bulletins. Bulletins are published
// per business day under dated URLs; a request for a weekend or holiday
// resolves to the nearest prior trading day's bulletin.
package kibor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/taimuradam/sugar-app/internal/config"
	"github.com/taimuradam/sugar-app/internal/dates"
)

// Tenors lists the published KIBOR tenors, in months.
var Tenors = []int{1, 3, 6, 9, 12}

// maxProbeDays bounds how far back past the requested day the client
// walks looking for a published bulletin.
const maxProbeDays = 10

// Rates is one parsed bulletin: offer rates per tenor, plus the business
// day the bulletin was actually published for.
type Rates struct {
	EffectiveDate civil.Date
	ByTenor       map[int]decimal.Decimal
}

// Client handles integration with the KIBOR bulletin mirror
type Client struct {
	url    string
	client *http.Client
	log    *logrus.Logger
}

// NewClient initializes a new KIBOR client
func NewClient(cfg *config.Config, log *logrus.Logger) *Client {
	return &Client{
		url: cfg.KiborURL,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		log: log,
	}
}

// candidateURLs lists the bulletin URL spellings seen in the wild for a
// given day.
func (c *Client) candidateURLs(d civil.Date) []string {
	mon := d.Month.String()[:3]
	base := fmt.Sprintf("%s/%d/%s/", c.url, d.Year, mon)
	names := []string{
		fmt.Sprintf("Kibor-%02d-%s-%02d.xml", d.Day, mon, d.Year%100),
		fmt.Sprintf("kibor-%02d-%s-%02d.xml", d.Day, mon, d.Year%100),
		fmt.Sprintf("KIBOR-%02d-%s-%02d.xml", d.Day, mon, d.Year%100),
	}
	urls := make([]string, 0, len(names))
	for _, n := range names {
		urls = append(urls, base+n)
	}
	return urls
}

// fetchBulletin walks back from the requested day until a bulletin
// answers, up to maxProbeDays business days.
func (c *Client) fetchBulletin(ctx context.Context, d civil.Date) ([]byte, civil.Date, error) {
	probe := dates.LastBusinessDay(d)
	for i := 0; i < maxProbeDays; i++ {
		probe = dates.LastBusinessDay(probe)
		for _, url := range c.candidateURLs(probe) {
			body, ok, err := c.get(ctx, url)
			if err != nil {
				return nil, civil.Date{}, err
			}
			if ok {
				return body, probe, nil
			}
		}
		probe = probe.AddDays(-1)
	}
	return nil, civil.Date{}, fmt.Errorf("no kibor bulletin found for %s", d)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %v", err)
	}
	if len(body) == 0 {
		return nil, false, nil
	}

	c.log.Debugf("KIBOR bulletin fetched: %s", url)
	return body, true, nil
}

// parseBulletin extracts per-tenor offer rates from the bulletin XML.
func parseBulletin(rawBody []byte) (map[int]decimal.Decimal, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(rawBody); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %v", err)
	}

	elems := doc.FindElements("//KiborBulletin/Tenor")
	if len(elems) == 0 {
		return nil, fmt.Errorf("no tenor data found in XML")
	}

	out := make(map[int]decimal.Decimal, len(elems))
	for _, el := range elems {
		months, err := strconv.Atoi(el.SelectAttrValue("Months", ""))
		if err != nil {
			return nil, fmt.Errorf("bad tenor attribute: %v", err)
		}
		offer, err := decimal.NewFromString(el.SelectAttrValue("Offer", ""))
		if err != nil {
			return nil, fmt.Errorf("bad offer rate for %dm: %v", months, err)
		}
		out[months] = offer
	}

	for _, t := range Tenors {
		if _, ok := out[t]; !ok {
			return nil, fmt.Errorf("bulletin missing %dm tenor", t)
		}
	}
	return out, nil
}

// Fetch retrieves the bulletin applicable as of day. The returned
// EffectiveDate may be an earlier business day; it is the caller's
// decision which date to persist rates under.
func (c *Client) Fetch(ctx context.Context, day civil.Date) (Rates, error) {
	body, resolved, err := c.fetchBulletin(ctx, day)
	if err != nil {
		return Rates{}, err
	}

	byTenor, err := parseBulletin(body)
	if err != nil {
		return Rates{}, err
	}

	c.log.Infof("Retrieved KIBOR rates for %s (requested %s)", resolved, day)
	return Rates{EffectiveDate: resolved, ByTenor: byTenor}, nil
}

// FetchOfferRates is the backfill-facing view of Fetch.
func (c *Client) FetchOfferRates(ctx context.Context, day civil.Date) (map[int]decimal.Decimal, error) {
	rates, err := c.Fetch(ctx, day)
	if err != nil {
		return nil, err
	}
	return rates.ByTenor, nil
}
