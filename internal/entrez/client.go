// Package entrez is a small NCBI E-utilities client.
//
// Every request goes through one Throttle, so consecutive calls are spaced by
// the interval NCBI asks for (about 10 requests per second with an API key,
// 3 without). A 429 answer is retried exactly once after a fixed backoff.
// There are no per-request timeouts; cancel the context to abort.
package entrez

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

const (
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"
	DefaultTool    = "qcflat"

	// IntervalWithKey stays just under the 10 req/s ceiling for keyed access.
	IntervalWithKey = 110 * time.Millisecond
	// IntervalNoKey stays under the 3 req/s ceiling.
	IntervalNoKey = 340 * time.Millisecond

	RetryBackoff = time.Second
)

var (
	ErrRateLimited = errors.New("entrez: rate limited")
	ErrNotFound    = errors.New("entrez: record not found")
)

// Config is fixed for the lifetime of a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Email      string
	Tool       string
	Interval   time.Duration // zero picks IntervalWithKey or IntervalNoKey
	HTTPClient *http.Client
}

// Client issues throttled E-utilities requests.
// It is not safe for concurrent use.
type Client struct {
	cfg      Config
	http     *http.Client
	throttle *Throttle
	backoff  time.Duration
}

// New builds a client, filling defaults into cfg.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Tool == "" {
		cfg.Tool = DefaultTool
	}
	if cfg.Interval == 0 {
		cfg.Interval = IntervalNoKey
		if cfg.APIKey != "" {
			cfg.Interval = IntervalWithKey
		}
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		cfg:      cfg,
		http:     hc,
		throttle: NewThrottle(cfg.Interval),
		backoff:  RetryBackoff,
	}
}

// Interval returns the spacing enforced between calls.
func (c *Client) Interval() time.Duration { return c.throttle.Interval() }

// Search runs esearch and returns the matching UIDs in result order.
func (c *Client) Search(ctx context.Context, db, term string) ([]string, error) {
	body, err := c.get(ctx, "esearch.fcgi", url.Values{
		"db":      {db},
		"term":    {term},
		"retmode": {"json"},
	})
	if err != nil {
		return nil, err
	}
	doc, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("esearch %s %q: parse: %w", db, term, err)
	}
	var ids []string
	for _, v := range jp.C("esearchresult").C("idlist").W().Get(doc) {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// Fetch runs efetch and returns the raw body.
func (c *Client) Fetch(ctx context.Context, db, id, rettype, retmode string) ([]byte, error) {
	q := url.Values{"db": {db}, "id": {id}, "retmode": {retmode}}
	if rettype != "" {
		q.Set("rettype", rettype)
	}
	return c.get(ctx, "efetch.fcgi", q)
}

// FetchGBSeq fetches one GenBank record (INSDSeq XML flavour GBSet).
func (c *Client) FetchGBSeq(ctx context.Context, db, id string) (*GBSeq, error) {
	body, err := c.Fetch(ctx, db, id, "gb", "xml")
	if err != nil {
		return nil, err
	}
	var set GBSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("efetch %s %s: parse: %w", db, id, err)
	}
	if len(set.Seqs) == 0 {
		return nil, fmt.Errorf("efetch %s %s: %w", db, id, ErrNotFound)
	}
	return &set.Seqs[0], nil
}

// FetchTaxon fetches one taxonomy record.
func (c *Client) FetchTaxon(ctx context.Context, taxID string) (*Taxon, error) {
	body, err := c.Fetch(ctx, "taxonomy", taxID, "", "xml")
	if err != nil {
		return nil, err
	}
	var set TaxaSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("efetch taxonomy %s: parse: %w", taxID, err)
	}
	if len(set.Taxa) == 0 {
		return nil, fmt.Errorf("efetch taxonomy %s: %w", taxID, ErrNotFound)
	}
	return &set.Taxa[0], nil
}

// Summary runs esummary and returns the document summary of id.
func (c *Client) Summary(ctx context.Context, db, id string) (map[string]any, error) {
	body, err := c.get(ctx, "esummary.fcgi", url.Values{
		"db":      {db},
		"id":      {id},
		"retmode": {"json"},
	})
	if err != nil {
		return nil, err
	}
	doc, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("esummary %s %s: parse: %w", db, id, err)
	}
	for _, v := range jp.C("result").C(id).Get(doc) {
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
	}
	return nil, fmt.Errorf("esummary %s %s: %w", db, id, ErrNotFound)
}

// SRASummary returns the experiment descriptor of an SRA UID.
func (c *Client) SRASummary(ctx context.Context, id string) (*ExpXML, error) {
	sum, err := c.Summary(ctx, "sra", id)
	if err != nil {
		return nil, err
	}
	raw, _ := sum["expxml"].(string)
	if raw == "" {
		return nil, fmt.Errorf("esummary sra %s: no expxml: %w", id, ErrNotFound)
	}
	return ParseExpXML(raw)
}

// BioSampleSummary returns the sample description of a BioSample UID.
func (c *Client) BioSampleSummary(ctx context.Context, id string) (*BioSample, error) {
	sum, err := c.Summary(ctx, "biosample", id)
	if err != nil {
		return nil, err
	}
	raw, _ := sum["sampledata"].(string)
	if raw == "" {
		return nil, fmt.Errorf("esummary biosample %s: no sampledata: %w", id, ErrNotFound)
	}
	var bs BioSample
	if err := xml.Unmarshal([]byte(raw), &bs); err != nil {
		return nil, fmt.Errorf("esummary biosample %s: parse: %w", id, err)
	}
	return &bs, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values) ([]byte, error) {
	if c.cfg.APIKey != "" {
		q.Set("api_key", c.cfg.APIKey)
	}
	if c.cfg.Email != "" {
		q.Set("email", c.cfg.Email)
	}
	q.Set("tool", c.cfg.Tool)
	u := c.cfg.BaseURL + endpoint + "?" + q.Encode()

	body, status, err := c.roundTrip(ctx, u)
	if err == nil && status == http.StatusTooManyRequests {
		if err := c.throttle.sleep(ctx, c.backoff); err != nil {
			return nil, err
		}
		body, status, err = c.roundTrip(ctx, u)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	switch {
	case status == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", endpoint, ErrRateLimited)
	case status < 200 || status > 299:
		return nil, fmt.Errorf("%s: unexpected status %d", endpoint, status)
	}
	return body, nil
}

// roundTrip performs one throttled request.
func (c *Client) roundTrip(ctx context.Context, u string) ([]byte, int, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, 0, err
	}
	defer c.throttle.Done()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return body, resp.StatusCode, nil
}
