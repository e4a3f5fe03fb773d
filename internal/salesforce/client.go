// Package salesforce queries the Salesforce REST API and returns the results
// as records: flat collections for plain queries, typed bags for queries
// with parent/child subqueries.
package salesforce

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"sftocsv/internal/batch"
	"sftocsv/internal/flatten"
	"sftocsv/internal/record"
)

// Config configures a Client.
type Config struct {
	BaseURL     string // org URL, e.g. https://example.my.salesforce.com
	APIVersion  string // "58.0" or "v58.0"
	AccessToken string
	// Tokenless allows a client with no token, for callers that only need
	// the join helpers.
	Tokenless  bool
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client runs SOQL queries against one org.
type Client struct {
	baseURL    string
	apiVersion string
	token      string
	http       *http.Client
	log        *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.AccessToken == "" && !cfg.Tokenless {
		return nil, ErrMissingToken
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("salesforce: base URL is required")
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: FormatAPIVersion(cfg.APIVersion),
		token:      cfg.AccessToken,
		http:       hc,
		log:        logger,
	}, nil
}

// FormatAPIVersion normalizes "58", "58.0" and "v58.0" to "v58.0".
func FormatAPIVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		v = "58.0"
	}
	if !strings.Contains(v, ".") {
		v += ".0"
	}
	return "v" + v
}

// APIVersion returns the normalized API version, e.g. "v58.0".
func (c *Client) APIVersion() string { return c.apiVersion }

// queryResponse is one page of the query endpoint.
type queryResponse struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	Records        record.Collection `json:"records"`
	NextRecordsURL string            `json:"nextRecordsUrl"`
}

// Query runs soql and returns every page as flat records with the
// attributes metadata removed.
func (c *Client) Query(ctx context.Context, soql string) (record.Collection, error) {
	recs, err := c.fetchAll(ctx, soql)
	if err != nil {
		return nil, err
	}
	return flatten.StripTags(recs), nil
}

// QueryNested runs a query with subqueries and flattens the result tree into
// a bag keyed by object type.
func (c *Client) QueryNested(ctx context.Context, soql string) (*record.Bag, error) {
	recs, err := c.fetchAll(ctx, soql)
	if err != nil {
		return nil, err
	}
	return flatten.Flatten(recs)
}

// LargeInQuery splits ids across as many queries as needed to keep each
// under the length limit. template must contain the <in> placeholder.
func (c *Client) LargeInQuery(ctx context.Context, template string, ids []string) (record.Collection, error) {
	return batch.CollectFlat(ctx, template, ids, c.Query)
}

// LargeInQueryNested is LargeInQuery for nested queries.
func (c *Client) LargeInQueryNested(ctx context.Context, template string, ids []string) (*record.Bag, error) {
	return batch.CollectBag(ctx, template, ids, c.QueryNested)
}

// fetchAll follows nextRecordsUrl until the result set is exhausted.
func (c *Client) fetchAll(ctx context.Context, soql string) (record.Collection, error) {
	start := time.Now()
	endpoint := fmt.Sprintf("%s/services/data/%s/query/?q=%s", c.baseURL, c.apiVersion, url.QueryEscape(soql))

	page, err := c.fetchPage(ctx, endpoint, soql, "")
	if err != nil {
		return nil, err
	}
	records := page.Records
	pages := 1
	for page.NextRecordsURL != "" {
		next := page.NextRecordsURL
		page, err = c.fetchPage(ctx, c.baseURL+next, soql, next)
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
		pages++
	}

	c.log.Debug("salesforce query complete",
		"records", len(records),
		"pages", pages,
		"duration", time.Since(start),
	)
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint, soql, next string) (*queryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteQueryError{Query: soql, NextURL: next, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteQueryError{Query: soql, NextURL: next, StatusCode: resp.StatusCode, Body: string(body), Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &RemoteQueryError{
			Query:      soql,
			NextURL:    next,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var page queryResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &RemoteQueryError{
			Query:      soql,
			NextURL:    next,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("decode query response: %w", err),
		}
	}
	return &page, nil
}

// ZTime formats a date as the zero-offset datetime literal SOQL expects,
// e.g. 2024-01-31T00:00:00Z.
func ZTime(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02T15:04:05Z")
}
