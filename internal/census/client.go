// Package census fetches raw statistical tables from the upstream
// government data API. Every fetch is gated through the query result
// cache; only a miss reaches the network.
package census

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/census-resolver/internal/cache"
)

// DefaultBaseURL is the public data API root.
const DefaultBaseURL = "https://api.census.gov/data"

// maxVariablesPerRequest is the API's hard limit on variables per call.
// Larger variable lists are fetched in pages and merged by geography.
const maxVariablesPerRequest = 50

// Client fetches tabular data from the upstream API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cache      *cache.Cache
	cacheTTL   time.Duration
}

// Options configures a Client. Zero values take defaults.
type Options struct {
	BaseURL  string
	APIKey   string
	CacheTTL time.Duration
	Timeout  time.Duration
}

// NewClient creates an API client. The cache may be nil, in which case
// every fetch goes to the network.
func NewClient(c *cache.Cache, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = cache.DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     opts.APIKey,
		cache:      c,
		cacheTTL:   opts.CacheTTL,
	}
}

// FetchTable returns the tabular result for a request, from cache when
// a live entry exists. On a fresh fetch the result is cached
// fire-and-forget before being returned.
func (c *Client) FetchTable(ctx context.Context, req cache.Request) ([][]string, error) {
	if c.cache != nil {
		rows, ok, err := c.cache.Get(ctx, req)
		if err != nil {
			// A broken cache backend must not block the fetch path.
			log.Printf("cache lookup failed: %v", err)
		} else if ok {
			return rows, nil
		}
	}

	rows, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Put(req, rows, c.cacheTTL)
	}
	return rows, nil
}

func (c *Client) fetch(ctx context.Context, req cache.Request) ([][]string, error) {
	if req.Group != "" && len(req.Variables) == 0 {
		return c.fetchPage(ctx, req, []string{"group(" + req.Group + ")"})
	}
	if len(req.Variables) == 0 {
		return nil, fmt.Errorf("request has neither variables nor a group")
	}

	pages := chunkVariables(req.Variables, maxVariablesPerRequest)

	merged, err := c.fetchPage(ctx, req, pages[0])
	if err != nil {
		return nil, err
	}
	for _, vars := range pages[1:] {
		page, err := c.fetchPage(ctx, req, vars)
		if err != nil {
			return nil, err
		}
		merged, err = mergePages(merged, page, len(vars))
		if err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// fetchPage performs one API round trip for the given variable list.
func (c *Client) fetchPage(ctx context.Context, req cache.Request, vars []string) ([][]string, error) {
	endpoint := fmt.Sprintf("%s/%d/%s", c.baseURL, req.Year, req.Dataset)

	query := url.Values{}
	query.Set("get", strings.Join(vars, ","))
	query.Set("for", req.Geography.For)
	for _, in := range req.Geography.In {
		query.Add("in", in)
	}
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("data API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read data API response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("data API returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return decodeRows(body)
}

// decodeRows parses the API's array-of-arrays payload. Numeric cells
// and nulls are normalized to strings so the result is uniformly
// tabular.
func decodeRows(body []byte) ([][]string, error) {
	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode data API response: %w", err)
	}

	rows := make([][]string, len(raw))
	for i, rawRow := range raw {
		row := make([]string, len(rawRow))
		for j, cell := range rawRow {
			switch v := cell.(type) {
			case nil:
				row[j] = ""
			case string:
				row[j] = v
			case float64:
				row[j] = strconv.FormatFloat(v, 'f', -1, 64)
			default:
				row[j] = fmt.Sprint(v)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

// chunkVariables splits a variable list into pages of at most size.
func chunkVariables(vars []string, size int) [][]string {
	var pages [][]string
	for len(vars) > size {
		pages = append(pages, vars[:size])
		vars = vars[size:]
	}
	return append(pages, vars)
}

// mergePages joins a later page's variable columns onto the base rows.
// The API appends the geography identifier columns after the requested
// variables, so rows are keyed on those trailing columns.
func mergePages(base, page [][]string, pageVars int) ([][]string, error) {
	if len(base) == 0 || len(page) == 0 {
		return nil, fmt.Errorf("cannot merge empty result pages")
	}
	geoCols := len(page[0]) - pageVars
	if geoCols < 1 {
		return nil, fmt.Errorf("result page has no geography columns")
	}

	byKey := make(map[string][]string, len(page)-1)
	for _, row := range page[1:] {
		byKey[rowKey(row, geoCols)] = row
	}

	merged := make([][]string, 0, len(base))
	header := append(append([]string{}, base[0][:len(base[0])-geoCols]...), page[0][:pageVars]...)
	header = append(header, base[0][len(base[0])-geoCols:]...)
	merged = append(merged, header)

	for _, row := range base[1:] {
		key := rowKey(row, geoCols)
		extra, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("geography %q missing from result page", key)
		}
		out := append(append([]string{}, row[:len(row)-geoCols]...), extra[:pageVars]...)
		out = append(out, row[len(row)-geoCols:]...)
		merged = append(merged, out)
	}
	return merged, nil
}

func rowKey(row []string, geoCols int) string {
	return strings.Join(row[len(row)-geoCols:], "|")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
