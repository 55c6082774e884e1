package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/tidwall/gjson"

	"github.com/reelwatch/reelwatch/internal/utils"
	"github.com/reelwatch/reelwatch/pkg/provider"
	"github.com/reelwatch/reelwatch/pkg/storage"
)

const (
	DefaultBaseURL      = "https://api.themoviedb.org/3"
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"
	DefaultLanguage     = "en-US"
)

// Config configures a Client. Only APIKey is required.
type Config struct {
	APIKey       string
	Language     string
	BaseURL      string
	ImageBaseURL string
	// Retries is the number of extra attempts on connection errors, 429 and
	// 5xx responses. Zero means a failed call fails the caller immediately.
	Retries int
	Timeout time.Duration
	// Transport overrides the HTTP transport, mostly for proxies and tests.
	Transport http.RoundTripper
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("tmdb: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("tmdb: unexpected status %d: %s", e.StatusCode, e.Message)
}

// Client talks to the TMDB v3 API.
type Client struct {
	cfg  Config
	http *retryablehttp.Client
	cb   *gobreaker.CircuitBreaker[string]
}

var _ provider.Provider = (*Client)(nil)

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("tmdb requires an API key (set tmdb.api_key in config)")
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.ImageBaseURL == "" {
		cfg.ImageBaseURL = DefaultImageBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}

	hc := retryablehttp.NewClient()
	hc.RetryMax = cfg.Retries
	hc.RetryWaitMin = 500 * time.Millisecond
	hc.RetryWaitMax = 5 * time.Second
	hc.HTTPClient.Timeout = cfg.Timeout
	if cfg.Transport != nil {
		hc.HTTPClient.Transport = cfg.Transport
	}
	hc.Logger = nil
	hc.RequestLogHook = func(_ retryablehttp.Logger, req *http.Request, attempt int) {
		if attempt > 0 {
			utils.Log.Debugf("[tmdb] retrying %s (attempt %d)", req.URL.Path, attempt+1)
		}
	}
	// Hand every response back so status handling lives in one place.
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{cfg: cfg, http: hc, cb: newBreaker("tmdb-api")}, nil
}

func (c *Client) Name() string { return "tmdb" }

// FetchCurrentBatch returns the now_playing listing in provider order.
// Entries without an id cannot be deduplicated and are dropped.
func (c *Client) FetchCurrentBatch(ctx context.Context) ([]provider.RawItem, error) {
	body, err := c.get(ctx, "/movie/now_playing", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch now playing: %w", err)
	}

	results := gjson.Get(body, "results").Array()
	items := make([]provider.RawItem, 0, len(results))
	for _, r := range results {
		id := r.Get("id")
		if id.Type != gjson.Number {
			utils.Log.Debugf("[tmdb] skipping listing entry without id: %s", r.Raw)
			continue
		}
		items = append(items, provider.RawItem{
			ID:          id.Int(),
			Title:       r.Get("title").String(),
			ReleaseDate: r.Get("release_date").String(),
			JSON:        r.Raw,
		})
	}
	return items, nil
}

func (c *Client) FetchDetails(ctx context.Context, id int64) (provider.RawDetail, error) {
	body, err := c.get(ctx, "/movie/"+strconv.FormatInt(id, 10), url.Values{"append_to_response": {"credits"}})
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return provider.RawDetail{}, fmt.Errorf("%w: movie %d", provider.ErrNotFound, id)
	}
	if err != nil {
		return provider.RawDetail{}, fmt.Errorf("fetch details for %d: %w", id, err)
	}
	return provider.RawDetail{JSON: body}, nil
}

// SearchByTitle returns the first search hit for title.
func (c *Client) SearchByTitle(ctx context.Context, title string) (provider.SearchResult, error) {
	body, err := c.get(ctx, "/search/movie", url.Values{"query": {title}})
	if err != nil {
		return provider.SearchResult{}, fmt.Errorf("search %q: %w", title, err)
	}
	first := gjson.Get(body, "results.0")
	if !first.Exists() {
		return provider.SearchResult{}, fmt.Errorf("%w: %q", provider.ErrNotFound, title)
	}
	return provider.SearchResult{
		ID:       first.Get("id").Int(),
		Title:    first.Get("title").String(),
		Overview: strings.TrimSpace(first.Get("overview").String()),
	}, nil
}

func (c *Client) Normalize(item provider.RawItem, detail provider.RawDetail) storage.Movie {
	return Normalize(item, detail, c.cfg.ImageBaseURL)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (string, error) {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.cfg.APIKey)
	params.Set("language", c.cfg.Language)
	u := c.cfg.BaseURL + path + "?" + params.Encode()

	return c.cb.Execute(func() (string, error) {
		req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", err
		}
		body := string(raw)
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", &StatusError{StatusCode: resp.StatusCode, Message: gjson.Get(body, "status_message").String()}
		}
		return body, nil
	})
}
