package source

import (
	"bytes"
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/time/rate"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

// HTTP fetches batches from an upstream endpoint. Requests are rate limited
// and retried on transient failures; a 4xx response is permanent. A breaker
// around the fetch path stops hammering an upstream that keeps failing.
type HTTP struct {
	name         string
	jurisdiction string
	url          string
	format       string
	client       *http.Client
	limiter      *rate.Limiter
	retry        resilience.RetryConfig
	breaker      *resilience.Breaker
}

// NewHTTP creates an HTTP adapter from its config block.
func NewHTTP(cfg config.SourceConfig) (*HTTP, error) {
	switch cfg.Format {
	case "csv", "json":
	default:
		return nil, eris.Errorf("source %s: unsupported http format %q", cfg.Name, cfg.Format)
	}

	perSec := cfg.RatePerSec
	if perSec <= 0 {
		perSec = 2
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTP{
		name:         cfg.Name,
		jurisdiction: cfg.Jurisdiction,
		url:          cfg.URL,
		format:       cfg.Format,
		client:       &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(perSec), 1),
		retry:        resilience.RetryConfig{},
		breaker:      resilience.NewBreaker(resilience.BreakerConfig{}),
	}, nil
}

func (h *HTTP) Name() string         { return h.name }
func (h *HTTP) Jurisdiction() string { return h.jurisdiction }

func (h *HTTP) Fetch(ctx context.Context, w Window) ([]model.ObservationInput, error) {
	reqURL, err := h.windowURL(w)
	if err != nil {
		return nil, err
	}

	body, err := resilience.ExecuteVal(ctx, h.breaker, func(ctx context.Context) ([]byte, error) {
		return resilience.DoVal(ctx, h.retry, func(ctx context.Context) ([]byte, error) {
			return h.get(ctx, reqURL)
		})
	})
	if err != nil {
		return nil, err
	}

	switch h.format {
	case "csv":
		return parseCSV(bytes.NewReader(body))
	case "json":
		return parseJSON(body)
	}
	return nil, eris.Errorf("source %s: unsupported format %q", h.name, h.format)
}

func (h *HTTP) windowURL(w Window) (string, error) {
	u, err := url.Parse(h.url)
	if err != nil {
		return "", eris.Wrapf(err, "source %s: parse url", h.name)
	}
	q := u.Query()
	if w.Start != nil {
		q.Set("period_start", w.Start.UTC().Format("2006-01-02"))
	}
	if w.End != nil {
		q.Set("period_end", w.End.UTC().Format("2006-01-02"))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (h *HTTP) get(ctx context.Context, reqURL string) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrapf(err, "source %s: rate limit wait", h.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "source %s: build request", h.name)
	}
	req.Header.Set("Accept", "application/json, text/csv")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransient(eris.Wrapf(err, "source %s: request", h.name))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, resilience.NewTransient(eris.Wrapf(err, "source %s: read body", h.name))
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeCharset(body, resp.Header.Get("Content-Type"))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, resilience.NewTransient(eris.Errorf("source %s: upstream returned %d", h.name, resp.StatusCode))
	}
	return nil, eris.Errorf("source %s: upstream returned %d", h.name, resp.StatusCode)
}

// decodeCharset transcodes the payload to UTF-8 when the Content-Type names
// a different charset. National statistics portals still serve latin-1 CSV.
func decodeCharset(body []byte, contentType string) ([]byte, error) {
	if contentType == "" {
		return body, nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return body, nil
	}
	charset := strings.ToLower(params["charset"])
	if charset == "" || charset == "utf-8" {
		return body, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, eris.Wrapf(err, "source: unsupported charset %q", charset)
	}
	decoded, err := io.ReadAll(enc.NewDecoder().Reader(bytes.NewReader(body)))
	if err != nil {
		return nil, eris.Wrapf(err, "source: decode charset %q", charset)
	}
	return decoded, nil
}
