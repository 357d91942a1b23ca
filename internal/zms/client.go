// Package zms is the HTTP client for the ZMS endpoints a syncer consumes:
// modified domains, per-domain JWS documents and the domain list.
package zms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"policysync/internal/changelog/metrics"
	"policysync/internal/changelog/models"
	"policysync/internal/changelog/ports"
	"policysync/pkg/platform/circuit"
	"policysync/pkg/platform/sentinel"
	pstrings "policysync/pkg/platform/strings"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultConcurrency = 4
	maxErrorBody       = 512
)

// Client implements ports.Remote over the ZMS REST API.
type Client struct {
	baseURL     string
	http        *http.Client
	breaker     *circuit.Breaker
	logger      *slog.Logger
	metrics     *metrics.Metrics
	concurrency int
	timeout     time.Duration
	ownsHTTP    bool
}

var _ ports.Remote = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the default client. The caller owns its transport
// and timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
			cl.ownsHTTP = false
		}
	}
}

// WithTimeout sets the request timeout of the default client. It has no
// effect on a client passed through WithHTTPClient.
func WithTimeout(timeout time.Duration) Option {
	return func(cl *Client) {
		if timeout > 0 {
			cl.timeout = timeout
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(cl *Client) {
		cl.breaker = b
	}
}

// WithConcurrency bounds parallel per-domain fetches in JWS mode.
func WithConcurrency(n int) Option {
	return func(cl *Client) {
		if n > 0 {
			cl.concurrency = n
		}
	}
}

// New builds a client for the ZMS API rooted at baseURL, e.g.
// "https://zms.example.com:4443/zms/v1".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ZMS url %q", baseURL)
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:     circuit.New("zms"),
		logger:      slog.Default(),
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
		ownsHTTP:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ownsHTTP {
		c.http.Timeout = c.timeout
	}
	return c, nil
}

// BreakerState reports the health of ZMS as seen by recent calls.
func (c *Client) BreakerState() circuit.State {
	return c.breaker.State()
}

type signedDomains struct {
	Domains []*models.SignedDomain `json:"domains"`
}

type domainMeta struct {
	Domains []struct {
		Domain struct {
			Name string `json:"name"`
		} `json:"domain"`
	} `json:"domains"`
}

type domainList struct {
	Names []string `json:"names"`
	Next  string   `json:"next,omitempty"`
}

// FetchChanges returns the domains modified since the given ETag. The ETag
// of the response is the new watermark; 304 means nothing changed.
func (c *Client) FetchChanges(ctx context.Context, since string, mode models.Mode) (*models.Changes, error) {
	switch mode {
	case models.ModeSigned:
		return c.fetchSigned(ctx, since)
	case models.ModeJWS:
		return c.fetchJWS(ctx, since)
	default:
		return nil, fmt.Errorf("unsupported sync mode %q", mode)
	}
}

func (c *Client) fetchSigned(ctx context.Context, since string) (*models.Changes, error) {
	var body signedDomains
	etag, notModified, err := c.modifiedDomains(ctx, since, false, &body)
	if err != nil {
		return nil, err
	}
	if notModified {
		return &models.Changes{Watermark: since}, nil
	}
	changes := &models.Changes{Watermark: etag, Records: make([]models.Record, 0, len(body.Domains))}
	for _, d := range body.Domains {
		if d == nil {
			continue
		}
		changes.Records = append(changes.Records, d)
	}
	return changes, nil
}

// fetchJWS lists the modified domain names and then downloads each JWS
// document. Any failed download fails the whole fetch.
func (c *Client) fetchJWS(ctx context.Context, since string) (*models.Changes, error) {
	var meta domainMeta
	etag, notModified, err := c.modifiedDomains(ctx, since, true, &meta)
	if err != nil {
		return nil, err
	}
	if notModified {
		return &models.Changes{Watermark: since}, nil
	}

	names := make([]string, 0, len(meta.Domains))
	for _, d := range meta.Domains {
		if d.Domain.Name != "" {
			names = append(names, d.Domain.Name)
		}
	}

	records := make([]models.Record, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, name := range names {
		g.Go(func() error {
			var doc models.JWSDomain
			if _, err := c.get(gctx, "jws_domain", "/domain/"+url.PathEscape(name)+"/signed", nil, nil, false, &doc); err != nil {
				return fmt.Errorf("fetch jws domain %q: %w", name, err)
			}
			records[i] = &doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &models.Changes{Records: records, Watermark: etag}, nil
}

func (c *Client) modifiedDomains(ctx context.Context, since string, metaOnly bool, out any) (etag string, notModified bool, err error) {
	query := url.Values{}
	if metaOnly {
		query.Set("metaonly", "true")
	}
	header := http.Header{}
	if since != "" {
		header.Set("If-None-Match", since)
	}
	resp, err := c.get(ctx, "modified_domains", "/sys/modified_domains", query, header, true, out)
	if err != nil {
		return "", false, err
	}
	if resp.StatusCode == http.StatusNotModified {
		return "", true, nil
	}
	return resp.Header.Get("ETag"), false, nil
}

// ListDomainNames pages through GET /domain until ZMS stops returning a
// "next" marker.
func (c *Client) ListDomainNames(ctx context.Context) ([]string, error) {
	var names []string
	skip := ""
	for {
		query := url.Values{}
		if skip != "" {
			query.Set("skip", skip)
		}
		var page domainList
		if _, err := c.get(ctx, "domain_list", "/domain", query, nil, false, &page); err != nil {
			return nil, err
		}
		names = append(names, page.Names...)
		if page.Next == "" || page.Next == skip {
			return pstrings.Compact(names), nil
		}
		skip = page.Next
	}
}

// get performs one GET and decodes a 200 body into out. When allowNotModified
// is set a 304 is returned to the caller without decoding; every other status
// is an error.
func (c *Client) get(ctx context.Context, endpoint, path string, query url.Values, header http.Header, allowNotModified bool, out any) (*http.Response, error) {
	start := time.Now()
	resp, err := c.do(ctx, path, query, header, allowNotModified, out)
	if c.metrics != nil {
		c.metrics.ObserveRemoteCall(endpoint, start)
	}
	c.record(ctx, endpoint, err)
	return resp, err
}

func (c *Client) do(ctx context.Context, path string, query url.Values, header http.Header, allowNotModified bool, out any) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w: %w", path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && allowNotModified:
		return resp, nil
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("GET %s: HTTP %d: %w: %s", path, resp.StatusCode, sentinel.ErrUnavailable, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return nil, fmt.Errorf("GET %s: decode response: %w", path, err)
	}
	return resp, nil
}

// record feeds the breaker. The breaker does not short-circuit calls: the
// next pass always retries, and the state only drives logs and metrics.
func (c *Client) record(ctx context.Context, endpoint string, err error) {
	if err != nil && errors.Is(err, context.Canceled) {
		return
	}
	change := c.breaker.Record(err)
	switch {
	case change.Opened:
		c.logger.WarnContext(ctx, "zms circuit opened",
			"endpoint", endpoint,
			"consecutive_failures", c.breaker.Snapshot().Failures,
			"error", err,
		)
	case change.Closed:
		c.logger.InfoContext(ctx, "zms circuit closed", "endpoint", endpoint)
	}
	if c.metrics != nil && (change.Opened || change.Closed) {
		c.metrics.SetCircuitOpen(change.Opened)
	}
}
