// Package geocode resolves free-text addresses against a
// Nominatim-compatible search endpoint.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/karlseguin/ccache/v2"
)

const (
	// DefaultUserAgent identifies toolrelay to the geocoder. Nominatim's
	// usage policy rejects requests without one.
	DefaultUserAgent = "toolrelay-geocoder/1.0"

	requestTimeout = 10 * time.Second
	cacheMaxSize   = 1000
	maxBodyBytes   = 1 << 20
)

// ErrNotFound is returned when the geocoder has no match for an address.
var ErrNotFound = errors.New("address not found")

// Result is a normalized geocoder match.
type Result struct {
	Valid            bool    `json:"valid"`
	FormattedAddress string  `json:"formatted_address"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	AddressType      string  `json:"address_type"`
}

// Geocoder looks up addresses.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (*Result, error)
}

// Client is an HTTP Geocoder with an in-memory result cache.
type Client struct {
	endpoint   string
	userAgent  string
	httpClient *http.Client
	cache      *ccache.Cache
	ttl        time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// NewClient creates a Client for endpoint. A ttl of zero disables caching.
func NewClient(endpoint string, ttl time.Duration, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: requestTimeout},
		ttl:        ttl,
	}
	for _, opt := range opts {
		opt(c)
	}
	if ttl > 0 {
		c.cache = ccache.New(ccache.Configure().MaxSize(cacheMaxSize))
	}
	return c
}

// Close stops the cache's background worker.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Stop()
	}
}

// place is the subset of a Nominatim search hit we read.
type place struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	Class       string `json:"class"`
	Type        string `json:"type"`
	AddressType string `json:"addresstype"`
}

// Lookup geocodes address. It returns ErrNotFound when there is no match.
func (c *Client) Lookup(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, errors.New("address is required")
	}

	key := strings.ToLower(address)
	if c.cache != nil {
		if item := c.cache.Get(key); item != nil && !item.Expired() {
			res := *item.Value().(*Result)
			return &res, nil
		}
	}

	res, err := c.fetch(ctx, address)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		cached := *res
		c.cache.Set(key, &cached, c.ttl)
	}
	return res, nil
}

func (c *Client) fetch(ctx context.Context, address string) (*Result, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing geocoder URL: %w", err)
	}
	q := u.Query()
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocoder request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocoder returned HTTP %d", resp.StatusCode)
	}

	var places []place
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&places); err != nil {
		return nil, fmt.Errorf("decoding geocoder response: %w", err)
	}
	if len(places) == 0 {
		return nil, ErrNotFound
	}

	return normalize(places[0])
}

func normalize(p place) (*Result, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude %q: %w", p.Lon, err)
	}

	kind := p.AddressType
	if kind == "" {
		kind = p.Type
	}
	if kind == "" {
		kind = p.Class
	}

	return &Result{
		Valid:            true,
		FormattedAddress: p.DisplayName,
		Latitude:         lat,
		Longitude:        lon,
		AddressType:      kind,
	}, nil
}
