package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/verdantio/greenhouse-core/internal/infrastructure/config"
)

// Sentinel errors for forecast retrieval.
var (
	// ErrDisabled indicates the forecast provider is disabled in config.
	ErrDisabled = errors.New("forecast: disabled in configuration")

	// ErrUnavailable indicates no fresh data could be fetched and the
	// cache is past its maximum staleness.
	ErrUnavailable = errors.New("forecast: unavailable")
)

// Default provider settings (OpenWeatherMap free tier).
const (
	defaultTimeout  = 30 * time.Second
	defaultTTL      = 30 * time.Minute
	defaultMaxStale = 3 * time.Hour

	// forecastEntries requests two days of 3-hour slots; tomorrow's
	// extremes always fall inside that window.
	forecastEntries = 16
)

// Current holds outside conditions at fetch time.
type Current struct {
	Temp     float64 `json:"temp"`
	Humidity float64 `json:"humidity"`
}

// Snapshot is the normalized forecast the decision layer consumes.
type Snapshot struct {
	FetchedAt         time.Time `json:"fetched_at"`
	Current           Current   `json:"current"`
	TomorrowHigh      float64   `json:"tomorrow_high"`
	TomorrowLow       float64   `json:"tomorrow_low"`
	PrecipProbability float64   `json:"precip_probability"`
}

// Client fetches and caches weather forecasts.
//
// The forecast is strictly advisory: every method failure mode leaves
// the control loop able to continue without a snapshot.
type Client struct {
	cfg      config.ForecastConfig
	lat, lon float64
	location *time.Location
	http     *http.Client
	now      func() time.Time

	mu     sync.Mutex
	cached *Snapshot
}

// NewClient creates a forecast client for the given site coordinates.
// The location determines which calendar day counts as "tomorrow".
func NewClient(cfg config.ForecastConfig, lat, lon float64, location *time.Location) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Client{
		cfg:      cfg,
		lat:      lat,
		lon:      lon,
		location: location,
		http:     &http.Client{Timeout: timeout},
		now:      time.Now,
	}
}

// Snapshot returns the current forecast, fetching from the provider if
// the cache is past its TTL.
//
// On fetch failure a stale cache entry within MaxStale is served; past
// that, ErrUnavailable is returned and the caller proceeds without a
// forecast.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	if !c.cfg.Enabled {
		return nil, ErrDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.cached != nil && now.Sub(c.cached.FetchedAt) <= c.ttl() {
		snap := *c.cached
		return &snap, nil
	}

	snap, err := c.fetch(ctx, now)
	if err != nil {
		if c.cached != nil && now.Sub(c.cached.FetchedAt) <= c.maxStale() {
			stale := *c.cached
			return &stale, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	c.cached = snap
	out := *snap
	return &out, nil
}

func (c *Client) ttl() time.Duration {
	if c.cfg.CacheTTLMinutes > 0 {
		return time.Duration(c.cfg.CacheTTLMinutes) * time.Minute
	}
	return defaultTTL
}

func (c *Client) maxStale() time.Duration {
	if c.cfg.MaxStaleMinutes > 0 {
		return time.Duration(c.cfg.MaxStaleMinutes) * time.Minute
	}
	return defaultMaxStale
}

// currentResponse is the subset of the provider's /weather response we use.
type currentResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
}

// forecastResponse is the subset of the provider's /forecast response we use.
type forecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			TempMin float64 `json:"temp_min"`
			TempMax float64 `json:"temp_max"`
		} `json:"main"`
		Pop float64 `json:"pop"`
	} `json:"list"`
}

func (c *Client) fetch(ctx context.Context, now time.Time) (*Snapshot, error) {
	var current currentResponse
	if err := c.get(ctx, "/weather", nil, &current); err != nil {
		return nil, fmt.Errorf("current conditions: %w", err)
	}

	var fc forecastResponse
	extra := url.Values{"cnt": []string{strconv.Itoa(forecastEntries)}}
	if err := c.get(ctx, "/forecast", extra, &fc); err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	snap := &Snapshot{
		FetchedAt: now,
		Current: Current{
			Temp:     current.Main.Temp,
			Humidity: current.Main.Humidity,
		},
	}

	// Tomorrow's extremes from the 3-hour slots falling on the next
	// local calendar day.
	tomorrow := now.In(c.location).AddDate(0, 0, 1)
	ty, tm, td := tomorrow.Date()

	first := true
	for _, entry := range fc.List {
		at := time.Unix(entry.Dt, 0).In(c.location)
		y, m, d := at.Date()
		if y != ty || m != tm || d != td {
			continue
		}
		if first {
			snap.TomorrowHigh = entry.Main.TempMax
			snap.TomorrowLow = entry.Main.TempMin
			first = false
		} else {
			if entry.Main.TempMax > snap.TomorrowHigh {
				snap.TomorrowHigh = entry.Main.TempMax
			}
			if entry.Main.TempMin < snap.TomorrowLow {
				snap.TomorrowLow = entry.Main.TempMin
			}
		}
		if pop := entry.Pop * 100; pop > snap.PrecipProbability {
			snap.PrecipProbability = pop
		}
	}
	if first {
		return nil, fmt.Errorf("no forecast entries for tomorrow")
	}

	return snap, nil
}

// get performs a provider request with the standard query parameters.
func (c *Client) get(ctx context.Context, path string, extra url.Values, out any) error {
	q := url.Values{
		"lat":   []string{strconv.FormatFloat(c.lat, 'f', 4, 64)},
		"lon":   []string{strconv.FormatFloat(c.lon, 'f', 4, 64)},
		"appid": []string{c.cfg.APIKey},
		"units": []string{"metric"},
	}
	for k, vs := range extra {
		q[k] = vs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("provider returned %d: %s", resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
