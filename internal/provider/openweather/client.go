package openweather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"weatherstream/internal/weather"
)

// API docs: https://openweathermap.org/current
const (
	DefaultBaseURL = "http://api.openweathermap.org/data/2.5/weather"

	maxBodyBytes  = 1 << 20
	maxErrorBytes = 512
)

type Options struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// BreakerFailures consecutive transport/5xx failures open the circuit.
	// Zero disables the breaker.
	BreakerFailures int
	BreakerCooldown time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// errUpstream marks failures that count against the circuit breaker.
var errUpstream = errors.New("upstream unavailable")

func NewClient(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, errors.New("openweather: api key is required")
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("openweather: parse base url: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		apiKey:     opts.APIKey,
		logger:     logger,
	}

	if opts.BreakerFailures > 0 {
		cooldown := opts.BreakerCooldown
		if cooldown <= 0 {
			cooldown = time.Minute
		}
		threshold := uint32(opts.BreakerFailures)
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "openweather",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("provider circuit state changed", "breaker", name, "from", from.String(), "to", to.String())
			},
		})
	}
	return c, nil
}

// Fetch returns the current conditions at lat/lon. It makes at most one HTTP
// request and never retries; every failure is an *Error.
func (c *Client) Fetch(ctx context.Context, lat, lon float64) (weather.Observation, error) {
	if !weather.ValidCoordinates(lat, lon) {
		return weather.Observation{}, &Error{Kind: KindInvalidInput, Err: fmt.Errorf("invalid coordinates (%v, %v)", lat, lon)}
	}

	req, err := c.newRequest(ctx, lat, lon)
	if err != nil {
		return weather.Observation{}, &Error{Kind: KindInvalidInput, Err: err}
	}

	c.logger.Debug("provider request", "lat", lat, "lon", lon)
	resp, err := c.do(req)
	if err != nil {
		return weather.Observation{}, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
		return weather.Observation{}, &Error{
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", string(body)),
		}
	}

	var payload currentResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&payload); err != nil {
		return weather.Observation{}, &Error{Kind: KindMalformed, Err: fmt.Errorf("decode body: %w", err)}
	}
	return toObservation(payload)
}

func (c *Client) newRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	u.RawQuery = q.Encode()

	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

// do sends the request through the breaker when one is configured. Only
// transport errors, 429 and 5xx count as breaker failures.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &Error{Kind: KindTransport, Err: err}
		}
		return resp, nil
	}

	var transportErr error
	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			transportErr = err
			return nil, errUpstream
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return resp, errUpstream
		}
		return resp, nil
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, &Error{Kind: KindCircuitOpen, Err: err}
	case transportErr != nil:
		return nil, &Error{Kind: KindTransport, Err: transportErr}
	}
	resp, ok := result.(*http.Response)
	if !ok || resp == nil {
		return nil, &Error{Kind: KindTransport, Err: fmt.Errorf("unexpected breaker result %T", result)}
	}
	// 429/5xx responses come back with errUpstream; Fetch reports the status.
	return resp, nil
}

func toObservation(p currentResponse) (weather.Observation, error) {
	missing := func(key string) error {
		return &Error{Kind: KindMalformed, Err: fmt.Errorf("missing %s", key)}
	}
	if p.Main == nil {
		return weather.Observation{}, missing("main")
	}
	if p.Main.Temp == nil {
		return weather.Observation{}, missing("main.temp")
	}
	if p.Main.Humidity == nil {
		return weather.Observation{}, missing("main.humidity")
	}
	if p.Main.Pressure == nil {
		return weather.Observation{}, missing("main.pressure")
	}
	if p.Wind == nil || p.Wind.Speed == nil {
		return weather.Observation{}, missing("wind.speed")
	}

	return weather.Observation{
		Name:               p.Name,
		TemperatureCelsius: *p.Main.Temp,
		Humidity:           int(math.Round(*p.Main.Humidity)),
		Pressure:           int(math.Round(*p.Main.Pressure)),
		WindSpeed:          *p.Wind.Speed,
		ObservedAtUnix:     p.Dt,
	}, nil
}
