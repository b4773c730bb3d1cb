// Package adapter provides the HTTP client for the trading backend's REST resources.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/trading-dashboard/internal/errors"
	"github.com/trading-dashboard/internal/logging"
	"github.com/trading-dashboard/internal/types"
)

// Fetcher retrieves one backend resource per call. Implementations never
// retry and must be safe for concurrent use.
type Fetcher interface {
	FetchTrades(ctx context.Context) (*types.TradeHistory, error)
	FetchAnalysis(ctx context.Context) ([]types.AnalysisPoint, error)
	FetchPortfolio(ctx context.Context) (*types.PortfolioSnapshot, error)
	FetchPerformance(ctx context.Context) (*types.PerformanceMetrics, error)
}

// maxErrorBody bounds how much of a non-2xx body is kept in the error
const maxErrorBody = 256

// BackendClientConfig configures the backend client
type BackendClientConfig struct {
	BaseURL         string
	TradesDays      int
	AnalysisDays    int
	PerformanceDays int
	Timeout         time.Duration
	RateLimitRPS    float64 // 0 means unlimited
	Logger          *logging.Logger
}

// BackendClient implements Fetcher over the backend's REST API
type BackendClient struct {
	client  *resty.Client
	limiter *rate.Limiter
	logger  *logging.Logger
	health  map[types.Resource]*endpointTracker

	tradesDays      string
	analysisDays    string
	performanceDays string
}

var _ Fetcher = (*BackendClient)(nil)

// NewBackendClient creates a new backend client
func NewBackendClient(cfg BackendClientConfig) (*BackendClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL cannot be empty")
	}
	if cfg.RateLimitRPS < 0 {
		return nil, fmt.Errorf("rate limit must not be negative")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithComponent("backend_client")

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetLogger(logger)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := int(cfg.RateLimitRPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	health := make(map[types.Resource]*endpointTracker, len(types.AllResources))
	for _, r := range types.AllResources {
		health[r] = newEndpointTracker(r)
	}

	return &BackendClient{
		client:          client,
		limiter:         limiter,
		logger:          logger,
		health:          health,
		tradesDays:      strconv.Itoa(cfg.TradesDays),
		analysisDays:    strconv.Itoa(cfg.AnalysisDays),
		performanceDays: strconv.Itoa(cfg.PerformanceDays),
	}, nil
}

// FetchTrades fetches GET /trades?days=N
func (c *BackendClient) FetchTrades(ctx context.Context) (*types.TradeHistory, error) {
	var out types.TradeHistory
	err := c.fetch(ctx, types.ResourceTrades, map[string]string{"days": c.tradesDays},
		[]string{"trades"}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchAnalysis fetches GET /analysis?days=N and returns its chart_data series
func (c *BackendClient) FetchAnalysis(ctx context.Context) ([]types.AnalysisPoint, error) {
	var out struct {
		ChartData []types.AnalysisPoint `json:"chart_data"`
	}
	err := c.fetch(ctx, types.ResourceAnalysis, map[string]string{"days": c.analysisDays},
		[]string{"chart_data"}, &out)
	if err != nil {
		return nil, err
	}
	return out.ChartData, nil
}

// FetchPortfolio fetches GET /portfolio
func (c *BackendClient) FetchPortfolio(ctx context.Context) (*types.PortfolioSnapshot, error) {
	var out types.PortfolioSnapshot
	err := c.fetch(ctx, types.ResourcePortfolio, nil, []string{"total_asset"}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchPerformance fetches GET /performance?days=N
func (c *BackendClient) FetchPerformance(ctx context.Context) (*types.PerformanceMetrics, error) {
	var out types.PerformanceMetrics
	err := c.fetch(ctx, types.ResourcePerformance, map[string]string{"days": c.performanceDays},
		[]string{"total_return", "win_rate", "total_trades"}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Health returns the health of every endpoint in resource order
func (c *BackendClient) Health() []*EndpointHealth {
	out := make([]*EndpointHealth, 0, len(types.AllResources))
	for _, r := range types.AllResources {
		out = append(out, c.health[r].Snapshot())
	}
	return out
}

// fetch issues one GET and decodes the body into out. Every outcome is
// recorded in the endpoint's health tracker.
func (c *BackendClient) fetch(ctx context.Context, resource types.Resource, query map[string]string, required []string, out interface{}) error {
	tracker := c.health[resource]
	start := time.Now()

	body, err := c.get(ctx, resource, query)
	if err == nil {
		err = decodeBody(resource, body, required, out)
	}

	if err != nil {
		tracker.RecordFailure(err)
		c.logger.WithFields(map[string]interface{}{
			"resource": string(resource),
			"category": string(errors.Categorize(err).Category),
		}).WithError(err).Debug("Backend fetch failed")
		return err
	}

	tracker.RecordSuccess(time.Since(start))
	return nil
}

func (c *BackendClient) get(ctx context.Context, resource types.Resource, query map[string]string) ([]byte, error) {
	start := time.Now()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, classifyTransport(ctx, resource, err, time.Since(start))
		}
	}

	req := c.client.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Get(resource.Path())
	if err != nil {
		return nil, classifyTransport(ctx, resource, err, time.Since(start))
	}

	if !resp.IsSuccess() {
		body := resp.Body()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, errors.NewProtocolError(resource, resp.StatusCode(), string(bytes.TrimSpace(body)))
	}

	return resp.Body(), nil
}

// classifyTransport maps a request error to the transport category,
// distinguishing deadlines from cancellation
func classifyTransport(ctx context.Context, resource types.Resource, err error, elapsed time.Duration) error {
	var netErr net.Error
	switch {
	case stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(ctx.Err(), context.DeadlineExceeded):
		return errors.NewTimeoutError(resource, elapsed.Round(time.Millisecond))
	case stderrors.Is(err, context.Canceled) || stderrors.Is(ctx.Err(), context.Canceled):
		return errors.NewCanceledError(resource)
	case stderrors.As(err, &netErr) && netErr.Timeout():
		return errors.NewTimeoutError(resource, elapsed.Round(time.Millisecond))
	default:
		return errors.NewTransportError(resource, err)
	}
}

// decodeBody validates the envelope and required keys, then decodes body into out
func decodeBody(resource types.Resource, body []byte, required []string, out interface{}) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return errors.NewDecodeError(resource, fmt.Errorf("body is not a JSON object: %w", err))
	}

	if raw, ok := fields["error"]; ok && !isNull(raw) {
		var message string
		if err := json.Unmarshal(raw, &message); err != nil {
			message = string(raw)
		}
		return errors.NewBackendErrorBody(resource, message)
	}

	for _, key := range required {
		raw, ok := fields[key]
		if !ok || isNull(raw) {
			return errors.NewDecodeError(resource, fmt.Errorf("missing required key %q", key))
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewDecodeError(resource, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
