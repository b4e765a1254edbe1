package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"adrotator/internal/domain"
	"adrotator/pkg/config"
	"adrotator/pkg/logger"
	"adrotator/pkg/metrics"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

const (
	apiInventory   = "inventory"
	apiClicks      = "report_click"
	apiImpressions = "report_impression"
)

// implements domain.InventoryClient against a PostgREST-style backend
type HTTPClient struct {
	client      *http.Client
	baseURL     string
	apiKey      string
	adType      string
	logger      *logger.Logger
	metrics     *metrics.Metrics
	rateLimiter *rate.Limiter

	reportTries    uint
	reportInterval time.Duration

	// reports outlive the call that queued them, until Close
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closed  bool
	reports sync.WaitGroup
}

// creates a new inventory client
func NewHTTPClient(cfg config.InventoryConfig, logger *logger.Logger, metrics *metrics.Metrics) *HTTPClient {
	ctx, cancel := context.WithCancel(context.Background())

	return &HTTPClient{
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		adType:         cfg.AdType,
		logger:         logger,
		metrics:        metrics,
		rateLimiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSecond), cfg.RateLimitPerSecond),
		reportTries:    uint(cfg.ReportRetries),
		reportInterval: 500 * time.Millisecond,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// FetchEligibleAds returns the active ads of the configured type. Records that
// do not decode are skipped; a body that is not a JSON array is malformed.
func (c *HTTPClient) FetchEligibleAds(ctx context.Context) ([]domain.AdRecord, error) {
	start := time.Now()

	if err := c.rateLimiter.Wait(ctx); err != nil {
		c.metrics.RecordExternalAPIFailure(apiInventory, "rate_limit")
		return nil, domain.NetworkError(fmt.Errorf("rate limit wait: %w", err))
	}

	query := url.Values{}
	query.Set("status", "eq."+string(domain.StatusActive))
	if c.adType != "" {
		query.Set("type", "eq."+c.adType)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ads?"+query.Encode(), nil)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(apiInventory, "request_creation")
		return nil, domain.NetworkError(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(apiInventory, "network_error")
		return nil, domain.NetworkError(err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordExternalAPICall(apiInventory, fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return nil, domain.ServerError(resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(apiInventory, "read_body")
		return nil, domain.NetworkError(fmt.Errorf("failed to read response body: %w", err))
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		c.metrics.RecordExternalAPIFailure(apiInventory, "json_parse")
		return nil, domain.MalformedError(err)
	}

	records := make([]domain.AdRecord, 0, len(raw))
	for i, item := range raw {
		var record domain.AdRecord
		if err := json.Unmarshal(item, &record); err != nil {
			c.metrics.RecordExternalAPIFailure(apiInventory, "record_decode")
			c.logger.WithContext(ctx).WithError(err).WithField("index", i).Warn("Skipping undecodable ad record")
			continue
		}
		records = append(records, record)
	}

	c.metrics.RecordExternalAPICall(apiInventory, "success", duration)

	c.logger.WithContext(ctx).WithFields(map[string]any{
		"ad_type":  c.adType,
		"duration": duration,
		"records":  len(records),
	}).Debug("Fetched ad inventory")

	return records, nil
}

func (c *HTTPClient) ReportClick(adID string) {
	c.report(apiClicks, "increment_ad_clicks", adID)
}

func (c *HTTPClient) ReportImpression(adID string) {
	c.report(apiImpressions, "increment_ad_impressions", adID)
}

// Close cancels outstanding reports and waits for them to return
func (c *HTTPClient) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.reports.Wait()
}

// report posts to an RPC endpoint in the background with bounded retries
func (c *HTTPClient) report(api, rpc, adID string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reports.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.reports.Done()

		boff := backoff.NewExponentialBackOff()
		boff.InitialInterval = c.reportInterval
		boff.MaxInterval = 10 * c.reportInterval

		attempts := 0
		_, err := backoff.Retry(c.ctx, func() (struct{}, error) {
			attempts++
			return struct{}{}, c.postRPC(api, rpc, adID)
		}, backoff.WithBackOff(boff), backoff.WithMaxTries(c.reportTries))

		if err != nil {
			c.logger.WithContext(c.ctx).WithError(err).WithFields(map[string]any{
				"rpc":      rpc,
				"ad_id":    adID,
				"attempts": attempts,
			}).Warn("Failed to report ad event")
		}
	}()
}

func (c *HTTPClient) postRPC(api, rpc, adID string) error {
	start := time.Now()

	if err := c.rateLimiter.Wait(c.ctx); err != nil {
		c.metrics.RecordExternalAPIFailure(api, "rate_limit")
		return backoff.Permanent(fmt.Errorf("rate limit wait: %w", err))
	}

	payload, err := json.Marshal(map[string]string{"ad_id": adID})
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to marshal report: %w", err))
	}

	req, err := http.NewRequestWithContext(c.ctx, http.MethodPost, c.baseURL+"/rpc/"+rpc, bytes.NewReader(payload))
	if err != nil {
		c.metrics.RecordExternalAPIFailure(api, "request_creation")
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		c.metrics.RecordExternalAPIFailure(api, "network_error")
		if errors.Is(err, context.Canceled) {
			return backoff.Permanent(err)
		}
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	duration := time.Since(start)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.metrics.RecordExternalAPICall(api, "success", duration)
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		c.metrics.RecordExternalAPICall(api, fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return fmt.Errorf("%s returned status %d", rpc, resp.StatusCode)
	default:
		c.metrics.RecordExternalAPICall(api, fmt.Sprintf("error_%d", resp.StatusCode), duration)
		return backoff.Permanent(fmt.Errorf("%s returned status %d", rpc, resp.StatusCode))
	}
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.apiKey == "" {
		return
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}
