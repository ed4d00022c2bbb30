package telegram

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

	"golang.org/x/time/rate"
)

const (
	defaultAPIBase = "https://api.telegram.org"

	// getUpdates admite ~30 req/s por bot; long-poll hace que en la práctica sea 1 cada pocos segundos.
	defaultRatePerSec  = 5
	defaultPollTimeout = 30 * time.Second

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// ErrUnauthorized indica un token inválido: no tiene sentido reintentar.
var ErrUnauthorized = errors.New("telegram: unauthorized")

// ClientConfig configura el cliente de la Bot API.
type ClientConfig struct {
	Token       string
	APIBase     string        // "" → api.telegram.org
	PollTimeout time.Duration // timeout del long-poll, enviado a la API
	RatePerSec  float64
}

// Client es el HTTP client de la Bot API con rate limiting y retries.
type Client struct {
	http        *http.Client
	base        string
	pollTimeout time.Duration
	limiter     *rate.Limiter
}

// NewClient crea un Client. El timeout HTTP es el del long-poll más margen.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram.NewClient: bot token is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	return &Client{
		http:        &http.Client{Timeout: cfg.PollTimeout + 5*time.Second},
		base:        cfg.APIBase + "/bot" + cfg.Token + "/",
		pollTimeout: cfg.PollTimeout,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
	}, nil
}

// GetUpdates hace long-poll de updates a partir de offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(offset, 10))
	q.Set("timeout", strconv.Itoa(int(c.pollTimeout.Seconds())))
	q.Set("allowed_updates", `["message","channel_post"]`)

	body, err := c.get(ctx, "getUpdates", q)
	if err != nil {
		return nil, fmt.Errorf("telegram.GetUpdates: %w", err)
	}
	env, err := decodeEnvelope[[]Update](body)
	if err != nil {
		return nil, fmt.Errorf("telegram.GetUpdates: %w", err)
	}
	if !env.OK {
		return nil, fmt.Errorf("telegram.GetUpdates: api error %d: %s", env.ErrorCode, env.Description)
	}
	return env.Result, nil
}

// get hace un GET al método con rate limiting y retries y devuelve el body.
func (c *Client) get(ctx context.Context, method string, q url.Values) ([]byte, error) {
	endpoint := c.base + method + "?" + q.Encode()
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	})
}

func decodeEnvelope[T any](body []byte) (apiResponse[T], error) {
	var env apiResponse[T]
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode response: %w", err)
	}
	return env, nil
}

// doWithRetry ejecuta la función con backoff exponencial; en 429 respeta retry_after.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error)) ([]byte, error) {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if attempt == maxRetries {
				return nil, fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt, 0)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusNotFound:
			return nil, ErrUnauthorized

		case resp.StatusCode == http.StatusTooManyRequests:
			var retryAfter time.Duration
			if env, err := decodeEnvelope[json.RawMessage](body); err == nil && env.Parameters != nil {
				retryAfter = time.Duration(env.Parameters.RetryAfter) * time.Second
			}
			slog.Warn("rate limited by telegram", "attempt", attempt+1, "retry_after", retryAfter)
			c.sleep(ctx, attempt, retryAfter)
			continue

		case resp.StatusCode >= 500:
			if attempt == maxRetries {
				return nil, fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt, 0)
			continue

		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		if readErr != nil {
			return nil, fmt.Errorf("read body: %w", readErr)
		}
		return body, nil
	}
	return nil, fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep espera con backoff exponencial (o el mínimo que pida la API), respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int, atLeast time.Duration) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	wait = max(wait, atLeast)
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
