package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"paradexbot/pkg/ratelimit"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Лимиты Paradex на приватные REST запросы
const (
	restRateLimit = 10.0 // запросов в секунду
	restRateBurst = 20.0
)

// Client - REST клиент приватного API Paradex, реализует TradingAPI
type Client struct {
	baseURL    string
	httpClient *http.Client
	auth       *Authenticator
	limiter    *ratelimit.RateLimiter
	log        *zap.Logger
}

// NewClient создаёт REST клиент поверх общего HTTP пула
func NewClient(baseURL string, auth *Authenticator, log *zap.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: GetGlobalHTTPClient(),
		auth:       auth,
		limiter:    ratelimit.NewRateLimiter(restRateLimit, restRateBurst),
		log:        log,
	}
}

// FetchAccountSummary возвращает сводку счёта со свободным залогом
func (c *Client) FetchAccountSummary(ctx context.Context) (*AccountSummary, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/account", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch account summary: %w", err)
	}

	var summary AccountSummary
	if err := json.Unmarshal(body, &summary); err != nil {
		return nil, fmt.Errorf("decode account summary: %w", err)
	}
	return &summary, nil
}

// FetchPositions возвращает все позиции счёта (фильтрация по рынку на вызывающей стороне)
func (c *Client) FetchPositions(ctx context.Context) ([]Position, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch positions: %w", err)
	}

	var envelope struct {
		Results []Position `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return envelope.Results, nil
}

// SubmitOrderBatch отправляет обе ноги одним атомарным запросом
func (c *Client) SubmitOrderBatch(ctx context.Context, orders []Order) error {
	payload, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("encode order batch: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, "/orders/batch", payload); err != nil {
		return fmt.Errorf("submit order batch: %w", err)
	}
	return nil
}

// doRequest выполняет авторизованный запрос с rate limiting.
// На 401 токен сбрасывается и запрос повторяется один раз со свежим JWT.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body []byte) ([]byte, error) {
	respBody, status, err := c.doOnce(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.auth.Invalidate()
		c.log.Warn("истёкший JWT, запрос повторяется", zap.String("endpoint", endpoint))
		respBody, status, err = c.doOnce(ctx, method, endpoint, body)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status >= 300 {
		apiErr := &APIError{Code: status}
		var parsed struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if jsonErr := json.Unmarshal(respBody, &parsed); jsonErr == nil {
			apiErr.Message = parsed.Message
			if apiErr.Message == "" {
				apiErr.Message = parsed.Error
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = fmt.Sprintf("http status %d", status)
		}
		return nil, apiErr
	}

	return respBody, nil
}

func (c *Client) doOnce(ctx context.Context, method, endpoint string, body []byte) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	token, err := c.auth.Token(ctx)
	if err != nil {
		return nil, 0, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return respBody, resp.StatusCode, nil
}
