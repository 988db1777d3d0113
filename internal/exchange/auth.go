package exchange

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"paradexbot/pkg/retry"
)

// Срок действия подписи запроса аутентификации
const authSignatureTTL = 5 * time.Minute

// AuthConfig - параметры аутентификации на Paradex
type AuthConfig struct {
	BaseURL    string
	L1Address  string
	PrivateKey string // l2 ключ, при его отсутствии l1

	// TokenTTL - время жизни JWT до упреждающего обновления
	TokenTTL time.Duration
}

// Authenticator получает и кэширует JWT для REST и WS запросов.
// Токен обновляется упреждающе по TTL, поэтому параллельные вызовы
// Token почти всегда отдают кэш без сетевого похода.
type Authenticator struct {
	cfg        AuthConfig
	httpClient *http.Client
	log        *zap.Logger

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAuthenticator создаёт аутентификатор; токен запрашивается лениво
func NewAuthenticator(cfg AuthConfig, httpClient *http.Client, log *zap.Logger) *Authenticator {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 25 * time.Minute
	}
	if httpClient == nil {
		httpClient = GetGlobalHTTPClient()
	}
	return &Authenticator{
		cfg:        cfg,
		httpClient: httpClient,
		log:        log,
	}
}

// Token возвращает действующий JWT, при необходимости обновляя его
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != "" && time.Now().Before(a.expiresAt) {
		return a.token, nil
	}

	token, err := a.fetchToken(ctx)
	if err != nil {
		return "", fmt.Errorf("auth token: %w", err)
	}

	a.token = token
	a.expiresAt = time.Now().Add(a.cfg.TokenTTL)
	a.log.Info("JWT обновлён", zap.Time("expires_at", a.expiresAt))
	return a.token, nil
}

// Invalidate сбрасывает кэшированный токен.
// Вызывается после ответа 401: следующий Token пойдёт за свежим JWT.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	a.token = ""
	a.expiresAt = time.Time{}
	a.mu.Unlock()
}

type authResponse struct {
	JWTToken string `json:"jwt_token"`
}

// fetchToken выполняет POST /auth с подписанными заголовками.
// Сетевые сбои повторяются с backoff, ответ 4xx - нет.
func (a *Authenticator) fetchToken(ctx context.Context) (string, error) {
	cfg := retry.NetworkConfig()
	cfg.RetryIf = func(err error) bool {
		return retry.RetryIfNotContext(err) && !retry.IsPermanent(err)
	}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		a.log.Warn("повтор запроса JWT",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	return retry.DoWithResult(ctx, func() (string, error) {
		return a.requestToken(ctx)
	}, cfg)
}

func (a *Authenticator) requestToken(ctx context.Context) (string, error) {
	now := time.Now()
	timestamp := strconv.FormatInt(now.Unix(), 10)
	expiration := strconv.FormatInt(now.Add(authSignatureTTL).Unix(), 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/auth", nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("PARADEX-STARKNET-ACCOUNT", a.cfg.L1Address)
	req.Header.Set("PARADEX-TIMESTAMP", timestamp)
	req.Header.Set("PARADEX-SIGNATURE-EXPIRATION", expiration)
	req.Header.Set("PARADEX-STARKNET-SIGNATURE", a.signAuthRequest(timestamp, expiration))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Code: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return "", retry.Permanent(apiErr)
		}
		return "", apiErr
	}

	var parsed authResponse
	if err := jsoniter.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if parsed.JWTToken == "" {
		return "", retry.Permanent(fmt.Errorf("auth response without jwt_token"))
	}
	return parsed.JWTToken, nil
}

// signAuthRequest подписывает запрос аутентификации.
// Дайджест сообщения: keccak256(timestamp:expiration:account),
// подпись: keccak256(digest || private key) в hex.
func (a *Authenticator) signAuthRequest(timestamp, expiration string) string {
	message := timestamp + ":" + expiration + ":" + a.cfg.L1Address

	digest := sha3.NewLegacyKeccak256()
	digest.Write([]byte(message))

	mac := sha3.NewLegacyKeccak256()
	mac.Write(digest.Sum(nil))
	mac.Write([]byte(a.cfg.PrivateKey))

	return "0x" + hex.EncodeToString(mac.Sum(nil))
}
