// client.go — HTTP-клиент к Keycloak Admin REST API.
// Реализует автоматическое получение service account token через Client Credentials flow,
// кэширование токена (обновление за 30s до expiration) и классификацию ошибок
// провайдера в таксономию errors.go.
// Каждый запрос к Keycloak выполняется с явным дедлайном (requestTimeout),
// чтобы медленный, но отвечающий провайдер не подвешивал обработку запроса.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// defaultRequestTimeout — дедлайн запроса к Keycloak по умолчанию.
const defaultRequestTimeout = 10 * time.Second

// clientIDCacheSize — размер LRU-кэша clientId → internal ID.
// Клиентов, с ролями которых работает user-module, единицы.
const clientIDCacheSize = 16

// Client — HTTP-клиент к Keycloak Admin REST API.
// Создаётся один раз при старте процесса и переиспользуется всеми
// запросами; изменяемое состояние — только кэш токена за мьютексом
// и LRU-кэш internal ID клиентов.
type Client struct {
	baseURL      string // Базовый URL Keycloak (без trailing slash)
	realm        string // Имя realm
	clientID     string // Client ID для Client Credentials flow (admin-клиент)
	clientSecret string // Client Secret

	httpClient     *http.Client
	requestTimeout time.Duration
	logger         *slog.Logger

	// Кэш токена доступа
	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	// Кэш clientId → Keycloak internal ID (для клиентских ролей).
	// Живёт в памяти процесса, не персистится.
	clientIDCache *expirable.LRU[string, string]
}

// New создаёт клиент к Keycloak Admin REST API.
// baseURL — базовый URL Keycloak (например, https://keycloak.nutritrack.lan).
// realm — имя realm (например, nutritrack).
// clientID, clientSecret — credentials admin-клиента для Client Credentials flow.
// requestTimeout — дедлайн каждого запроса к Keycloak (0 — значение по умолчанию).
// httpClient — HTTP-клиент (может содержать TLS конфигурацию).
func New(baseURL, realm, clientID, clientSecret string, requestTimeout time.Duration, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if requestTimeout <= 0 {
		requestTimeout = defaultRequestTimeout
	}

	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		realm:          realm,
		clientID:       clientID,
		clientSecret:   clientSecret,
		httpClient:     httpClient,
		requestTimeout: requestTimeout,
		logger:         logger.With(slog.String("component", "keycloak_client")),
		clientIDCache:  expirable.NewLRU[string, string](clientIDCacheSize, nil, time.Hour),
	}
}

// --- Аутентификация ---

// tokenEndpoint возвращает URL endpoint'а получения токена.
func (c *Client) tokenEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", c.baseURL, c.realm)
}

// introspectEndpoint возвращает URL token introspection endpoint.
func (c *Client) introspectEndpoint() string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token/introspect", c.baseURL, c.realm)
}

// adminBaseURL возвращает базовый URL Admin REST API для realm.
func (c *Client) adminBaseURL() string {
	return fmt.Sprintf("%s/admin/realms/%s", c.baseURL, c.realm)
}

// getToken возвращает актуальный access token, обновляя при необходимости.
// Токен обновляется за 30 секунд до истечения.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Проверяем кэш: если токен валиден ещё 30 секунд — используем его
	if c.accessToken != "" && time.Now().Add(30*time.Second).Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	// Запрашиваем новый токен через Client Credentials flow
	token, err := c.requestToken(ctx)
	if err != nil {
		return "", err
	}

	c.accessToken = token.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	c.logger.Debug("Keycloak токен обновлён",
		slog.Time("expires_at", c.tokenExpiry),
	)

	return c.accessToken, nil
}

// requestToken выполняет Client Credentials flow.
func (c *Client) requestToken(ctx context.Context) (*TokenResponse, error) {
	data := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	token, err := c.postTokenForm(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("запрос service account токена: %w", err)
	}
	return token, nil
}

// postTokenForm выполняет form-запрос к token endpoint и декодирует ответ.
// Используется и для client_credentials, и для password grant.
func (c *Client) postTokenForm(ctx context.Context, data url.Values) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("создание запроса токена: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: статус %d", ErrUnavailable, resp.StatusCode)
		}
		return nil, &BadRequestError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("декодирование токена Keycloak: %w", err)
	}

	return &token, nil
}

// --- HTTP helpers ---

// doAuthorized выполняет HTTP-запрос к Admin REST API с авторизацией
// и явным дедлайном requestTimeout.
// Сетевые ошибки транспорта оборачиваются в ErrUnavailable.
func (c *Client) doAuthorized(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := c.getToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение токена: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	reqURL := c.adminBaseURL() + path
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// classifyError читает тело ответа и отображает не-2xx статус в таксономию:
// 5xx → ErrUnavailable, 409 → ErrConflict, остальные 4xx → BadRequestError.
// Статусы, требующие особой обработки (404 при exists/delete), вызывающий
// проверяет до classifyError.
func classifyError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	msg := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: статус %d: %s", ErrUnavailable, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrConflict, msg)
	default:
		return &BadRequestError{Status: resp.StatusCode, Message: msg}
	}
}

// decodeResponse декодирует JSON ответ в target.
// Не-2xx статусы классифицируются через classifyError.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyError(resp)
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа Keycloak: %w", err)
		}
	}

	return nil
}

// checkResponse проверяет статус ответа (для запросов без тела ответа).
func checkResponse(resp *http.Response, expectedStatus int) error {
	defer resp.Body.Close()

	if resp.StatusCode != expectedStatus {
		return classifyError(resp)
	}

	return nil
}

// --- Realm API ---

// RealmInfo возвращает информацию о realm.
func (c *Client) RealmInfo(ctx context.Context) (*RealmRepresentation, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}

	var realm RealmRepresentation
	if err := decodeResponse(resp, &realm); err != nil {
		return nil, fmt.Errorf("RealmInfo: %w", err)
	}

	return &realm, nil
}

// --- Readiness checker ---

// ReadinessChecker — проверка готовности Keycloak через realm info.
// Реализует handlers.ReadinessChecker.
type ReadinessChecker struct {
	client  *Client
	timeout time.Duration
}

// NewReadinessChecker создаёт проверку готовности Keycloak поверх клиента.
// timeout — дедлайн одной проверки (0 — 5s).
func NewReadinessChecker(c *Client, timeout time.Duration) *ReadinessChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ReadinessChecker{client: c, timeout: timeout}
}

// CheckReady запрашивает realm info и возвращает статус с сообщением.
// Недоступный провайдер — fail, отключённый realm — degraded.
func (r *ReadinessChecker) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	realm, err := r.client.RealmInfo(ctx)
	if err != nil {
		return "fail", fmt.Sprintf("Keycloak недоступен: %v", err)
	}

	if !realm.Enabled {
		return "degraded", fmt.Sprintf("Realm %s отключён", realm.Realm)
	}

	return "ok", fmt.Sprintf("Realm %s доступен", realm.Realm)
}
