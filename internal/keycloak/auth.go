// auth.go — аутентификационные операции: введение токена (introspection)
// и логин по паре username/password (Resource Owner Password grant).
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ValidateToken проверяет токен через introspection endpoint (RFC 7662).
// Любой сбой — сетевая ошибка, не-200, невалидный JSON — трактуется как
// «токен невалиден» (fail closed), а не как отдельная ошибка.
func (c *Client) ValidateToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}

	data := url.Values{
		"token":         {token},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.introspectEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("Introspection недоступен, токен считается невалидным",
			"error", err.Error(),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var result introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false
	}

	return result.Active
}

// Login выполняет Resource Owner Password grant и возвращает пару токенов.
// 400/401 от провайдера → ErrInvalidCredentials.
func (c *Client) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	data := url.Values{
		"grant_type":    {"password"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"username":      {username},
		"password":      {password},
	}

	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenEndpoint(), strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("Login: создание запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Login: %w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Продолжаем декодирование ниже
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return nil, ErrInvalidCredentials
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("Login: %w: статус %d", ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("Login: неожиданный статус %d", resp.StatusCode)
	}

	var pair TokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return nil, fmt.Errorf("Login: декодирование ответа: %w", err)
	}

	return &pair, nil
}

// IsUnavailable сообщает, вызвана ли ошибка недоступностью провайдера.
// Вспомогательный предикат для слоёв выше.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
