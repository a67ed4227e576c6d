// accounts.go — операции с аккаунтами пользователей в Keycloak.
// Создание, обновление, удаление и проверка существования аккаунта.
// Все мутации действуют на внешнее разделяемое состояние провайдера:
// локальной транзакции нет, каждый вызов сразу виден другим.
package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// CreateAccountParams — параметры создания аккаунта.
type CreateAccountParams struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// UpdateAccountParams — параметры обновления аккаунта.
// Нулевые значения означают «не менять». Пустой Password —
// «учётные данные не меняются», а не ошибка.
type UpdateAccountParams struct {
	Email     string
	FirstName string
	LastName  string
	Enabled   *bool
	Password  string
}

// isEmpty сообщает, что параметры не несут ни одного изменения.
func (p UpdateAccountParams) isEmpty() bool {
	return p.Email == "" && p.FirstName == "" && p.LastName == "" &&
		p.Enabled == nil && p.Password == ""
}

// AccountExists проверяет существование аккаунта по subject ID.
// Отсутствие аккаунта (404) — не ошибка, возвращается false.
func (c *Client) AccountExists(ctx context.Context, subjectID string) (bool, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/users/"+subjectID, nil)
	if err != nil {
		return false, fmt.Errorf("AccountExists: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("AccountExists: %w", classifyError(resp))
	}
}

// AccountExistsByUsername проверяет существование аккаунта по точному username.
func (c *Client) AccountExistsByUsername(ctx context.Context, username string) (bool, error) {
	path := "/users?exact=true&username=" + url.QueryEscape(username)
	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return false, fmt.Errorf("AccountExistsByUsername: %w", err)
	}

	var users []KeycloakUser
	if err := decodeResponse(resp, &users); err != nil {
		return false, fmt.Errorf("AccountExistsByUsername: %w", err)
	}

	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

// CreateAccount создаёт аккаунт в Keycloak и возвращает subject ID.
// Занятые username/email → ErrConflict; недоступность провайдера →
// ErrUnavailable; прочие 4xx → BadRequestError со статусом и сообщением.
func (c *Client) CreateAccount(ctx context.Context, params CreateAccountParams) (string, error) {
	createReq := userCreateRequest{
		Username:      params.Username,
		Email:         params.Email,
		FirstName:     params.FirstName,
		LastName:      params.LastName,
		Enabled:       true,
		EmailVerified: false,
	}
	if params.Password != "" {
		createReq.Credentials = []credentialRepresentation{{
			Type:      "password",
			Value:     params.Password,
			Temporary: false,
		}}
	}

	resp, err := c.doAuthorized(ctx, http.MethodPost, "/users", createReq)
	if err != nil {
		return "", fmt.Errorf("CreateAccount: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		defer resp.Body.Close()
		return "", fmt.Errorf("CreateAccount: %w", classifyError(resp))
	}
	resp.Body.Close()

	// Keycloak возвращает Location header с ID созданного ресурса
	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("CreateAccount: отсутствует Location header в ответе")
	}

	// Извлекаем ID из Location: .../users/{id}
	parts := strings.Split(location, "/")
	subjectID := parts[len(parts)-1]
	if subjectID == "" {
		return "", fmt.Errorf("CreateAccount: не удалось извлечь ID из Location: %s", location)
	}

	return subjectID, nil
}

// UpdateAccount обновляет аккаунт в Keycloak.
// Возвращает false без ошибки, если параметры не несут изменений —
// «нечего менять» не считается сбоем. Пустой пароль пропускает
// смену учётных данных; непустой применяется отдельным запросом
// reset-password после обновления представления.
func (c *Client) UpdateAccount(ctx context.Context, subjectID string, params UpdateAccountParams) (bool, error) {
	if params.isEmpty() {
		return false, nil
	}

	updateReq := userUpdateRequest{
		Email:     params.Email,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Enabled:   params.Enabled,
	}

	resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+subjectID, updateReq)
	if err != nil {
		return false, fmt.Errorf("UpdateAccount: %w", err)
	}
	if err := checkResponse(resp, http.StatusNoContent); err != nil {
		return false, fmt.Errorf("UpdateAccount: %w", err)
	}

	if params.Password != "" {
		cred := credentialRepresentation{
			Type:      "password",
			Value:     params.Password,
			Temporary: false,
		}
		resp, err := c.doAuthorized(ctx, http.MethodPut, "/users/"+subjectID+"/reset-password", cred)
		if err != nil {
			return false, fmt.Errorf("UpdateAccount: смена пароля: %w", err)
		}
		if err := checkResponse(resp, http.StatusNoContent); err != nil {
			return false, fmt.Errorf("UpdateAccount: смена пароля: %w", err)
		}
	}

	return true, nil
}

// DeleteAccount удаляет аккаунт в Keycloak.
// Идемпотентен: отсутствующий аккаунт (404) — не ошибка.
func (c *Client) DeleteAccount(ctx context.Context, subjectID string) error {
	resp, err := c.doAuthorized(ctx, http.MethodDelete, "/users/"+subjectID, nil)
	if err != nil {
		return fmt.Errorf("DeleteAccount: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("DeleteAccount: %w", classifyError(resp))
	}
}
