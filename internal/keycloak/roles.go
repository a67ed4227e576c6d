// roles.go — операции с ролями Keycloak: realm-роли и клиентские роли.
// Имена ролей резолвятся в представления провайдера перед назначением;
// неизвестное имя → ErrRoleNotFound. Клиентские роли требуют internal ID
// клиента — он резолвится по clientId и кэшируется в LRU.
package keycloak

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListRealmRoles возвращает все realm-роли.
func (c *Client) ListRealmRoles(ctx context.Context) ([]Role, error) {
	resp, err := c.doAuthorized(ctx, http.MethodGet, "/roles", nil)
	if err != nil {
		return nil, fmt.Errorf("ListRealmRoles: %w", err)
	}

	var roles []Role
	if err := decodeResponse(resp, &roles); err != nil {
		return nil, fmt.Errorf("ListRealmRoles: %w", err)
	}

	return roles, nil
}

// ListClientRoles возвращает роли клиента по его clientId.
// Нерезолвящийся клиент → BadRequestError.
func (c *Client) ListClientRoles(ctx context.Context, clientName string) ([]Role, error) {
	internalID, err := c.resolveClientID(ctx, clientName)
	if err != nil {
		return nil, fmt.Errorf("ListClientRoles: %w", err)
	}

	resp, err := c.doAuthorized(ctx, http.MethodGet, "/clients/"+internalID+"/roles", nil)
	if err != nil {
		return nil, fmt.Errorf("ListClientRoles: %w", err)
	}

	var roles []Role
	if err := decodeResponse(resp, &roles); err != nil {
		return nil, fmt.Errorf("ListClientRoles: %w", err)
	}

	return roles, nil
}

// AssignRealmRoles назначает пользователю realm-роли по именам.
func (c *Client) AssignRealmRoles(ctx context.Context, subjectID string, roleNames []string) error {
	return c.mutateRealmRoles(ctx, http.MethodPost, subjectID, roleNames)
}

// RevokeRealmRoles снимает с пользователя realm-роли по именам.
func (c *Client) RevokeRealmRoles(ctx context.Context, subjectID string, roleNames []string) error {
	return c.mutateRealmRoles(ctx, http.MethodDelete, subjectID, roleNames)
}

// AssignClientRoles назначает пользователю роли клиента по именам.
func (c *Client) AssignClientRoles(ctx context.Context, subjectID, clientName string, roleNames []string) error {
	return c.mutateClientRoles(ctx, http.MethodPost, subjectID, clientName, roleNames)
}

// RevokeClientRoles снимает с пользователя роли клиента по именам.
func (c *Client) RevokeClientRoles(ctx context.Context, subjectID, clientName string, roleNames []string) error {
	return c.mutateClientRoles(ctx, http.MethodDelete, subjectID, clientName, roleNames)
}

// mutateRealmRoles — общий путь назначения/снятия realm-ролей.
func (c *Client) mutateRealmRoles(ctx context.Context, method, subjectID string, roleNames []string) error {
	all, err := c.ListRealmRoles(ctx)
	if err != nil {
		return err
	}

	roles, err := resolveRoles(all, roleNames)
	if err != nil {
		return err
	}

	path := "/users/" + subjectID + "/role-mappings/realm"
	resp, err := c.doAuthorized(ctx, method, path, roles)
	if err != nil {
		return fmt.Errorf("мутация realm-ролей: %w", err)
	}

	return checkResponse(resp, http.StatusNoContent)
}

// mutateClientRoles — общий путь назначения/снятия клиентских ролей.
// В role-mappings подставляется internal ID клиента, не его clientId
// и не ID пользователя.
func (c *Client) mutateClientRoles(ctx context.Context, method, subjectID, clientName string, roleNames []string) error {
	internalID, err := c.resolveClientID(ctx, clientName)
	if err != nil {
		return err
	}

	all, err := c.ListClientRoles(ctx, clientName)
	if err != nil {
		return err
	}

	roles, err := resolveRoles(all, roleNames)
	if err != nil {
		return err
	}

	path := "/users/" + subjectID + "/role-mappings/clients/" + internalID
	resp, err := c.doAuthorized(ctx, method, path, roles)
	if err != nil {
		return fmt.Errorf("мутация клиентских ролей: %w", err)
	}

	return checkResponse(resp, http.StatusNoContent)
}

// resolveRoles отображает имена ролей в представления Keycloak.
// Любое неизвестное имя прерывает операцию до вызова провайдера.
func resolveRoles(all []Role, names []string) ([]Role, error) {
	byName := make(map[string]Role, len(all))
	for _, r := range all {
		byName[r.Name] = r
	}

	roles := make([]Role, 0, len(names))
	for _, name := range names {
		role, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

// resolveClientID резолвит clientId в Keycloak internal ID с кэшированием.
func (c *Client) resolveClientID(ctx context.Context, clientName string) (string, error) {
	if id, ok := c.clientIDCache.Get(clientName); ok {
		return id, nil
	}

	path := "/clients?clientId=" + url.QueryEscape(clientName)
	resp, err := c.doAuthorized(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", fmt.Errorf("резолв клиента %s: %w", clientName, err)
	}

	var clients []KeycloakClient
	if err := decodeResponse(resp, &clients); err != nil {
		return "", fmt.Errorf("резолв клиента %s: %w", clientName, err)
	}

	for _, cl := range clients {
		if cl.ClientID == clientName {
			c.clientIDCache.Add(clientName, cl.ID)
			return cl.ID, nil
		}
	}

	return "", &BadRequestError{
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("клиент %q не найден в realm %s", clientName, c.realm),
	}
}
