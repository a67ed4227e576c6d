// roles.go — обработчики /api/v1/admin endpoints управления ролями.
// Все endpoints требуют realm-роль администратора (проверяется в router).
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mgnetworking/nutritrack/user-module/internal/api/response"
	"github.com/mgnetworking/nutritrack/user-module/internal/keycloak"
)

// roleItem — представление роли в ответах API.
type roleItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ClientRole  bool   `json:"clientRole"`
}

// roleListResponse — ответ со списком ролей.
type roleListResponse struct {
	Items []roleItem `json:"items"`
	Total int        `json:"total"`
}

// roleMutationRequest — тело запроса назначения/отзыва ролей.
type roleMutationRequest struct {
	Roles []string `json:"roles"`
	// Client — clientId для client-ролей. Пустое значение —
	// клиент приложения по умолчанию.
	Client string `json:"client,omitempty"`
}

func mapRoles(roles []keycloak.Role) roleListResponse {
	items := make([]roleItem, len(roles))
	for i, role := range roles {
		items[i] = roleItem{
			ID:          role.ID,
			Name:        role.Name,
			Description: role.Description,
			ClientRole:  role.ClientRole,
		}
	}
	return roleListResponse{Items: items, Total: len(items)}
}

// ListRealmRoles — GET /api/v1/admin/roles/realm.
func (h *APIHandler) ListRealmRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.roles.ListRealmRoles(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "список realm-ролей", err)
		return
	}
	response.WriteData(w, r, http.StatusOK, "Realm-роли", mapRoles(roles))
}

// ListClientRoles — GET /api/v1/admin/roles/client?client={clientId}.
// Без параметра client используется клиент приложения по умолчанию.
func (h *APIHandler) ListClientRoles(w http.ResponseWriter, r *http.Request) {
	clientName := r.URL.Query().Get("client")
	if clientName == "" {
		clientName = h.appClient
	}

	roles, err := h.roles.ListClientRoles(r.Context(), clientName)
	if err != nil {
		h.writeServiceError(w, r, "список client-ролей", err)
		return
	}
	response.WriteData(w, r, http.StatusOK, "Client-роли", mapRoles(roles))
}

// decodeRoleMutation читает и валидирует тело запроса мутации ролей.
func decodeRoleMutation(w http.ResponseWriter, r *http.Request) (*roleMutationRequest, bool) {
	var req roleMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ValidationError(w, r, "Некорректный JSON: "+err.Error())
		return nil, false
	}
	if len(req.Roles) == 0 {
		response.ValidationError(w, r, "Список ролей пуст")
		return nil, false
	}
	return &req, true
}

// AssignRealmRoles — POST /api/v1/admin/users/{userId}/roles/realm.
func (h *APIHandler) AssignRealmRoles(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userId")

	req, ok := decodeRoleMutation(w, r)
	if !ok {
		return
	}

	if err := h.roles.AssignRealmRoles(r.Context(), subjectID, req.Roles); err != nil {
		h.writeServiceError(w, r, "назначение realm-ролей", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeRealmRoles — DELETE /api/v1/admin/users/{userId}/roles/realm.
func (h *APIHandler) RevokeRealmRoles(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userId")

	req, ok := decodeRoleMutation(w, r)
	if !ok {
		return
	}

	if err := h.roles.RevokeRealmRoles(r.Context(), subjectID, req.Roles); err != nil {
		h.writeServiceError(w, r, "отзыв realm-ролей", err)
		return
	}

	response.WriteData(w, r, http.StatusOK, "Realm-роли отозваны", nil)
}

// AssignClientRoles — POST /api/v1/admin/users/{userId}/roles/client.
func (h *APIHandler) AssignClientRoles(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userId")

	req, ok := decodeRoleMutation(w, r)
	if !ok {
		return
	}
	clientName := req.Client
	if clientName == "" {
		clientName = h.appClient
	}

	if err := h.roles.AssignClientRoles(r.Context(), subjectID, clientName, req.Roles); err != nil {
		h.writeServiceError(w, r, "назначение client-ролей", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RevokeClientRoles — DELETE /api/v1/admin/users/{userId}/roles/client.
func (h *APIHandler) RevokeClientRoles(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userId")

	req, ok := decodeRoleMutation(w, r)
	if !ok {
		return
	}
	clientName := req.Client
	if clientName == "" {
		clientName = h.appClient
	}

	if err := h.roles.RevokeClientRoles(r.Context(), subjectID, clientName, req.Roles); err != nil {
		h.writeServiceError(w, r, "отзыв client-ролей", err)
		return
	}

	response.WriteData(w, r, http.StatusOK, "Client-роли отозваны", nil)
}
