// auth.go — обработчик /api/v1/auth endpoints.
// Логин по username/password через Resource Owner Password grant.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mgnetworking/nutritrack/user-module/internal/api/response"
)

// loginRequest — тело запроса логина.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login — POST /api/v1/auth/login. Публичный endpoint.
// Возвращает пару токенов Keycloak или 401 при неверных учётных данных.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ValidationError(w, r, "Некорректный JSON: "+err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		response.ValidationError(w, r, "username и password обязательны")
		return
	}

	tokens, err := h.provisioning.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeServiceError(w, r, "логин", err)
		return
	}

	response.WriteData(w, r, http.StatusOK, "Аутентификация успешна", mapTokens(tokens))
}
