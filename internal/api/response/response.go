// Пакет response — единый конверт HTTP-ответов User Module.
// Все endpoints отвечают одним форматом:
// {"timestamp", "status", "statusCode", "message", "path", "data"};
// ответы с ошибкой дополнительно несут "errorCode" из фиксированной
// таксономии. Сырые детали ошибок провайдера в ответ не попадают.
package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeRoleNotFound        = "ROLE_NOT_FOUND"
	CodeIDPUnavailable      = "IDP_UNAVAILABLE"
	CodeIDPBadRequest       = "IDP_BAD_REQUEST"
	CodePartialCreate       = "PARTIAL_CREATE_FAILURE"
	CodePartialUpdate       = "PARTIAL_UPDATE_FAILURE"
	CodeInternalError       = "INTERNAL_ERROR"
)

// Envelope — конверт ответа.
type Envelope struct {
	// Timestamp — момент формирования ответа (RFC 3339, UTC).
	Timestamp string `json:"timestamp"`
	// Status — текст HTTP-статуса ("Created", "Not Found", ...).
	Status string `json:"status"`
	// StatusCode — числовой HTTP-статус.
	StatusCode int `json:"statusCode"`
	// Message — человекочитаемое описание результата.
	Message string `json:"message"`
	// Path — путь запроса.
	Path string `json:"path"`
	// Data — полезная нагрузка (nil для пустых ответов).
	Data any `json:"data,omitempty"`
	// ErrorCode — символический код из таксономии (только для ошибок).
	ErrorCode string `json:"errorCode,omitempty"`
}

// write сериализует конверт с указанным статусом.
func write(w http.ResponseWriter, r *http.Request, statusCode int, message, errorCode string, data any) {
	env := Envelope{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Status:     http.StatusText(statusCode),
		StatusCode: statusCode,
		Message:    message,
		Path:       r.URL.Path,
		Data:       data,
		ErrorCode:  errorCode,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(env)
}

// WriteData записывает успешный ответ с полезной нагрузкой.
func WriteData(w http.ResponseWriter, r *http.Request, statusCode int, message string, data any) {
	write(w, r, statusCode, message, "", data)
}

// WriteError записывает ответ ошибки с символическим кодом.
func WriteError(w http.ResponseWriter, r *http.Request, statusCode int, errorCode, message string) {
	write(w, r, statusCode, message, errorCode, nil)
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, message)
}

// Forbidden — 403 недостаточно прав.
func Forbidden(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusForbidden, CodeForbidden, message)
}

// AlreadyExists — 409 аккаунт уже зарегистрирован.
func AlreadyExists(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusConflict, CodeAlreadyExists, message)
}

// ConstraintViolation — 409 локальное хранилище отклонило запись.
func ConstraintViolation(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusConflict, CodeConstraintViolation, message)
}

// InvalidCredentials — 401 неверные учётные данные.
func InvalidCredentials(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusUnauthorized, CodeInvalidCredentials, message)
}

// RoleNotFound — 404 роль не найдена в realm/клиенте.
func RoleNotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusNotFound, CodeRoleNotFound, message)
}

// IDPUnavailable — 502 Identity Provider (Keycloak) недоступен.
func IDPUnavailable(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadGateway, CodeIDPUnavailable, message)
}

// IDPBadRequest — 400 Keycloak отклонил запрос.
func IDPBadRequest(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusBadRequest, CodeIDPBadRequest, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteError(w, r, http.StatusInternalServerError, CodeInternalError, message)
}
