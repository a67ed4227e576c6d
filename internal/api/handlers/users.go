// users.go — обработчики /api/v1/users endpoints.
// Регистрация, получение, обновление и удаление пользователей.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/mgnetworking/nutritrack/user-module/internal/api/response"
	"github.com/mgnetworking/nutritrack/user-module/internal/domain/model"
	"github.com/mgnetworking/nutritrack/user-module/internal/keycloak"
	"github.com/mgnetworking/nutritrack/user-module/internal/service"
)

// registerRequest — тело запроса регистрации пользователя.
type registerRequest struct {
	Username           string               `json:"username"`
	Email              openapi_types.Email  `json:"email"`
	Password           string               `json:"password"`
	FirstName          string               `json:"firstName,omitempty"`
	LastName           string               `json:"lastName,omitempty"`
	BirthDate          *openapi_types.Date  `json:"birthDate,omitempty"`
	Gender             string               `json:"gender,omitempty"`
	HeightCm           int                  `json:"heightCm,omitempty"`
	WeightKg           int                  `json:"weightKg,omitempty"`
	ActivityLevel      string               `json:"activityLevel,omitempty"`
	Goal               string               `json:"goal,omitempty"`
	Allergies          []string             `json:"allergies,omitempty"`
	DietaryPreferences []string             `json:"dietaryPreferences,omitempty"`
}

// updateRequest — тело запроса обновления пользователя.
// Пустой password означает «пароль не меняется».
type updateRequest struct {
	Email              openapi_types.Email `json:"email,omitempty"`
	Password           string              `json:"password,omitempty"`
	FirstName          string              `json:"firstName,omitempty"`
	LastName           string              `json:"lastName,omitempty"`
	BirthDate          *openapi_types.Date `json:"birthDate,omitempty"`
	Gender             string              `json:"gender,omitempty"`
	HeightCm           int                 `json:"heightCm,omitempty"`
	WeightKg           int                 `json:"weightKg,omitempty"`
	ActivityLevel      string              `json:"activityLevel,omitempty"`
	Goal               string              `json:"goal,omitempty"`
	Allergies          []string            `json:"allergies,omitempty"`
	DietaryPreferences []string            `json:"dietaryPreferences,omitempty"`
}

// profileResponse — представление профиля в ответах API.
type profileResponse struct {
	SubjectID          string              `json:"subjectId"`
	Username           string              `json:"username"`
	Email              openapi_types.Email `json:"email"`
	FirstName          string              `json:"firstName,omitempty"`
	LastName           string              `json:"lastName,omitempty"`
	BirthDate          *openapi_types.Date `json:"birthDate,omitempty"`
	Gender             string              `json:"gender,omitempty"`
	HeightCm           int                 `json:"heightCm,omitempty"`
	WeightKg           int                 `json:"weightKg,omitempty"`
	ActivityLevel      string              `json:"activityLevel,omitempty"`
	Goal               string              `json:"goal,omitempty"`
	Allergies          []string            `json:"allergies"`
	DietaryPreferences []string            `json:"dietaryPreferences"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// tokenResponse — представление пары токенов в ответах API.
type tokenResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken,omitempty"`
	ExpiresIn        int    `json:"expiresIn"`
	RefreshExpiresIn int    `json:"refreshExpiresIn,omitempty"`
	TokenType        string `json:"tokenType"`
}

// registerResponse — ответ на успешную регистрацию.
type registerResponse struct {
	Profile *profileResponse `json:"profile"`
	Tokens  *tokenResponse   `json:"tokens,omitempty"`
	// LoginError — сообщение о неудавшемся вспомогательном логине.
	// Регистрация при этом успешна.
	LoginError string `json:"loginError,omitempty"`
}

// mapProfile преобразует доменный профиль в DTO ответа.
func mapProfile(p *model.UserProfile) *profileResponse {
	resp := &profileResponse{
		SubjectID:          p.SubjectID,
		Username:           p.Username,
		Email:              openapi_types.Email(p.Email),
		FirstName:          p.FirstName,
		LastName:           p.LastName,
		Gender:             string(p.Gender),
		HeightCm:           p.HeightCm,
		WeightKg:           p.WeightKg,
		ActivityLevel:      string(p.ActivityLevel),
		Goal:               string(p.Goal),
		Allergies:          p.Allergies,
		DietaryPreferences: p.DietaryPreferences,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
	if p.BirthDate != nil {
		resp.BirthDate = &openapi_types.Date{Time: *p.BirthDate}
	}
	if resp.Allergies == nil {
		resp.Allergies = []string{}
	}
	if resp.DietaryPreferences == nil {
		resp.DietaryPreferences = []string{}
	}
	return resp
}

// mapTokens преобразует пару токенов в DTO ответа.
func mapTokens(t *keycloak.TokenPair) *tokenResponse {
	if t == nil {
		return nil
	}
	return &tokenResponse{
		AccessToken:      t.AccessToken,
		RefreshToken:     t.RefreshToken,
		ExpiresIn:        t.ExpiresIn,
		RefreshExpiresIn: t.RefreshExpiresIn,
		TokenType:        t.TokenType,
	}
}

// validateProfileFields проверяет опциональные поля профиля.
// Возвращает сообщение об ошибке или "". Нулевые heightCm/weightKg
// здесь означают «не заданы»: их обязательность при регистрации
// проверяет Register, а при обновлении действующие значения берутся
// из текущего профиля.
func validateProfileFields(birthDate *openapi_types.Date, gender string, heightCm, weightKg int, activityLevel, goal string) string {
	if birthDate != nil && !birthDate.Time.Before(time.Now()) {
		return "birthDate должна быть в прошлом"
	}
	if gender != "" && !model.Gender(gender).IsValid() {
		return "недопустимое значение gender: " + gender
	}
	if heightCm < 0 {
		return "heightCm должен быть положительным"
	}
	if weightKg < 0 {
		return "weightKg должен быть положительным"
	}
	if activityLevel != "" && !model.ActivityLevel(activityLevel).IsValid() {
		return "недопустимое значение activityLevel: " + activityLevel
	}
	if goal != "" && !model.Goal(goal).IsValid() {
		return "недопустимое значение goal: " + goal
	}
	return ""
}

// Register — POST /api/v1/users/register.
// Создаёт аккаунт в Keycloak и профиль в хранилище. Публичный endpoint.
func (h *APIHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ValidationError(w, r, "Некорректный JSON: "+err.Error())
		return
	}

	if req.Username == "" {
		response.ValidationError(w, r, "username обязателен")
		return
	}
	if req.Email == "" {
		response.ValidationError(w, r, "email обязателен")
		return
	}
	if req.Password == "" {
		response.ValidationError(w, r, "password обязателен")
		return
	}
	if msg := validateProfileFields(req.BirthDate, req.Gender, req.HeightCm, req.WeightKg, req.ActivityLevel, req.Goal); msg != "" {
		response.ValidationError(w, r, msg)
		return
	}
	// Схема профиля требует рост и вес: отклоняем до обращения к провайдеру,
	// иначе аккаунт будет создан, а запись профиля упадёт на ограничении
	if req.HeightCm <= 0 {
		response.ValidationError(w, r, "heightCm обязателен и должен быть положительным")
		return
	}
	if req.WeightKg <= 0 {
		response.ValidationError(w, r, "weightKg обязателен и должен быть положительным")
		return
	}

	profile := model.UserProfile{
		FirstName:          req.FirstName,
		LastName:           req.LastName,
		Gender:             model.Gender(req.Gender),
		HeightCm:           req.HeightCm,
		WeightKg:           req.WeightKg,
		ActivityLevel:      model.ActivityLevel(req.ActivityLevel),
		Goal:               model.Goal(req.Goal),
		Allergies:          req.Allergies,
		DietaryPreferences: req.DietaryPreferences,
	}
	if req.BirthDate != nil {
		bd := req.BirthDate.Time
		profile.BirthDate = &bd
	}

	result, err := h.provisioning.Register(r.Context(), service.RegisterParams{
		Username: req.Username,
		Email:    string(req.Email),
		Password: req.Password,
		Profile:  profile,
	})
	if err != nil {
		h.writeServiceError(w, r, "регистрация пользователя", err)
		return
	}

	resp := registerResponse{
		Profile: mapProfile(result.Profile),
		Tokens:  mapTokens(result.Tokens),
	}
	if result.LoginErr != nil {
		resp.LoginError = "аккаунт создан, но логин не удался — выполните вход отдельно"
	}

	response.WriteData(w, r, http.StatusCreated, "Пользователь зарегистрирован", resp)
}

// GetUser — GET /api/v1/users/{userId}.
// Возвращает профиль пользователя. Доступ: только сам пользователь.
func (h *APIHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userId")

	if !h.access.HasAccessToUser(r.Context(), subjectID) {
		response.Forbidden(w, r, "Доступ к чужому профилю запрещён")
		return
	}
	if !h.access.IsTokenValid(r.Context()) {
		response.Unauthorized(w, r, "Токен отозван или неактивен")
		return
	}

	profile, err := h.provisioning.GetProfile(r.Context(), subjectID)
	if err != nil {
		h.writeServiceError(w, r, "чтение профиля", err)
		return
	}

	response.WriteData(w, r, http.StatusOK, "Профиль пользователя", mapProfile(profile))
}

// UpdateUser — PUT /api/v1/users/user.
// Обновляет аккаунт и профиль текущего пользователя (subject из токена).
func (h *APIHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := h.access.ResolveSubject(r.Context())
	if !ok {
		response.Unauthorized(w, r, "Субъект не определён")
		return
	}
	if !h.access.IsTokenValid(r.Context()) {
		response.Unauthorized(w, r, "Токен отозван или неактивен")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.ValidationError(w, r, "Некорректный JSON: "+err.Error())
		return
	}
	if msg := validateProfileFields(req.BirthDate, req.Gender, req.HeightCm, req.WeightKg, req.ActivityLevel, req.Goal); msg != "" {
		response.ValidationError(w, r, msg)
		return
	}

	// Текущий профиль — основа: незаполненные поля запроса не затираются
	current, err := h.provisioning.GetProfile(r.Context(), subjectID)
	if err != nil {
		h.writeServiceError(w, r, "чтение профиля", err)
		return
	}

	profile := *current
	if req.Email != "" {
		profile.Email = string(req.Email)
	}
	if req.FirstName != "" {
		profile.FirstName = req.FirstName
	}
	if req.LastName != "" {
		profile.LastName = req.LastName
	}
	if req.BirthDate != nil {
		bd := req.BirthDate.Time
		profile.BirthDate = &bd
	}
	if req.Gender != "" {
		profile.Gender = model.Gender(req.Gender)
	}
	if req.HeightCm != 0 {
		profile.HeightCm = req.HeightCm
	}
	if req.WeightKg != 0 {
		profile.WeightKg = req.WeightKg
	}
	if req.ActivityLevel != "" {
		profile.ActivityLevel = model.ActivityLevel(req.ActivityLevel)
	}
	if req.Goal != "" {
		profile.Goal = model.Goal(req.Goal)
	}
	if req.Allergies != nil {
		profile.Allergies = req.Allergies
	}
	if req.DietaryPreferences != nil {
		profile.DietaryPreferences = req.DietaryPreferences
	}

	updated, err := h.provisioning.Update(r.Context(), service.UpdateParams{
		Password: req.Password,
		Profile:  profile,
	})
	if err != nil {
		h.writeServiceError(w, r, "обновление пользователя", err)
		return
	}

	response.WriteData(w, r, http.StatusOK, "Пользователь обновлён", mapProfile(updated))
}

// DeleteUser — DELETE /api/v1/users/{userId}.
// Удаляет профиль и аккаунт. Доступ: только сам пользователь.
func (h *APIHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	subjectID := chi.URLParam(r, "userId")

	if !h.access.HasAccessToUser(r.Context(), subjectID) {
		response.Forbidden(w, r, "Удаление чужого профиля запрещено")
		return
	}
	if !h.access.IsTokenValid(r.Context()) {
		response.Unauthorized(w, r, "Токен отозван или неактивен")
		return
	}

	if err := h.provisioning.Delete(r.Context(), subjectID); err != nil {
		h.writeServiceError(w, r, "удаление пользователя", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError переводит ошибки сервисного слоя в HTTP-ответы.
// Сырые детали провайдера и хранилища в ответ не попадают — только в лог.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var partial *service.PartialFailureError
	var badReq *keycloak.BadRequestError

	switch {
	case errors.As(err, &partial):
		h.logger.Error("Частичный отказ операции",
			"op", op,
			"stage", partial.Stage,
			"subject_id", partial.SubjectID,
			"error", err,
		)
		code := response.CodePartialCreate
		if partial.Stage == service.StageUpdate {
			code = response.CodePartialUpdate
		}
		response.WriteError(w, r, http.StatusInternalServerError, code,
			fmt.Sprintf("Операция выполнена частично: аккаунт %s изменён, профиль — нет", partial.SubjectID))
	case errors.Is(err, service.ErrValidation):
		response.ValidationError(w, r, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, r, "Пользователь не найден")
	case errors.Is(err, service.ErrAlreadyExists):
		response.AlreadyExists(w, r, "Пользователь уже существует")
	case errors.Is(err, service.ErrRoleNotFound):
		response.RoleNotFound(w, r, "Одна или несколько ролей не найдены")
	case errors.Is(err, service.ErrConstraint):
		response.ConstraintViolation(w, r, "Нарушено ограничение данных профиля")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.InvalidCredentials(w, r, "Неверные имя пользователя или пароль")
	case errors.Is(err, service.ErrIDPUnavailable):
		h.logger.Error("Identity Provider недоступен", "op", op, "error", err)
		response.IDPUnavailable(w, r, "Identity Provider временно недоступен")
	case errors.As(err, &badReq):
		h.logger.Warn("Identity Provider отклонил запрос",
			"op", op,
			"status", badReq.Status,
			"error", err,
		)
		response.IDPBadRequest(w, r, "Identity Provider отклонил запрос")
	default:
		h.logger.Error("Непредвиденная ошибка", "op", op, "error", err)
		response.InternalError(w, r, "Внутренняя ошибка сервиса")
	}
}
