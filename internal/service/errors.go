// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrAlreadyExists — конфликт: пользователь уже существует.
	ErrAlreadyExists = errors.New("пользователь уже существует")
	// ErrRoleNotFound — одна или несколько ролей не существуют.
	ErrRoleNotFound = errors.New("роль не найдена")
	// ErrConstraint — нарушено ограничение хранилища профилей.
	ErrConstraint = errors.New("нарушено ограничение данных")
	// ErrIDPUnavailable — Identity Provider (Keycloak) недоступен.
	ErrIDPUnavailable = errors.New("Identity Provider недоступен")
	// ErrInvalidCredentials — неверные учётные данные при логине.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

// Стадии provisioning-операции для PartialFailureError.
const (
	// StageCreate — частичный отказ при регистрации: аккаунт в Keycloak
	// создан, но профиль в хранилище записать не удалось.
	StageCreate = "create"
	// StageUpdate — частичный отказ при обновлении: аккаунт в Keycloak
	// обновлён, но профиль в хранилище обновить не удалось.
	StageUpdate = "update"
)

// PartialFailureError — операция выполнена частично: аккаунт в Keycloak
// изменён, а профиль в хранилище — нет. Автоматической компенсации нет:
// клиент должен видеть фактическое состояние системы.
type PartialFailureError struct {
	// Stage — стадия операции (StageCreate или StageUpdate).
	Stage string
	// SubjectID — идентификатор аккаунта в Keycloak.
	SubjectID string
	// Err — первопричина отказа на стороне хранилища.
	Err error
}

// Error реализует интерфейс error.
func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("частичный отказ на стадии %s (subject %s): %v", e.Stage, e.SubjectID, e.Err)
}

// Unwrap возвращает первопричину.
func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
