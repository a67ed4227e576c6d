// errors.go — таксономия ошибок Keycloak-клиента.
// Каждая неудача Admin REST API отображается ровно в одну из этих ошибок,
// чтобы вызывающий слой (ProvisioningService) мог принять решение
// о повторе или отказе без разбора сырых HTTP-деталей.
package keycloak

import (
	"errors"
	"fmt"
)

var (
	// ErrConflict — username или email уже зарегистрированы в Keycloak.
	ErrConflict = errors.New("аккаунт уже существует в Keycloak")
	// ErrUnavailable — Keycloak недоступен: сетевая ошибка или ответ 5xx.
	// Вызывающий может повторить запрос; сам клиент повторов не делает.
	ErrUnavailable = errors.New("Keycloak недоступен")
	// ErrRoleNotFound — роль с указанным именем не найдена в realm или клиенте.
	ErrRoleNotFound = errors.New("роль не найдена в Keycloak")
	// ErrInvalidCredentials — Keycloak отклонил пару логин/пароль.
	ErrInvalidCredentials = errors.New("неверные учётные данные")
)

// BadRequestError — Keycloak отклонил запрос как некорректный (4xx).
// Сохраняет HTTP-статус и сообщение провайдера. Не подлежит повтору.
type BadRequestError struct {
	// Status — HTTP-статус ответа Keycloak.
	Status int
	// Message — сообщение об ошибке из тела ответа.
	Message string
}

// Error реализует интерфейс error.
func (e *BadRequestError) Error() string {
	return fmt.Sprintf("Keycloak отклонил запрос (статус %d): %s", e.Status, e.Message)
}
