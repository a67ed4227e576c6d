// Пакет keycloak — HTTP-клиент к Keycloak Admin REST API.
// models.go — модели данных Keycloak.
package keycloak

// TokenResponse — ответ на запрос токена через Client Credentials flow.
type TokenResponse struct {
	AccessToken string `json:"access_token"` //nolint:gosec // G117: структура токена OAuth2
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TokenPair — пара токенов, выданная по Resource Owner Password grant.
// Возвращается из Login и отдаётся пользователю после регистрации.
type TokenPair struct {
	AccessToken      string `json:"access_token"`  //nolint:gosec // G117: структура токена OAuth2
	RefreshToken     string `json:"refresh_token"` //nolint:gosec // G117: структура токена OAuth2
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	TokenType        string `json:"token_type"`
}

// KeycloakUser — пользователь в Keycloak (UserRepresentation).
type KeycloakUser struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Enabled       bool   `json:"enabled"`
	EmailVerified bool   `json:"emailVerified"`
	CreatedAt     int64  `json:"createdTimestamp"`
}

// Role — роль Keycloak (RoleRepresentation).
// Используется и для realm-ролей, и для клиентских ролей.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// ClientRole — true для роли в пространстве имён клиента.
	ClientRole bool `json:"clientRole,omitempty"`
	// ContainerID — realm или internal ID клиента-владельца.
	ContainerID string `json:"containerId,omitempty"`
}

// KeycloakClient — клиент (application) в Keycloak.
// Нужен только для резолва clientId → internal ID при работе
// с клиентскими ролями.
type KeycloakClient struct { //nolint:revive // stuttering допустим — внешний API Keycloak
	ID       string `json:"id"`
	ClientID string `json:"clientId"`
	Enabled  bool   `json:"enabled"`
}

// RealmRepresentation — краткая информация о realm.
type RealmRepresentation struct {
	Realm   string `json:"realm"`
	Enabled bool   `json:"enabled"`
}

// introspectionResponse — ответ token introspection endpoint (RFC 7662).
type introspectionResponse struct {
	Active bool `json:"active"`
}

// credentialRepresentation — учётные данные при создании/обновлении аккаунта.
type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// userCreateRequest — запрос на создание пользователя в Keycloak.
// Поля соответствуют Keycloak Admin REST API (UserRepresentation).
type userCreateRequest struct {
	Username      string                     `json:"username"`
	Email         string                     `json:"email"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []credentialRepresentation `json:"credentials,omitempty"`
}

// userUpdateRequest — запрос на обновление пользователя.
// Пустые поля не сериализуются и не затирают значения в Keycloak.
// Пароль меняется отдельным запросом reset-password, не здесь.
type userUpdateRequest struct {
	Email     string `json:"email,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
}
