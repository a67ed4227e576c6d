// access.go — проверка доступа субъекта к ресурсам пользователя.
// Principal определяется упорядоченной цепочкой резолверов: если первый
// не распознал principal, пробуем следующий. Субъект имеет доступ к
// ресурсу только при точном совпадении его sub с subject ID ресурса;
// роли на эту проверку не влияют. Административные операции живут на
// отдельных маршрутах за RequireRole.
package middleware

import (
	"context"
	"log/slog"
)

// IntrospectedPrincipal — principal, подтверждённый introspection-ом
// у провайдера идентичности (а не локальной проверкой подписи).
// Резолвится вторым по порядку после JWT claims.
type IntrospectedPrincipal struct {
	// Subject — идентификатор субъекта у провайдера.
	Subject string
	// Username — имя пользователя.
	Username string
}

// ContextKeyIntrospected — ключ контекста для IntrospectedPrincipal.
const ContextKeyIntrospected contextKey = "auth_introspected"

// ContextKeyAuthName — ключ контекста для последнего резолвера:
// простое имя аутентификации, когда полноценный principal недоступен.
const ContextKeyAuthName contextKey = "auth_name"

// SubjectResolver извлекает идентификатор субъекта из контекста запроса.
// Возвращает ("", false), если данный резолвер principal не распознал.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context) (string, bool)
}

// SubjectResolverFunc — адаптер функции к интерфейсу SubjectResolver.
type SubjectResolverFunc func(ctx context.Context) (string, bool)

// ResolveSubject вызывает функцию.
func (f SubjectResolverFunc) ResolveSubject(ctx context.Context) (string, bool) {
	return f(ctx)
}

// claimsResolver извлекает sub из валидированных JWT claims.
func claimsResolver(ctx context.Context) (string, bool) {
	claims := ClaimsFromContext(ctx)
	if claims == nil || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// introspectedResolver извлекает sub из introspected principal.
func introspectedResolver(ctx context.Context) (string, bool) {
	p, ok := ctx.Value(ContextKeyIntrospected).(*IntrospectedPrincipal)
	if !ok || p == nil || p.Subject == "" {
		return "", false
	}
	return p.Subject, true
}

// authNameResolver — последний резолвер: простое имя аутентификации.
func authNameResolver(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(ContextKeyAuthName).(string)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// TokenValidator проверяет активность токена у провайдера идентичности.
// Любая ошибка проверки трактуется реализацией как false (fail closed).
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) bool
}

// AccessChecker выполняет проверки авторизации уровня запроса.
type AccessChecker struct {
	resolvers []SubjectResolver
	validator TokenValidator
	logger    *slog.Logger
}

// NewAccessChecker создаёт AccessChecker со стандартной цепочкой резолверов:
// JWT claims -> introspected principal -> имя аутентификации.
func NewAccessChecker(validator TokenValidator, logger *slog.Logger) *AccessChecker {
	return &AccessChecker{
		resolvers: []SubjectResolver{
			SubjectResolverFunc(claimsResolver),
			SubjectResolverFunc(introspectedResolver),
			SubjectResolverFunc(authNameResolver),
		},
		validator: validator,
		logger:    logger.With(slog.String("component", "access_checker")),
	}
}

// ResolveSubject возвращает идентификатор текущего субъекта.
// Резолверы опрашиваются по порядку, берётся первый успешный результат.
func (a *AccessChecker) ResolveSubject(ctx context.Context) (string, bool) {
	for _, r := range a.resolvers {
		if sub, ok := r.ResolveSubject(ctx); ok {
			return sub, true
		}
	}
	return "", false
}

// HasAccessToUser проверяет, имеет ли текущий субъект доступ к ресурсам
// пользователя subjectID. Доступ есть только при точном совпадении
// идентификаторов; роли и активность токена на результат не влияют.
func (a *AccessChecker) HasAccessToUser(ctx context.Context, subjectID string) bool {
	sub, ok := a.ResolveSubject(ctx)
	if !ok {
		return false
	}
	if sub == subjectID {
		return true
	}

	a.logger.Debug("Доступ к чужому ресурсу отклонён",
		slog.String("subject", sub),
		slog.String("resource_subject", subjectID),
	)
	return false
}

// IsTokenValid проверяет активность токена текущего субъекта через
// introspection у провайдера идентичности. Любая ошибка провайдера
// трактуется как невалидный токен (fail closed).
func (a *AccessChecker) IsTokenValid(ctx context.Context) bool {
	claims := ClaimsFromContext(ctx)
	if claims == nil || claims.RawToken == "" {
		return false
	}

	active := a.validator.ValidateToken(ctx, claims.RawToken)
	if !active {
		a.logger.Debug("Introspection: токен неактивен или проверка не удалась")
	}
	return active
}

// IsAuthenticatedAndAuthorized объединяет обе проверки: субъект
// аутентифицирован, имеет доступ к ресурсу subjectID и его токен
// активен у провайдера идентичности. Проверка доступа выполняется первой.
func (a *AccessChecker) IsAuthenticatedAndAuthorized(ctx context.Context, subjectID string) bool {
	if !a.HasAccessToUser(ctx, subjectID) {
		return false
	}
	return a.IsTokenValid(ctx)
}
