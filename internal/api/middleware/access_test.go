package middleware

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeValidator — управляемый TokenValidator.
type fakeValidator struct {
	active bool
	calls  int
}

func (v *fakeValidator) ValidateToken(_ context.Context, _ string) bool {
	v.calls++
	return v.active
}

// ctxWithClaims кладёт AuthClaims в контекст, как это делает JWT middleware.
func ctxWithClaims(claims *AuthClaims) context.Context {
	return context.WithValue(context.Background(), ContextKeyPrincipal, claims)
}

func TestResolveSubject_Order(t *testing.T) {
	checker := NewAccessChecker(&fakeValidator{}, testLogger())

	t.Run("claims имеют приоритет", func(t *testing.T) {
		ctx := ctxWithClaims(&AuthClaims{Subject: "from-claims"})
		ctx = context.WithValue(ctx, ContextKeyIntrospected, &IntrospectedPrincipal{Subject: "from-introspection"})
		ctx = context.WithValue(ctx, ContextKeyAuthName, "from-auth-name")

		sub, ok := checker.ResolveSubject(ctx)
		if !ok || sub != "from-claims" {
			t.Errorf("ожидался from-claims, получено: %q (ok=%v)", sub, ok)
		}
	})

	t.Run("introspection при отсутствии claims", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), ContextKeyIntrospected, &IntrospectedPrincipal{Subject: "from-introspection"})
		ctx = context.WithValue(ctx, ContextKeyAuthName, "from-auth-name")

		sub, ok := checker.ResolveSubject(ctx)
		if !ok || sub != "from-introspection" {
			t.Errorf("ожидался from-introspection, получено: %q (ok=%v)", sub, ok)
		}
	})

	t.Run("имя аутентификации как последний вариант", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), ContextKeyAuthName, "from-auth-name")

		sub, ok := checker.ResolveSubject(ctx)
		if !ok || sub != "from-auth-name" {
			t.Errorf("ожидался from-auth-name, получено: %q (ok=%v)", sub, ok)
		}
	})

	t.Run("principal отсутствует", func(t *testing.T) {
		_, ok := checker.ResolveSubject(context.Background())
		if ok {
			t.Error("резолв в пустом контексте должен вернуть false")
		}
	})

	t.Run("пустой sub в claims пропускается", func(t *testing.T) {
		ctx := ctxWithClaims(&AuthClaims{Subject: ""})
		ctx = context.WithValue(ctx, ContextKeyAuthName, "fallback")

		sub, ok := checker.ResolveSubject(ctx)
		if !ok || sub != "fallback" {
			t.Errorf("ожидался fallback, получено: %q (ok=%v)", sub, ok)
		}
	})
}

func TestHasAccessToUser(t *testing.T) {
	checker := NewAccessChecker(&fakeValidator{}, testLogger())

	tests := []struct {
		name      string
		claims    *AuthClaims
		subjectID string
		want      bool
	}{
		{
			name:      "собственный ресурс",
			claims:    &AuthClaims{Subject: "user-1"},
			subjectID: "user-1",
			want:      true,
		},
		{
			name:      "чужой ресурс без роли",
			claims:    &AuthClaims{Subject: "user-1"},
			subjectID: "user-2",
			want:      false,
		},
		{
			// Роли не расширяют доступ: только совпадение sub
			name:      "админ-роль не даёт доступ к чужому ресурсу",
			claims:    &AuthClaims{Subject: "user-1", Roles: []string{"nutritrack-admin"}},
			subjectID: "user-2",
			want:      false,
		},
		{
			name:      "чужой ресурс с посторонней ролью",
			claims:    &AuthClaims{Subject: "user-1", Roles: []string{"nutritrack-user"}},
			subjectID: "user-2",
			want:      false,
		},
		{
			name:      "неаутентифицированный",
			claims:    nil,
			subjectID: "user-1",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.claims != nil {
				ctx = ctxWithClaims(tt.claims)
			}

			got := checker.HasAccessToUser(ctx, tt.subjectID)
			if got != tt.want {
				t.Errorf("HasAccessToUser() = %v, ожидается %v", got, tt.want)
			}
		})
	}
}

func TestIsTokenValid(t *testing.T) {
	t.Run("активный токен", func(t *testing.T) {
		validator := &fakeValidator{active: true}
		checker := NewAccessChecker(validator, testLogger())

		ctx := ctxWithClaims(&AuthClaims{Subject: "user-1", RawToken: "raw"})
		if !checker.IsTokenValid(ctx) {
			t.Error("активный токен должен быть валиден")
		}
		if validator.calls != 1 {
			t.Errorf("ожидался 1 вызов валидатора, было %d", validator.calls)
		}
	})

	t.Run("неактивный токен", func(t *testing.T) {
		checker := NewAccessChecker(&fakeValidator{active: false}, testLogger())

		ctx := ctxWithClaims(&AuthClaims{Subject: "user-1", RawToken: "raw"})
		if checker.IsTokenValid(ctx) {
			t.Error("неактивный токен должен быть невалиден")
		}
	})

	t.Run("без raw token валидатор не вызывается", func(t *testing.T) {
		validator := &fakeValidator{active: true}
		checker := NewAccessChecker(validator, testLogger())

		ctx := ctxWithClaims(&AuthClaims{Subject: "user-1"})
		if checker.IsTokenValid(ctx) {
			t.Error("без raw token токен невалиден")
		}
		if validator.calls != 0 {
			t.Errorf("валидатор не должен вызываться, было %d вызовов", validator.calls)
		}
	})
}

func TestIsAuthenticatedAndAuthorized(t *testing.T) {
	t.Run("доступ и активный токен", func(t *testing.T) {
		checker := NewAccessChecker(&fakeValidator{active: true}, testLogger())
		ctx := ctxWithClaims(&AuthClaims{Subject: "user-1", RawToken: "raw"})

		if !checker.IsAuthenticatedAndAuthorized(ctx, "user-1") {
			t.Error("ожидался доступ")
		}
	})

	t.Run("отказ в доступе до introspection", func(t *testing.T) {
		validator := &fakeValidator{active: true}
		checker := NewAccessChecker(validator, testLogger())
		ctx := ctxWithClaims(&AuthClaims{Subject: "user-1", RawToken: "raw"})

		if checker.IsAuthenticatedAndAuthorized(ctx, "user-2") {
			t.Error("доступ к чужому ресурсу должен быть отклонён")
		}
		// Проверка доступа выполняется первой: до introspection дело не дошло
		if validator.calls != 0 {
			t.Errorf("introspection не должен вызываться при отказе в доступе, было %d", validator.calls)
		}
	})

	t.Run("доступ есть, токен отозван", func(t *testing.T) {
		checker := NewAccessChecker(&fakeValidator{active: false}, testLogger())
		ctx := ctxWithClaims(&AuthClaims{Subject: "user-1", RawToken: "raw"})

		if checker.IsAuthenticatedAndAuthorized(ctx, "user-1") {
			t.Error("отозванный токен должен отклоняться")
		}
	})
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole("nutritrack-admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		claims     *AuthClaims
		wantStatus int
	}{
		{
			name:       "роль есть",
			claims:     &AuthClaims{Subject: "user-1", Roles: []string{"nutritrack-admin"}},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "роли нет",
			claims:     &AuthClaims{Subject: "user-1", Roles: []string{"nutritrack-user"}},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "principal отсутствует",
			claims:     nil,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/roles/realm", nil)
			if tt.claims != nil {
				req = req.WithContext(ctxWithClaims(tt.claims))
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("статус = %d, ожидается %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/health/live", "/health/live"},
		{"/health/ready", "/health/ready"},
		{"/metrics", "/metrics"},
		{"/api/v1/openapi.json", "/api/v1/openapi.json"},
		{"/api/v1/auth/login", "/api/v1/auth/login"},
		{"/api/v1/users/register", "/api/v1/users/register"},
		{"/api/v1/users/user", "/api/v1/users/user"},
		{"/api/v1/users/3f8a2c0e-1111-2222-3333-444455556666", "/api/v1/users/{id}"},
		{"/api/v1/admin/roles/realm", "/api/v1/admin/roles/realm"},
		{"/api/v1/admin/roles/client", "/api/v1/admin/roles/client"},
		{"/api/v1/admin/users/3f8a2c0e/roles/realm", "/api/v1/admin/users/{id}/roles/realm"},
		{"/api/v1/admin/users/3f8a2c0e/roles/client", "/api/v1/admin/users/{id}/roles/client"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, ожидается %q", tt.path, got, tt.want)
			}
		})
	}
}
