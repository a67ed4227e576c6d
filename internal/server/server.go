// Пакет server — HTTP-сервер User Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mgnetworking/nutritrack/user-module/internal/api/handlers"
	"github.com/mgnetworking/nutritrack/user-module/internal/api/middleware"
	"github.com/mgnetworking/nutritrack/user-module/internal/config"
)

// Server — HTTP-сервер User Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// publicPrefixes — пути, доступные без JWT.
// Health и metrics проверяются Kubernetes напрямую, без API Gateway;
// регистрация и логин по определению выполняются без токена.
var publicPrefixes = []string{
	"/health/",
	"/metrics",
	"/api/v1/openapi.json",
	"/api/v1/auth/login",
	"/api/v1/users/register",
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// jwtAuth — JWT middleware (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, api *handlers.APIHandler, docs *handlers.DocsHandler, jwtAuth *middleware.JWTAuth) *Server {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// JWT middleware с исключениями для публичных endpoints
	if jwtAuth != nil {
		router.Use(jwtAuthWithExclusions(jwtAuth, publicPrefixes...))
	}

	// Health и метрики
	router.Get("/health/live", api.HealthLive)
	router.Get("/health/ready", api.HealthReady)
	router.Get("/metrics", api.GetMetrics)

	// Публичные API endpoints
	if docs != nil {
		router.Get("/api/v1/openapi.json", docs.GetOpenAPI)
	}
	router.Post("/api/v1/auth/login", api.Login)
	router.Post("/api/v1/users/register", api.Register)

	// Пользовательские endpoints (JWT + subject match в handler-ах)
	router.Put("/api/v1/users/user", api.UpdateUser)
	router.Get("/api/v1/users/{userId}", api.GetUser)
	router.Delete("/api/v1/users/{userId}", api.DeleteUser)

	// Административные endpoints — требуют realm-роль администратора
	router.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(cfg.AdminRole))
		r.Get("/roles/realm", api.ListRealmRoles)
		r.Get("/roles/client", api.ListClientRoles)
		r.Post("/users/{userId}/roles/realm", api.AssignRealmRoles)
		r.Delete("/users/{userId}/roles/realm", api.RevokeRealmRoles)
		r.Post("/users/{userId}/roles/client", api.AssignClientRoles)
		r.Delete("/users/{userId}/roles/client", api.RevokeClientRoles)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// jwtAuthWithExclusions оборачивает JWTAuth.Middleware(), пропуская указанные пути.
// Запросы к путям, начинающимся с любого из excludePrefixes, проходят без JWT.
func jwtAuthWithExclusions(jwtAuth *middleware.JWTAuth, excludePrefixes ...string) func(http.Handler) http.Handler {
	jwtMiddleware := jwtAuth.Middleware()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Проверяем, начинается ли путь с исключённого префикса
			for _, prefix := range excludePrefixes {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			// Применяем JWT middleware
			jwtMiddleware(next).ServeHTTP(w, r)
		})
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
