// roles.go — сервис управления ролями пользователей.
// Назначение и отзыв realm- и client-ролей через провайдер идентичности.
// Пустой список ролей отклоняется до любых сетевых вызовов.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mgnetworking/nutritrack/user-module/internal/keycloak"
)

// RoleService — сервис управления ролями.
type RoleService struct {
	gateway IdentityGateway
	logger  *slog.Logger
}

// NewRoleService создаёт сервис управления ролями.
func NewRoleService(gateway IdentityGateway, logger *slog.Logger) *RoleService {
	return &RoleService{
		gateway: gateway,
		logger:  logger.With(slog.String("component", "role_service")),
	}
}

// ListRealmRoles возвращает все realm-роли realm-а.
func (s *RoleService) ListRealmRoles(ctx context.Context) ([]keycloak.Role, error) {
	roles, err := s.gateway.ListRealmRoles(ctx)
	if err != nil {
		return nil, mapRoleError("список realm-ролей", err)
	}
	return roles, nil
}

// ListClientRoles возвращает роли указанного клиента.
func (s *RoleService) ListClientRoles(ctx context.Context, clientName string) ([]keycloak.Role, error) {
	roles, err := s.gateway.ListClientRoles(ctx, clientName)
	if err != nil {
		return nil, mapRoleError("список client-ролей", err)
	}
	return roles, nil
}

// AssignRealmRoles назначает пользователю realm-роли по именам.
func (s *RoleService) AssignRealmRoles(ctx context.Context, subjectID string, roleNames []string) error {
	if err := validateRoleNames(roleNames); err != nil {
		return err
	}
	if err := s.gateway.AssignRealmRoles(ctx, subjectID, roleNames); err != nil {
		return mapRoleError("назначение realm-ролей", err)
	}
	s.logger.Info("Realm-роли назначены",
		slog.String("subject_id", subjectID),
		slog.Any("roles", roleNames),
	)
	return nil
}

// RevokeRealmRoles отзывает у пользователя realm-роли по именам.
func (s *RoleService) RevokeRealmRoles(ctx context.Context, subjectID string, roleNames []string) error {
	if err := validateRoleNames(roleNames); err != nil {
		return err
	}
	if err := s.gateway.RevokeRealmRoles(ctx, subjectID, roleNames); err != nil {
		return mapRoleError("отзыв realm-ролей", err)
	}
	s.logger.Info("Realm-роли отозваны",
		slog.String("subject_id", subjectID),
		slog.Any("roles", roleNames),
	)
	return nil
}

// AssignClientRoles назначает пользователю client-роли по именам.
func (s *RoleService) AssignClientRoles(ctx context.Context, subjectID, clientName string, roleNames []string) error {
	if err := validateRoleNames(roleNames); err != nil {
		return err
	}
	if err := s.gateway.AssignClientRoles(ctx, subjectID, clientName, roleNames); err != nil {
		return mapRoleError("назначение client-ролей", err)
	}
	s.logger.Info("Client-роли назначены",
		slog.String("subject_id", subjectID),
		slog.String("client", clientName),
		slog.Any("roles", roleNames),
	)
	return nil
}

// RevokeClientRoles отзывает у пользователя client-роли по именам.
func (s *RoleService) RevokeClientRoles(ctx context.Context, subjectID, clientName string, roleNames []string) error {
	if err := validateRoleNames(roleNames); err != nil {
		return err
	}
	if err := s.gateway.RevokeClientRoles(ctx, subjectID, clientName, roleNames); err != nil {
		return mapRoleError("отзыв client-ролей", err)
	}
	s.logger.Info("Client-роли отозваны",
		slog.String("subject_id", subjectID),
		slog.String("client", clientName),
		slog.Any("roles", roleNames),
	)
	return nil
}

// validateRoleNames отклоняет пустой или содержащий пустые имена список.
func validateRoleNames(roleNames []string) error {
	if len(roleNames) == 0 {
		return fmt.Errorf("%w: список ролей пуст", ErrValidation)
	}
	for _, name := range roleNames {
		if name == "" {
			return fmt.Errorf("%w: пустое имя роли", ErrValidation)
		}
	}
	return nil
}

// mapRoleError переводит ошибки провайдера в ошибки сервисного слоя.
func mapRoleError(op string, err error) error {
	switch {
	case errors.Is(err, keycloak.ErrRoleNotFound):
		return fmt.Errorf("%s: %w", op, ErrRoleNotFound)
	case keycloak.IsUnavailable(err):
		return fmt.Errorf("%s: %w", op, ErrIDPUnavailable)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
