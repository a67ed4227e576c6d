// Пакет service — бизнес-логика User Module.
// provisioning.go — сквозной workflow регистрации, обновления и удаления
// пользователей: аккаунт в Keycloak + профиль в PostgreSQL.
//
// Транзакции, охватывающей оба хранилища, нет. Если аккаунт в Keycloak
// изменён, а запись профиля упала — операция завершается
// PartialFailureError, и клиент видит фактическое состояние.
// Автоматических компенсирующих удалений сервис не выполняет.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mgnetworking/nutritrack/user-module/internal/domain/model"
	"github.com/mgnetworking/nutritrack/user-module/internal/keycloak"
	"github.com/mgnetworking/nutritrack/user-module/internal/repository"
)

// IdentityGateway — контракт взаимодействия с провайдером идентичности.
// Реализуется keycloak.Client; в тестах подменяется фейком.
type IdentityGateway interface {
	AccountExists(ctx context.Context, subjectID string) (bool, error)
	AccountExistsByUsername(ctx context.Context, username string) (bool, error)
	CreateAccount(ctx context.Context, params keycloak.CreateAccountParams) (string, error)
	UpdateAccount(ctx context.Context, subjectID string, params keycloak.UpdateAccountParams) (bool, error)
	DeleteAccount(ctx context.Context, subjectID string) error
	Login(ctx context.Context, username, password string) (*keycloak.TokenPair, error)
	ListRealmRoles(ctx context.Context) ([]keycloak.Role, error)
	ListClientRoles(ctx context.Context, clientName string) ([]keycloak.Role, error)
	AssignRealmRoles(ctx context.Context, subjectID string, roleNames []string) error
	RevokeRealmRoles(ctx context.Context, subjectID string, roleNames []string) error
	AssignClientRoles(ctx context.Context, subjectID, clientName string, roleNames []string) error
	RevokeClientRoles(ctx context.Context, subjectID, clientName string, roleNames []string) error
}

// RegisterParams — входные данные регистрации пользователя.
type RegisterParams struct {
	Username string
	Email    string
	Password string
	Profile  model.UserProfile
}

// RegisterResult — результат регистрации.
type RegisterResult struct {
	// Profile — созданный профиль с заполненным SubjectID и timestamps.
	Profile *model.UserProfile
	// Tokens — пара токенов от вспомогательного логина после регистрации.
	// nil, если логин не удался.
	Tokens *keycloak.TokenPair
	// LoginErr — ошибка вспомогательного логина. Регистрация при этом
	// считается успешной: аккаунт и профиль созданы.
	LoginErr error
}

// UpdateParams — входные данные обновления пользователя.
// Password == "" означает «пароль не меняется».
type UpdateParams struct {
	Password string
	Profile  model.UserProfile
}

// ProvisioningService — сервис управления жизненным циклом пользователя.
type ProvisioningService struct {
	gateway IdentityGateway
	repo    repository.ProfileRepository
	logger  *slog.Logger
}

// NewProvisioningService создаёт сервис provisioning-а пользователей.
func NewProvisioningService(gateway IdentityGateway, repo repository.ProfileRepository, logger *slog.Logger) *ProvisioningService {
	return &ProvisioningService{
		gateway: gateway,
		repo:    repo,
		logger:  logger.With(slog.String("component", "provisioning_service")),
	}
}

// Register регистрирует нового пользователя: создаёт аккаунт в Keycloak,
// затем профиль в хранилище. Занятый username → ErrAlreadyExists до
// каких-либо мутаций. Отказ хранилища после создания аккаунта →
// *PartialFailureError{Stage: StageCreate} с subject ID созданного аккаунта.
// После успешного создания выполняется вспомогательный логин; его отказ
// не откатывает регистрацию и отражается в RegisterResult.LoginErr.
func (s *ProvisioningService) Register(ctx context.Context, params RegisterParams) (*RegisterResult, error) {
	// Предварительная проверка занятости username
	exists, err := s.gateway.AccountExistsByUsername(ctx, params.Username)
	if err != nil {
		return nil, s.mapGatewayError("проверка существования аккаунта", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: username %s занят", ErrAlreadyExists, params.Username)
	}

	subjectID, err := s.gateway.CreateAccount(ctx, keycloak.CreateAccountParams{
		Username:  params.Username,
		Email:     params.Email,
		FirstName: params.Profile.FirstName,
		LastName:  params.Profile.LastName,
		Password:  params.Password,
	})
	if err != nil {
		return nil, s.mapGatewayError("создание аккаунта", err)
	}

	s.logger.Info("Аккаунт создан в Keycloak",
		slog.String("subject_id", subjectID),
		slog.String("username", params.Username),
	)

	profile := params.Profile
	profile.SubjectID = subjectID
	profile.Username = params.Username
	profile.Email = params.Email

	if err := s.repo.Create(ctx, &profile); err != nil {
		// Аккаунт уже создан — компенсации нет, возвращаем частичный отказ
		s.logger.Error("Профиль не создан после создания аккаунта",
			slog.String("subject_id", subjectID),
			slog.String("error", err.Error()),
		)
		return nil, &PartialFailureError{Stage: StageCreate, SubjectID: subjectID, Err: err}
	}

	result := &RegisterResult{Profile: &profile}

	// Вспомогательный логин — удобство для клиента, не часть инварианта
	tokens, loginErr := s.gateway.Login(ctx, params.Username, params.Password)
	if loginErr != nil {
		s.logger.Warn("Логин после регистрации не удался",
			slog.String("subject_id", subjectID),
			slog.String("error", loginErr.Error()),
		)
		result.LoginErr = loginErr
	} else {
		result.Tokens = tokens
	}

	return result, nil
}

// Update обновляет пользователя: сначала аккаунт в Keycloak, затем профиль
// в хранилище. Отсутствующий аккаунт → ErrNotFound до каких-либо мутаций.
// Пустой Password пропускает смену учётных данных. Отказ хранилища после
// обновления аккаунта → *PartialFailureError{Stage: StageUpdate}.
func (s *ProvisioningService) Update(ctx context.Context, params UpdateParams) (*model.UserProfile, error) {
	subjectID := params.Profile.SubjectID

	exists, err := s.gateway.AccountExists(ctx, subjectID)
	if err != nil {
		return nil, s.mapGatewayError("проверка существования аккаунта", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: аккаунт %s", ErrNotFound, subjectID)
	}

	updated, err := s.gateway.UpdateAccount(ctx, subjectID, keycloak.UpdateAccountParams{
		Email:     params.Profile.Email,
		FirstName: params.Profile.FirstName,
		LastName:  params.Profile.LastName,
		Password:  params.Password,
	})
	if err != nil {
		return nil, s.mapGatewayError("обновление аккаунта", err)
	}

	profile := params.Profile
	if err := s.repo.Update(ctx, &profile); err != nil {
		if updated {
			// Аккаунт уже обновлён — возвращаем частичный отказ
			s.logger.Error("Профиль не обновлён после обновления аккаунта",
				slog.String("subject_id", subjectID),
				slog.String("error", err.Error()),
			)
			return nil, &PartialFailureError{Stage: StageUpdate, SubjectID: subjectID, Err: err}
		}
		return nil, s.mapStoreError("обновление профиля", err)
	}

	return &profile, nil
}

// Delete удаляет пользователя: сначала профиль из хранилища, затем аккаунт
// в Keycloak. Порядок фиксирован: при повторе после сбоя отсутствующий
// профиль — не ошибка (оба удаления идемпотентны).
// Отсутствующий аккаунт → ErrNotFound.
func (s *ProvisioningService) Delete(ctx context.Context, subjectID string) error {
	exists, err := s.gateway.AccountExists(ctx, subjectID)
	if err != nil {
		return s.mapGatewayError("проверка существования аккаунта", err)
	}
	if !exists {
		return fmt.Errorf("%w: аккаунт %s", ErrNotFound, subjectID)
	}

	if err := s.repo.Delete(ctx, subjectID); err != nil {
		return s.mapStoreError("удаление профиля", err)
	}

	if err := s.gateway.DeleteAccount(ctx, subjectID); err != nil {
		return s.mapGatewayError("удаление аккаунта", err)
	}

	s.logger.Info("Пользователь удалён", slog.String("subject_id", subjectID))
	return nil
}

// GetProfile возвращает профиль пользователя из хранилища.
func (s *ProvisioningService) GetProfile(ctx context.Context, subjectID string) (*model.UserProfile, error) {
	profile, err := s.repo.Get(ctx, subjectID)
	if err != nil {
		return nil, s.mapStoreError("чтение профиля", err)
	}
	return profile, nil
}

// Login аутентифицирует пользователя по username/password.
func (s *ProvisioningService) Login(ctx context.Context, username, password string) (*keycloak.TokenPair, error) {
	tokens, err := s.gateway.Login(ctx, username, password)
	if err != nil {
		return nil, s.mapGatewayError("логин", err)
	}
	return tokens, nil
}

// mapGatewayError переводит ошибки провайдера идентичности в ошибки
// сервисного слоя. BadRequestError пробрасывается как есть: handler-у
// нужны статус и сообщение провайдера.
func (s *ProvisioningService) mapGatewayError(op string, err error) error {
	switch {
	case errors.Is(err, keycloak.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	case keycloak.IsUnavailable(err):
		return fmt.Errorf("%s: %w", op, ErrIDPUnavailable)
	case errors.Is(err, keycloak.ErrRoleNotFound):
		return fmt.Errorf("%s: %w", op, ErrRoleNotFound)
	case errors.Is(err, keycloak.ErrInvalidCredentials):
		return fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// mapStoreError переводит ошибки хранилища профилей в ошибки сервисного слоя.
func (s *ProvisioningService) mapStoreError(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%s: %w", op, ErrAlreadyExists)
	case errors.Is(err, repository.ErrConstraint):
		return fmt.Errorf("%s: %w", op, ErrConstraint)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
