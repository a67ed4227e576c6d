package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/mgnetworking/nutritrack/user-module/internal/domain/model"
	"github.com/mgnetworking/nutritrack/user-module/internal/keycloak"
	"github.com/mgnetworking/nutritrack/user-module/internal/repository"
)

// discardLogger — логгер, ничего не пишущий.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGateway — управляемый фейк провайдера идентичности.
// Записывает вызовы и возвращает сконфигурированные результаты.
type fakeGateway struct {
	// Конфигурация ответов
	existsByUsername    bool
	existsByUsernameErr error
	exists              bool
	existsErr           error
	createSubjectID     string
	createErr           error
	updateChanged       bool
	updateErr           error
	deleteErr           error
	loginTokens         *keycloak.TokenPair
	loginErr            error
	realmRoles          []keycloak.Role
	clientRoles         []keycloak.Role
	rolesErr            error

	// Запись вызовов
	createCalls       []keycloak.CreateAccountParams
	updateCalls       []keycloak.UpdateAccountParams
	deleteCalls       []string
	loginCalls        []string
	assignRealmCalls  [][]string
	revokeRealmCalls  [][]string
	assignClientCalls [][]string
	revokeClientCalls [][]string
}

func (g *fakeGateway) AccountExists(_ context.Context, _ string) (bool, error) {
	return g.exists, g.existsErr
}

func (g *fakeGateway) AccountExistsByUsername(_ context.Context, _ string) (bool, error) {
	return g.existsByUsername, g.existsByUsernameErr
}

func (g *fakeGateway) CreateAccount(_ context.Context, params keycloak.CreateAccountParams) (string, error) {
	g.createCalls = append(g.createCalls, params)
	if g.createErr != nil {
		return "", g.createErr
	}
	return g.createSubjectID, nil
}

func (g *fakeGateway) UpdateAccount(_ context.Context, _ string, params keycloak.UpdateAccountParams) (bool, error) {
	g.updateCalls = append(g.updateCalls, params)
	if g.updateErr != nil {
		return false, g.updateErr
	}
	return g.updateChanged, nil
}

func (g *fakeGateway) DeleteAccount(_ context.Context, subjectID string) error {
	g.deleteCalls = append(g.deleteCalls, subjectID)
	return g.deleteErr
}

func (g *fakeGateway) Login(_ context.Context, username, _ string) (*keycloak.TokenPair, error) {
	g.loginCalls = append(g.loginCalls, username)
	if g.loginErr != nil {
		return nil, g.loginErr
	}
	return g.loginTokens, nil
}

func (g *fakeGateway) ListRealmRoles(_ context.Context) ([]keycloak.Role, error) {
	return g.realmRoles, g.rolesErr
}

func (g *fakeGateway) ListClientRoles(_ context.Context, _ string) ([]keycloak.Role, error) {
	return g.clientRoles, g.rolesErr
}

func (g *fakeGateway) AssignRealmRoles(_ context.Context, _ string, roleNames []string) error {
	g.assignRealmCalls = append(g.assignRealmCalls, roleNames)
	return g.rolesErr
}

func (g *fakeGateway) RevokeRealmRoles(_ context.Context, _ string, roleNames []string) error {
	g.revokeRealmCalls = append(g.revokeRealmCalls, roleNames)
	return g.rolesErr
}

func (g *fakeGateway) AssignClientRoles(_ context.Context, _, _ string, roleNames []string) error {
	g.assignClientCalls = append(g.assignClientCalls, roleNames)
	return g.rolesErr
}

func (g *fakeGateway) RevokeClientRoles(_ context.Context, _, _ string, roleNames []string) error {
	g.revokeClientCalls = append(g.revokeClientCalls, roleNames)
	return g.rolesErr
}

// fakeRepo — фейк хранилища профилей.
type fakeRepo struct {
	profiles map[string]*model.UserProfile

	createErr error
	updateErr error
	deleteErr error
	getErr    error

	createCalls int
	updateCalls int
	deleteCalls []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{profiles: make(map[string]*model.UserProfile)}
}

func (r *fakeRepo) Get(_ context.Context, subjectID string) (*model.UserProfile, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	p, ok := r.profiles[subjectID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

func (r *fakeRepo) Create(_ context.Context, profile *model.UserProfile) error {
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	r.profiles[profile.SubjectID] = profile
	return nil
}

func (r *fakeRepo) Update(_ context.Context, profile *model.UserProfile) error {
	r.updateCalls++
	if r.updateErr != nil {
		return r.updateErr
	}
	if _, ok := r.profiles[profile.SubjectID]; !ok {
		return repository.ErrNotFound
	}
	r.profiles[profile.SubjectID] = profile
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, subjectID string) error {
	r.deleteCalls = append(r.deleteCalls, subjectID)
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.profiles, subjectID)
	return nil
}

func registerParams() RegisterParams {
	return RegisterParams{
		Username: "jdoe",
		Email:    "jdoe@example.com",
		Password: "s3cret",
		Profile: model.UserProfile{
			FirstName:     "Иван",
			LastName:      "Петров",
			Gender:        model.GenderMale,
			HeightCm:      180,
			WeightKg:      75,
			ActivityLevel: model.ActivityModerate,
			Goal:          model.GoalMaintain,
		},
	}
}

func TestRegister_Success(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{
		createSubjectID: subjectID,
		loginTokens:     &keycloak.TokenPair{AccessToken: "at", RefreshToken: "rt"},
	}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	result, err := svc.Register(context.Background(), registerParams())
	if err != nil {
		t.Fatalf("Register() ошибка: %v", err)
	}

	if result.Profile.SubjectID != subjectID {
		t.Errorf("SubjectID = %q, ожидается %q", result.Profile.SubjectID, subjectID)
	}
	if result.Profile.Username != "jdoe" || result.Profile.Email != "jdoe@example.com" {
		t.Errorf("профиль не заполнен из параметров: %+v", result.Profile)
	}
	if result.Tokens == nil || result.Tokens.AccessToken != "at" {
		t.Errorf("ожидалась пара токенов, получено: %+v", result.Tokens)
	}
	if result.LoginErr != nil {
		t.Errorf("LoginErr должен быть nil: %v", result.LoginErr)
	}
	if repo.createCalls != 1 {
		t.Errorf("ожидался 1 вызов repo.Create, было %d", repo.createCalls)
	}
	if len(gw.createCalls) != 1 || gw.createCalls[0].Password != "s3cret" {
		t.Errorf("CreateAccount вызван неверно: %+v", gw.createCalls)
	}
}

func TestRegister_UsernameTaken(t *testing.T) {
	gw := &fakeGateway{existsByUsername: true}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Register(context.Background(), registerParams())
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("ожидался ErrAlreadyExists, получено: %v", err)
	}
	// Никаких мутаций при занятом username
	if len(gw.createCalls) != 0 {
		t.Errorf("CreateAccount не должен вызываться, было %d вызовов", len(gw.createCalls))
	}
	if repo.createCalls != 0 {
		t.Errorf("repo.Create не должен вызываться, было %d вызовов", repo.createCalls)
	}
}

func TestRegister_PartialFailure(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{createSubjectID: subjectID}
	repo := newFakeRepo()
	repo.createErr = repository.ErrUnavailable
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Register(context.Background(), registerParams())

	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("ожидался *PartialFailureError, получено: %v", err)
	}
	if partial.Stage != StageCreate {
		t.Errorf("Stage = %q, ожидается %q", partial.Stage, StageCreate)
	}
	if partial.SubjectID != subjectID {
		t.Errorf("SubjectID = %q, ожидается %q", partial.SubjectID, subjectID)
	}
	// Компенсирующего удаления аккаунта нет
	if len(gw.deleteCalls) != 0 {
		t.Errorf("DeleteAccount не должен вызываться, было: %v", gw.deleteCalls)
	}
}

func TestRegister_LoginFailureDoesNotFailRegistration(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{
		createSubjectID: subjectID,
		loginErr:        keycloak.ErrUnavailable,
	}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	result, err := svc.Register(context.Background(), registerParams())
	if err != nil {
		t.Fatalf("Register() не должен падать из-за логина: %v", err)
	}
	if result.LoginErr == nil {
		t.Error("ожидался заполненный LoginErr")
	}
	if result.Tokens != nil {
		t.Errorf("токенов быть не должно: %+v", result.Tokens)
	}
	if result.Profile.SubjectID != subjectID {
		t.Errorf("профиль должен быть создан: %+v", result.Profile)
	}
}

func TestRegister_IDPUnavailable(t *testing.T) {
	gw := &fakeGateway{createErr: keycloak.ErrUnavailable}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Register(context.Background(), registerParams())
	if !errors.Is(err, ErrIDPUnavailable) {
		t.Errorf("ожидался ErrIDPUnavailable, получено: %v", err)
	}
}

func TestRegister_ConflictFromIDP(t *testing.T) {
	gw := &fakeGateway{createErr: keycloak.ErrConflict}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Register(context.Background(), registerParams())
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("ожидался ErrAlreadyExists, получено: %v", err)
	}
}

func TestUpdate_Success(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{exists: true, updateChanged: true}
	repo := newFakeRepo()
	repo.profiles[subjectID] = &model.UserProfile{SubjectID: subjectID, WeightKg: 80}
	svc := NewProvisioningService(gw, repo, discardLogger())

	profile := model.UserProfile{
		SubjectID:     subjectID,
		Email:         "new@example.com",
		Gender:        model.GenderMale,
		HeightCm:      180,
		WeightKg:      75,
		ActivityLevel: model.ActivityModerate,
		Goal:          model.GoalMaintain,
	}
	got, err := svc.Update(context.Background(), UpdateParams{Profile: profile})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if got.WeightKg != 75 {
		t.Errorf("WeightKg = %d, ожидается 75", got.WeightKg)
	}
	if repo.updateCalls != 1 {
		t.Errorf("ожидался 1 вызов repo.Update, было %d", repo.updateCalls)
	}
}

func TestUpdate_AccountNotFound(t *testing.T) {
	gw := &fakeGateway{exists: false}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Update(context.Background(), UpdateParams{
		Profile: model.UserProfile{SubjectID: uuid.New().String()},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}
	// Никаких мутаций
	if len(gw.updateCalls) != 0 || repo.updateCalls != 0 {
		t.Error("мутаций при отсутствующем аккаунте быть не должно")
	}
}

func TestUpdate_BlankPasswordNotForwarded(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{exists: true, updateChanged: true}
	repo := newFakeRepo()
	repo.profiles[subjectID] = &model.UserProfile{SubjectID: subjectID}
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Update(context.Background(), UpdateParams{
		Password: "",
		Profile:  model.UserProfile{SubjectID: subjectID, Email: "x@example.com"},
	})
	if err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	if len(gw.updateCalls) != 1 {
		t.Fatalf("ожидался 1 вызов UpdateAccount, было %d", len(gw.updateCalls))
	}
	if gw.updateCalls[0].Password != "" {
		t.Errorf("пустой пароль не должен передаваться провайдеру: %+v", gw.updateCalls[0])
	}
}

func TestUpdate_PartialFailure(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{exists: true, updateChanged: true}
	repo := newFakeRepo()
	repo.updateErr = repository.ErrUnavailable
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Update(context.Background(), UpdateParams{
		Profile: model.UserProfile{SubjectID: subjectID},
	})

	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("ожидался *PartialFailureError, получено: %v", err)
	}
	if partial.Stage != StageUpdate {
		t.Errorf("Stage = %q, ожидается %q", partial.Stage, StageUpdate)
	}
	if partial.SubjectID != subjectID {
		t.Errorf("SubjectID = %q, ожидается %q", partial.SubjectID, subjectID)
	}
}

func TestUpdate_StoreFailureWithoutAccountChange(t *testing.T) {
	// Аккаунт не менялся (нечего менять) — отказ хранилища не частичный
	subjectID := uuid.New().String()
	gw := &fakeGateway{exists: true, updateChanged: false}
	repo := newFakeRepo()
	repo.updateErr = repository.ErrNotFound
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Update(context.Background(), UpdateParams{
		Profile: model.UserProfile{SubjectID: subjectID},
	})

	var partial *PartialFailureError
	if errors.As(err, &partial) {
		t.Fatalf("частичного отказа быть не должно: %v", err)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{exists: true}
	repo := newFakeRepo()
	repo.profiles[subjectID] = &model.UserProfile{SubjectID: subjectID}
	svc := NewProvisioningService(gw, repo, discardLogger())

	if err := svc.Delete(context.Background(), subjectID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}

	// Профиль удаляется раньше аккаунта
	if len(repo.deleteCalls) != 1 || repo.deleteCalls[0] != subjectID {
		t.Errorf("repo.Delete: ожидался 1 вызов для %s, было: %v", subjectID, repo.deleteCalls)
	}
	if len(gw.deleteCalls) != 1 || gw.deleteCalls[0] != subjectID {
		t.Errorf("DeleteAccount: ожидался 1 вызов для %s, было: %v", subjectID, gw.deleteCalls)
	}
}

func TestDelete_AccountNotFound(t *testing.T) {
	gw := &fakeGateway{exists: false}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	err := svc.Delete(context.Background(), uuid.New().String())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}
	if len(repo.deleteCalls) != 0 || len(gw.deleteCalls) != 0 {
		t.Error("удалений при отсутствующем аккаунте быть не должно")
	}
}

func TestDelete_StoreFailureKeepsAccount(t *testing.T) {
	subjectID := uuid.New().String()
	gw := &fakeGateway{exists: true}
	repo := newFakeRepo()
	repo.deleteErr = repository.ErrUnavailable
	svc := NewProvisioningService(gw, repo, discardLogger())

	err := svc.Delete(context.Background(), subjectID)
	if err == nil {
		t.Fatal("ожидалась ошибка")
	}
	// Аккаунт не трогаем, пока профиль не удалён
	if len(gw.deleteCalls) != 0 {
		t.Errorf("DeleteAccount не должен вызываться: %v", gw.deleteCalls)
	}
}

func TestGetProfile_NotFound(t *testing.T) {
	gw := &fakeGateway{}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.GetProfile(context.Background(), uuid.New().String())
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("ожидался ErrNotFound, получено: %v", err)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	gw := &fakeGateway{loginErr: keycloak.ErrInvalidCredentials}
	repo := newFakeRepo()
	svc := NewProvisioningService(gw, repo, discardLogger())

	_, err := svc.Login(context.Background(), "jdoe", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("ожидался ErrInvalidCredentials, получено: %v", err)
	}
}

// --- RoleService ---

func TestRoleService_EmptyRoleList(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewRoleService(gw, discardLogger())
	ctx := context.Background()
	subjectID := uuid.New().String()

	tests := []struct {
		name string
		call func() error
	}{
		{"assign realm", func() error { return svc.AssignRealmRoles(ctx, subjectID, nil) }},
		{"revoke realm", func() error { return svc.RevokeRealmRoles(ctx, subjectID, []string{}) }},
		{"assign client", func() error { return svc.AssignClientRoles(ctx, subjectID, "app", nil) }},
		{"revoke client", func() error { return svc.RevokeClientRoles(ctx, subjectID, "app", nil) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrValidation) {
				t.Errorf("ожидался ErrValidation, получено: %v", err)
			}
		})
	}

	// Провайдер не вызывался
	if len(gw.assignRealmCalls)+len(gw.revokeRealmCalls)+len(gw.assignClientCalls)+len(gw.revokeClientCalls) != 0 {
		t.Error("вызовов провайдера при невалидном списке быть не должно")
	}
}

func TestRoleService_BlankRoleName(t *testing.T) {
	gw := &fakeGateway{}
	svc := NewRoleService(gw, discardLogger())

	err := svc.AssignRealmRoles(context.Background(), uuid.New().String(), []string{"valid", ""})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("ожидался ErrValidation, получено: %v", err)
	}
	if len(gw.assignRealmCalls) != 0 {
		t.Error("вызовов провайдера быть не должно")
	}
}

func TestRoleService_RoleNotFound(t *testing.T) {
	gw := &fakeGateway{rolesErr: keycloak.ErrRoleNotFound}
	svc := NewRoleService(gw, discardLogger())

	err := svc.AssignRealmRoles(context.Background(), uuid.New().String(), []string{"no-such"})
	if !errors.Is(err, ErrRoleNotFound) {
		t.Errorf("ожидался ErrRoleNotFound, получено: %v", err)
	}
}

func TestRoleService_ListRealmRoles(t *testing.T) {
	gw := &fakeGateway{realmRoles: []keycloak.Role{{ID: "r1", Name: "nutritrack-user"}}}
	svc := NewRoleService(gw, discardLogger())

	roles, err := svc.ListRealmRoles(context.Background())
	if err != nil {
		t.Fatalf("ListRealmRoles() ошибка: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "nutritrack-user" {
		t.Errorf("неожиданный список ролей: %+v", roles)
	}
}
