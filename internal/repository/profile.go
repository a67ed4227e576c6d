// profile.go — репозиторий профилей питания (таблица user_profiles).
// Репозиторий ничего не знает про Keycloak: соответствие subject_id
// реальному аккаунту IdP — инвариант ProvisioningService.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mgnetworking/nutritrack/user-module/internal/domain/model"
)

// ProfileRepository — интерфейс CRUD для таблицы user_profiles.
type ProfileRepository interface {
	// Get возвращает профиль по subject ID.
	Get(ctx context.Context, subjectID string) (*model.UserProfile, error)
	// Create создаёт новый профиль.
	Create(ctx context.Context, profile *model.UserProfile) error
	// Update обновляет профиль; updated_at устанавливается в now().
	Update(ctx context.Context, profile *model.UserProfile) error
	// Delete удаляет профиль. Идемпотентен: отсутствие записи — не ошибка.
	Delete(ctx context.Context, subjectID string) error
}

// profileRepo — реализация ProfileRepository.
type profileRepo struct {
	db DBTX
}

// NewProfileRepository создаёт репозиторий профилей.
func NewProfileRepository(db DBTX) ProfileRepository {
	return &profileRepo{db: db}
}

const profileColumns = `subject_id, username, email, first_name, last_name,
	birth_date, gender, height_cm, weight_kg, activity_level, goal,
	allergies, dietary_preferences, created_at, updated_at`

// scanProfile сканирует строку результата в модель UserProfile.
func scanProfile(row pgx.Row) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	err := row.Scan(
		&p.SubjectID, &p.Username, &p.Email, &p.FirstName, &p.LastName,
		&p.BirthDate, &p.Gender, &p.HeightCm, &p.WeightKg, &p.ActivityLevel, &p.Goal,
		&p.Allergies, &p.DietaryPreferences, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *profileRepo) Get(ctx context.Context, subjectID string) (*model.UserProfile, error) {
	query := fmt.Sprintf(`SELECT %s FROM user_profiles WHERE subject_id = $1`, profileColumns)
	p, err := scanProfile(r.db.QueryRow(ctx, query, subjectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyStoreError("получение профиля", err)
	}
	return p, nil
}

func (r *profileRepo) Create(ctx context.Context, profile *model.UserProfile) error {
	query := `
		INSERT INTO user_profiles (subject_id, username, email, first_name, last_name,
			birth_date, gender, height_cm, weight_kg, activity_level, goal,
			allergies, dietary_preferences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		profile.SubjectID, profile.Username, profile.Email, profile.FirstName, profile.LastName,
		profile.BirthDate, profile.Gender, profile.HeightCm, profile.WeightKg,
		profile.ActivityLevel, profile.Goal,
		profile.Allergies, profile.DietaryPreferences,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: профиль с таким subject_id или email уже существует", ErrConflict)
		}
		return classifyStoreError("создание профиля", err)
	}
	return nil
}

func (r *profileRepo) Update(ctx context.Context, profile *model.UserProfile) error {
	query := `
		UPDATE user_profiles
		SET username = $2, email = $3, first_name = $4, last_name = $5,
			birth_date = $6, gender = $7, height_cm = $8, weight_kg = $9,
			activity_level = $10, goal = $11, allergies = $12,
			dietary_preferences = $13, updated_at = now()
		WHERE subject_id = $1
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		profile.SubjectID, profile.Username, profile.Email, profile.FirstName, profile.LastName,
		profile.BirthDate, profile.Gender, profile.HeightCm, profile.WeightKg,
		profile.ActivityLevel, profile.Goal,
		profile.Allergies, profile.DietaryPreferences,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email уже занят другим профилем", ErrConflict)
		}
		return classifyStoreError("обновление профиля", err)
	}
	return nil
}

func (r *profileRepo) Delete(ctx context.Context, subjectID string) error {
	// Идемпотентное удаление: ноль затронутых строк — тоже успех
	_, err := r.db.Exec(ctx, `DELETE FROM user_profiles WHERE subject_id = $1`, subjectID)
	if err != nil {
		return classifyStoreError("удаление профиля", err)
	}
	return nil
}

// classifyStoreError отображает ошибку pgx в таксономию репозитория.
func classifyStoreError(op string, err error) error {
	switch {
	case isConstraintViolation(err):
		return fmt.Errorf("%s: %w: %v", op, ErrConstraint, err)
	case isTransient(err):
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
