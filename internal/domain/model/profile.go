// Пакет model — доменные модели User Module.
package model

import "time"

// Gender — пол пользователя.
type Gender string

// Допустимые значения пола.
const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

// IsValid проверяет, является ли значение допустимым полом.
func (g Gender) IsValid() bool {
	switch g {
	case GenderMale, GenderFemale, GenderOther:
		return true
	}
	return false
}

// ActivityLevel — уровень физической активности.
type ActivityLevel string

// Допустимые уровни активности.
const (
	ActivitySedentary  ActivityLevel = "SEDENTARY"
	ActivityLight      ActivityLevel = "LIGHT"
	ActivityModerate   ActivityLevel = "MODERATE"
	ActivityActive     ActivityLevel = "ACTIVE"
	ActivityVeryActive ActivityLevel = "VERY_ACTIVE"
)

// IsValid проверяет, является ли значение допустимым уровнем активности.
func (a ActivityLevel) IsValid() bool {
	switch a {
	case ActivitySedentary, ActivityLight, ActivityModerate, ActivityActive, ActivityVeryActive:
		return true
	}
	return false
}

// Goal — цель пользователя по питанию.
type Goal string

// Допустимые цели.
const (
	GoalLoseWeight Goal = "LOSE_WEIGHT"
	GoalMaintain   Goal = "MAINTAIN"
	GoalGainWeight Goal = "GAIN_WEIGHT"
	GoalGainMuscle Goal = "GAIN_MUSCLE"
)

// IsValid проверяет, является ли значение допустимой целью.
func (g Goal) IsValid() bool {
	switch g {
	case GoalLoseWeight, GoalMaintain, GoalGainWeight, GoalGainMuscle:
		return true
	}
	return false
}

// UserProfile — профиль питания пользователя.
// Хранится в таблице user_profiles. Первичный ключ — SubjectID,
// идентификатор аккаунта в Keycloak (sub). Суррогатного ключа нет:
// профиль не существует без аккаунта в IdP, связь поддерживает
// ProvisioningService, а не БД.
type UserProfile struct {
	// SubjectID — Keycloak user ID (sub), первичный ключ
	SubjectID string
	// Username — имя пользователя (кэшировано из Keycloak)
	Username string
	// Email — адрес электронной почты (уникальный)
	Email string
	// FirstName — имя
	FirstName string
	// LastName — фамилия
	LastName string
	// BirthDate — дата рождения (должна быть в прошлом)
	BirthDate *time.Time
	// Gender — пол (MALE, FEMALE, OTHER)
	Gender Gender
	// HeightCm — рост в сантиметрах (> 0)
	HeightCm int
	// WeightKg — вес в килограммах (> 0)
	WeightKg int
	// ActivityLevel — уровень физической активности
	ActivityLevel ActivityLevel
	// Goal — цель по питанию
	Goal Goal
	// Allergies — аллергии (множество строк)
	Allergies []string
	// DietaryPreferences — пищевые предпочтения (множество строк)
	DietaryPreferences []string
	// CreatedAt — время создания записи (устанавливается один раз)
	CreatedAt time.Time
	// UpdatedAt — время последнего изменения
	UpdatedAt time.Time
}
