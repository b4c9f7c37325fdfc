package models

import "time"

// UserRole — роль аккаунта. Идентичность поставляется внешним auth-сервисом,
// здесь хранится минимум, нужный движку для проверок владения и прав.
type UserRole string

const (
	RoleAdmin       UserRole = "admin"
	RoleOrganizer   UserRole = "organizer"
	RoleParticipant UserRole = "participant"
	RoleJudge       UserRole = "judge"
)

// User — аккаунт (автор, голосующий, судья или организатор).
type User struct {
	ID           int       `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	DisplayName  string    `json:"display_name" db:"display_name"`
	Wallet       *string   `json:"wallet,omitempty" db:"wallet"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         UserRole  `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
