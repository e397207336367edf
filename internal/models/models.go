package models

import "time"

type Role string

const (
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

type User struct {
	ID              int64
	Email           string
	PassHash        []byte
	Role            Role
	IsEmailVerified bool
	IsActive        bool
	CreatedAt       time.Time
}

type RefreshToken struct {
	ID        string
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	IP        string
	UserAgent string
}

// * IsExpired проверяет, истек ли срок действия токена
func (rt *RefreshToken) IsExpired() bool {
	return rt.ExpiresAt.Before(time.Now())
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

type Message struct {
	Email   string `json:"to"`
	Link    string `json:"link"`
	Purpose string `json:"purpose"`
}
