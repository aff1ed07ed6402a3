package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller is the already authenticated identity issuing a request
type Caller struct {
	AccountID uuid.UUID
	Role      Role
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}
