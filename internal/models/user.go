package models

import (
	"time"
)

// User is the principal behind a login. Only what the credential check needs is kept here.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
