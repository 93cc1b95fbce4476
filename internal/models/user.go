package models

import "time"

// User is an account record. The engine itself only needs the ID to key a
// portfolio; the credential fields belong to the auth collaborator.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"passwordHash"`
	Salt         string    `json:"salt"`
	RegisteredAt time.Time `json:"registeredAt"`
}
