package model

import "time"

// User represents a local account allowed to open a sync session.
type User struct {
	Username     string    `json:"username"`
	PasswordHash []byte    `json:"-"`
	Active       bool      `json:"active"`
	Created      time.Time `json:"created"`
}
