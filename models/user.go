package models

import "time"

// Role names stored on user documents
const (
	RoleAdmin  = "admin"
	RoleClient = "client"
)

// User holds the structure for the user collection in mongo
type User struct {
	ID      string      `json:"_id" bson:"_id"`
	Details UserDetails `json:"user" bson:"user"`
	Version int32       `json:"__v" bson:"__v"`
}

// UserDetails holds the structure for the inner user structure as defined in the user collection in mongo
type UserDetails struct {
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	Password  string    `json:"-" bson:"password"`
	Role      string    `json:"role" bson:"role"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
	// PasswordChangedAt invalidates every access token issued before it
	PasswordChangedAt time.Time `json:"-" bson:"passwordChangedAt,omitempty"`
}

// PasswordReset holds a pending password reset request. Only the sha256 of
// the emailed token is stored.
type PasswordReset struct {
	ID        string     `bson:"_id"`
	Email     string     `bson:"email"`
	TokenHash string     `bson:"tokenHash"`
	ExpiresAt time.Time  `bson:"expiresAt"`
	CreatedAt time.Time  `bson:"createdAt"`
	UsedAt    *time.Time `bson:"usedAt,omitempty"`
}
