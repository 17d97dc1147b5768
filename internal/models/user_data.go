package models

import "time"

// Kinds of encrypted per-user records
const (
	UserDataKindProfile = "profile"
	UserDataKindBroker  = "broker"
)

// EncryptedUserData is an opaque ciphertext owned by a user.
// Ciphertext is salt || iv || payload || tag, base64-encoded.
type EncryptedUserData struct {
	UserID     string    `db:"user_id"`
	Kind       string    `db:"kind"`
	Ciphertext string    `db:"ciphertext"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// BrokerCredentials are the per-user credentials issued by the broker
// aggregation API. UserID is the broker-side user id.
type BrokerCredentials struct {
	UserID       string    `json:"user_id"`
	UserSecret   string    `json:"user_secret"`
	RegisteredAt time.Time `json:"registered_at"`
}
