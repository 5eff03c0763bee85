package shared

import (
	"context"
)

// --- Persistence Interfaces ---

// StravaConfig is the single credential record for the connected
// athlete: the long-lived refresh token plus the webhook verify token.
// The short-lived access token is never persisted.
type StravaConfig struct {
	RefreshToken string
	VerifyToken  string
}

type Database interface {
	GetStravaConfig(ctx context.Context) (*StravaConfig, error)
	UpdateStravaConfig(ctx context.Context, data map[string]interface{}) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	Publish(ctx context.Context, topicID string, data []byte) (string, error)
}
