package database

import (
	"context"

	"cloud.google.com/go/firestore"

	shared "github.com/dogpatrol/server/pkg"
	storage "github.com/dogpatrol/server/pkg/storage/firestore"
)

// FirestoreAdapter provides database operations using Firestore
// It wraps our typed storage client
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client // internal typed wrapper
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) GetStravaConfig(ctx context.Context) (*shared.StravaConfig, error) {
	return a.storage.Auth().Doc(shared.DocumentStravaCfg).Get(ctx)
}

func (a *FirestoreAdapter) UpdateStravaConfig(ctx context.Context, data map[string]interface{}) error {
	return a.storage.Auth().Doc(shared.DocumentStravaCfg).Update(ctx, data)
}
