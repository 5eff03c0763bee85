package firestore

import (
	"cloud.google.com/go/firestore"

	shared "github.com/dogpatrol/server/pkg"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

// Auth returns the auth collection holding the single strava_config
// document: auth/strava_config
func (c *Client) Auth() *Collection[shared.StravaConfig] {
	return &Collection[shared.StravaConfig]{
		Ref:           c.fs.Collection(shared.CollectionAuth),
		ToFirestore:   StravaConfigToFirestore,
		FromFirestore: FirestoreToStravaConfig,
	}
}
