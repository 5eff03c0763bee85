package mocks

import (
	"context"
	"fmt"

	shared "github.com/dogpatrol/server/pkg"
)

// --- Mock Database ---
type MockDatabase struct {
	GetStravaConfigFunc    func(ctx context.Context) (*shared.StravaConfig, error)
	UpdateStravaConfigFunc func(ctx context.Context, data map[string]interface{}) error
}

func (m *MockDatabase) GetStravaConfig(ctx context.Context) (*shared.StravaConfig, error) {
	if m.GetStravaConfigFunc != nil {
		return m.GetStravaConfigFunc(ctx)
	}
	return nil, fmt.Errorf("strava config not found")
}

func (m *MockDatabase) UpdateStravaConfig(ctx context.Context, data map[string]interface{}) error {
	if m.UpdateStravaConfigFunc != nil {
		return m.UpdateStravaConfigFunc(ctx, data)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishFunc func(ctx context.Context, topicID string, data []byte) (string, error)
}

func (m *MockPublisher) Publish(ctx context.Context, topicID string, data []byte) (string, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topicID, data)
	}
	return "msg-id", nil
}
