package firestore

import (
	shared "github.com/dogpatrol/server/pkg"
)

// Helper to safely get string from map
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// --- StravaConfig Converters ---

func StravaConfigToFirestore(c *shared.StravaConfig) map[string]interface{} {
	return map[string]interface{}{
		"refresh_token": c.RefreshToken,
		"verify_token":  c.VerifyToken,
	}
}

func FirestoreToStravaConfig(m map[string]interface{}) *shared.StravaConfig {
	return &shared.StravaConfig{
		RefreshToken: getString(m, "refresh_token"),
		VerifyToken:  getString(m, "verify_token"),
	}
}
