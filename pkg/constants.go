package shared

const (
	ProjectID = "dogpatrol-project" // Can be overridden by env var in main if needed

	TopicRenameEvents = "topic-rename-events"

	CollectionAuth    = "auth"
	DocumentStravaCfg = "strava_config"

	StravaAPIBase  = "https://www.strava.com/api/v3"
	StravaTokenURL = "https://www.strava.com/oauth/token"
	StravaAuthURL  = "https://www.strava.com/oauth/authorize"
)
