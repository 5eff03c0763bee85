package strava

const (
	ObjectTypeActivity = "activity"
	AspectCreate       = "create"
	AspectUpdate       = "update"
	AspectDelete       = "delete"

	TypeWalk = "Walk"
)

// Activity is the subset of the Strava activity representation this
// system cares about. Both the detail endpoint and the athlete
// activity list return these fields.
type Activity struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Trainer        bool   `json:"trainer"`
	StartDate      string `json:"start_date"`       // UTC, ISO 8601
	StartDateLocal string `json:"start_date_local"` // local wall-clock time with a literal Z suffix
}

// WebhookEvent is one push delivery from a Strava webhook subscription.
type WebhookEvent struct {
	ObjectType     string `json:"object_type"`
	AspectType     string `json:"aspect_type"`
	ObjectID       int64  `json:"object_id"`
	OwnerID        int64  `json:"owner_id"`
	SubscriptionID int64  `json:"subscription_id"`
	EventTime      int64  `json:"event_time"`
}
