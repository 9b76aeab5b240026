package tasks

// Task types.
const (
	TypeResolveLocations = "resolve:locations"
	TypeApplySelection   = "resolve:selection"
	TypeHealthCheck      = "health:check"
)

// Queue names, matching config.DefaultQueuePriorities.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// ResolvePayload asks the worker to resolve every unresolved group.
type ResolvePayload struct {
	Concurrency int `json:"concurrency,omitempty"`
}

// SelectionPayload finalizes an operator's candidate choice for one group.
type SelectionPayload struct {
	ParishID     string `json:"parish_id"`
	LocationName string `json:"location_name"`
	Index        int    `json:"index"`
}
