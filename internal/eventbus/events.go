package eventbus

// Event types published by the subscription router and the broadcast cycle.
const (
	SubscriptionAdded   = "subscription.added"
	SubscriptionRemoved = "subscription.removed"
	BroadcastCompleted  = "broadcast.completed"
	BroadcastSkipped    = "broadcast.skipped"
	ConfigReloaded      = "config.reloaded"
)

type SubscriptionChange struct {
	Address string `json:"address"`
}

type BroadcastResult struct {
	CycleID   string `json:"cycle_id"`
	ContentID string `json:"content_id,omitempty"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Reason    string `json:"reason,omitempty"`
}

type ConfigChange struct {
	Sections []string `json:"sections"`
	Restart  []string `json:"restart,omitempty"`
}
