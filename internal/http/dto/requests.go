package dto

// LoginRequest exchanges an operator API key for a JWT. The real partner
// platform resolves principals upstream; this surface exists for the
// administrative dashboard.
type LoginRequest struct {
	ActorID  string `json:"actor_id"`
	TenantID string `json:"tenant_id"`
	APIKey   string `json:"api_key"`
}

// SubscriptionFilter is the wire form of a live-stream filter. Empty
// fields match everything.
type SubscriptionFilter struct {
	TenantID string   `json:"tenant_id,omitempty"`
	Category string   `json:"category,omitempty"`
	Actions  []string `json:"actions,omitempty"`
}

// WSClientMessage is one client-invoked operation on the live stream.
type WSClientMessage struct {
	Type   string             `json:"type"` // subscribe / update_filters / unsubscribe
	Filter SubscriptionFilter `json:"filter"`
}
