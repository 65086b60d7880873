// Package conversation groups channel messages into per-customer
// conversations.
package conversation

import "time"

// Status is the conversation lifecycle state. Only one active
// conversation exists per (agent, customer, channel); closing it allows
// a new one to start.
type Status string

const (
	StatusActive    Status = "active"
	StatusEscalated Status = "escalated"
	StatusClosed    Status = "closed"
)

// Conversation is one customer's message thread on one channel.
type Conversation struct {
	ID         string         `json:"id"`
	AgentID    string         `json:"agent_id"`
	TenantID   string         `json:"tenant_id"`
	CustomerID string         `json:"customer_id"`
	Channel    string         `json:"channel"`
	Status     Status         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
