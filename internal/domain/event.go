package domain

import (
	"encoding/json"
	"time"
)

const EventEmployeeUpdated = "employee.updated"

type EmployeeUpdatedEvent struct {
	EventID        string         `json:"eventId"`
	AuthorizedUser AuthorizedUser `json:"authorizedUser"`
	OldEmployee    Employee       `json:"oldEmployee"`
	NewEmployee    Employee       `json:"newEmployee"`
	OccurredAt     time.Time      `json:"occurredAt"`
}

// OutboxMessage is written in the same transaction as the change it describes and
// published later by the dispatcher.
type OutboxMessage struct {
	ID          string          `json:"id"`
	Exchange    string          `json:"exchange"`
	RoutingKey  string          `json:"routingKey"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	LastError   *string         `json:"lastError"`
	CreatedAt   time.Time       `json:"createdAt"`
	PublishedAt *time.Time      `json:"publishedAt"`
}
