package models

import "time"

// Lead is a pool construction project tracked for a prospective client.
type Lead struct {
	ID               string    `json:"id"`
	Name             string    `json:"name,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Address          string    `json:"address,omitempty"`
	Budget           int64     `json:"budget"`
	Excavation       string    `json:"excavation,omitempty"`
	PoolDimensions   string    `json:"pool_dimensions,omitempty"`
	ParcelDimensions string    `json:"parcel_dimensions,omitempty"`
	Coronation       string    `json:"coronation,omitempty"`
	Interior         string    `json:"interior,omitempty"`
	Source           string    `json:"source,omitempty"`
	Status           string    `json:"status,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Lead statuses written by the relay.
const (
	LeadStatusNew      = "new"
	LeadStatusBudgeted = "budgeted"
)
