package model

import "time"

// Visitor is an anonymous website visit recorded by the tracking endpoint.
// IsEnriched only ever moves from false to true.
type Visitor struct {
	ID         string    `json:"id"`
	IPAddress  string    `json:"ip_address"`
	UserAgent  string    `json:"user_agent,omitempty"`
	PageURL    string    `json:"page_url"`
	SessionID  string    `json:"session_id"`
	ClientID   string    `json:"client_id"`
	CompanyID  *int64    `json:"company_id,omitempty"`
	IsEnriched bool      `json:"is_enriched"`
	CreatedAt  time.Time `json:"created_at"`
}
