package model

import "time"

// LeadSourceEnrichment tags leads created by the enrichment worker.
const LeadSourceEnrichment = "enrichment"

// Lead is a scored sales contact derived from merged provider results.
// At most one lead exists per visitor.
type Lead struct {
	ID        string `json:"id"`
	ClientID  string `json:"client_id"`
	VisitorID string `json:"visitor_id"`
	UserID    string `json:"user_id"`
	CompanyID *int64 `json:"company_id,omitempty"`

	Email        string `json:"email,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
	Company      string `json:"company,omitempty"`
	Title        string `json:"title,omitempty"`
	Phone        string `json:"phone,omitempty"`
	LinkedInURL  string `json:"linkedin_url,omitempty"`
	TwitterURL   string `json:"twitter_url,omitempty"`
	FacebookURL  string `json:"facebook_url,omitempty"`
	InstagramURL string `json:"instagram_url,omitempty"`
	Website      string `json:"website,omitempty"`
	Location     string `json:"location,omitempty"`
	Industry     string `json:"industry,omitempty"`
	CompanySize  string `json:"company_size,omitempty"`
	Revenue      string `json:"revenue,omitempty"`
	Description  string `json:"description,omitempty"`

	Score     int       `json:"score"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}
