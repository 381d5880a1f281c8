package model

// EnrichmentJob is the unit of work emitted once per new visitor.
type EnrichmentJob struct {
	ID        string `json:"id"`
	VisitorID string `json:"visitor_id"`
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent,omitempty"`
	ClientID  string `json:"client_id"`
	UserID    string `json:"user_id"`

	// Attempt is the 1-based delivery attempt reported by the transport.
	Attempt int `json:"-"`
}

// JobState is a step in the enrichment worker's state machine.
type JobState string

const (
	JobStateReceived          JobState = "received"
	JobStateResolvingIdentity JobState = "resolving_identity"
	JobStateFanningOut        JobState = "fanning_out"
	JobStateMerging           JobState = "merging"
	JobStateLeadCreated       JobState = "lead_created"
	JobStateNoLead            JobState = "no_lead"
	JobStateMarkEnriched      JobState = "mark_enriched"
	JobStateDone              JobState = "done"
	JobStateFailed            JobState = "failed"
)

// Terminal reports whether no further transitions follow s.
func (s JobState) Terminal() bool {
	return s == JobStateDone || s == JobStateFailed
}
