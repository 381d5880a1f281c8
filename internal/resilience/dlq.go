package resilience

import (
	"time"

	"github.com/sells-group/visitor-enrich/internal/model"
)

// DLQEntry is an enrichment job that a transport gave up on.
type DLQEntry struct {
	ID           string              `json:"id"`
	Job          model.EnrichmentJob `json:"job"`
	Error        string              `json:"error"`
	ErrorType    string              `json:"error_type"`
	Attempts     int                 `json:"attempts"`
	MaxAttempts  int                 `json:"max_attempts"`
	LastFailedAt time.Time           `json:"last_failed_at"`
}

// CanRetry reports whether a transient entry still has attempts left.
func (e *DLQEntry) CanRetry() bool {
	return e.ErrorType != ErrorTypePermanent && e.Attempts < e.MaxAttempts
}
