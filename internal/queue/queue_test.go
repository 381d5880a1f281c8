package queue

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/visitor-enrich/internal/resilience"
)

func TestDecodeJob(t *testing.T) {
	job, err := DecodeJob([]byte(`{"id":"j1","visitor_id":"v1","ip_address":"8.8.8.8","user_agent":"curl","client_id":"c1","user_id":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, "v1", job.VisitorID)
	assert.Equal(t, "8.8.8.8", job.IPAddress)
	assert.Equal(t, "curl", job.UserAgent)
	assert.Equal(t, "u1", job.UserID)
}

func TestDecodeJob_VisitorIDOnly(t *testing.T) {
	job, err := DecodeJob([]byte(`{"visitor_id":"v1","user_id":"u1"}`))
	require.NoError(t, err)
	assert.Equal(t, "v1", job.VisitorID)
	assert.Empty(t, job.IPAddress)
	assert.Empty(t, job.ClientID)
}

func TestDecodeJob_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"not json", `{"visitor_id":`, "decode"},
		{"missing visitor", `{"ip_address":"8.8.8.8","client_id":"c1"}`, "visitor_id"},
		{"blank visitor", `{"visitor_id":"  ","ip_address":"8.8.8.8"}`, "visitor_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJob([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedJob))
			assert.True(t, resilience.IsPermanent(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
