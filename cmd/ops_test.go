package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opsRequest(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestOpsRouter_Health(t *testing.T) {
	h := newOpsRouter(func(context.Context) error { return nil }, prometheus.NewRegistry(), []string{"*"})

	rec := opsRequest(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestOpsRouter_Ready(t *testing.T) {
	h := newOpsRouter(func(context.Context) error { return nil }, prometheus.NewRegistry(), nil)

	rec := opsRequest(t, h, "/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ready")
}

func TestOpsRouter_NotReady(t *testing.T) {
	h := newOpsRouter(func(context.Context) error { return eris.New("pool closed") }, prometheus.NewRegistry(), nil)

	rec := opsRequest(t, h, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unavailable", body["status"])
	assert.Contains(t, body["error"], "pool closed")
}

func TestOpsRouter_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "ops_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := newOpsRouter(func(context.Context) error { return nil }, reg, nil)

	rec := opsRequest(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ops_test_total 1")
}

func TestOpsRouter_UnknownRoute(t *testing.T) {
	h := newOpsRouter(func(context.Context) error { return nil }, prometheus.NewRegistry(), nil)
	assert.Equal(t, http.StatusNotFound, opsRequest(t, h, "/webhook").Code)
}
