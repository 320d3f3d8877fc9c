package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	s := NewServer(":0", nil)

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, 200, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleStatus(t *testing.T) {
	s := NewServer(":0", nil)
	s.UpdateStatus(map[string]interface{}{
		"pending_swaps": 3,
		"connected":     true,
	})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	require.Equal(t, 200, rec.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.EqualValues(t, 3, doc["pending_swaps"])
	require.Equal(t, true, doc["connected"])
	require.Contains(t, doc, "uptime_seconds")
}

func TestUpdateStatusMerges(t *testing.T) {
	s := NewServer(":0", nil)
	s.UpdateStatus(map[string]interface{}{"a": 1})
	s.UpdateStatus(map[string]interface{}{"b": 2})
	s.UpdateStatus(map[string]interface{}{"a": 3})

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.EqualValues(t, 3, doc["a"])
	require.EqualValues(t, 2, doc["b"])
}
