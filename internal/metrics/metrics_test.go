package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getMetricsBody(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_New(t *testing.T) {
	m := New()
	assert.NotNil(t, m.CommandsTotal)
	assert.NotNil(t, m.ReclaimsTotal)
	assert.NotNil(t, m.ResetRunsTotal)
	assert.NotNil(t, m.ResetDuration)
}

func TestMetrics_RecordCommand(t *testing.T) {
	m := New()
	m.RecordCommand("addtask", "ok")
	m.RecordCommand("addtask", "ok")
	m.RecordCommand("removetask", "refused")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `focusbot_commands_total{command="addtask",status="ok"} 2`)
	assert.Contains(t, body, `focusbot_commands_total{command="removetask",status="refused"} 1`)
}

func TestMetrics_RecordReclaim(t *testing.T) {
	m := New()
	m.RecordReclaim("allowed")
	m.RecordReclaim("refused")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `focusbot_slot_reclaims_total{outcome="allowed"} 1`)
	assert.Contains(t, body, `focusbot_slot_reclaims_total{outcome="refused"} 1`)
}

func TestMetrics_RecordResetRun(t *testing.T) {
	m := New()
	m.RecordResetRun("scheduled")
	m.RecordResetRun("forced")

	body := getMetricsBody(t, m)
	assert.Contains(t, body, `focusbot_reset_runs_total{trigger="scheduled"} 1`)
	assert.Contains(t, body, `focusbot_reset_runs_total{trigger="forced"} 1`)
}

func TestMetrics_SetSessionGauges(t *testing.T) {
	m := New()
	m.SetSessionGauges(4, 1)

	body := getMetricsBody(t, m)
	assert.Contains(t, body, "focusbot_active_sessions 4")
	assert.Contains(t, body, "focusbot_grace_sessions 1")
}
