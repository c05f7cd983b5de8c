package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skylinesee/reeQute/entity"
)

func TestRecordAndTasks(t *testing.T) {
	m := New()

	m.Record(&entity.AuditEvent{Kind: entity.AuditCodeRequested})
	m.Record(&entity.AuditEvent{Kind: entity.AuditCodeRequested})
	m.Record(&entity.AuditEvent{Kind: entity.AuditRevoked})
	assert.Equal(t, 2.0, testutil.ToFloat64(m.transitions.WithLabelValues("code_requested")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("revoked")))

	m.TaskDone("deliver-code", nil, time.Millisecond)
	m.TaskDone("deliver-code", errors.New("boom"), time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("deliver-code", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.tasks.WithLabelValues("deliver-code", "error")))

	m.QueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
}

func TestHandler(t *testing.T) {
	m := New()
	m.Record(&entity.AuditEvent{Kind: entity.AuditCleared})

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `reequte_verification_transitions_total{kind="cleared"} 1`)
}
