package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickvault/tickvault/internal/config"
)

func newTestManager(t *testing.T) *metricsManager {
	t.Helper()

	cfg := config.MetricsConfig{
		Enable:   true,
		Path:     "/metrics",
		Interval: 10,
	}

	manager := NewManager(cfg, NewSystemTracker(t.TempDir()))
	require.NotNil(t, manager)
	return manager.(*metricsManager)
}

func TestNewManager(t *testing.T) {
	manager := newTestManager(t)

	// Manager is not started yet, so it's not healthy
	assert.False(t, manager.IsHealthy())
}

func TestNewManager_Disabled(t *testing.T) {
	cfg := config.MetricsConfig{
		Enable: false,
	}

	manager := NewManager(cfg, nil)
	require.NotNil(t, manager)

	_, ok := manager.(*noopManager)
	assert.True(t, ok, "disabled manager should be noopManager")
}

func TestNewManager_Defaults(t *testing.T) {
	cfg := config.MetricsConfig{
		Enable: true,
	}

	manager := NewManager(cfg, nil).(*metricsManager)

	assert.Equal(t, "/metrics", manager.config.Path)
	assert.Equal(t, 15*time.Second, manager.config.Interval)
	assert.Equal(t, "tickvault", manager.config.Namespace)
}

func TestRecordFrame(t *testing.T) {
	manager := newTestManager(t)

	manager.RecordFrame()
	manager.RecordFrame()

	assert.Equal(t, float64(2), testutil.ToFloat64(manager.framesTotal))
}

func TestRecordDecodedRecord(t *testing.T) {
	manager := newTestManager(t)

	manager.RecordDecodedRecord("bar")
	manager.RecordDecodedRecord("bar")
	manager.RecordDecodedRecord("quote")

	assert.Equal(t, float64(2), testutil.ToFloat64(manager.recordsTotal.WithLabelValues("bar")))
	assert.Equal(t, float64(1), testutil.ToFloat64(manager.recordsTotal.WithLabelValues("quote")))
}

func TestRecordDecodeError(t *testing.T) {
	manager := newTestManager(t)

	manager.RecordDecodeError()

	assert.Equal(t, float64(1), testutil.ToFloat64(manager.decodeErrorsTotal))
}

func TestRecordUpsert(t *testing.T) {
	manager := newTestManager(t)

	manager.RecordUpsert("table", true, 5*time.Millisecond)
	manager.RecordUpsert("table", true, 10*time.Millisecond)
	manager.RecordUpsert("journal", false, 2*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(manager.upsertsTotal.WithLabelValues("table", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(manager.upsertsTotal.WithLabelValues("journal", "failure")))
}

func TestRecordStreamAppend(t *testing.T) {
	manager := newTestManager(t)

	manager.RecordStreamAppend()

	assert.Equal(t, float64(1), testutil.ToFloat64(manager.streamAppendsTotal))
}

func TestUpdateGauges(t *testing.T) {
	manager := newTestManager(t)

	manager.UpdateOpenStreams(3)
	manager.UpdateBufferedRecords(42)

	assert.Equal(t, float64(3), testutil.ToFloat64(manager.openStreams))
	assert.Equal(t, float64(42), testutil.ToFloat64(manager.bufferedRecords))
}

func TestUpdateSystemMetrics(t *testing.T) {
	manager := newTestManager(t)

	manager.UpdateSystemMetrics(12.5, 1024, 2048, 4096)

	assert.Equal(t, 12.5, testutil.ToFloat64(manager.systemCPUUsage))
	assert.Equal(t, float64(1024), testutil.ToFloat64(manager.systemMemoryUsed))
	assert.Equal(t, float64(2048), testutil.ToFloat64(manager.dataDirDiskUsed))
	assert.Equal(t, float64(4096), testutil.ToFloat64(manager.dataDirDiskFree))
}

func TestGetMetricsHandler(t *testing.T) {
	manager := newTestManager(t)
	manager.RecordFrame()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	manager.GetMetricsHandler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "tickvault_capture_frames_total 1")
}

func TestStartStop(t *testing.T) {
	manager := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := manager.Start(ctx)
	require.NoError(t, err)
	assert.True(t, manager.IsHealthy())

	// Double start is rejected
	err = manager.Start(ctx)
	assert.Error(t, err)

	err = manager.Stop()
	require.NoError(t, err)
	assert.False(t, manager.IsHealthy())

	// Double stop is rejected
	err = manager.Stop()
	assert.Error(t, err)
}

func TestNoopManager(t *testing.T) {
	manager := NewManager(config.MetricsConfig{Enable: false}, nil)

	// None of these should panic
	manager.RecordFrame()
	manager.RecordDecodedRecord("bar")
	manager.RecordDecodeError()
	manager.RecordDroppedRecord()
	manager.RecordUpsert("table", true, time.Millisecond)
	manager.RecordStreamAppend()
	manager.UpdateOpenStreams(1)
	manager.UpdateBufferedRecords(1)
	manager.UpdateSystemMetrics(0, 0, 0, 0)

	assert.True(t, manager.IsHealthy())
	assert.NoError(t, manager.Start(context.Background()))
	assert.NoError(t, manager.Stop())
	assert.NotNil(t, manager.GetMetricsHandler())
}
