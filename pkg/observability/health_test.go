package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pingOK(context.Context) error   { return nil }
func pingDown(context.Context) error { return errors.New("connection refused") }

func TestHealthRegistry_Empty(t *testing.T) {
	h := NewHealthRegistry().GetOverallHealth(context.Background())

	assert.Equal(t, HealthStatusHealthy, h.Status)
	assert.Empty(t, h.Checks)
	assert.False(t, h.Timestamp.IsZero())
}

func TestHealthRegistry_WorstStatusWins(t *testing.T) {
	tests := []struct {
		name     string
		dbPing   func(context.Context) error
		redis    func(context.Context) error
		expected HealthStatus
	}{
		{"all healthy", pingOK, pingOK, HealthStatusHealthy},
		{"redis down", pingOK, pingDown, HealthStatusDegraded},
		{"database down", pingDown, pingOK, HealthStatusUnhealthy},
		{"both down", pingDown, pingDown, HealthStatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewHealthRegistry()
			r.Register("database", DatabaseHealthChecker(tt.dbPing))
			r.Register("redis", RedisHealthChecker(tt.redis))

			h := r.GetOverallHealth(context.Background())
			assert.Equal(t, tt.expected, h.Status)
			require.Len(t, h.Checks, 2)
		})
	}
}

func TestHealthRegistry_CheckRecordsTiming(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("slow", func(context.Context) HealthCheckResult {
		time.Sleep(5 * time.Millisecond)
		return HealthCheckResult{Status: HealthStatusHealthy}
	})

	res := r.Check(context.Background())["slow"]
	assert.GreaterOrEqual(t, res.Duration, 5*time.Millisecond)
	assert.False(t, res.Timestamp.IsZero())
}

func TestHealthRegistry_RegisterReplaces(t *testing.T) {
	r := NewHealthRegistry()
	r.Register("database", DatabaseHealthChecker(pingDown))
	r.Register("database", DatabaseHealthChecker(pingOK))

	assert.Equal(t, HealthStatusHealthy, r.GetOverallHealth(context.Background()).Status)
}

func TestPingChecker_Messages(t *testing.T) {
	res := DatabaseHealthChecker(pingDown)(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, res.Status)
	assert.Equal(t, "database connection failed: connection refused", res.Message)

	res = RedisHealthChecker(pingOK)(context.Background())
	assert.Equal(t, HealthStatusHealthy, res.Status)
	assert.Equal(t, "redis connection healthy", res.Message)
}
