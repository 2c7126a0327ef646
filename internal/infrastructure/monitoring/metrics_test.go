package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordTokenIssue(true, 3*time.Millisecond)
	m.RecordTokenIssue(false, time.Millisecond)
	m.RecordTokenVerify("expired", time.Millisecond)
	m.RecordTokenRevoke()
	m.RecordKeySetLookup("hit")
	m.RecordKidFallback("missing_kid")
	m.RecordKeyRotation("rotated")
	m.RecordActiveKeyExpiry(90 * time.Second)
	m.RecordKeysPurged(2)
	m.ObserveHTTPRequest("/api/v1/auth/me", "GET", 401, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenIssueRequests.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenIssueRequests.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenVerifications.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokenRevocations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KidFallbacks.WithLabelValues("missing_kid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.KeyRotations.WithLabelValues("rotated")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.ActiveKeyRemaining))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.KeysPurged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/api/v1/auth/me", "GET", "401")))
}
