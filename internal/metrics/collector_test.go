package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewCollector(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	require.NotNil(t, c)
	assert.NotNil(t, c.Registry())
	assert.NotNil(t, c.operationsTotal)
	assert.NotNil(t, c.httpRequestsTotal)
}

func TestCollector_IndependentRegistries(t *testing.T) {
	a := NewCollector("tyuo", nil)
	b := NewCollector("tyuo", nil)

	a.AddTokensLearned(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.tokensLearned))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.tokensLearned))
}

func TestCollector_RecordOperation(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordOperation("learn", ResultOK, time.Millisecond)
	c.RecordOperation("learn", ResultOK, 2*time.Millisecond)
	c.RecordOperation("speak", ResultNoOutput, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operationsTotal.WithLabelValues("learn", ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.operationsTotal.WithLabelValues("speak", ResultNoOutput)))
	assert.Equal(t, 2, testutil.CollectAndCount(c.operationDuration))
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.RecordHTTPRequest("POST", "/speak", 200, 10*time.Millisecond)
	c.RecordHTTPRequest("POST", "/speak", 201, 10*time.Millisecond)
	c.RecordHTTPRequest("POST", "/learn", 400, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/speak", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/learn", "4xx")))
}

func TestCollector_Gauges(t *testing.T) {
	c := NewCollector("test", zap.NewNop())

	c.SetContextsOpen(4)
	c.SetContextsOpen(2)
	c.AddBans(2)
	c.AddBans(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.contextsOpen))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.bansTotal))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("tyuo", zap.NewNop())
	c.AddTokensLearned(5)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "tyuo_tokens_learned_total 5"))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordOperation("learn", ResultOK, time.Second)
		c.RecordHTTPRequest("GET", "/healthz", 200, time.Second)
		c.AddTokensLearned(1)
		c.AddBans(1)
		c.SetContextsOpen(1)
	})
	assert.Nil(t, c.Registry())

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(204))
	assert.Equal(t, "3xx", statusClass(304))
	assert.Equal(t, "4xx", statusClass(429))
	assert.Equal(t, "5xx", statusClass(503))
	assert.Equal(t, "100", statusClass(100))
}
