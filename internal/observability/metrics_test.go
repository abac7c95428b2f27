package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/danmuck/kinectl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("master", "GET", "/health", 200, 12*time.Millisecond)
	SetActiveBlocks(2)
	SetLinkAlive("mega1", true)
	SetLinkAlive("mega2", false)
	RecordAdmissionRejection("CAPACITY_EXCEEDED")
	RecordCascadeStop("mega2")
	RecordEmergencyStop("ingress")
	RecordAutoStop()
	RecordRunawayStop("mega1")
	RecordNodeCommand("mega1", "BLOCK")

	if got := testutil.ToFloat64(masterActiveBlocks); got != 2 {
		t.Fatalf("unexpected active gauge: %v", got)
	}
	if got := testutil.ToFloat64(masterLinkAlive.WithLabelValues("mega2")); got != 0 {
		t.Fatalf("unexpected link gauge: %v", got)
	}
}

func TestRequestObserverLabelsByRoute(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestObserver("test-node", zerolog.Nop()))
	r.GET("/api/block/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	routed := httpRequests.WithLabelValues("test-node", "GET", "/api/block/:id", "200")
	missed := httpRequests.WithLabelValues("test-node", "GET", unmatchedRoute, "404")
	beforeRouted, beforeMissed := testutil.ToFloat64(routed), testutil.ToFloat64(missed)

	for _, path := range []string{"/api/block/3", "/api/block/11", "/nope"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}
	if got := testutil.ToFloat64(routed); got != beforeRouted+2 {
		t.Fatalf("routed requests not grouped by template: before=%v after=%v", beforeRouted, got)
	}
	if got := testutil.ToFloat64(missed); got != beforeMissed+1 {
		t.Fatalf("unmatched request not counted: before=%v after=%v", beforeMissed, got)
	}
}
