package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func up(context.Context) ComponentHealth { return ComponentHealth{Status: StatusUp} }

func TestRunAllUp(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("article_cache", up)
	c.Register("wikipedia", FromError(func(context.Context) error { return nil }, StatusDegraded))

	report := c.Run(context.Background())

	assert.Equal(t, StatusUp, report.Status)
	assert.Len(t, report.Components, 2)
	assert.NotEmpty(t, report.Components["wikipedia"].Latency)
}

func TestRunReportsWorstStatus(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("article_cache", up)
	c.Register("wikipedia", FromError(func(context.Context) error { return errors.New("circuit open") }, StatusDegraded))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "circuit open", report.Components["wikipedia"].Message)

	c.Register("postgres", FromError(func(context.Context) error { return errors.New("refused") }, StatusDown))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestRunTimesOutSlowCheck(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) ComponentHealth {
		time.Sleep(200 * time.Millisecond)
		return ComponentHealth{Status: StatusUp}
	})

	report := c.Run(context.Background())

	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["slow"].Message, "timed out")
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("wikipedia", FromError(func(context.Context) error { return errors.New("circuit open") }, StatusDegraded))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code, "degraded stays ready")

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("postgres", FromError(func(context.Context) error { return errors.New("refused") }, StatusDown))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker(0).LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}
