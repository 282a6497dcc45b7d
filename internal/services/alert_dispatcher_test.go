package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/farmguard/internal/metrics"
	"github.com/BradenHooton/farmguard/internal/models"
)

type chanNotifier struct {
	sent chan *models.SecurityEvent
}

func (n *chanNotifier) Send(_ context.Context, event *models.SecurityEvent) error {
	n.sent <- event
	return nil
}

func TestAlertDispatcher_DropsWhenQueueFull(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	d := NewAlertDispatcher(&chanNotifier{sent: make(chan *models.SecurityEvent, 1)}, 1, 0, m, discardLogger())

	d.Notify(&models.SecurityEvent{ID: "a"})
	d.Notify(&models.SecurityEvent{ID: "b"})

	assert.Len(t, d.queue, 1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AlertsDropped))
}

func TestAlertDispatcher_RunDelivers(t *testing.T) {
	notifier := &chanNotifier{sent: make(chan *models.SecurityEvent, 2)}
	d := NewAlertDispatcher(notifier, 4, 60, nil, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Notify(&models.SecurityEvent{ID: "event-1", Severity: models.SeverityCritical})

	select {
	case got := <-notifier.sent:
		assert.Equal(t, "event-1", got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("alert was not delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		require.Fail(t, "dispatcher did not stop")
	}
}
