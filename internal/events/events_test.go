package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riviera/internal/batch"
)

type captureLogger struct {
	lines []string
}

func (l *captureLogger) Debug(format string, args ...any) {}
func (l *captureLogger) Info(format string, args ...any) {
	l.lines = append(l.lines, format)
}
func (l *captureLogger) Warn(format string, args ...any)  {}
func (l *captureLogger) Error(format string, args ...any) {}

func sampleJob() *batch.Job {
	return &batch.Job{
		ID:             "job_1",
		WebsiteID:      "site-1",
		CollectionType: batch.CollectionRestaurants,
		Status:         batch.StatusProcessing,
		ItemsCount:     2,
		ItemsProcessed: 1,
	}
}

func TestLogNotifierWritesBothEvents(t *testing.T) {
	logger := &captureLogger{}
	n := NewLogNotifier(logger)
	n.BatchSubmitted(sampleJob())
	n.BatchProcessing(sampleJob())
	require.Len(t, logger.lines, 2)
	assert.Contains(t, logger.lines[0], "submitted")
	assert.Contains(t, logger.lines[1], "progress")
}

func TestMultiNotifierFansOut(t *testing.T) {
	a := &captureLogger{}
	b := &captureLogger{}
	m := MultiNotifier{NewLogNotifier(a), NewLogNotifier(b)}
	m.BatchSubmitted(sampleJob())
	assert.Len(t, a.lines, 1)
	assert.Len(t, b.lines, 1)
}

func TestHubBroadcastsToClients(t *testing.T) {
	hub := NewHub(nil)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Add("client-1", conn)
	}))
	defer server.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	// Wait for the server side to register the connection.
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	hub.BatchProcessing(sampleJob())

	var event Event
	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, client.ReadJSON(&event))
	assert.Equal(t, TypeBatchProcessing, event.Type)
	assert.Equal(t, "job_1", event.JobID)
	assert.Equal(t, 1, event.ItemsProcessed)
}

func TestHubRemoveDropsClient(t *testing.T) {
	hub := NewHub(nil)
	upgrader := websocket.Upgrader{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Add("client-1", conn)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	hub.Remove("client-1")
	assert.Equal(t, 0, hub.ClientCount())
}
