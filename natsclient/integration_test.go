package natsclient

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startNATSContainer starts a NATS server with JetStream enabled and
// returns the container and its client URL.
func startNATSContainer(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "nats:latest",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForListeningPort("4222/tcp"),
		Cmd:          []string{"-js"},
	}

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := natsContainer.Host(ctx)
	require.NoError(t, err)

	port, err := natsContainer.MappedPort(ctx, "4222")
	require.NoError(t, err)

	natsURL := fmt.Sprintf("nats://%s:%s", host, port.Port())

	// Give the server a moment to be fully ready
	time.Sleep(200 * time.Millisecond)

	return natsContainer, natsURL
}

func TestIntegration_ConnectAndPublishSubscribe(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, natsURL := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	client, err := NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	assert.True(t, client.IsHealthy())
	assert.Equal(t, StatusConnected, client.Status())

	received := make(chan []byte, 1)
	require.NoError(t, client.Subscribe(ctx, "sensors.>", func(_ string, data []byte) {
		received <- data
	}))

	payload := []byte(`{"value": 21.5}`)
	require.NoError(t, client.Publish(ctx, "sensors.temperature.t1", payload))

	select {
	case data := <-received:
		assert.Equal(t, payload, data)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_JetStreamConsume(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, natsURL := startNATSContainer(ctx, t)
	defer container.Terminate(ctx)

	client, err := NewClient(natsURL)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	require.NoError(t, client.EnsureStream(ctx, "SENSORS", []string{"sensors.>"}, 10000))

	var count atomic.Int32
	subjects := make(chan string, 10)
	require.NoError(t, client.Consume(ctx, "SENSORS", "ingest-test", "sensors.>",
		func(subject string, _ []byte) {
			count.Add(1)
			subjects <- subject
		}))

	for i := 0; i < 3; i++ {
		subject := fmt.Sprintf("sensors.temperature.t%d", i)
		require.NoError(t, client.Publish(ctx, subject, []byte(`{"value": 20}`)))
	}

	deadline := time.After(5 * time.Second)
	for count.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("timed out: received %d of 3 messages", count.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}

	assert.Contains(t, <-subjects, "sensors.temperature.")
}
