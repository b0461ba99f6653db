package qdrant

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/vdbdiff/vdbdiff/pkg/vdb"
)

// qdrantContainer represents a Qdrant container for testing.
type qdrantContainer struct {
	testcontainers.Container
	Host string
	Port int
}

// setupQdrantContainer starts a Qdrant container exposing the REST port.
func setupQdrantContainer(ctx context.Context) (*qdrantContainer, error) {
	port, err := getFreePort()
	if err != nil {
		return nil, fmt.Errorf("could not get free port: %w", err)
	}

	portStr := fmt.Sprintf("%d", port)
	portBindings := nat.PortMap{
		"6333/tcp": []nat.PortBinding{{HostPort: portStr}},
	}

	req := testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.11.0",
		ExposedPorts: []string{"6333/tcp"},
		HostConfigModifier: func(cfg *container.HostConfig) {
			cfg.PortBindings = portBindings
		},
		WaitingFor: wait.ForListeningPort("6333/tcp").WithStartupTimeout(60 * time.Second),
	}

	instance, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start qdrant container: %w", err)
	}

	host, err := instance.Host(ctx)
	if err != nil {
		_ = instance.Terminate(ctx)
		return nil, fmt.Errorf("failed to get host: %w", err)
	}

	mappedPort, err := instance.MappedPort(ctx, "6333")
	if err != nil {
		_ = instance.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &qdrantContainer{
		Container: instance,
		Host:      host,
		Port:      mappedPort.Int(),
	}, nil
}

// getFreePort gets a free port from the OS.
func getFreePort() (int, error) {
	addr, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer func(addr net.Listener) {
		if err := addr.Close(); err != nil {
			fmt.Printf("Failed to close listener: %v", err)
		}
	}(addr)

	return addr.Addr().(*net.TCPAddr).Port, nil
}

// TestQdrantAdapterIntegration drives the full capability contract against
// a real server.
func TestQdrantAdapterIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	instance, err := setupQdrantContainer(ctx)
	require.NoError(t, err)
	defer func() {
		if err := instance.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	t.Logf("Using Qdrant on %s:%d", instance.Host, instance.Port)

	a := NewAdapter(Config{Host: instance.Host, Port: instance.Port}, zap.NewNop())
	require.NoError(t, a.Connect(ctx))
	defer func() { _ = a.Close() }()

	t.Run("HealthCheck", func(t *testing.T) {
		status, err := a.HealthCheck(ctx)
		require.NoError(t, err)
		assert.True(t, status.Reachable)
		assert.NotEmpty(t, status.Version)
	})

	t.Run("EnsureCollection", func(t *testing.T) {
		require.NoError(t, a.EnsureCollection(ctx, "itest", 4))
		// Idempotent.
		require.NoError(t, a.EnsureCollection(ctx, "itest", 4))
	})

	t.Run("InsertAndSearch", func(t *testing.T) {
		ins, err := a.Insert(ctx, "itest",
			[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
			[]string{"10", "20"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"10", "20"}, ins.IDs)

		res, err := a.Search(ctx, "itest", []float32{1, 0, 0, 0}, 2, vdb.MetricCosine)
		require.NoError(t, err)
		require.NotEmpty(t, res.Hits)
		assert.Equal(t, "10", res.Hits[0].ID)
	})

	t.Run("UnsupportedMetric", func(t *testing.T) {
		_, err := a.Search(ctx, "itest", []float32{1, 0, 0, 0}, 2, vdb.MetricL2)
		assert.True(t, vdb.IsUnsupportedMetric(err))
	})

	t.Run("Delete", func(t *testing.T) {
		res, err := a.Delete(ctx, "itest", []string{"10", "999"})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Removed)
	})

	t.Run("DropCollection", func(t *testing.T) {
		require.NoError(t, a.DropCollection(ctx, "itest"))
		// Absent collections drop cleanly.
		require.NoError(t, a.DropCollection(ctx, "itest"))
	})
}
