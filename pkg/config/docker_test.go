package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withDockerMarker points Docker detection at a temp file that exists when present is true.
func withDockerMarker(t *testing.T, present bool) {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".dockerenv")
	if present {
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	origPath := dockerEnvPath
	dockerEnvPath = path
	isDockerOnce = sync.Once{}
	t.Cleanup(func() {
		dockerEnvPath = origPath
		isDockerOnce = sync.Once{}
	})
}

func TestResolveHostForDocker_InDocker(t *testing.T) {
	withDockerMarker(t, true)

	assert.True(t, IsRunningInDocker())
	assert.Equal(t, "host.docker.internal", ResolveHostForDocker("localhost"))
	assert.Equal(t, "host.docker.internal", ResolveHostForDocker("127.0.0.1"))
	assert.Equal(t, "host.docker.internal", ResolveHostForDocker("::1"))
	assert.Equal(t, "db.internal", ResolveHostForDocker("db.internal"))
}

func TestResolveHostForDocker_NotInDocker(t *testing.T) {
	withDockerMarker(t, false)

	assert.False(t, IsRunningInDocker())
	for _, host := range []string{"localhost", "127.0.0.1", "db.internal", ""} {
		assert.Equal(t, host, ResolveHostForDocker(host))
	}
}

func TestConnectionMap_ResolvesLoopbackInDocker(t *testing.T) {
	withDockerMarker(t, true)

	conn := DatasourceEntry{Name: "local", Type: "postgres", Host: "localhost"}.ConnectionMap()
	assert.Equal(t, "host.docker.internal", conn["host"])

	db := DatabaseConfig{Host: "127.0.0.1", Port: 5432, User: "ekaya", Database: "results", SSLMode: "disable"}
	assert.Contains(t, db.ConnectionString(), "host=host.docker.internal ")
}
