package config

import (
	"os"
	"sync"
)

// dockerHostAlias reaches services published on the host from inside a container.
const dockerHostAlias = "host.docker.internal"

var (
	dockerEnvPath = "/.dockerenv"

	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the scanner runs inside a Docker container,
// detected by the /.dockerenv marker. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvPath)
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker rewrites loopback hosts to host.docker.internal when running
// in Docker, so a containerized scanner can reach databases on the host machine.
// Any other host is returned unchanged.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return resolveLoopback(host)
}

func resolveLoopback(host string) string {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return dockerHostAlias
	}
	return host
}
