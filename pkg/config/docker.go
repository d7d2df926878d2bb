package config

import (
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
	dockerEnvPath  = "/.dockerenv"
)

// IsRunningInDocker reports whether the process runs inside a Docker container,
// detected by the /.dockerenv marker. The result is cached.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat(dockerEnvPath)
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker rewrites a loopback warehouse host to host.docker.internal
// when running in a container, so a warehouse on the developer's machine stays
// reachable. Other hosts are returned unchanged.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if !inDocker {
		return host
	}
	switch host {
	case "localhost", "127.0.0.1", "::1", "[::1]":
		return "host.docker.internal"
	}
	return host
}
