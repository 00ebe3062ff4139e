// Package netutil finds an available TCP port for the broker to bind to,
// grounded on port_discovery_service.py.
package netutil

import (
	"fmt"
	"log/slog"
	"net"
)

// FindAvailablePort probes preferredPort, then preferredPort+1, +2, ... up
// to maxAttempts offsets, returning the first bindable port.
func FindAvailablePort(preferredPort, maxAttempts int) (int, error) {
	for offset := 0; offset < maxAttempts; offset++ {
		port := preferredPort + offset
		if isPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available port found in range [%d, %d)", preferredPort, preferredPort+maxAttempts)
}

func isPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// FindServicePort is a logging wrapper around FindAvailablePort for a named
// service, defaulting to 10 probe attempts.
func FindServicePort(serviceName string, defaultPort int, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	port, err := FindAvailablePort(defaultPort, 10)
	if err != nil {
		log.Error("port discovery failed", slog.String("service", serviceName), slog.Int("default_port", defaultPort))
		return 0, err
	}
	if port != defaultPort {
		log.Warn("service bound to fallback port",
			slog.String("service", serviceName), slog.Int("requested", defaultPort), slog.Int("bound", port))
	}
	return port, nil
}
