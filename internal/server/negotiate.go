package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// AlreadyRunningError reports that a blockshot service already answers on
// Port. It is not a failure: the caller should exit cleanly.
type AlreadyRunningError struct {
	Port int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("blockshot server already running on port %d", e.Port)
}

// PortExhaustedError reports that every port in [First, Last] was taken by
// something else.
type PortExhaustedError struct {
	First    int
	Last     int
	Attempts int
}

func (e *PortExhaustedError) Error() string {
	return fmt.Sprintf("could not find available port between %d and %d (%d attempts)", e.First, e.Last, e.Attempts)
}

// DefaultProbeTimeout bounds the health probe of each candidate port.
const DefaultProbeTimeout = 500 * time.Millisecond

// Negotiator finds the port the service listens on. For each port from
// First to Last it first asks whether a blockshot service already answers
// there, then tries to bind it.
type Negotiator struct {
	Host         string
	First        int
	Last         int
	ProbeTimeout time.Duration

	// Listen binds an address. Defaults to net.Listen.
	Listen func(network, address string) (net.Listener, error)
	// Client probes candidate ports. Defaults to a client with ProbeTimeout.
	Client *http.Client
}

// Negotiate returns a listener on the first free port. It returns
// *AlreadyRunningError without binding anything when a running instance
// is found, and *PortExhaustedError when the range is used up.
func (n *Negotiator) Negotiate(ctx context.Context) (net.Listener, error) {
	listen := n.Listen
	if listen == nil {
		listen = net.Listen
	}
	attempts := 0
	for port := n.First; port <= n.Last; port++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		attempts++

		if n.isOurServer(ctx, port) {
			return nil, &AlreadyRunningError{Port: port}
		}

		ln, err := listen("tcp", net.JoinHostPort(n.Host, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen on port %d: %w", port, err)
		}
		log.Printf("[Server] Port %d in use, trying %d", port, port+1)
	}
	return nil, &PortExhaustedError{First: n.First, Last: n.Last, Attempts: attempts}
}

// isOurServer reports whether GET /api/health on port answers
// {"status":"ok"}.
func (n *Negotiator) isOurServer(ctx context.Context, port int) bool {
	timeout := n.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	host := n.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + "/api/health"
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "ok"
}

// WritePortFile records the bound port. Only the instance that bound the
// port writes it.
func WritePortFile(path string, port int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create port file dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(port)), 0644); err != nil {
		return fmt.Errorf("write port file: %w", err)
	}
	return nil
}

// ReadPortFile returns the recorded port.
func ReadPortFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("port file %s: %w", path, err)
	}
	return port, nil
}
