//go:build !ci

package blockshot

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"testing"
	"time"
)

const (
	dockerImage           = "chromedp/headless-shell:stable"
	chromeContainerPrefix = "chrome-e2e-blockshot-"
)

// setupDockerChrome starts a headless Chrome container and returns its
// DevTools URL. The container is removed when the test ends.
func setupDockerChrome(t *testing.T) string {
	t.Helper()

	if _, err := exec.Command("docker", "version").CombinedOutput(); err != nil {
		t.Skip("Docker not available, skipping E2E test")
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("Failed to allocate Chrome port: %v", err)
	}
	name := fmt.Sprintf("%s%d", chromeContainerPrefix, port)
	_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()

	if _, err := exec.Command("docker", "image", "inspect", dockerImage).CombinedOutput(); err != nil {
		t.Log("Pulling chromedp/headless-shell Docker image...")
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if out, err := exec.CommandContext(ctx, "docker", "pull", dockerImage).CombinedOutput(); err != nil {
			t.Fatalf("Failed to pull Docker image: %v\nOutput: %s", err, out)
		}
	}

	// --network host works on Linux only; elsewhere map to the
	// container's default port.
	args := []string{"run", "-d", "--rm", "--memory", "512m", "--name", name}
	if runtime.GOOS == "linux" {
		args = append(args, "--network", "host", dockerImage, fmt.Sprintf("--remote-debugging-port=%d", port))
	} else {
		args = append(args, "-p", fmt.Sprintf("%d:9222", port), dockerImage)
	}
	if out, err := exec.Command("docker", args...).CombinedOutput(); err != nil {
		t.Fatalf("Failed to start Chrome container: %v\nOutput: %s", err, out)
	}
	t.Cleanup(func() {
		_, _ = exec.Command("docker", "rm", "-f", name).CombinedOutput()
	})

	chromeURL := fmt.Sprintf("http://localhost:%d", port)
	client := &http.Client{Timeout: 2 * time.Second}
	var lastErr error
	for i := 0; i < 120; i++ {
		resp, err := client.Get(chromeURL + "/json/version")
		if err == nil {
			resp.Body.Close()
			t.Logf("Chrome ready after %.1fs", float64(i+1)*0.5)
			return chromeURL
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	if out, err := exec.Command("docker", "logs", "--tail", "50", name).CombinedOutput(); err == nil {
		t.Logf("Chrome container logs:\n%s", out)
	}
	t.Fatalf("Chrome failed to start within 60 seconds: %v", lastErr)
	return ""
}

// chromeHostURL is the address Chrome inside Docker uses to reach a
// server listening on the host.
func chromeHostURL(port int) string {
	if runtime.GOOS == "linux" {
		return fmt.Sprintf("http://localhost:%d", port)
	}
	return fmt.Sprintf("http://host.docker.internal:%d", port)
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// serveSite serves testdata/site on all interfaces and returns the URL
// Chrome should use for it.
func serveSite(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.FileServer(http.Dir("testdata/site"))}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return chromeHostURL(ln.Addr().(*net.TCPAddr).Port)
}
