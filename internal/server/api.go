package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/livetemplate/blockshot/internal/config"
	"github.com/livetemplate/blockshot/internal/history"
	"github.com/livetemplate/blockshot/internal/overlay"
	"github.com/livetemplate/blockshot/internal/runner"
	"github.com/livetemplate/blockshot/internal/viewport"
)

// maxRequestBodySize limits the size of incoming request bodies (1MB)
const maxRequestBodySize = 1 << 20

// defaultRunsLimit is the history page size when none is given
const defaultRunsLimit = 20

var componentPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// RunRequest is the body of POST /api/run-visual-test.
type RunRequest struct {
	Command   string `json:"command"`
	Component string `json:"component"`
}

// RunResponse reports an on-demand run. Error is set on failure; Success
// on a clean run.
type RunResponse struct {
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
	Output  string `json:"output"`
	Stderr  string `json:"stderr"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePort(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.portFile)
	if err != nil {
		log.Printf("[Server] Error reading port file: %v", err)
		http.Error(w, "Error reading port", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleRunVisualTest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	argv, ok := s.cfg.Server.Commands[req.Command]
	if !ok || len(argv) == 0 {
		writeJSONError(w, http.StatusBadRequest, "Invalid command")
		return
	}
	if req.Command == config.CommandUpdate && !config.IsUpdateAllowed() {
		writeJSONError(w, http.StatusForbidden, "Baseline updates are disabled; start the server with --allow-update")
		return
	}
	if strings.TrimSpace(req.Component) == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing component name")
		return
	}
	component := viewport.Slug(req.Component)
	if !componentPattern.MatchString(component) {
		writeJSONError(w, http.StatusBadRequest, "Invalid component name")
		return
	}

	cmd := runner.Command{
		Name:    argv[0],
		Args:    runner.Expand(argv[1:], map[string]string{"component": component}),
		Dir:     s.cfg.Server.Workdir,
		Env:     s.commandEnv(),
		Timeout: s.cfg.Timeouts.GetCommand(),
	}
	log.Printf("[Server] Running %s", cmd)

	// The run outlives the request: a client navigating away must not
	// kill a test run other callers may be waiting on.
	res, shared, err := s.runs.Do(s.baseCtx, runKey(req.Command, component), cmd)
	if shared && s.debug {
		log.Printf("[Server] Shared in-flight run of %s for %s", req.Command, component)
	}

	var resp RunResponse
	if res != nil {
		resp.Output = res.Stdout
		resp.Stderr = res.Stderr
	}
	switch {
	case err != nil:
		log.Printf("[Server] Command execution error: %v", err)
		resp.Error = "Command execution failed"
		resp.Details = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
	case stderrHasErrors(resp.Stderr):
		resp.Error = "Command completed with errors"
		writeJSON(w, http.StatusInternalServerError, resp)
	default:
		resp.Success = true
		writeJSON(w, http.StatusOK, resp)
	}
}

// commandEnv points the generated tests at the configured host and browser.
func (s *Server) commandEnv() map[string]string {
	env := map[string]string{"BLOCKSHOT_HOST": s.cfg.Host.URL}
	if s.cfg.Browser.ChromeURL != "" {
		env["BLOCKSHOT_CHROME_URL"] = s.cfg.Browser.ChromeURL
	}
	return env
}

func stderrHasErrors(stderr string) bool {
	return strings.Contains(strings.ToLower(stderr), "error")
}

// runKey identifies identical requests; a component slug never contains
// a slash.
func runKey(command, component string) string {
	return command + "/" + component
}

func splitRunKey(key string) (command, component string) {
	i := strings.LastIndex(key, "/")
	if i < 0 {
		return key, ""
	}
	return key[:i], key[i+1:]
}

// recordRun stores a finished run and tells connected widgets about it.
func (s *Server) recordRun(key string, cmd runner.Command, res *runner.Result, err error) {
	command, component := splitRunKey(key)
	run := history.Run{
		Command:   command,
		Component: component,
		ExitCode:  -1,
		StartedAt: time.Now(),
	}
	if res != nil {
		run.ExitCode = res.ExitCode
		run.Duration = res.Duration
		run.StartedAt = run.StartedAt.Add(-res.Duration)
		run.Output = res.Stdout
		run.Stderr = res.Stderr
	}
	run.Success = err == nil && !stderrHasErrors(run.Stderr)

	if s.history != nil {
		if _, herr := s.history.Record(s.baseCtx, run); herr != nil {
			log.Printf("[History] Failed to record run: %v", herr)
		}
	}
	log.Printf("[Server] %s for %s finished (success=%t, %s)", command, component, run.Success, run.Duration.Round(time.Millisecond))

	s.hub.Broadcast(map[string]interface{}{
		"action":    "run",
		"command":   command,
		"component": component,
		"success":   run.Success,
	})
}

// overlayResponse is the picture for the requested variation plus, when a
// width was given, the image that width selects.
type overlayResponse struct {
	overlay.Picture
	Selected string `json:"selected,omitempty"`
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	loc, err := overlay.ParseLocation(r.URL.RawQuery)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	outer := s.cfg.DefaultViewport.Width
	// Images load from this server, not the authoring host the widget runs on.
	root := requestOrigin(r) + "/baselines"
	resp := overlayResponse{Picture: overlay.NewPicture(s.cfg.Viewports, loc.Block, loc.Index, root, outer)}

	if raw := r.URL.Query().Get("width"); raw != "" {
		width, err := strconv.Atoi(raw)
		if err != nil || width <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid width")
			return
		}
		resp.Selected = resp.Picture.Select(s.cfg.Viewports, width, outer)
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs := []history.Run{}
	if s.history != nil {
		var err error
		runs, err = s.history.Recent(r.Context(), r.URL.Query().Get("component"), limit)
		if err != nil {
			log.Printf("[History] Query failed: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to read run history")
			return
		}
	}
	writeJSON(w, http.StatusOK, runs)
}
