// CLAUDE:SUMMARY E2E test harness — spawns redflag on a free port with a temp sqlite store and HTTP helpers
package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

// AdminPassword is the operator password configured for every harness.
const AdminPassword = "e2e-admin-password"

// TestHarness manages a redflag subprocess and provides HTTP helpers.
type TestHarness struct {
	BaseURL  string
	DataDir  string
	SQLiteDB string
	Binary   string
	Config   string

	cmd    *exec.Cmd
	client *http.Client
	port   int
}

// NewHarness builds a config, starts redflag serve, and waits for health.
func NewHarness(t *testing.T) *TestHarness {
	t.Helper()

	// Locate binary using absolute path
	wd, _ := os.Getwd()
	binary, _ := filepath.Abs(filepath.Join(wd, "..", "redflag"))
	if _, err := os.Stat(binary); os.IsNotExist(err) {
		t.Skipf("binary not found at %s — run: CGO_ENABLED=0 go build -o redflag .", binary)
	}

	// Find free port
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	// Data directory (manual cleanup — t.TempDir() would delete files when
	// the first test finishes, breaking shared DBAssert across tests)
	dataDir, err := os.MkdirTemp("", "redflag-e2e-*")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	sqliteDB := filepath.Join(dataDir, "redflag.db")

	hash := hashPassword(t, binary, AdminPassword)

	config := fmt.Sprintf(`[server]
addr = "127.0.0.1:%d"
session_ttl_min = 30

[log]
level = "warn"

[storage]
backend = "sqlite"
sqlite_path = %q
trace = true

[auth]
jwt_secret = "e2e-test-secret-key-redflag"
token_expiry_min = 60
admin_password_hash = %q

[survey]
seed_catalog = true

[smtp]
server = ""
`, port, sqliteDB, hash)

	configPath := filepath.Join(dataDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	// Start subprocess with LLM keys stripped so insights report disabled.
	cmd := exec.Command(binary, "serve", "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = cleanEnv()

	if err := cmd.Start(); err != nil {
		t.Fatalf("starting redflag: %v", err)
	}

	h := &TestHarness{
		BaseURL:  fmt.Sprintf("http://127.0.0.1:%d", port),
		DataDir:  dataDir,
		SQLiteDB: sqliteDB,
		Binary:   binary,
		Config:   configPath,
		cmd:      cmd,
		port:     port,
		client:   &http.Client{Timeout: 30 * time.Second},
	}

	// Health check
	deadline := time.Now().Add(15 * time.Second)
	backoff := 100 * time.Millisecond
	for time.Now().Before(deadline) {
		resp, err := h.client.Get(h.BaseURL + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				t.Logf("redflag ready on port %d", port)
				return h
			}
		}
		time.Sleep(backoff)
		if backoff < 2*time.Second {
			backoff = backoff * 3 / 2
		}
	}

	h.Stop()
	t.Fatalf("redflag did not become ready within 15s on port %d", port)
	return nil
}

func hashPassword(t *testing.T, binary, password string) string {
	t.Helper()
	cmd := exec.Command(binary, "hash-password")
	cmd.Stdin = strings.NewReader(password + "\n")
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	return strings.TrimSpace(string(out))
}

func cleanEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasSuffix(key, "_API_KEY") || strings.HasPrefix(key, "SMTP_") || strings.HasPrefix(key, "SENDER_") {
			continue
		}
		env = append(env, kv)
	}
	return env
}

// Stop sends SIGTERM, waits 5s, then SIGKILL. Cleans up the data directory.
func (h *TestHarness) Stop() {
	if h.cmd == nil || h.cmd.Process == nil {
		return
	}
	h.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- h.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		h.cmd.Process.Kill()
		<-done
	}

	if h.DataDir != "" {
		os.RemoveAll(h.DataDir)
	}
}

// CLI runs a redflag subcommand against the harness config and returns
// its stdout.
func (h *TestHarness) CLI(t *testing.T, args ...string) string {
	t.Helper()
	full := append([]string{args[0], "--config", h.Config}, args[1:]...)
	cmd := exec.Command(h.Binary, full...)
	cmd.Env = cleanEnv()
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("redflag %s: %v\n%s", strings.Join(args, " "), err, truncate(stderr.String(), 500))
	}
	return string(out)
}

// Do executes an HTTP request and returns the response.
func (h *TestHarness) Do(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return h.client.Do(req)
}

// JSON executes a request and decodes the JSON response into dst.
func (h *TestHarness) JSON(method, path string, body interface{}, token string, dst interface{}) (*http.Response, error) {
	resp, err := h.Do(method, path, body, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("reading body: %w", err)
	}

	// Reset body so caller can inspect status
	resp.Body = io.NopCloser(bytes.NewReader(data))

	if dst != nil && len(data) > 0 {
		if err := json.Unmarshal(data, dst); err != nil {
			return resp, fmt.Errorf("decoding JSON (status %d, body: %s): %w", resp.StatusCode, truncate(string(data), 500), err)
		}
	}

	return resp, nil
}

// RawBody executes a request and returns the raw response body as bytes.
func (h *TestHarness) RawBody(method, path string, body interface{}, token string) ([]byte, *http.Response, error) {
	resp, err := h.Do(method, path, body, token)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	return data, resp, err
}

// Question is one question as returned in a step view.
type Question struct {
	Key     string   `json:"key"`
	Mode    string   `json:"mode"`
	Options []string `json:"options"`
}

// View is the subset of a step view the tests look at.
type View struct {
	Step             string          `json:"step"`
	Advanced         bool            `json:"advanced"`
	Complete         bool            `json:"complete"`
	FilterViolations int             `json:"filter_violations"`
	Notices          []Notice        `json:"notices"`
	Payload          json.RawMessage `json:"payload"`
}

type Notice struct {
	Key   string `json:"key"`
	Level string `json:"level"`
}

// HasNotice reports whether the view carries the message key.
func (v View) HasNotice(key string) bool {
	for _, n := range v.Notices {
		if n.Key == key {
			return true
		}
	}
	return false
}

// Questions decodes the payload of a question step.
func (v View) Questions(t *testing.T) []Question {
	t.Helper()
	var qs []Question
	if err := json.Unmarshal(v.Payload, &qs); err != nil {
		t.Fatalf("decoding questions of %s: %v", v.Step, err)
	}
	return qs
}

type sessionResp struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	View   View   `json:"view"`
}

// StartSession creates a survey session and returns its token, user id and
// first view.
func (h *TestHarness) StartSession(t *testing.T) (token, userID string, view View) {
	t.Helper()
	var result sessionResp
	resp, err := h.JSON("POST", "/api/sessions", nil, "", &result)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	RequireStatus(t, resp, http.StatusCreated)
	return result.Token, result.UserID, result.View
}

// Cycle submits one step input and returns the resulting view.
func (h *TestHarness) Cycle(t *testing.T, token string, input interface{}) View {
	t.Helper()
	var result sessionResp
	resp, err := h.JSON("POST", "/api/sessions/current/cycle", input, token, &result)
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	RequireStatus(t, resp, http.StatusOK)
	return result.View
}

// AdminLogin returns an operator token.
func (h *TestHarness) AdminLogin(t *testing.T) string {
	t.Helper()
	var result struct {
		Token string `json:"token"`
	}
	resp, err := h.JSON("POST", "/api/admin/login", map[string]string{"password": AdminPassword}, "", &result)
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	RequireStatus(t, resp, http.StatusOK)
	return result.Token
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// RequireStatus asserts the HTTP status code matches expected.
func RequireStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected status %d, got %d: %s", expected, resp.StatusCode, truncate(string(body), 500))
	}
}
