package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a minimal config with a temp database and returns its path.
func writeConfig(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := fmt.Sprintf(`
database:
  path: %q
  wal_mode: true
  busy_timeout: 5

api:
  host: "127.0.0.1"
  port: %d

sessions:
  heartbeat_timeout: 90
  sweep_interval: 30

logging:
  level: error
  format: text
  output: stderr

security:
  jwt:
    secret: %q
    access_token_ttl: 60
`, filepath.Join(dir, "relay.db"), port, testJWTSecret)

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("finding free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close() //nolint:errcheck // only needed the port
	return port
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := writeConfig(t, 8000)

	cfg, used, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if used != path {
		t.Errorf("path = %q, want %q", used, path)
	}
	if cfg.API.Host != "127.0.0.1" || cfg.Security.JWT.Secret != testJWTSecret {
		t.Errorf("config not read from file: %+v", cfg.API)
	}
}

func TestLoadConfig_EnvPath(t *testing.T) {
	path := writeConfig(t, 8000)
	t.Setenv(configEnv, path)

	_, used, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if used != path {
		t.Errorf("path = %q, want %q", used, path)
	}
}

func TestLoadConfig_MissingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("loadConfig() should fail for a missing explicit path")
	}
}

func TestLoadConfig_DefaultsNeedSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(configEnv, "")
	t.Setenv("REMOTEEYE_JWT_SECRET", "")

	if _, _, err := loadConfig(""); err == nil {
		t.Fatal("built-in defaults without a JWT secret should fail validation")
	}

	t.Setenv("REMOTEEYE_JWT_SECRET", testJWTSecret)
	cfg, used, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if used != "" || cfg.API.Port != 8000 {
		t.Errorf("defaults not used: path %q port %d", used, cfg.API.Port)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("output %q does not contain version %q", out, version)
	}
}

func TestMigrateCommands(t *testing.T) {
	path := writeConfig(t, 8000)

	out, err := execute(t, "--config", path, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status error: %v", err)
	}
	if !strings.Contains(out, "pending") {
		t.Errorf("fresh database should report pending migrations:\n%s", out)
	}

	if _, err := execute(t, "--config", path, "migrate", "up"); err != nil {
		t.Fatalf("migrate up error: %v", err)
	}

	out, err = execute(t, "--config", path, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status error: %v", err)
	}
	if strings.Contains(out, "pending") || !strings.Contains(out, "applied") {
		t.Errorf("status after up:\n%s", out)
	}

	if _, err := execute(t, "--config", path, "migrate", "down"); err != nil {
		t.Fatalf("migrate down error: %v", err)
	}
	out, _ = execute(t, "--config", path, "migrate", "status") //nolint:errcheck // checked via output
	if !strings.Contains(out, "pending") {
		t.Errorf("status after down:\n%s", out)
	}
}

func TestPairCommand(t *testing.T) {
	path := writeConfig(t, 8000)

	out, err := execute(t, "--config", path, "pair", "--ttl", "5m")
	if err != nil {
		t.Fatalf("pair error: %v", err)
	}
	if !regexp.MustCompile(`pairing code: [A-Z0-9]{6} \(expires `).MatchString(out) {
		t.Errorf("unexpected output %q", out)
	}
}

func TestRun_StartsAndStops(t *testing.T) {
	port := freePort(t)
	cfg, _, err := loadConfig(writeConfig(t, port))
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, "test") }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := http.Get(url) //nolint:gosec,noctx // test-controlled URL
		if err == nil {
			resp.Body.Close() //nolint:errcheck // test
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d", resp.StatusCode)
			}
			break
		}
		select {
		case err := <-done:
			t.Fatalf("run() exited early: %v", err)
		default:
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not become healthy")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error on shutdown: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}
