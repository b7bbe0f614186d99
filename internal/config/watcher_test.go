package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func replaceLine(content, old, new string) string {
	return strings.Replace(content, old, new, 1)
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	path := writeConfig(t, validYAML)

	reloaded := make(chan *Config, 1)
	watcher, err := NewWatcher(path, &WatcherConfig{
		DebounceDuration: 50 * time.Millisecond,
		OnChange: func(cfg *Config) error {
			select {
			case reloaded <- cfg:
			default:
			}
			return nil
		},
	}, slog.Default())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	watcher.Start()
	defer watcher.Stop()

	updated := validYAML + "\n"
	updated = replaceLine(updated, "port: 8080", "port: 8181")
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case cfg := <-reloaded:
		if cfg.Guard.Frontend.HTTP.Port != 8181 {
			t.Errorf("reloaded port = %d", cfg.Guard.Frontend.HTTP.Port)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}

func TestWatcher_RejectsInvalidReload(t *testing.T) {
	path := writeConfig(t, validYAML)

	applied := make(chan struct{}, 1)
	failed := make(chan error, 1)
	watcher, err := NewWatcher(path, &WatcherConfig{
		DebounceDuration: 50 * time.Millisecond,
		OnChange: func(cfg *Config) error {
			select {
			case applied <- struct{}{}:
			default:
			}
			return nil
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	}, slog.Default())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	watcher.Start()
	defer watcher.Stop()

	// Empty allowlist fails validation; the callback must not fire.
	broken := replaceLine(validYAML, "- images.example.com", "")
	broken = replaceLine(broken, "- cdn.example.com", "")
	broken = replaceLine(broken, "allowedHosts:", "allowedHosts: []")
	if err := os.WriteFile(path, []byte(broken), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	select {
	case <-failed:
		// Rejected as expected.
	case <-applied:
		t.Fatal("invalid config should not be applied")
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for rejection")
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil, slog.Default())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
