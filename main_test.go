package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/everforgeworks/moai-clicker/internal/api"
	"github.com/everforgeworks/moai-clicker/internal/platform/logger"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "moai.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestReloadLimitsRetunesLimiter(t *testing.T) {
	limiter := api.NewLimiter(1000, 1000)
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("first action denied")
	}

	path := writeConfig(t, "limits:\n  actions_per_second: 0.001\n  burst: 1\n")
	if err := reloadLimits(path, limiter, logger.Discard()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !limiter.Allow("10.0.0.1") {
		t.Fatal("expected one token after reload")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("reloaded burst not applied")
	}
}

func TestReloadLimitsKeepsLimiterOnBadConfig(t *testing.T) {
	limiter := api.NewLimiter(1000, 1000)
	limiter.Allow("10.0.0.1")

	for _, body := range []string{"limits: [", "limits:\n  burst: 0\n"} {
		if err := reloadLimits(writeConfig(t, body), limiter, logger.Discard()); err == nil {
			t.Fatalf("%q: expected an error", body)
		}
	}
	if err := reloadLimits(filepath.Join(t.TempDir(), "missing.yaml"), limiter, logger.Discard()); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	for i := 0; i < 10; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("action %d denied after a failed reload", i)
		}
	}
}
