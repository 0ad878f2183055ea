package provision

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yourorg/botfleet/internal/domain"
)

func writeTemplate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte("print('hi')\n"), 0o755); err != nil {
		t.Fatalf("write template file: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "data.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write nested file: %v", err)
	}
	cfg := `{"account": {"region": "eu"}, "settings": {"retries": 3}}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestProvisionCopiesTreeAndWritesConfig(t *testing.T) {
	p := New(writeTemplate(t), nil)
	instance := filepath.Join(t.TempDir(), "bot-100")

	err := p.Provision(instance, domain.InstanceConfig{
		UID:         "100",
		Credential:  "secret",
		Name:        "worker",
		DisplayName: "Worker One",
	})
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(instance, "main.py")); err != nil {
		t.Fatalf("entry point not copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(instance, "assets", "data.txt")); err != nil {
		t.Fatalf("nested file not copied: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(instance, "config.json"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var cfg map[string]any
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config not valid json: %v", err)
	}

	account := cfg["account"].(map[string]any)
	if account["uid"] != "100" || account["password"] != "secret" {
		t.Fatalf("account section not written: %v", account)
	}
	// Pre-existing template keys survive the merge
	if account["region"] != "eu" {
		t.Fatalf("template account keys lost: %v", account)
	}
	if _, ok := cfg["settings"]; !ok {
		t.Fatalf("unrelated template config lost")
	}
	bot := cfg["bot"].(map[string]any)
	if bot["name"] != "worker" || bot["display_name"] != "Worker One" {
		t.Fatalf("bot section not written: %v", bot)
	}
}

func TestProvisionRefusesExistingInstanceDir(t *testing.T) {
	p := New(writeTemplate(t), nil)
	instance := filepath.Join(t.TempDir(), "bot-100")
	if err := os.MkdirAll(instance, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	marker := filepath.Join(instance, "keep.txt")
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	err := p.Provision(instance, domain.InstanceConfig{UID: "100"})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for existing directory, got %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("existing directory contents must be untouched: %v", err)
	}
}

func TestProvisionMissingTemplate(t *testing.T) {
	p := New(filepath.Join(t.TempDir(), "nope"), nil)
	if err := p.Provision(filepath.Join(t.TempDir(), "bot"), domain.InstanceConfig{}); err == nil {
		t.Fatalf("expected error for missing template directory")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	p := New(writeTemplate(t), nil)
	instance := filepath.Join(t.TempDir(), "bot-1")
	if err := p.Provision(instance, domain.InstanceConfig{UID: "1"}); err != nil {
		t.Fatalf("provision failed: %v", err)
	}
	if err := p.Destroy(instance); err != nil {
		t.Fatalf("destroy failed: %v", err)
	}
	if err := p.Destroy(instance); err != nil {
		t.Fatalf("second destroy should succeed: %v", err)
	}
}
