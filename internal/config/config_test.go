package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Training.PassingScore != 80 {
		t.Fatalf("expected passing score 80, got %d", cfg.Training.PassingScore)
	}
	if cfg.Notifications.Limit != 10 || cfg.Notifications.TaskLimit != 6 {
		t.Fatalf("unexpected notification caps: %+v", cfg.Notifications)
	}
	if cfg.Locale != "en" {
		t.Fatalf("expected locale en, got %s", cfg.Locale)
	}
}

func TestClaimsNormalized(t *testing.T) {
	cfg, err := FromYAML([]byte(`
claims:
  cfo: ["  Dana.CFO@Example.com "]
  ops: [Ops Person]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Claims.CFO[0] != "dana.cfo@example.com" {
		t.Fatalf("cfo claim not normalized: %q", cfg.Claims.CFO[0])
	}
	if cfg.Claims.Ops[0] != "ops person" {
		t.Fatalf("ops claim not normalized: %q", cfg.Claims.Ops[0])
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"passing score":  "training:\n  passing_score: 150\n",
		"empty claim":    "claims:\n  cfo: [\"  \"]\n",
		"bad limit":      "notifications:\n  limit: -1\n",
		"limit over 10":  "notifications:\n  limit: 50\n",
		"tasks over 6":   "notifications:\n  task_limit: 40\n",
		"tasks negative": "notifications:\n  task_limit: -1\n",
		"bad yaml":       "claims: [",
		"webhook url":    "webhooks:\n  - events: [approval.decided]\n",
		"webhook tmo":    "webhooks:\n  - url: http://hooks.local\n    timeout_seconds: -2\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNotificationCapsMayBeLowered(t *testing.T) {
	cfg, err := FromYAML([]byte("notifications:\n  limit: 4\n  task_limit: 0\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Notifications.Limit != 4 {
		t.Fatalf("expected limit 4, got %d", cfg.Notifications.Limit)
	}
	if cfg.Notifications.TaskLimit != DefaultTaskLimit {
		t.Fatalf("unset task_limit should default to %d, got %d", DefaultTaskLimit, cfg.Notifications.TaskLimit)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Training.PassingScore != DefaultPassingScore {
		t.Fatalf("expected defaults")
	}
	if err := os.WriteFile(filepath.Join(dir, "peopleops.yml"), []byte("training:\n  passing_score: 70\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Training.PassingScore != 70 {
		t.Fatalf("expected 70, got %d", cfg.Training.PassingScore)
	}
}

func TestWebhooksParsed(t *testing.T) {
	cfg, err := FromYAML([]byte(`
webhooks:
  - url: https://hooks.example.com/hr
    secret: shh
    events: [approval.decided]
    enabled: false
    timeout_seconds: 3
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Webhooks) != 1 {
		t.Fatalf("expected one webhook, got %d", len(cfg.Webhooks))
	}
	hook := cfg.Webhooks[0]
	if hook.Secret != "shh" || hook.TimeoutSeconds != 3 || hook.Events[0] != "approval.decided" {
		t.Fatalf("unexpected webhook: %+v", hook)
	}
	if hook.Enabled == nil || *hook.Enabled {
		t.Fatalf("expected enabled=false to be kept")
	}
}
