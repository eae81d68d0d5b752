package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var requiredEnv = map[string]string{
	mailchimpAPIKeyEnv:           "abc123-us3",
	mailchimpFromNameEnv:         "Vlaamse overheid",
	mailchimpReplyToEnv:          "pers@vlaanderen.be",
	mailchimpListIDEnv:           "list-1",
	mailchimpInterestCategoryEnv: "cat-themes",
	mailchimpKindCategoryEnv:     "cat-kinds",
}

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(configPathEnv, "")
	for k, v := range requiredEnv {
		t.Setenv(k, v)
	}
}

func TestLoadFailsWhenRequiredSettingsMissing(t *testing.T) {
	t.Setenv(configPathEnv, "")
	for k := range requiredEnv {
		t.Setenv(k, "")
	}

	_, err := Load("")
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	for env := range requiredEnv {
		if !strings.Contains(cfgErr.Error(), env) {
			t.Fatalf("expected %s to be reported, got %q", env, cfgErr.Error())
		}
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(sweepIntervalEnv, "90")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Mailchimp.ListID != "list-1" {
		t.Fatalf("unexpected list id: %s", cfg.Mailchimp.ListID)
	}
	if cfg.Mailchimp.DataCenter() != "us3" {
		t.Fatalf("expected data center from key suffix, got %s", cfg.Mailchimp.DataCenter())
	}
	if cfg.Retry.MaxAttempts != 4 || cfg.Retry.Delay != 2*time.Second {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Sweep.Interval != 90*time.Second {
		t.Fatalf("unexpected sweep interval: %s", cfg.Sweep.Interval)
	}
	if cfg.Store.Driver != DriverSPARQL {
		t.Fatalf("unexpected default driver: %s", cfg.Store.Driver)
	}
	if len(cfg.Publication.KindLabels) != 2 {
		t.Fatalf("expected two kind labels, got %v", cfg.Publication.KindLabels)
	}
}

func TestLoadMergesYAMLAndEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(mailchimpListIDEnv, "")
	t.Setenv(databaseDSNEnv, "postgres://publisher@db/publisher")

	dir := t.TempDir()
	path := filepath.Join(dir, "publisher.yaml")
	raw := `
mailchimp:
  listId: yaml-list
  server: us9
retry:
  maxAttempts: 2
  delay: 10ms
store:
  driver: postgres
render:
  timezone: UTC
  creators: ["Kabinet Jambon"]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Mailchimp.ListID != "yaml-list" {
		t.Fatalf("expected list id from yaml, got %s", cfg.Mailchimp.ListID)
	}
	if cfg.Mailchimp.DataCenter() != "us9" {
		t.Fatalf("explicit server must win, got %s", cfg.Mailchimp.DataCenter())
	}
	if cfg.Retry.MaxAttempts != 2 || cfg.Retry.Delay != 10*time.Millisecond {
		t.Fatalf("unexpected retry config: %+v", cfg.Retry)
	}
	if cfg.Store.DSN != "postgres://publisher@db/publisher" {
		t.Fatalf("expected DSN from env, got %s", cfg.Store.DSN)
	}
	if cfg.Render.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %s", cfg.Render.Location())
	}
	if cfg.Mailchimp.PageSize != 1000 {
		t.Fatalf("defaults must survive yaml merge, page size %d", cfg.Mailchimp.PageSize)
	}
}

func TestValidateRejectsPostgresWithoutDSN(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.Mailchimp.APIKey = "k-us1"
	cfg.Mailchimp.FromName = "x"
	cfg.Mailchimp.ReplyTo = "x@example.org"
	cfg.Mailchimp.ListID = "l"
	cfg.Mailchimp.InterestCategoryID = "c1"
	cfg.Mailchimp.KindCategoryID = "c2"
	cfg.Store.Driver = DriverPostgres

	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), databaseDSNEnv) {
		t.Fatalf("expected missing %s, got %v", databaseDSNEnv, err)
	}
}
