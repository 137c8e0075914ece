package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/bmp"
	"gopkg.in/yaml.v3"

	"facegate/internal/device/sim"
	"facegate/internal/journal"
	"facegate/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Driver: simulator")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestEnrollAuthenticateAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"enroll", "alice"}, env.configPath)
	if err != nil {
		t.Fatalf("enroll: %v", err)
	}
	requireContains(t, out, "Enroll Success")

	out, _, err = runCLI(t, []string{"users", "list", "--format", "json"}, env.configPath)
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	var users []string
	if err := json.Unmarshal([]byte(out), &users); err != nil {
		t.Fatalf("decode users: %v\n%s", err, out)
	}
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("expected [alice], got %v", users)
	}

	t.Setenv(sim.FaceEnv, "alice")
	out, _, err = runCLI(t, []string{"auth"}, env.configPath)
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	requireContains(t, out, `Success "alice"`)

	t.Setenv(sim.FaceEnv, "mallory")
	if _, _, err := runCLI(t, []string{"auth"}, env.configPath); err == nil {
		t.Fatal("expected unknown face to fail authentication")
	}

	out, _, err = runCLI(t, []string{"history", "--format", "json", "--limit", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var entries []journal.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode history: %v\n%s", err, out)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Result != "failure" || entries[1].MatchedIdentity != "alice" {
		t.Fatalf("unexpected history order: %+v", entries)
	}

	out, _, err = runCLI(t, []string{"history", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("history clear: %v", err)
	}
	requireContains(t, out, "Removed")
}

func TestServerModeUsers(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithServerMode())

	if _, _, err := runCLI(t, []string{"enroll", "bob"}, env.configPath); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if _, _, err := runCLI(t, []string{"enroll", "bob"}, env.configPath); err == nil {
		t.Fatal("expected duplicate enroll to fail")
	}

	out, _, err := runCLI(t, []string{"users", "list", "--format", "yaml"}, env.configPath)
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	var users []string
	if err := yaml.Unmarshal([]byte(out), &users); err != nil {
		t.Fatalf("decode users: %v\n%s", err, out)
	}
	if len(users) != 1 || users[0] != "bob" {
		t.Fatalf("expected [bob], got %v", users)
	}

	if _, _, err := runCLI(t, []string{"standby"}, env.configPath); err == nil {
		t.Fatal("expected standby to be rejected in server mode")
	}

	if _, _, err := runCLI(t, []string{"users", "delete", "bob"}, env.configPath); err != nil {
		t.Fatalf("users delete: %v", err)
	}
	out, _, err = runCLI(t, []string{"users", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("users list: %v", err)
	}
	requireContains(t, out, "No users enrolled")
}

func TestUsersDeleteArguments(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"users", "delete"}, env.configPath); err == nil {
		t.Fatal("expected error without identity or --all")
	}
	if _, _, err := runCLI(t, []string{"users", "delete", "alice", "--all"}, env.configPath); err == nil {
		t.Fatal("expected error with both identity and --all")
	}
}

func TestSettingsSetAndShow(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"settings", "set"}, env.configPath); err == nil {
		t.Fatal("expected error without flags")
	}
	if _, _, err := runCLI(t, []string{"settings", "set", "--security", "paranoid"}, env.configPath); err == nil {
		t.Fatal("expected error for invalid security level")
	}

	out, _, err := runCLI(t, []string{"settings", "set", "--rotation", "180"}, env.configPath)
	if err != nil {
		t.Fatalf("settings set: %v", err)
	}
	requireContains(t, out, "AuthSettings Done")

	out, _, err = runCLI(t, []string{"settings", "show", "--format", "json"}, env.configPath)
	if err != nil {
		t.Fatalf("settings show: %v", err)
	}
	var settings settingsOutput
	if err := json.Unmarshal([]byte(out), &settings); err != nil {
		t.Fatalf("decode settings: %v\n%s", err, out)
	}
	if settings.Rotation != "180" || settings.Security != "High" {
		t.Fatalf("unexpected settings %+v", settings)
	}
}

func TestInfoReportsFirmware(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"info", "--format", "json"}, env.configPath)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	var report infoReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode info: %v\n%s", err, out)
	}
	if report.Device == nil || !report.Device.Paired {
		t.Fatalf("expected paired device, got %+v", report.Device)
	}
	if report.Mode != "local" {
		t.Fatalf("expected local mode, got %q", report.Mode)
	}
}

func TestPreviewSnapshot(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "shots", "frame.bmp")

	out, _, err := runCLI(t, []string{"preview", "snapshot", "--out", target, "--frames", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("preview snapshot: %v", err)
	}
	requireContains(t, out, "Wrote snapshot")

	file, err := os.Open(target)
	if err != nil {
		t.Fatalf("open snapshot: %v", err)
	}
	defer file.Close()
	img, err := bmp.Decode(file)
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if img.Bounds().Dx() == 0 || img.Bounds().Dy() == 0 {
		t.Fatalf("unexpected snapshot bounds %v", img.Bounds())
	}
}

func TestDoctorWithSimulator(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "Device driver:")
	requireContains(t, out, "[OK]")
}

func TestRejectsUnknownFormat(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"history", "--format", "xml"}, env.configPath); err == nil {
		t.Fatal("expected unknown format to fail")
	}
}
