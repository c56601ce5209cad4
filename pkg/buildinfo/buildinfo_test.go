package buildinfo

import (
	"runtime"
	"testing"
)

func TestGet_ReturnsCorrectDefaults(t *testing.T) {
	info := Get("emlsync")

	if info.Name != "emlsync" {
		t.Errorf("expected Name='emlsync', got %q", info.Name)
	}
	if info.Version != "dev" {
		t.Errorf("expected Version='dev', got %q", info.Version)
	}
	if info.Commit != "unknown" {
		t.Errorf("expected Commit='unknown', got %q", info.Commit)
	}
	if info.BuildTime != "unknown" {
		t.Errorf("expected BuildTime='unknown', got %q", info.BuildTime)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("expected GoVersion=%q, got %q", runtime.Version(), info.GoVersion)
	}
}

func TestString_DefaultFormat(t *testing.T) {
	result := String()
	expected := "dev (unknown, unknown)"

	if result != expected {
		t.Errorf("expected String()=%q, got %q", expected, result)
	}
}

func TestString_CustomValues(t *testing.T) {
	origVersion := Version
	origCommit := Commit
	origBuildTime := BuildTime
	defer func() {
		Version = origVersion
		Commit = origCommit
		BuildTime = origBuildTime
	}()

	Version = "v0.3.0"
	Commit = "4c1d9e2"
	BuildTime = "2026-10-19T08:00:00Z"

	result := String()
	expected := "v0.3.0 (4c1d9e2, 2026-10-19T08:00:00Z)"

	if result != expected {
		t.Errorf("expected String()=%q, got %q", expected, result)
	}
	if ua := UserAgent("emlsync"); ua != "emlsync/v0.3.0" {
		t.Errorf("expected UserAgent()=%q, got %q", "emlsync/v0.3.0", ua)
	}
}
