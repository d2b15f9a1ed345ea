package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func saveAndRestore() func() {
	origVersion, origCommit, origBuildTime := Version, GitCommit, BuildTime
	return func() {
		Version = origVersion
		GitCommit = origCommit
		BuildTime = origBuildTime
	}
}

func TestFromBuildInfoDefaults(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "dev", "", ""

	info := fromBuildInfo(nil, false)
	if info.Version != "dev" {
		t.Errorf("expected version 'dev', got %q", info.Version)
	}
	if info.IsRelease() {
		t.Error("dev should not be a release")
	}
	if !info.BuildDate.IsZero() {
		t.Errorf("expected no build date, got %v", info.BuildDate)
	}
	if info.GoVersion == "" || !strings.Contains(info.Platform, "/") {
		t.Errorf("expected runtime fields, got %+v", info)
	}
}

func TestFromBuildInfoLinkerVariablesWin(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "1.0.0", "abc1234", "2024-01-15T10:30:00Z"

	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/kbukum/memexec", Version: "v0.9.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "ffffffffffffffffffff"},
			{Key: "vcs.time", Value: "2020-01-01T00:00:00Z"},
		},
	}
	info := fromBuildInfo(bi, true)
	if info.Version != "1.0.0" || info.GitCommit != "abc1234" {
		t.Errorf("linker values overridden: %+v", info)
	}
	if info.BuildDate.Year() != 2024 {
		t.Errorf("expected build year 2024, got %d", info.BuildDate.Year())
	}
	if info.Module != "github.com/kbukum/memexec" {
		t.Errorf("unexpected module %q", info.Module)
	}
	if !info.IsRelease() {
		t.Error("1.0.0 should be a release")
	}
}

func TestFromBuildInfoVCSFallback(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "dev", "", ""

	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/kbukum/memexec", Version: "(devel)"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "vcs.time", Value: "2025-03-01T08:00:00Z"},
		},
	}
	info := fromBuildInfo(bi, true)
	if info.Version != "dev" {
		t.Errorf("(devel) must not replace dev, got %q", info.Version)
	}
	if info.GitCommit != "0123456789ab" {
		t.Errorf("expected truncated commit, got %q", info.GitCommit)
	}
	if !info.IsDirty || info.IsRelease() {
		t.Errorf("expected dirty non-release, got %+v", info)
	}
	if got := info.Short(); got != "dev-0123456789ab-dirty" {
		t.Errorf("unexpected short version %q", got)
	}
	if !strings.Contains(info.String(), "(built 2025-03-01T08:00:00Z)") {
		t.Errorf("expected build date in %q", info.String())
	}
}

func TestFromBuildInfoModuleVersion(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "dev", "", ""

	info := fromBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "v1.4.2"}}, true)
	if info.Version != "v1.4.2" {
		t.Errorf("expected module version, got %q", info.Version)
	}
}

func TestStringWithoutBuildDate(t *testing.T) {
	info := Info{Version: "dev", GoVersion: "go1.26.0", Platform: "linux/amd64"}
	if got := info.String(); got != "memrun dev go1.26.0 linux/amd64" {
		t.Errorf("unexpected string %q", got)
	}
}
