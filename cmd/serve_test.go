package cmd

import (
	"strings"
	"testing"

	orcdconfig "github.com/nextlevelbuilder/orcd/internal/config"
	"github.com/nextlevelbuilder/orcd/internal/layout"
)

func TestResolveRegistryPath_ExpandsHomeTilde(t *testing.T) {
	cfg := &orcdconfig.Config{}
	cfg.Registry.Path = "~/.claude-orc/registry.json"

	got := resolveRegistryPath(cfg)

	if strings.HasPrefix(got, "~") {
		t.Errorf("resolveRegistryPath() = %q, want tilde expanded", got)
	}
	if !strings.HasSuffix(got, "/.claude-orc/registry.json") {
		t.Errorf("resolveRegistryPath() = %q, want suffix preserved", got)
	}
}

func TestResolveRegistryPath_LeavesAbsolutePathAlone(t *testing.T) {
	cfg := &orcdconfig.Config{}
	cfg.Registry.Path = "/var/lib/orcd/registry.json"

	got := resolveRegistryPath(cfg)

	if got != "/var/lib/orcd/registry.json" {
		t.Errorf("resolveRegistryPath() = %q, want unchanged", got)
	}
}

func TestResolveHistoryDBPath_ExpandsHomeTilde(t *testing.T) {
	cfg := &orcdconfig.Config{}
	cfg.Registry.HistoryDBPath = "~/.claude-orc/history.db"

	got := resolveHistoryDBPath(cfg)

	if strings.HasPrefix(got, "~") {
		t.Errorf("resolveHistoryDBPath() = %q, want tilde expanded", got)
	}
	if !strings.HasSuffix(got, "/.claude-orc/history.db") {
		t.Errorf("resolveHistoryDBPath() = %q, want suffix preserved", got)
	}
}

func TestResolveHistoryDBPath_Empty(t *testing.T) {
	cfg := &orcdconfig.Config{}
	if got := resolveHistoryDBPath(cfg); got != "" {
		t.Errorf("resolveHistoryDBPath() = %q, want empty when unconfigured", got)
	}
}

func TestResolveLayout_TemplateName(t *testing.T) {
	fl := orcdconfig.FlexibleLayout{TemplateName: "2x2"}

	got, err := resolveLayout(fl)
	if err != nil {
		t.Fatalf("resolveLayout() error: %v", err)
	}
	want := layout.Templates["2x2"]
	if got.Kind != want.Kind || got.Rows != want.Rows || got.Cols != want.Cols {
		t.Errorf("resolveLayout() = %+v, want template %+v", got, want)
	}
}

func TestResolveLayout_UnknownTemplateName(t *testing.T) {
	fl := orcdconfig.FlexibleLayout{TemplateName: "bogus"}

	if _, err := resolveLayout(fl); err == nil {
		t.Error("resolveLayout() error = nil for unknown template, want non-nil")
	}
}

func TestResolveLayout_CustomObjectForm(t *testing.T) {
	fl := orcdconfig.FlexibleLayout{
		Kind:    "custom",
		Splits:  []orcdconfig.LayoutSplit{{Target: 0, Direction: "v", SizePct: 50}},
		MainPct: 60,
	}

	got, err := resolveLayout(fl)
	if err != nil {
		t.Fatalf("resolveLayout() error: %v", err)
	}
	if got.Kind != layout.Custom {
		t.Errorf("Kind = %v, want Custom", got.Kind)
	}
	if len(got.Splits) != 1 || got.Splits[0].Target != 0 || got.Splits[0].Direction != "v" {
		t.Errorf("Splits = %+v, want one matching split", got.Splits)
	}
}

func TestResolveConfigPath_FlagOverridesDefault(t *testing.T) {
	old := cfgPath
	defer func() { cfgPath = old }()

	cfgPath = "/tmp/custom-config.json"
	if got := resolveConfigPath(); got != "/tmp/custom-config.json" {
		t.Errorf("resolveConfigPath() = %q, want flag value", got)
	}
}
