package cmd

import (
	"testing"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/vface/internal/config"
)

func newServeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	c := &cobra.Command{Use: "serve"}
	c.Flags().Int("port", 0, "")
	c.Flags().String("host", "", "")
	c.Flags().Int("max-concurrent", -1, "")
	if err := c.Flags().Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return c
}

func TestApplyServeFlags_Defaults(t *testing.T) {
	cfg := config.Defaults()
	applyServeFlags(newServeFlags(t), cfg)

	if cfg.Web.Port != 8080 || cfg.Web.Host != "0.0.0.0" || cfg.Server.MaxConcurrent != 0 {
		t.Errorf("unset flags should keep config, got %s max=%d", cfg.Web.Addr(), cfg.Server.MaxConcurrent)
	}
}

func TestApplyServeFlags_Overrides(t *testing.T) {
	cfg := config.Defaults()
	applyServeFlags(newServeFlags(t, "--port", "9100", "--host", "127.0.0.1", "--max-concurrent", "1"), cfg)

	if cfg.Web.Addr() != "127.0.0.1:9100" {
		t.Errorf("expected 127.0.0.1:9100, got %s", cfg.Web.Addr())
	}
	if cfg.Server.MaxConcurrent != 1 {
		t.Errorf("expected serial serving, got %d", cfg.Server.MaxConcurrent)
	}
}
