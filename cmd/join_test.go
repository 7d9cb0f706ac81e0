package cmd

import (
	"errors"
	"testing"

	"github.com/serozhenka/shary/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"SHARY_CONFIG", "SHARY_SERVER", "SHARY_USERNAME", "SHARY_TOKEN", "TURN_SERVER", "SHARY_FORCE_RELAY"} {
		t.Setenv(k, "")
	}
}

func TestLoadJoinConfig(t *testing.T) {
	clearEnv(t)

	if _, err := loadJoinConfig(config.Options{}); !errors.Is(err, config.ErrMissingRoom) {
		t.Errorf("missing room: got %v", err)
	}

	if _, err := loadJoinConfig(config.Options{Room: "r", ForceRelay: true}); err == nil {
		t.Errorf("force relay without TURN should fail")
	}

	cfg, err := loadJoinConfig(config.Options{Room: "r"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Username == "" {
		t.Errorf("username should fall back to a default")
	}

	cfg, err = loadJoinConfig(config.Options{Room: "r", Username: "ada", TURNServer: "turn.example.com", ForceRelay: true})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Username != "ada" || !cfg.ForceRelay {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"join", "relay"} {
		if c, _, err := rootCmd.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
}
