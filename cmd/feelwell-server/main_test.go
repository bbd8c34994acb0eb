package main

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/feelwell/feelwell/internal/config"
)

func TestSigningKey_FromSecret(t *testing.T) {
	key, generated, err := signingKey(&config.Config{Env: "production", JWTSecret: "s3cret"})
	if err != nil {
		t.Fatal(err)
	}
	if generated || string(key) != "s3cret" {
		t.Errorf("expected configured secret, got %q generated=%v", key, generated)
	}
}

func TestSigningKey_RandomInDevelopment(t *testing.T) {
	a, generated, err := signingKey(&config.Config{Env: "development"})
	if err != nil {
		t.Fatal(err)
	}
	if !generated || len(a) != 32 {
		t.Fatalf("expected 32 random bytes, got %d generated=%v", len(a), generated)
	}
	b, _, _ := signingKey(&config.Config{Env: "development"})
	if string(a) == string(b) {
		t.Error("expected distinct random keys")
	}
}

func TestSigningKey_RequiredOutsideDevelopment(t *testing.T) {
	if _, _, err := signingKey(&config.Config{Env: "production"}); err == nil {
		t.Error("expected error without JWT_SECRET in production")
	}
}

func TestRateLimitConfig(t *testing.T) {
	rl := rateLimitConfig(&config.Config{})
	if rl.RequestsPerSecond != 50 || rl.BurstSize != 100 {
		t.Errorf("expected defaults, got %+v", rl)
	}
	rl = rateLimitConfig(&config.Config{RateLimitRPS: 5, RateLimitBurst: 10})
	if rl.RequestsPerSecond != 5 || rl.BurstSize != 10 {
		t.Errorf("expected configured values, got %+v", rl)
	}
	if rl.IdleTTL <= 0 {
		t.Error("expected idle TTL to keep its default")
	}
}

func TestOpenRepositories_UnknownDriver(t *testing.T) {
	_, err := openRepositories(context.Background(), &config.Config{StoreDriver: "sqlite"}, zerolog.Nop())
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestCommands(t *testing.T) {
	want := map[string][]string{
		"serve":   nil,
		"migrate": {"up", "status"},
		"repair":  {"roles"},
	}
	for _, cmd := range []*cobra.Command{serveCmd(), migrateCmd(), repairCmd()} {
		if _, ok := want[cmd.Name()]; !ok {
			t.Errorf("unexpected command %q", cmd.Name())
		}
	}

	for _, sub := range migrateCmd().Commands() {
		if sub.Flags().Lookup("dir") == nil {
			t.Errorf("migrate %s: missing --dir flag", sub.Name())
		}
	}
	roles, _, err := repairCmd().Find([]string{"roles"})
	if err != nil {
		t.Fatal(err)
	}
	if roles.Flags().Lookup("dry-run") == nil {
		t.Error("repair roles: missing --dry-run flag")
	}
	if n := len(migrateCmd().Commands()); n != len(want["migrate"]) {
		t.Errorf("expected %d migrate subcommands, got %d", len(want["migrate"]), n)
	}
}
