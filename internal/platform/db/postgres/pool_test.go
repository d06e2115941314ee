package postgres

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/ogurasousui/staff-bot/internal/platform/config"
	"github.com/rs/zerolog"
)

func TestBuildPoolConfig(t *testing.T) {
	t.Parallel()

	dbCfg := config.DatabaseConfig{
		Host:            "localhost",
		Port:            15432,
		User:            "user",
		Password:        "pass",
		Name:            "staffbot",
		SSLMode:         "disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 10 * time.Minute,
	}

	poolCfg, err := BuildPoolConfig(dbCfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("BuildPoolConfig returned error: %v", err)
	}

	if poolCfg.MaxConns != 20 {
		t.Errorf("expected MaxConns 20, got %d", poolCfg.MaxConns)
	}
	if poolCfg.MinConns != 5 {
		t.Errorf("expected MinConns 5, got %d", poolCfg.MinConns)
	}
	if poolCfg.MaxConnLifetime != 30*time.Minute {
		t.Errorf("unexpected MaxConnLifetime: %v", poolCfg.MaxConnLifetime)
	}
	if poolCfg.MaxConnIdleTime != 10*time.Minute {
		t.Errorf("unexpected MaxConnIdleTime: %v", poolCfg.MaxConnIdleTime)
	}
	if poolCfg.ConnConfig.Database != "staffbot" {
		t.Errorf("expected database staffbot, got %s", poolCfg.ConnConfig.Database)
	}
	if _, ok := poolCfg.ConnConfig.Tracer.(*tracelog.TraceLog); !ok {
		t.Errorf("expected query tracer to be installed")
	}
}

func TestQueryLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := queryLogger(zerolog.New(&buf))

	log(context.Background(), tracelog.LogLevelError, "Query", map[string]any{"sql": "SELECT 1"})

	out := buf.String()
	if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, `"sql":"SELECT 1"`) {
		t.Fatalf("unexpected log output: %s", out)
	}
}
