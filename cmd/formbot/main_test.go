package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredatabase "github.com/m3rciful/formbot/core/database"
	"github.com/m3rciful/formbot/form/lang"
	"github.com/m3rciful/formbot/form/record"
	"github.com/m3rciful/formbot/form/record/boltlog"
	"github.com/m3rciful/formbot/form/script"
	"github.com/m3rciful/formbot/form/session"
	"github.com/m3rciful/formbot/form/session/boltstore"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func boltEnv(t *testing.T) (configFile, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "formbot.db")
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("GROUP_CHAT_ID", "-100500")
	t.Setenv("TELEGRAM_RUN_MODE", "longpoll")
	t.Setenv("SESSIONS_DRIVER", "bolt")
	t.Setenv("RECORDS_DRIVER", "bolt")
	t.Setenv("BOLT_PATH", dbPath)
	t.Setenv("FORM_SESSION_TTL", "1h")
	return filepath.Join(dir, "missing.yaml"), dbPath
}

func seed(t *testing.T, dbPath string) record.Record {
	t.Helper()
	ctx := context.Background()
	db, err := coredatabase.OpenBolt(dbPath)
	require.NoError(t, err)
	defer db.Close()

	store, err := boltstore.New(db)
	require.NoError(t, err)
	now := time.Now()
	stale := session.New("100", lang.RU, now.Add(-3*time.Hour))
	require.NoError(t, store.Put(ctx, stale))
	require.NoError(t, store.Put(ctx, session.New("200", lang.UZ, now)))

	log, err := boltlog.New(db)
	require.NoError(t, err)
	done := session.New("300", lang.RU, now)
	done.Answers = []session.Answer{{Step: script.StepName, Kind: script.KindText, Value: "Иван"}}
	done.Step = 1
	r := record.FromSession(done, now)
	require.NoError(t, log.Append(ctx, r))
	return r
}

func TestRecordsAndSessionsCommands(t *testing.T) {
	cfgFile, dbPath := boltEnv(t)
	r := seed(t, dbPath)

	out, err := execute(t, "records", "--config", cfgFile, "--limit", "5", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, r.ID)
	assert.Contains(t, out, "Иван")

	out, err = execute(t, "records", "--config", cfgFile, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"id":"`+r.ID+`"`)

	out, err = execute(t, "sessions", "--config", cfgFile, "--sweep=false")
	require.NoError(t, err)
	assert.Contains(t, out, "- 100")
	assert.Contains(t, out, "- 200")

	out, err = execute(t, "sessions", "--config", cfgFile, "--sweep")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 expired session(s).")
	assert.NotContains(t, out, "- 100")
	assert.Contains(t, out, "- 200")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "formbot dev")
}

func TestConfigErrors(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("BOT_TOKEN_SSM_PARAM", "")
	_, err := execute(t, "records", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	require.Error(t, err)
}
