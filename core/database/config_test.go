package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "s3cret", Name: "formbot", SSLMode: "disable"}

	assert.Equal(t, "user=bot password=s3cret host=db port=5432 dbname=formbot sslmode=disable", DSN(cfg))
	assert.Equal(t, "postgres://bot:s3cret@db:5432/formbot?sslmode=disable", URL(cfg))
}

func TestURLEscapesPassword(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss/word", Name: "formbot", SSLMode: "require"}
	assert.Equal(t, "postgres://bot:p%40ss%2Fword@db:5432/formbot?sslmode=require", URL(cfg))
}

func TestMigrationFilesEmbedded(t *testing.T) {
	files := listMigrationFiles()
	assert.Equal(t, []string{"000001_form_sessions.up.sql", "000002_applications.up.sql"}, files)
	assert.Len(t, selectApplied(files, 0, 2), 2)
	assert.Empty(t, selectApplied(files, 2, 2))
	assert.Equal(t, uint64(2), parseVersion("000002_applications.up.sql"))
	assert.Zero(t, parseVersion("readme.sql"))
	assert.Equal(t, []string{"000002_applications.up.sql"}, selectApplied(files, 1, 2))
}
