package sqlquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorker(t *testing.T) {
	w, err := NewWorker("s1", map[string]any{
		"dsn":    "postgres://localhost/test",
		"query":  "SELECT * FROM users WHERE id = $1",
		"params": []any{"{user_id}"},
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", w.ID())
	assert.Equal(t, "sqlquery", w.Type())
	assert.Equal(t, "postgres", w.driver)
}

func TestNewWorker_DriverOverride(t *testing.T) {
	w, err := NewWorker("s2", map[string]any{
		"dsn":    "file:test.db",
		"query":  "SELECT 1",
		"driver": "sqlite",
	})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", w.driver)
}

func TestNewWorker_MissingRequiredFields(t *testing.T) {
	_, err := NewWorker("bad", map[string]any{"dsn": "postgres://localhost/test"})
	assert.Error(t, err, "query is required")

	_, err = NewWorker("bad", map[string]any{"query": "SELECT 1"})
	assert.Error(t, err, "dsn is required")
}

func TestIsQuery(t *testing.T) {
	assert.True(t, isQuery("SELECT * FROM users"))
	assert.True(t, isQuery("  select 1"))
	assert.True(t, isQuery("WITH t AS (SELECT 1) SELECT * FROM t"))
	assert.False(t, isQuery("INSERT INTO users VALUES ($1)"))
	assert.False(t, isQuery("UPDATE users SET name = $1"))
	assert.False(t, isQuery("DELETE FROM users"))
}

func TestFactory(t *testing.T) {
	f := NewFactory()

	assert.Equal(t, "sqlquery", f.ID())

	schema := f.Schema()
	require.NotNil(t, schema)
	assert.Contains(t, schema["required"], "dsn")
	assert.Contains(t, schema["required"], "query")
}
