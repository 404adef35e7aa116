package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehmetcc/zerodrop/internal/testutil"
)

func newExecutor(t *testing.T) QueryExecutor {
	t.Helper()
	db := testutil.NewDB(t)
	require.NoError(t, db.Exec(`CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT, weight REAL)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO widgets (name, weight) VALUES ('bolt', 1.5), ('nut', 0.25)`).Error)

	executor, err := NewQueryExecutor(db)
	require.NoError(t, err)
	return executor
}

func TestExecute_RowsKeepColumnOrder(t *testing.T) {
	executor := newExecutor(t)

	res, err := executor.Execute(context.Background(), "SELECT name, id, weight FROM widgets ORDER BY id")
	require.NoError(t, err)
	require.True(t, res.ReturnsRows)
	require.Len(t, res.Rows, 2)

	data, err := json.Marshal(res.Rows)
	require.NoError(t, err)
	assert.Equal(t, `[{"name":"bolt","id":1,"weight":1.5},{"name":"nut","id":2,"weight":0.25}]`, string(data))
}

func TestExecute_EmptyResultIsEmptyArray(t *testing.T) {
	executor := newExecutor(t)

	res, err := executor.Execute(context.Background(), "SELECT * FROM widgets WHERE id < 0")
	require.NoError(t, err)

	data, err := json.Marshal(res.Rows)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestExecute_RowsAffected(t *testing.T) {
	executor := newExecutor(t)

	res, err := executor.Execute(context.Background(), "UPDATE widgets SET weight = 2")
	require.NoError(t, err)
	assert.False(t, res.ReturnsRows)
	assert.Equal(t, int64(2), res.RowsAffected)

	res, err = executor.Execute(context.Background(), "DELETE FROM widgets WHERE name = 'nut' RETURNING id")
	require.NoError(t, err)
	assert.True(t, res.ReturnsRows)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"id"}, res.Rows[0].Columns)
}

func TestExecute_ReturningInsideLiteralIsNotRows(t *testing.T) {
	executor := newExecutor(t)

	res, err := executor.Execute(context.Background(), "INSERT INTO widgets (name, weight) VALUES ('returning', 3)")
	require.NoError(t, err)
	assert.False(t, res.ReturnsRows)
	assert.Equal(t, int64(1), res.RowsAffected)
}

func TestExecute_DriverErrorIsDBError(t *testing.T) {
	executor := newExecutor(t)

	_, err := executor.Execute(context.Background(), "SELECT * FROM missing_table")
	assert.ErrorIs(t, err, ErrDatabase)
	assert.Contains(t, err.Error(), "missing_table")

	// The connection went back to the pool despite the failure.
	_, err = executor.Execute(context.Background(), "SELECT 1")
	assert.NoError(t, err)
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT 1", true},
		{"  select * from t", true},
		{"WITH x AS (SELECT 1) SELECT * FROM x", true},
		{"(SELECT 1)", true},
		{"-- leading comment\nSELECT 1", true},
		{"/* block */ SELECT 1", true},
		{"PRAGMA table_info(t)", true},
		{"EXPLAIN SELECT 1", true},
		{"INSERT INTO t VALUES (1)", false},
		{"INSERT INTO t VALUES (1) RETURNING id", true},
		{"INSERT INTO t VALUES ('returning')", false},
		{`INSERT INTO t VALUES ('it''s RETURNING') RETURNING id`, true},
		{`UPDATE t SET "returning" = 1`, false},
		{"DELETE FROM t WHERE a = 1 returning *", true},
		{"UPDATE t SET a = 1", false},
		{"DELETE FROM t", false},
		{"CREATE TABLE t (id int)", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ReturnsRows(tt.query))
		})
	}
}
