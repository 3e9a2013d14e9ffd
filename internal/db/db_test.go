package db

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	d, err := OpenMemory(context.Background(), t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM questions WHERE quiz_id = $1 AND id <> $2`
	assert.Equal(t, q, Rebind(DriverPostgres, q))
	assert.Equal(t, `SELECT * FROM questions WHERE quiz_id = ? AND id <> ?`, Rebind(DriverMySQL, q))
	assert.Equal(t, `SELECT * FROM questions WHERE quiz_id = ?1 AND id <> ?2`, Rebind(DriverSQLite, q))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3, $4, $5", Placeholders(3, 3))
	assert.Equal(t, "", Placeholders(1, 0))
}

func TestParseDriver(t *testing.T) {
	for in, want := range map[string]Driver{"": DriverSQLite, "pgx": DriverPostgres, "MariaDB": DriverMySQL} {
		got, err := ParseDriver(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseDriver("oracle")
	assert.Error(t, err)
}

func TestStatementsPerDialect(t *testing.T) {
	for _, drv := range []Driver{DriverSQLite, DriverPostgres, DriverMySQL} {
		for _, s := range Statements(drv) {
			assert.NotContains(t, s, "{{", "unreplaced token for %s", drv)
		}
	}
	assert.Contains(t, Statements(DriverMySQL)[0], "AUTO_INCREMENT")
	assert.Contains(t, Statements(DriverPostgres)[0], "BIGSERIAL")
}

func TestSeedDemoIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)

	wrote, err := SeedDemo(ctx, d)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = SeedDemo(ctx, d)
	require.NoError(t, err)
	assert.False(t, wrote)

	var n int
	require.NoError(t, d.QueryRowContext(ctx, `SELECT COUNT(1) FROM question_options`).Scan(&n))
	assert.Equal(t, 8, n)
}

func TestQuotaTriggerRejectsOverflow(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	_, err := SeedDemo(ctx, d)
	require.NoError(t, err)

	var quizID int64
	require.NoError(t, d.QueryRowContext(ctx, `SELECT id FROM quizzes`).Scan(&quizID))

	// demo quiz is already at its ceiling of 10
	_, err = d.InsertID(ctx, `INSERT INTO questions (quiz_id, content, score, created_at) VALUES ($1, $2, $3, $4)`,
		quizID, "one more", 1.0, int64(0))
	require.Error(t, err)
	assert.True(t, IsQuotaViolation(err))

	_, err = d.ExecContext(ctx, `UPDATE questions SET score = $1 WHERE quiz_id = $2 AND content LIKE $3`,
		6.0, quizID, "Which SQL%")
	require.Error(t, err)
	assert.True(t, IsQuotaViolation(err))

	// lowering a score stays within the ceiling
	_, err = d.ExecContext(ctx, `UPDATE questions SET score = $1 WHERE quiz_id = $2 AND content LIKE $3`,
		4.0, quizID, "Which SQL%")
	require.NoError(t, err)
}

func TestQuotaTriggerGuardsQuizCeiling(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	_, err := SeedDemo(ctx, d)
	require.NoError(t, err)

	var quizID int64
	require.NoError(t, d.QueryRowContext(ctx, `SELECT id FROM quizzes`).Scan(&quizID))

	// questions sum to 10; the ceiling cannot drop below that
	_, err = d.ExecContext(ctx, `UPDATE quizzes SET total_score = $1 WHERE id = $2`, 9.5, quizID)
	require.Error(t, err)
	assert.True(t, IsQuotaViolation(err))

	_, err = d.ExecContext(ctx, `UPDATE quizzes SET total_score = $1 WHERE id = $2`, 10.0, quizID)
	require.NoError(t, err)

	// other columns are not guarded
	_, err = d.ExecContext(ctx, `UPDATE quizzes SET duration = $1 WHERE id = $2`, 20, quizID)
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	boom := errors.New("boom")

	err := WithTx(ctx, d, nil, func(tx *Tx) error {
		if _, err := tx.InsertID(ctx, `INSERT INTO categories (name, parent_id) VALUES ($1, $2)`, "tmp", nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, d.QueryRowContext(ctx, `SELECT COUNT(1) FROM categories`).Scan(&n))
	assert.Zero(t, n)
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	d := openTest(t)
	ins := `INSERT INTO users (full_name, email, phone, role, password_hash, created_at) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := d.InsertID(ctx, ins, "A", "a@x.io", nil, "learner", "h", int64(1))
	require.NoError(t, err)
	_, err = d.InsertID(ctx, ins, "B", "a@x.io", nil, "learner", "h", int64(1))
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsQuotaViolation(err))
}
