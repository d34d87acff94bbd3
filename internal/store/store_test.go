package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

var anyTime = ArgumentMatcherFunc(func(v interface{}) bool {
	_, ok := v.(time.Time)
	return ok
})

var recordColumns = []string{"attempt_id", "success", "email", "username", "password", "confirmed", "error", "warnings", "created_at"}

func sampleRecords(now time.Time) []Record {
	return []Record{
		{
			AttemptID: "a1",
			Success:   true,
			Email:     "user1@example.test",
			Username:  "user_abc1231234",
			Password:  "Pass_abc123_456!",
			Confirmed: true,
			CreatedAt: now.Add(-time.Minute),
		},
		{
			AttemptID: "a2",
			Error:     "no email received before the timeout",
			Warnings:  []string{"form submit reported a failure; continuing to the inbox"},
			CreatedAt: now,
		},
	}
}

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "bolt_account_result")
	s, err := NewFileStore(dir, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "output directory is created")

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recs := sampleRecords(now)
	for _, r := range recs {
		require.NoError(t, s.Save(ctx, r))
	}

	got, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	if diff := cmp.Diff(recs[0], got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}

	fi, err := os.Stat(filepath.Join(dir, "account_a1.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm(), "records hold passwords")

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].AttemptID, "newest first")

	list, err = s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.Save(ctx, Record{AttemptID: "../escape"}), ErrInvalidID)
	assert.ErrorIs(t, s.Save(ctx, Record{}), ErrInvalidID)
	_, err = s.Get(ctx, "..")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestRecordRedacted(t *testing.T) {
	rec := Record{AttemptID: "a", Email: "a@example.test", Password: "Pass_x"}
	red := rec.Redacted()
	assert.Empty(t, red.Password)
	assert.Equal(t, "a@example.test", red.Email)
	assert.Equal(t, "Pass_x", rec.Password, "original is untouched")
}

func TestFileStore_SkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	core, logs := observer.New(zapcore.WarnLevel)
	s, err := NewFileStore(dir, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "account_bad.json"), []byte("{"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))
	require.NoError(t, s.Save(context.Background(), Record{AttemptID: "ok", CreatedAt: time.Now()}))

	list, err := s.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "ok", list[0].AttemptID)
	assert.Equal(t, 1, logs.FilterMessage("Skipping unreadable record").Len())
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	_, err := NewFileStore("", nil)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	repo, err := Open(ctx, config.StoreConfig{Type: "none"}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, repo)

	repo, err = Open(ctx, config.StoreConfig{Type: "file", OutputDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, repo)

	_, err = Open(ctx, config.StoreConfig{Type: "redis"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewPostgresStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgresStore(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should create the schema", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		s, err := NewPostgresStore(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateTable)).
			WillReturnResult(pgxmock.NewResult("CREATE", 0))
		require.NoError(t, s.EnsureSchema(context.Background()))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPostgresStore_Save(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("should upsert a record with encoded warnings", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		s, err := NewPostgresStore(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		rec := sampleRecords(now)[1]
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs(rec.AttemptID, false, "", "", "", false, rec.Error,
				`["form submit reported a failure; continuing to the inbox"]`, anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Save(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should store an empty warnings array instead of null", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		s, err := NewPostgresStore(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		rec := sampleRecords(now)[0]
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).
			WithArgs(rec.AttemptID, true, rec.Email, rec.Username, rec.Password, true, "", "[]", anyTime).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, s.Save(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap exec errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		s, err := NewPostgresStore(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		dbErr := errors.New("connection reset")
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsert)).WillReturnError(dbErr)

		err = s.Save(ctx, sampleRecords(now)[0])
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "a1")
	})
}

func TestPostgresStore_Read(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("should list newest first with a limit", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		s, err := NewPostgresStore(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		rows := pgxmock.NewRows(recordColumns).
			AddRow("a2", false, "", "", "", false, "no email received before the timeout",
				[]byte(`["w1"]`), now).
			AddRow("a1", true, "user1@example.test", "user_abc1231234", "Pass_abc123_456!", true, "",
				[]byte(`[]`), now.Add(-time.Minute))
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelect + ` ORDER BY created_at DESC LIMIT $1;`)).
			WithArgs(10).
			WillReturnRows(rows)

		list, err := s.List(ctx, 10)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, []string{"w1"}, list[0].Warnings)
		assert.True(t, list[1].Confirmed)
		assert.Equal(t, "user1@example.test", list[1].Email)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a missing record", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		s, err := NewPostgresStore(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelect + ` WHERE attempt_id = $1;`)).
			WithArgs("nope").
			WillReturnRows(pgxmock.NewRows(recordColumns))

		_, err = s.Get(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should wrap query errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		s, err := NewPostgresStore(ctx, mockPool, zap.NewNop())
		require.NoError(t, err)

		dbErr := errors.New("relation does not exist")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelect + ` ORDER BY created_at DESC;`)).WillReturnError(dbErr)

		_, err = s.List(ctx, 0)
		assert.ErrorIs(t, err, dbErr)
	})
}
