package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"filehost/internal/logging"
	"filehost/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, logging.Discard()))
	return db
}

func createUser(t *testing.T, db *sqlx.DB, name string) *models.User {
	t.Helper()
	u, err := NewUserRepository(db).Create(context.Background(), name, "hash-"+name, time.Now().UTC())
	require.NoError(t, err)
	return u
}

func createFile(t *testing.T, db *sqlx.DB, userID int64, stored string, uploadedAt time.Time) *models.File {
	t.Helper()
	f := &models.File{
		UserID:       userID,
		OriginalName: stored + ".txt",
		StoredName:   stored,
		SizeBytes:    10,
		Mime:         "text/plain",
		UploadedAt:   uploadedAt,
	}
	require.NoError(t, NewFileRepository(db).Create(context.Background(), f))
	require.NotZero(t, f.ID)
	return f
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupDB(t)
	assert.NoError(t, Migrate(context.Background(), db, logging.Discard()))
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := setupDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := createUser(t, db, "alice")

	got, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash-alice", got.PasswordHash)
	assert.False(t, got.CreatedAt.IsZero())

	_, err = repo.GetByUsername(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := setupDB(t)
	createUser(t, db, "alice")

	_, err := NewUserRepository(db).Create(context.Background(), "alice", "other", time.Now().UTC())
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestFileRepository_OwnerMustExist(t *testing.T) {
	db := setupDB(t)
	f := &models.File{UserID: 999, OriginalName: "a.txt", StoredName: "x", UploadedAt: time.Now().UTC()}

	assert.Error(t, NewFileRepository(db).Create(context.Background(), f))
}

func TestFileRepository_StoredNameUnique(t *testing.T) {
	db := setupDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	createFile(t, db, alice.ID, "same", time.Now().UTC())

	f := &models.File{UserID: bob.ID, OriginalName: "b.txt", StoredName: "same", UploadedAt: time.Now().UTC()}
	assert.ErrorIs(t, NewFileRepository(db).Create(context.Background(), f), ErrDuplicate)
}

func TestFileRepository_ListByOwner(t *testing.T) {
	db := setupDB(t)
	repo := NewFileRepository(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	createFile(t, db, alice.ID, "old", base)
	createFile(t, db, alice.ID, "new", base.Add(time.Hour))
	createFile(t, db, alice.ID, "mid", base.Add(1500*time.Millisecond))
	createFile(t, db, bob.ID, "foreign", base.Add(2*time.Hour))

	files, err := repo.ListByOwner(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "new", files[0].StoredName)
	assert.Equal(t, "mid", files[1].StoredName)
	assert.Equal(t, "old", files[2].StoredName)
	assert.True(t, files[0].UploadedAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, int64(0), files[0].Downloads)
	assert.False(t, files[0].IsShared())

	empty, err := repo.ListByOwner(context.Background(), 12345)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFileRepository_GetOwned(t *testing.T) {
	db := setupDB(t)
	repo := NewFileRepository(db)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	f := createFile(t, db, alice.ID, "a", time.Now().UTC())

	got, err := repo.GetOwned(context.Background(), f.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.StoredName)
	assert.Equal(t, "text/plain", got.Mime)

	_, err = repo.GetOwned(context.Background(), f.ID, bob.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetOwned(context.Background(), f.ID+100, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileRepository_ShareLifecycle(t *testing.T) {
	db := setupDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	f := createFile(t, db, alice.ID, "a", time.Now().UTC())

	assert.ErrorIs(t, repo.SetShareToken(ctx, f.ID, bob.ID, "tok"), ErrNotFound)
	require.NoError(t, repo.SetShareToken(ctx, f.ID, alice.ID, "tok1"))

	shared, err := repo.GetShared(ctx, "tok1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, shared.ID)
	assert.Equal(t, int64(0), shared.Downloads, "lookup must not count")

	claimed, err := repo.ClaimShared(ctx, f.ID, "tok1")
	require.NoError(t, err)
	assert.Equal(t, f.ID, claimed.ID)
	assert.Equal(t, int64(1), claimed.Downloads)

	_, err = repo.GetShared(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetShared(ctx, "")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.ClaimShared(ctx, f.ID, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.ClaimShared(ctx, f.ID, "")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, repo.SetShareToken(ctx, f.ID, alice.ID, "tok2"))
	// токен перевыпущен между поиском и скачиванием
	_, err = repo.ClaimShared(ctx, f.ID, "tok1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetShared(ctx, "tok1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.ClearShareToken(ctx, f.ID, bob.ID), ErrNotFound)
	require.NoError(t, repo.ClearShareToken(ctx, f.ID, alice.ID))
	_, err = repo.ClaimShared(ctx, f.ID, "tok2")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Downloads)
	assert.False(t, got.ShareToken.Valid)
}

func TestFileRepository_ShareTokenUnique(t *testing.T) {
	db := setupDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	a := createFile(t, db, alice.ID, "a", time.Now().UTC())
	b := createFile(t, db, alice.ID, "b", time.Now().UTC())

	require.NoError(t, repo.SetShareToken(ctx, a.ID, alice.ID, "tok"))
	assert.ErrorIs(t, repo.SetShareToken(ctx, b.ID, alice.ID, "tok"), ErrDuplicate)
}

func TestFileRepository_ClaimSharedConcurrent(t *testing.T) {
	db := setupDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	f := createFile(t, db, alice.ID, "a", time.Now().UTC())
	require.NoError(t, repo.SetShareToken(ctx, f.ID, alice.ID, "tok"))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.ClaimShared(ctx, f.ID, "tok")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), got.Downloads)
}

func TestFileRepository_ConcurrentShareKeepsOneToken(t *testing.T) {
	db := setupDB(t)
	repo := NewFileRepository(db)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	f := createFile(t, db, alice.ID, "a", time.Now().UTC())

	tokens := []string{"first", "second"}
	var wg sync.WaitGroup
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			assert.NoError(t, repo.SetShareToken(ctx, f.ID, alice.ID, tok))
		}(tok)
	}
	wg.Wait()

	got, err := repo.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Contains(t, tokens, got.ShareToken.String, fmt.Sprintf("token %q", got.ShareToken.String))
}
