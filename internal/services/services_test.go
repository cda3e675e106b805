package services

import (
	"context"
	"path/filepath"
	"testing"

	"filehost/internal/database"
	"filehost/internal/logging"
	"filehost/internal/storage"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	users *database.UserRepository
	files *database.FileRepository
	store *storage.Store
	auth  *AuthService
	svc   *FileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	db, err := database.Open(ctx, filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(ctx, db, logging.Discard()))

	store, err := storage.New(filepath.Join(dir, "uploads"))
	require.NoError(t, err)

	users := database.NewUserRepository(db)
	files := database.NewFileRepository(db)
	authSvc, err := NewAuthService(users, logging.Discard())
	require.NoError(t, err)

	return &testEnv{
		users: users,
		files: files,
		store: store,
		auth:  authSvc,
		svc:   NewFileService(files, store, logging.Discard()),
	}
}

func (e *testEnv) register(t *testing.T, name string) int64 {
	t.Helper()
	u, err := e.auth.Register(context.Background(), name, "pw-"+name)
	require.NoError(t, err)
	return u.ID
}
