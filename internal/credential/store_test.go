package credential

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tempStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "accounts.toml"))
}

func TestFileStoreLoadMissingFile(t *testing.T) {
	store := tempStore(t)
	accounts, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, accounts)
}

func TestFileStoreSaveAndLoad(t *testing.T) {
	store := tempStore(t)
	acct := &Account{
		ID:           "work",
		Family:       FamilyAntigravity,
		Email:        "work@example.com",
		RefreshToken: "refresh-1",
		AccessToken:  "access-1",
		ExpiresAt:    time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
	require.NoError(t, store.Save(context.Background(), acct))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, "work", loaded[0].ID)
	require.Equal(t, FamilyAntigravity, loaded[0].Family)
	require.Equal(t, "refresh-1", loaded[0].RefreshToken)
	require.True(t, acct.ExpiresAt.Equal(loaded[0].ExpiresAt))
}

func TestFileStoreSaveUpserts(t *testing.T) {
	store := tempStore(t)
	acct := &Account{ID: "a", Family: FamilyGeminiCLI, RefreshToken: "r1"}
	require.NoError(t, store.Save(context.Background(), acct))

	acct.RefreshToken = "r2"
	require.NoError(t, store.Save(context.Background(), acct))
	require.NoError(t, store.Save(context.Background(), &Account{ID: "b", Family: FamilyGeminiCLI, RefreshToken: "r3"}))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "r2", loaded[0].RefreshToken)
}

func TestFileStoreRejectsUnknownKeys(t *testing.T) {
	store := tempStore(t)
	content := "[[accounts]]\nid = \"a\"\nfamily = \"antigravity\"\nrefresh_token = \"r\"\nrefreshh_token = \"typo\"\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))

	_, err := store.Load(context.Background())
	require.Error(t, err)
}

func TestFileStoreRejectsUnknownFamily(t *testing.T) {
	store := tempStore(t)
	content := "[[accounts]]\nid = \"a\"\nfamily = \"codex\"\nrefresh_token = \"r\"\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown family")
}

func TestFileStoreRejectsDuplicateIDs(t *testing.T) {
	store := tempStore(t)
	content := "[[accounts]]\nid = \"a\"\nfamily = \"antigravity\"\nrefresh_token = \"r\"\n\n" +
		"[[accounts]]\nid = \"a\"\nfamily = \"antigravity\"\nrefresh_token = \"r2\"\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))

	_, err := store.Load(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestFileStoreRejectsMissingRefreshToken(t *testing.T) {
	store := tempStore(t)
	content := "[[accounts]]\nid = \"a\"\nfamily = \"antigravity\"\n"
	require.NoError(t, os.WriteFile(store.Path(), []byte(content), 0o600))

	_, err := store.Load(context.Background())
	require.Error(t, err)
}

func TestFileStoreWriteIsAtomic(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(context.Background(), &Account{ID: "a", Family: FamilyGeminiCLI, RefreshToken: "r"}))

	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), ".tmp", "temp file should be renamed away")
	}
}
