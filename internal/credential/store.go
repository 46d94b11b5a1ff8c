package credential

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Store abstracts persistence of pool accounts so the pool can run against
// a file in production and a stub in tests.
type Store interface {
	Load(ctx context.Context) ([]*Account, error)
	Save(ctx context.Context, acct *Account) error
}

const (
	accountsFileMode = 0o600
	accountsDirMode  = 0o700
)

// accountSchema is the on-disk TOML shape of one account.
type accountSchema struct {
	ID           string    `toml:"id"`
	Family       string    `toml:"family"`
	Email        string    `toml:"email,omitempty"`
	Label        string    `toml:"label,omitempty"`
	ProjectID    string    `toml:"project_id,omitempty"`
	ClientID     string    `toml:"client_id,omitempty"`
	ClientSecret string    `toml:"client_secret,omitempty"`
	AccessToken  string    `toml:"access_token,omitempty"`
	RefreshToken string    `toml:"refresh_token"`
	ExpiresAt    time.Time `toml:"expires_at,omitempty"`
	Disabled     bool      `toml:"disabled,omitempty"`
}

type accountsFile struct {
	Accounts []accountSchema `toml:"accounts"`
}

// FileStore persists accounts to a single TOML file with atomic writes.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string { return s.path }

// Load reads and validates the accounts file. Unknown keys and malformed
// entries fail the load; a credential file typo must not silently shrink
// the pool.
func (s *FileStore) Load(ctx context.Context) ([]*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read accounts file: %w", err)
	}

	var file accountsFile
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}

	accounts := make([]*Account, 0, len(file.Accounts))
	seen := make(map[string]struct{}, len(file.Accounts))
	for i, entry := range file.Accounts {
		if entry.ID == "" {
			return nil, fmt.Errorf("%s: account %d missing id", s.path, i)
		}
		if _, dup := seen[entry.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate account id %q", s.path, entry.ID)
		}
		seen[entry.ID] = struct{}{}
		family := Family(entry.Family)
		if !family.Valid() {
			return nil, fmt.Errorf("%s: account %q has unknown family %q", s.path, entry.ID, entry.Family)
		}
		if entry.RefreshToken == "" {
			return nil, fmt.Errorf("%s: account %q missing refresh_token", s.path, entry.ID)
		}
		accounts = append(accounts, &Account{
			ID:           entry.ID,
			Family:       family,
			Email:        entry.Email,
			Label:        entry.Label,
			ProjectID:    entry.ProjectID,
			ClientID:     entry.ClientID,
			ClientSecret: entry.ClientSecret,
			AccessToken:  entry.AccessToken,
			RefreshToken: entry.RefreshToken,
			ExpiresAt:    entry.ExpiresAt,
			Disabled:     entry.Disabled,
		})
	}
	return accounts, nil
}

// Save upserts one account and rewrites the file atomically (temp + rename)
// so a crash mid-write never corrupts the pool.
func (s *FileStore) Save(ctx context.Context, acct *Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("account is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var file accountsFile
	if data, err := os.ReadFile(s.path); err == nil {
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return fmt.Errorf("parse %s: %w", s.path, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("read accounts file: %w", err)
	}

	encoded := toSchema(acct)
	updated := false
	for i := range file.Accounts {
		if file.Accounts[i].ID == encoded.ID {
			file.Accounts[i] = encoded
			updated = true
			break
		}
	}
	if !updated {
		file.Accounts = append(file.Accounts, encoded)
	}

	return s.writeFile(&file)
}

func (s *FileStore) writeFile(file *accountsFile) error {
	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode accounts file: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, accountsDirMode); err != nil {
		return fmt.Errorf("create accounts directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".accounts-*.toml.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(accountsFileMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace accounts file: %w", err)
	}
	return nil
}

func toSchema(a *Account) accountSchema {
	return accountSchema{
		ID:           a.ID,
		Family:       string(a.Family),
		Email:        a.Email,
		Label:        a.Label,
		ProjectID:    a.ProjectID,
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		ExpiresAt:    a.ExpiresAt,
		Disabled:     a.Disabled,
	}
}
