// Package identity persists the stable anonymous user id and chosen
// display name across sessions, the way a browser client would keep them in
// local storage.
package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sryo/nombre-pendiente/internal/domain"
)

// Store loads and saves the local user identity.
type Store interface {
	Load() (domain.User, error)
	Save(domain.User) error
}

// FileStore keeps the identity as a small JSON file. Load generates a fresh
// id on first use; the display name starts empty until the user picks one.
type FileStore struct {
	Path string
}

// DefaultPath resolves the identity file under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "nombre-pendiente", "identity.json"), nil
}

func (s *FileStore) Load() (domain.User, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		u := domain.User{ID: domain.UserID(uuid.NewString())}
		if err := s.Save(u); err != nil {
			return domain.User{}, err
		}
		log.Info().Str("module", "identity").Str("user", string(u.ID)).Msg("generated new identity")
		return u, nil
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("read identity: %w", err)
	}

	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return domain.User{}, fmt.Errorf("parse identity: %w", err)
	}
	if u.ID == "" {
		u.ID = domain.UserID(uuid.NewString())
	}
	return u, nil
}

func (s *FileStore) Save(u domain.User) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create identity dir: %w", err)
	}
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
