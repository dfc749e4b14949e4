package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-authretry/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const DefaultStoreKey = "access_token"

// CredentialStore persists a single credential under a store key. It
// satisfies core.CredentialStore so it can back the client directly or act
// as a mirror of the in-memory store.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
	key  string
}

func NewCredentialStore(db *bun.DB, key string) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return newCredentialStore(db, repo, key), nil
}

func newCredentialStore(db *bun.DB, repo repository.Repository[*credentialRecord], key string) *CredentialStore {
	key = strings.TrimSpace(key)
	if key == "" {
		key = DefaultStoreKey
	}
	return &CredentialStore{db: db, repo: repo, key: key}
}

func (s *CredentialStore) Key() string {
	if s == nil {
		return ""
	}
	return s.key
}

func (s *CredentialStore) Get(ctx context.Context) (core.Credential, bool, error) {
	if s == nil || s.db == nil {
		return "", false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record, err := findCredential(ctx, s.db, s.key)
	if err != nil {
		return "", false, err
	}
	if record == nil || strings.TrimSpace(record.Token) == "" {
		return "", false, nil
	}
	return core.Credential(record.Token), true, nil
}

// Set writes credential under the store key. A zero credential clears it.
func (s *CredentialStore) Set(ctx context.Context, credential core.Credential) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	if credential.IsZero() {
		return s.Clear(ctx)
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findCredential(ctx, tx, s.key)
		if err != nil {
			return err
		}
		if record == nil {
			record = &credentialRecord{
				ID:        uuid.NewString(),
				StoreKey:  s.key,
				Token:     credential.Token(),
				Version:   1,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, createErr := s.repo.CreateTx(ctx, tx, record); createErr != nil {
				if !isUniqueViolation(createErr) {
					return createErr
				}
				record, err = findCredential(ctx, tx, s.key)
				if err != nil {
					return err
				}
				if record == nil {
					return createErr
				}
			} else {
				return nil
			}
		}

		record.Token = credential.Token()
		record.Version++
		record.UpdatedAt = now
		_, err = tx.NewUpdate().
			Model(record).
			Column("token", "version", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("store_key = ?", s.key).
		Exec(ctx)
	return err
}

// Version reports how many times the credential under the key was written.
func (s *CredentialStore) Version(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: credential store is not configured")
	}
	record, err := findCredential(ctx, s.db, s.key)
	if err != nil || record == nil {
		return 0, err
	}
	return record.Version, nil
}

// LoadInitial returns the persisted credential, or the zero credential when
// nothing is stored, for use with core.WithInitialCredential.
func (s *CredentialStore) LoadInitial(ctx context.Context) (core.Credential, error) {
	credential, _, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return credential, nil
}

// Keys lists the store keys that currently hold a credential.
func (s *CredentialStore) Keys(ctx context.Context) ([]string, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	records, _, err := s.repo.List(ctx, repository.OrderBy("store_key ASC"))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(records))
	for _, record := range records {
		if record == nil || strings.TrimSpace(record.Token) == "" {
			continue
		}
		keys = append(keys, record.StoreKey)
	}
	return keys, nil
}

func findCredential(ctx context.Context, db bun.IDB, key string) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.store_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
