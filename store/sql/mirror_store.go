package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-submissions/core"
	"github.com/uptrace/bun"
)

// MirrorStore persists mirror entries ordered by position, position 0 being
// the head.
type MirrorStore struct {
	db   *bun.DB
	repo repository.Repository[*mirrorEntryRecord]
	now  func() time.Time
}

func NewMirrorStore(db *bun.DB) (*MirrorStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*mirrorEntryRecord](db, mirrorEntryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid mirror repository wiring: %w", err)
		}
	}
	return &MirrorStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *MirrorStore) Load(ctx context.Context, key core.MirrorKey) ([]core.Submission, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: mirror store is not configured")
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("namespace", "=", string(key.Namespace)),
		repository.SelectBy("user_id", "=", key.UserID),
		repository.OrderBy("position ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.Submission, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Replace swaps the whole list under key atomically.
func (s *MirrorStore) Replace(ctx context.Context, key core.MirrorKey, submissions []core.Submission) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: mirror store is not configured")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	syncedAt := s.now()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := deleteKey(ctx, tx, key); err != nil {
			return err
		}
		for position, submission := range submissions {
			record := newMirrorEntryRecord(key, position, submission, syncedAt)
			if _, err := s.repo.CreateTx(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

// Prepend inserts submission at the head, dropping any entry with the same id.
func (s *MirrorStore) Prepend(ctx context.Context, key core.MirrorKey, submission core.Submission) error {
	if s == nil || s.repo == nil || s.db == nil {
		return fmt.Errorf("sqlstore: mirror store is not configured")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	record := newMirrorEntryRecord(key, 0, submission, s.now())
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*mirrorEntryRecord)(nil)).
			Where("namespace = ?", record.Namespace).
			Where("user_id = ?", record.UserID).
			Where("submission_id = ?", record.SubmissionID).
			Exec(ctx); err != nil {
			return err
		}
		if _, err := tx.NewUpdate().
			Model((*mirrorEntryRecord)(nil)).
			Set("position = position + 1").
			Where("namespace = ?", record.Namespace).
			Where("user_id = ?", record.UserID).
			Exec(ctx); err != nil {
			return err
		}
		_, err := s.repo.CreateTx(ctx, tx, record)
		return err
	})
}

func (s *MirrorStore) Clear(ctx context.Context, key core.MirrorKey) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: mirror store is not configured")
	}
	if err := key.Validate(); err != nil {
		return err
	}
	return deleteKey(ctx, s.db, key)
}

func deleteKey(ctx context.Context, db bun.IDB, key core.MirrorKey) error {
	_, err := db.NewDelete().
		Model((*mirrorEntryRecord)(nil)).
		Where("namespace = ?", string(key.Namespace)).
		Where("user_id = ?", key.UserID).
		Exec(ctx)
	return err
}

var _ core.MirrorStore = (*MirrorStore)(nil)
