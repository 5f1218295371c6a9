// Package store persists documents, their version records and their
// transition log with gorm. Every commit is a single transaction that opens
// with a compare-and-swap on the document head.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/docflow/edms/pkg/lifecycle"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a document or version does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification is returned when the document changed between
	// the snapshot the caller evaluated and the commit.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrDuplicateCode is returned when a document code is already taken.
	ErrDuplicateCode = errors.New("document code already exists")
)

// Store provides persistence for documents and their history.
type Store struct {
	db *gorm.DB
}

// New creates a new Store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for components sharing the connection.
func (s *Store) DB() *gorm.DB { return s.db }

// AutoMigrate creates or updates the document tables.
func (s *Store) AutoMigrate() error {
	if err := s.db.AutoMigrate(&DocumentRecord{}); err != nil {
		return fmt.Errorf("auto-migrate documents: %w", err)
	}
	if err := s.db.AutoMigrate(&VersionRow{}); err != nil {
		return fmt.Errorf("auto-migrate document_versions: %w", err)
	}
	if err := s.db.AutoMigrate(&TransitionRow{}); err != nil {
		return fmt.Errorf("auto-migrate document_transitions: %w", err)
	}
	return nil
}

// CreateDocument inserts a new document with its initial version and
// opening transition.
func (s *Store) CreateDocument(ctx context.Context, c lifecycle.Creation) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var taken int64
		if err := tx.Model(&DocumentRecord{}).Where("document_code = ?", c.Document.DocumentCode).Count(&taken).Error; err != nil {
			return fmt.Errorf("check document code: %w", err)
		}
		if taken > 0 {
			return ErrDuplicateCode
		}
		doc := documentRecordFrom(c.Document)
		if err := tx.Create(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateCode
			}
			return fmt.Errorf("create document: %w", err)
		}
		ver := versionRowFrom(c.Version)
		if err := tx.Create(&ver).Error; err != nil {
			return fmt.Errorf("create initial version: %w", err)
		}
		tr := transitionRowFrom(c.Transition)
		if err := tx.Create(&tr).Error; err != nil {
			return fmt.Errorf("create initial transition: %w", err)
		}
		return nil
	})
}

// GetDocument returns the current snapshot of a document.
func (s *Store) GetDocument(ctx context.Context, id string) (lifecycle.Document, error) {
	var record DocumentRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lifecycle.Document{}, ErrNotFound
		}
		return lifecycle.Document{}, fmt.Errorf("get document: %w", err)
	}
	return record.toDocument(), nil
}

// ListFilter narrows ListDocuments. Empty fields match everything.
type ListFilter struct {
	Department string
	Status     lifecycle.Status
	AuthorID   string
}

// ListDocuments returns paginated documents ordered by id.
// pageToken is the ID of the last record from the previous page; pass "" for the first page.
func (s *Store) ListDocuments(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]lifecycle.Document, string, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	query := s.db.WithContext(ctx).Order("id ASC").Limit(pageSize + 1)
	if filter.Department != "" {
		query = query.Where("department = ?", filter.Department)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if pageToken != "" {
		query = query.Where("id > ?", pageToken)
	}

	var records []DocumentRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", fmt.Errorf("list documents: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].ID
		records = records[:pageSize]
	}

	docs := make([]lifecycle.Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, r.toDocument())
	}
	return docs, nextToken, nil
}

// swapHead moves the document head from expected to next. It fails with
// ErrConcurrentModification when the row no longer matches expected.
func swapHead(tx *gorm.DB, expected, next lifecycle.Document) error {
	res := tx.Model(&DocumentRecord{}).
		Where("id = ? AND status = ? AND version = ? AND revision = ?",
			expected.ID, string(expected.Status), expected.Version, expected.Revision).
		Updates(map[string]any{
			"status":      string(next.Status),
			"version":     next.Version,
			"updated_at":  next.UpdatedAt,
			"archived_at": next.ArchivedAt,
			"revision":    expected.Revision + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("update document head: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// CommitStatusChange persists a status change evaluated against expected.
// It returns the committed snapshot carrying the new revision.
func (s *Store) CommitStatusChange(ctx context.Context, expected lifecycle.Document, change lifecycle.StatusChange) (lifecycle.Document, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := swapHead(tx, expected, change.Document); err != nil {
			return err
		}
		tr := transitionRowFrom(change.Transition)
		if err := tx.Create(&tr).Error; err != nil {
			return fmt.Errorf("append transition: %w", err)
		}
		return nil
	})
	if err != nil {
		return lifecycle.Document{}, err
	}
	out := change.Document.Clone()
	out.Revision = expected.Revision + 1
	return out, nil
}

// CommitNewVersion persists a new version and supersedes the previous
// current record in the same transaction.
func (s *Store) CommitNewVersion(ctx context.Context, expected lifecycle.Document, nv lifecycle.NewVersion) (lifecycle.Document, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := swapHead(tx, expected, nv.Document); err != nil {
			return err
		}
		if nv.SupersededID != "" {
			res := tx.Model(&VersionRow{}).
				Where("id = ? AND document_id = ? AND lifecycle_state = ?",
					nv.SupersededID, expected.ID, string(lifecycle.VersionCurrent)).
				Update("lifecycle_state", string(lifecycle.VersionSuperseded))
			if res.Error != nil {
				return fmt.Errorf("supersede version: %w", res.Error)
			}
			if res.RowsAffected != 1 {
				return ErrConcurrentModification
			}
		} else {
			var current int64
			if err := tx.Model(&VersionRow{}).
				Where("document_id = ? AND lifecycle_state = ?", expected.ID, string(lifecycle.VersionCurrent)).
				Count(&current).Error; err != nil {
				return fmt.Errorf("count current versions: %w", err)
			}
			if current != 0 {
				return ErrConcurrentModification
			}
		}
		row := versionRowFrom(nv.Version)
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConcurrentModification
			}
			return fmt.Errorf("create version: %w", err)
		}
		return nil
	})
	if err != nil {
		return lifecycle.Document{}, err
	}
	out := nv.Document.Clone()
	out.Revision = expected.Revision + 1
	return out, nil
}

// ListVersions returns every version record of a document, oldest first.
func (s *Store) ListVersions(ctx context.Context, documentID string) ([]lifecycle.VersionRecord, error) {
	var rows []VersionRow
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).
		Order("created_at ASC").Order("version ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	out := make([]lifecycle.VersionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toVersion())
	}
	return out, nil
}

// GetVersion returns a single version record of a document.
func (s *Store) GetVersion(ctx context.Context, documentID, versionID string) (lifecycle.VersionRecord, error) {
	var row VersionRow
	err := s.db.WithContext(ctx).Where("document_id = ? AND id = ?", documentID, versionID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lifecycle.VersionRecord{}, ErrNotFound
		}
		return lifecycle.VersionRecord{}, fmt.Errorf("get version: %w", err)
	}
	return row.toVersion(), nil
}

// ListTransitions returns the transition log of a document, oldest first.
func (s *Store) ListTransitions(ctx context.Context, documentID string) ([]lifecycle.TransitionRecord, error) {
	var rows []TransitionRow
	if err := s.db.WithContext(ctx).Where("document_id = ?", documentID).
		Order("occurred_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	out := make([]lifecycle.TransitionRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toTransition())
	}
	return out, nil
}
