package audit

import (
	"context"
	"database/sql/driver"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONMap is a custom GORM type for map[string]any stored as JSON.
type JSONMap map[string]any

// Scan implements the sql.Scanner interface for JSONMap.
func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	return json.Unmarshal(bytes, m)
}

// Value implements the driver.Valuer interface for JSONMap.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// EventRecord is an immutable audit log entry.
type EventRecord struct {
	ID              string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	Kind            string    `gorm:"column:kind;index:idx_audit_kind_time,priority:1;not null"`
	DocumentID      string    `gorm:"column:document_id;index:idx_audit_doc_time,priority:1"`
	Actor           string    `gorm:"column:actor;index:idx_audit_actor_time,priority:1;not null"`
	ActorDepartment string    `gorm:"column:actor_department"`
	FromStatus      string    `gorm:"column:from_status"`
	ToStatus        string    `gorm:"column:to_status"`
	Version         string    `gorm:"column:version"`
	ChangeType      string    `gorm:"column:change_type"`
	Comment         string    `gorm:"column:comment"`
	Outcome         string    `gorm:"column:outcome;not null"`
	Action          string    `gorm:"column:action"`
	StatusCode      int       `gorm:"column:status_code"`
	RequestID       string    `gorm:"column:request_id;index"`
	IPAddress       string    `gorm:"column:ip_address"`
	UserAgent       string    `gorm:"column:user_agent"`
	Metadata        JSONMap   `gorm:"column:metadata;type:text"`
	CreatedAt       time.Time `gorm:"column:created_at;index:idx_audit_kind_time,priority:2;index:idx_audit_doc_time,priority:2;index:idx_audit_actor_time,priority:2;autoCreateTime"`
}

// TableName returns the GORM table name.
func (EventRecord) TableName() string { return "audit_events" }

func recordFrom(e Event) EventRecord {
	return EventRecord{
		ID:              e.ID,
		Kind:            string(e.Kind),
		DocumentID:      e.DocumentID,
		Actor:           e.Actor,
		ActorDepartment: e.ActorDepartment,
		FromStatus:      e.FromStatus,
		ToStatus:        e.ToStatus,
		Version:         e.Version,
		ChangeType:      e.ChangeType,
		Comment:         e.Comment,
		Outcome:         string(e.Outcome),
		Action:          e.Action,
		StatusCode:      e.StatusCode,
		RequestID:       e.RequestID,
		IPAddress:       e.IPAddress,
		UserAgent:       e.UserAgent,
		Metadata:        JSONMap(e.Metadata),
		CreatedAt:       e.CreatedAt.UTC(),
	}
}

func (r EventRecord) toEvent() Event {
	return Event{
		ID:              r.ID,
		Kind:            Kind(r.Kind),
		DocumentID:      r.DocumentID,
		Actor:           r.Actor,
		ActorDepartment: r.ActorDepartment,
		FromStatus:      r.FromStatus,
		ToStatus:        r.ToStatus,
		Version:         r.Version,
		ChangeType:      r.ChangeType,
		Comment:         r.Comment,
		Outcome:         Outcome(r.Outcome),
		Action:          r.Action,
		StatusCode:      r.StatusCode,
		RequestID:       r.RequestID,
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
		Metadata:        map[string]any(r.Metadata),
		CreatedAt:       r.CreatedAt.UTC(),
	}
}

// ErrEventNotFound is returned by GetByID for an unknown event.
var ErrEventNotFound = errors.New("audit event not found")

// GormRecorder is the database-backed Recorder.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder creates a new GormRecorder.
func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db}
}

// AutoMigrate creates or updates the audit_events table.
func (s *GormRecorder) AutoMigrate() error {
	if err := s.db.AutoMigrate(&EventRecord{}); err != nil {
		return fmt.Errorf("auto-migrate audit_events: %w", err)
	}
	return nil
}

// Record appends an event. Events without an ID get a fresh one.
func (s *GormRecorder) Record(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	rec := recordFrom(e)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// GetByID returns a single event.
func (s *GormRecorder) GetByID(ctx context.Context, id string) (Event, error) {
	var rec EventRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Event{}, ErrEventNotFound
		}
		return Event{}, fmt.Errorf("get audit event: %w", err)
	}
	return rec.toEvent(), nil
}

// ListFilter narrows List. Empty fields match everything.
type ListFilter struct {
	DocumentID string
	Actor      string
	Kind       Kind
	Outcome    Outcome
}

// ListByDocument returns paginated events for one document,
// ordered by created_at DESC (newest first).
func (s *GormRecorder) ListByDocument(ctx context.Context, documentID string, pageSize int, pageToken string) ([]Event, string, int, error) {
	return s.List(ctx, ListFilter{DocumentID: documentID}, pageSize, pageToken)
}

// List returns paginated events ordered by (created_at, id) DESC.
// pageToken is the opaque cursor returned with the previous page.
func (s *GormRecorder) List(ctx context.Context, filter ListFilter, pageSize int, pageToken string) ([]Event, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	apply := func(q *gorm.DB) *gorm.DB {
		if filter.DocumentID != "" {
			q = q.Where("document_id = ?", filter.DocumentID)
		}
		if filter.Actor != "" {
			q = q.Where("actor = ?", filter.Actor)
		}
		if filter.Kind != "" {
			q = q.Where("kind = ?", string(filter.Kind))
		}
		if filter.Outcome != "" {
			q = q.Where("outcome = ?", string(filter.Outcome))
		}
		return q
	}

	db := s.db.WithContext(ctx)
	var totalSize int64
	if err := apply(db.Model(&EventRecord{})).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count audit events: %w", err)
	}

	query := apply(db.Model(&EventRecord{})).Order("created_at DESC").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		t, lastID, err := decodeCursor(pageToken)
		if err != nil {
			return nil, "", 0, err
		}
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", t, t, lastID)
	}

	var records []EventRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list audit events: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		last := records[pageSize-1]
		nextToken = encodeCursor(last.CreatedAt.UTC(), last.ID)
		records = records[:pageSize]
	}

	events := make([]Event, 0, len(records))
	for _, r := range records {
		events = append(events, r.toEvent())
	}
	return events, nextToken, int(totalSize), nil
}

// Events written in one commit share a timestamp, so the cursor carries the
// id as a tie breaker.
func encodeCursor(t time.Time, id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(t.Format(time.RFC3339Nano) + "|" + id))
}

func decodeCursor(token string) (time.Time, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	ts, id, ok := strings.Cut(string(raw), "|")
	if !ok || id == "" {
		return time.Time{}, "", errors.New("invalid page token")
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	return t, id, nil
}

// DeleteOlderThan deletes events created before the given cutoff time.
// Returns the number of deleted records.
func (s *GormRecorder) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoff.UTC()).Delete(&EventRecord{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old audit events: %w", result.Error)
	}
	return result.RowsAffected, nil
}
