package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docflow/edms/pkg/lifecycle"
)

// JSONStringSlice is a custom GORM type for []string stored as JSON.
type JSONStringSlice []string

// Scan implements the sql.Scanner interface for JSONStringSlice.
func (s *JSONStringSlice) Scan(value any) error {
	if value == nil {
		*s = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case string:
		bytes = []byte(v)
	case []byte:
		bytes = v
	default:
		return fmt.Errorf("unsupported type for JSONStringSlice: %T", value)
	}
	return json.Unmarshal(bytes, s)
}

// Value implements the driver.Valuer interface for JSONStringSlice.
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// DocumentRecord is the persisted document head. Revision is bumped by every
// committed change and takes part in the compare-and-swap.
type DocumentRecord struct {
	ID            string          `gorm:"primaryKey;column:id;type:varchar(36)"`
	DocumentCode  string          `gorm:"column:document_code;uniqueIndex;not null"`
	Title         string          `gorm:"column:title;not null"`
	Description   string          `gorm:"column:description"`
	Type          string          `gorm:"column:type;not null"`
	Department    string          `gorm:"column:department;index:idx_doc_dept_status,priority:1;not null"`
	Status        string          `gorm:"column:status;index:idx_doc_dept_status,priority:2;not null"`
	Version       string          `gorm:"column:version;type:varchar(5);not null"`
	AuthorID      string          `gorm:"column:author_id;index;not null"`
	SecurityLevel string          `gorm:"column:security_level;default:internal;not null"`
	Priority      string          `gorm:"column:priority;default:normal;not null"`
	Recipients    JSONStringSlice `gorm:"column:recipients;type:text"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
	ArchivedAt    *time.Time      `gorm:"column:archived_at"`
	Revision      int64           `gorm:"column:revision;not null;default:0"`
}

// TableName returns the GORM table name.
func (DocumentRecord) TableName() string { return "documents" }

// VersionRow is one immutable version record. Only lifecycle_state ever changes.
type VersionRow struct {
	ID             string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	DocumentID     string    `gorm:"column:document_id;uniqueIndex:idx_ver_doc_version,priority:1;index:idx_ver_doc_state,priority:1;not null"`
	Version        string    `gorm:"column:version;type:varchar(5);uniqueIndex:idx_ver_doc_version,priority:2;not null"`
	ChangeType     string    `gorm:"column:change_type;not null"`
	ChangeReason   string    `gorm:"column:change_reason"`
	ChangeSummary  string    `gorm:"column:change_summary"`
	Title          string    `gorm:"column:title"`
	Description    string    `gorm:"column:description"`
	FileKey        string    `gorm:"column:file_key"`
	FileName       string    `gorm:"column:file_name"`
	FileSize       int64     `gorm:"column:file_size"`
	FileMIMEType   string    `gorm:"column:file_mime_type"`
	CreatedBy      string    `gorm:"column:created_by;not null"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	LifecycleState string    `gorm:"column:lifecycle_state;index:idx_ver_doc_state,priority:2;not null"`
}

// TableName returns the GORM table name.
func (VersionRow) TableName() string { return "document_versions" }

// TransitionRow is an append-only status change entry.
type TransitionRow struct {
	ID              string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	DocumentID      string    `gorm:"column:document_id;index:idx_tr_doc_time,priority:1;not null"`
	FromStatus      *string   `gorm:"column:from_status"`
	ToStatus        string    `gorm:"column:to_status;not null"`
	ActorID         string    `gorm:"column:actor_id;not null"`
	ActorDepartment string    `gorm:"column:actor_department"`
	Comment         string    `gorm:"column:comment"`
	Timestamp       time.Time `gorm:"column:occurred_at;index:idx_tr_doc_time,priority:2"`
	IPAddress       string    `gorm:"column:ip_address"`
	UserAgent       string    `gorm:"column:user_agent"`
}

// TableName returns the GORM table name.
func (TransitionRow) TableName() string { return "document_transitions" }

func documentRecordFrom(d lifecycle.Document) DocumentRecord {
	var recipients JSONStringSlice
	if len(d.Recipients) > 0 {
		recipients = append(JSONStringSlice(nil), d.Recipients...)
	}
	return DocumentRecord{
		ID:            d.ID,
		DocumentCode:  d.DocumentCode,
		Title:         d.Title,
		Description:   d.Description,
		Type:          d.Type,
		Department:    d.Department,
		Status:        string(d.Status),
		Version:       d.Version,
		AuthorID:      d.AuthorID,
		SecurityLevel: string(d.SecurityLevel),
		Priority:      string(d.Priority),
		Recipients:    recipients,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		ArchivedAt:    d.ArchivedAt,
		Revision:      d.Revision,
	}
}

func (r DocumentRecord) toDocument() lifecycle.Document {
	d := lifecycle.Document{
		ID:            r.ID,
		DocumentCode:  r.DocumentCode,
		Title:         r.Title,
		Description:   r.Description,
		Type:          r.Type,
		Department:    r.Department,
		Status:        lifecycle.Status(r.Status),
		Version:       r.Version,
		AuthorID:      r.AuthorID,
		SecurityLevel: lifecycle.SecurityLevel(r.SecurityLevel),
		Priority:      lifecycle.Priority(r.Priority),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
		Revision:      r.Revision,
	}
	if len(r.Recipients) > 0 {
		d.Recipients = append([]string(nil), r.Recipients...)
	}
	if r.ArchivedAt != nil {
		t := r.ArchivedAt.UTC()
		d.ArchivedAt = &t
	}
	return d
}

func versionRowFrom(v lifecycle.VersionRecord) VersionRow {
	row := VersionRow{
		ID:             v.ID,
		DocumentID:     v.DocumentID,
		Version:        v.Version,
		ChangeType:     string(v.ChangeType),
		ChangeReason:   v.ChangeReason,
		ChangeSummary:  v.ChangeSummary,
		Title:          v.Title,
		Description:    v.Description,
		CreatedBy:      v.CreatedBy,
		CreatedAt:      v.CreatedAt,
		LifecycleState: string(v.LifecycleState),
	}
	if v.File != nil {
		row.FileKey = v.File.Key
		row.FileName = v.File.Name
		row.FileSize = v.File.Size
		row.FileMIMEType = v.File.MIMEType
	}
	return row
}

func (r VersionRow) toVersion() lifecycle.VersionRecord {
	v := lifecycle.VersionRecord{
		ID:             r.ID,
		DocumentID:     r.DocumentID,
		Version:        r.Version,
		ChangeType:     lifecycle.ChangeType(r.ChangeType),
		ChangeReason:   r.ChangeReason,
		ChangeSummary:  r.ChangeSummary,
		Title:          r.Title,
		Description:    r.Description,
		CreatedBy:      r.CreatedBy,
		CreatedAt:      r.CreatedAt.UTC(),
		LifecycleState: lifecycle.VersionState(r.LifecycleState),
	}
	if r.FileKey != "" || r.FileName != "" {
		v.File = &lifecycle.FileRef{
			Key:      r.FileKey,
			Name:     r.FileName,
			Size:     r.FileSize,
			MIMEType: r.FileMIMEType,
		}
	}
	return v
}

func transitionRowFrom(t lifecycle.TransitionRecord) TransitionRow {
	row := TransitionRow{
		ID:              t.ID,
		DocumentID:      t.DocumentID,
		ToStatus:        string(t.ToStatus),
		ActorID:         t.ActorID,
		ActorDepartment: t.ActorDepartment,
		Comment:         t.Comment,
		Timestamp:       t.Timestamp,
		IPAddress:       t.IPAddress,
		UserAgent:       t.UserAgent,
	}
	if t.FromStatus != nil {
		s := string(*t.FromStatus)
		row.FromStatus = &s
	}
	return row
}

func (r TransitionRow) toTransition() lifecycle.TransitionRecord {
	t := lifecycle.TransitionRecord{
		ID:              r.ID,
		DocumentID:      r.DocumentID,
		ToStatus:        lifecycle.Status(r.ToStatus),
		ActorID:         r.ActorID,
		ActorDepartment: r.ActorDepartment,
		Comment:         r.Comment,
		Timestamp:       r.Timestamp.UTC(),
		IPAddress:       r.IPAddress,
		UserAgent:       r.UserAgent,
	}
	if r.FromStatus != nil {
		s := lifecycle.Status(*r.FromStatus)
		t.FromStatus = &s
	}
	return t
}
