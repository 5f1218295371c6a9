package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVersion() VersionRecord {
	return VersionRecord{
		ID:            "v1",
		DocumentID:    "doc-1",
		Version:       "01.00",
		ChangeType:    ChangeMajor,
		ChangeReason:  "initial version",
		ChangeSummary: "document created",
		Title:         "Calibration procedure",
		File:          &FileRef{Key: "k1", Name: "procedure.txt", Size: 1500, MIMEType: "text/plain"},
		CreatedBy:     "author",
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCompare_SameVersion(t *testing.T) {
	v := sampleVersion()
	c := Compare(v, v, &ContentPair{Left: "a\nb\n", Right: "a\nb\n"})

	assert.Zero(t, c.Additions)
	assert.Zero(t, c.Deletions)
	assert.Zero(t, c.Modifications)
	require.Len(t, c.FieldDiffs, 8)
	for _, fd := range c.FieldDiffs {
		assert.False(t, fd.Changed, fd.Field)
	}
	require.NotNil(t, c.ContentDiff)
	assert.Len(t, c.ContentDiff.Lines, 2)
}

func TestCompare_FieldOrderAndFormatting(t *testing.T) {
	v1 := sampleVersion()
	v2 := sampleVersion()
	v2.ID = "v2"
	v2.Title = "  Calibration procedure  "
	v2.ChangeReason = "clarified tolerances"
	v2.File = &FileRef{Key: "k2", Name: "procedure.txt", Size: 1499, MIMEType: "text/plain"}
	// Sub-second differences vanish under the display format.
	v2.CreatedAt = v1.CreatedAt.Add(300 * time.Millisecond).In(time.FixedZone("CET", 3600))

	c := Compare(v1, v2, nil)

	fields := make([]string, 0, len(c.FieldDiffs))
	for _, fd := range c.FieldDiffs {
		fields = append(fields, fd.Field)
	}
	assert.Equal(t, []string{
		"title", "description", "changeReason", "changeSummary",
		"fileName", "fileSize", "createdBy", "createdAt",
	}, fields)

	assert.Equal(t, 1, c.Modifications)
	assert.True(t, c.FieldDiffs[2].Changed)
	assert.Equal(t, "1.5 kB", c.FieldDiffs[5].Value1)
	assert.False(t, c.FieldDiffs[5].Changed)
	assert.Nil(t, c.ContentDiff)
	assert.Zero(t, c.Additions)
}

func TestCompare_ContentDiffCounts(t *testing.T) {
	v1 := sampleVersion()
	v2 := sampleVersion()
	v2.File = &FileRef{Key: "k2", Name: "procedure-v2.txt", Size: 4096, MIMEType: "text/plain"}

	left := "scope\npurpose\nsteps\nreferences\n"
	right := "scope\npurpose and context\nsteps\nappendix\nreferences\n"

	c := Compare(v1, v2, &ContentPair{Left: left, Right: right})
	require.NotNil(t, c.ContentDiff)
	assert.Equal(t, 2, c.Additions)
	assert.Equal(t, 1, c.Deletions)
	assert.Equal(t, 2, c.Modifications) // fileName, fileSize

	var ops []LineOp
	for _, l := range c.ContentDiff.Lines {
		ops = append(ops, l.Op)
	}
	assert.Contains(t, ops, LineAdd)
	assert.Contains(t, ops, LineRemove)
	assert.Contains(t, ops, LineEqual)
}

func TestCompare_MissingFile(t *testing.T) {
	v1 := sampleVersion()
	v2 := sampleVersion()
	v2.File = nil

	c := Compare(v1, v2, nil)
	assert.Equal(t, 2, c.Modifications)
	assert.Equal(t, "", c.FieldDiffs[4].Value2)
	assert.Equal(t, "", c.FieldDiffs[5].Value2)
}

func TestIsTextExtractable(t *testing.T) {
	tests := []struct {
		name string
		file *FileRef
		want bool
	}{
		{"nil", nil, false},
		{"plain text", &FileRef{Name: "a.bin", MIMEType: "text/plain; charset=utf-8"}, true},
		{"json", &FileRef{Name: "a", MIMEType: "application/json"}, true},
		{"pdf", &FileRef{Name: "a.txt", MIMEType: "application/pdf"}, false},
		{"octet stream markdown", &FileRef{Name: "README.MD", MIMEType: "application/octet-stream"}, true},
		{"no mime yaml", &FileRef{Name: "config.yml"}, true},
		{"no mime docx", &FileRef{Name: "report.docx"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTextExtractable(tt.file))
		})
	}
}
