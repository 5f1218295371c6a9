package lifecycle

import (
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// FieldDiff is one row of the metadata comparison.
type FieldDiff struct {
	Field   string `json:"field"`
	Value1  string `json:"value1"`
	Value2  string `json:"value2"`
	Changed bool   `json:"changed"`
}

// LineOp tags a line in a content diff.
type LineOp string

const (
	LineEqual  LineOp = "equal"
	LineAdd    LineOp = "add"
	LineRemove LineOp = "remove"
)

// DiffLine is a single rendered line of a content diff.
type DiffLine struct {
	Op   LineOp `json:"op"`
	Text string `json:"text"`
}

// ContentDiff is the line-level diff of two text bodies.
type ContentDiff struct {
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Lines     []DiffLine `json:"lines"`
}

// Comparison is the result of Compare. A nil ContentDiff means the content was
// not comparable; that is a normal outcome, not an error.
type Comparison struct {
	Additions     int          `json:"additions"`
	Deletions     int          `json:"deletions"`
	Modifications int          `json:"modifications"`
	FieldDiffs    []FieldDiff  `json:"fieldDiffs"`
	ContentDiff   *ContentDiff `json:"contentDiff"`
}

// ContentPair holds extracted text for the two versions being compared.
type ContentPair struct {
	Left  string
	Right string
}

type fieldSpec struct {
	name   string
	format func(VersionRecord) string
}

// comparedFields is the fixed, ordered list of metadata fields. Each value is
// formatted before comparison so representation differences are not reported.
var comparedFields = []fieldSpec{
	{"title", func(v VersionRecord) string { return strings.TrimSpace(v.Title) }},
	{"description", func(v VersionRecord) string { return strings.TrimSpace(v.Description) }},
	{"changeReason", func(v VersionRecord) string { return strings.TrimSpace(v.ChangeReason) }},
	{"changeSummary", func(v VersionRecord) string { return strings.TrimSpace(v.ChangeSummary) }},
	{"fileName", func(v VersionRecord) string {
		if v.File == nil {
			return ""
		}
		return strings.TrimSpace(v.File.Name)
	}},
	{"fileSize", func(v VersionRecord) string {
		if v.File == nil || v.File.Size < 0 {
			return ""
		}
		return humanize.Bytes(uint64(v.File.Size))
	}},
	{"createdBy", func(v VersionRecord) string { return v.CreatedBy }},
	{"createdAt", func(v VersionRecord) string {
		if v.CreatedAt.IsZero() {
			return ""
		}
		return v.CreatedAt.UTC().Format(time.DateTime)
	}},
}

// Compare diffs two version records. content is consulted only when non-nil;
// callers pass it when both files are text-extractable.
func Compare(v1, v2 VersionRecord, content *ContentPair) Comparison {
	c := Comparison{FieldDiffs: make([]FieldDiff, 0, len(comparedFields))}
	for _, f := range comparedFields {
		a, b := f.format(v1), f.format(v2)
		fd := FieldDiff{Field: f.name, Value1: a, Value2: b, Changed: a != b}
		if fd.Changed {
			c.Modifications++
		}
		c.FieldDiffs = append(c.FieldDiffs, fd)
	}
	if content != nil {
		c.ContentDiff = diffLines(content.Left, content.Right)
		c.Additions = c.ContentDiff.Additions
		c.Deletions = c.ContentDiff.Deletions
	}
	return c
}

func diffLines(left, right string) *ContentDiff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(left, right)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	out := &ContentDiff{}
	for _, d := range diffs {
		var op LineOp
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = LineAdd
		case diffmatchpatch.DiffDelete:
			op = LineRemove
		default:
			op = LineEqual
		}
		for _, line := range splitLines(d.Text) {
			out.Lines = append(out.Lines, DiffLine{Op: op, Text: line})
			switch op {
			case LineAdd:
				out.Additions++
			case LineRemove:
				out.Deletions++
			}
		}
	}
	return out
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

var textMIMETypes = map[string]bool{
	"application/json":   true,
	"application/xml":    true,
	"application/yaml":   true,
	"application/x-yaml": true,
}

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".csv": true, ".json": true, ".xml": true,
	".yaml": true, ".yml": true, ".html": true, ".htm": true, ".log": true,
}

// IsTextExtractable reports whether a file's content can be diffed as text.
func IsTextExtractable(f *FileRef) bool {
	if f == nil {
		return false
	}
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(f.MIMEType, ";", 2)[0]))
	if strings.HasPrefix(mt, "text/") || textMIMETypes[mt] {
		return true
	}
	if mt != "" && mt != "application/octet-stream" {
		return false
	}
	return textExtensions[strings.ToLower(path.Ext(f.Name))]
}
