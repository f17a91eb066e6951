package ops

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/db"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
)

// maxImportLineBytes bounds a single JSONL record.
const maxImportLineBytes = 16 << 20

// ImportInput contains parameters for the ImportDataset operation.
type ImportInput struct {
	Path      string `json:"path"`                 // required, .json or .jsonl
	DatasetID string `json:"dataset_id,omitempty"` // append to an existing dataset
	Name      string `json:"name,omitempty"`       // name for a new dataset
}

// ImportOutput contains the result of the ImportDataset operation.
type ImportOutput struct {
	DatasetID string        `json:"dataset_id"`
	Created   bool          `json:"created"`
	Posts     int           `json:"posts"`
	Comments  int           `json:"comments"`
	Skipped   int           `json:"skipped"`
	Errors    []ImportError `json:"errors"`
}

// ImportError describes a record that could not be imported. Record is the
// 1-based line (JSONL) or array position (JSON).
type ImportError struct {
	Record  int    `json:"record"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ImportDataset loads a reddit-style dump of posts and comments into a new
// dataset, or appends it to an existing one. The file is either a JSON array
// or one JSON object per line; each object is a post, or a comment when it
// carries body, link_id, post_id or parent_id. Kind prefixes such as "t3_"
// are stripped from ids. Bad records are reported and skipped.
func ImportDataset(database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}

	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if qErr, ok := err.(*errors.Error); ok {
			return nil, qErr
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	rows, importErrors := ParseDataset(file)
	if len(rows.Posts) == 0 && len(rows.Comments) == 0 {
		e := errors.NewInvalidRequest(fmt.Sprintf("no posts or comments found in %s", input.Path))
		if len(importErrors) > 0 {
			e.Details = map[string]any{"errors": importErrors}
		}
		return nil, e
	}

	out := &ImportOutput{
		DatasetID: strings.TrimSpace(input.DatasetID),
		Posts:     len(rows.Posts),
		Comments:  len(rows.Comments),
		Skipped:   len(importErrors),
		Errors:    importErrors,
	}

	if out.DatasetID == "" {
		now := time.Now().Unix()
		source := input.Path
		d := &db.Dataset{
			ID:        generateULID(),
			Name:      datasetName(input, rows),
			Source:    &source,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := db.InsertDataset(database, d); err != nil {
			return nil, err
		}
		out.DatasetID = d.ID
		out.Created = true
	}

	if err := db.UpsertRows(database, out.DatasetID, rows); err != nil {
		if out.Created {
			_, _, _ = db.DeleteDataset(database, out.DatasetID)
		}
		return nil, err
	}

	return out, nil
}

// datasetName picks the explicit name, else the first post's subreddit,
// else the file name.
func datasetName(input ImportInput, rows *db.Rows) string {
	if name := strings.TrimSpace(input.Name); name != "" {
		return name
	}
	for _, p := range rows.Posts {
		if name := strings.TrimSpace(p.Subreddit); name != "" {
			return name
		}
	}
	base := filepath.Base(input.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func generateULID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// ParseDataset reads a JSON array or JSONL stream of post and comment
// records. A leading record without an id is treated as a header and
// skipped.
func ParseDataset(r io.Reader) (*db.Rows, []ImportError) {
	p := &recordParser{rows: &db.Rows{Posts: []thread.Post{}, Comments: []thread.Comment{}}, errs: []ImportError{}}

	br := bufio.NewReaderSize(r, 64*1024)
	first, err := peekNonSpace(br)
	if err != nil {
		if err != io.EOF {
			p.fail(0, "", "READ_ERROR", fmt.Sprintf("failed to read file: %v", err))
		}
		return p.rows, p.errs
	}

	if first == '[' {
		p.parseArray(br)
	} else {
		p.parseLines(br)
	}
	return p.rows, p.errs
}

type recordParser struct {
	rows *db.Rows
	errs []ImportError
	seen int
}

func (p *recordParser) fail(record int, id, code, msg string) {
	p.errs = append(p.errs, ImportError{Record: record, ID: id, Code: code, Message: msg})
}

func (p *recordParser) parseArray(r io.Reader) {
	dec := json.NewDecoder(r)
	if _, err := dec.Token(); err != nil {
		p.fail(0, "", "PARSE_ERROR", fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	n := 0
	for dec.More() {
		n++
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			// The decoder cannot resynchronize after a syntax error.
			p.fail(n, "", "PARSE_ERROR", fmt.Sprintf("invalid JSON: %v", err))
			return
		}
		p.add(n, raw)
	}
}

func (p *recordParser) parseLines(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxImportLineBytes)
	n := 0
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		p.add(n, line)
	}
	if err := scanner.Err(); err != nil {
		p.fail(n+1, "", "READ_ERROR", fmt.Sprintf("failed to read file: %v", err))
	}
}

var commentKeys = []string{"body", "link_id", "post_id", "parent_id"}

var postKnownKeys = map[string]bool{
	"id": true, "title": true, "selftext": true, "author": true,
	"subreddit": true, "created_utc": true,
}

func (p *recordParser) add(n int, raw []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		p.fail(n, "", "PARSE_ERROR", "record is not a JSON object")
		return
	}
	p.seen++

	id := thread.StripKindPrefix(stringField(fields, "id"))
	if isBlank(id) {
		if p.seen == 1 {
			return // header
		}
		p.fail(n, "", "INVALID_RECORD", "missing id field")
		return
	}

	isComment := false
	for _, k := range commentKeys {
		if _, ok := fields[k]; ok {
			isComment = true
			break
		}
	}

	if !isComment {
		post := thread.Post{
			ID:         id,
			Title:      stringField(fields, "title"),
			Selftext:   stringField(fields, "selftext"),
			Author:     stringField(fields, "author"),
			Subreddit:  stringField(fields, "subreddit"),
			CreatedUTC: int64Field(fields, "created_utc"),
		}
		for k, v := range fields {
			if postKnownKeys[k] {
				continue
			}
			var value any
			if err := json.Unmarshal(v, &value); err == nil {
				if post.Extra == nil {
					post.Extra = make(map[string]any)
				}
				post.Extra[k] = value
			}
		}
		p.rows.Posts = append(p.rows.Posts, post)
		return
	}

	parentID := stringField(fields, "parent_id")
	postID := stringField(fields, "post_id")
	if isBlank(postID) {
		postID = stringField(fields, "link_id")
	}
	if isBlank(postID) && strings.HasPrefix(parentID, "t3_") {
		postID = parentID
	}
	postID = thread.StripKindPrefix(postID)
	parentID = thread.StripKindPrefix(parentID)

	if isBlank(postID) {
		p.fail(n, id, "INVALID_RECORD", "comment has no post_id or link_id")
		return
	}
	if isBlank(parentID) {
		p.fail(n, id, "INVALID_RECORD", "comment has no parent_id")
		return
	}

	p.rows.Comments = append(p.rows.Comments, thread.Comment{
		ID:         id,
		PostID:     postID,
		ParentID:   parentID,
		Body:       stringField(fields, "body"),
		Author:     stringField(fields, "author"),
		CreatedUTC: int64Field(fields, "created_utc"),
	})
}

// stringField returns a string or numeric field as a string. Strings are
// returned verbatim: ids are never normalized, and bodies keep the raw text
// that exact-containment matching runs against.
func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// int64Field accepts numbers and numeric strings; anything else is zero.
func int64Field(fields map[string]json.RawMessage, key string) int64 {
	raw, ok := fields[key]
	if !ok {
		return 0
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	switch v := v.(type) {
	case float64:
		return int64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return int64(f)
	}
	return 0
}

// peekNonSpace skips leading whitespace and a UTF-8 byte order mark and
// returns the next byte without consuming it.
func peekNonSpace(br *bufio.Reader) (byte, error) {
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, []byte{0xEF, 0xBB, 0xBF}) {
		_, _ = br.Discard(3)
	}
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.Discard(1)
		default:
			return b[0], nil
		}
	}
}
