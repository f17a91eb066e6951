package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/thread"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.Error{
	Code:    "UNIQUE_CONSTRAINT",
	Status:  409,
	Message: "unique constraint violation",
}

// Dataset is one imported collection of posts and comments.
type Dataset struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Source       *string `json:"source,omitempty"`
	PostCount    int     `json:"post_count"`
	CommentCount int     `json:"comment_count"`
	CreatedAt    int64   `json:"created_at"`
	UpdatedAt    int64   `json:"updated_at"`
}

// PostSummary is a post listing entry without text bodies.
type PostSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Author       string `json:"author,omitempty"`
	Subreddit    string `json:"subreddit,omitempty"`
	CreatedUTC   int64  `json:"created_utc,omitempty"`
	CommentCount int    `json:"comment_count"`
}

// Rows is the flat record set for a group of posts: the posts themselves and
// every stored comment belonging to them, both in insertion order.
type Rows struct {
	Posts    []thread.Post    `json:"posts"`
	Comments []thread.Comment `json:"comments"`
}

// Store exposes GetRows as a method so a database handle can serve as the
// record source for batch alignment.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetRows implements the batch record source.
func (s *Store) GetRows(ctx context.Context, datasetID string, postIDs []string) (*Rows, error) {
	return GetRows(ctx, s.db, datasetID, postIDs)
}

// InsertDataset stores a new, empty dataset.
func InsertDataset(db *sql.DB, d *Dataset) error {
	query := `
		INSERT INTO datasets (id, name, source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query, d.ID, d.Name, toNullStringPtr(d.Source), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewStorage(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports both UNIQUE and PRIMARY KEY violations this way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const datasetColumns = `
	d.id, d.name, d.source, d.created_at, d.updated_at,
	(SELECT COUNT(*) FROM posts p WHERE p.dataset_id = d.id),
	(SELECT COUNT(*) FROM comments c WHERE c.dataset_id = d.id)
`

// GetDataset retrieves a dataset with its post and comment counts.
func GetDataset(db *sql.DB, id string) (*Dataset, error) {
	row := db.QueryRow(`SELECT `+datasetColumns+` FROM datasets d WHERE d.id = ?`, id)
	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("dataset", id)
	}
	if err != nil {
		return nil, errors.NewStorage(err)
	}
	return d, nil
}

// ListDatasets returns datasets newest first, and the total count.
func ListDatasets(db *sql.DB, limit, offset int) ([]Dataset, int, error) {
	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM datasets`).Scan(&total); err != nil {
		return nil, 0, errors.NewStorage(err)
	}

	rows, err := db.Query(`SELECT `+datasetColumns+`
		FROM datasets d
		ORDER BY d.created_at DESC, d.id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, errors.NewStorage(err)
	}
	defer rows.Close()

	var datasets []Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, 0, errors.NewStorage(err)
		}
		datasets = append(datasets, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewStorage(err)
	}
	return datasets, total, nil
}

// DeleteDataset removes a dataset and all of its posts and comments.
// It returns the number of posts and comments removed.
func DeleteDataset(db *sql.DB, id string) (posts, comments int, err error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, 0, errors.NewStorage(err)
	}
	defer tx.Rollback()

	if err := requireDataset(tx, id); err != nil {
		return 0, 0, err
	}

	res, err := tx.Exec(`DELETE FROM comments WHERE dataset_id = ?`, id)
	if err != nil {
		return 0, 0, errors.NewStorage(err)
	}
	c, _ := res.RowsAffected()

	res, err = tx.Exec(`DELETE FROM posts WHERE dataset_id = ?`, id)
	if err != nil {
		return 0, 0, errors.NewStorage(err)
	}
	p, _ := res.RowsAffected()

	if _, err := tx.Exec(`DELETE FROM datasets WHERE id = ?`, id); err != nil {
		return 0, 0, errors.NewStorage(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, errors.NewStorage(err)
	}
	return int(p), int(c), nil
}

// UpsertPosts inserts or replaces posts in a dataset.
func UpsertPosts(db *sql.DB, datasetID string, posts []thread.Post) error {
	return UpsertRows(db, datasetID, &Rows{Posts: posts})
}

// UpsertComments inserts or replaces comments in a dataset.
func UpsertComments(db *sql.DB, datasetID string, comments []thread.Comment) error {
	return UpsertRows(db, datasetID, &Rows{Comments: comments})
}

// UpsertRows writes posts and comments in one transaction. A record whose id
// already exists in the dataset is replaced and moves to the end of the
// insertion order, matching the last-occurrence-wins rule of tree building.
func UpsertRows(db *sql.DB, datasetID string, rows *Rows) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewStorage(err)
	}
	defer tx.Rollback()

	if err := requireDataset(tx, datasetID); err != nil {
		return err
	}
	if err := upsertPosts(tx, datasetID, rows.Posts); err != nil {
		return err
	}
	if err := upsertComments(tx, datasetID, rows.Comments); err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE datasets SET updated_at = ? WHERE id = ?`, time.Now().Unix(), datasetID); err != nil {
		return errors.NewStorage(err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

func upsertPosts(tx *sql.Tx, datasetID string, posts []thread.Post) error {
	if len(posts) == 0 {
		return nil
	}
	seq, err := nextSeq(tx, "posts", datasetID)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO posts (
			dataset_id, id, title, selftext, author, subreddit, created_utc, extra_json, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id, id) DO UPDATE SET
			title = excluded.title,
			selftext = excluded.selftext,
			author = excluded.author,
			subreddit = excluded.subreddit,
			created_utc = excluded.created_utc,
			extra_json = excluded.extra_json,
			seq = excluded.seq
	`)
	if err != nil {
		return errors.NewStorage(err)
	}
	defer stmt.Close()

	for i, p := range posts {
		var extraJSON sql.NullString
		if len(p.Extra) > 0 {
			data, err := json.Marshal(p.Extra)
			if err != nil {
				return errors.NewInternal(err)
			}
			extraJSON = sql.NullString{String: string(data), Valid: true}
		}
		if _, err := stmt.Exec(datasetID, p.ID, p.Title, p.Selftext,
			toNullString(p.Author), toNullString(p.Subreddit), toNullInt64(p.CreatedUTC),
			extraJSON, seq+int64(i)); err != nil {
			return errors.NewStorage(err)
		}
	}
	return nil
}

func upsertComments(tx *sql.Tx, datasetID string, comments []thread.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	seq, err := nextSeq(tx, "comments", datasetID)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT INTO comments (
			dataset_id, id, post_id, parent_id, body, author, created_utc, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dataset_id, id) DO UPDATE SET
			post_id = excluded.post_id,
			parent_id = excluded.parent_id,
			body = excluded.body,
			author = excluded.author,
			created_utc = excluded.created_utc,
			seq = excluded.seq
	`)
	if err != nil {
		return errors.NewStorage(err)
	}
	defer stmt.Close()

	for i, c := range comments {
		if _, err := stmt.Exec(datasetID, c.ID, c.PostID, c.ParentID, c.Body,
			toNullString(c.Author), toNullInt64(c.CreatedUTC), seq+int64(i)); err != nil {
			return errors.NewStorage(err)
		}
	}
	return nil
}

// nextSeq returns the first unused insertion sequence number for a dataset.
// table is always a package constant.
func nextSeq(tx *sql.Tx, table, datasetID string) (int64, error) {
	var seq int64
	err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM `+table+` WHERE dataset_id = ?`, datasetID).Scan(&seq)
	if err != nil {
		return 0, errors.NewStorage(err)
	}
	return seq, nil
}

func requireDataset(q interface {
	QueryRow(query string, args ...any) *sql.Row
}, id string) error {
	var exists int
	err := q.QueryRow(`SELECT 1 FROM datasets WHERE id = ?`, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return errors.NewNotFound("dataset", id)
	}
	if err != nil {
		return errors.NewStorage(err)
	}
	return nil
}

// GetRows returns the requested posts of a dataset and all of their
// comments, each in insertion order. Ids with no stored post are simply
// absent from the result.
func GetRows(ctx context.Context, db *sql.DB, datasetID string, postIDs []string) (*Rows, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM datasets WHERE id = ?`, datasetID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("dataset", datasetID)
	}
	if err != nil {
		return nil, storageOrCancelled(ctx, err)
	}

	result := &Rows{Posts: []thread.Post{}, Comments: []thread.Comment{}}
	if len(postIDs) == 0 {
		return result, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(postIDs)), ",")
	args := make([]any, 0, len(postIDs)+1)
	args = append(args, datasetID)
	for _, id := range postIDs {
		args = append(args, id)
	}

	postRows, err := db.QueryContext(ctx, `
		SELECT id, title, selftext, author, subreddit, created_utc, extra_json
		FROM posts
		WHERE dataset_id = ? AND id IN (`+placeholders+`)
		ORDER BY seq`, args...)
	if err != nil {
		return nil, storageOrCancelled(ctx, err)
	}
	defer postRows.Close()
	for postRows.Next() {
		p, err := scanPost(postRows)
		if err != nil {
			return nil, storageOrCancelled(ctx, err)
		}
		result.Posts = append(result.Posts, *p)
	}
	if err := postRows.Err(); err != nil {
		return nil, storageOrCancelled(ctx, err)
	}

	commentRows, err := db.QueryContext(ctx, `
		SELECT id, post_id, parent_id, body, author, created_utc
		FROM comments
		WHERE dataset_id = ? AND post_id IN (`+placeholders+`)
		ORDER BY seq`, args...)
	if err != nil {
		return nil, storageOrCancelled(ctx, err)
	}
	defer commentRows.Close()
	for commentRows.Next() {
		var (
			c          thread.Comment
			author     sql.NullString
			createdUTC sql.NullInt64
		)
		if err := commentRows.Scan(&c.ID, &c.PostID, &c.ParentID, &c.Body, &author, &createdUTC); err != nil {
			return nil, storageOrCancelled(ctx, err)
		}
		c.Author = author.String
		c.CreatedUTC = createdUTC.Int64
		result.Comments = append(result.Comments, c)
	}
	if err := commentRows.Err(); err != nil {
		return nil, storageOrCancelled(ctx, err)
	}

	return result, nil
}

// ListPosts returns post summaries of a dataset in insertion order, and the
// total post count.
func ListPosts(db *sql.DB, datasetID string, limit, offset int) ([]PostSummary, int, error) {
	if err := requireDataset(db, datasetID); err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.QueryRow(`SELECT COUNT(*) FROM posts WHERE dataset_id = ?`, datasetID).Scan(&total); err != nil {
		return nil, 0, errors.NewStorage(err)
	}

	rows, err := db.Query(`
		SELECT p.id, p.title, p.author, p.subreddit, p.created_utc,
			(SELECT COUNT(*) FROM comments c WHERE c.dataset_id = p.dataset_id AND c.post_id = p.id)
		FROM posts p
		WHERE p.dataset_id = ?
		ORDER BY p.seq
		LIMIT ? OFFSET ?`, datasetID, limit, offset)
	if err != nil {
		return nil, 0, errors.NewStorage(err)
	}
	defer rows.Close()

	var summaries []PostSummary
	for rows.Next() {
		var (
			s          PostSummary
			author     sql.NullString
			subreddit  sql.NullString
			createdUTC sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &s.Title, &author, &subreddit, &createdUTC, &s.CommentCount); err != nil {
			return nil, 0, errors.NewStorage(err)
		}
		s.Author = author.String
		s.Subreddit = subreddit.String
		s.CreatedUTC = createdUTC.Int64
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewStorage(err)
	}
	return summaries, total, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanDataset scans a datasetColumns row into a Dataset.
func scanDataset(row scanner) (*Dataset, error) {
	var (
		d      Dataset
		source sql.NullString
	)
	if err := row.Scan(&d.ID, &d.Name, &source, &d.CreatedAt, &d.UpdatedAt, &d.PostCount, &d.CommentCount); err != nil {
		return nil, err
	}
	if source.Valid {
		d.Source = &source.String
	}
	return &d, nil
}

// scanPost scans a single posts row into a thread.Post.
func scanPost(row scanner) (*thread.Post, error) {
	var (
		p          thread.Post
		author     sql.NullString
		subreddit  sql.NullString
		createdUTC sql.NullInt64
		extraJSON  sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Title, &p.Selftext, &author, &subreddit, &createdUTC, &extraJSON); err != nil {
		return nil, err
	}
	p.Author = author.String
	p.Subreddit = subreddit.String
	p.CreatedUTC = createdUTC.Int64
	if extraJSON.Valid && extraJSON.String != "" {
		if err := json.Unmarshal([]byte(extraJSON.String), &p.Extra); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// storageOrCancelled reports a context cancellation as such rather than as
// a storage failure.
func storageOrCancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return errors.NewCancelled("fetch rows")
	}
	return errors.NewStorage(err)
}

// toNullString maps the empty string to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// toNullStringPtr converts a *string to sql.NullString.
func toNullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// toNullInt64 maps zero to NULL.
func toNullInt64(n int64) sql.NullInt64 {
	if n == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: n, Valid: true}
}
