package ops

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hpungsan/quotemap/internal/align"
	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/report"
	"github.com/hpungsan/quotemap/internal/thread"
	"github.com/hpungsan/quotemap/internal/transcript"
)

// ReportInput contains parameters for the Report operation. The post is
// either given inline or loaded from a dataset by id.
type ReportInput struct {
	Post        *thread.NestedPost `json:"post,omitempty"`
	DatasetID   string             `json:"dataset_id,omitempty"`
	PostID      string             `json:"post_id,omitempty"`
	Annotations []align.Annotation `json:"annotations"`
	Path        string             `json:"path,omitempty"` // default: ~/.quotemap/reports/<post>-<timestamp>.html
}

// ReportOutput contains the result of the Report operation.
type ReportOutput struct {
	Path        string `json:"path"`
	Segments    int    `json:"segments"`
	Matched     int    `json:"matched"`
	Unmapped    int    `json:"unmapped"`
	GeneratedAt int64  `json:"generated_at"`
}

// Report aligns the annotations against a post and writes the HTML audit
// report. source may be nil when the post is given inline.
func Report(ctx context.Context, source RowSource, cfg *config.Config, input ReportInput) (*ReportOutput, error) {
	post := input.Post
	switch {
	case post != nil && (input.DatasetID != "" || input.PostID != ""):
		return nil, errors.NewInvalidRequest("give either post or dataset_id and post_id, not both")
	case post == nil:
		if source == nil {
			return nil, errors.NewInvalidField("post", "is required")
		}
		got, err := GetPost(ctx, source, GetPostInput{DatasetID: input.DatasetID, PostID: input.PostID})
		if err != nil {
			return nil, err
		}
		post = got.Post
	}
	if err := validateNestedPost("post", post); err != nil {
		return nil, err
	}

	segments := transcript.Flatten(post)
	result, err := align.Align(segments, input.Annotations, alignOptions(cfg))
	if err != nil {
		return nil, err
	}

	now := time.Now()
	path := input.Path
	if path == "" {
		if path, err = defaultReportPath(post.ID, now); err != nil {
			return nil, err
		}
	}
	if err := ValidatePath(path, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, report.Input{
		DatasetID:   strings.TrimSpace(input.DatasetID),
		Post:        post,
		Segments:    segments,
		Annotations: input.Annotations,
		Result:      result,
		Threshold:   alignOptions(cfg).MinScore(),
		GeneratedAt: now.Unix(),
	}); err != nil {
		return nil, errors.NewInternal(err)
	}

	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return nil, err
	}

	return &ReportOutput{
		Path:        path,
		Segments:    len(segments),
		Matched:     len(segments) - len(result.Unmapped),
		Unmapped:    len(result.Unmapped),
		GeneratedAt: now.Unix(),
	}, nil
}

// defaultReportPath generates ~/.quotemap/reports/<post>-<timestamp>.html.
func defaultReportPath(postID string, now time.Time) (string, error) {
	dir, err := DefaultReportsDir()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.html", SanitizeForFilename(postID), now.Format("2006-01-02T150405"))
	return filepath.Join(dir, name), nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so an existing report survives a failed write.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create report directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if qErr, ok := err.(*errors.Error); ok {
			return qErr
		}
		return errors.NewInternal(fmt.Errorf("failed to create report file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close report file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("report path must not be a symlink")
	}

	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("report destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize report: %w", err))
	}

	success = true
	return nil
}
