// Package report renders the static HTML audit report for one aligned post:
// every transcript segment with its coded spans highlighted, the match list
// of each annotation, and the segments no annotation reached.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/hpungsan/quotemap/internal/align"
	"github.com/hpungsan/quotemap/internal/thread"
	"github.com/hpungsan/quotemap/internal/transcript"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"formatTime": formatTime,
	"join":       strings.Join,
	"indent":     func(depth int) string { return fmt.Sprintf("%.1f", float64(depth)*1.5) },
}).ParseFS(templateFS, "templates/report.html"))

// Reddit bodies are markdown. Raw HTML from the source text is escaped
// before conversion, so the only raw HTML goldmark sees is our own <mark>.
// WithUnsafe also disables goldmark's URL filter, so link destinations are
// checked by safeLinks instead.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Strikethrough, extension.Table, extension.Linkify),
	goldmark.WithParserOptions(parser.WithASTTransformers(util.Prioritized(safeLinks{}, 100))),
	goldmark.WithRendererOptions(html.WithUnsafe()),
)

// safeLinks blanks link and image destinations that html.IsDangerousURL
// rejects (javascript:, vbscript:, file:, non-image data:).
type safeLinks struct{}

func (safeLinks) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Link:
			if html.IsDangerousURL(n.Destination) {
				n.Destination = nil
			}
		case *ast.Image:
			if html.IsDangerousURL(n.Destination) {
				n.Destination = nil
			}
		}
		return ast.WalkContinue, nil
	})
}

// Input is everything the report shows.
type Input struct {
	DatasetID   string
	Post        *thread.NestedPost
	Segments    []transcript.Segment
	Annotations []align.Annotation
	Result      *align.Result
	Threshold   int
	GeneratedAt int64
}

type pageData struct {
	Title        string
	DatasetID    string
	PostID       string
	GeneratedAt  int64
	Threshold    int
	SegmentCount int
	MatchedCount int
	Unmapped     []string
	Annotations  []annotationView
	Segments     []segmentView
}

type annotationView struct {
	ID         string
	Code       string
	AuthoredBy string
	Mode       string
	Matches    []string
}

type segmentView struct {
	Index    int
	ID       string
	Kind     transcript.Kind
	Depth    int
	Unmapped bool
	HTML     template.HTML
}

// Render writes the report page to w.
func Render(w io.Writer, in Input) error {
	if in.Post == nil || in.Result == nil {
		return fmt.Errorf("report: post and alignment result are required")
	}

	unmapped := make(map[string]bool, len(in.Result.Unmapped))
	for _, id := range in.Result.Unmapped {
		unmapped[id] = true
	}

	hits := make(map[string][]align.Annotation)
	views := make([]annotationView, 0, len(in.Annotations))
	for _, a := range in.Annotations {
		matches := matchesFor(in.Result, a)
		for _, id := range matches {
			hits[id] = append(hits[id], a)
		}
		views = append(views, annotationView{
			ID:         a.ID,
			Code:       a.Code,
			AuthoredBy: string(a.AuthoredBy),
			Mode:       modeName(a.Mode()),
			Matches:    matches,
		})
	}

	depths := segmentDepths(in.Post)
	authors := authorship(in.Annotations)
	segments := make([]segmentView, 0, len(in.Segments))
	matched := 0
	for _, s := range in.Segments {
		if !unmapped[s.ID] {
			matched++
		}
		body, err := renderSegment(s, hits[s.ID], authors)
		if err != nil {
			return fmt.Errorf("render segment %s: %w", s.ID, err)
		}
		segments = append(segments, segmentView{
			Index:    s.Index,
			ID:       s.ID,
			Kind:     s.Kind,
			Depth:    depths[s.ID],
			Unmapped: unmapped[s.ID],
			HTML:     body,
		})
	}

	title := strings.TrimSpace(in.Post.Title)
	if title == "" {
		title = "Post " + in.Post.ID
	}

	return pageTmpl.Execute(w, pageData{
		Title:        title,
		DatasetID:    in.DatasetID,
		PostID:       in.Post.ID,
		GeneratedAt:  in.GeneratedAt,
		Threshold:    in.Threshold,
		SegmentCount: len(in.Segments),
		MatchedCount: matched,
		Unmapped:     in.Result.Unmapped,
		Annotations:  views,
		Segments:     segments,
	})
}

func matchesFor(r *align.Result, a align.Annotation) []string {
	if a.AuthoredBy == align.AuthoredByMachine {
		return r.MachineMatches[a.ID]
	}
	return r.HumanMatches[a.ID]
}

func modeName(m align.Mode) string {
	switch m {
	case align.ModeMarker:
		return "marker"
	case align.ModeSource:
		return "source"
	default:
		return "text"
	}
}

func authorship(annotations []align.Annotation) map[string]align.Authorship {
	m := make(map[string]align.Authorship, len(annotations))
	for _, a := range annotations {
		m[a.ID] = a.AuthoredBy
	}
	return m
}

// segmentDepths gives the title and selftext depth 0 and each comment its
// nesting depth below the post.
func segmentDepths(post *thread.NestedPost) map[string]int {
	depths := make(map[string]int)
	thread.Walk(post.Comments, func(c *thread.NestedComment, depth int) bool {
		depths[c.ID] = depth + 1
		return true
	})
	return depths
}

// renderSegment converts a segment's markdown to HTML with each coded span
// wrapped in <mark>.
func renderSegment(s transcript.Segment, hits []align.Annotation, authors map[string]align.Authorship) (template.HTML, error) {
	if s.Text == "" {
		return template.HTML(`<p class="none">(empty)</p>`), nil
	}

	var md strings.Builder
	for _, span := range align.Spans(s, hits) {
		text := escapeHTML(span.Text)
		if len(span.AnnotationIDs) == 0 {
			md.WriteString(text)
			continue
		}
		class := "human"
		for _, id := range span.AnnotationIDs {
			if authors[id] == align.AuthoredByMachine {
				class = "machine"
				break
			}
		}
		fmt.Fprintf(&md, `<mark class="%s" title="%s">%s</mark>`,
			class, template.HTMLEscapeString(strings.Join(span.AnnotationIDs, " ")), text)
	}

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md.String()), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// escapeHTML neutralizes raw HTML tags in source text. Entities and ">"
// are left for goldmark, so blockquotes and reddit's &gt; still render.
func escapeHTML(s string) string {
	return strings.ReplaceAll(s, "<", "&lt;")
}

// formatTime formats a Unix timestamp as "2006-01-02 15:04" UTC.
func formatTime(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02 15:04")
}
