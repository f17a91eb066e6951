package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/db"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db    *sql.DB
	cfg   *config.Config
	store *db.Store
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(database *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: database, cfg: cfg, store: db.NewStore(database)}
}

// Tool arguments decode straight into the ops input types; their JSON tags
// are the tool schemas' property names.

// HandleBuildTree handles the thread_build_tree tool call.
func (h *Handlers) HandleBuildTree(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.BuildTreeInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.BuildTree(input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFlatten handles the transcript_flatten tool call.
func (h *Handlers) HandleFlatten(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.FlattenInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Flatten(input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleAlign handles the codes_align tool call.
func (h *Handlers) HandleAlign(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.AlignInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Align(h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleReport handles the codes_report tool call.
func (h *Handlers) HandleReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ReportInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Report(ctx, h.store, h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFetchBatch handles the dataset_fetch_batch tool call.
func (h *Handlers) HandleFetchBatch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.BatchInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FetchAndAlignBatch(ctx, h.store, h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleImport handles the dataset_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ImportInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ImportDataset(h.db, h.cfg, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the dataset_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ListDatasetsInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListDatasets(h.db, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePosts handles the dataset_posts tool call.
func (h *Handlers) HandlePosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.ListPostsInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListPosts(h.db, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetPost handles the dataset_get_post tool call.
func (h *Handlers) HandleGetPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.GetPostInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.GetPost(ctx, h.store, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleDelete handles the dataset_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ops.DeleteDatasetInput](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.DeleteDataset(h.db, input)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var qErr *errors.Error
	if stderrors.As(err, &qErr) {
		message := qErr.Message
		// Keep context added by wrapping, e.g. "items[2]: ..."
		if full := err.Error(); full != qErr.Error() {
			message = strings.TrimSuffix(full, qErr.Error()) + qErr.Message
		}
		errorObj := map[string]any{
			"code":    qErr.Code,
			"message": message,
			"status":  qErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if qErr.Code != errors.ErrInternal && qErr.Details != nil {
			errorObj["details"] = qErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
