package mcp

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/nounimaging/internal/config"
	"github.com/hpungsan/nounimaging/internal/errors"
	"github.com/hpungsan/nounimaging/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db         *sql.DB
	cfg        *config.Config
	reconciler *ops.Reconciler
	locks      *ops.RunLocks
	logger     *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		db:         deps.DB,
		cfg:        deps.Config,
		reconciler: deps.Reconciler,
		locks:      deps.Locks,
		logger:     deps.Logger,
	}
}

// Request types for each tool

// ImagingRunRequest represents the arguments for imaging_run.
type ImagingRunRequest struct {
	Namespace string `json:"namespace,omitempty"`
}

// NounListRequest represents the arguments for noun_list.
type NounListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// NounFindRequest represents the arguments for noun_find.
type NounFindRequest struct {
	NameEn string `json:"name_en"`
}

// NounSetImageRequest represents the arguments for noun_set_image.
type NounSetImageRequest struct {
	ID       string `json:"id"`
	ImageURL string `json:"image_url,omitempty"`
}

// NounImportRequest represents the arguments for noun_import.
type NounImportRequest struct {
	Items []ops.ImportItem `json:"items"`
}

// Handler implementations

// HandleImagingRun handles the imaging_run tool call.
func (h *Handlers) HandleImagingRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImagingRunRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	namespace := input.Namespace
	if namespace == "" {
		namespace = h.cfg.Namespace
	}

	release, err := h.locks.Acquire(namespace)
	if err != nil {
		return errorResult(err), nil
	}
	defer release()

	report, err := h.reconciler.Reconcile(ctx, ops.ReconcileInput{Namespace: namespace})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(report)
}

// HandleNounList handles the noun_list tool call.
func (h *Handlers) HandleNounList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NounListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.ListNouns(ctx, h.db, ops.ListNounsInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleNounFind handles the noun_find tool call.
func (h *Handlers) HandleNounFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NounFindRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.FindNoun(ctx, h.db, ops.FindNounInput{NameEn: input.NameEn})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleNounSetImage handles the noun_set_image tool call.
func (h *Handlers) HandleNounSetImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NounSetImageRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.SetNounImage(ctx, h.db, ops.SetNounImageInput{
		ID:       input.ID,
		ImageURL: input.ImageURL,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleNounImport handles the noun_import tool call.
func (h *Handlers) HandleNounImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[NounImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Items == nil {
		return errorResult(errors.NewInvalidRequest("items is required")), nil
	}

	// ImportNouns reads a JSON document; re-encode the decoded items.
	data, err := json.Marshal(input.Items)
	if err != nil {
		return errorResult(errors.NewInternal(err)), nil
	}

	result, err := ops.ImportNouns(ctx, h.db, ops.ImportNounsInput{Reader: bytes.NewReader(data)})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	if iErr, ok := errors.As(err); ok {
		message := iErr.Message
		if iErr.Code != errors.ErrInternal && err.Error() != iErr.Error() {
			// Keep wrapper context such as "batch 3: ..."
			message = err.Error()
		}
		errorObj := map[string]any{
			"code":    iErr.Code,
			"message": message,
			"status":  iErr.Status,
		}
		// Only include details for non-internal errors to avoid leaking
		// sensitive info like file paths or SQL errors
		if iErr.Code != errors.ErrInternal && iErr.Details != nil {
			errorObj["details"] = iErr.Details
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
