package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/nounimaging/internal/config"
	"github.com/hpungsan/nounimaging/internal/db"
	"github.com/hpungsan/nounimaging/internal/errors"
	"github.com/hpungsan/nounimaging/internal/noun"
	"github.com/hpungsan/nounimaging/internal/ops"
	"github.com/hpungsan/nounimaging/internal/storage"
)

type testEnv struct {
	deps  Deps
	store *storage.MemStore
}

// testSetup creates a temporary database, in-memory storage and config for testing.
func testSetup(t *testing.T) *testEnv {
	t.Helper()

	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	store := storage.NewMemStore()

	return &testEnv{
		deps: Deps{
			DB:         database,
			Config:     cfg,
			Reconciler: ops.NewReconciler(store, db.NewNounStore(database), cfg, ops.ReconcilerOptions{}),
			Locks:      ops.NewRunLocks(tmpDir),
		},
		store: store,
	}
}

func insertNoun(t *testing.T, database *sql.DB, id, nameEn, imageURL string) {
	t.Helper()
	err := db.Insert(context.Background(), database, &noun.Noun{
		ID: id, NameEn: nameEn, NameHe: "שם", ImageURL: imageURL, CreatedAt: 1700000000, UpdatedAt: 1700000000,
	})
	if err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleImagingRun(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.deps)

	keep := "nouns/cat_1700000000000_abc1234.png"
	insertNoun(t, env.deps.DB, "n-cat", "cat", storage.PublicURL(storage.DefaultMemBaseURL, keep))
	insertNoun(t, env.deps.DB, "n-dog", "dog", "")
	env.store.Put(keep, 10, "image/png")
	env.store.Put("nouns/dog.png", 10, "image/png")
	env.store.Put("nouns/stray_1700000000000_zzz9999.png", 10, "image/png")

	result, err := h.HandleImagingRun(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)

	files, ok := output["files"].([]any)
	if !ok || len(files) != 3 {
		t.Fatalf("files = %v, want 3 entries", output["files"])
	}
	actions := map[string]string{}
	for _, f := range files {
		entry := f.(map[string]any)
		actions[entry["original"].(string)] = entry["action"].(string)
	}
	if actions[keep] != "KEEP" {
		t.Errorf("cat action = %q, want KEEP", actions[keep])
	}
	if actions["nouns/dog.png"] != "RENAMED_AND_UPDATED" {
		t.Errorf("dog action = %q, want RENAMED_AND_UPDATED", actions["nouns/dog.png"])
	}
	if actions["nouns/stray_1700000000000_zzz9999.png"] != "REMOVED" {
		t.Errorf("stray action = %q, want REMOVED", actions["nouns/stray_1700000000000_zzz9999.png"])
	}

	dog, err := db.GetByID(context.Background(), env.deps.DB, "n-dog")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !dog.HasImage() {
		t.Error("dog record was not linked to its renamed image")
	}
}

func TestHandleImagingRun_Locked(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.deps)

	release, err := env.deps.Locks.Acquire("nouns")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	result, err := h.HandleImagingRun(context.Background(), makeRequest(map[string]any{"namespace": "nouns"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "RUN_IN_PROGRESS")
}

func TestHandleImagingRun_StorageUnavailable(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.deps)
	env.store.FailList(fmt.Errorf("connection refused"))

	result, err := h.HandleImagingRun(context.Background(), makeRequest(nil))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "STORAGE_UNAVAILABLE")
}

func TestHandleNounList(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.deps)
	for i := range 3 {
		insertNoun(t, env.deps.DB, fmt.Sprintf("n-%d", i), fmt.Sprintf("noun%d", i), "")
	}

	result, err := h.HandleNounList(context.Background(), makeRequest(map[string]any{"limit": 2}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)

	items := output["items"].([]any)
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
	pagination := output["pagination"].(map[string]any)
	if pagination["has_more"] != true {
		t.Errorf("pagination = %v, want has_more", pagination)
	}

	result, err = h.HandleNounList(context.Background(), makeRequest(map[string]any{"limit": "two"}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleNounFind(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.deps)
	insertNoun(t, env.deps.DB, "n-cat", "Cat", "")

	tests := []struct {
		name      string
		args      map[string]any
		wantError bool
		errorCode string
	}{
		{name: "case-insensitive hit", args: map[string]any{"name_en": "cAT"}},
		{name: "missing name", args: map[string]any{}, wantError: true, errorCode: "INVALID_REQUEST"},
		{name: "unknown name", args: map[string]any{"name_en": "unicorn"}, wantError: true, errorCode: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleNounFind(context.Background(), makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError {
				if !result.IsError {
					t.Errorf("expected error result, got success")
				}
				assertErrorCode(t, result, tt.errorCode)
				return
			}
			if result.IsError {
				t.Errorf("expected success, got error: %v", extractErrorMessage(result))
			}
		})
	}
}

func TestHandleNounSetImage(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.deps)
	insertNoun(t, env.deps.DB, "n-cat", "cat", "")

	result, err := h.HandleNounSetImage(context.Background(), makeRequest(map[string]any{
		"id":        "n-cat",
		"image_url": "https://storage.local/o/nouns%2Fcat.png?alt=media",
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["imageUrl"] != "https://storage.local/o/nouns%2Fcat.png?alt=media" {
		t.Errorf("imageUrl = %v", output["imageUrl"])
	}

	result, err = h.HandleNounSetImage(context.Background(), makeRequest(map[string]any{
		"id":        "n-cat",
		"image_url": "cat.png",
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleNounImport(t *testing.T) {
	env := testSetup(t)
	h := NewHandlers(env.deps)
	insertNoun(t, env.deps.DB, "n-cat", "cat", "")

	result, err := h.HandleNounImport(context.Background(), makeRequest(map[string]any{
		"items": []any{
			map[string]any{"nameEn": "cat", "nameHe": "חתול"},
			map[string]any{"nameEn": "dog", "nameHe": "כלב"},
			map[string]any{"nameEn": "owl"},
		},
	}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["imported"] != float64(1) || output["skipped"] != float64(1) {
		t.Errorf("output = %v, want 1 imported and 1 skipped", output)
	}
	if errs := output["errors"].([]any); len(errs) != 1 {
		t.Errorf("errors = %v, want 1", errs)
	}

	result, err = h.HandleNounImport(context.Background(), makeRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestServerRegistration(t *testing.T) {
	env := testSetup(t)

	s := NewServer(env.deps, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{"imaging_run", "noun_list", "noun_find", "noun_set_image", "noun_import"}
	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}
	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	env := testSetup(t)
	env.deps.Config.DisabledTools = []string{"imaging_run", "imaging_run", "noun_import"}

	tools := NewServer(env.deps, "test").ListTools()
	if len(tools) != 3 {
		t.Errorf("registered tool count = %d, want 3", len(tools))
	}
	for _, name := range []string{"imaging_run", "noun_import"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{name: "all valid", input: []string{"imaging_run", "noun_list"}, wantLen: 0},
		{name: "one unknown", input: []string{"noun_list", "fake_tool"}, wantLen: 1},
		{name: "empty list", input: []string{}, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != len(toolRegistry) {
		t.Errorf("AllToolNames() returned %d names, want %d", len(names), len(toolRegistry))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("batch 2: %w", errors.NewStorageUnavailable("list objects", nil))

	r := errorResult(wrappedErr)
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(r.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj := payload["error"].(map[string]any)

	if errObj["code"] != string(errors.ErrStorageUnavailable) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrStorageUnavailable)
	}
	if msg := errObj["message"].(string); !strings.Contains(msg, "batch 2") {
		t.Errorf("message should contain wrapper context 'batch 2', got: %s", msg)
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	r := errorResult(fmt.Errorf("boom"))
	assertErrorCode(t, r, "INTERNAL")
	if strings.Contains(extractErrorMessage(r), "boom") {
		t.Error("plain error text leaked into result")
	}
}

func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Errorf("content is not TextContent")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
		t.Errorf("failed to unmarshal error payload: %v", err)
		return
	}

	errorObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Errorf("no error object in payload")
		return
	}

	if code, _ := errorObj["code"].(string); code != expectedCode {
		t.Errorf("error code = %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
