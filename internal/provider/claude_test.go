package provider

import (
	"strings"
	"testing"
)

func TestParseClaudeOutputSuccess(t *testing.T) {
	stdout := `{"type":"result","result":"Hello there","session_id":"s-123","is_error":false}`

	res := parseClaudeOutput(stdout, "", 0)
	if !res.Success {
		t.Fatalf("expected success, got error %s: %s", res.ErrorClass, res.ErrorMessage)
	}
	if res.Text != "Hello there" {
		t.Errorf("Text = %q, want %q", res.Text, "Hello there")
	}
	if res.SessionID != "s-123" {
		t.Errorf("SessionID = %q, want %q", res.SessionID, "s-123")
	}
}

func TestParseClaudeOutputInDocumentError(t *testing.T) {
	// is_error wins even though the process exited 0.
	stdout := `{"type":"result","result":"Usage limit reached","session_id":"s-9","is_error":true}`

	res := parseClaudeOutput(stdout, "", 0)
	if res.Success {
		t.Fatal("expected failure when is_error is set")
	}
	if res.ErrorClass != QuotaExhausted {
		t.Errorf("ErrorClass = %s, want %s", res.ErrorClass, QuotaExhausted)
	}
	if res.SessionID != "s-9" {
		t.Errorf("SessionID = %q, want s-9 (observed before the failure)", res.SessionID)
	}
}

func TestParseClaudeOutputPlainTextFallback(t *testing.T) {
	res := parseClaudeOutput("just plain text\n", "", 0)
	if !res.Success {
		t.Fatalf("clean exit with output should be a plain-text success, got %s", res.ErrorMessage)
	}
	if res.Text != "just plain text" {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestParseClaudeOutputUnparseableFailure(t *testing.T) {
	res := parseClaudeOutput("", "Error: not authenticated. Please log in.\n", 1)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorClass != AuthRequired {
		t.Errorf("ErrorClass = %s, want %s", res.ErrorClass, AuthRequired)
	}
	if !strings.Contains(res.ErrorMessage, "not authenticated") {
		t.Errorf("ErrorMessage = %q, want the raw text", res.ErrorMessage)
	}
}

func TestParseClaudeOutputEmptyFailure(t *testing.T) {
	res := parseClaudeOutput("", "", 1)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.ErrorClass != OtherError {
		t.Errorf("ErrorClass = %s, want %s", res.ErrorClass, OtherError)
	}
	if res.ErrorMessage == "" {
		t.Error("expected a placeholder error message")
	}
}

func TestParseClaudeOutputBoundsMessage(t *testing.T) {
	long := strings.Repeat("x", 2000)
	res := parseClaudeOutput("", long, 1)
	if len(res.ErrorMessage) > 800 {
		t.Errorf("ErrorMessage length = %d, want <= 800", len(res.ErrorMessage))
	}
	if res.RawOutput != long {
		t.Error("RawOutput should retain the full text")
	}
}
