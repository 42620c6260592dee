package executor

import (
	"context"
	"reflect"
	"testing"
)

func TestBuildArgvDropsEmpties(t *testing.T) {

	req := Request{
		Command:           "/usr/local/bin/invert",
		BlockName:         "invert-1",
		InputPaths:        []string{"/store/a.png"},
		OutputPath:        "/store/cached_images/b.png",
		PositionalValues:  []string{"", "keep"},
		ParameterTemplate: "",
		TemplatedValues:   nil,
	}

	argv, err := BuildArgv(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"/usr/local/bin/invert", "invert-1", "/store/a.png", "/store/cached_images/b.png", "keep"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("argv = %v, want %v", argv, want)
	}
}

func TestFormatTemplate(t *testing.T) {

	got, err := FormatTemplate("--angle %s --passes %d", []string{"45", "3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "--angle 45 --passes 3"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// TestTokenizeShellMetaCharacters verifies argv safety: a value containing
// spaces, semicolons and quotes must survive as a single argv element, not
// be reinterpreted.
func TestTokenizeShellMetaCharacters(t *testing.T) {

	tokens, err := Tokenize(`--name "hello world; rm -rf /"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"--name", "hello world; rm -rf /"}
	if !reflect.DeepEqual(tokens, want) {
		t.Errorf("tokens = %v, want %v", tokens, want)
	}
}

func TestTokenizeEmpty(t *testing.T) {
	tokens, err := Tokenize("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokens != nil {
		t.Errorf("expected nil tokens for empty string, got %v", tokens)
	}
}

func TestRunCapturesExitCodeAndMergedOutput(t *testing.T) {

	req := Request{
		Command:    "/bin/echo",
		BlockName:  "noop",
		InputPaths: nil,
		OutputPath: "",
		PositionalValues: []string{"hello"},
	}

	result, err := Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}

	if result.Output != "noop hello\n" {
		t.Errorf("output = %q, want %q", result.Output, "noop hello\n")
	}
}

func TestRunNonZeroExit(t *testing.T) {

	req := Request{
		Command:   "/bin/false",
		BlockName: "fails",
	}

	result, err := Run(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.ExitCode == 0 {
		t.Errorf("expected nonzero exit code from /bin/false")
	}
}
