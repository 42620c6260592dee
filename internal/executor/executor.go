// Package executor assembles an argv vector from a block's command,
// resolved input paths, a fresh output path, and formatted parameters,
// then runs the child process.
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/mattn/go-shellwords"
)

// Request is everything EX needs to invoke one block's command.
type Request struct {
	Command          string
	BlockName        string
	InputPaths       []string
	OutputPath       string
	PositionalValues []string // gui_fields entries not consumed by the template
	ParameterTemplate string  // printf-style template consuming the remaining values
	TemplatedValues  []string // the remaining gui_fields values, in order, formatted into ParameterTemplate
}

// Result captures what happened.
type Result struct {
	Argv     []string
	Output   string // merged stdout+stderr
	ExitCode int
}

// Run builds the argv vector and executes it, never through a shell:
// string-concatenating into a shell command is never safe against
// adversarial input. It merges child stdout+stderr onto a single buffer
// the parent drains before reaping, avoiding pipe stalls on large output.
// Success requires both exit code 0 and OutputPath existing on disk, but
// checking existence is the caller's responsibility -- this package does
// not touch the filesystem beyond running the child -- since only the
// caller knows whether to delete a partial file.
func Run(ctx context.Context, req Request) (*Result, error) {

	argv, err := BuildArgv(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build argv for block %q: %v", req.BlockName, err)
	}

	if len(argv) == 0 {
		return nil, fmt.Errorf("block %q produced an empty argv", req.BlockName)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("failed to run block %q command %q: %v", req.BlockName, req.Command, runErr)
		}
	}

	return &Result{
		Argv:     argv,
		Output:   buf.String(),
		ExitCode: exitCode,
	}, nil
}

// BuildArgv assembles the argv vector for a block invocation: [command,
// block_name, input_paths..., output_path, positional_values...,
// templated_tokens...], dropping empty elements.
func BuildArgv(req Request) ([]string, error) {

	templated, err := FormatTemplate(req.ParameterTemplate, req.TemplatedValues)
	if err != nil {
		return nil, err
	}

	tokens, err := Tokenize(templated)
	if err != nil {
		return nil, fmt.Errorf("failed to tokenize templated parameters %q: %v", templated, err)
	}

	argv := make([]string, 0, 2+len(req.InputPaths)+1+len(req.PositionalValues)+len(tokens))

	argv = appendNonEmpty(argv, req.Command, req.BlockName)
	argv = appendNonEmpty(argv, req.InputPaths...)
	argv = appendNonEmpty(argv, req.OutputPath)
	argv = appendNonEmpty(argv, req.PositionalValues...)
	argv = appendNonEmpty(argv, tokens...)

	return argv, nil
}

// FormatTemplate applies printf-style substitution of values into
// template, in gui_fields order. A template with no placeholders and no
// values returns the template unchanged (including the empty string).
func FormatTemplate(template string, values []string) (string, error) {

	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}

	// a %d placeholder takes the integer value of its (string) setting
	verb := 0
	for i := 0; i+1 < len(template) && verb < len(values); i++ {
		if template[i] != '%' {
			continue
		}
		i++
		if template[i] == 'd' {
			if n, err := strconv.Atoi(values[verb]); err == nil {
				args[verb] = n
			}
		}
		if template[i] == 'd' || template[i] == 's' {
			verb++
		}
	}

	return fmt.Sprintf(template, args...), nil
}

// Tokenize word-splits a formatted parameter string with shell-style quote
// awareness. It never invokes a shell; it only recognizes whitespace and
// matched quotes.
func Tokenize(s string) ([]string, error) {

	if s == "" {
		return nil, nil
	}

	p := shellwords.NewParser()
	p.ParseEnv = false
	p.ParseBacktick = false

	tokens, err := p.Parse(s)
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

func appendNonEmpty(argv []string, vals ...string) []string {
	for _, v := range vals {
		if v != "" {
			argv = append(argv, v)
		}
	}
	return argv
}
