package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

var (
	codeFenceRe = regexp.MustCompile("(?s)```(?:python)?\\s*\\n?(.*?)\\n?```")

	// Inputs containing any of these are statements and run as-is;
	// anything else is treated as an expression to print.
	statementKeywords = []string{"print", "=", "def", "class", "import", "for", "while", "if"}
)

// PythonREPL executes Python code in a subprocess with a hard timeout.
type PythonREPL struct {
	bin     string
	timeout time.Duration
}

// NewPythonREPL creates the code execution tool.
func NewPythonREPL(bin string, timeout time.Duration) *PythonREPL {
	if bin == "" {
		bin = "python3"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PythonREPL{
		bin:     bin,
		timeout: timeout,
	}
}

// Name returns the tool id.
func (p *PythonREPL) Name() string {
	return "python_repl"
}

// Description tells the model when to use this tool.
func (p *PythonREPL) Description() string {
	return "Execute Python code for calculations, data processing, and analysis. " +
		"Use this for math operations, data manipulation, and generating visualizations. " +
		"The code should be valid Python and will be executed in a sandboxed environment."
}

// Invoke cleans the code, runs it, and returns captured output.
func (p *PythonREPL) Invoke(ctx context.Context, code string) (string, error) {
	code = cleanCodeInput(code)
	code = wrapExpression(code)

	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, p.bin, "-c", code)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if execCtx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Error executing code: execution timed out after %s", p.timeout), nil
	}

	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Sprintf("Error executing code: %s", detail), nil
	}

	result := strings.TrimSpace(stdout.String())
	if result == "" {
		return "Code executed successfully.", nil
	}
	return result, nil
}

// cleanCodeInput strips markdown code fences when present.
func cleanCodeInput(code string) string {
	if strings.Contains(code, "```") {
		if match := codeFenceRe.FindStringSubmatch(code); match != nil {
			return strings.TrimSpace(match[1])
		}
	}
	return strings.TrimSpace(code)
}

// wrapExpression turns a bare single-line expression like "25 * 47"
// into print(25 * 47) so its value reaches stdout.
func wrapExpression(code string) string {
	if code == "" || strings.Contains(code, "\n") {
		return code
	}
	for _, keyword := range statementKeywords {
		if strings.Contains(code, keyword) {
			return code
		}
	}
	return fmt.Sprintf("print(%s)", code)
}
