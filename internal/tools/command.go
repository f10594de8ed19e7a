package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/example/reelforge/internal/jsonx"
	"github.com/example/reelforge/internal/models"
)

// CommandTool runs an external program for one capability.
//
// Each argument may reference parameters as {name}; {project} is an alias
// for {project_name}. The full parameter map is written to stdin as JSON.
// The last JSON object printed on stdout is taken as the result envelope;
// without one, a zero exit is a success carrying the last output line.
type CommandTool struct {
	Tool    models.Tool
	Argv    []string
	Dir     string
	Env     []string
	Timeout time.Duration
}

func (c *CommandTool) Name() models.Tool { return c.Tool }

var placeholder = regexp.MustCompile(`\{([a-z_]+)\}`)

func (c *CommandTool) Execute(ctx context.Context, params map[string]any) (models.Result, error) {
	if len(c.Argv) == 0 {
		return models.Result{}, errors.New("no command configured")
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	argv := make([]string, len(c.Argv))
	for i, a := range c.Argv {
		argv[i] = placeholder.ReplaceAllStringFunc(a, func(m string) string {
			key := m[1 : len(m)-1]
			if key == "project" {
				key = "project_name"
			}
			return paramString(params, key)
		})
	}
	stdin, err := json.Marshal(params)
	if err != nil {
		return models.Result{}, fmt.Errorf("encode parameters: %w", err)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	m, found := lastEnvelope(stdout.String())
	if runErr != nil {
		env := models.ResultFromMap(m)
		msg := tail(stderr.String(), 400)
		if env.Message != "" {
			msg = env.Message
		}
		if msg == "" {
			msg = runErr.Error()
		}
		return models.Result{Status: models.ResultError, Message: msg, Data: env.Data}, nil
	}
	if !found {
		return models.Success(lastLine(stdout.String()), nil), nil
	}
	// a clean exit without an explicit status is a success
	if _, ok := m["status"]; !ok {
		m["status"] = string(models.ResultSuccess)
	}
	return models.ResultFromMap(m), nil
}

// lastEnvelope scans stdout bottom-up for a line holding a JSON object.
func lastEnvelope(out string) (map[string]any, bool) {
	lines := strings.Split(out, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		ln := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(ln, "{") {
			continue
		}
		if m, err := jsonx.Extract(ln); err == nil {
			return m, true
		}
	}
	return nil, false
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
