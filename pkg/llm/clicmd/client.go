// Package clicmd implements llm.Provider by shelling out to a local CLI
// (e.g. a vendor's command-line client). The prompt is written to stdin and
// stdout is taken as the response. Embeddings are not supported.
package clicmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/user/recap/pkg/llm"
)

const defaultTimeout = 5 * time.Minute

// Client implements llm.Provider over a subprocess.
type Client struct {
	command string
	args    []string
	timeout time.Duration
}

// New creates a subprocess-backed client. command is the executable; args are
// passed verbatim before the prompt flag handling.
func New(command string, args ...string) *Client {
	return &Client{command: command, args: args, timeout: defaultTimeout}
}

// Complete runs the CLI once with the prompt on stdin.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	args := append([]string(nil), c.args...)
	if req.System != "" {
		args = append(args, "--system-prompt", req.System)
	}

	cmd := exec.CommandContext(ctx, c.command, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", c.command, err, strings.TrimSpace(stderr.String()))
	}

	content := strings.TrimSpace(stdout.String())
	if content == "" {
		return nil, fmt.Errorf("%s produced no output", c.command)
	}
	// CLI backends do not report token usage.
	return &llm.Response{Content: content}, nil
}

// Embed is unsupported for subprocess backends.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, llm.ErrNoEmbeddings
}

var _ llm.Provider = (*Client)(nil)
