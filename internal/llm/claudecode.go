package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// claudeCodeClient implements Client by shelling out to the Claude Code CLI.
type claudeCodeClient struct {
	cliPath string
	model   string
	timeout time.Duration
}

// newClaudeCodeClient fails early when the CLI is not installed.
func newClaudeCodeClient(cfg Config) (Client, error) {
	cliPath := cfg.ClaudeCodePath
	if cliPath == "" {
		cliPath = "claude"
	}
	if _, err := exec.LookPath(cliPath); err != nil {
		return nil, fmt.Errorf("claude CLI not found at %s: ensure @anthropic-ai/claude-code is installed", cliPath)
	}

	model := cfg.Model
	if model == "" {
		model = "sonnet"
	}

	return &claudeCodeClient{
		cliPath: cliPath,
		model:   model,
		timeout: cfg.timeout(),
	}, nil
}

// Complete runs a single non-interactive turn and returns its result text.
func (c *claudeCodeClient) Complete(ctx context.Context, prompt string) (string, error) {
	args := []string{
		"-p", systemPrompt + "\n\n" + prompt,
		"--output-format", "json",
		"--model", c.model,
		"--max-turns", "1",
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.cliPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return "", fmt.Errorf("claude code error: %s", strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("failed to execute claude: %w", err)
	}

	var response claudeCodeResponse
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		// Older CLI versions print the bare result.
		out := strings.TrimSpace(stdout.String())
		if out == "" {
			return "", ErrEmptyResponse
		}
		return out, nil
	}
	if response.IsError {
		return "", errors.New("claude code error in response")
	}
	if strings.TrimSpace(response.Result) == "" {
		return "", ErrEmptyResponse
	}
	return response.Result, nil
}

// claudeCodeResponse represents the JSON response from Claude Code CLI.
type claudeCodeResponse struct {
	Result    string  `json:"result"`
	Type      string  `json:"type"`
	SessionID string  `json:"session_id"`
	IsError   bool    `json:"is_error"`
	TotalCost float64 `json:"total_cost_usd"`
}
