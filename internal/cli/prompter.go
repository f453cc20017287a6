package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Prompter reads values interactively. Every entry is followed by a yes/no
// confirmation; the prompt repeats until the user confirms, so a mistyped
// phone number or OTP can be corrected before it is submitted.
type Prompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewPrompter creates a prompter over the given reader and writer, defaulting
// to stdin and stdout.
func NewPrompter(reader io.Reader, writer io.Writer) *Prompter {
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	return &Prompter{
		reader: bufio.NewReader(reader),
		writer: writer,
	}
}

// Ask prompts for a value until the user confirms it.
func (p *Prompter) Ask(ctx context.Context, label string) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		if _, err := fmt.Fprintln(p.writer, FormatPrompt(label)); err != nil {
			return "", fmt.Errorf("failed to write prompt: %w", err)
		}
		value, err := p.readLine()
		if err != nil {
			return "", err
		}

		if _, err := fmt.Fprintln(p.writer, FormatPrompt("Continue Y/y or N/n ?")); err != nil {
			return "", fmt.Errorf("failed to write confirmation prompt: %w", err)
		}
		answer, err := p.readLine()
		if err != nil {
			return "", err
		}

		if strings.EqualFold(answer, "y") {
			return value, nil
		}
	}
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
