package client

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoQuery is returned by [ReadQuery] when stdin is an interactive terminal
// and no query argument was given.
var ErrNoQuery = errors.New("supply a GraphQL subscription or pipe one into stdin")

// ReadQuery resolves the subscription document. arg is used verbatim, or read
// from a file when it starts with '@'. Without arg the document is read from
// stdin, which must not be a terminal.
func ReadQuery(arg string, stdin io.Reader) (string, error) {
	var q string
	switch {
	case strings.HasPrefix(arg, "@"):
		data, err := os.ReadFile(arg[1:])
		if err != nil {
			return "", fmt.Errorf("failed to read query file: %w", err)
		}
		q = string(data)
	case arg != "":
		q = arg
	default:
		if isTerminal(stdin) {
			return "", ErrNoQuery
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read query from stdin: %w", err)
		}
		q = string(data)
	}

	if strings.TrimSpace(q) == "" {
		return "", errors.New("subscription query is empty")
	}
	return q, nil
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
