package scanapi

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TokenSource supplies the bearer credential for the current operator session
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token
type StaticToken string

func (t StaticToken) Token(ctx context.Context) (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// FileToken reads the bearer token from a file on every call, so an operator can
// re-authenticate by replacing the file without restarting the station
type FileToken struct {
	Path string
}

func (f FileToken) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("reading token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
