// Package converter wraps the external document conversion engine.
// The engine does the actual PDF parsing, OCR and table-structure work;
// this package only knows how to invoke it per mode and collect Markdown.
package converter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pdf-markdown-service/internal/entity"
)

// Backend converts one document to Markdown. A backend is configured for a
// single mode; empty output means the document yielded nothing usable.
type Backend interface {
	Convert(ctx context.Context, filePath string) (string, error)
}

// BackendFunc adapts a function to Backend (used by tests).
type BackendFunc func(ctx context.Context, filePath string) (string, error)

func (f BackendFunc) Convert(ctx context.Context, filePath string) (string, error) {
	return f(ctx, filePath)
}

// CLIBackend invokes the converter binary as a subprocess. The engine applies
// its own per-document timeout; the exec context carries a backstop deadline
// so a wedged process cannot hang an attempt forever.
type CLIBackend struct {
	bin     string
	args    []string
	timeout time.Duration
}

func NewCLIBackend(bin string, mode entity.Mode, timeout time.Duration) *CLIBackend {
	return &CLIBackend{
		bin:     bin,
		args:    modeArgs(mode),
		timeout: timeout,
	}
}

// modeArgs maps a conversion mode onto the engine's pipeline flags.
// fast: no OCR, no table structure. balanced: no OCR, fast table structure.
// accurate: OCR plus accurate table structure with cell matching.
func modeArgs(mode entity.Mode) []string {
	switch mode {
	case entity.ModeFast:
		return []string{"--no-ocr", "--table-mode", "off"}
	case entity.ModeAccurate:
		return []string{"--ocr", "--table-mode", "accurate", "--table-cell-matching"}
	default:
		return []string{"--no-ocr", "--table-mode", "fast"}
	}
}

func (b *CLIBackend) Convert(ctx context.Context, filePath string) (string, error) {
	outDir, err := os.MkdirTemp("", "convert-*")
	if err != nil {
		return "", fmt.Errorf("converter temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	// backstop: engine timeout plus grace for startup and model load
	ctx, cancel := context.WithTimeout(ctx, b.timeout+30*time.Second)
	defer cancel()

	args := []string{
		filePath,
		"--to", "md",
		"--output", outDir,
		"--document-timeout", strconv.Itoa(int(b.timeout.Seconds())),
	}
	args = append(args, b.args...)

	cmd := exec.CommandContext(ctx, b.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("converter: %w: %s", err, lastLine(&stderr))
	}

	stem := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	data, err := os.ReadFile(filepath.Join(outDir, stem+".md"))
	if err != nil {
		return "", fmt.Errorf("converter wrote no output: %w", err)
	}
	return string(data), nil
}

func lastLine(buf *bytes.Buffer) string {
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
