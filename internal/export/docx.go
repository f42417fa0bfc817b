package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// exportDOCX typesets interchange markdown with pandoc; citeproc resolves
// the [@key] markers against the CSL-JSON bibliography.
func exportDOCX(ctx context.Context, pandocPath, markdown string, bibliography []byte, title string) (*Result, error) {
	if _, err := exec.LookPath(pandocPath); err != nil {
		return nil, fmt.Errorf("%w: %s not installed", ErrDOCXDependencyMissing, pandocPath)
	}

	dir, err := os.MkdirTemp("", "folio-docx-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	bibPath := filepath.Join(dir, "references.json")
	if err := os.WriteFile(bibPath, bibliography, 0o600); err != nil {
		return nil, fmt.Errorf("write bibliography: %w", err)
	}

	cmd := exec.CommandContext(ctx, pandocPath, docxArgs(bibPath)...)
	cmd.Stdin = strings.NewReader(markdown)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc failed: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("pandoc execution failed: %w", err)
	}

	return &Result{
		Data:     output,
		Filename: sanitizeFilename(title) + ".docx",
		MimeType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	}, nil
}

func docxArgs(bibPath string) []string {
	return []string{
		"-f", "markdown",
		"-t", "docx",
		"--standalone",
		"--citeproc",
		"--bibliography", bibPath,
		"--metadata", "reference-section-title=References",
		"-o", "-",
	}
}
