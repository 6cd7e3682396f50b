package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/prizzzz/leaseIQ/config"
	"github.com/prizzzz/leaseIQ/pkg/logger"
)

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", filepath.Base(name), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// TesseractOCR rasterizes the PDF with pdftoppm and reads each page with tesseract.
type TesseractOCR struct {
	config *config.TesseractConfig
	run    commandRunner
}

func NewTesseractOCR(cfg *config.TesseractConfig) *TesseractOCR {
	return &TesseractOCR{config: cfg, run: execRunner}
}

func (t *TesseractOCR) Name() string { return "tesseract" }

// ExtractText OCRs every page. Pages that fail or come back empty are skipped.
func (t *TesseractOCR) ExtractText(ctx context.Context, doc Document) (string, error) {
	dir, err := os.MkdirTemp("", "leaseiq-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "contract.pdf")
	if err := os.WriteFile(pdfPath, doc.Data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write pdf: %w", err)
	}

	_, err = t.run(ctx, t.config.PdftoppmPath, "-png", "-r", strconv.Itoa(t.config.DPI), pdfPath, filepath.Join(dir, "page"))
	if err != nil {
		return "", fmt.Errorf("failed to convert PDF to images: %w", err)
	}

	pages, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return "", err
	}
	sort.Strings(pages)

	var parts []string
	for i, page := range pages {
		out, err := t.run(ctx, t.config.TesseractPath, page, "stdout",
			"--psm", "6", "--oem", "3", "-c", "preserve_interword_spaces=1")
		if err != nil {
			logger.Warn(ctx, "tesseract failed on page", "page", i+1, "error", err)
			continue
		}
		if strings.TrimSpace(string(out)) == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("--- PAGE %d ---\n%s", i+1, out))
	}

	return PostProcess(strings.Join(parts, "\n\n"))
}
