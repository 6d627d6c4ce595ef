package parser

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Extractor converts a PDF into a positional token document.
type Extractor interface {
	Extract(ctx context.Context, pdfPath string) (*Document, error)
}

// PDF2JSON extracts tokens using the pdf2json CLI tool.
type PDF2JSON struct {
	binPath string
	outDir  string
}

// NewPDF2JSON creates a PDF2JSON extractor. If binPath is empty, "pdf2json" is
// used. Output JSON is written to outDir, or next to the PDF when empty.
func NewPDF2JSON(binPath, outDir string) *PDF2JSON {
	if binPath == "" {
		binPath = "pdf2json"
	}
	return &PDF2JSON{binPath: binPath, outDir: outDir}
}

// Extract runs pdf2json on the given PDF and decodes its output.
func (p *PDF2JSON) Extract(ctx context.Context, pdfPath string) (*Document, error) {
	outDir := p.outDir
	if outDir == "" {
		outDir = filepath.Dir(pdfPath)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "parser: create output dir %s", outDir)
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-f", pdfPath, "-o", outDir, "-s")

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "parser: pdf2json failed for %s: %s", pdfPath, stderr.String())
	}

	return DecodeFile(p.outputPath(outDir, pdfPath))
}

func (p *PDF2JSON) outputPath(outDir, pdfPath string) string {
	base := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	return filepath.Join(outDir, base+".json")
}

// DecodeFile decodes a pdf2json output file from disk.
func DecodeFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "parser: open token document %s", path)
	}
	defer f.Close() //nolint:errcheck

	doc, err := DecodePDF2JSON(f)
	if err != nil {
		return nil, eris.Wrapf(err, "parser: decode %s", path)
	}
	return doc, nil
}
