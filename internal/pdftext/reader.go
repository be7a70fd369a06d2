package pdftext

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// ErrUnreadable means neither the text layer nor the tables of a document could be read
var ErrUnreadable = errors.New("document unreadable")

// Source reads the text layer and the tables of a PDF
type Source interface {
	Text(ctx context.Context, path string) (string, error)
	Tables(ctx context.Context, path string) ([]Table, error)
}

// Reader reads PDFs with the pure Go PDF library. When that fails it can
// rewrite the file with pdfcpu and retry, and for plain text fall back to
// the pdftotext tool.
type Reader struct {
	Repair            bool
	FallbackPdftotext bool
}

// Text returns the concatenated text layer of every page
func (r *Reader) Text(ctx context.Context, path string) (string, error) {
	var text string
	err := r.withPDF(path, func(reader *pdflib.Reader) error {
		var err error
		text, err = pageTexts(ctx, reader)
		return err
	})
	if err != nil && r.FallbackPdftotext && ctx.Err() == nil {
		var fallbackErr error
		text, fallbackErr = extractPdftotext(ctx, path)
		if fallbackErr == nil {
			slog.Warn("Read text layer with pdftotext", "file", filepath.Base(path), "error", err)
			return text, nil
		}
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	if strings.TrimSpace(text) == "" {
		if pages, err := PageCount(path); err == nil {
			slog.Info("PDF has no text layer", "file", filepath.Base(path), "pages", pages)
		}
	}
	return text, nil
}

// Tables returns the tables detected on every page, in page order
func (r *Reader) Tables(ctx context.Context, path string) ([]Table, error) {
	var tables []Table
	err := r.withPDF(path, func(reader *pdflib.Reader) error {
		for i := 1; i <= reader.NumPage(); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			page := reader.Page(i)
			if page.V.IsNull() {
				continue
			}
			rows, err := page.GetTextByRow()
			if err != nil {
				return fmt.Errorf("reading rows of page %d: %w", i, err)
			}
			tables = append(tables, DetectTables(BuildLines(glyphsFromRows(rows)))...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return tables, nil
}

// withPDF opens path and runs fn, retrying once on a pdfcpu-repaired copy
func (r *Reader) withPDF(path string, fn func(*pdflib.Reader) error) error {
	err := readPDF(path, fn)
	if err == nil || !r.Repair {
		return err
	}

	repaired, cleanup, repairErr := repair(path)
	if repairErr != nil {
		return errors.Join(err, repairErr)
	}
	defer cleanup()

	if retryErr := readPDF(repaired, fn); retryErr != nil {
		return errors.Join(err, retryErr)
	}
	slog.Info("Read PDF after repairing it", "file", filepath.Base(path))
	return nil
}

// readPDF opens path and runs fn. The PDF library panics on some malformed
// streams; those panics are returned as errors.
func readPDF(path string, fn func(*pdflib.Reader) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("pdf library panic: %v", rec)
		}
	}()

	f, reader, err := pdflib.Open(path)
	if err != nil {
		return fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	return fn(reader)
}

func pageTexts(ctx context.Context, reader *pdflib.Reader) (string, error) {
	var buf strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading text of page %d: %w", i, err)
		}
		buf.WriteString(text)
	}
	return buf.String(), nil
}

func glyphsFromRows(rows pdflib.Rows) []Glyph {
	var glyphs []Glyph
	for _, row := range rows {
		for _, t := range row.Content {
			glyphs = append(glyphs, Glyph{X: t.X, Y: t.Y, W: t.W, FontSize: t.FontSize, S: t.S})
		}
	}
	return glyphs
}

// repair rewrites path with relaxed validation into a temporary file
func repair(path string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "invoice-repair-*")
	if err != nil {
		return "", nil, fmt.Errorf("creating temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	out := filepath.Join(dir, filepath.Base(path))
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.OptimizeFile(path, out, conf); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("repairing pdf: %w", err)
	}
	return out, cleanup, nil
}

// PageCount validates the document structure and returns its page count
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return n, nil
}

func extractPdftotext(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}
