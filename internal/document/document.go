package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Document is a read-only handle to one input file of a batch
type Document struct {
	Path        string `json:"path"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

// contentTypes maps the accepted extensions to the MIME type handed to scanners
var contentTypes = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"heic": "image/heic",
	"heif": "image/heif",
}

// New builds a Document for path, resolving its content type from the extension
func New(path string) Document {
	ext := NormalizeExt(filepath.Ext(path))
	contentType, ok := contentTypes[ext]
	if !ok {
		contentType = "application/octet-stream"
	}
	return Document{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: contentType,
	}
}

// IsPDF reports whether the document has a PDF text layer to read
func (d Document) IsPDF() bool {
	return d.ContentType == "application/pdf"
}

// Stem returns the file name without its extension
func (d Document) Stem() string {
	return strings.TrimSuffix(d.Name, filepath.Ext(d.Name))
}

// Read loads the document bytes
func (d Document) Read() ([]byte, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	return data, nil
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Supported reports whether a file name has an accepted extension
func Supported(name string) bool {
	_, ok := contentTypes[NormalizeExt(filepath.Ext(name))]
	return ok
}

// Discover lists the supported files directly inside dir, sorted by name so
// that batch order is stable between runs over the same directory.
func Discover(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing input directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if !Supported(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	docs := make([]Document, 0, len(names))
	for _, name := range names {
		docs = append(docs, New(filepath.Join(dir, name)))
	}
	return docs, nil
}
