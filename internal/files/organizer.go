package files

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/zombor/invoice-tracker/internal/document"
)

// InvoiceDataFile is the name of the combined invoice JSON in the output directory
const InvoiceDataFile = "invoice_data.json"

// Dirs names the directories a run writes into
type Dirs struct {
	Output     string
	Duplicates string
	TripSheets string
}

// Organizer stores the documents of a batch in the output directories
type Organizer struct {
	dirs Dirs
	// Invoices, Duplicates and TripSheets switch the copies of each kind
	Invoices   bool
	Duplicates bool
	TripSheets bool
	newName    func() string
}

// NewOrganizer creates the output directories and returns an Organizer that
// copies every kind of document.
func NewOrganizer(dirs Dirs) (*Organizer, error) {
	for _, dir := range []string{dirs.Output, dirs.Duplicates, dirs.TripSheets} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	return &Organizer{
		dirs:       dirs,
		Invoices:   true,
		Duplicates: true,
		TripSheets: true,
		newName:    uuidName,
	}, nil
}

func uuidName() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Invoice copies an accepted invoice into the output directory under a new
// unique name and returns that name.
func (o *Organizer) Invoice(doc document.Document) (string, error) {
	if !o.Invoices {
		return "", nil
	}
	ext := strings.ToLower(filepath.Ext(doc.Name))
	name := o.newName() + ext
	for exists(filepath.Join(o.dirs.Output, name)) {
		name = o.newName() + ext
	}
	if err := copyFile(doc.Path, filepath.Join(o.dirs.Output, name)); err != nil {
		return "", err
	}
	slog.Info("Stored invoice", "file", doc.Name, "stored_as", name)
	return name, nil
}

// Duplicate copies a duplicate invoice into the duplicates directory,
// suffixing _dup1, _dup2 and so on when the name is taken.
func (o *Organizer) Duplicate(doc document.Document) error {
	if !o.Duplicates {
		return nil
	}
	ext := filepath.Ext(doc.Name)
	base := strings.TrimSuffix(doc.Name, ext)

	dst := filepath.Join(o.dirs.Duplicates, doc.Name)
	for n := 1; exists(dst); n++ {
		dst = filepath.Join(o.dirs.Duplicates, fmt.Sprintf("%s_dup%d%s", base, n, ext))
	}
	if err := copyFile(doc.Path, dst); err != nil {
		return err
	}
	slog.Info("Stored duplicate", "file", doc.Name, "stored_as", filepath.Base(dst))
	return nil
}

// TripSheet copies a trip sheet into the trip sheets directory
func (o *Organizer) TripSheet(doc document.Document) error {
	if !o.TripSheets {
		return nil
	}
	dst := filepath.Join(o.dirs.TripSheets, doc.Name)
	if err := copyFile(doc.Path, dst); err != nil {
		return err
	}
	slog.Info("Stored trip sheet", "file", doc.Name, "dir", o.dirs.TripSheets)
	return nil
}

// WriteJSON writes v as indented JSON to name inside the output directory
func (o *Organizer) WriteJSON(name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshaling %s: %w", name, err)
	}
	path := filepath.Join(o.dirs.Output, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

// Path returns the location of name inside the output directory
func (o *Organizer) Path(name string) string {
	return filepath.Join(o.dirs.Output, name)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing file: %w", err)
	}

	if info, err := in.Stat(); err == nil {
		_ = os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	return nil
}
