package document

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"askhc/src/core/rag"
	"askhc/src/infrastructure/log"
)

const (
	FormatPDF      = "pdf"
	FormatText     = "txt"
	FormatMarkdown = "md"

	// minPageText is the amount of text below which a PDF page is treated
	// as scanned or empty.
	minPageText = 10
)

var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrInvalidFilename     = errors.New("invalid filename")
	ErrDocumentNotFound    = errors.New("document not found")
)

var formats = map[string]string{
	".pdf": FormatPDF,
	".txt": FormatText,
	".md":  FormatMarkdown,
}

// SupportedExtensions returns the accepted file extensions, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(formats))
	for ext := range formats {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extension returns the lower-cased extension of name.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// IsSupported reports whether name has a supported extension.
func IsSupported(name string) bool {
	_, ok := formats[Extension(name)]
	return ok
}

func unsupported(name string) error {
	return fmt.Errorf("%w: %s. Supported: %s",
		ErrUnsupportedFileType, Extension(name), strings.Join(SupportedExtensions(), ", "))
}

// SanitizeFilename strips any directory component from a client supplied name.
func SanitizeFilename(name string) (string, error) {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case "", ".", "..", "/":
		return "", ErrInvalidFilename
	}
	return name, nil
}

// Load parses a file into pages according to its extension.
func Load(name string, data []byte) (*rag.Document, error) {
	format, ok := formats[Extension(name)]
	if !ok {
		return nil, unsupported(name)
	}

	doc := &rag.Document{Source: name, Format: format}
	switch format {
	case FormatPDF:
		pages, err := loadPDF(name, data)
		if err != nil {
			return nil, err
		}
		doc.Pages = pages
	default:
		doc.Pages = []rag.Page{{Number: 0, Text: string(data)}}
	}
	return doc, nil
}

func loadPDF(name string, data []byte) (pages []rag.Page, err error) {
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to parse pdf %s: %v", name, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf %s: %w", name, err)
	}

	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d of %s: %w", i, name, err)
		}

		if len(strings.TrimSpace(text)) < minPageText {
			log.Info("skipping pdf page without extractable text", "file", name, "page", i)
			continue
		}
		pages = append(pages, rag.Page{Number: i, Text: text})
	}

	return pages, nil
}
