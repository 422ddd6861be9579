// Package loader turns files on disk into raw inputs for the normalizer
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/ppiankov/riskpilot/internal/model"
)

// MaxFileBytes caps the size of a single input file
const MaxFileBytes = 20 << 20

// ErrUnsupported marks files whose format cannot be analyzed
var ErrUnsupported = errors.New("unsupported file type")

// Document is a loaded file ready for normalization
type Document struct {
	Filename    string
	ContentType model.ContentType
	MIME        string
	Text        string
}

// Load reads path. An empty declared type is detected from the extension,
// then from the file's content.
func Load(path string, declared model.ContentType) (Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Document{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Document{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxFileBytes {
		return Document{}, fmt.Errorf("%s: %d bytes exceeds the %d byte limit", path, info.Size(), MaxFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("read %s: %w", path, err)
	}
	return decode(filepath.Base(path), data, declared)
}

// decode extracts the text of data named name
func decode(name string, data []byte, declared model.ContentType) (Document, error) {
	mt := mimetype.Detect(data)

	ct := declared
	if ct == "" {
		var err error
		if ct, err = detect(name, mt); err != nil {
			return Document{}, err
		}
	}

	doc := Document{Filename: name, ContentType: ct, MIME: mt.String()}
	var err error
	if ct == model.ContentPDF {
		doc.Text, err = pdfText(name, data)
	} else {
		doc.Text, err = plainText(name, data)
	}
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func detect(name string, mt *mimetype.MIME) (model.ContentType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".tsv":
		return model.ContentCSV, nil
	case ".pdf":
		return model.ContentPDF, nil
	case ".txt", ".md", ".markdown", ".html", ".htm", ".log":
		return model.ContentText, nil
	}

	switch {
	case mt.Is("application/pdf"):
		return model.ContentPDF, nil
	case mt.Is("text/csv"), mt.Is("text/tab-separated-values"):
		return model.ContentCSV, nil
	}
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "text/") {
			return model.ContentText, nil
		}
	}
	return "", fmt.Errorf("%s (%s): %w", name, mt.String(), ErrUnsupported)
}

func plainText(name string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%s is not valid UTF-8: %w", name, ErrUnsupported)
	}
	return string(data), nil
}

// pdfText extracts the plain text layer. The pdf library panics on some
// malformed files, so panics are turned into errors.
func pdfText(name string, data []byte) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract pdf %s: %v", name, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf %s: %w", name, err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf %s: %w", name, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("extract pdf %s: %w", name, err)
	}
	return buf.String(), nil
}
