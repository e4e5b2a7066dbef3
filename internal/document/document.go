// Package document extracts plain text from uploaded requirement documents.
package document

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// AllowedExtensions lists the accepted file extensions, without the dot.
var AllowedExtensions = []string{"docx", "doc", "txt", "md"}

var (
	// ErrUnsupportedType is returned for extensions outside AllowedExtensions.
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrInvalidDocument is returned when a file cannot be read as its type.
	ErrInvalidDocument = errors.New("invalid document")
)

const documentPart = "word/document.xml"

// maxPartSize caps the decompressed size of the document part.
var maxPartSize int64 = 32 << 20

// Allowed reports whether filename has an accepted extension.
func Allowed(filename string) bool {
	ext := extension(filename)
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func extension(filename string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// ExtractText returns the text of the document at path. Text and markdown
// files are read as UTF-8. Word files yield one line per paragraph.
func ExtractText(path string) (string, error) {
	switch extension(path) {
	case "txt", "md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidDocument, filepath.Base(path))
		}
		return string(data), nil
	case "docx", "doc":
		return extractWord(path)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Base(path))
	}
}

func extractWord(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if extension(path) == "doc" {
			return "", fmt.Errorf("%w: %s is a legacy Word file, save it as .docx", ErrInvalidDocument, filepath.Base(path))
		}
		return "", fmt.Errorf("%w: opening %s: %v", ErrInvalidDocument, filepath.Base(path), err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != documentPart {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		defer rc.Close()

		lr := &io.LimitedReader{R: rc, N: maxPartSize + 1}
		text, err := paragraphs(lr)
		if lr.N <= 0 {
			return "", fmt.Errorf("%w: %s in %s exceeds %d bytes",
				ErrInvalidDocument, documentPart, filepath.Base(path), maxPartSize)
		}
		return text, err
	}
	return "", fmt.Errorf("%w: %s has no %s", ErrInvalidDocument, filepath.Base(path), documentPart)
}

// paragraphs walks WordprocessingML and writes each w:p as one line.
func paragraphs(r io.Reader) (string, error) {
	const ns = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"

	dec := xml.NewDecoder(r)
	var (
		out    strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != ns {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				out.WriteByte('\t')
			case "br", "cr":
				out.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Space != ns {
				continue
			}
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				out.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				out.Write(t)
			}
		}
	}
	return out.String(), nil
}
