// Package document identifies downloaded CV files.
package document

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

type Kind string

const (
	KindPDF     Kind = "pdf"
	KindDOCX    Kind = "docx"
	KindUnknown Kind = "unknown"
)

// Info describes a document. Pages is only set for PDFs.
type Info struct {
	Kind  Kind
	Size  int
	Pages int
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

// ErrEmpty is returned for zero-length input.
var ErrEmpty = errors.New("document is empty")

// Inspect sniffs data by its magic bytes. A PDF is opened to count its
// pages and a corrupt one is an error; anything unrecognised is KindUnknown
// without error.
func Inspect(data []byte) (Info, error) {
	info := Info{Kind: KindUnknown, Size: len(data)}
	switch {
	case len(data) == 0:
		return info, ErrEmpty
	case bytes.HasPrefix(data, pdfMagic):
		info.Kind = KindPDF
		pages, err := pdfPages(data)
		if err != nil {
			return info, fmt.Errorf("reading pdf: %w", err)
		}
		info.Pages = pages
	case bytes.HasPrefix(data, zipMagic) && isDOCX(data):
		info.Kind = KindDOCX
	}
	return info, nil
}

// pdfPages recovers from panics in the PDF parser, which it raises on some
// malformed object streams.
func pdfPages(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return r.NumPage(), nil
}

func isDOCX(data []byte) bool {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			return true
		}
	}
	return false
}

// Extension returns the file extension for k, including the dot.
func (k Kind) Extension() string {
	switch k {
	case KindPDF:
		return ".pdf"
	case KindDOCX:
		return ".docx"
	}
	return ""
}
