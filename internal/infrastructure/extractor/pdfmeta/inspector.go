package pdfmeta

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
)

type Inspector struct{}

func NewInspector() *Inspector {
	return &Inspector{}
}

// PageCount returns the number of pages of a PDF document and 0 for any other format.
func (i *Inspector) PageCount(file domain.File) (pages int, err error) {
	if !isPDF(file) {
		return 0, nil
	}
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			pages = 0
			err = domain.WrapError(domain.ErrValidation, "inspect pdf", fmt.Errorf("%s: %v", file.Name, r))
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(file.Data), int64(len(file.Data)))
	if err != nil {
		return 0, domain.WrapError(domain.ErrValidation, "inspect pdf", fmt.Errorf("%s: %w", file.Name, err))
	}
	return reader.NumPage(), nil
}

func isPDF(file domain.File) bool {
	if strings.EqualFold(file.ContentType, "application/pdf") {
		return true
	}
	if strings.EqualFold(filepath.Ext(file.Name), ".pdf") {
		return true
	}
	return bytes.HasPrefix(file.Data, []byte("%PDF-"))
}
