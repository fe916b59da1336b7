package services

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/idpflow/internal/apperr"
)

var disableConfigDir sync.Once

// inspectPDF validates the PDF in relaxed mode and returns its page count.
// Validation failures are reported as ErrInvalidDocument.
func inspectPDF(r io.Reader, maxBytes int64) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return 0, apperr.Transient("read pdf", err)
	}
	if int64(len(data)) > maxBytes {
		return 0, fmt.Errorf("%w: pdf larger than %d bytes", apperr.ErrInvalidDocument, maxBytes)
	}

	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed

	rs := bytes.NewReader(data)
	if err := api.Validate(rs, cfg); err != nil {
		return 0, fmt.Errorf("%w: pdf failed validation: %v", apperr.ErrInvalidDocument, err)
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to rewind pdf: %w", err)
	}
	pageCount, err := api.PageCount(rs, cfg)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count pages: %v", apperr.ErrInvalidDocument, err)
	}
	return pageCount, nil
}
