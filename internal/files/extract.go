package files

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dslipak/pdf"

	"multichat/internal/logging"

	"go.uber.org/zap"
)

// extractText pulls plain text out of an upload so prompts never have
// to re-parse the blob. Unsupported formats return empty text, not an
// error: the file is still stored, it just contributes no context.
func extractText(name, contentType string, data []byte) (string, error) {
	switch {
	case contentType == "application/pdf" || strings.HasSuffix(strings.ToLower(name), ".pdf"):
		return extractPDF(data)
	case strings.HasPrefix(contentType, "text/"),
		contentType == "application/json",
		contentType == "application/xml":
		return string(data), nil
	default:
		return "", nil
	}
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}

	var buf strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Skip unreadable pages, keep the rest
			logging.L().Warn("failed to extract PDF page", zap.Int("page", i), zap.Error(err))
			continue
		}
		buf.WriteString(text)
		buf.WriteString("\n")
	}
	return strings.TrimSpace(buf.String()), nil
}
