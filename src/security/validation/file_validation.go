package validation

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// isBinaryContent checks a buffer for binary control characters (like
// null bytes) which indicate the payload is not a text-based CSV.
func isBinaryContent(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return true
	}
	if !utf8.Valid(buf) {
		return true
	}
	return false
}

// ValidateImportPayload inspects a CSV payload before it enters the
// durable import queue: non-empty, under the size cap, text-based, and
// with a text-like detected content type. The column layout itself is
// the backend's concern; the file is uploaded opaquely.
func ValidateImportPayload(payload []byte, maxSizeBytes int64) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: file is empty", ErrValidationFailed)
	}
	if maxSizeBytes > 0 && int64(len(payload)) > maxSizeBytes {
		return fmt.Errorf("%w: file too large, max %d MB", ErrValidationFailed, maxSizeBytes/(1024*1024))
	}

	probe := payload
	if len(probe) > 1024 {
		probe = probe[:1024]
	}
	if isBinaryContent(probe) {
		return fmt.Errorf("%w: file appears to be binary, not text/CSV", ErrValidationFailed)
	}

	detected := http.DetectContentType(probe)
	detected = strings.ToLower(strings.Split(detected, ";")[0])
	allowed := map[string]bool{
		"text/plain": true,
		"text/csv":   true,
	}
	if !allowed[detected] {
		return fmt.Errorf("%w: detected content type '%s' is not allowed for CSV import", ErrValidationFailed, detected)
	}
	return nil
}
