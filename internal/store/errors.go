package store

import (
	"errors"
	"strings"

	"github.com/agency-portal/chat-pipeline/internal/apperrors"
)

// translateSQLiteErr maps a raw database/sql or modernc.org/sqlite error
// into the pipeline's error taxonomy so callers can branch with errors.Is
// instead of matching driver-specific error strings.
func translateSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperrors.ErrValidation) || errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	msg := err.Error()
	if strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_LOCKED") {
		return apperrors.ErrTransientStore
	}
	return err
}
