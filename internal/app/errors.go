package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-git/go-git/v5/plumbing"

	"folio/api/internal/draft"
	"folio/api/internal/export"
	"folio/api/internal/gitrepo"
	"folio/api/internal/reference"
	"folio/api/internal/snapshot"
	"folio/api/internal/style"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	var unresolved *draft.UnresolvedReferenceError
	if errors.As(err, &unresolved) {
		return http.StatusUnprocessableEntity, "UNRESOLVED_REFERENCE", "No metadata for " + unresolved.Key, map[string]string{"key": unresolved.Key}
	}
	switch {
	case errors.Is(err, draft.ErrAnchorNotFound):
		return http.StatusNotFound, "ANCHOR_NOT_FOUND", "Anchor text not found in draft", nil
	case errors.Is(err, draft.ErrInvalidKey):
		return http.StatusBadRequest, "INVALID_KEY", err.Error(), nil
	case errors.Is(err, style.ErrInvalidStyle):
		return http.StatusBadRequest, "INVALID_STYLE", err.Error(), map[string]any{"styles": styleNames()}
	case errors.Is(err, reference.ErrMissingIdentifier):
		return http.StatusBadRequest, "MISSING_IDENTIFIER", "Record needs a pmid, zotero_key or doi", nil
	case errors.Is(err, reference.ErrUnknownSource):
		return http.StatusBadRequest, "INVALID_SOURCE", err.Error(), nil
	case errors.Is(err, gitrepo.ErrInvalidName):
		return http.StatusBadRequest, "INVALID_NAME", err.Error(), nil
	case errors.Is(err, gitrepo.ErrDraftExists):
		return http.StatusConflict, "DRAFT_EXISTS", err.Error(), nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", err.Error(), nil
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil
	case errors.Is(err, reference.ErrNotFound),
		errors.Is(err, gitrepo.ErrDraftNotFound),
		errors.Is(err, snapshot.ErrNotFound),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, plumbing.ErrObjectNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

func styleNames() []string {
	all := style.All()
	names := make([]string, len(all))
	for i, st := range all {
		names[i] = st.String()
	}
	return names
}
