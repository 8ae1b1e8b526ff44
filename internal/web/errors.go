package web

import (
	"errors"
	"net/http"

	"misl/internal/model"
	"misl/internal/mutate"
	"misl/internal/store"
)

type apiError struct {
	code    string
	message string
	status  int
}

var (
	errInvalidAPI        = apiError{"e01", "Invalid API Request", http.StatusBadRequest}
	errInvalidBody       = apiError{"e03", "Invalid Request Body", http.StatusBadRequest}
	errInvalidCollection = apiError{"e04", "Invalid Collection", http.StatusBadRequest}
	errInvalidItem       = apiError{"e05", "Invalid Item Request", http.StatusBadRequest}
	errInvalidAccessCode = apiError{"e07", "Invalid Access Code", http.StatusUnauthorized}
	errWriteDenied       = apiError{"e08", "List is not writable", http.StatusInternalServerError}
	errStorage           = apiError{"e10", "Storage Unavailable", http.StatusInternalServerError}
	errDeleteList        = apiError{"e96", "Deleting lists is not possible", http.StatusInternalServerError}
)

// Reasons carried in the error envelope for positional conflicts.
const (
	ReasonItemNotFound     = "ItemNotFound"
	ReasonItemDataMismatch = "ItemDataMismatch"
	ReasonInvalidListType  = "InvalidListType"
)

type bodyError struct{ err error }

func (e bodyError) Error() string { return "invalid body: " + e.err.Error() }
func (e bodyError) Unwrap() error { return e.err }

type indexError struct{ raw string }

func (e indexError) Error() string { return "invalid index: " + e.raw }

func classify(err error) (apiError, string) {
	var ve mutate.ValidationError
	var be bodyError
	var ie indexError
	switch {
	case errors.Is(err, mutate.ErrItemNotFound):
		return errInvalidItem, ReasonItemNotFound
	case errors.Is(err, mutate.ErrItemDataMismatch):
		return errInvalidItem, ReasonItemDataMismatch
	case errors.Is(err, mutate.ErrInvalidListType):
		return errInvalidItem, ReasonInvalidListType
	case errors.As(err, &ve):
		if ve.Field == "categories" || ve.Field == "units" {
			return errInvalidCollection, ve.Reason
		}
		return errInvalidBody, ve.Reason
	case errors.As(err, &be):
		return errInvalidBody, "InvalidBody"
	case errors.As(err, &ie):
		return errInvalidAPI, "InvalidIndex"
	case errors.Is(err, store.ErrInvalidAccessCode), errors.Is(err, store.ErrNotFound):
		return errInvalidAccessCode, "InvalidAccessCode"
	case errors.Is(err, store.ErrWriteDenied):
		return errWriteDenied, "WriteDenied"
	case errors.Is(err, store.ErrDeleteNotSupported):
		return errDeleteList, "NYI_Delete_List"
	default:
		return errStorage, "StorageUnavailable"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	def, reason := classify(err)
	body := model.ErrorBody{
		Type:    "error",
		Code:    def.code,
		Reason:  reason,
		Message: def.message,
	}
	if def.status < http.StatusInternalServerError {
		body.Details = err.Error()
		s.log.Debug("request rejected", "path", r.URL.Path, "code", def.code, "reason", reason, "err", err)
	} else {
		s.log.Error("request failed", "path", r.URL.Path, "code", def.code, "err", err, "request_id", w.Header().Get(headerRequestID))
	}
	writeJSON(w, def.status, body)
}
