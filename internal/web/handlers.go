package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"misl/internal/model"
	"misl/internal/mutate"

	"github.com/gorilla/mux"
)

var errEmptyBody = errors.New("empty body")

type listHandler func(w http.ResponseWriter, r *http.Request, code string, list *model.List)

// withList resolves the access code header and loads a fresh copy of the list.
func (s *Server) withList(fn listHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := r.Header.Get(model.HeaderAccessCode)
		list, err := s.store.Load(code)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		fn(w, r, code, list)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return bodyError{errEmptyBody}
		}
		return bodyError{err}
	}
	return nil
}

func pathTarget(r *http.Request) (model.ListType, int, error) {
	vars := mux.Vars(r)
	listType := model.ListType(vars["listType"])
	raw, ok := vars["index"]
	if !ok {
		return listType, -1, nil
	}
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		return listType, -1, indexError{raw: raw}
	}
	return listType, index, nil
}

// commit saves the list once and answers 204, or maps the save failure.
func (s *Server) commit(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	if err := s.store.Save(code, list); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidAPI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, errInvalidAPI.status, model.ErrorBody{
		Type:    "error",
		Code:    errInvalidAPI.code,
		Reason:  "InvalidAPI",
		Message: errInvalidAPI.message,
		Details: r.Method + " " + r.URL.Path,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.Info{Name: AppName, Version: Version})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleCreateList(w http.ResponseWriter, r *http.Request) {
	var title string
	if err := decodeBody(r, &title); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, r, err)
		return
	}
	code, err := s.store.Create(title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("list created", "title", title)
	writeJSON(w, http.StatusOK, model.CreateListResponse{ListCode: code})
}

func (s *Server) handleGetList(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleDeleteList(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	s.writeError(w, r, s.store.Delete(code))
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	listType, _, _ := pathTarget(r)
	var e model.Entry
	if err := decodeBody(r, &e); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := mutate.Add(list, listType, e, s.cfg.Now()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.commit(w, r, code, list)
}

func (s *Server) handleToggleEntry(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	listType, index, err := pathTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var expected model.Entry
	if err := decodeBody(r, &expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := mutate.Toggle(list, listType, index, expected, s.cfg.Now())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.Recovered {
		s.log.Debug("toggle recovered by scan", "requested", index, "type", listType, "from", res.From)
	}
	s.commit(w, r, code, list)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	listType, index, err := pathTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var expected model.Entry
	if err := decodeBody(r, &expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := mutate.Delete(list, listType, index, expected); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.commit(w, r, code, list)
}

func (s *Server) handleEditEntry(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	listType, index, err := pathTarget(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req model.EditRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := mutate.Edit(list, listType, index, req.Old, req.New, s.cfg.Now()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.commit(w, r, code, list)
}

func (s *Server) handleReplaceCategories(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	var cats []model.Category
	if err := decodeBody(r, &cats); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := mutate.ReplaceCategories(list, cats); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.commit(w, r, code, list)
}

func (s *Server) handleReplaceUnits(w http.ResponseWriter, r *http.Request, code string, list *model.List) {
	var units []model.Unit
	if err := decodeBody(r, &units); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := mutate.ReplaceUnits(list, units); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.commit(w, r, code, list)
}
