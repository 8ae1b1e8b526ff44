package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"misl/internal/model"
	"misl/internal/store"
)

const testCode = "abcd1234"

func newTestServer(t *testing.T, seed *model.List) (*Server, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	srv, err := NewServer(ServerConfig{
		DataDir: dir,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if seed != nil {
		b, err := json.Marshal(seed)
		if err != nil {
			t.Fatalf("marshal seed: %v", err)
		}
		if err := os.WriteFile(srv.store.Path(testCode), b, 0o644); err != nil {
			t.Fatalf("write seed: %v", err)
		}
	}
	return srv, srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path, code string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	if code != "" {
		req.Header.Set(model.HeaderAccessCode, code)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorBody {
	t.Helper()
	var body model.ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body
}

func loadList(t *testing.T, srv *Server) *model.List {
	t.Helper()
	list, err := srv.store.Load(testCode)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return list
}

func groceries() *model.List {
	return &model.List{
		Active: []model.Entry{
			{Category: "dairy", Name: "milk", Number: 1, Unit: "l"},
			{Category: "dairy", Name: "yoghurt", Number: 2},
			{Category: "fruit", Name: "apple", Number: 6},
		},
		Inactive: []model.Entry{
			{Category: "bakery", Name: "bread", Number: 1},
		},
	}
}

func TestInfoAndHealth(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info status %d", rec.Code)
	}
	var info model.Info
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.Name != AppName || info.Version != Version {
		t.Fatalf("unexpected info: %+v", info)
	}
	if rec := do(t, h, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("health status %d", rec.Code)
	}
}

func TestGetList_AccessCode(t *testing.T) {
	_, h := newTestServer(t, groceries())

	for _, code := range []string{"", "no", "unknown99"} {
		rec := do(t, h, http.MethodGet, "/list", code, nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("code %q: expected 401, got %d", code, rec.Code)
		}
		if body := decodeError(t, rec); body.Code != "e07" {
			t.Fatalf("code %q: expected e07, got %+v", code, body)
		}
	}

	rec := do(t, h, http.MethodGet, "/list", "ABCD1234", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var list model.List
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Active) != 3 || len(list.Inactive) != 1 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAddEntry(t *testing.T) {
	srv, h := newTestServer(t, groceries())

	rec := do(t, h, http.MethodPut, "/list/inactive", testCode, model.Entry{Category: "a", Name: "tea", Number: 1})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	list := loadList(t, srv)
	if len(list.Inactive) != 2 || list.Inactive[0].Name != "tea" {
		t.Fatalf("expected sorted insert on inactive, got %+v", list.Inactive)
	}

	rec = do(t, h, http.MethodPut, "/list/active", testCode, model.Entry{Name: "nameless"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "e03" || body.Reason != "MissingCategory" {
		t.Fatalf("unexpected error body: %+v", body)
	}

	rec = do(t, h, http.MethodPut, "/list/pantry", testCode, model.Entry{Category: "a", Name: "b"})
	if body := decodeError(t, rec); rec.Code != http.StatusBadRequest || body.Reason != ReasonInvalidListType {
		t.Fatalf("expected InvalidListType, got %d %+v", rec.Code, body)
	}
}

// Clients A and B both observed the same list. A toggles index 0, then B
// toggles index 1 with the tuple it saw. Both entries end up inactive.
func TestToggle_TwoClientScenario(t *testing.T) {
	srv, h := newTestServer(t, groceries())
	observed := groceries()

	rec := do(t, h, http.MethodPost, "/list/active/0", testCode, observed.Active[0])
	if rec.Code != http.StatusNoContent {
		t.Fatalf("A toggle: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, http.MethodPost, "/list/active/1", testCode, observed.Active[1])
	if rec.Code != http.StatusNoContent {
		t.Fatalf("B toggle: %d %s", rec.Code, rec.Body.String())
	}

	list := loadList(t, srv)
	if len(list.Active) != 1 || list.Active[0].Name != "apple" {
		t.Fatalf("unexpected active: %+v", list.Active)
	}
	got := map[string]bool{}
	for _, e := range list.Inactive {
		got[e.Name] = true
	}
	if !got["milk"] || !got["yoghurt"] || !got["bread"] {
		t.Fatalf("unexpected inactive: %+v", list.Inactive)
	}
}

// A and B both hold index 0 for Mehl. A's toggle moves it to inactive; B's
// repeat is recovered from the inactive side and moves it back.
func TestToggle_StaleIndexTogglesBack(t *testing.T) {
	mehl := model.Entry{Category: "Backen", Name: "Mehl", Number: 1, Unit: "kg"}
	srv, h := newTestServer(t, &model.List{Active: []model.Entry{mehl}})

	for _, client := range []string{"A", "B"} {
		rec := do(t, h, http.MethodPost, "/list/active/0", testCode, mehl)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s toggle: %d %s", client, rec.Code, rec.Body.String())
		}
	}

	list := loadList(t, srv)
	if len(list.Active) != 1 || !list.Active[0].Matches(mehl) {
		t.Fatalf("unexpected active: %+v", list.Active)
	}
	if len(list.Inactive) != 0 {
		t.Fatalf("unexpected inactive: %+v", list.Inactive)
	}
}

func TestDelete_NotFoundLeavesFileUntouched(t *testing.T) {
	srv, h := newTestServer(t, groceries())
	before, err := os.ReadFile(srv.store.Path(testCode))
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	rec := do(t, h, http.MethodDelete, "/list/inactive/0", testCode, model.Entry{Category: "x", Name: "ghost", Number: 1})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decodeError(t, rec); body.Code != "e05" || body.Reason != ReasonItemNotFound {
		t.Fatalf("unexpected error body: %+v", body)
	}
	after, err := os.ReadFile(srv.store.Path(testCode))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatalf("file changed on failed delete")
	}

	rec = do(t, h, http.MethodDelete, "/list/inactive/0", testCode, model.Entry{Category: "bakery", Name: "bread", Number: 1})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if list := loadList(t, srv); len(list.Inactive) != 0 {
		t.Fatalf("expected inactive to be empty, got %+v", list.Inactive)
	}
}

func TestEditEntry(t *testing.T) {
	srv, h := newTestServer(t, groceries())
	req := model.EditRequest{
		Old: model.Entry{Category: "fruit", Name: "apple", Number: 6},
		New: model.Entry{Category: "fruit", Name: "apple", Number: 4, Unit: "pcs"},
	}
	rec := do(t, h, http.MethodPut, "/list/active/0", testCode, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	list := loadList(t, srv)
	if e := list.Active[2]; e.Number != 4 || e.Unit != "pcs" || e.Changed == nil {
		t.Fatalf("edit not applied: %+v", e)
	}

	rec = do(t, h, http.MethodPut, "/list/active/x", testCode, req)
	if body := decodeError(t, rec); rec.Code != http.StatusBadRequest || body.Code != "e01" {
		t.Fatalf("expected e01 for bad index, got %d %+v", rec.Code, body)
	}

	rec = do(t, h, http.MethodPut, "/list/active/0", testCode, model.EditRequest{New: req.New})
	if body := decodeError(t, rec); body.Reason != ReasonItemDataMismatch {
		t.Fatalf("expected ItemDataMismatch, got %+v", body)
	}
}

func TestReplaceCategories_RejectsSecondDefault(t *testing.T) {
	seed := groceries()
	seed.Categories = []model.Category{{Name: "dairy", Default: true}}
	srv, h := newTestServer(t, seed)

	rec := do(t, h, http.MethodPut, "/list/categories", testCode, []model.Category{
		{Name: "a", Default: true},
		{Name: "b", Default: true},
	})
	if body := decodeError(t, rec); rec.Code != http.StatusBadRequest || body.Code != "e04" || body.Reason != "MultipleDefaults" {
		t.Fatalf("expected MultipleDefaults, got %d %+v", rec.Code, body)
	}
	if list := loadList(t, srv); len(list.Categories) != 1 || list.Categories[0].Name != "dairy" {
		t.Fatalf("categories changed: %+v", list.Categories)
	}

	rec = do(t, h, http.MethodPut, "/list/units", testCode, []model.Unit{{Name: "kg", Default: true}, {Name: "g"}})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("units: expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if list := loadList(t, srv); len(list.Units) != 2 {
		t.Fatalf("units not replaced: %+v", list.Units)
	}
}

func TestCreateAndDeleteList(t *testing.T) {
	srv, h := newTestServer(t, nil)

	rec := do(t, h, http.MethodPut, "/list", "", "weekly")
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created model.CreateListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if !store.ValidAccessCode(created.ListCode) {
		t.Fatalf("invalid code: %q", created.ListCode)
	}
	list, err := srv.store.Load(created.ListCode)
	if err != nil || list.Meta.Name != "weekly" {
		t.Fatalf("load created list: %+v %v", list, err)
	}

	rec = do(t, h, http.MethodDelete, "/list", created.ListCode, nil)
	if body := decodeError(t, rec); rec.Code != http.StatusInternalServerError || body.Code != "e96" {
		t.Fatalf("expected e96, got %d %+v", rec.Code, body)
	}
}

func TestUnknownRoute(t *testing.T) {
	_, h := newTestServer(t, nil)
	rec := do(t, h, http.MethodGet, "/nope", "", nil)
	if body := decodeError(t, rec); rec.Code != http.StatusBadRequest || body.Code != "e01" {
		t.Fatalf("expected e01, got %d %+v", rec.Code, body)
	}
}
