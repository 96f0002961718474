package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/invoicely/invoicely/internal/handler/dto"
	"github.com/invoicely/invoicely/internal/metrics"
	"github.com/invoicely/invoicely/internal/model"
	"github.com/invoicely/invoicely/internal/service"
	"github.com/invoicely/invoicely/internal/testutil"
)

type apiEnv struct {
	router  http.Handler
	store   *testutil.MemStore
	metrics *metrics.InMemoryRecorder
	owner   *model.User
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := testutil.NewMemStore()
	recorder := metrics.NewInMemory()

	owner := testutil.NewTestUser(t)
	store.SeedUser(owner)

	businessHandler := NewBusinessHandler(service.NewBusinessService(store, nil, nil, recorder, logger), logger)
	userHandler := NewUserHandler(service.NewUserSyncService(store, recorder, logger), logger)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/businesses", func(r chi.Router) {
			r.Post("/", businessHandler.Create)
			r.Get("/", businessHandler.List)
			r.Get("/{id}", businessHandler.Get)
			r.Put("/{id}", businessHandler.Update)
			r.Patch("/{id}", businessHandler.Update)
			r.Delete("/{id}", businessHandler.Delete)
		})
		r.Post("/users/sync", userHandler.Sync)
	})

	return &apiEnv{router: r, store: store, metrics: recorder, owner: owner}
}

func (env *apiEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *apiEnv) createBusiness(t *testing.T, payload map[string]any) dto.BusinessResponse {
	t.Helper()
	if _, ok := payload["user_id"]; !ok {
		payload["user_id"] = env.owner.ID
	}
	raw, _ := json.Marshal(payload)
	rec := env.do(t, http.MethodPost, "/api/v1/businesses", string(raw))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope dto.BusinessEnvelope
	decodeBody(t, rec, &envelope)
	return *envelope.Business
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var response dto.ErrorResponse
	decodeBody(t, rec, &response)
	if response.Success {
		t.Errorf("expected success=false in %s", rec.Body.String())
	}
	return response
}

func TestBusinessHandler_Create(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/businesses",
		`{"name":"Acme","user_id":"`+env.owner.ID+`","email":"billing@acme.com"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var raw map[string]any
	decodeBody(t, rec, &raw)
	if raw["success"] != true {
		t.Errorf("expected success=true, got %v", raw["success"])
	}
	business, ok := raw["business"].(map[string]any)
	if !ok {
		t.Fatalf("missing business object: %v", raw)
	}
	if _, present := business["invoice_count"]; present {
		t.Error("create response must not include invoice_count")
	}
	if business["name"] != "Acme" || business["email"] != "billing@acme.com" {
		t.Errorf("unexpected business: %v", business)
	}
	if business["address"] != nil || business["updated_at"] != nil {
		t.Errorf("absent fields should serialize as null: %v", business)
	}
}

func TestBusinessHandler_CreateRejections(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantError  string
	}{
		{"no_body", "", http.StatusBadRequest, "NO_DATA", "No data provided"},
		{"empty_object", "{}", http.StatusBadRequest, "NO_DATA", "No data provided"},
		{"null_body", "null", http.StatusBadRequest, "NO_DATA", "No data provided"},
		{"malformed", "{", http.StatusBadRequest, "INVALID_JSON", "Invalid request body"},
		{"wrong_type", `{"name": 5}`, http.StatusBadRequest, "INVALID_JSON", "Invalid request body"},
		{
			"unknown_user",
			`{"name":"Acme","user_id":"` + testutil.UniqueUUID() + `"}`,
			http.StatusNotFound, "USER_NOT_FOUND", "User not found. Please log in again.",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/businesses", test.body)
			if rec.Code != test.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", test.wantStatus, rec.Code, rec.Body.String())
			}
			response := decodeError(t, rec)
			if response.Code != test.wantCode || response.Error != test.wantError {
				t.Errorf("unexpected error response: %+v", response)
			}
		})
	}
}

func TestBusinessHandler_CreateValidation(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/businesses", `{"email":"bad","user_id":"nope"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}

	response := decodeError(t, rec)
	want := []string{"Name is required", "Invalid user ID format", "Invalid email format"}
	if strings.Join(response.Errors, "|") != strings.Join(want, "|") {
		t.Errorf("expected errors %v, got %v", want, response.Errors)
	}
}

func TestBusinessHandler_LimitAndConflict(t *testing.T) {
	env := newAPIEnv(t)

	env.createBusiness(t, map[string]any{"name": "Acme", "email": "billing@acme.com"})

	rec := env.do(t, http.MethodPost, "/api/v1/businesses",
		`{"name":"Acme 2","user_id":"`+env.owner.ID+`","email":"billing@acme.com"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if response := decodeError(t, rec); response.Error != "Business with this email already exists" {
		t.Errorf("unexpected error: %q", response.Error)
	}

	env.createBusiness(t, map[string]any{"name": "Globex"})

	rec = env.do(t, http.MethodPost, "/api/v1/businesses", `{"name":"Third","user_id":"`+env.owner.ID+`"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
	response := decodeError(t, rec)
	if !response.LimitReached || response.Error != "Business limit reached" || response.Message != LimitReachedMessage {
		t.Errorf("unexpected limit response: %+v", response)
	}
	if !strings.Contains(response.Message, "maximum limit of 2 businesses") {
		t.Errorf("unexpected message: %q", response.Message)
	}
}

func TestBusinessHandler_InternalError(t *testing.T) {
	env := newAPIEnv(t)
	env.store.FailOn("CountBusinessesByUser", io.ErrUnexpectedEOF)

	rec := env.do(t, http.MethodPost, "/api/v1/businesses", `{"name":"Acme","user_id":"`+env.owner.ID+`"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	response := decodeError(t, rec)
	if response.Error != "Failed to create business" {
		t.Errorf("unexpected error: %q", response.Error)
	}
	if strings.Contains(rec.Body.String(), "unexpected EOF") {
		t.Error("internal cause must not leak to the client")
	}
}

func TestBusinessHandler_List(t *testing.T) {
	env := newAPIEnv(t)
	for i := 0; i < 12; i++ {
		env.store.SeedBusiness(testutil.NewTestBusiness(t, env.owner.ID))
	}

	rec := env.do(t, http.MethodGet, "/api/v1/businesses?user_id="+env.owner.ID+"&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope dto.BusinessListEnvelope
	decodeBody(t, rec, &envelope)

	if !envelope.Success || len(envelope.Businesses) != 5 {
		t.Fatalf("expected 5 businesses, got %d", len(envelope.Businesses))
	}
	want := dto.PaginationResponse{Total: 12, Pages: 1, PerPage: 5, CurrentPage: 1}
	if envelope.Pagination != want {
		t.Errorf("expected pagination %+v, got %+v", want, envelope.Pagination)
	}
	for _, b := range envelope.Businesses {
		if b.InvoiceCount == nil {
			t.Errorf("business %s missing invoice_count", b.ID)
		}
	}

	rec = env.do(t, http.MethodGet, "/api/v1/businesses?user_id="+env.owner.ID+"&page=2&per_page=abc", "")
	decodeBody(t, rec, &envelope)
	want = dto.PaginationResponse{Total: 12, Pages: 2, PerPage: 10, CurrentPage: 2, HasPrev: true}
	if envelope.Pagination != want {
		t.Errorf("expected pagination %+v, got %+v", want, envelope.Pagination)
	}
}

func TestBusinessHandler_ListEmpty(t *testing.T) {
	env := newAPIEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/businesses?user_id="+env.owner.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"businesses":[]`) {
		t.Errorf("expected an empty array, got %s", rec.Body.String())
	}
}

func TestBusinessHandler_ListRejections(t *testing.T) {
	env := newAPIEnv(t)

	tests := []struct {
		name      string
		query     string
		wantError string
	}{
		{"missing_user", "", "user_id is required"},
		{"invalid_user", "?user_id=42", "Invalid user_id format"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/api/v1/businesses"+test.query, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", rec.Code)
			}
			if response := decodeError(t, rec); response.Error != test.wantError {
				t.Errorf("expected %q, got %q", test.wantError, response.Error)
			}
		})
	}
}

func TestBusinessHandler_Get(t *testing.T) {
	env := newAPIEnv(t)
	created := env.createBusiness(t, map[string]any{"name": "Acme"})
	env.store.SeedInvoice(testutil.NewTestInvoice(t, env.owner.ID, created.ID))

	rec := env.do(t, http.MethodGet, "/api/v1/businesses/"+created.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var envelope dto.BusinessEnvelope
	decodeBody(t, rec, &envelope)
	if envelope.Business.InvoiceCount == nil || *envelope.Business.InvoiceCount != 1 {
		t.Errorf("expected invoice_count 1, got %v", envelope.Business.InvoiceCount)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/businesses/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest || decodeError(t, rec).Error != "Invalid business ID format" {
		t.Errorf("invalid id: got %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/businesses/"+testutil.UniqueUUID(), "")
	if rec.Code != http.StatusNotFound || decodeError(t, rec).Error != "Business not found" {
		t.Errorf("missing id: got %d %s", rec.Code, rec.Body.String())
	}
}

func TestBusinessHandler_Update(t *testing.T) {
	env := newAPIEnv(t)
	created := env.createBusiness(t, map[string]any{"name": "Acme", "email": "billing@acme.com", "phone": "555"})
	other := env.createBusiness(t, map[string]any{"name": "Globex", "email": "hello@globex.io"})

	rec := env.do(t, http.MethodPut, "/api/v1/businesses/"+created.ID, `{"address":"1 Main St","phone":null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope dto.BusinessEnvelope
	decodeBody(t, rec, &envelope)
	b := envelope.Business
	if b.Name != "Acme" || b.Email == nil || *b.Email != "billing@acme.com" {
		t.Errorf("absent keys must be kept: %+v", b)
	}
	if b.Address == nil || *b.Address != "1 Main St" || b.Phone != nil {
		t.Errorf("present keys must overwrite: %+v", b)
	}
	if b.UpdatedAt == nil || b.InvoiceCount == nil {
		t.Errorf("expected updated_at and invoice_count: %+v", b)
	}

	tests := []struct {
		name       string
		method     string
		id         string
		body       string
		wantStatus int
		wantError  string
	}{
		{"invalid_id", http.MethodPatch, "abc", `{"name":"x"}`, http.StatusBadRequest, "Invalid business ID format"},
		{"no_data", http.MethodPatch, created.ID, `{}`, http.StatusBadRequest, "No data provided"},
		{"not_found", http.MethodPatch, testutil.UniqueUUID(), `{"name":"x"}`, http.StatusNotFound, "Business not found"},
		{"empty_name", http.MethodPut, created.ID, `{"name":""}`, http.StatusBadRequest, "Validation failed"},
		{
			"duplicate_email", http.MethodPut, other.ID, `{"email":"billing@acme.com"}`,
			http.StatusConflict, "Another business with this email already exists",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := env.do(t, test.method, "/api/v1/businesses/"+test.id, test.body)
			if rec.Code != test.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", test.wantStatus, rec.Code, rec.Body.String())
			}
			if response := decodeError(t, rec); response.Error != test.wantError {
				t.Errorf("expected %q, got %q", test.wantError, response.Error)
			}
		})
	}
}

func TestBusinessHandler_Delete(t *testing.T) {
	env := newAPIEnv(t)
	free := env.createBusiness(t, map[string]any{"name": "Free"})
	billed := env.createBusiness(t, map[string]any{"name": "Billed"})
	for i := 0; i < 3; i++ {
		env.store.SeedInvoice(testutil.NewTestInvoice(t, env.owner.ID, billed.ID))
	}

	rec := env.do(t, http.MethodDelete, "/api/v1/businesses/"+billed.ID, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if response := decodeError(t, rec); response.Error != "Cannot delete business. Business has 3 associated invoices." {
		t.Errorf("unexpected error: %q", response.Error)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/businesses/"+free.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var response dto.MessageResponse
	decodeBody(t, rec, &response)
	if !response.Success || response.Message != "Business deleted successfully" {
		t.Errorf("unexpected response: %+v", response)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/businesses/"+free.ID, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
}
