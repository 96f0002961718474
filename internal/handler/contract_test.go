package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"github.com/invoicely/invoicely/internal/testutil"
)

const contractBaseURL = "http://localhost:8080"

var (
	contractOnce   sync.Once
	contractRouter routers.Router
	contractErr    error
)

// loadContract parses docs/api/openapi.yaml once per test binary.
func loadContract(t *testing.T) routers.Router {
	t.Helper()

	contractOnce.Do(func() {
		root, err := testutil.ProjectRoot()
		if err != nil {
			contractErr = err
			return
		}

		loader := openapi3.NewLoader()
		doc, err := loader.LoadFromFile(filepath.Join(root, "docs", "api", "openapi.yaml"))
		if err != nil {
			contractErr = err
			return
		}
		if err := doc.Validate(context.Background()); err != nil {
			contractErr = err
			return
		}
		contractRouter, contractErr = gorillamux.NewRouter(doc)
	})

	if contractErr != nil {
		t.Fatalf("load OpenAPI document: %v", contractErr)
	}
	return contractRouter
}

// checkContract validates rec against the documented response for req.
func checkContract(t *testing.T, req *http.Request, rec *httptest.ResponseRecorder) {
	t.Helper()

	router := loadContract(t)
	route, pathParams, err := router.FindRoute(req)
	if err != nil {
		t.Fatalf("%s %s is not documented: %v", req.Method, req.URL.Path, err)
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: pathParams,
			Route:      route,
		},
		Status: rec.Code,
		Header: rec.Header(),
		Body:   io.NopCloser(bytes.NewReader(rec.Body.Bytes())),
		Options: &openapi3filter.Options{
			IncludeResponseStatus: true,
		},
	}
	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		t.Errorf("%s %s -> %d violates contract: %v\nbody: %s", req.Method, req.URL.Path, rec.Code, err, rec.Body.String())
	}
}

func TestContract_BusinessLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	var businessID string
	steps := []struct {
		name       string
		method     string
		path       func() string
		body       func() string
		wantStatus int
	}{
		{
			name:       "create",
			method:     http.MethodPost,
			path:       func() string { return "/api/v1/businesses" },
			body:       func() string { return `{"name":"Acme","user_id":"` + env.owner.ID + `","email":"billing@acme.test"}` },
			wantStatus: http.StatusCreated,
		},
		{
			name:       "create second",
			method:     http.MethodPost,
			path:       func() string { return "/api/v1/businesses" },
			body:       func() string { return `{"name":"Beta","user_id":"` + env.owner.ID + `"}` },
			wantStatus: http.StatusCreated,
		},
		{
			name:       "quota reached",
			method:     http.MethodPost,
			path:       func() string { return "/api/v1/businesses" },
			body:       func() string { return `{"name":"Gamma","user_id":"` + env.owner.ID + `"}` },
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "validation failure",
			method:     http.MethodPost,
			path:       func() string { return "/api/v1/businesses" },
			body:       func() string { return `{"name":"","user_id":"nope"}` },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "list",
			method:     http.MethodGet,
			path:       func() string { return "/api/v1/businesses?user_id=" + env.owner.ID + "&per_page=1" },
			wantStatus: http.StatusOK,
		},
		{
			name:       "list without user",
			method:     http.MethodGet,
			path:       func() string { return "/api/v1/businesses" },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "get",
			method:     http.MethodGet,
			path:       func() string { return "/api/v1/businesses/" + businessID },
			wantStatus: http.StatusOK,
		},
		{
			name:       "get missing",
			method:     http.MethodGet,
			path:       func() string { return "/api/v1/businesses/" + testutil.UniqueUUID() },
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "patch",
			method:     http.MethodPatch,
			path:       func() string { return "/api/v1/businesses/" + businessID },
			body:       func() string { return `{"website":"https://acme.test","email":null}` },
			wantStatus: http.StatusOK,
		},
		{
			name:       "put",
			method:     http.MethodPut,
			path:       func() string { return "/api/v1/businesses/" + businessID },
			body:       func() string { return `{"name":"Acme Ltd"}` },
			wantStatus: http.StatusOK,
		},
		{
			name:       "delete",
			method:     http.MethodDelete,
			path:       func() string { return "/api/v1/businesses/" + businessID },
			wantStatus: http.StatusOK,
		},
		{
			name:       "delete invalid id",
			method:     http.MethodDelete,
			path:       func() string { return "/api/v1/businesses/123" },
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, step := range steps {
		var body io.Reader
		if step.body != nil {
			body = strings.NewReader(step.body())
		}
		req := httptest.NewRequest(step.method, contractBaseURL+step.path(), body)
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != step.wantStatus {
			t.Fatalf("%s: status = %d, want %d: %s", step.name, rec.Code, step.wantStatus, rec.Body.String())
		}
		checkContract(t, req, rec)

		if step.name == "create" {
			businessID = decodeCreatedID(t, rec)
		}
	}
}

func TestContract_UserSync(t *testing.T) {
	env := newAPIEnv(t)

	for _, tc := range []struct {
		body       string
		wantStatus int
	}{
		{`{"external_id":"idp_contract","email":"contract@example.com","first_name":"Ada"}`, http.StatusOK},
		{`{"email":"contract@example.com"}`, http.StatusBadRequest},
	} {
		req := httptest.NewRequest(http.MethodPost, contractBaseURL+"/api/v1/users/sync", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)

		if rec.Code != tc.wantStatus {
			t.Fatalf("status = %d, want %d: %s", rec.Code, tc.wantStatus, rec.Body.String())
		}
		checkContract(t, req, rec)
	}
}

func TestContract_Health(t *testing.T) {
	h := NewHealthHandler(nil, nil)

	for path, serve := range map[string]http.HandlerFunc{
		"/healthz": h.Healthz,
		"/readyz":  h.Readyz,
	} {
		req := httptest.NewRequest(http.MethodGet, contractBaseURL+path, nil)
		rec := httptest.NewRecorder()
		serve(rec, req)
		checkContract(t, req, rec)
	}
}

func decodeCreatedID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Business struct {
			ID string `json:"id"`
		} `json:"business"`
	}
	decodeBody(t, rec, &envelope)
	if envelope.Business.ID == "" {
		t.Fatal("created business has no id")
	}
	return envelope.Business.ID
}
