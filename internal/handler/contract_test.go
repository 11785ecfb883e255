package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
	"github.com/google/uuid"
)

// loadOpenAPI loads and validates the OpenAPI document.
func loadOpenAPI(t *testing.T) (*openapi3.T, routers.Router) {
	t.Helper()

	path := filepath.Join("..", "..", "docs", "api", "openapi.yaml")

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load OpenAPI document from %s: %v", path, err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI document validation failed: %v", err)
	}

	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		t.Fatalf("Failed to create router from OpenAPI document: %v", err)
	}

	return doc, router
}

func TestOpenAPIDocumentValid(t *testing.T) {
	doc, _ := loadOpenAPI(t)

	expectedPaths := []string{
		"/",
		"/healthz",
		"/readyz",
		"/users/{user_id}/pool",
		"/users/{user_id}/pool/members",
		"/users/{user_id}/matches",
		"/users/{user_id}/decisions",
		"/users/{user_id}/matches/{match_id}/decisions",
	}
	for _, path := range expectedPaths {
		if doc.Paths.Find(path) == nil {
			t.Errorf("Expected path %s not found in OpenAPI document", path)
		}
	}
}

// TestResponsesMatchOpenAPI drives every route, including error paths, and
// validates each response against the document.
func TestResponsesMatchOpenAPI(t *testing.T) {
	_, router := loadOpenAPI(t)
	env := newAPIEnv(t)

	user, peer := uuid.NewString(), uuid.NewString()
	poolID := env.pools.SeedPool("Madrid", 0, peer)
	matchID := env.matches.SeedMatch(poolID, user, peer)
	env.matches.SeedDecision(matchID, peer, "accept")

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"info", http.MethodGet, "/", "", http.StatusOK},
		{"healthz", http.MethodGet, "/healthz", "", http.StatusOK},
		{"readyz", http.MethodGet, "/readyz", "", http.StatusOK},
		{"pool before join", http.MethodGet, "/users/" + user + "/pool", "", http.StatusNotFound},
		{"join", http.MethodPost, "/users/" + user + "/pool", `{"location":"Madrid","coord_x":3}`, http.StatusCreated},
		{"join invalid json", http.MethodPost, "/users/" + user + "/pool", `{`, http.StatusBadRequest},
		{"pool", http.MethodGet, "/users/" + user + "/pool", "", http.StatusOK},
		{"update coordinates", http.MethodPatch, "/users/" + user + "/pool", `{"coord_y":4}`, http.StatusOK},
		{"members", http.MethodGet, "/users/" + user + "/pool/members", "", http.StatusOK},
		{"generate", http.MethodPost, "/users/" + user + "/matches", "", http.StatusCreated},
		{"matches", http.MethodGet, "/users/" + user + "/matches", "", http.StatusOK},
		{"decide", http.MethodPost, "/users/" + user + "/matches/" + matchID + "/decisions", `{"decision":"accept"}`, http.StatusCreated},
		{"decide again", http.MethodPost, "/users/" + user + "/matches/" + matchID + "/decisions", `{"decision":"reject"}`, http.StatusBadRequest},
		{"decisions", http.MethodGet, "/users/" + user + "/decisions", "", http.StatusOK},
		{"leave", http.MethodDelete, "/users/" + user + "/pool", "", http.StatusOK},
		{"members after leave", http.MethodGet, "/users/" + user + "/pool/members", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.status, rec.Body.String())
			}

			var reqBody io.Reader
			if tc.body != "" {
				reqBody = bytes.NewReader([]byte(tc.body))
			}
			req, err := http.NewRequest(tc.method, "http://localhost"+tc.path, reqBody)
			if err != nil {
				t.Fatalf("Failed to create request: %v", err)
			}

			route, pathParams, err := router.FindRoute(req)
			if err != nil {
				t.Fatalf("Could not find route in OpenAPI document: %v", err)
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
			}
			if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
				t.Errorf("Response validation failed: %v", err)
			}
		})
	}
}
