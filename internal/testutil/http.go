package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TestUser represents user data for testing HTTP handlers.
type TestUser struct {
	ID     string
	Name   string
	Avatar string
}

// NewTestUser returns a TestUser with a fresh ObjectID.
func NewTestUser(name string) TestUser {
	return TestUser{
		ID:   primitive.NewObjectID().Hex(),
		Name: name,
	}
}

// UserFromID returns a TestUser for an existing user document id.
func UserFromID(id primitive.ObjectID, name string) TestUser {
	return TestUser{ID: id.Hex(), Name: name}
}

// WithUser adds a user to the request context for testing authenticated handlers.
// This bypasses the session middleware and injects the user directly.
func WithUser(r *http.Request, user TestUser) *http.Request {
	return auth.WithTestUser(r, &auth.SessionUser{
		ID:     user.ID,
		Name:   user.Name,
		Avatar: user.Avatar,
	})
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// NewJSONRequest creates an HTTP request with a JSON body.
func NewJSONRequest(method, target, body string) *http.Request {
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewAuthenticatedRequest creates an HTTP request with a user in context.
func NewAuthenticatedRequest(method, target string, user TestUser) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return WithUser(req, user)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d (body %s)", r.Code, expected, r.Body.String())
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}

// DecodeJSON unmarshals the response body into v.
func (r *ResponseRecorder) DecodeJSON(t interface {
	Fatalf(string, ...any)
}, v any) {
	if err := json.Unmarshal(r.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", r.Body.String(), err)
	}
}
