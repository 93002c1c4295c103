package utils

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGenerateETagIsStable(t *testing.T) {
	t.Parallel()
	a, err := GenerateETag(map[string]float64{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("etag: %v", err)
	}
	b, _ := GenerateETag(map[string]float64{"a": 1, "b": 2})
	if a != b || len(a) != 64 {
		t.Fatalf("expected equal 64-char hashes, got %q and %q", a, b)
	}
	if _, err := GenerateETag(func() {}); err == nil {
		t.Fatalf("expected an error for an unencodable value")
	}
}

func TestDecodeJSONBody(t *testing.T) {
	t.Parallel()
	type payload struct {
		Amount float64 `json:"amount"`
	}

	tests := []struct {
		name    string
		body    string
		max     int64
		wantErr bool
	}{
		{"ok", `{"amount": 12.5}`, 0, false},
		{"unknown field", `{"amount": 1, "extra": true}`, 0, true},
		{"empty", ``, 0, true},
		{"trailing", `{"amount": 1} {}`, 0, true},
		{"too large", `{"amount": 1000000000000}`, 8, true},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
		var p payload
		err := DecodeJSONBody(httptest.NewRecorder(), req, &p, tt.max)
		if tt.wantErr {
			if !errors.Is(err, ErrBadRequestBody) {
				t.Fatalf("%s: expected ErrBadRequestBody, got %v", tt.name, err)
			}
			continue
		}
		if err != nil || p.Amount != 12.5 {
			t.Fatalf("%s: unexpected %v %+v", tt.name, err, p)
		}
	}
}

func TestCheckETag(t *testing.T) {
	t.Parallel()
	data := []string{"acme"}

	rec := httptest.NewRecorder()
	if CheckETag(rec, httptest.NewRequest(http.MethodGet, "/", nil), data) {
		t.Fatalf("expected no match without If-None-Match")
	}
	etag := rec.Header().Get("ETag")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	if !CheckETag(rec, req, data) || rec.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", rec.Code)
	}
}

func TestSendJSONError(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	SendJSONError(rec, "bad amount", http.StatusBadRequest)
	if rec.Code != http.StatusBadRequest || rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"error":"bad amount"}` {
		t.Fatalf("unexpected body %s", got)
	}
}
