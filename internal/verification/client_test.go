package verification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hemiko/topup_reconciler/internal/config"
	"github.com/hemiko/topup_reconciler/internal/logging"
)

func newTestClient(baseURL string, timeoutMS int) *HTTPClient {
	return NewHTTPClient(&config.Config{
		VerificationAPIBaseURL: baseURL,
		VerificationAPIToken:   "secret-token",
		VerificationTimeout:    timeoutMS,
	}, logging.Discard())
}

func TestCheckByPrimaryKeyConfirmed(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"responseCode": 0,
			"data":         map[string]any{"amount": 5, "hash": "abc"},
		})
	}))
	defer srv.Close()

	lookup, err := newTestClient(srv.URL, 15000).CheckByPrimaryKey(context.Background(), "abc")
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if gotPath != "/check_transaction_by_md5" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotAuth != "Bearer secret-token" {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotBody["md5"] != "abc" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
	if !lookup.Confirmed() {
		t.Fatal("expected confirmed lookup")
	}
}

func TestCheckByFallbackKeyPayload(t *testing.T) {
	var gotPath string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]any{"responseCode": 1, "data": map[string]any{"hash": "x"}})
	}))
	defer srv.Close()

	lookup, err := newTestClient(srv.URL, 15000).CheckByFallbackKey(context.Background(), "TXN0000000000000000000000")
	if err != nil {
		t.Fatalf("check: %v", err)
	}

	if gotPath != "/check_transaction_by_external_ref" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if gotBody["externalRef"] != "TXN0000000000000000000000" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
	if !lookup.Confirmed() {
		t.Fatal("expected confirmed lookup")
	}
}

func TestLookupConfirmed(t *testing.T) {
	tests := []struct {
		name   string
		lookup Lookup
		want   bool
	}{
		{"success code with record", Lookup{ResponseCode: 0, Data: map[string]any{"amount": 5}}, true},
		{"known code with record", Lookup{ResponseCode: 1, Data: map[string]any{"amount": 5}}, true},
		{"empty record is not settled", Lookup{ResponseCode: 1, Data: map[string]any{}}, false},
		{"absent record", Lookup{ResponseCode: 0}, false},
		{"unrecognized code with record", Lookup{ResponseCode: 5, Data: map[string]any{"amount": 5}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.lookup.Confirmed(); got != tt.want {
				t.Fatalf("Confirmed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheckRejectsEmptyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty key")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 15000).CheckByPrimaryKey(context.Background(), "")
	if !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestCheckNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, 15000).CheckByPrimaryKey(context.Background(), "abc"); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestCheckMalformedBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, 15000).CheckByFallbackKey(context.Background(), "ref"); err == nil {
		t.Fatal("expected error for malformed response body")
	}
}

func TestCheckTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL, 10).CheckByPrimaryKey(context.Background(), "abc"); err == nil {
		t.Fatal("expected timeout error")
	}
}
