package integrations

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	qerrors "github.com/matzehuels/quiver/pkg/errors"
	"github.com/matzehuels/quiver/pkg/httputil"
)

func TestNewClient(t *testing.T) {
	headers := map[string]string{"Authorization": "Bearer token"}
	client := NewClient(headers)

	if client == nil {
		t.Fatal("NewClient() returned nil")
	}
	if client.http == nil {
		t.Error("NewClient() http client is nil")
	}
	if client.headers["Authorization"] != "Bearer token" {
		t.Error("NewClient() headers not set correctly")
	}
}

func TestNewClientNilHeaders(t *testing.T) {
	client := NewClient(nil)
	if client.headers != nil {
		t.Error("NewClient() should allow nil headers")
	}
}

func TestClientGet(t *testing.T) {
	type response struct {
		Message string `json:"message"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		json.NewEncoder(w).Encode(response{Message: "hello"})
	}))
	defer server.Close()

	client := NewClient(nil).WithHTTPClient(server.Client())

	var resp response
	if err := client.Get(context.Background(), server.URL, &resp); err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if resp.Message != "hello" {
		t.Errorf("Get() message = %q, want %q", resp.Message, "hello")
	}
}

func TestClientGetWithHeadersOverridesDefaults(t *testing.T) {
	var received string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received = r.Header.Get("Accept")
		w.Write([]byte("{}"))
	}))
	defer server.Close()

	client := NewClient(map[string]string{"Accept": "text/html"})
	var v map[string]any
	err := client.GetWithHeaders(context.Background(), server.URL, map[string]string{"Accept": "application/json"}, &v)
	if err != nil {
		t.Fatal(err)
	}
	if received != "application/json" {
		t.Errorf("Accept = %q, want application/json", received)
	}
}

func TestClientGetInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	var v map[string]any
	err := NewClient(nil).Get(context.Background(), server.URL, &v)
	if !qerrors.Is(err, qerrors.ErrCodeParse) {
		t.Errorf("Get() error = %v, want PARSE_ERROR", err)
	}
}

func TestClientGetText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("plain body"))
	}))
	defer server.Close()

	got, err := NewClient(nil).GetText(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain body" {
		t.Errorf("GetText() = %q", got)
	}
}

func TestClientGetBytes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte{0x50, 0x4b, 0x03, 0x04})
	}))
	defer server.Close()

	got, err := NewClient(nil).GetBytes(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got[0] != 0x50 {
		t.Errorf("GetBytes() = %v", got)
	}
}

func TestClientGet404(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	var v any
	err := NewClient(nil).Get(context.Background(), server.URL, &v)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if httputil.IsRetryable(err) {
		t.Error("404 should not be retryable")
	}
}

func TestClientGet500(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var v any
	err := NewClient(nil).Get(context.Background(), server.URL, &v)
	if !errors.Is(err, ErrNetwork) {
		t.Errorf("Get() error = %v, want ErrNetwork", err)
	}
	if !httputil.IsRetryable(err) {
		t.Error("5xx should be retryable")
	}
}

func TestClientCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var v any
	err := NewClient(nil).Get(ctx, server.URL, &v)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Get() error = %v, want context.Canceled", err)
	}
}

func TestCheckStatus(t *testing.T) {
	tests := []struct {
		name       string
		code       int
		wantErr    bool
		wantType   error
		isRetryErr bool
	}{
		{name: "200 OK", code: 200},
		{name: "404 Not Found", code: 404, wantErr: true, wantType: ErrNotFound},
		{name: "429 Too Many Requests", code: 429, wantErr: true, isRetryErr: true},
		{name: "500 Internal Server Error", code: 500, wantErr: true, wantType: ErrNetwork, isRetryErr: true},
		{name: "502 Bad Gateway", code: 502, wantErr: true, wantType: ErrNetwork, isRetryErr: true},
		{name: "503 Service Unavailable", code: 503, wantErr: true, wantType: ErrNetwork, isRetryErr: true},
		{name: "400 Bad Request", code: 400, wantErr: true, wantType: ErrNetwork},
		{name: "403 Forbidden", code: 403, wantErr: true, wantType: ErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkStatus(&http.Response{StatusCode: tt.code, Header: http.Header{"Retry-After": {"7"}}})

			if !tt.wantErr {
				if err != nil {
					t.Errorf("checkStatus() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("checkStatus() should return error")
			}
			if tt.wantType != nil && !errors.Is(err, tt.wantType) {
				t.Errorf("checkStatus() error = %v, want %v", err, tt.wantType)
			}
			var retryErr *httputil.RetryableError
			if got := errors.As(err, &retryErr); got != tt.isRetryErr {
				t.Errorf("checkStatus() retryable = %v, want %v", got, tt.isRetryErr)
			}
		})
	}
}

func TestCheckStatusRateLimited(t *testing.T) {
	err := checkStatus(&http.Response{StatusCode: 429, Header: http.Header{"Retry-After": {"7"}}})
	var rl *qerrors.RateLimitedError
	if !errors.As(err, &rl) || rl.RetryAfter != 7 {
		t.Errorf("checkStatus(429) = %v, want RetryAfter 7", err)
	}
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base     string
		segments []string
		want     string
	}{
		{"https://pypi.org/pypi", []string{"flask", "json"}, "https://pypi.org/pypi/flask/json"},
		{"http://mirror/", []string{"packages", "zope interface"}, "http://mirror/packages/zope%20interface"},
	}
	for _, tt := range tests {
		if got := JoinURL(tt.base, tt.segments...); got != tt.want {
			t.Errorf("JoinURL(%q, %v) = %q, want %q", tt.base, tt.segments, got, tt.want)
		}
	}
}

func TestNewHTTPClient(t *testing.T) {
	if c := NewHTTPClient(); c.Timeout != httpTimeout {
		t.Errorf("Timeout = %v, want %v", c.Timeout, httpTimeout)
	}
}
