package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordedRequest struct {
	method string
	path   string
	query  string
	body   string
}

func ctlServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, recordedRequest{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, body: string(body)})
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("BOTGRAPH_URL", srv.URL)
	return srv, &got
}

func TestRunCtl_Actions(t *testing.T) {
	tests := []struct {
		args       []string
		wantMethod string
		wantPath   string
		wantQuery  string
	}{
		{[]string{"status"}, http.MethodGet, "/api/status", ""},
		{[]string{"start"}, http.MethodPost, "/api/control/start", ""},
		{[]string{"stop"}, http.MethodPost, "/api/control/stop", ""},
		{[]string{"resume"}, http.MethodPost, "/api/control/resume", ""},
		{[]string{"clear"}, http.MethodPost, "/api/control/clear", ""},
		{[]string{"regions"}, http.MethodGet, "/api/regions", ""},
		{[]string{"toggle", "eu-west"}, http.MethodPost, "/api/regions/eu-west/toggle", ""},
		{[]string{"ticks", "25"}, http.MethodGet, "/api/ticks", "limit=25"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, "_"), func(t *testing.T) {
			_, got := ctlServer(t, http.StatusOK, `{"ok":true}`)
			var out bytes.Buffer

			if code := runCtl(tt.args, &out); code != exitSuccess {
				t.Fatalf("expected exit %d, got %d", exitSuccess, code)
			}
			if len(*got) != 1 {
				t.Fatalf("expected 1 request, got %d", len(*got))
			}
			req := (*got)[0]
			if req.method != tt.wantMethod || req.path != tt.wantPath || req.query != tt.wantQuery {
				t.Errorf("unexpected request %+v", req)
			}
			if !strings.Contains(out.String(), `"ok": true`) {
				t.Errorf("expected indented response, got %q", out.String())
			}
		})
	}
}

func TestRunCtl_ReconfigureSendsHours(t *testing.T) {
	_, got := ctlServer(t, http.StatusOK, `{}`)

	if code := runCtl([]string{"reconfigure", "2.5"}, io.Discard); code != exitSuccess {
		t.Fatalf("expected exit %d, got %d", exitSuccess, code)
	}

	var body map[string]float64
	if err := json.Unmarshal([]byte((*got)[0].body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["hours"] != 2.5 {
		t.Errorf("expected hours 2.5, got %v", body["hours"])
	}
}

func TestRunCtl_ServerError(t *testing.T) {
	ctlServer(t, http.StatusBadRequest, `{"error":"hours must be positive"}`)

	if code := runCtl([]string{"reconfigure", "1"}, io.Discard); code != exitRuntimeError {
		t.Errorf("expected exit %d, got %d", exitRuntimeError, code)
	}
}

func TestRunCtl_UsageErrors(t *testing.T) {
	_, got := ctlServer(t, http.StatusOK, `{}`)

	cases := [][]string{
		nil,
		{"explode"},
		{"reconfigure"},
		{"reconfigure", "soon"},
		{"toggle"},
	}
	for _, args := range cases {
		if code := runCtl(args, io.Discard); code != exitRuntimeError {
			t.Errorf("%v: expected exit %d, got %d", args, exitRuntimeError, code)
		}
	}
	if len(*got) != 0 {
		t.Errorf("usage errors should not reach the server, got %d requests", len(*got))
	}
}

func TestCtlBaseURL_FromHTTPAddr(t *testing.T) {
	t.Setenv("BOTGRAPH_URL", "")
	t.Setenv("HTTP_ADDR", ":9123")

	if got := ctlBaseURL(); got != "http://localhost:9123" {
		t.Errorf("expected http://localhost:9123, got %q", got)
	}

	t.Setenv("HTTP_ADDR", "10.0.0.5:8080")
	if got := ctlBaseURL(); got != "http://10.0.0.5:8080" {
		t.Errorf("expected http://10.0.0.5:8080, got %q", got)
	}
}
