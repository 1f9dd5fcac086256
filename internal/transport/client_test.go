package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hmip/internal/admission"
)

func testConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		AuthToken:       "auth",
		ClientAuthToken: "client",
		APIVersion:      "12",
		AccessPointID:   "3014F711A0000000000000",
		ClientLanguage:  "en_US",
		Timeout:         2 * time.Second,
	}
}

func TestSend_URLAndHeaders(t *testing.T) {
	var gotPath, gotMethod string
	var gotHeader http.Header
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotHeader = r.Header.Clone()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL + "/"))
	res := c.Send(context.Background(), "device/control/setSwitchState", map[string]any{"on": true}, nil)

	if !res.Success || res.Err != nil {
		t.Fatalf("Send() = %+v, want success", res)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/hmip/device/control/setSwitchState" {
		t.Errorf("path = %q", gotPath)
	}
	if gotHeader.Get("AUTHTOKEN") != "auth" || gotHeader.Get("CLIENTAUTH") != "client" {
		t.Errorf("auth headers = %q/%q", gotHeader.Get("AUTHTOKEN"), gotHeader.Get("CLIENTAUTH"))
	}
	if gotHeader.Get("VERSION") != "12" {
		t.Errorf("VERSION header = %q, want 12", gotHeader.Get("VERSION"))
	}
	if gotBody["on"] != true {
		t.Errorf("body = %v", gotBody)
	}

	var decoded struct{ OK bool }
	if err := res.Decode(&decoded); err != nil || !decoded.OK {
		t.Errorf("Decode() = %v, %+v", err, decoded)
	}
}

func TestSend_HeaderOverrideReplacesDefaults(t *testing.T) {
	var gotHeader http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	res := c.Send(context.Background(), "auth/requestAuthToken", nil, map[string]string{"X-Only": "1"})

	if !res.Success {
		t.Fatalf("Send() = %+v, want success", res)
	}
	if gotHeader.Get("X-Only") != "1" {
		t.Error("override header missing")
	}
	if gotHeader.Get("AUTHTOKEN") != "" || gotHeader.Get("CLIENTAUTH") != "" {
		t.Error("default headers should not be merged with an override")
	}
}

func TestSend_StatusClassification(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantSuccess bool
		wantErr     error
		wantJSON    bool
	}{
		{"ok with json", 200, `{"a":1}`, true, nil, true},
		{"ok empty body", 200, ``, true, nil, false},
		{"no content", 204, ``, true, nil, false},
		{"throttled", 429, `slow down`, false, ErrThrottled, false},
		{"unauthorized", 401, `{"errorCode":"INVALID_AUTH_TOKEN"}`, false, ErrAuthentication, true},
		{"forbidden", 403, ``, false, ErrAuthentication, false},
		{"bad request", 400, `{"errorCode":"INVALID_REQUEST"}`, false, ErrRequestFailed, true},
		{"server error", 503, `unavailable`, false, ErrRequestFailed, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			res := New(testConfig(srv.URL)).Send(context.Background(), "home/x", nil, nil)

			if res.Status != tt.status {
				t.Errorf("Status = %d, want %d", res.Status, tt.status)
			}
			if res.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", res.Success, tt.wantSuccess)
			}
			if tt.wantErr == nil && res.Err != nil {
				t.Errorf("Err = %v, want nil", res.Err)
			}
			if tt.wantErr != nil && !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if (res.JSON != nil) != tt.wantJSON {
				t.Errorf("JSON = %s, wantJSON %v", res.JSON, tt.wantJSON)
			}
			if res.Text != tt.body {
				t.Errorf("Text = %q, want %q", res.Text, tt.body)
			}
		})
	}
}

func TestSend_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := New(testConfig(url)).Send(context.Background(), "home/x", nil, nil)

	if res.Status != 0 {
		t.Errorf("Status = %d, want 0", res.Status)
	}
	if res.Success {
		t.Error("Success = true on network failure")
	}
	if !errors.Is(res.Err, ErrTransport) {
		t.Errorf("Err = %v, want ErrTransport", res.Err)
	}
	if !IsRetryable(res.Err) {
		t.Error("network failure should be retryable")
	}
}

func TestSend_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := testConfig(srv.URL)
	cfg.Timeout = 50 * time.Millisecond

	res := New(cfg).Send(context.Background(), "home/x", nil, nil)
	if !errors.Is(res.Err, ErrTransport) {
		t.Errorf("Err = %v, want ErrTransport", res.Err)
	}
}

type stubAdmitter struct {
	calls int
	err   error
}

func (s *stubAdmitter) TakeBlocking(context.Context, int, time.Duration) error {
	s.calls++
	return s.err
}

func TestSend_WaitsOnLimiter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	adm := &stubAdmitter{}
	c := New(testConfig(srv.URL), WithLimiter(adm))
	c.Send(context.Background(), "home/x", nil, nil)
	c.Send(context.Background(), "home/x", nil, nil)

	if adm.calls != 2 {
		t.Errorf("limiter calls = %d, want 2", adm.calls)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d, want 2", hits.Load())
	}
}

func TestSend_LimiterTimeoutIsThrottledResult(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	lim := admission.New(1, 0.001)
	lim.TryTake(1)

	cfg := testConfig(srv.URL)
	cfg.TakeTimeout = 20 * time.Millisecond
	res := New(cfg, WithLimiter(lim)).Send(context.Background(), "home/x", nil, nil)

	if res.Success {
		t.Fatal("Success = true without a token")
	}
	if !errors.Is(res.Err, ErrThrottled) || !errors.Is(res.Err, admission.ErrTimeout) {
		t.Errorf("Err = %v, want ErrThrottled wrapping admission.ErrTimeout", res.Err)
	}
	if hits.Load() != 0 {
		t.Errorf("server hits = %d, want 0", hits.Load())
	}
}

func TestCurrentState(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/hmip/home/getCurrentState" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Write([]byte(`{"home":{"id":"h1"},"devices":{},"groups":{},"clients":{}}`))
	}))
	defer srv.Close()

	raw, err := New(testConfig(srv.URL)).FetchSnapshot(context.Background())
	if err != nil {
		t.Fatalf("FetchSnapshot() error = %v", err)
	}
	if body["id"] != "3014F711A0000000000000" {
		t.Errorf("body id = %v", body["id"])
	}
	chars, ok := body["clientCharacteristics"].(map[string]any)
	if !ok || chars["apiVersion"] != "12" || chars["language"] != "en_US" {
		t.Errorf("clientCharacteristics = %v", body["clientCharacteristics"])
	}

	var snap struct {
		Home struct{ ID string } `json:"home"`
	}
	if err := json.Unmarshal(raw, &snap); err != nil || snap.Home.ID != "h1" {
		t.Errorf("snapshot = %s (%v)", raw, err)
	}
}

func TestFetchSnapshot_Failure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL)).FetchSnapshot(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("FetchSnapshot() error = %v, want ErrAuthentication", err)
	}
}
