package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const machineInfoJSON = `{"id":1,"state":1,"max_mem_kb":4194304,"curr_mem_kb":2097152,"vcpus":2}`

// controlSocket serves mux on a fresh Unix socket and returns its path.
// Sockets live under /tmp because t.TempDir paths can exceed the Unix
// socket path length limit.
func controlSocket(t *testing.T, mux *http.ServeMux) string {
	t.Helper()
	sockPath := filepath.Join("/tmp", fmt.Sprintf("virtmon-%s-%d.sock", strings.ToLower(t.Name()), os.Getpid()))
	t.Cleanup(func() { os.Remove(sockPath) })

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln) //nolint:errcheck
	t.Cleanup(func() { srv.Close() })
	return sockPath
}

func TestSocketClientReadsMachineInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/machine.info", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(machineInfoJSON))
	})
	sockPath := controlSocket(t, mux)

	hc := NewSocketHTTPClient(sockPath)
	body, err := DoAPI(context.Background(), hc, http.MethodGet,
		"http://localhost/api/v1/machine.info", nil, http.StatusOK)
	if err != nil {
		t.Fatalf("machine.info: %v", err)
	}
	if string(body) != machineInfoJSON {
		t.Errorf("body = %s, want %s", body, machineInfoJSON)
	}
}

func TestSocketClientDeadSocket(t *testing.T) {
	hc := NewSocketHTTPClient("/nonexistent/machine.sock")
	if _, err := hc.Get("http://localhost/api/v1/machine.info"); err == nil {
		t.Fatal("expected error for a missing socket")
	}
}

func TestDoAPISubmitConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q, want application/json", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "<name>box</name>") {
			t.Errorf("config payload missing machine name: %s", body)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	payload := []byte(`{"xml":"<domain type=\"kvm\"><name>box</name></domain>"}`)
	body, err := DoAPI(context.Background(), srv.Client(), http.MethodPut,
		srv.URL+"/api/v1/config", payload, http.StatusNoContent)
	if err != nil {
		t.Fatalf("submit config: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("204 must carry no body, got %q", body)
	}
}

func TestDoAPIGetOmitsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "" {
			t.Errorf("bodyless GET must not set a content type, got %q", ct)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, err := DoAPI(context.Background(), srv.Client(), http.MethodGet,
		srv.URL+"/api/v1/host.facts", nil, http.StatusOK)
	if err != nil {
		t.Fatalf("host.facts: %v", err)
	}
}

func TestDoAPIUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotImplemented)
		_, _ = w.Write([]byte("interface counters not implemented"))
	}))
	defer srv.Close()

	_, err := DoAPI(context.Background(), srv.Client(), http.MethodGet,
		srv.URL+"/api/v1/counters/net/vnet0", nil, http.StatusOK)
	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("want APIError, got %T: %v", err, err)
	}
	if ae.Code != http.StatusNotImplemented {
		t.Errorf("code = %d, want 501", ae.Code)
	}
	if !strings.Contains(ae.Message, "interface counters not implemented") {
		t.Errorf("message should carry the response body, got %q", ae.Message)
	}
}

func TestDoAPIConnectionFailureIsNotAPIError(t *testing.T) {
	hc := &http.Client{Timeout: 100 * time.Millisecond}
	_, err := DoAPI(context.Background(), hc, http.MethodGet,
		"http://127.0.0.1:1/api/v1/machine.info", nil, http.StatusOK)
	if err == nil {
		t.Fatal("expected connection error")
	}
	var ae *APIError
	if errors.As(err, &ae) {
		t.Errorf("transport failure must not be an APIError, got code %d", ae.Code)
	}
}

func TestDoAPIBadURL(t *testing.T) {
	_, err := DoAPI(context.Background(), http.DefaultClient, http.MethodGet, "://bad", nil, http.StatusOK)
	if err == nil {
		t.Fatal("expected error for an unparseable URL")
	}
}

func TestDoAPICanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(5 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DoAPI(ctx, srv.Client(), http.MethodGet,
		srv.URL+"/api/v1/machine.info", nil, http.StatusOK)
	if err == nil {
		t.Fatal("expected error for a canceled context")
	}
}

func TestCheckSocket(t *testing.T) {
	sockPath := controlSocket(t, http.NewServeMux())
	if err := CheckSocket(sockPath); err != nil {
		t.Errorf("live socket: %v", err)
	}

	if err := CheckSocket("/nonexistent/machine.sock"); err == nil {
		t.Error("missing socket must fail the check")
	}

	f, err := os.CreateTemp(t.TempDir(), "not-a-socket")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	f.Close()
	if err := CheckSocket(f.Name()); err == nil {
		t.Error("plain file must fail the check")
	}
}

func TestDoWithRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	result, err := DoWithRetry(context.Background(), func() (string, error) {
		calls++
		if calls < 3 {
			return "", &APIError{Code: http.StatusServiceUnavailable, Message: "restarting"}
		}
		return machineInfoJSON, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != machineInfoJSON {
		t.Errorf("result = %q", result)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, err := DoWithRetry(context.Background(), func() (string, error) {
		calls++
		return "", fmt.Errorf("dial unix: connection refused")
	})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != MaxRetries+1 {
		t.Errorf("calls = %d, want %d", calls, MaxRetries+1)
	}
}

func TestDoWithRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := DoWithRetry(context.Background(), func() (string, error) {
		calls++
		return "", &APIError{Code: http.StatusNotFound, Message: "no such machine"}
	})
	var ae *APIError
	if !errors.As(err, &ae) || ae.Code != http.StatusNotFound {
		t.Fatalf("want APIError{404}, got %v", err)
	}
	if calls != 1 {
		t.Errorf("permanent errors must not be retried, calls = %d", calls)
	}
}

func TestDoWithRetryCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := DoWithRetry(ctx, func() (string, error) {
		return "", fmt.Errorf("dial unix: connection refused")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("want context.Canceled, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"bad request", &APIError{Code: http.StatusBadRequest}, false},
		{"not found", &APIError{Code: http.StatusNotFound}, false},
		{"conflict", &APIError{Code: http.StatusConflict}, false},
		{"rate limited", &APIError{Code: http.StatusTooManyRequests}, true},
		{"server error", &APIError{Code: http.StatusInternalServerError}, true},
		{"bad gateway", &APIError{Code: http.StatusBadGateway}, true},
		{"unavailable", &APIError{Code: http.StatusServiceUnavailable}, true},
		{"wrapped not found", fmt.Errorf("fetch config: %w", &APIError{Code: http.StatusNotFound}), false},
		{"dial failure", errors.New("dial unix: no such file or directory"), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable = %v, want %v", got, tc.want)
			}
		})
	}
}
