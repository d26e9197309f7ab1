package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"lightning_backend/logging"
	"lightning_backend/predictor"
)

// fakeService is a canned predictionService.
type fakeService struct {
	result  *predictor.Result
	err     error
	ready   bool
	lastReq predictor.Request
}

func (f *fakeService) Predict(ctx context.Context, req predictor.Request) (*predictor.Result, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeService) Ready() bool { return f.ready }

func newTestServer(t *testing.T, svc *fakeService) *Server {
	t.Helper()
	logger, err := logging.NewLogger(true, "")
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(svc, nil, nil, logger)
}

func TestHandlePredict_Success(t *testing.T) {
	svc := &fakeService{
		ready: true,
		result: &predictor.Result{
			ID:      "abc",
			Seed:    42,
			Outputs: []predictor.Output{{Index: 0, Path: "/tmp/abc/out-0.png"}},
		},
	}
	srv := newTestServer(t, svc)

	body := bytes.NewBufferString(`{"prompt": "a fox", "num_outputs": 1}`)
	req := httptest.NewRequest(http.MethodPost, "/predictions", body)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var result predictor.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if result.ID != "abc" || result.Seed != 42 {
		t.Errorf("unexpected result: %+v", result)
	}
	if svc.lastReq.Prompt != "a fox" {
		t.Errorf("service saw prompt %q", svc.lastReq.Prompt)
	}
}

func TestHandlePredict_BadJSON(t *testing.T) {
	srv := newTestServer(t, &fakeService{ready: true})

	req := httptest.NewRequest(http.MethodPost, "/predictions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePredict_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &fakeService{ready: true})

	req := httptest.NewRequest(http.MethodGet, "/predictions", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandlePredict_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"all filtered", predictor.ErrAllOutputsFiltered, http.StatusUnprocessableEntity},
		{"not setup", predictor.ErrNotSetup, http.StatusServiceUnavailable},
		{"canceled", context.Canceled, http.StatusRequestTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeService{ready: true, err: tt.err})

			req := httptest.NewRequest(http.MethodPost, "/predictions", bytes.NewBufferString(`{"prompt":"x"}`))
			rec := httptest.NewRecorder()
			srv.Routes().ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleHealth_Ready(t *testing.T) {
	srv := newTestServer(t, &fakeService{ready: true})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || !resp.Ready {
		t.Errorf("unexpected health response: %+v", resp)
	}
	if resp.Backend == "" {
		t.Error("backend info should be populated")
	}
}

func TestHandleHealth_NotReady(t *testing.T) {
	srv := newTestServer(t, &fakeService{ready: false})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleHistory_Disabled(t *testing.T) {
	srv := newTestServer(t, &fakeService{ready: true})

	req := httptest.NewRequest(http.MethodGet, "/history", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleHistory_InvalidLimit(t *testing.T) {
	srv := newTestServer(t, &fakeService{ready: true})

	req := httptest.NewRequest(http.MethodGet, "/history?limit=abc", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	// The disabled-store check runs before limit parsing.
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
