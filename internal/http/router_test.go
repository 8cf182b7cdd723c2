package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ragguard/internal/evidence"
	"ragguard/internal/rag"
	"ragguard/internal/rag/mocks"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/mock/gomock"
)

func TestRouter_Routes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	engine := mocks.NewMockEngine(ctrl)
	engine.EXPECT().RetrieveAndGate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(rag.Result{Decision: evidence.GateDecision{Reason: evidence.ReasonLowScore}}, nil).AnyTimes()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "ragguard_test_total", Help: "test"}))

	router := NewRouter(&Deps{Engine: engine, Gatherer: reg})

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "POST /api/retrieve",
			method:     http.MethodPost,
			path:       "/api/retrieve",
			body:       `{"query":"tax"}`,
			wantStatus: http.StatusOK,
			wantBody:   "LOW_SCORE",
		},
		{
			name:       "POST /api/retrieve bad body",
			method:     http.MethodPost,
			path:       "/api/retrieve",
			body:       "not json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "GET /api/retrieve method not allowed",
			method:     http.MethodGet,
			path:       "/api/retrieve",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "GET /health",
			method:     http.MethodGet,
			path:       "/health",
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name:       "GET /metrics",
			method:     http.MethodGet,
			path:       "/metrics",
			wantStatus: http.StatusOK,
			wantBody:   "ragguard_test_total",
		},
		{
			name:       "unknown route",
			method:     http.MethodGet,
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("Router %s %s status = %v, want %v", tt.method, tt.path, w.Code, tt.wantStatus)
			}
			if tt.wantBody != "" && !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("Router %s %s body missing %q: %s", tt.method, tt.path, tt.wantBody, w.Body.String())
			}
			if w.Header().Get(RequestIDHeader) == "" {
				t.Errorf("Router %s %s did not set %s", tt.method, tt.path, RequestIDHeader)
			}
		})
	}
}

func TestRouter_NoMetricsWithoutGatherer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	router := NewRouter(&Deps{Engine: mocks.NewMockEngine(ctrl)})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics status = %v, want %v", w.Code, http.StatusNotFound)
	}
}
