package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/autoland/lander/internal/audit"
	"github.com/autoland/lander/internal/auth"
	"github.com/autoland/lander/internal/bus"
	"github.com/autoland/lander/internal/config"
	"github.com/autoland/lander/internal/lander"
	"github.com/autoland/lander/internal/observability"
)

type fakeStatus struct{ status lander.Status }

func (f fakeStatus) Status() lander.Status { return f.status }

type published struct {
	topic   string
	payload any
}

type recordingEvents struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (r *recordingEvents) Publish(topic string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, published{topic, payload})
	return nil
}

type recordingAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	actors  []string
}

func (r *recordingAudit) Record(ctx context.Context, e audit.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	r.actors = append(r.actors, audit.ActorFromContext(ctx))
}

func (r *recordingAudit) RecordError(ctx context.Context, e audit.Entry, err error) {
	e.Code = audit.CodeFromError(err)
	r.Record(ctx, e)
}

type fakeTelemetry struct{}

func (fakeTelemetry) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream")
	_, _ = w.Write([]byte("event: ready\ndata: {}\n\n"))
	return nil
}

func newTestServer(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Auth == nil {
		deps.Auth = auth.NewMiddleware()
	}
	return NewServer(config.Baseline().Server, deps).Handler()
}

func do(t *testing.T, h http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp Response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response is not JSON: %v (%q)", err, w.Body.String())
		}
		if resp.CorrelationID == "" {
			t.Error("missing correlationId")
		}
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	h := newTestServer(t, Deps{Status: fakeStatus{lander.Status{State: lander.LandHigh}}})

	w, resp := do(t, h, http.MethodGet, "/api/v1/health", "", "")
	if w.Code != http.StatusOK || resp.Result != "ok" {
		t.Fatalf("health = %d %+v", w.Code, resp)
	}
	data := resp.Data.(map[string]interface{})
	if data["state"] != "LAND_HIGH" {
		t.Errorf("state = %v", data["state"])
	}

	w, resp = do(t, h, http.MethodPost, "/api/v1/health", "", "")
	if w.Code != http.StatusMethodNotAllowed || resp.Code != "METHOD_NOT_ALLOWED" {
		t.Errorf("POST health = %d %s", w.Code, resp.Code)
	}
}

func TestCapabilities(t *testing.T) {
	h := newTestServer(t, Deps{})

	if w, _ := do(t, h, http.MethodGet, "/api/v1/capabilities", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated = %d", w.Code)
	}

	w, resp := do(t, h, http.MethodGet, "/api/v1/capabilities", auth.DevViewerToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("capabilities = %d", w.Code)
	}
	data := resp.Data.(map[string]interface{})
	if topics := data["inboundTopics"].([]interface{}); len(topics) != 4 {
		t.Errorf("inboundTopics = %v", topics)
	}
	if rows := data["transitions"].([]interface{}); len(rows) != 7 {
		t.Errorf("transitions = %d rows", len(rows))
	}
	first := data["transitions"].([]interface{})[0].(map[string]interface{})
	if first["from"] != "FLYING" || first["trigger"] != "engage" || first["to"] != "SEEK_HOME" {
		t.Errorf("first transition = %v", first)
	}
}

func TestLanderStatus(t *testing.T) {
	cmd := lander.ReleaseCommand()
	at := time.Unix(1700000000, 0).UTC()
	h := newTestServer(t, Deps{Status: fakeStatus{lander.Status{
		State:            lander.SeekHome,
		AutonomousActive: true,
		LastCommand:      &cmd,
		LastCommandAt:    &at,
	}}})

	w, resp := do(t, h, http.MethodGet, "/api/v1/lander", auth.DevViewerToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("lander = %d", w.Code)
	}
	data := resp.Data.(map[string]interface{})
	if data["state"] != "SEEK_HOME" || data["autonomousActive"] != true {
		t.Errorf("status = %v", data)
	}
	if _, ok := data["lastCommand"]; !ok {
		t.Error("missing lastCommand")
	}
}

func TestLanderStatus_Unavailable(t *testing.T) {
	h := newTestServer(t, Deps{})
	if w, resp := do(t, h, http.MethodGet, "/api/v1/lander", auth.DevViewerToken, ""); w.Code != http.StatusServiceUnavailable || resp.Code != "UNAVAILABLE" {
		t.Errorf("lander = %d %s", w.Code, resp.Code)
	}
}

func TestTelemetry(t *testing.T) {
	h := newTestServer(t, Deps{Telemetry: fakeTelemetry{}})

	w, _ := do(t, h, http.MethodGet, "/api/v1/telemetry", auth.DevViewerToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("telemetry = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "event: ready") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestInject(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantTopic  string
	}{
		{"viewer forbidden", auth.DevViewerToken, "/api/v1/events/rc", `[1500,1500,1500,1500,2000]`, http.StatusForbidden, "FORBIDDEN", ""},
		{"rc array", auth.DevOperatorToken, "/api/v1/events/rc", `[1500,1500,1500,1500,2000]`, http.StatusAccepted, "", bus.TopicRC},
		{"pose object", auth.DevOperatorToken, "/api/v1/events/simplePose", `{"components":[0.1,0.2,3]}`, http.StatusAccepted, "", bus.TopicPose},
		{"telemetry", auth.DevOperatorToken, "/api/v1/events/vfr_hud", `{"alt":1.5,"climb":-0.2}`, http.StatusAccepted, "", bus.TopicTelemetry},
		{"malformed json", auth.DevOperatorToken, "/api/v1/events/attitude", `{"roll":`, http.StatusBadRequest, "BAD_REQUEST", ""},
		{"command topic refused", auth.DevOperatorToken, "/api/v1/events/send_rc", `{"channels":[0,0,0,0,0,0,0,0]}`, http.StatusNotFound, "NOT_FOUND", ""},
		{"unknown topic", auth.DevOperatorToken, "/api/v1/events/gps", `{}`, http.StatusNotFound, "NOT_FOUND", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := &recordingEvents{}
			h := newTestServer(t, Deps{Events: events})

			w, resp := do(t, h, http.MethodPost, tt.path, tt.token, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantCode != "" && resp.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", resp.Code, tt.wantCode)
			}
			if tt.wantTopic == "" {
				if len(events.msgs) != 0 {
					t.Errorf("unexpected publish: %+v", events.msgs)
				}
				return
			}
			if len(events.msgs) != 1 || events.msgs[0].topic != tt.wantTopic {
				t.Errorf("published = %+v", events.msgs)
			}
		})
	}
}

func TestInject_MethodAndBusErrors(t *testing.T) {
	events := &recordingEvents{err: bus.ErrClosed}
	auditLog := &recordingAudit{}
	h := newTestServer(t, Deps{Events: events, Audit: auditLog})

	if w, _ := do(t, h, http.MethodGet, "/api/v1/events/rc", auth.DevOperatorToken, ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET inject = %d", w.Code)
	}

	w, resp := do(t, h, http.MethodPost, "/api/v1/events/rc", auth.DevOperatorToken, `[1500,1500,1500,1500,2000]`)
	if w.Code != http.StatusServiceUnavailable || resp.Code != "UNAVAILABLE" {
		t.Errorf("closed bus = %d %s", w.Code, resp.Code)
	}
	if len(auditLog.entries) != 1 || auditLog.entries[0].Action != audit.ActionInject {
		t.Fatalf("audit = %+v", auditLog.entries)
	}
	if auditLog.actors[0] != "dev-operator" {
		t.Errorf("actor = %q", auditLog.actors[0])
	}
}

func TestInject_DrivesArbiter(t *testing.T) {
	b := bus.New(bus.Options{ToggleChannel: lander.DefaultToggleChannel})
	defer b.Close()

	cc := lander.NewControllerContext(lander.NewProportionalSelector(lander.DefaultGuidanceParams()), lander.DefaultOptions())
	router := lander.NewRouter(cc, nil)
	if _, err := bus.Bind(b, router, nil); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	h := newTestServer(t, Deps{Status: router, Events: b})

	if w, _ := do(t, h, http.MethodPost, "/api/v1/events/rc", auth.DevOperatorToken, `[1500,1500,1500,1500,2000,1500]`); w.Code != http.StatusAccepted {
		t.Fatalf("inject rc = %d", w.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for router.Status().State != lander.SeekHome {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want SEEK_HOME", router.Status().State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, resp := do(t, h, http.MethodGet, "/api/v1/lander", auth.DevViewerToken, "")
	if data := resp.Data.(map[string]interface{}); data["autonomousActive"] != true {
		t.Errorf("status = %v", data)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	collector, err := observability.NewLanderCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("NewLanderCollector: %v", err)
	}
	h := newTestServer(t, Deps{Collector: collector})

	do(t, h, http.MethodGet, "/api/v1/health", "", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `route="/api/v1/health"`) {
		t.Errorf("health request not counted:\n%s", w.Body.String())
	}
}

func TestToAPIError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"malformed", bus.ErrMalformedPayload, http.StatusBadRequest, "BAD_REQUEST"},
		{"unknown topic", bus.ErrUnknownTopic, http.StatusNotFound, "NOT_FOUND"},
		{"closed", bus.ErrClosed, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"token", auth.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"api error", NewAPIError("NOT_FOUND", "gone", http.StatusNotFound, nil), http.StatusNotFound, "NOT_FOUND"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ToAPIError(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			var resp Response
			if err := json.Unmarshal(body, &resp); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if resp.Code != tt.wantCode || resp.Result != "error" {
				t.Errorf("resp = %+v", resp)
			}
		})
	}

	if status, body := ToAPIError(nil); status != http.StatusOK || body != nil {
		t.Errorf("nil error = %d %s", status, body)
	}
}
