package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"stratline/internal/answers"
	"stratline/internal/catalog"
	"stratline/internal/db"
	"stratline/internal/engine"
	"stratline/internal/migrate"
	"stratline/internal/scheduler"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat := catalog.Default()
	e := engine.New(conn, cat, answers.NewStore(cat))
	sched := scheduler.New(e, scheduler.DefaultConfig())
	handler, err := New(Config{Engine: e, Scheduler: sched, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	ts := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
}

func TestSetOutputAndWarnings(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts.Client(), http.MethodPut,
		ts.URL+"/v0/modules/customer-definition/outputs/willingness_to_pay",
		map[string]any{"value": "Low"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set output: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts.Client(), http.MethodGet,
		ts.URL+"/v0/modules/positioning/warnings", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("warnings: %d %s", resp.StatusCode, body)
	}
	var out struct {
		Warnings []struct {
			Upstream string `json:"upstream_module_id"`
		} `json:"warnings"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Warnings) != 1 || out.Warnings[0].Upstream != "customer-definition" {
		t.Fatalf("unexpected warnings: %s", body)
	}
}

func TestBadFieldTypeReturns422(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodPut,
		ts.URL+"/v0/modules/market-landscape/outputs/market_size_estimate",
		map[string]any{"value": "not a number"})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if envelope.Error.Code != "invalid_field" {
		t.Fatalf("code = %q: %s", envelope.Error.Code, body)
	}
}

func TestUnknownModuleReturns404(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodGet,
		ts.URL+"/v0/modules/no-such-module", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
}

func TestScoreEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/score", map[string]any{
		"thesis":    "If churn stays under 2% through Q3 then we double channel spend.",
		"tradeoffs": []string{"We are not doing SMB this year", "Slower integrations"},
		"risks":     []string{"Risk of channel saturation", "Incumbent response"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("score: %d %s", resp.StatusCode, body)
	}
	var score struct {
		Score     int `json:"score"`
		Breakdown struct {
			TradeoffClarity int `json:"tradeoff_clarity"`
		} `json:"breakdown"`
	}
	if err := json.Unmarshal(body, &score); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if score.Score <= 0 || score.Breakdown.TradeoffClarity != 100 {
		t.Fatalf("unexpected score: %s", body)
	}
}

func TestDemoThenMetrics(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/demo", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("demo: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/metrics", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %d %s", resp.StatusCode, body)
	}
	var metrics struct {
		Valuation    float64 `json:"valuation"`
		QualityIndex float64 `json:"quality_index"`
		QuizIndex    float64 `json:"quiz_index"`
	}
	if err := json.Unmarshal(body, &metrics); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if metrics.QuizIndex != 1 || metrics.QualityIndex <= 0 {
		t.Fatalf("demo metrics wrong: %s", body)
	}

	resp, body = doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/metrics/trajectory", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trajectory: %d %s", resp.StatusCode, body)
	}
	var points []struct {
		Label  string  `json:"label"`
		Profit float64 `json:"profit"`
	}
	if err := json.Unmarshal(body, &points); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(points) != 8 {
		t.Fatalf("expected 8 trajectory points, got %d", len(points))
	}
}

func TestChallengeLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	resp, body := doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/challenge", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("challenge: %d %s", resp.StatusCode, body)
	}
	var view struct {
		State string `json:"state"`
	}
	if err := json.Unmarshal(body, &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.State != "idle" {
		t.Fatalf("state = %q, want idle", view.State)
	}

	// Responding with nothing visible resolves nothing.
	resp, body = doJSON(t, ts.Client(), http.MethodPost, ts.URL+"/v0/challenge/response",
		map[string]any{"text": "a long enough answer citing churned accounts"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("respond: %d %s", resp.StatusCode, body)
	}
	var res struct {
		Resolved    bool `json:"resolved"`
		Credibility int  `json:"credibility"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Resolved || res.Credibility != 100 {
		t.Fatalf("unexpected resolution: %s", body)
	}
}

func TestEventsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	resp, body := doJSON(t, ts.Client(), http.MethodPost,
		ts.URL+"/v0/modules/market-landscape/complete", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("complete: %d %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, ts.Client(), http.MethodGet, ts.URL+"/v0/events?limit=5", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", resp.StatusCode, body)
	}
	var events []struct {
		Type    string `json:"type"`
		ActorID string `json:"actor_id"`
	}
	if err := json.Unmarshal(body, &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) == 0 || events[0].Type != "module.completed" {
		t.Fatalf("unexpected events: %s", body)
	}
	if events[0].ActorID != "local-user" {
		t.Fatalf("default learner id not applied: %s", body)
	}
}
