package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"permitline/internal/config"
	"permitline/internal/db"
	"permitline/internal/domain"
	"permitline/internal/migrate"
	"permitline/internal/tracker"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tr := tracker.New(conn, config.Default())
	handler, err := New(Config{
		Tracker:  tr,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:              testSecret,
			AllowLegacyActorHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func asActor(id string) map[string]string {
	return map[string]string{"X-Actor-Id": id}
}

func decodeErrorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func createPermit(t *testing.T, srv *testServer, actor string) domain.Permit {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/permits", map[string]any{
		"property_address": "12 Flask Walk",
		"postcode":         "NW3 1HE",
		"type":             "householder",
	}, asActor(actor))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create permit status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Permit
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal permit: %v", err)
	}
	return p
}

func TestPermitLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	p := createPermit(t, srv, "alice")
	if p.Status != "draft" || p.OwnerID != "alice" {
		t.Fatalf("unexpected created permit: %+v", p)
	}

	for _, status := range []string{"submitted", "validated", "approved"} {
		res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/permits/"+p.ID+"/status", map[string]any{
			"status": status,
		}, asActor("alice"))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("set status %s: %d %s", status, res.StatusCode, string(data))
		}
		if err := json.Unmarshal(data, &p); err != nil {
			t.Fatalf("unmarshal permit: %v", err)
		}
	}
	if p.Status != "approved" || p.ApplicationRef == "" || p.KeyDates.DecisionDate == nil {
		t.Fatalf("lifecycle did not complete: %+v", p)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/permits/"+p.ID, nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get permit: %d %s", res.StatusCode, string(data))
	}
}

func TestInvalidTransitionConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createPermit(t, srv, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/permits/"+p.ID+"/status", map[string]any{
		"status": "approved",
	}, asActor("alice"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", res.StatusCode, string(data))
	}
	if code := decodeErrorCode(t, data); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %s", code)
	}

	// force query flag bypasses the transition table
	res, data = doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/permits/"+p.ID+"/status?force=true", map[string]any{
		"status": "approved",
	}, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("forced transition: %d %s", res.StatusCode, string(data))
	}
}

func TestUnknownPermitIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/permits/nope", nil, asActor("alice"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	if code := decodeErrorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found code, got %s", code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/permits", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d %s", res.StatusCode, string(data))
	}

	// health stays open
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", res.StatusCode)
	}
}

func TestDevLoginIssuesUsableToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{
		"user_id": "applicant-42",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(data))
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("no token in response: %v %s", err, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits", map[string]any{
		"property_address": "3 Mill Lane",
		"postcode":         "NW6 1NJ",
		"type":             "householder",
	}, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create with token: %d %s", res.StatusCode, string(data))
	}
	var p domain.Permit
	_ = json.Unmarshal(data, &p)
	if p.OwnerID != "applicant-42" {
		t.Fatalf("owner should come from token subject, got %s", p.OwnerID)
	}
}

func TestListScopedToCaller(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	createPermit(t, srv, "alice")
	createPermit(t, srv, "alice")
	createPermit(t, srv, "bob")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/permits", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list permits: %d %s", res.StatusCode, string(data))
	}
	var items []domain.Permit
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 permits for alice, got %d", len(items))
	}
}

func TestConditionEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createPermit(t, srv, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/permits/"+p.ID+"/conditions", map[string]any{
		"type":        "pre_commencement",
		"description": "Submit materials schedule",
	}, asActor("officer-1"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add condition: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal permit: %v", err)
	}
	if len(p.Conditions) != 1 || p.Conditions[0].Number != 1 {
		t.Fatalf("condition not recorded: %+v", p.Conditions)
	}

	condID := p.Conditions[0].ID
	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/permits/"+p.ID+"/conditions/"+condID, map[string]any{
		"status":        "discharged",
		"discharge_ref": "DIS/2026/014",
	}, asActor("officer-1"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("discharge condition: %d %s", res.StatusCode, string(data))
	}
	_ = json.Unmarshal(data, &p)
	if p.Conditions[0].Status != "discharged" || p.Conditions[0].DischargeRef != "DIS/2026/014" {
		t.Fatalf("discharge not applied: %+v", p.Conditions[0])
	}
}

func TestSummaryAndTimelineEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createPermit(t, srv, "alice")

	res, data := doJSON(t, client, http.MethodPatch, srv.URL+"/v1/permits/"+p.ID+"/status", map[string]any{
		"status": "submitted",
	}, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/summary", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary: %d %s", res.StatusCode, string(data))
	}
	var s domain.Summary
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if s.Total != 1 || s.StatusCounts["submitted"] != 1 {
		t.Fatalf("unexpected summary: %+v", s)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/permits/"+p.ID+"/timeline", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline: %d %s", res.StatusCode, string(data))
	}
	var items []domain.TimelineEvent
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal timeline: %v", err)
	}
	if len(items) == 0 {
		t.Fatalf("timeline should include the submission milestone")
	}
}

func TestEventLogEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createPermit(t, srv, "alice")

	doJSON(t, client, http.MethodPatch, srv.URL+"/v1/permits/"+p.ID+"/status", map[string]any{
		"status": "submitted",
	}, asActor("alice"))

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/events?limit=10", nil, asActor("alice"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events: %d %s", res.StatusCode, string(data))
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) < 2 {
		t.Fatalf("expected create and status events, got %d", len(page.Items))
	}
	if page.Items[0].Type != "permit.status.updated" {
		t.Fatalf("newest event first, got %s", page.Items[0].Type)
	}
}

func TestMissingBodyRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	p := createPermit(t, srv, "alice")

	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/permits/"+p.ID+"/status", nil, asActor("alice"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d %s", res.StatusCode, string(data))
	}
}
