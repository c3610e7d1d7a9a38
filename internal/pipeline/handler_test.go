package pipeline_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"workforce/status-service/internal/pipeline"
)

func newServer(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	pipeline.NewHandler(env.coord).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, user, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if user != "" {
		req.Header.Set("x-user-id", user)
		req.Header.Set("x-user-sites", "101, 202")
		req.Header.Set("x-user-roles", "employer")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var out map[string]any
	_ = json.Unmarshal(raw, &out) // arrays and empty bodies leave out nil
	return resp, out
}

func TestHandler_Transition(t *testing.T) {
	env := newEnv(t, "p1")
	srv := newServer(t, env)

	resp, body := do(t, srv, http.MethodPost, "/participants/p1/status", "e1", `{"status":"prospecting","data":{"site":101}}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d, body %v", resp.StatusCode, body)
	}
	if body["status"] != "prospecting" || body["emailAddress"] != "p1@example.com" || body["id"] == nil {
		t.Errorf("body = %v", body)
	}

	resp, body = do(t, srv, http.MethodPost, "/participants/p1/status", "e1", `{"status":"hired"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("illegal transition: code = %d, want 409", resp.StatusCode)
	}
	if body["status"] != string(pipeline.KindInvalidStatusTransition) || body["current"] != "prospecting" {
		t.Errorf("illegal transition body = %v", body)
	}
}

func TestHandler_TransitionErrors(t *testing.T) {
	env := newEnv(t, "p1")
	srv := newServer(t, env)

	tests := []struct {
		name string
		path string
		user string
		body string
		want int
	}{
		{"missing user", "/participants/p1/status", "", `{"status":"prospecting"}`, http.StatusUnauthorized},
		{"missing status", "/participants/p1/status", "e1", `{}`, http.StatusBadRequest},
		{"unknown status", "/participants/p1/status", "e1", `{"status":"promoted"}`, http.StatusBadRequest},
		{"internal-only status", "/participants/p1/status", "e1", `{"status":"reject_ack"}`, http.StatusBadRequest},
		{"bad payload", "/participants/p1/status", "e1", `{"status":"prospecting","data":{"site":"x"}}`, http.StatusBadRequest},
		{"unknown participant", "/participants/ghost/status", "e1", `{"status":"prospecting"}`, http.StatusNotFound},
		{"unknown route", "/participants/p1/notes", "e1", `{}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, http.MethodPost, tt.path, tt.user, tt.body)
			if resp.StatusCode != tt.want {
				t.Errorf("code = %d, want %d (body %v)", resp.StatusCode, tt.want, body)
			}
		})
	}

	resp, _ := do(t, srv, http.MethodGet, "/participants/p1/status", "e1", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET status: code = %d, want 405", resp.StatusCode)
	}
}

func TestHandler_BulkEngage(t *testing.T) {
	env := newEnv(t, "p1")
	srv := newServer(t, env)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/participants/bulk-engage",
		strings.NewReader(`{"participantIds":["p1","p2"],"site":101}`))
	req.Header.Set("x-user-id", "e1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("bulk engage: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d", resp.StatusCode)
	}
	var results []pipeline.EngageResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 2 || !results[0].Success || results[1].Status != pipeline.EngageStatusNotFound || results[1].Success {
		t.Errorf("results = %+v", results)
	}

	resp2, _ := do(t, srv, http.MethodPost, "/participants/bulk-engage", "e1", `{"participantIds":[]}`)
	if resp2.StatusCode != http.StatusBadRequest {
		t.Errorf("empty ids: code = %d, want 400", resp2.StatusCode)
	}
}

func TestHandler_HistoryAndHide(t *testing.T) {
	env := newEnv(t, "p1")
	srv := newServer(t, env)

	_, created := do(t, srv, http.MethodPost, "/participants/p1/status", "e1", `{"status":"prospecting","data":{"site":101}}`)
	id := int64(created["id"].(float64))

	resp, body := do(t, srv, http.MethodPost, "/statuses/"+jsonNumber(id)+"/hide", "e1", "")
	if resp.StatusCode != http.StatusOK || body["hidden"] != true {
		t.Fatalf("hide: code = %d body = %v", resp.StatusCode, body)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/participants/p1/statuses", nil)
	req.Header.Set("x-user-id", "e1")
	hresp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	defer hresp.Body.Close()
	var records []struct {
		ID      int64          `json:"id"`
		Status  string         `json:"status"`
		Current bool           `json:"current"`
		Data    map[string]any `json:"data"`
	}
	if err := json.NewDecoder(hresp.Body).Decode(&records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].ID != id || !records[0].Current {
		t.Fatalf("records = %+v", records)
	}
	if hidden, _ := records[0].Data["hiddenForUserIds"].([]any); len(hidden) != 1 || hidden[0] != "e1" {
		t.Errorf("data = %v, want hidden for e1", records[0].Data)
	}

	for path, want := range map[string]int{
		"/statuses/abc/hide":  http.StatusBadRequest,
		"/statuses/9999/hide": http.StatusNotFound,
		"/statuses/1/show":    http.StatusNotFound,
	} {
		if resp, _ := do(t, srv, http.MethodPost, path, "e1", ""); resp.StatusCode != want {
			t.Errorf("POST %s: code = %d, want %d", path, resp.StatusCode, want)
		}
	}
}

func jsonNumber(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func TestParseActingUser(t *testing.T) {
	user, err := pipeline.ParseActingUser(" u1 ", "101, 202,", "employer,ministry_of_health,unknown")
	if err != nil {
		t.Fatalf("ParseActingUser: %v", err)
	}
	if user.ID != "u1" || len(user.Sites) != 2 || !user.HasSite(202) || user.HasSite(0) {
		t.Errorf("user = %+v", user)
	}
	if !user.IsEmployer || !user.IsMinistry || user.IsHealthAuthority {
		t.Errorf("roles = %+v", user)
	}

	if _, err := pipeline.ParseActingUser("", "", ""); err == nil {
		t.Error("expected error for missing id")
	}
	if _, err := pipeline.ParseActingUser("u1", "north", ""); err == nil {
		t.Error("expected error for non-numeric site")
	}
}
