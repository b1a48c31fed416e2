package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Its-donkey/campus-portal/internal/apiclient"
	"github.com/Its-donkey/campus-portal/internal/assistant"
	"github.com/Its-donkey/campus-portal/internal/readmodel"
	"github.com/Its-donkey/campus-portal/internal/tables"
)

// fakeBackend imitates the data and assistant endpoints of the API.
type fakeBackend struct {
	tableCalls atomic.Int32
	askCalls   atomic.Int32
	failTables bool
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/data/tables":
		b.tableCalls.Add(1)
		if b.failTables {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"detail":"No tables available for the request"}`)
			return
		}
		tables := map[string]any{
			"courses":           []any{map[string]any{"id": 1, "name": "编译原理", "credit": 3, "teacher_id": "T1", "capacity": 2, "course_type": "必修", "create_time": "2025-02-17"}},
			"teachers":          []any{map[string]any{"id": "T1", "name": "王老师"}},
			"course_selections": []any{map[string]any{"course_id": 1}},
			"schedules":         []any{map[string]any{"course_id": 1, "day": 0, "period": 1, "classroom_id": 3}},
			"classrooms":        []any{map[string]any{"id": 3, "name": "B201"}},
			"grades": []any{
				map[string]any{"id": 1, "student_id": "s1", "course_id": 1, "score": 92, "exam_type": "final"},
				map[string]any{"id": 2, "student_id": "s2", "course_id": 1, "score": 58},
			},
		}
		out := map[string]any{}
		for _, name := range strings.Split(r.URL.Query().Get("names"), ",") {
			if rows, ok := tables[name]; ok {
				out[name] = rows
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"tables": out})
	case "/api/ai_qa/qa/stream":
		b.askCalls.Add(1)
		var req assistant.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Question == "deny" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"Not authenticated"}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"content\":\"你\"}\n\ndata: {\"content\":\"好\"}\n\ndata: [DONE]\n\n")
	default:
		http.NotFound(w, r)
	}
}

func newPortal(t *testing.T, backend *fakeBackend) (*httptest.Server, *tables.Store) {
	t.Helper()
	upstream := httptest.NewServer(backend)
	t.Cleanup(upstream.Close)

	client := apiclient.New(apiclient.Options{BaseURL: upstream.URL + "/api"})
	store := tables.NewStore(tables.NewHTTPFetcher(client, "/data/tables", "/data/table"), nil)
	reader := assistant.NewReader(client, "/ai_qa/qa/stream", nil)

	portal := httptest.NewServer(New(Options{Store: store, Assistant: reader}).Handler())
	t.Cleanup(portal.Close)
	return portal, store
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestCoursesAreServedAndCached(t *testing.T) {
	backend := &fakeBackend{}
	portal, _ := newPortal(t, backend)

	var courses []readmodel.ListedCourse
	if status := getJSON(t, portal.URL+"/api/courses", &courses); status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if len(courses) != 1 {
		t.Fatalf("expected one course, got %+v", courses)
	}
	got := courses[0]
	if got.Teacher != "王老师" || got.Remain != 1 || got.Type != readmodel.Compulsory || got.Time != "周一 · 第3-4节 · B201(10:00-11:40)" {
		t.Fatalf("unexpected course %+v", got)
	}

	getJSON(t, portal.URL+"/api/courses", &courses)
	if n := backend.tableCalls.Load(); n != 1 {
		t.Fatalf("expected cached tables, backend saw %d calls", n)
	}
	getJSON(t, portal.URL+"/api/courses?refresh=1", &courses)
	if n := backend.tableCalls.Load(); n != 2 {
		t.Fatalf("expected forced reload, backend saw %d calls", n)
	}
}

func TestInvalidateTriggersRefetch(t *testing.T) {
	backend := &fakeBackend{}
	portal, store := newPortal(t, backend)

	var courses []readmodel.ListedCourse
	getJSON(t, portal.URL+"/api/courses", &courses)

	resp, err := http.Post(portal.URL+"/api/tables/invalidate", "application/json", strings.NewReader(`{"names":["courses"]}`))
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if store.Loaded("courses") || !store.Loaded("teachers") {
		t.Fatalf("only courses should be invalidated")
	}

	getJSON(t, portal.URL+"/api/courses", &courses)
	if n := backend.tableCalls.Load(); n != 2 {
		t.Fatalf("expected refetch after invalidate, backend saw %d calls", n)
	}
}

func TestGradesFilteredByStudent(t *testing.T) {
	portal, _ := newPortal(t, &fakeBackend{})

	var grades []readmodel.GradeRecord
	if status := getJSON(t, portal.URL+"/api/grades?student=s1", &grades); status != http.StatusOK {
		t.Fatalf("unexpected status %d", status)
	}
	if len(grades) != 1 {
		t.Fatalf("expected one grade, got %+v", grades)
	}
	if g := grades[0]; g.GPA != 4.2 || g.Level != "优秀" || g.AssessmentType != "考试" || g.Semester != "2025-02" {
		t.Fatalf("unexpected grade %+v", g)
	}
}

func TestUpstreamTableErrorKeepsStatus(t *testing.T) {
	portal, _ := newPortal(t, &fakeBackend{failTables: true})

	var body errorResponse
	if status := getJSON(t, portal.URL+"/api/courses", &body); status != http.StatusNotFound {
		t.Fatalf("unexpected status %d", status)
	}
	if body.Detail != "No tables available for the request" {
		t.Fatalf("unexpected detail %q", body.Detail)
	}
}

func TestAssistantRelay(t *testing.T) {
	portal, _ := newPortal(t, &fakeBackend{})

	resp, err := http.Post(portal.URL+"/api/assistant", "application/json", strings.NewReader(`{"user_id":"7","question":"hi"}`))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	want := "data: {\"content\":\"你\"}\n\ndata: {\"content\":\"好\"}\n\ndata: [DONE]\n\n"
	if string(data) != want {
		t.Fatalf("unexpected stream %q", data)
	}
}

func TestAssistantRelayUpstreamError(t *testing.T) {
	portal, _ := newPortal(t, &fakeBackend{})

	var body errorResponse
	resp, err := http.Post(portal.URL+"/api/assistant", "application/json", strings.NewReader(`{"user_id":"7","question":"deny"}`))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body.Detail != "Not authenticated" {
		t.Fatalf("unexpected detail %q", body.Detail)
	}

	resp, err = http.Post(portal.URL+"/api/assistant", "application/json", strings.NewReader(`{"user_id":"7","question":"  "}`))
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank question: unexpected status %d", resp.StatusCode)
	}
}

func TestAssistantRelayRequiresUserID(t *testing.T) {
	backend := &fakeBackend{}
	portal, _ := newPortal(t, backend)

	for _, body := range []string{`{"question":"hi"}`, `{"user_id":"  ","question":"hi"}`} {
		resp, err := http.Post(portal.URL+"/api/assistant", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("relay: %v", err)
		}
		var got errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&got)
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: unexpected status %d", body, resp.StatusCode)
		}
		if got.Detail != "user_id is required" {
			t.Fatalf("%s: unexpected detail %q", body, got.Detail)
		}
		if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "event-stream") {
			t.Fatalf("%s: relay should not start, content type %q", body, ct)
		}
	}
	if n := backend.askCalls.Load(); n != 0 {
		t.Fatalf("upstream called %d times", n)
	}
}

func TestHealthz(t *testing.T) {
	portal, _ := newPortal(t, &fakeBackend{})
	resp, err := http.Get(portal.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Fatalf("unexpected healthz %d %q", resp.StatusCode, body)
	}
}
