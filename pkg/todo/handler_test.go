package todo

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/fluxorio/todos/pkg/web"
	"github.com/valyala/fasthttp"
)

func newTestRouter(t *testing.T) (*web.Router, *SQLRepository) {
	t.Helper()
	repo := openTestRepo(t)
	r := web.NewRouter()
	NewHandler(NewService(repo), nil).Register(r)
	return r, repo
}

func do(r *web.Router, method, uri, body string) *fasthttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(uri)
	if body != "" {
		req.Header.SetContentType("application/json")
		req.SetBodyString(body)
	}
	rc := &fasthttp.RequestCtx{}
	rc.Init(&req, nil, nil)
	r.Handler()(rc)
	return rc
}

func decode(t *testing.T, rc *fasthttp.RequestCtx, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rc.Response.Body(), v); err != nil {
		t.Fatalf("decode %q: %v", rc.Response.Body(), err)
	}
}

func expectStatus(t *testing.T, rc *fasthttp.RequestCtx, want int) {
	t.Helper()
	if got := rc.Response.StatusCode(); got != want {
		t.Fatalf("status = %d, want %d (body %s)", got, want, rc.Response.Body())
	}
}

func expectErrors(t *testing.T, rc *fasthttp.RequestCtx, want ...string) {
	t.Helper()
	expectStatus(t, rc, fasthttp.StatusUnprocessableEntity)
	var body struct {
		Errors []string `json:"errors"`
	}
	decode(t, rc, &body)
	for _, w := range want {
		found := false
		for _, e := range body.Errors {
			if e == w {
				found = true
			}
		}
		if !found {
			t.Errorf("errors = %q, missing %q", body.Errors, w)
		}
	}
}

func expectError(t *testing.T, rc *fasthttp.RequestCtx, status int, msg string) {
	t.Helper()
	expectStatus(t, rc, status)
	var body map[string]string
	decode(t, rc, &body)
	if body["error"] != msg {
		t.Errorf("error = %q, want %q", body["error"], msg)
	}
}

func create(t *testing.T, r *web.Router, body string) Todo {
	t.Helper()
	rc := do(r, "POST", "/todos", body)
	expectStatus(t, rc, fasthttp.StatusCreated)
	var todo Todo
	decode(t, rc, &todo)
	return todo
}

func TestHandler_Create(t *testing.T) {
	r, _ := newTestRouter(t)

	rc := do(r, "POST", "/todos", `{"todo":{"title":"Plan trip","description":"Lisbon","completed":true}}`)
	expectStatus(t, rc, fasthttp.StatusCreated)
	if ct := string(rc.Response.Header.ContentType()); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q", ct)
	}

	var body map[string]interface{}
	decode(t, rc, &body)
	for _, key := range []string{"id", "title", "description", "completed", "created_at", "updated_at"} {
		if _, ok := body[key]; !ok {
			t.Errorf("response lacks %q: %v", key, body)
		}
	}
	if body["title"] != "Plan trip" || body["description"] != "Lisbon" || body["completed"] != true {
		t.Errorf("response = %v", body)
	}
}

func TestHandler_CreateDefaults(t *testing.T) {
	r, _ := newTestRouter(t)

	rc := do(r, "POST", "/todos", `{"todo":{"title":"Minimal","id":77}}`)
	expectStatus(t, rc, fasthttp.StatusCreated)
	var body map[string]interface{}
	decode(t, rc, &body)
	if body["description"] != nil || body["completed"] != false {
		t.Errorf("defaults = %v", body)
	}
	if body["id"] == float64(77) {
		t.Error("client supplied id should be ignored")
	}
}

func TestHandler_CreateValidation(t *testing.T) {
	r, repo := newTestRouter(t)
	create(t, r, `{"todo":{"title":"Existing"}}`)

	tests := []struct {
		name string
		body string
		want []string
	}{
		{"blank title", `{"todo":{"title":""}}`, []string{"Title can't be blank"}},
		{"duplicate", `{"todo":{"title":"Existing"}}`, []string{"Title has already been taken"}},
		{"digits", `{"todo":{"title":"2024"}}`, []string{"Title cannot be only numbers"}},
		{"long description", `{"todo":{"title":"Fine","description":"` + strings.Repeat("x", 501) + `"}}`,
			[]string{"Description is too long (maximum is 500 characters)"}},
		{"string completed", `{"todo":{"title":"Fine","completed":"yes"}}`, []string{"Completed is not included in the list"}},
		{"null completed", `{"todo":{"title":"Fine","completed":null}}`, []string{"Completed is not included in the list"}},
		{"missing title", `{"todo":{"completed":false}}`, []string{"Title can't be blank"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectErrors(t, do(r, "POST", "/todos", tt.body), tt.want...)
		})
	}

	if n, _ := repo.Count(context.Background()); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestHandler_CreateBadEnvelope(t *testing.T) {
	r, _ := newTestRouter(t)

	for _, body := range []string{``, `{}`, `{"todo":{}}`, `{"todo":null}`, `{"todo":"x"}`, `[]`, `{"other":{"title":"x"}}`} {
		expectError(t, do(r, "POST", "/todos", body), fasthttp.StatusBadRequest, MsgParamMissing)
	}

	expectError(t, do(r, "POST", "/todos", `{"todo":`), fasthttp.StatusBadRequest, "malformed JSON body")

	rc := do(r, "POST", "/todos", `{"todo":{"title":["x"]}}`)
	expectStatus(t, rc, fasthttp.StatusBadRequest)
	var body map[string]string
	decode(t, rc, &body)
	if !strings.HasPrefix(body["error"], "invalid todo title: ") {
		t.Errorf("error = %q", body["error"])
	}
}

func TestHandler_CreateScalarTitle(t *testing.T) {
	r, repo := newTestRouter(t)

	expectErrors(t, do(r, "POST", "/todos", `{"todo":{"title":123}}`), "Title cannot be only numbers")
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Fatalf("Count() = %d, want 0", n)
	}

	got := create(t, r, `{"todo":{"title":true,"description":12}}`)
	if got.Title != "true" || got.Description == nil || *got.Description != "12" {
		t.Errorf("created %+v", got)
	}
}

func TestHandler_Show(t *testing.T) {
	r, _ := newTestRouter(t)
	created := create(t, r, `{"todo":{"title":"Visible"}}`)

	rc := do(r, "GET", "/todos/"+itoa(created.ID), "")
	expectStatus(t, rc, fasthttp.StatusOK)
	var got Todo
	decode(t, rc, &got)
	if got.ID != created.ID || got.Title != "Visible" {
		t.Errorf("Show() = %+v", got)
	}

	for _, id := range []string{"999", "0", "-3", "abc"} {
		expectError(t, do(r, "GET", "/todos/"+id, ""), fasthttp.StatusNotFound, "Record not found")
	}
}

func TestHandler_List(t *testing.T) {
	r, _ := newTestRouter(t)

	rc := do(r, "GET", "/todos", "")
	expectStatus(t, rc, fasthttp.StatusOK)
	if strings.TrimSpace(string(rc.Response.Body())) != "[]" {
		t.Errorf("empty list body = %s", rc.Response.Body())
	}

	create(t, r, `{"todo":{"title":"Special one","completed":true}}`)
	create(t, r, `{"todo":{"title":"Plain"}}`)
	create(t, r, `{"todo":{"title":"Another special","completed":false}}`)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Special one", "Plain", "Another special"}},
		{"?title=Special", []string{"Special one", "Another special"}},
		{"?title=Special&completed=true", []string{"Special one"}},
		{"?completed=false", []string{"Plain", "Another special"}},
		{"?completed=maybe", []string{"Special one", "Plain", "Another special"}},
		{"?title=%20%20", []string{"Special one", "Plain", "Another special"}},
		{"?title=nothing", []string{}},
	}
	for _, tt := range tests {
		rc := do(r, "GET", "/todos"+tt.query, "")
		expectStatus(t, rc, fasthttp.StatusOK)
		var todos []Todo
		decode(t, rc, &todos)
		got := make([]string, 0, len(todos))
		for _, td := range todos {
			got = append(got, td.Title)
		}
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("GET /todos%s = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestHandler_Update(t *testing.T) {
	r, _ := newTestRouter(t)
	created := create(t, r, `{"todo":{"title":"Before","description":"keep"}}`)
	path := "/todos/" + itoa(created.ID)

	rc := do(r, "PATCH", path, `{"todo":{"completed":true}}`)
	expectStatus(t, rc, fasthttp.StatusOK)
	var got Todo
	decode(t, rc, &got)
	if got.Title != "Before" || got.Description == nil || *got.Description != "keep" || !got.Completed {
		t.Errorf("PATCH = %+v", got)
	}

	rc = do(r, "PUT", path, `{"todo":{"title":"After","description":null}}`)
	expectStatus(t, rc, fasthttp.StatusOK)
	decode(t, rc, &got)
	if got.Title != "After" || got.Description != nil {
		t.Errorf("PUT = %+v", got)
	}
}

func TestHandler_UpdateInvalidLeavesRecord(t *testing.T) {
	r, _ := newTestRouter(t)
	created := create(t, r, `{"todo":{"title":"Stable"}}`)
	path := "/todos/" + itoa(created.ID)

	expectErrors(t, do(r, "PATCH", path, `{"todo":{"title":"123","completed":true}}`), "Title cannot be only numbers")

	rc := do(r, "GET", path, "")
	var got Todo
	decode(t, rc, &got)
	if got.Title != "Stable" || got.Completed {
		t.Errorf("stored = %+v, want unchanged", got)
	}
}

func TestHandler_UpdateNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	expectError(t, do(r, "PATCH", "/todos/41", `{"todo":{"title":"Ghost"}}`), fasthttp.StatusNotFound, "Record not found")
	// absent record takes precedence over a bad body
	expectError(t, do(r, "PUT", "/todos/41", `{}`), fasthttp.StatusNotFound, "Record not found")
	expectError(t, do(r, "PUT", "/todos/nope", `{"todo":{"title":"Ghost"}}`), fasthttp.StatusNotFound, "Record not found")
}

func TestHandler_UpdateBadEnvelope(t *testing.T) {
	r, _ := newTestRouter(t)
	created := create(t, r, `{"todo":{"title":"Present"}}`)

	expectError(t, do(r, "PATCH", "/todos/"+itoa(created.ID), `{"todo":{}}`), fasthttp.StatusBadRequest, MsgParamMissing)
}

func TestHandler_UpdateBadEnvelopeIsNotCountedAsGet(t *testing.T) {
	repo := openTestRepo(t)
	metrics := &fakeMetrics{}
	r := web.NewRouter()
	NewHandler(NewService(repo, WithMetrics(metrics)), nil).Register(r)
	id := mustInsert(t, repo, "Counted", false).ID

	expectError(t, do(r, "PATCH", "/todos/"+itoa(id), `{"todo":{}}`), fasthttp.StatusBadRequest, MsgParamMissing)
	expectError(t, do(r, "PUT", "/todos/"+itoa(id+1), `{}`), fasthttp.StatusNotFound, "Record not found")

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.ops) != 0 {
		t.Errorf("recorded operations = %v, want none", metrics.ops)
	}
}

func TestHandler_Destroy(t *testing.T) {
	r, repo := newTestRouter(t)
	created := create(t, r, `{"todo":{"title":"Disposable"}}`)
	path := "/todos/" + itoa(created.ID)

	rc := do(r, "DELETE", path, "")
	expectStatus(t, rc, fasthttp.StatusNoContent)
	if len(rc.Response.Body()) != 0 {
		t.Errorf("body = %q, want empty", rc.Response.Body())
	}
	if n, _ := repo.Count(context.Background()); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}

	expectError(t, do(r, "DELETE", path, ""), fasthttp.StatusNotFound, "Record not found")
}

func TestHandler_StorageErrorReachesRouter(t *testing.T) {
	repo := openTestRepo(t)
	r := web.NewRouter()
	NewHandler(NewService(repo), nil).Register(r)
	repo.pool.Close()

	rc := do(r, "GET", "/todos", "")
	expectStatus(t, rc, fasthttp.StatusInternalServerError)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
