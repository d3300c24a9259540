package siteapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"

	blob_inmemory "github.com/desain-gratis/sitehost/repository/blob/inmemory"
	"github.com/desain-gratis/sitehost/repository/limiter"
	site_inmemory "github.com/desain-gratis/sitehost/repository/site/inmemory"
	types "github.com/desain-gratis/sitehost/types/http"
	"github.com/desain-gratis/sitehost/usecase/site/hosting"
	"github.com/desain-gratis/sitehost/utility/session"
)

type fixture struct {
	router   *httprouter.Router
	sessions session.Utility
}

func newFixture(t *testing.T, limiterRepo limiter.Repository, deployLimit int) *fixture {
	t.Helper()

	sessions := session.New()
	if err := sessions.Store("test-key", "test-secret"); err != nil {
		t.Fatalf("Store() err = %v", err)
	}

	svc := New(
		hosting.New(site_inmemory.New(), blob_inmemory.New()),
		sessions,
		limiterRepo,
		deployLimit,
		time.Hour,
	)

	router := httprouter.New()
	router.GET("/api/sites", svc.List)
	router.POST("/api/sites", svc.Deploy)
	router.GET("/api/sites/:siteName", svc.Details)
	router.DELETE("/api/sites/:siteName", svc.Delete)
	router.GET("/sites/:siteName/:fileName", svc.ServeFile)

	return &fixture{router: router, sessions: sessions}
}

func (f *fixture) token(t *testing.T, owner string) string {
	t.Helper()
	token, err := f.sessions.IssueToken(owner, time.Now().Add(time.Hour), "test-key")
	if err != nil {
		t.Fatalf("IssueToken() err = %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, req *http.Request, owner string) *httptest.ResponseRecorder {
	t.Helper()
	if owner != "" {
		req.AddCookie(&http.Cookie{Name: "jwt", Value: f.token(t, owner)})
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func deployRequest(t *testing.T, siteName string, files map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("siteName", siteName); err != nil {
		t.Fatalf("WriteField() err = %v", err)
	}

	for name, content := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
		header.Set("Content-Type", contentTypeOf(name))
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("CreatePart() err = %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("Write() err = %v", err)
		}
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/sites", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func contentTypeOf(name string) string {
	if name == "style.css" {
		return "text/css"
	}
	return "text/html"
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp types.CommonResponseTyped[map[string]any]
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("cannot parse response %q: %v", body, err)
	}
	if resp.Error == nil || len(resp.Error.Errors) == 0 {
		return ""
	}
	return resp.Error.Errors[0].Code
}

func TestDeployServeRetireLifecycle(t *testing.T) {
	f := newFixture(t, limiter.NewUnlimited(), 0)

	// deploy
	w := f.do(t, deployRequest(t, "demo", map[string]string{
		"index.html": "<h1>demo</h1>",
		"style.css":  "body { color: red }",
	}), "U1")
	if w.Code != http.StatusCreated {
		t.Fatalf("deploy status = %v body = %v", w.Code, w.Body.String())
	}

	var deployed types.CommonResponseTyped[struct {
		SiteName string `json:"site_name"`
		URL      string `json:"url"`
	}]
	if err := json.Unmarshal(w.Body.Bytes(), &deployed); err != nil {
		t.Fatalf("cannot parse deploy response: %v", err)
	}
	if deployed.Success.URL != "/sites/demo/index.html" {
		t.Errorf("deploy url = %v", deployed.Success.URL)
	}

	// the site is publicly served, no cookie
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/sites/demo/style.css", nil), "")
	if w.Code != http.StatusOK {
		t.Fatalf("serve status = %v", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/css" {
		t.Errorf("serve content type = %v, want text/css", got)
	}
	if body, _ := io.ReadAll(w.Result().Body); string(body) != "body { color: red }" {
		t.Errorf("serve body = %q", body)
	}

	// owner sees it in the listing
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/sites", nil), "U1")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %v", w.Code)
	}
	var listed types.CommonResponseTyped[[]string]
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("cannot parse list response: %v", err)
	}
	if len(listed.Success) != 1 || listed.Success[0] != "demo" {
		t.Errorf("list = %v, want [demo]", listed.Success)
	}

	// a stranger cannot delete it (answer looks like not found)
	w = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/sites/demo", nil), "U2")
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign delete status = %v, want 404", w.Code)
	}

	// owner retires it
	w = f.do(t, httptest.NewRequest(http.MethodDelete, "/api/sites/demo", nil), "U1")
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %v body = %v", w.Code, w.Body.String())
	}

	// gone from the public path
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/sites/demo/index.html", nil), "")
	if w.Code != http.StatusNotFound {
		t.Errorf("serve after delete status = %v, want 404", w.Code)
	}
}

func TestDeployRequiresSession(t *testing.T) {
	f := newFixture(t, limiter.NewUnlimited(), 0)

	w := f.do(t, deployRequest(t, "demo", map[string]string{"index.html": "x"}), "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("deploy without session status = %v, want 401", w.Code)
	}
}

func TestDeployValidationOverHTTP(t *testing.T) {
	f := newFixture(t, limiter.NewUnlimited(), 0)

	w := f.do(t, deployRequest(t, "broken", map[string]string{"about.html": "x"}), "U1")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("deploy status = %v, want 400", w.Code)
	}
	if code := errorCode(t, w.Body.Bytes()); code != "MISSING_ENTRY_POINT" {
		t.Errorf("deploy code = %v, want MISSING_ENTRY_POINT", code)
	}

	// taken name
	w = f.do(t, deployRequest(t, "demo", map[string]string{"index.html": "x"}), "U1")
	if w.Code != http.StatusCreated {
		t.Fatalf("first deploy status = %v", w.Code)
	}
	w = f.do(t, deployRequest(t, "demo", map[string]string{"index.html": "y"}), "U2")
	if code := errorCode(t, w.Body.Bytes()); code != "NAME_CONFLICT" {
		t.Errorf("second deploy code = %v, want NAME_CONFLICT", code)
	}
}

func TestDetailsScopedToOwner(t *testing.T) {
	f := newFixture(t, limiter.NewUnlimited(), 0)

	w := f.do(t, deployRequest(t, "demo", map[string]string{"index.html": "x"}), "U1")
	if w.Code != http.StatusCreated {
		t.Fatalf("deploy status = %v", w.Code)
	}

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/sites/demo", nil), "U1")
	if w.Code != http.StatusOK {
		t.Errorf("details status = %v", w.Code)
	}

	w = f.do(t, httptest.NewRequest(http.MethodGet, "/api/sites/demo", nil), "U2")
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign details status = %v, want 404", w.Code)
	}
}

func TestForeignDeleteLooksLikeAbsentSite(t *testing.T) {
	f := newFixture(t, limiter.NewUnlimited(), 0)

	w := f.do(t, deployRequest(t, "demo", map[string]string{"index.html": "x"}), "U1")
	if w.Code != http.StatusCreated {
		t.Fatalf("deploy status = %v", w.Code)
	}

	foreign := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/sites/demo", nil), "U2")
	absent := f.do(t, httptest.NewRequest(http.MethodDelete, "/api/sites/ghost", nil), "U2")

	if foreign.Code != http.StatusNotFound || absent.Code != http.StatusNotFound {
		t.Fatalf("status foreign = %v absent = %v, want 404 for both", foreign.Code, absent.Code)
	}
	if foreign.Body.String() != absent.Body.String() {
		t.Errorf("responses differ, existence leaks:\nforeign = %v\nabsent  = %v", foreign.Body.String(), absent.Body.String())
	}

	// denied means untouched
	w = f.do(t, httptest.NewRequest(http.MethodGet, "/sites/demo/index.html", nil), "")
	if w.Code != http.StatusOK {
		t.Errorf("serve after denied delete status = %v, want 200", w.Code)
	}
}

// countingLimiter counts in memory, for the allowance check
type countingLimiter struct {
	counter map[string]int
}

func (c *countingLimiter) Get(ctx context.Context, owner, key string) (int, time.Duration, *types.CommonError) {
	return c.counter[owner+"|"+key], time.Hour, nil
}

func (c *countingLimiter) Increment(ctx context.Context, owner, key string, expiry time.Duration) *types.CommonError {
	c.counter[owner+"|"+key]++
	return nil
}

func TestDeployRateLimited(t *testing.T) {
	f := newFixture(t, &countingLimiter{counter: map[string]int{}}, 1)

	w := f.do(t, deployRequest(t, "one", map[string]string{"index.html": "x"}), "U1")
	if w.Code != http.StatusCreated {
		t.Fatalf("first deploy status = %v", w.Code)
	}

	w = f.do(t, deployRequest(t, "two", map[string]string{"index.html": "x"}), "U1")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second deploy status = %v, want 429", w.Code)
	}

	// another owner has their own allowance
	w = f.do(t, deployRequest(t, "three", map[string]string{"index.html": "x"}), "U2")
	if w.Code != http.StatusCreated {
		t.Errorf("other owner deploy status = %v, want 201", w.Code)
	}
}
