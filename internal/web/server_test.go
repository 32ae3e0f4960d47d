package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/roselinebot/roseline/internal/executor"
	"github.com/roselinebot/roseline/internal/store"
)

type fakeAdmin struct {
	data    map[uint64]store.VNData
	setErr  error
	lastSet [3]string
}

func newFakeAdmin() *fakeAdmin {
	return &fakeAdmin{data: map[uint64]store.VNData{
		17: {
			VN:    store.VN{ID: 17, Title: "Ever17"},
			Hooks: []store.Hook{{VNID: 17, Version: "en", Code: "/H0@0"}},
		},
	}}
}

func (a *fakeAdmin) Stats(ctx context.Context) (int64, int64, error) {
	var hooks int64
	for _, d := range a.data {
		hooks += int64(len(d.Hooks))
	}
	return int64(len(a.data)), hooks, nil
}

func (a *fakeAdmin) LocalData(ctx context.Context, id uint64) (*store.VNData, error) {
	if d, ok := a.data[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (a *fakeAdmin) LocalSearch(ctx context.Context, title string) ([]store.VN, error) {
	var out []store.VN
	for _, d := range a.data {
		if strings.Contains(strings.ToLower(d.VN.Title), strings.ToLower(title)) {
			out = append(out, d.VN)
		}
	}
	return out, nil
}

func (a *fakeAdmin) SetHook(ctx context.Context, refOrTitle, version, code string) (store.Hook, error) {
	a.lastSet = [3]string{refOrTitle, version, code}
	if a.setErr != nil {
		return store.Hook{}, a.setErr
	}
	return store.Hook{VNID: 17, Version: version, Code: code}, nil
}

func (a *fakeAdmin) DelHook(ctx context.Context, refOrTitle, version string) (int64, error) {
	return 1, nil
}

func (a *fakeAdmin) DelVN(ctx context.Context, refOrTitle string) (int64, error) {
	return 1, nil
}

func testServer(admin Admin, secret string) http.Handler {
	return NewServer("127.0.0.1:0", admin, secret).router()
}

func TestIndexShowsStats(t *testing.T) {
	h := testServer(newFakeAdmin(), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "1 VNs, 1 hooks") {
		t.Errorf("stats missing from body: %s", rec.Body.String())
	}
}

func TestVNDetail(t *testing.T) {
	h := testServer(newFakeAdmin(), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vn/17", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Ever17") || !strings.Contains(body, "/H0@0") {
		t.Errorf("detail missing content: %s", body)
	}
}

func TestVNDetailNotFound(t *testing.T) {
	h := testServer(newFakeAdmin(), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vn/404", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d", rec.Code)
	}
}

func TestVNDetailBadID(t *testing.T) {
	h := testServer(newFakeAdmin(), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/vn/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status %d", rec.Code)
	}
}

func TestSearch(t *testing.T) {
	h := testServer(newFakeAdmin(), "")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/search?q=ever", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `/vn/17`) {
		t.Errorf("search result missing: %s", rec.Body.String())
	}
}

func postForm(h http.Handler, path string, form url.Values, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAddHook(t *testing.T) {
	admin := newFakeAdmin()
	h := testServer(admin, "")

	rec := postForm(h, "/vn/17/hook", url.Values{"version": {"jp"}, "code": {"/HA@1"}}, "")
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	if admin.lastSet != [3]string{"v17", "jp", "/HA@1"} {
		t.Errorf("SetHook called with %v", admin.lastSet)
	}
}

// A non-numeric id must not leak into the workflows as a title search.
func TestMutationsRejectNonNumericID(t *testing.T) {
	admin := newFakeAdmin()
	h := testServer(admin, "")

	for _, path := range []string{"/vn/junk/hook", "/vn/junk/hook/delete", "/vn/junk/delete", "/vn/0/delete"} {
		rec := postForm(h, path, url.Values{"version": {"en"}, "code": {"/H"}}, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("POST %s: status %d, want 400", path, rec.Code)
		}
	}
	if admin.lastSet != [3]string{} {
		t.Errorf("SetHook reached with %v", admin.lastSet)
	}
}

func TestAddHookUnknownVN(t *testing.T) {
	admin := newFakeAdmin()
	admin.setErr = &executor.Error{Kind: executor.UnknownVN}
	h := testServer(admin, "")

	rec := postForm(h, "/vn/404/hook", url.Values{"version": {"en"}, "code": {"/H"}}, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status %d", rec.Code)
	}
}

func TestMutationsRequireToken(t *testing.T) {
	const secret = "test-secret"
	h := testServer(newFakeAdmin(), secret)
	form := url.Values{"version": {"en"}, "code": {"/H"}}

	rec := postForm(h, "/vn/17/hook", form, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	token, err := SignToken(secret, "admin", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec = postForm(h, "/vn/17/hook", form, token)
	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected success with token, got %d", rec.Code)
	}

	forged, err := SignToken("other-secret", "admin", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	rec = postForm(h, "/vn/17/hook", form, forged)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for forged token, got %d", rec.Code)
	}
}

func TestReadsNeedNoToken(t *testing.T) {
	h := testServer(newFakeAdmin(), "test-secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status %d", rec.Code)
	}
}

func TestValidateTokenExpired(t *testing.T) {
	token, err := SignToken("s", "admin", -time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := ValidateToken(token, "s"); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}
