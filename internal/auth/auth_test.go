package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"watchwise/internal/apperr"
)

type memRepo struct{ viewers []Viewer }

func (m *memRepo) LoadAll() ([]Viewer, error) { return append([]Viewer{}, m.viewers...), nil }
func (m *memRepo) Upsert(v Viewer) error {
	for i, x := range m.viewers {
		if x.ID == v.ID {
			m.viewers[i] = v
			return nil
		}
	}
	m.viewers = append(m.viewers, v)
	return nil
}
func (m *memRepo) Remove(id int64) error {
	out := make([]Viewer, 0, len(m.viewers))
	for _, x := range m.viewers {
		if x.ID != id {
			out = append(out, x)
		}
	}
	m.viewers = out
	return nil
}

func TestServiceBasic(t *testing.T) {
	repo := &memRepo{viewers: []Viewer{{ID: 10, Username: "alice"}}}
	svc, err := NewWithRepo(repo, []int64{20})
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	if !svc.IsAllowed(10) {
		t.Fatalf("repo preload not effective")
	}
	if !svc.IsAllowed(20) {
		t.Fatalf("initial env list not merged")
	}
	if svc.IsAllowed(30) {
		t.Fatalf("unexpected allowed")
	}

	if err := svc.Upsert(Viewer{ID: 30, Username: "bob"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := svc.SetRegion(30, "Canada"); err != nil {
		t.Fatalf("set region: %v", err)
	}
	if v, _ := svc.Get(30); v.Region != "Canada" {
		t.Fatalf("region not stored: %+v", v)
	}
	if repo.viewers[1].Region != "Canada" {
		t.Fatalf("region not persisted: %+v", repo.viewers)
	}

	if err := svc.Remove(10); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if svc.IsAllowed(10) {
		t.Fatalf("remove not effective")
	}

	lst := svc.List()
	if len(lst) != 2 || lst[0].ID != 20 || lst[1].ID != 30 {
		t.Fatalf("unexpected list: %+v", lst)
	}
}

func TestFileRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "allowlist.json")
	repo, err := NewFileRepository(path)
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	got, err := repo.LoadAll()
	if err != nil || len(got) != 0 {
		t.Fatalf("empty file: %v %v", got, err)
	}
	if err := repo.Upsert(Viewer{ID: 1, Username: "a"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(Viewer{ID: 1, Username: "a", Region: "UK"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(Viewer{ID: 2}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Remove(2); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, err = repo.LoadAll()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].Region != "UK" {
		t.Fatalf("unexpected viewers: %+v", got)
	}
}

func TestScopedID(t *testing.T) {
	if got := ScopedID(42); got != "tg:42" {
		t.Fatalf("ScopedID = %s", got)
	}
}

func TestVerifier(t *testing.T) {
	v := NewVerifier("secret", "watchwise")
	tok, err := v.Issue("u1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sub, err := v.Verify(tok)
	if err != nil || sub != "u1" {
		t.Fatalf("verify: %q %v", sub, err)
	}

	other := NewVerifier("other", "watchwise")
	if _, err := other.Verify(tok); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("wrong secret accepted: %v", err)
	}
	expired, _ := v.Issue("u1", -time.Minute)
	if _, err := v.Verify(expired); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("expired token accepted: %v", err)
	}
	if _, err := NewVerifier("", "").Verify(tok); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("empty secret accepted: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret", "")
	tok, _ := v.Issue("u1", time.Hour)
	var seen string
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seen = UserID(r.Context()) })

	cases := []struct {
		name       string
		mw         func(http.Handler) http.Handler
		header     string
		wantStatus int
		wantUser   string
	}{
		{"optional anonymous", v.Optional, "", http.StatusOK, ""},
		{"optional bad token degrades", v.Optional, "Bearer nope", http.StatusOK, ""},
		{"optional valid", v.Optional, "Bearer " + tok, http.StatusOK, "u1"},
		{"required missing", v.Required, "", http.StatusUnauthorized, ""},
		{"required valid", v.Required, "bearer " + tok, http.StatusOK, "u1"},
	}
	for _, c := range cases {
		seen = ""
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if c.header != "" {
			req.Header.Set("Authorization", c.header)
		}
		rr := httptest.NewRecorder()
		c.mw(h).ServeHTTP(rr, req)
		if rr.Code != c.wantStatus || seen != c.wantUser {
			t.Fatalf("%s: status %d user %q", c.name, rr.Code, seen)
		}
	}
}
