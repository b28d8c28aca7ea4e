package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bher20/meterledger/internal/storage"
)

func TestDefaultPolicies(t *testing.T) {
	svc, err := NewService(storage.NewMemory())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	cases := []struct {
		role, obj, act string
		want           bool
	}{
		{RoleOwner, ObjReadings, ActWrite, true},
		{RoleOwner, ObjSettings, ActWrite, true},
		{RoleOwner, ObjStats, ActRead, true},
		{RoleViewer, ObjReadings, ActRead, true},
		{RoleViewer, ObjReadings, ActWrite, false},
		{RoleViewer, ObjSettings, ActWrite, false},
		{RoleViewer, ObjOwner, ActDelete, false},
		{RoleAdmin, ObjSettings, ActWrite, true},
		{"stranger", ObjStats, ActRead, false},
	}
	for _, c := range cases {
		got, err := svc.Enforce(c.role, c.obj, c.act)
		if err != nil {
			t.Fatalf("Enforce(%s, %s, %s) failed: %v", c.role, c.obj, c.act, err)
		}
		if got != c.want {
			t.Errorf("Enforce(%s, %s, %s) = %v, want %v", c.role, c.obj, c.act, got, c.want)
		}
	}
}

func TestPoliciesPersistThroughStorage(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()

	svc, err := NewService(st)
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	rules, _ := st.LoadPolicyRules(ctx)
	if len(rules) != len(DefaultPolicies) {
		t.Fatalf("expected %d seeded rules, got %d", len(DefaultPolicies), len(rules))
	}

	if _, err := svc.AddPolicy(RoleViewer, ObjSettings, ActWrite); err != nil {
		t.Fatalf("AddPolicy failed: %v", err)
	}
	if _, err := svc.RemovePolicy(RoleOwner, ObjOwner, ActDelete); err != nil {
		t.Fatalf("RemovePolicy failed: %v", err)
	}

	// A second service over the same storage sees the changes and does not reseed.
	again, err := NewService(st)
	if err != nil {
		t.Fatalf("second NewService failed: %v", err)
	}
	if ok, _ := again.Enforce(RoleViewer, ObjSettings, ActWrite); !ok {
		t.Errorf("added policy was not persisted")
	}
	if ok, _ := again.Enforce(RoleOwner, ObjOwner, ActDelete); ok {
		t.Errorf("removed policy came back")
	}
	rules, _ = st.LoadPolicyRules(ctx)
	if len(rules) != len(DefaultPolicies) {
		t.Fatalf("expected %d rules after add+remove, got %d", len(DefaultPolicies), len(rules))
	}
}

func TestAdapterRemoveFilteredPolicy(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	a := NewAdapter(st)

	for _, rule := range DefaultPolicies {
		if err := a.AddPolicy("p", "p", rule); err != nil {
			t.Fatalf("AddPolicy failed: %v", err)
		}
	}
	if err := a.RemoveFilteredPolicy("p", "p", 0, RoleViewer); err != nil {
		t.Fatalf("RemoveFilteredPolicy failed: %v", err)
	}
	rules, _ := st.LoadPolicyRules(ctx)
	for _, r := range rules {
		if r.V0 == RoleViewer {
			t.Fatalf("viewer rule survived filter: %+v", r)
		}
	}

	if err := a.RemoveFilteredPolicy("p", "p", 1, ObjSettings, ""); err != nil {
		t.Fatalf("RemoveFilteredPolicy failed: %v", err)
	}
	rules, _ = st.LoadPolicyRules(ctx)
	for _, r := range rules {
		if r.V1 == ObjSettings {
			t.Fatalf("settings rule survived filter: %+v", r)
		}
	}
	if len(rules) == 0 {
		t.Fatalf("filter removed every rule")
	}
}

func TestIdentityFromHeaders(t *testing.T) {
	h := http.Header{}
	if _, err := IdentityFromHeaders(h); err != ErrMissingOwner {
		t.Fatalf("expected ErrMissingOwner, got %v", err)
	}

	h.Set(HeaderOwnerID, "alice")
	id, err := IdentityFromHeaders(h)
	if err != nil || id.OwnerID != "alice" || id.Role != RoleOwner {
		t.Fatalf("unexpected identity: %+v, %v", id, err)
	}

	h.Set(HeaderOwnerRole, " Viewer ")
	id, _ = IdentityFromHeaders(h)
	if id.Role != RoleViewer {
		t.Fatalf("role: got %q", id.Role)
	}

	h.Set(HeaderOwnerID, "a/b")
	if _, err := IdentityFromHeaders(h); err != ErrInvalidOwner {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}
}

func TestMiddlewareAndRequirePermission(t *testing.T) {
	svc, err := NewService(storage.NewMemory())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	var gotCode string
	onErr := func(w http.ResponseWriter, r *http.Request, status int, code, message string) {
		gotCode = code
		w.WriteHeader(status)
	}
	var seen Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	h := svc.Middleware(onErr, svc.RequirePermission(ObjReadings, ActWrite, onErr, inner))

	cases := []struct {
		owner, role string
		status      int
		code        string
	}{
		{"", "", http.StatusUnauthorized, "unauthenticated"},
		{"alice", "", http.StatusNoContent, ""},
		{"alice", RoleViewer, http.StatusForbidden, "forbidden"},
		{"root", RoleAdmin, http.StatusNoContent, ""},
	}
	for _, c := range cases {
		gotCode = ""
		req := httptest.NewRequest(http.MethodPost, "/api/v1/readings", nil)
		if c.owner != "" {
			req.Header.Set(HeaderOwnerID, c.owner)
		}
		if c.role != "" {
			req.Header.Set(HeaderOwnerRole, c.role)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.status || gotCode != c.code {
			t.Errorf("owner=%q role=%q: got %d/%q, want %d/%q", c.owner, c.role, rec.Code, gotCode, c.status, c.code)
		}
	}
	if seen.OwnerID != "root" || seen.Role != RoleAdmin {
		t.Errorf("handler saw identity %+v", seen)
	}
}
