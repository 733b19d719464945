package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/j-keen/flexicrm/internal/authpw"
	"github.com/j-keen/flexicrm/internal/schema"
	"github.com/j-keen/flexicrm/internal/store"
)

func staffProfile() store.UserProfile {
	return store.UserProfile{
		ID:             "usr-staff",
		OrganizationID: "org-1",
		DisplayName:    "Sam",
		Role:           "staff",
		IsActive:       true,
	}
}

func storeKnowing(profile store.UserProfile) *fakeStore {
	return &fakeStore{
		getProfileByIDFn: func(_ context.Context, userID string) (store.UserProfile, error) {
			p := profile
			p.ID = userID
			return p, nil
		},
		listFieldsFn: func(context.Context, string) ([]schema.FieldDefinition, error) {
			return authpw.SeedFields(), nil
		},
	}
}

func TestStaffCanReadFields(t *testing.T) {
	svc := newTestService(storeKnowing(staffProfile()))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("Authorization", bearerFor(t, svc, staffProfile()))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestStaffCannotCreateField(t *testing.T) {
	svc := newTestService(storeKnowing(staffProfile()))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/fields", bytes.NewBufferString(`{"name":"Budget","type":"currency"}`))
	req.Header.Set("Authorization", bearerFor(t, svc, staffProfile()))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payload map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &payload)
	if payload["code"] != "FORBIDDEN" {
		t.Fatalf("expected code FORBIDDEN, got %v", payload["code"])
	}
}

func TestStaffCannotTogglePermissions(t *testing.T) {
	svc := newTestService(storeKnowing(staffProfile()))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/members/usr-2/permissions/data.customers.export/toggle", nil)
	req.Header.Set("Authorization", bearerFor(t, svc, staffProfile()))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCEOCanCreateField(t *testing.T) {
	ceo := store.UserProfile{ID: "usr-ceo", OrganizationID: "org-1", DisplayName: "Alice", Role: "ceo", IsActive: true}
	svc := newTestService(storeKnowing(ceo))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodPost, "/api/fields", bytes.NewBufferString(`{"name":"Budget","type":"currency"}`))
	req.Header.Set("Authorization", bearerFor(t, svc, ceo))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestDeniedOverrideRemovesDefaultPermission(t *testing.T) {
	fs := storeKnowing(staffProfile())
	fs.listOverridesFn = func(context.Context, string) ([]store.PermissionOverride, error) {
		return []store.PermissionOverride{
			{UserID: "usr-staff", PermissionID: "schema.fields.read", Granted: false},
		}, nil
	}
	svc := newTestService(fs)
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("Authorization", bearerFor(t, svc, staffProfile()))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with denied override, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestInactiveProfileLosesAccess(t *testing.T) {
	inactive := staffProfile()
	inactive.IsActive = false
	svc := newTestService(storeKnowing(inactive))
	server := NewHTTPServer(svc, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/fields", nil)
	req.Header.Set("Authorization", bearerFor(t, svc, inactive))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated member, got %d body=%s", rr.Code, rr.Body.String())
	}
}
