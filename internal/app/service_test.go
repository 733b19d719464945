package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/j-keen/flexicrm/internal/authpw"
	"github.com/j-keen/flexicrm/internal/config"
	"github.com/j-keen/flexicrm/internal/export"
	"github.com/j-keen/flexicrm/internal/permission"
	"github.com/j-keen/flexicrm/internal/records"
	"github.com/j-keen/flexicrm/internal/rules"
	"github.com/j-keen/flexicrm/internal/schema"
	"github.com/j-keen/flexicrm/internal/search"
	"github.com/j-keen/flexicrm/internal/session"
	"github.com/j-keen/flexicrm/internal/store"
)

type fakeStore struct {
	createOrganizationFn    func(context.Context, store.Organization, store.UserProfile, []schema.FieldDefinition) error
	getProfileByEmailFn     func(context.Context, string) (store.UserProfile, error)
	getProfileByIDFn        func(context.Context, string) (store.UserProfile, error)
	listMembersFn           func(context.Context, string) ([]store.UserProfile, error)
	insertProfileFn         func(context.Context, store.UserProfile) error
	updateMemberFn          func(context.Context, string, string, string, string, *string) (bool, error)
	setMemberActiveFn       func(context.Context, string, string, bool) (bool, error)
	listTeamsFn             func(context.Context, string) ([]store.Team, error)
	insertTeamFn            func(context.Context, store.Team) error
	deleteTeamFn            func(context.Context, string, string) (bool, error)
	listOverridesFn         func(context.Context, string) ([]store.PermissionOverride, error)
	upsertOverrideFn        func(context.Context, string, string, bool) error
	deleteOverrideFn        func(context.Context, string, string) error
	listFieldsFn            func(context.Context, string) ([]schema.FieldDefinition, error)
	insertFieldFn           func(context.Context, string, schema.FieldDefinition) error
	updateFieldFn           func(context.Context, string, schema.FieldDefinition) (bool, error)
	updatePlacementsFn      func(context.Context, string, []schema.FieldDefinition) error
	deleteFieldFn           func(context.Context, string, string) (bool, error)
	listCustomersFn         func(context.Context, string) ([]store.Customer, error)
	getCustomerFn           func(context.Context, string, string) (store.Customer, error)
	insertCustomerFn        func(context.Context, store.Customer) error
	updateCustomerDataFn    func(context.Context, string, string, map[string]any) (bool, error)
	softDeleteCustomerFn    func(context.Context, string, string) (bool, error)
	listRulesFn             func(context.Context, string) ([]store.AutomationRule, error)
	replaceRulesFn          func(context.Context, string, []store.AutomationRule) error
	listLandingPagesFn      func(context.Context, string) ([]store.LandingPage, error)
	getLandingPageFn        func(context.Context, string, string) (store.LandingPage, error)
	getLandingPageBySlugFn  func(context.Context, string) (store.LandingPage, error)
	slugTakenFn             func(context.Context, string) (bool, error)
	insertLandingPageFn     func(context.Context, store.LandingPage) error
	updateLandingPageFn     func(context.Context, string, store.LandingPage) (bool, error)
	deleteLandingPageFn     func(context.Context, string, string) (bool, error)
}

func (f *fakeStore) CreateOrganization(ctx context.Context, org store.Organization, owner store.UserProfile, seed []schema.FieldDefinition) error {
	if f.createOrganizationFn != nil {
		return f.createOrganizationFn(ctx, org, owner, seed)
	}
	return nil
}
func (f *fakeStore) GetProfileByEmail(ctx context.Context, email string) (store.UserProfile, error) {
	if f.getProfileByEmailFn != nil {
		return f.getProfileByEmailFn(ctx, email)
	}
	return store.UserProfile{}, sql.ErrNoRows
}
func (f *fakeStore) GetProfileByID(ctx context.Context, userID string) (store.UserProfile, error) {
	if f.getProfileByIDFn != nil {
		return f.getProfileByIDFn(ctx, userID)
	}
	return store.UserProfile{}, sql.ErrNoRows
}
func (f *fakeStore) ListMembers(ctx context.Context, orgID string) ([]store.UserProfile, error) {
	if f.listMembersFn != nil {
		return f.listMembersFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) InsertProfile(ctx context.Context, profile store.UserProfile) error {
	if f.insertProfileFn != nil {
		return f.insertProfileFn(ctx, profile)
	}
	return nil
}
func (f *fakeStore) UpdateMember(ctx context.Context, orgID, userID, displayName, role string, teamID *string) (bool, error) {
	if f.updateMemberFn != nil {
		return f.updateMemberFn(ctx, orgID, userID, displayName, role, teamID)
	}
	return true, nil
}
func (f *fakeStore) SetMemberActive(ctx context.Context, orgID, userID string, active bool) (bool, error) {
	if f.setMemberActiveFn != nil {
		return f.setMemberActiveFn(ctx, orgID, userID, active)
	}
	return true, nil
}
func (f *fakeStore) ListTeams(ctx context.Context, orgID string) ([]store.Team, error) {
	if f.listTeamsFn != nil {
		return f.listTeamsFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) InsertTeam(ctx context.Context, team store.Team) error {
	if f.insertTeamFn != nil {
		return f.insertTeamFn(ctx, team)
	}
	return nil
}
func (f *fakeStore) DeleteTeam(ctx context.Context, orgID, teamID string) (bool, error) {
	if f.deleteTeamFn != nil {
		return f.deleteTeamFn(ctx, orgID, teamID)
	}
	return false, nil
}
func (f *fakeStore) ListOverrides(ctx context.Context, userID string) ([]store.PermissionOverride, error) {
	if f.listOverridesFn != nil {
		return f.listOverridesFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeStore) UpsertOverride(ctx context.Context, userID, permissionID string, granted bool) error {
	if f.upsertOverrideFn != nil {
		return f.upsertOverrideFn(ctx, userID, permissionID, granted)
	}
	return nil
}
func (f *fakeStore) DeleteOverride(ctx context.Context, userID, permissionID string) error {
	if f.deleteOverrideFn != nil {
		return f.deleteOverrideFn(ctx, userID, permissionID)
	}
	return nil
}
func (f *fakeStore) ListFields(ctx context.Context, orgID string) ([]schema.FieldDefinition, error) {
	if f.listFieldsFn != nil {
		return f.listFieldsFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) InsertField(ctx context.Context, orgID string, field schema.FieldDefinition) error {
	if f.insertFieldFn != nil {
		return f.insertFieldFn(ctx, orgID, field)
	}
	return nil
}
func (f *fakeStore) UpdateField(ctx context.Context, orgID string, field schema.FieldDefinition) (bool, error) {
	if f.updateFieldFn != nil {
		return f.updateFieldFn(ctx, orgID, field)
	}
	return true, nil
}
func (f *fakeStore) UpdateFieldPlacements(ctx context.Context, orgID string, fields []schema.FieldDefinition) error {
	if f.updatePlacementsFn != nil {
		return f.updatePlacementsFn(ctx, orgID, fields)
	}
	return nil
}
func (f *fakeStore) DeleteField(ctx context.Context, orgID, fieldID string) (bool, error) {
	if f.deleteFieldFn != nil {
		return f.deleteFieldFn(ctx, orgID, fieldID)
	}
	return true, nil
}
func (f *fakeStore) ListCustomers(ctx context.Context, orgID string) ([]store.Customer, error) {
	if f.listCustomersFn != nil {
		return f.listCustomersFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) GetCustomer(ctx context.Context, orgID, customerID string) (store.Customer, error) {
	if f.getCustomerFn != nil {
		return f.getCustomerFn(ctx, orgID, customerID)
	}
	return store.Customer{}, sql.ErrNoRows
}
func (f *fakeStore) InsertCustomer(ctx context.Context, customer store.Customer) error {
	if f.insertCustomerFn != nil {
		return f.insertCustomerFn(ctx, customer)
	}
	return nil
}
func (f *fakeStore) UpdateCustomerData(ctx context.Context, orgID, customerID string, data map[string]any) (bool, error) {
	if f.updateCustomerDataFn != nil {
		return f.updateCustomerDataFn(ctx, orgID, customerID, data)
	}
	return false, nil
}
func (f *fakeStore) SoftDeleteCustomer(ctx context.Context, orgID, customerID string) (bool, error) {
	if f.softDeleteCustomerFn != nil {
		return f.softDeleteCustomerFn(ctx, orgID, customerID)
	}
	return false, nil
}
func (f *fakeStore) ListRules(ctx context.Context, orgID string) ([]store.AutomationRule, error) {
	if f.listRulesFn != nil {
		return f.listRulesFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) ReplaceRules(ctx context.Context, orgID string, items []store.AutomationRule) error {
	if f.replaceRulesFn != nil {
		return f.replaceRulesFn(ctx, orgID, items)
	}
	return nil
}
func (f *fakeStore) ListLandingPages(ctx context.Context, orgID string) ([]store.LandingPage, error) {
	if f.listLandingPagesFn != nil {
		return f.listLandingPagesFn(ctx, orgID)
	}
	return nil, nil
}
func (f *fakeStore) GetLandingPage(ctx context.Context, orgID, pageID string) (store.LandingPage, error) {
	if f.getLandingPageFn != nil {
		return f.getLandingPageFn(ctx, orgID, pageID)
	}
	return store.LandingPage{}, sql.ErrNoRows
}
func (f *fakeStore) GetLandingPageBySlug(ctx context.Context, slug string) (store.LandingPage, error) {
	if f.getLandingPageBySlugFn != nil {
		return f.getLandingPageBySlugFn(ctx, slug)
	}
	return store.LandingPage{}, sql.ErrNoRows
}
func (f *fakeStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	if f.slugTakenFn != nil {
		return f.slugTakenFn(ctx, slug)
	}
	return false, nil
}
func (f *fakeStore) InsertLandingPage(ctx context.Context, page store.LandingPage) error {
	if f.insertLandingPageFn != nil {
		return f.insertLandingPageFn(ctx, page)
	}
	return nil
}
func (f *fakeStore) UpdateLandingPage(ctx context.Context, orgID string, page store.LandingPage) (bool, error) {
	if f.updateLandingPageFn != nil {
		return f.updateLandingPageFn(ctx, orgID, page)
	}
	return true, nil
}
func (f *fakeStore) DeleteLandingPage(ctx context.Context, orgID, pageID string) (bool, error) {
	if f.deleteLandingPageFn != nil {
		return f.deleteLandingPageFn(ctx, orgID, pageID)
	}
	return false, nil
}

type fakeSessions struct {
	saved map[string]session.TokenData
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{saved: map[string]session.TokenData{}}
}

func (f *fakeSessions) Save(_ context.Context, tokenHash string, data session.TokenData, _ time.Time) error {
	f.saved[tokenHash] = data
	return nil
}

func (f *fakeSessions) Lookup(_ context.Context, tokenHash string) (session.TokenData, error) {
	data, ok := f.saved[tokenHash]
	if !ok {
		return session.TokenData{}, session.ErrNotFound
	}
	return data, nil
}

func (f *fakeSessions) Revoke(_ context.Context, tokenHash string) error {
	delete(f.saved, tokenHash)
	return nil
}

type fakeSearch struct {
	indexed []search.CustomerDoc
	removed []string
}

func (f *fakeSearch) Search(q search.Query) (search.Response, error) {
	return search.Response{Results: []search.Result{}, Query: q.Text}, nil
}
func (f *fakeSearch) IndexCustomer(doc search.CustomerDoc) { f.indexed = append(f.indexed, doc) }
func (f *fakeSearch) RemoveCustomer(id string)             { f.removed = append(f.removed, id) }

func newTestService(fs *fakeStore) *Service {
	cfg := config.Config{
		TokenSecret:   "test-secret",
		AccessTTL:     time.Hour,
		RefreshTTL:    24 * time.Hour,
		PublicBaseURL: "https://crm.example.com",
	}
	return New(cfg, Deps{
		Store:    fs,
		Sessions: newFakeSessions(),
		Auth:     authpw.NewService(fs),
	})
}

func ceoSession() Session {
	return Session{
		UserID:      "usr-ceo",
		UserName:    "Alice",
		OrgID:       "org-1",
		Role:        "ceo",
		Permissions: permission.Effective(permission.RoleCEO, nil),
	}
}

func TestCreateFieldAssignsOrderAndDefaults(t *testing.T) {
	var inserted schema.FieldDefinition
	fs := &fakeStore{
		listFieldsFn: func(context.Context, string) ([]schema.FieldDefinition, error) {
			return authpw.SeedFields(), nil
		},
		insertFieldFn: func(_ context.Context, _ string, field schema.FieldDefinition) error {
			inserted = field
			return nil
		},
	}
	svc := newTestService(fs)

	field, err := svc.CreateField(context.Background(), ceoSession(), "  Budget ", schema.TypeCurrency)
	if err != nil {
		t.Fatalf("create field: %v", err)
	}
	if field.Name != "Budget" {
		t.Errorf("expected trimmed name, got %q", field.Name)
	}
	if field.Order != 3 {
		t.Errorf("expected order 3 after three seed fields, got %d", field.Order)
	}
	if !field.Visible {
		t.Error("new fields must start visible")
	}
	if field.Width != schema.DefaultColumnWidth {
		t.Errorf("expected default width, got %d", field.Width)
	}
	if inserted.ID == "" || !strings.HasPrefix(inserted.ID, "fld_") {
		t.Errorf("expected generated fld id, got %q", inserted.ID)
	}
}

func TestDeleteFieldRejectsSystem(t *testing.T) {
	fs := &fakeStore{
		listFieldsFn: func(context.Context, string) ([]schema.FieldDefinition, error) {
			return authpw.SeedFields(), nil
		},
		deleteFieldFn: func(context.Context, string, string) (bool, error) {
			t.Fatal("system field must never reach the store delete")
			return false, nil
		},
	}
	svc := newTestService(fs)

	err := svc.DeleteField(context.Background(), ceoSession(), "mobile")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestReorderFieldBoundaryIsNoop(t *testing.T) {
	persisted := false
	fs := &fakeStore{
		listFieldsFn: func(context.Context, string) ([]schema.FieldDefinition, error) {
			return authpw.SeedFields(), nil
		},
		updatePlacementsFn: func(context.Context, string, []schema.FieldDefinition) error {
			persisted = true
			return nil
		},
	}
	svc := newTestService(fs)

	fields, err := svc.ReorderField(context.Background(), ceoSession(), "name", "up")
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if persisted {
		t.Error("boundary reorder must not persist")
	}
	if fields[0].ID != "name" {
		t.Errorf("expected name to stay first, got %q", fields[0].ID)
	}
}

func TestSaveRulesRejectsUnknownField(t *testing.T) {
	fs := &fakeStore{
		listFieldsFn: func(context.Context, string) ([]schema.FieldDefinition, error) {
			return authpw.SeedFields(), nil
		},
		replaceRulesFn: func(context.Context, string, []store.AutomationRule) error {
			t.Fatal("invalid rule set must never reach the store")
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SaveRules(context.Background(), ceoSession(), []rules.Rule{
		{TriggerFieldID: "ghost", TriggerValue: "x", TargetFieldID: "status", TargetValue: "status_won"},
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestCreateLandingPageRetriesCollidingSlugs(t *testing.T) {
	attempts := 0
	var inserted store.LandingPage
	fs := &fakeStore{
		slugTakenFn: func(context.Context, string) (bool, error) {
			attempts++
			return attempts <= 2, nil
		},
		insertLandingPageFn: func(_ context.Context, page store.LandingPage) error {
			inserted = page
			return nil
		},
	}
	svc := newTestService(fs)

	page, err := svc.CreateLandingPage(context.Background(), ceoSession(), "Spring campaign")
	if err != nil {
		t.Fatalf("create page: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 slug checks, got %d", attempts)
	}
	if !inserted.IsActive {
		t.Error("new pages must start active")
	}
	if page.Content.Title == "" {
		t.Error("returned page must carry merged default content")
	}
}

func TestCreateLandingPageGivesUpAfterRepeatedCollisions(t *testing.T) {
	fs := &fakeStore{
		slugTakenFn: func(context.Context, string) (bool, error) { return true, nil },
		insertLandingPageFn: func(context.Context, store.LandingPage) error {
			t.Fatal("insert must not run when no slug was allocated")
			return nil
		},
	}
	svc := newTestService(fs)

	if _, err := svc.CreateLandingPage(context.Background(), ceoSession(), "Doomed"); err == nil {
		t.Fatal("expected error after exhausting slug attempts")
	}
}

func TestTogglePermissionCreatesThenRemovesOverride(t *testing.T) {
	var overrides []store.PermissionOverride
	fs := &fakeStore{
		getProfileByIDFn: func(_ context.Context, userID string) (store.UserProfile, error) {
			return store.UserProfile{ID: userID, OrganizationID: "org-1", Role: "staff", IsActive: true}, nil
		},
		listOverridesFn: func(context.Context, string) ([]store.PermissionOverride, error) {
			return overrides, nil
		},
		upsertOverrideFn: func(_ context.Context, userID, permissionID string, granted bool) error {
			overrides = append(overrides, store.PermissionOverride{UserID: userID, PermissionID: permissionID, Granted: granted})
			return nil
		},
		deleteOverrideFn: func(_ context.Context, _, permissionID string) error {
			kept := overrides[:0]
			for _, o := range overrides {
				if o.PermissionID != permissionID {
					kept = append(kept, o)
				}
			}
			overrides = kept
			return nil
		},
	}
	svc := newTestService(fs)
	sess := ceoSession()

	// Staff lacks export by default: first toggle grants it.
	states, err := svc.TogglePermission(context.Background(), sess, "usr-2", permission.DataCustomersExport)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if got := stateFor(t, states, permission.DataCustomersExport); got.State != permission.StateGranted || !got.Effective {
		t.Fatalf("expected granted+effective after first toggle, got %+v", got)
	}

	// Second toggle removes the override and reverts to the role default.
	states, err = svc.TogglePermission(context.Background(), sess, "usr-2", permission.DataCustomersExport)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if got := stateFor(t, states, permission.DataCustomersExport); got.State != permission.StateDefault || got.Effective {
		t.Fatalf("expected default+ineffective after second toggle, got %+v", got)
	}
}

func stateFor(t *testing.T, states []MemberPermissionState, permissionID string) MemberPermissionState {
	t.Helper()
	for _, s := range states {
		if s.ID == permissionID {
			return s
		}
	}
	t.Fatalf("permission %s missing from states", permissionID)
	return MemberPermissionState{}
}

func TestTogglePermissionRejectsUnknownID(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.TogglePermission(context.Background(), ceoSession(), "usr-2", "schema.fields.explode")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestCreateMemberMapsUniqueViolationToConflict(t *testing.T) {
	fs := &fakeStore{
		insertProfileFn: func(context.Context, store.UserProfile) error {
			return fmt.Errorf("insert profile: %w", &pgconn.PgError{
				Code:           "23505",
				ConstraintName: "profiles_email_key",
			})
		},
	}
	svc := newTestService(fs)

	_, err := svc.CreateMember(context.Background(), ceoSession(), CreateMemberInput{
		Username: "dana",
		Password: "hunter22",
	})
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 409 || domainErr.Code != "USERNAME_EXISTS" {
		t.Fatalf("expected 409 USERNAME_EXISTS for concurrent duplicate, got %v", err)
	}
}

func TestSetMemberActiveRejectsSelfDeactivation(t *testing.T) {
	svc := newTestService(&fakeStore{})
	sess := ceoSession()
	err := svc.SetMemberActive(context.Background(), sess, sess.UserID, false)
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}

func TestListCustomersSearchSkipsHiddenFields(t *testing.T) {
	fields := []schema.FieldDefinition{
		{ID: "name", Name: "Name", Type: schema.TypeText, Visible: true, Order: 0},
		{ID: "notes", Name: "Notes", Type: schema.TypeText, Visible: false, Order: 1},
	}
	customers := []store.Customer{
		{ID: "cus-1", OrganizationID: "org-1", Data: map[string]any{"name": "Dana", "notes": "acme insider"}, CreatedAt: time.Now()},
		{ID: "cus-2", OrganizationID: "org-1", Data: map[string]any{"name": "acme west"}, CreatedAt: time.Now()},
	}
	fs := &fakeStore{
		listFieldsFn:    func(context.Context, string) ([]schema.FieldDefinition, error) { return fields, nil },
		listCustomersFn: func(context.Context, string) ([]store.Customer, error) { return customers, nil },
	}
	svc := newTestService(fs)

	got, err := svc.ListCustomers(context.Background(), ceoSession(), records.Query{Search: "acme"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != "cus-2" {
		t.Fatalf("expected only cus-2 to match, got %+v", got)
	}
}

func TestDeleteCustomerSoftDeletesAndDeindexes(t *testing.T) {
	softDeleted := ""
	fs := &fakeStore{
		softDeleteCustomerFn: func(_ context.Context, _, customerID string) (bool, error) {
			softDeleted = customerID
			return true, nil
		},
	}
	svc := newTestService(fs)
	idx := &fakeSearch{}
	svc.search = idx

	if err := svc.DeleteCustomer(context.Background(), ceoSession(), "cus-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if softDeleted != "cus-1" {
		t.Errorf("expected soft delete of cus-1, got %q", softDeleted)
	}
	if len(idx.removed) != 1 || idx.removed[0] != "cus-1" {
		t.Errorf("expected cus-1 removed from the search index, got %v", idx.removed)
	}
}

func TestDeleteCustomerNotFound(t *testing.T) {
	svc := newTestService(&fakeStore{})
	err := svc.DeleteCustomer(context.Background(), ceoSession(), "cus-missing")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 404 {
		t.Fatalf("expected 404 domain error, got %v", err)
	}
}

func TestExportCustomersStartsWithBOM(t *testing.T) {
	fs := &fakeStore{
		listFieldsFn: func(context.Context, string) ([]schema.FieldDefinition, error) {
			return authpw.SeedFields(), nil
		},
		listCustomersFn: func(context.Context, string) ([]store.Customer, error) {
			return []store.Customer{
				{ID: "cus-1", OrganizationID: "org-1", Data: map[string]any{"name": "Dana", "status": "status_won"}, CreatedAt: time.Now()},
			}, nil
		},
	}
	svc := newTestService(fs)

	result, err := svc.ExportCustomers(context.Background(), ceoSession(), records.Query{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.HasPrefix(result.Content, export.BOM) {
		t.Error("export must start with a UTF-8 BOM")
	}
	if !strings.HasPrefix(result.Filename, "customers_") || !strings.HasSuffix(result.Filename, ".csv") {
		t.Errorf("unexpected filename %q", result.Filename)
	}
	if !strings.Contains(result.Content, "Won") {
		t.Error("export must render select option labels, not ids")
	}
}

func TestSubmitLeadAppliesRulesAndVisitorName(t *testing.T) {
	var inserted store.Customer
	fs := &fakeStore{
		getLandingPageBySlugFn: func(_ context.Context, slug string) (store.LandingPage, error) {
			return store.LandingPage{ID: "lpg-1", OrganizationID: "org-9", Slug: slug, IsActive: true}, nil
		},
		listRulesFn: func(context.Context, string) ([]store.AutomationRule, error) {
			return []store.AutomationRule{
				{ID: "rul-1", TriggerFieldID: "mobile", TriggerValue: "+1 (555) 123-4567", TargetFieldID: "status", TargetValue: "status_new"},
			}, nil
		},
		insertCustomerFn: func(_ context.Context, customer store.Customer) error {
			inserted = customer
			return nil
		},
	}
	svc := newTestService(fs)

	_, err := svc.SubmitLead(context.Background(), "abc123-wxyz", "+1 (555) 123-4567")
	if err != nil {
		t.Fatalf("submit lead: %v", err)
	}
	if inserted.OrganizationID != "org-9" {
		t.Errorf("customer must belong to the page's organization, got %q", inserted.OrganizationID)
	}
	if inserted.SourceLandingPageID == nil || *inserted.SourceLandingPageID != "lpg-1" {
		t.Error("lead must record its source landing page")
	}
	if inserted.Data["name"] != "Visitor (4567)" {
		t.Errorf("expected visitor name from last digits, got %v", inserted.Data["name"])
	}
	if inserted.Data["mobile"] != "+1 (555) 123-4567" {
		t.Errorf("expected raw phone preserved, got %v", inserted.Data["mobile"])
	}
	if inserted.Data["status"] != "status_new" {
		t.Errorf("expected dependency rule to set status, got %v", inserted.Data["status"])
	}
}

func TestSubmitLeadRequiresPhone(t *testing.T) {
	svc := newTestService(&fakeStore{})
	_, err := svc.SubmitLead(context.Background(), "abc123-wxyz", "   ")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 422 {
		t.Fatalf("expected 422 domain error, got %v", err)
	}
}
