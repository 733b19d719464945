package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/j-keen/flexicrm/internal/auth"
	"github.com/j-keen/flexicrm/internal/authpw"
	"github.com/j-keen/flexicrm/internal/config"
	"github.com/j-keen/flexicrm/internal/email"
	"github.com/j-keen/flexicrm/internal/export"
	"github.com/j-keen/flexicrm/internal/permission"
	"github.com/j-keen/flexicrm/internal/records"
	"github.com/j-keen/flexicrm/internal/rules"
	"github.com/j-keen/flexicrm/internal/schema"
	"github.com/j-keen/flexicrm/internal/search"
	"github.com/j-keen/flexicrm/internal/session"
	"github.com/j-keen/flexicrm/internal/store"
	"github.com/j-keen/flexicrm/internal/util"
)

const slugAttempts = 5

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	OrgID        string
	Role         string
	TeamID       *string
	JTI          string
	ExpiresAt    time.Time
	// Permissions is the effective set, re-derived from the store on
	// every authenticated request.
	Permissions map[string]struct{}
}

// Can reports whether the session holds one permission.
func (s Session) Can(permissionID string) bool {
	return permission.Has(s.Permissions, permissionID)
}

type dataStore interface {
	CreateOrganization(context.Context, store.Organization, store.UserProfile, []schema.FieldDefinition) error
	GetProfileByEmail(context.Context, string) (store.UserProfile, error)
	GetProfileByID(context.Context, string) (store.UserProfile, error)
	ListMembers(context.Context, string) ([]store.UserProfile, error)
	InsertProfile(context.Context, store.UserProfile) error
	UpdateMember(context.Context, string, string, string, string, *string) (bool, error)
	SetMemberActive(context.Context, string, string, bool) (bool, error)
	ListTeams(context.Context, string) ([]store.Team, error)
	InsertTeam(context.Context, store.Team) error
	DeleteTeam(context.Context, string, string) (bool, error)
	ListOverrides(context.Context, string) ([]store.PermissionOverride, error)
	UpsertOverride(context.Context, string, string, bool) error
	DeleteOverride(context.Context, string, string) error
	ListFields(context.Context, string) ([]schema.FieldDefinition, error)
	InsertField(context.Context, string, schema.FieldDefinition) error
	UpdateField(context.Context, string, schema.FieldDefinition) (bool, error)
	UpdateFieldPlacements(context.Context, string, []schema.FieldDefinition) error
	DeleteField(context.Context, string, string) (bool, error)
	ListCustomers(context.Context, string) ([]store.Customer, error)
	GetCustomer(context.Context, string, string) (store.Customer, error)
	InsertCustomer(context.Context, store.Customer) error
	UpdateCustomerData(context.Context, string, string, map[string]any) (bool, error)
	SoftDeleteCustomer(context.Context, string, string) (bool, error)
	ListRules(context.Context, string) ([]store.AutomationRule, error)
	ReplaceRules(context.Context, string, []store.AutomationRule) error
	ListLandingPages(context.Context, string) ([]store.LandingPage, error)
	GetLandingPage(context.Context, string, string) (store.LandingPage, error)
	GetLandingPageBySlug(context.Context, string) (store.LandingPage, error)
	SlugTaken(context.Context, string) (bool, error)
	InsertLandingPage(context.Context, store.LandingPage) error
	UpdateLandingPage(context.Context, string, store.LandingPage) (bool, error)
	DeleteLandingPage(context.Context, string, string) (bool, error)
}

type refreshStore interface {
	Save(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (session.TokenData, error)
	Revoke(ctx context.Context, tokenHash string) error
}

type searchService interface {
	Search(q search.Query) (search.Response, error)
	IndexCustomer(doc search.CustomerDoc)
	RemoveCustomer(id string)
}

type exportArchiver interface {
	Archive(ctx context.Context, organizationID, filename, content string) (string, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions refreshStore
	authpw   *authpw.Service
	search   searchService
	exports  exportArchiver
	mail     *email.Service
	db       pinger
}

// Deps bundles the optional backends; nil members disable their feature.
type Deps struct {
	Store    dataStore
	Sessions refreshStore
	Auth     *authpw.Service
	Search   searchService
	Exports  exportArchiver
	Mail     *email.Service
	DB       pinger
}

func New(cfg config.Config, deps Deps) *Service {
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		authpw:   deps.Auth,
		search:   deps.Search,
		exports:  deps.Exports,
		mail:     deps.Mail,
		db:       deps.DB,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Ping(ctx)
}

// --- sessions ---

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	owner, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		if errors.Is(err, authpw.ErrUsernameTaken) {
			return Session{}, domainError(http.StatusConflict, "USERNAME_EXISTS", "Username already registered", nil)
		}
		return Session{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	return s.issueSession(ctx, owner)
}

func (s *Service) SignIn(ctx context.Context, username, password string) (Session, error) {
	profile, err := s.authpw.SignIn(ctx, username, password)
	if err != nil {
		if errors.Is(err, authpw.ErrAccountInactive) {
			return Session{}, domainError(http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is deactivated", nil)
		}
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid username or password", nil)
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	data, err := s.sessions.Lookup(ctx, tokenHash)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	profile, err := s.store.GetProfileByID(ctx, data.UserID)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if !profile.IsActive {
		return Session{}, auth.ErrInvalidToken
	}
	return s.issueSession(ctx, profile)
}

func (s *Service) issueSession(ctx context.Context, profile store.UserProfile) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  profile.ID,
		Org:  profile.OrganizationID,
		Name: profile.DisplayName,
		Role: profile.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.Save(ctx, auth.HashToken(refresh), session.TokenData{
		UserID:         profile.ID,
		OrganizationID: profile.OrganizationID,
		DisplayName:    profile.DisplayName,
		Role:           profile.Role,
	}, refreshExpires); err != nil {
		return Session{}, err
	}

	perms, err := s.effectivePermissions(ctx, profile)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       profile.ID,
		UserName:     profile.DisplayName,
		OrgID:        profile.OrganizationID,
		Role:         profile.Role,
		TeamID:       profile.TeamID,
		JTI:          jti,
		ExpiresAt:    expiresAt,
		Permissions:  perms,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	profile, err := s.store.GetProfileByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if !profile.IsActive || profile.OrganizationID != claims.Org {
		return Session{}, auth.ErrInvalidToken
	}

	perms, err := s.effectivePermissions(ctx, profile)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:       token,
		UserID:      profile.ID,
		UserName:    profile.DisplayName,
		OrgID:       profile.OrganizationID,
		Role:        profile.Role,
		TeamID:      profile.TeamID,
		JTI:         claims.JTI,
		ExpiresAt:   time.Unix(claims.Exp, 0),
		Permissions: perms,
	}, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		_ = s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) effectivePermissions(ctx context.Context, profile store.UserProfile) (map[string]struct{}, error) {
	overrides, err := s.store.ListOverrides(ctx, profile.ID)
	if err != nil {
		return nil, err
	}
	return permission.Effective(permission.Normalize(profile.Role), toOverrides(overrides)), nil
}

func toOverrides(items []store.PermissionOverride) []permission.Override {
	out := make([]permission.Override, 0, len(items))
	for _, o := range items {
		out = append(out, permission.Override{
			UserID:       o.UserID,
			PermissionID: o.PermissionID,
			Granted:      o.Granted,
		})
	}
	return out
}

// --- fields ---

func (s *Service) ListFields(ctx context.Context, session Session) ([]schema.FieldDefinition, error) {
	fields, err := s.store.ListFields(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	schema.SortFields(fields)
	return fields, nil
}

func (s *Service) CreateField(ctx context.Context, session Session, name string, fieldType schema.FieldType) (schema.FieldDefinition, error) {
	if err := schema.ValidateNew(name, fieldType); err != nil {
		return schema.FieldDefinition{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
	fields, err := s.store.ListFields(ctx, session.OrgID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}

	field := schema.FieldDefinition{
		ID:      util.NewID("fld"),
		Name:    strings.TrimSpace(name),
		Type:    fieldType,
		Visible: true,
		Order:   len(fields),
		Width:   schema.DefaultColumnWidth,
	}
	if fieldType == schema.TypeSelect {
		field.Options = []schema.SelectOption{}
	}
	if err := s.store.InsertField(ctx, session.OrgID, field); err != nil {
		return schema.FieldDefinition{}, err
	}
	return field, nil
}

// FieldPatch carries the editable attributes; nil members are untouched.
type FieldPatch struct {
	Name    *string `json:"name"`
	Visible *bool   `json:"visible"`
	Width   *int    `json:"width"`
}

func (s *Service) UpdateField(ctx context.Context, session Session, fieldID string, patch FieldPatch) (schema.FieldDefinition, error) {
	field, err := s.findField(ctx, session.OrgID, fieldID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return schema.FieldDefinition{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "field name cannot be empty", nil)
		}
		field.Name = trimmed
	}
	if patch.Visible != nil {
		field.Visible = *patch.Visible
	}
	if patch.Width != nil {
		if *patch.Width < 1 {
			return schema.FieldDefinition{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "width must be positive", nil)
		}
		field.Width = *patch.Width
	}
	if _, err := s.store.UpdateField(ctx, session.OrgID, field); err != nil {
		return schema.FieldDefinition{}, err
	}
	return field, nil
}

func (s *Service) DeleteField(ctx context.Context, session Session, fieldID string) error {
	field, err := s.findField(ctx, session.OrgID, fieldID)
	if err != nil {
		return err
	}
	if field.IsSystem {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", schema.ErrSystemField.Error(), nil)
	}
	if _, err := s.store.DeleteField(ctx, session.OrgID, fieldID); err != nil {
		return err
	}
	return nil
}

// ReorderField swaps the field with its neighbor in the given direction.
// At a boundary nothing changes and the current list is returned.
func (s *Service) ReorderField(ctx context.Context, session Session, fieldID, direction string) ([]schema.FieldDefinition, error) {
	if direction != "up" && direction != "down" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "direction must be up or down", nil)
	}
	fields, err := s.store.ListFields(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	schema.SortFields(fields)
	if !containsField(fields, fieldID) {
		return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Field not found", nil)
	}
	if schema.Reorder(fields, fieldID, direction) {
		if err := s.store.UpdateFieldPlacements(ctx, session.OrgID, fields); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

func (s *Service) UpdateFieldLayout(ctx context.Context, session Session, fieldID string, delta schema.LayoutDelta) (schema.FieldDefinition, error) {
	field, err := s.findField(ctx, session.OrgID, fieldID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}
	current := schema.Layout{}
	if field.Layout != nil {
		current = *field.Layout
	}
	next := schema.ApplyDelta(current, delta)
	field.Layout = &next
	if _, err := s.store.UpdateField(ctx, session.OrgID, field); err != nil {
		return schema.FieldDefinition{}, err
	}
	return field, nil
}

// EnsureLayouts backfills missing editor layouts and persists only when
// something actually changed.
func (s *Service) EnsureLayouts(ctx context.Context, session Session) ([]schema.FieldDefinition, error) {
	fields, err := s.store.ListFields(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	schema.SortFields(fields)
	changed := schema.BackfillLayouts(fields)
	if len(changed) > 0 {
		if err := s.store.UpdateFieldPlacements(ctx, session.OrgID, changed); err != nil {
			return nil, err
		}
	}
	return fields, nil
}

// OptionInput is one select choice being added or edited.
type OptionInput struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

func (s *Service) AddFieldOption(ctx context.Context, session Session, fieldID string, input OptionInput) (schema.FieldDefinition, error) {
	field, err := s.selectField(ctx, session.OrgID, fieldID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}
	label := strings.TrimSpace(input.Label)
	if label == "" {
		return schema.FieldDefinition{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "option label cannot be empty", nil)
	}
	field.Options = append(field.Options, schema.SelectOption{
		ID:    util.NewID("opt"),
		Label: label,
		Color: input.Color,
	})
	if _, err := s.store.UpdateField(ctx, session.OrgID, field); err != nil {
		return schema.FieldDefinition{}, err
	}
	return field, nil
}

func (s *Service) UpdateFieldOption(ctx context.Context, session Session, fieldID, optionID string, input OptionInput) (schema.FieldDefinition, error) {
	field, err := s.selectField(ctx, session.OrgID, fieldID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}
	found := false
	for i, o := range field.Options {
		if o.ID == optionID {
			if label := strings.TrimSpace(input.Label); label != "" {
				field.Options[i].Label = label
			}
			if input.Color != "" {
				field.Options[i].Color = input.Color
			}
			found = true
			break
		}
	}
	if !found {
		return schema.FieldDefinition{}, domainError(http.StatusNotFound, "NOT_FOUND", "Option not found", nil)
	}
	if _, err := s.store.UpdateField(ctx, session.OrgID, field); err != nil {
		return schema.FieldDefinition{}, err
	}
	return field, nil
}

// DeleteFieldOption removes a choice. Records holding the removed option
// id keep it; readers fall back to the raw value.
func (s *Service) DeleteFieldOption(ctx context.Context, session Session, fieldID, optionID string) (schema.FieldDefinition, error) {
	field, err := s.selectField(ctx, session.OrgID, fieldID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}
	kept := field.Options[:0]
	found := false
	for _, o := range field.Options {
		if o.ID == optionID {
			found = true
			continue
		}
		kept = append(kept, o)
	}
	if !found {
		return schema.FieldDefinition{}, domainError(http.StatusNotFound, "NOT_FOUND", "Option not found", nil)
	}
	field.Options = kept
	if _, err := s.store.UpdateField(ctx, session.OrgID, field); err != nil {
		return schema.FieldDefinition{}, err
	}
	return field, nil
}

func (s *Service) findField(ctx context.Context, orgID, fieldID string) (schema.FieldDefinition, error) {
	fields, err := s.store.ListFields(ctx, orgID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}
	for _, f := range fields {
		if f.ID == fieldID {
			return f, nil
		}
	}
	return schema.FieldDefinition{}, domainError(http.StatusNotFound, "NOT_FOUND", "Field not found", nil)
}

func (s *Service) selectField(ctx context.Context, orgID, fieldID string) (schema.FieldDefinition, error) {
	field, err := s.findField(ctx, orgID, fieldID)
	if err != nil {
		return schema.FieldDefinition{}, err
	}
	if field.Type != schema.TypeSelect {
		return schema.FieldDefinition{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "field is not a select field", nil)
	}
	return field, nil
}

func containsField(fields []schema.FieldDefinition, fieldID string) bool {
	for _, f := range fields {
		if f.ID == fieldID {
			return true
		}
	}
	return false
}

// --- rules ---

func (s *Service) ListRules(ctx context.Context, session Session) ([]rules.Rule, error) {
	stored, err := s.store.ListRules(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	return toRules(stored), nil
}

// SaveRules replaces the organization's whole rule set after validating
// every reference. The swap is atomic.
func (s *Service) SaveRules(ctx context.Context, session Session, ruleSet []rules.Rule) ([]rules.Rule, error) {
	fields, err := s.store.ListFields(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	known := make(rules.FieldSet, len(fields))
	for _, f := range fields {
		known[f.ID] = struct{}{}
	}
	if err := rules.Validate(ruleSet, known); err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}

	stored := make([]store.AutomationRule, 0, len(ruleSet))
	for i, r := range ruleSet {
		id := r.ID
		if id == "" {
			id = util.NewID("rul")
		}
		stored = append(stored, store.AutomationRule{
			ID:             id,
			OrganizationID: session.OrgID,
			TriggerFieldID: r.TriggerFieldID,
			TriggerValue:   r.TriggerValue,
			TargetFieldID:  r.TargetFieldID,
			TargetValue:    r.TargetValue,
			Position:       i,
		})
	}
	if err := s.store.ReplaceRules(ctx, session.OrgID, stored); err != nil {
		return nil, err
	}
	return toRules(stored), nil
}

// PreviewRules runs the dependency engine over a prospective edit without
// persisting anything; the record editor uses it to show cascaded values.
func (s *Service) PreviewRules(ctx context.Context, session Session, fieldID string, value any, form rules.FormState) (rules.FormState, error) {
	stored, err := s.store.ListRules(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	if form == nil {
		form = rules.FormState{}
	}
	return rules.Apply(fieldID, value, form, toRules(stored)), nil
}

func toRules(items []store.AutomationRule) []rules.Rule {
	out := make([]rules.Rule, 0, len(items))
	for _, r := range items {
		out = append(out, rules.Rule{
			ID:             r.ID,
			TriggerFieldID: r.TriggerFieldID,
			TriggerValue:   r.TriggerValue,
			TargetFieldID:  r.TargetFieldID,
			TargetValue:    r.TargetValue,
		})
	}
	return out
}

// --- customers ---

func (s *Service) ListCustomers(ctx context.Context, session Session, query records.Query) ([]store.Customer, error) {
	items, err := s.store.ListCustomers(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	fields, err := s.store.ListFields(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}

	viewed := records.View(toRecords(items), fields, query)

	byID := make(map[string]store.Customer, len(items))
	for _, c := range items {
		byID[c.ID] = c
	}
	out := make([]store.Customer, 0, len(viewed))
	for _, r := range viewed {
		out = append(out, byID[r.ID])
	}
	return out, nil
}

func (s *Service) GetCustomer(ctx context.Context, session Session, customerID string) (store.Customer, error) {
	return s.store.GetCustomer(ctx, session.OrgID, customerID)
}

func (s *Service) CreateCustomer(ctx context.Context, session Session, data map[string]any) (store.Customer, error) {
	if data == nil {
		data = map[string]any{}
	}
	customer := store.Customer{
		ID:             util.NewID("cus"),
		OrganizationID: session.OrgID,
		Data:           data,
		CreatedAt:      time.Now(),
	}
	if err := s.store.InsertCustomer(ctx, customer); err != nil {
		return store.Customer{}, err
	}
	s.indexCustomer(ctx, customer)
	return customer, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, session Session, customerID string, data map[string]any) (store.Customer, error) {
	if data == nil {
		return store.Customer{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "data is required", nil)
	}
	updated, err := s.store.UpdateCustomerData(ctx, session.OrgID, customerID, data)
	if err != nil {
		return store.Customer{}, err
	}
	if !updated {
		return store.Customer{}, domainError(http.StatusNotFound, "NOT_FOUND", "Customer not found", nil)
	}
	customer, err := s.store.GetCustomer(ctx, session.OrgID, customerID)
	if err != nil {
		return store.Customer{}, err
	}
	s.indexCustomer(ctx, customer)
	return customer, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, session Session, customerID string) error {
	deleted, err := s.store.SoftDeleteCustomer(ctx, session.OrgID, customerID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Customer not found", nil)
	}
	if s.search != nil {
		s.search.RemoveCustomer(customerID)
	}
	return nil
}

// ExportResult is a generated CSV plus the archive key when object
// storage is configured.
type ExportResult struct {
	Filename   string
	Content    string
	ArchiveKey string
}

func (s *Service) ExportCustomers(ctx context.Context, session Session, query records.Query) (ExportResult, error) {
	items, err := s.ListCustomers(ctx, session, query)
	if err != nil {
		return ExportResult{}, err
	}
	fields, err := s.store.ListFields(ctx, session.OrgID)
	if err != nil {
		return ExportResult{}, err
	}

	result := ExportResult{
		Filename: export.Filename(time.Now()),
		Content:  export.CSV(fields, toRecords(items)),
	}
	if s.exports != nil {
		key, err := s.exports.Archive(ctx, session.OrgID, result.Filename, result.Content)
		if err != nil {
			log.Printf("export: archive failed: %v", err)
		} else {
			result.ArchiveKey = key
		}
	}
	return result, nil
}

func (s *Service) SearchCustomers(ctx context.Context, session Session, text string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}
	return s.search.Search(search.Query{
		OrganizationID: session.OrgID,
		Text:           text,
		Limit:          limit,
		Offset:         offset,
	})
}

func (s *Service) indexCustomer(ctx context.Context, customer store.Customer) {
	if s.search == nil {
		return
	}
	fields, err := s.store.ListFields(ctx, customer.OrganizationID)
	if err != nil {
		log.Printf("search: load fields for indexing: %v", err)
		return
	}
	s.search.IndexCustomer(search.CustomerDoc{
		ID:             customer.ID,
		OrganizationID: customer.OrganizationID,
		Text:           flattenCustomer(customer, fields),
	})
}

// flattenCustomer joins the visible field values into one searchable
// string, resolving select option ids to labels.
func flattenCustomer(customer store.Customer, fields []schema.FieldDefinition) string {
	var parts []string
	for _, f := range fields {
		if !f.Visible {
			continue
		}
		value, ok := customer.Data[f.ID]
		if !ok || value == nil {
			continue
		}
		text := rules.Stringify(value)
		if f.Type == schema.TypeSelect {
			if option := schema.FindOption(f, text); option != nil {
				text = option.Label
			}
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

func toRecords(items []store.Customer) []records.Record {
	out := make([]records.Record, 0, len(items))
	for _, c := range items {
		out = append(out, records.Record{ID: c.ID, CreatedAt: c.CreatedAt, Fields: c.Data})
	}
	return out
}

// --- teams ---

func (s *Service) ListTeams(ctx context.Context, session Session) ([]store.Team, error) {
	return s.store.ListTeams(ctx, session.OrgID)
}

func (s *Service) CreateTeam(ctx context.Context, session Session, name string, leadID *string) (store.Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Team{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "team name is required", nil)
	}
	if leadID != nil {
		lead, err := s.store.GetProfileByID(ctx, *leadID)
		if err != nil || lead.OrganizationID != session.OrgID {
			return store.Team{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "team lead not found", nil)
		}
		role := permission.Normalize(lead.Role)
		if role != permission.RoleCEO && role != permission.RoleTeamLead {
			return store.Team{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "team lead must be a ceo or team lead", nil)
		}
	}
	team := store.Team{
		ID:             util.NewID("tem"),
		OrganizationID: session.OrgID,
		Name:           name,
		LeadID:         leadID,
	}
	if err := s.store.InsertTeam(ctx, team); err != nil {
		return store.Team{}, err
	}
	return team, nil
}

func (s *Service) DeleteTeam(ctx context.Context, session Session, teamID string) error {
	deleted, err := s.store.DeleteTeam(ctx, session.OrgID, teamID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Team not found", nil)
	}
	return nil
}

// --- members ---

func (s *Service) ListMembers(ctx context.Context, session Session) ([]store.UserProfile, error) {
	return s.store.ListMembers(ctx, session.OrgID)
}

// CreateMemberInput is the invite form.
type CreateMemberInput struct {
	Username    string  `json:"username"`
	Password    string  `json:"password"`
	DisplayName string  `json:"displayName"`
	Role        string  `json:"role"`
	TeamID      *string `json:"teamId"`
	Email       string  `json:"email"`
}

func (s *Service) CreateMember(ctx context.Context, sess Session, input CreateMemberInput) (store.UserProfile, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" || input.Password == "" {
		return store.UserProfile{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "username and password are required", nil)
	}
	canonical := authpw.CanonicalEmail(username)
	if _, err := s.store.GetProfileByEmail(ctx, canonical); err == nil {
		return store.UserProfile{}, domainError(http.StatusConflict, "USERNAME_EXISTS", "Username already registered", nil)
	}

	hash, err := authpw.HashPassword(input.Password)
	if err != nil {
		return store.UserProfile{}, err
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}

	profile := store.UserProfile{
		ID:             util.NewID("usr"),
		OrganizationID: sess.OrgID,
		Email:          canonical,
		PasswordHash:   hash,
		DisplayName:    displayName,
		Role:           string(permission.Normalize(input.Role)),
		TeamID:         input.TeamID,
		IsActive:       true,
	}
	if err := s.store.InsertProfile(ctx, profile); err != nil {
		// The exists-check above races concurrent invites for the same
		// username; the unique constraint is the authority.
		if store.IsUniqueViolation(err) {
			return store.UserProfile{}, domainError(http.StatusConflict, "USERNAME_EXISTS", "Username already registered", nil)
		}
		return store.UserProfile{}, err
	}

	if s.mail != nil && s.mail.IsConfigured() && input.Email != "" {
		go func() {
			if err := s.mail.SendInviteEmail(input.Email, email.InviteData{
				OrganizationName: sess.OrgID,
				MemberName:       displayName,
				Username:         username,
				InviterName:      sess.UserName,
				SignInURL:        s.cfg.PublicBaseURL + "/login",
			}); err != nil {
				log.Printf("email: invite to %s failed: %v", input.Email, err)
			}
		}()
	}
	return profile, nil
}

// MemberPatch updates display name, role or team; nil members untouched.
type MemberPatch struct {
	DisplayName *string `json:"displayName"`
	Role        *string `json:"role"`
	TeamID      *string `json:"teamId"`
	ClearTeam   bool    `json:"clearTeam"`
}

func (s *Service) UpdateMember(ctx context.Context, session Session, userID string, patch MemberPatch) (store.UserProfile, error) {
	profile, err := s.memberInOrg(ctx, session, userID)
	if err != nil {
		return store.UserProfile{}, err
	}
	if patch.DisplayName != nil {
		trimmed := strings.TrimSpace(*patch.DisplayName)
		if trimmed == "" {
			return store.UserProfile{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "display name cannot be empty", nil)
		}
		profile.DisplayName = trimmed
	}
	if patch.Role != nil {
		profile.Role = string(permission.Normalize(*patch.Role))
	}
	if patch.ClearTeam {
		profile.TeamID = nil
	} else if patch.TeamID != nil {
		profile.TeamID = patch.TeamID
	}
	if _, err := s.store.UpdateMember(ctx, session.OrgID, userID, profile.DisplayName, profile.Role, profile.TeamID); err != nil {
		return store.UserProfile{}, err
	}
	return profile, nil
}

func (s *Service) SetMemberActive(ctx context.Context, session Session, userID string, active bool) error {
	if session.UserID == userID && !active {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "cannot deactivate your own account", nil)
	}
	if _, err := s.memberInOrg(ctx, session, userID); err != nil {
		return err
	}
	if _, err := s.store.SetMemberActive(ctx, session.OrgID, userID, active); err != nil {
		return err
	}
	return nil
}

// MemberPermissionState is one catalog entry annotated with the member's
// override state and the resulting effective value.
type MemberPermissionState struct {
	permission.Definition
	State     permission.State `json:"state"`
	Effective bool             `json:"effective"`
}

func (s *Service) MemberPermissions(ctx context.Context, session Session, userID string) ([]MemberPermissionState, error) {
	profile, err := s.memberInOrg(ctx, session, userID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.ListOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}
	converted := toOverrides(overrides)
	effective := permission.Effective(permission.Normalize(profile.Role), converted)

	out := make([]MemberPermissionState, 0, len(permission.Catalog()))
	for _, def := range permission.Catalog() {
		out = append(out, MemberPermissionState{
			Definition: def,
			State:      permission.StateOf(def.ID, converted),
			Effective:  permission.Has(effective, def.ID),
		})
	}
	return out, nil
}

// TogglePermission flips one permission for a member: creating an
// override when none exists, removing it otherwise.
func (s *Service) TogglePermission(ctx context.Context, session Session, userID, permissionID string) ([]MemberPermissionState, error) {
	if !knownPermission(permissionID) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown permission id", nil)
	}
	profile, err := s.memberInOrg(ctx, session, userID)
	if err != nil {
		return nil, err
	}
	overrides, err := s.store.ListOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}

	decision := permission.Toggle(permission.Normalize(profile.Role), permissionID, toOverrides(overrides))
	if decision.RemoveOverride {
		err = s.store.DeleteOverride(ctx, userID, permissionID)
	} else {
		err = s.store.UpsertOverride(ctx, userID, permissionID, decision.Granted)
	}
	if err != nil {
		return nil, err
	}
	return s.MemberPermissions(ctx, session, userID)
}

func (s *Service) PermissionCatalog() []permission.Definition {
	return permission.Catalog()
}

func (s *Service) memberInOrg(ctx context.Context, session Session, userID string) (store.UserProfile, error) {
	profile, err := s.store.GetProfileByID(ctx, userID)
	if err != nil || profile.OrganizationID != session.OrgID {
		return store.UserProfile{}, domainError(http.StatusNotFound, "NOT_FOUND", "Member not found", nil)
	}
	return profile, nil
}

func knownPermission(permissionID string) bool {
	for _, def := range permission.Catalog() {
		if def.ID == permissionID {
			return true
		}
	}
	return false
}

// --- landing pages ---

// PublicPage is the rendered view of a landing page: merged content only,
// never internal attributes.
type PublicPage struct {
	Slug    string            `json:"slug"`
	Content store.PageContent `json:"content"`
}

func (s *Service) ListLandingPages(ctx context.Context, session Session) ([]store.LandingPage, error) {
	pages, err := s.store.ListLandingPages(ctx, session.OrgID)
	if err != nil {
		return nil, err
	}
	for i := range pages {
		pages[i].Content = pages[i].Content.WithDefaults()
	}
	return pages, nil
}

// PublicURL renders the shareable address of a page.
func (s *Service) PublicURL(slug string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/p/" + slug
}

func (s *Service) CreateLandingPage(ctx context.Context, session Session, name string) (store.LandingPage, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return store.LandingPage{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page name is required", nil)
	}

	var slug string
	for attempt := 0; ; attempt++ {
		candidate := util.NewSlug()
		taken, err := s.store.SlugTaken(ctx, candidate)
		if err != nil {
			return store.LandingPage{}, err
		}
		if !taken {
			slug = candidate
			break
		}
		if attempt+1 >= slugAttempts {
			return store.LandingPage{}, fmt.Errorf("allocate slug: %d collisions in a row", slugAttempts)
		}
	}

	page := store.LandingPage{
		ID:             util.NewID("lpg"),
		OrganizationID: session.OrgID,
		Name:           name,
		Slug:           slug,
		IsActive:       true,
	}
	if err := s.store.InsertLandingPage(ctx, page); err != nil {
		return store.LandingPage{}, err
	}
	page.Content = page.Content.WithDefaults()
	return page, nil
}

// PagePatch edits a landing page; nil members untouched.
type PagePatch struct {
	Name     *string            `json:"name"`
	IsActive *bool              `json:"isActive"`
	Content  *store.PageContent `json:"content"`
}

func (s *Service) UpdateLandingPage(ctx context.Context, session Session, pageID string, patch PagePatch) (store.LandingPage, error) {
	page, err := s.store.GetLandingPage(ctx, session.OrgID, pageID)
	if err != nil {
		return store.LandingPage{}, err
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return store.LandingPage{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "page name cannot be empty", nil)
		}
		page.Name = trimmed
	}
	if patch.IsActive != nil {
		page.IsActive = *patch.IsActive
	}
	if patch.Content != nil {
		page.Content = *patch.Content
	}
	if _, err := s.store.UpdateLandingPage(ctx, session.OrgID, page); err != nil {
		return store.LandingPage{}, err
	}
	page.Content = page.Content.WithDefaults()
	return page, nil
}

func (s *Service) DeleteLandingPage(ctx context.Context, session Session, pageID string) error {
	deleted, err := s.store.DeleteLandingPage(ctx, session.OrgID, pageID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Landing page not found", nil)
	}
	return nil
}

// errPageUnavailable is the single response for both a missing slug and a
// deactivated page, so the two cases cannot be told apart from outside.
func errPageUnavailable() *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", "This page is unavailable", nil)
}

// ResolvePublicPage serves the anonymous landing page view.
func (s *Service) ResolvePublicPage(ctx context.Context, slug string) (PublicPage, error) {
	page, err := s.store.GetLandingPageBySlug(ctx, slug)
	if err != nil {
		if store.IsNotFound(err) {
			return PublicPage{}, errPageUnavailable()
		}
		return PublicPage{}, err
	}
	if !page.IsActive {
		return PublicPage{}, errPageUnavailable()
	}
	return PublicPage{Slug: page.Slug, Content: page.Content.WithDefaults()}, nil
}

// SubmitLead creates a customer from an anonymous landing page visit. The
// organization always comes from the resolved page, never the caller.
func (s *Service) SubmitLead(ctx context.Context, slug, phone string) (store.Customer, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return store.Customer{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "phone is required", nil)
	}

	page, err := s.store.GetLandingPageBySlug(ctx, slug)
	if err != nil {
		if store.IsNotFound(err) {
			return store.Customer{}, errPageUnavailable()
		}
		return store.Customer{}, err
	}
	if !page.IsActive {
		return store.Customer{}, errPageUnavailable()
	}

	stored, err := s.store.ListRules(ctx, page.OrganizationID)
	if err != nil {
		return store.Customer{}, err
	}
	form := rules.Apply("mobile", phone, rules.FormState{}, toRules(stored))
	form["name"] = "Visitor (" + lastDigits(phone, 4) + ")"

	pageID := page.ID
	customer := store.Customer{
		ID:                  util.NewID("cus"),
		OrganizationID:      page.OrganizationID,
		Data:                map[string]any(form),
		SourceLandingPageID: &pageID,
		CreatedAt:           time.Now(),
	}
	if err := s.store.InsertCustomer(ctx, customer); err != nil {
		return store.Customer{}, err
	}
	s.indexCustomer(ctx, customer)
	return customer, nil
}

func lastDigits(phone string, n int) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= n {
		return string(digits)
	}
	return string(digits[len(digits)-n:])
}
