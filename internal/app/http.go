package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/j-keen/flexicrm/internal/auth"
	"github.com/j-keen/flexicrm/internal/authpw"
	"github.com/j-keen/flexicrm/internal/permission"
	"github.com/j-keen/flexicrm/internal/records"
	"github.com/j-keen/flexicrm/internal/rules"
	"github.com/j-keen/flexicrm/internal/schema"
	"github.com/j-keen/flexicrm/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
			return
		}
		writeJSON(w, http.StatusOK, sessionJSON(session, true))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/session/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		payload := sessionJSON(session, false)
		payload["authenticated"] = true
		writeJSON(w, http.StatusOK, payload)
		return
	}

	// Public landing pages — no authentication.
	if parts := splitPath(r.URL.Path); len(parts) >= 2 && parts[0] == "p" {
		slug := parts[1]
		if r.Method == http.MethodGet && len(parts) == 2 {
			page, err := s.service.ResolvePublicPage(r.Context(), slug)
			if err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusOK, page)
			return
		}
		if r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "leads" {
			var body struct {
				Phone string `json:"phone"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if _, err := s.service.SubmitLead(r.Context(), slug, body.Phone); err != nil {
				s.fail(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
			return
		}
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "fields":
		s.handleFields(w, r, session, parts[2:])
	case "rules":
		s.handleRules(w, r, session, parts[2:])
	case "customers":
		s.handleCustomers(w, r, session, parts[2:])
	case "teams":
		s.handleTeams(w, r, session, parts[2:])
	case "members":
		s.handleMembers(w, r, session, parts[2:])
	case "permissions":
		if r.Method == http.MethodGet && len(parts) == 2 {
			if !s.allow(w, session, permission.AdminPermissionsManage) {
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"permissions": s.service.PermissionCatalog()})
			return
		}
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	case "landing-pages":
		s.handleLandingPages(w, r, session, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username         string `json:"username"`
		Password         string `json:"password"`
		DisplayName      string `json:"displayName"`
		OrganizationName string `json:"organizationName"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Username:         body.Username,
		Password:         body.Password,
		DisplayName:      body.DisplayName,
		OrganizationName: body.OrganizationName,
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionJSON(session, true))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	session, err := s.service.SignIn(r.Context(), body.Username, body.Password)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(session, true))
}

func (s *HTTPServer) handleFields(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		if !s.allow(w, session, permission.SchemaFieldsRead) {
			return
		}
		fields, err := s.service.ListFields(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": fields})

	case r.Method == http.MethodPost && len(rest) == 0:
		if !s.allow(w, session, permission.SchemaFieldsCreate) {
			return
		}
		var body struct {
			Name string           `json:"name"`
			Type schema.FieldType `json:"type"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		field, err := s.service.CreateField(r.Context(), session, body.Name, body.Type)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"field": field})

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "ensure-layouts":
		if !s.allow(w, session, permission.SchemaFieldsUpdate) {
			return
		}
		fields, err := s.service.EnsureLayouts(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": fields})

	case r.Method == http.MethodPatch && len(rest) == 1:
		if !s.allow(w, session, permission.SchemaFieldsUpdate) {
			return
		}
		var patch FieldPatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		field, err := s.service.UpdateField(r.Context(), session, rest[0], patch)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"field": field})

	case r.Method == http.MethodDelete && len(rest) == 1:
		if !s.allow(w, session, permission.SchemaFieldsDelete) {
			return
		}
		if err := s.service.DeleteField(r.Context(), session, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "reorder":
		if !s.allow(w, session, permission.SchemaFieldsUpdate) {
			return
		}
		var body struct {
			Direction string `json:"direction"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		fields, err := s.service.ReorderField(r.Context(), session, rest[0], body.Direction)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"fields": fields})

	case r.Method == http.MethodPatch && len(rest) == 2 && rest[1] == "layout":
		if !s.allow(w, session, permission.SchemaFieldsUpdate) {
			return
		}
		var delta schema.LayoutDelta
		if err := decodeBody(r, &delta); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		field, err := s.service.UpdateFieldLayout(r.Context(), session, rest[0], delta)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"field": field})

	case r.Method == http.MethodPost && len(rest) == 2 && rest[1] == "options":
		if !s.allow(w, session, permission.SchemaFieldsUpdate) {
			return
		}
		var input OptionInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		field, err := s.service.AddFieldOption(r.Context(), session, rest[0], input)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"field": field})

	case r.Method == http.MethodPatch && len(rest) == 3 && rest[1] == "options":
		if !s.allow(w, session, permission.SchemaFieldsUpdate) {
			return
		}
		var input OptionInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		field, err := s.service.UpdateFieldOption(r.Context(), session, rest[0], rest[2], input)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"field": field})

	case r.Method == http.MethodDelete && len(rest) == 3 && rest[1] == "options":
		if !s.allow(w, session, permission.SchemaFieldsUpdate) {
			return
		}
		field, err := s.service.DeleteFieldOption(r.Context(), session, rest[0], rest[2])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"field": field})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleRules(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		if !s.allow(w, session, permission.SchemaAutomationRead) {
			return
		}
		ruleSet, err := s.service.ListRules(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": ruleSet})

	case r.Method == http.MethodPut && len(rest) == 0:
		if !s.allow(w, session, permission.SchemaAutomationManage) {
			return
		}
		var body struct {
			Rules []rules.Rule `json:"rules"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		saved, err := s.service.SaveRules(r.Context(), session, body.Rules)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": saved})

	case r.Method == http.MethodPost && len(rest) == 1 && rest[0] == "preview":
		if !s.allow(w, session, permission.SchemaAutomationRead) {
			return
		}
		var body struct {
			FieldID string          `json:"fieldId"`
			Value   any             `json:"value"`
			Form    rules.FormState `json:"form"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if body.FieldID == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "fieldId is required", nil)
			return
		}
		form, err := s.service.PreviewRules(r.Context(), session, body.FieldID, body.Value, body.Form)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"form": form})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCustomers(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		if !s.allow(w, session, permission.DataCustomersReadAll) {
			return
		}
		query, err := parseRecordQuery(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		items, err := s.service.ListCustomers(r.Context(), session, query)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": customersJSON(items)})

	case r.Method == http.MethodPost && len(rest) == 0:
		if !s.allow(w, session, permission.DataCustomersCreate) {
			return
		}
		var body struct {
			Data map[string]any `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		customer, err := s.service.CreateCustomer(r.Context(), session, body.Data)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"customer": customerJSON(customer)})

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "export.csv":
		if !s.allow(w, session, permission.DataCustomersExport) {
			return
		}
		query, err := parseRecordQuery(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		result, err := s.service.ExportCustomers(r.Context(), session, query)
		if err != nil {
			s.fail(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
		if result.ArchiveKey != "" {
			w.Header().Set("X-Archive-Key", result.ArchiveKey)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(result.Content))

	case r.Method == http.MethodGet && len(rest) == 1 && rest[0] == "search":
		if !s.allow(w, session, permission.DataCustomersReadAll) {
			return
		}
		limit, offset, err := parsePagination(r)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		response, err := s.service.SearchCustomers(r.Context(), session, strings.TrimSpace(r.URL.Query().Get("q")), limit, offset)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, response)

	case r.Method == http.MethodGet && len(rest) == 1:
		if !s.allow(w, session, permission.DataCustomersReadAll) {
			return
		}
		customer, err := s.service.GetCustomer(r.Context(), session, rest[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customerJSON(customer)})

	case r.Method == http.MethodPut && len(rest) == 1:
		if !s.allow(w, session, permission.DataCustomersUpdateAll) {
			return
		}
		var body struct {
			Data map[string]any `json:"data"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		customer, err := s.service.UpdateCustomer(r.Context(), session, rest[0], body.Data)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customerJSON(customer)})

	case r.Method == http.MethodDelete && len(rest) == 1:
		if !s.allow(w, session, permission.DataCustomersDelete) {
			return
		}
		if err := s.service.DeleteCustomer(r.Context(), session, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleTeams(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		if !s.allow(w, session, permission.AdminUsersRead) {
			return
		}
		teams, err := s.service.ListTeams(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"teams": teamsJSON(teams)})

	case r.Method == http.MethodPost && len(rest) == 0:
		if !s.allow(w, session, permission.AdminTeamsManage) {
			return
		}
		var body struct {
			Name   string  `json:"name"`
			LeadID *string `json:"leadId"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		team, err := s.service.CreateTeam(r.Context(), session, body.Name, body.LeadID)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"team": teamJSON(team)})

	case r.Method == http.MethodDelete && len(rest) == 1:
		if !s.allow(w, session, permission.AdminTeamsManage) {
			return
		}
		if err := s.service.DeleteTeam(r.Context(), session, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleMembers(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		if !s.allow(w, session, permission.AdminUsersRead) {
			return
		}
		members, err := s.service.ListMembers(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": membersJSON(members)})

	case r.Method == http.MethodPost && len(rest) == 0:
		if !s.allow(w, session, permission.AdminUsersManage) {
			return
		}
		var input CreateMemberInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		member, err := s.service.CreateMember(r.Context(), session, input)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"member": memberJSON(member)})

	case r.Method == http.MethodPatch && len(rest) == 1:
		if !s.allow(w, session, permission.AdminUsersManage) {
			return
		}
		var patch MemberPatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		member, err := s.service.UpdateMember(r.Context(), session, rest[0], patch)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"member": memberJSON(member)})

	case r.Method == http.MethodPost && len(rest) == 2 && (rest[1] == "activate" || rest[1] == "deactivate"):
		if !s.allow(w, session, permission.AdminUsersManage) {
			return
		}
		if err := s.service.SetMemberActive(r.Context(), session, rest[0], rest[1] == "activate"); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case r.Method == http.MethodGet && len(rest) == 2 && rest[1] == "permissions":
		if !s.allow(w, session, permission.AdminPermissionsManage) {
			return
		}
		states, err := s.service.MemberPermissions(r.Context(), session, rest[0])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": states})

	case r.Method == http.MethodPost && len(rest) == 4 && rest[1] == "permissions" && rest[3] == "toggle":
		if !s.allow(w, session, permission.AdminPermissionsManage) {
			return
		}
		states, err := s.service.TogglePermission(r.Context(), session, rest[0], rest[2])
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"permissions": states})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleLandingPages(w http.ResponseWriter, r *http.Request, session Session, rest []string) {
	switch {
	case r.Method == http.MethodGet && len(rest) == 0:
		if !s.allow(w, session, permission.AdminSettingsManage) {
			return
		}
		pages, err := s.service.ListLandingPages(r.Context(), session)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"pages": s.pagesJSON(pages)})

	case r.Method == http.MethodPost && len(rest) == 0:
		if !s.allow(w, session, permission.AdminSettingsManage) {
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		page, err := s.service.CreateLandingPage(r.Context(), session, body.Name)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"page": s.pageJSON(page)})

	case r.Method == http.MethodPatch && len(rest) == 1:
		if !s.allow(w, session, permission.AdminSettingsManage) {
			return
		}
		var patch PagePatch
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		page, err := s.service.UpdateLandingPage(r.Context(), session, rest[0], patch)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"page": s.pageJSON(page)})

	case r.Method == http.MethodDelete && len(rest) == 1:
		if !s.allow(w, session, permission.AdminSettingsManage) {
			return
		}
		if err := s.service.DeleteLandingPage(r.Context(), session, rest[0]); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// allow enforces one permission id and writes the 403 itself.
func (s *HTTPServer) allow(w http.ResponseWriter, session Session, permissionID string) bool {
	if !session.Can(permissionID) {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
		return false
	}
	return true
}

func (s *HTTPServer) fail(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusInternalServerError {
		log.Printf("request failed: %v", err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// parseRecordQuery reads the view parameters: q, repeated
// filter=fieldId:op:value triples, sortField and sortDir.
func parseRecordQuery(r *http.Request) (records.Query, error) {
	query := records.Query{
		Search: strings.TrimSpace(r.URL.Query().Get("q")),
	}
	for _, raw := range r.URL.Query()["filter"] {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) != 3 {
			return records.Query{}, fmt.Errorf("filter must be fieldId:op:value")
		}
		op := records.FilterOperator(parts[1])
		switch op {
		case records.OpContains, records.OpEquals, records.OpStartsWith, records.OpEndsWith:
		default:
			return records.Query{}, fmt.Errorf("unknown filter operator %q", parts[1])
		}
		query.Filters = append(query.Filters, records.ColumnFilter{
			FieldID:  parts[0],
			Operator: op,
			Value:    parts[2],
		})
	}
	if sortField := strings.TrimSpace(r.URL.Query().Get("sortField")); sortField != "" {
		direction := records.SortAsc
		switch strings.TrimSpace(r.URL.Query().Get("sortDir")) {
		case "", "asc":
		case "desc":
			direction = records.SortDesc
		default:
			return records.Query{}, fmt.Errorf("sortDir must be asc or desc")
		}
		query.Sort = &records.SortSpec{FieldID: sortField, Direction: direction}
	}
	return query, nil
}

func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("limit must be an integer")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			return 0, 0, fmt.Errorf("offset must be an integer")
		}
	}
	return limit, offset, nil
}

func sessionJSON(session Session, includeTokens bool) map[string]any {
	payload := map[string]any{
		"userId":   session.UserID,
		"userName": session.UserName,
		"orgId":    session.OrgID,
		"role":     session.Role,
	}
	permissions := make([]string, 0, len(session.Permissions))
	for id := range session.Permissions {
		permissions = append(permissions, id)
	}
	payload["permissions"] = permissions
	if includeTokens {
		payload["token"] = session.Token
		payload["refreshToken"] = session.RefreshToken
	}
	return payload
}

func customerJSON(c store.Customer) map[string]any {
	return map[string]any{
		"id":                  c.ID,
		"data":                c.Data,
		"assignedTo":          c.AssignedTo,
		"teamId":              c.TeamID,
		"sourceLandingPageId": c.SourceLandingPageID,
		"createdAt":           c.CreatedAt,
		"updatedAt":           c.UpdatedAt,
	}
}

func customersJSON(items []store.Customer) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, c := range items {
		out = append(out, customerJSON(c))
	}
	return out
}

func memberJSON(p store.UserProfile) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"email":       p.Email,
		"displayName": p.DisplayName,
		"role":        p.Role,
		"teamId":      p.TeamID,
		"isActive":    p.IsActive,
		"createdAt":   p.CreatedAt,
	}
}

func membersJSON(items []store.UserProfile) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		out = append(out, memberJSON(p))
	}
	return out
}

func teamJSON(t store.Team) map[string]any {
	return map[string]any{
		"id":          t.ID,
		"name":        t.Name,
		"leadId":      t.LeadID,
		"memberCount": t.MemberCount,
		"createdAt":   t.CreatedAt,
	}
}

func teamsJSON(items []store.Team) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, t := range items {
		out = append(out, teamJSON(t))
	}
	return out
}

func (s *HTTPServer) pageJSON(p store.LandingPage) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"slug":      p.Slug,
		"isActive":  p.IsActive,
		"content":   p.Content,
		"leadCount": p.LeadCount,
		"publicUrl": s.service.PublicURL(p.Slug),
		"createdAt": p.CreatedAt,
	}
}

func (s *HTTPServer) pagesJSON(items []store.LandingPage) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, p := range items {
		out = append(out, s.pageJSON(p))
	}
	return out
}
