package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/j-keen/flexicrm/internal/schema"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateOrganization provisions a new tenant in one transaction: the
// organization row, its owner profile and the seed field definitions.
func (s *PostgresStore) CreateOrganization(ctx context.Context, org Organization, owner UserProfile, seed []schema.FieldDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin signup tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name)
		VALUES ($1, $2)
	`, org.ID, org.Name); err != nil {
		return fmt.Errorf("insert organization: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profiles (id, organization_id, email, password_hash, display_name, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
	`, owner.ID, org.ID, owner.Email, owner.PasswordHash, owner.DisplayName, owner.Role); err != nil {
		return fmt.Errorf("insert owner profile: %w", err)
	}

	for _, f := range seed {
		if err := insertField(ctx, tx, org.ID, f); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit signup tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (UserProfile, error) {
	var p UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, password_hash, display_name, role, team_id, is_active, created_at, updated_at
		FROM profiles
		WHERE email = $1
	`, email).Scan(&p.ID, &p.OrganizationID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.Role, &p.TeamID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return UserProfile{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetProfileByID(ctx context.Context, userID string) (UserProfile, error) {
	var p UserProfile
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, email, password_hash, display_name, role, team_id, is_active, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`, userID).Scan(&p.ID, &p.OrganizationID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.Role, &p.TeamID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return UserProfile{}, err
	}
	return p, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, organizationID string) ([]UserProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, email, password_hash, display_name, role, team_id, is_active, created_at, updated_at
		FROM profiles
		WHERE organization_id = $1
		ORDER BY created_at ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	items := make([]UserProfile, 0)
	for rows.Next() {
		var p UserProfile
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Email, &p.PasswordHash, &p.DisplayName, &p.Role, &p.TeamID, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertProfile(ctx context.Context, p UserProfile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, organization_id, email, password_hash, display_name, role, team_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	`, p.ID, p.OrganizationID, p.Email, p.PasswordHash, p.DisplayName, p.Role, p.TeamID)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMember(ctx context.Context, organizationID, userID, displayName, role string, teamID *string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET display_name=$3, role=$4, team_id=$5, updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, organizationID, userID, displayName, role, teamID)
	if err != nil {
		return false, fmt.Errorf("update member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update member rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SetMemberActive(ctx context.Context, organizationID, userID string, active bool) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET is_active=$3, updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, organizationID, userID, active)
	if err != nil {
		return false, fmt.Errorf("set member active: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set member active rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListTeams(ctx context.Context, organizationID string) ([]Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.organization_id, t.name, t.lead_id, t.created_at,
		       (SELECT COUNT(*) FROM profiles p WHERE p.team_id = t.id) AS member_count
		FROM teams t
		WHERE t.organization_id = $1
		ORDER BY t.created_at ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	items := make([]Team, 0)
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.LeadID, &t.CreatedAt, &t.MemberCount); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate teams: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertTeam(ctx context.Context, t Team) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teams (id, organization_id, name, lead_id)
		VALUES ($1, $2, $3, $4)
	`, t.ID, t.OrganizationID, t.Name, t.LeadID)
	if err != nil {
		return fmt.Errorf("insert team: %w", err)
	}
	return nil
}

// DeleteTeam removes a team and detaches its members in one transaction.
func (s *PostgresStore) DeleteTeam(ctx context.Context, organizationID, teamID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete team tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE profiles SET team_id=NULL, updated_at=NOW()
		WHERE organization_id=$1 AND team_id=$2
	`, organizationID, teamID); err != nil {
		return false, fmt.Errorf("detach team members: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM teams WHERE organization_id=$1 AND id=$2
	`, organizationID, teamID)
	if err != nil {
		return false, fmt.Errorf("delete team: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete team rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete team tx: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListOverrides(ctx context.Context, userID string) ([]PermissionOverride, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, permission_id, granted, created_at
		FROM permission_overrides
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	items := make([]PermissionOverride, 0)
	for rows.Next() {
		var o PermissionOverride
		if err := rows.Scan(&o.UserID, &o.PermissionID, &o.Granted, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate overrides: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) UpsertOverride(ctx context.Context, userID, permissionID string, granted bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO permission_overrides (user_id, permission_id, granted)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, permission_id) DO UPDATE SET granted=EXCLUDED.granted, created_at=NOW()
	`, userID, permissionID, granted)
	if err != nil {
		return fmt.Errorf("upsert override: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteOverride(ctx context.Context, userID, permissionID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM permission_overrides WHERE user_id=$1 AND permission_id=$2
	`, userID, permissionID)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFields(ctx context.Context, organizationID string) ([]schema.FieldDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, visible, position, is_system, width, layout, options
		FROM field_definitions
		WHERE organization_id = $1
		ORDER BY position ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	items := make([]schema.FieldDefinition, 0)
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return items, nil
}

func scanField(rows *sql.Rows) (schema.FieldDefinition, error) {
	var f schema.FieldDefinition
	var layoutJSON, optionsJSON []byte
	if err := rows.Scan(&f.ID, &f.Name, &f.Type, &f.Visible, &f.Order, &f.IsSystem, &f.Width, &layoutJSON, &optionsJSON); err != nil {
		return schema.FieldDefinition{}, fmt.Errorf("scan field: %w", err)
	}
	if len(layoutJSON) > 0 {
		var layout schema.Layout
		if err := json.Unmarshal(layoutJSON, &layout); err != nil {
			return schema.FieldDefinition{}, fmt.Errorf("decode field layout: %w", err)
		}
		f.Layout = &layout
	}
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &f.Options); err != nil {
			return schema.FieldDefinition{}, fmt.Errorf("decode field options: %w", err)
		}
	}
	return f, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertField(ctx context.Context, db execer, organizationID string, f schema.FieldDefinition) error {
	layoutJSON, optionsJSON, err := encodeFieldJSON(f)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `
		INSERT INTO field_definitions (id, organization_id, name, type, visible, position, is_system, width, layout, options)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, f.ID, organizationID, f.Name, f.Type, f.Visible, f.Order, f.IsSystem, f.Width, layoutJSON, optionsJSON); err != nil {
		return fmt.Errorf("insert field: %w", err)
	}
	return nil
}

func encodeFieldJSON(f schema.FieldDefinition) ([]byte, []byte, error) {
	var layoutJSON []byte
	if f.Layout != nil {
		var err error
		layoutJSON, err = json.Marshal(f.Layout)
		if err != nil {
			return nil, nil, fmt.Errorf("encode field layout: %w", err)
		}
	}
	options := f.Options
	if options == nil {
		options = []schema.SelectOption{}
	}
	optionsJSON, err := json.Marshal(options)
	if err != nil {
		return nil, nil, fmt.Errorf("encode field options: %w", err)
	}
	return layoutJSON, optionsJSON, nil
}

func (s *PostgresStore) InsertField(ctx context.Context, organizationID string, f schema.FieldDefinition) error {
	return insertField(ctx, s.db, organizationID, f)
}

func (s *PostgresStore) UpdateField(ctx context.Context, organizationID string, f schema.FieldDefinition) (bool, error) {
	layoutJSON, optionsJSON, err := encodeFieldJSON(f)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE field_definitions
		SET name=$3, type=$4, visible=$5, position=$6, width=$7, layout=$8, options=$9, updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, organizationID, f.ID, f.Name, f.Type, f.Visible, f.Order, f.Width, layoutJSON, optionsJSON)
	if err != nil {
		return false, fmt.Errorf("update field: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update field rows: %w", err)
	}
	return affected > 0, nil
}

// UpdateFieldPlacements persists order and layout for a batch of fields in
// one transaction. Used by reorder and by the layout backfill.
func (s *PostgresStore) UpdateFieldPlacements(ctx context.Context, organizationID string, fields []schema.FieldDefinition) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin placements tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range fields {
		var layoutJSON []byte
		if f.Layout != nil {
			layoutJSON, err = json.Marshal(f.Layout)
			if err != nil {
				return fmt.Errorf("encode field layout: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE field_definitions
			SET position=$3, layout=$4, updated_at=NOW()
			WHERE organization_id=$1 AND id=$2
		`, organizationID, f.ID, f.Order, layoutJSON); err != nil {
			return fmt.Errorf("update field placement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit placements tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteField(ctx context.Context, organizationID, fieldID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM field_definitions WHERE organization_id=$1 AND id=$2
	`, organizationID, fieldID)
	if err != nil {
		return false, fmt.Errorf("delete field: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete field rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context, organizationID string) ([]Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, data, assigned_to, team_id, source_landing_page_id, created_at, updated_at
		FROM customers
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	items := make([]Customer, 0)
	for rows.Next() {
		var c Customer
		var data []byte
		if err := rows.Scan(&c.ID, &c.OrganizationID, &data, &c.AssignedTo, &c.TeamID, &c.SourceLandingPageID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		if err := json.Unmarshal(data, &c.Data); err != nil {
			return nil, fmt.Errorf("decode customer data: %w", err)
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCustomer(ctx context.Context, organizationID, customerID string) (Customer, error) {
	var c Customer
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, data, assigned_to, team_id, source_landing_page_id, created_at, updated_at
		FROM customers
		WHERE organization_id=$1 AND id=$2 AND deleted_at IS NULL
	`, organizationID, customerID).Scan(&c.ID, &c.OrganizationID, &data, &c.AssignedTo, &c.TeamID, &c.SourceLandingPageID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	if err := json.Unmarshal(data, &c.Data); err != nil {
		return Customer{}, fmt.Errorf("decode customer data: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) InsertCustomer(ctx context.Context, c Customer) error {
	data, err := json.Marshal(c.Data)
	if err != nil {
		return fmt.Errorf("encode customer data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (id, organization_id, data, assigned_to, team_id, source_landing_page_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.OrganizationID, data, c.AssignedTo, c.TeamID, c.SourceLandingPageID)
	if err != nil {
		return fmt.Errorf("insert customer: %w", err)
	}
	return nil
}

// UpdateCustomerData replaces the whole document.
func (s *PostgresStore) UpdateCustomerData(ctx context.Context, organizationID, customerID string, data map[string]any) (bool, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return false, fmt.Errorf("encode customer data: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET data=$3, updated_at=NOW()
		WHERE organization_id=$1 AND id=$2 AND deleted_at IS NULL
	`, organizationID, customerID, encoded)
	if err != nil {
		return false, fmt.Errorf("update customer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update customer rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) SoftDeleteCustomer(ctx context.Context, organizationID, customerID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET deleted_at=NOW()
		WHERE organization_id=$1 AND id=$2 AND deleted_at IS NULL
	`, organizationID, customerID)
	if err != nil {
		return false, fmt.Errorf("soft delete customer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete customer rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListRules(ctx context.Context, organizationID string) ([]AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, trigger_field_id, trigger_value, target_field_id, target_value, position
		FROM automation_rules
		WHERE organization_id = $1
		ORDER BY position ASC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	items := make([]AutomationRule, 0)
	for rows.Next() {
		var r AutomationRule
		var triggerJSON, targetJSON []byte
		if err := rows.Scan(&r.ID, &r.OrganizationID, &r.TriggerFieldID, &triggerJSON, &r.TargetFieldID, &targetJSON, &r.Position); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if err := json.Unmarshal(triggerJSON, &r.TriggerValue); err != nil {
			return nil, fmt.Errorf("decode trigger value: %w", err)
		}
		if err := json.Unmarshal(targetJSON, &r.TargetValue); err != nil {
			return nil, fmt.Errorf("decode target value: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rules: %w", err)
	}
	return items, nil
}

// ReplaceRules swaps the organization's whole rule set atomically: readers
// never observe the empty window between delete and insert.
func (s *PostgresStore) ReplaceRules(ctx context.Context, organizationID string, items []AutomationRule) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace rules tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM automation_rules WHERE organization_id=$1
	`, organizationID); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	for i, r := range items {
		triggerJSON, err := json.Marshal(r.TriggerValue)
		if err != nil {
			return fmt.Errorf("encode trigger value: %w", err)
		}
		targetJSON, err := json.Marshal(r.TargetValue)
		if err != nil {
			return fmt.Errorf("encode target value: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO automation_rules (id, organization_id, trigger_field_id, trigger_value, target_field_id, target_value, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.ID, organizationID, r.TriggerFieldID, triggerJSON, r.TargetFieldID, targetJSON, i); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace rules tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListLandingPages(ctx context.Context, organizationID string) ([]LandingPage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.organization_id, p.name, p.slug, p.is_active, p.content, p.created_at, p.updated_at,
		       (SELECT COUNT(*) FROM customers c WHERE c.source_landing_page_id = p.id) AS lead_count
		FROM landing_pages p
		WHERE p.organization_id = $1
		ORDER BY p.created_at DESC
	`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("list landing pages: %w", err)
	}
	defer rows.Close()

	items := make([]LandingPage, 0)
	for rows.Next() {
		var p LandingPage
		var content []byte
		if err := rows.Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Slug, &p.IsActive, &content, &p.CreatedAt, &p.UpdatedAt, &p.LeadCount); err != nil {
			return nil, fmt.Errorf("scan landing page: %w", err)
		}
		if err := json.Unmarshal(content, &p.Content); err != nil {
			return nil, fmt.Errorf("decode page content: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate landing pages: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetLandingPage(ctx context.Context, organizationID, pageID string) (LandingPage, error) {
	return s.getPage(ctx, `organization_id=$1 AND id=$2`, organizationID, pageID)
}

// GetLandingPageBySlug resolves a public slug without an org filter; the
// caller decides what inactive means.
func (s *PostgresStore) GetLandingPageBySlug(ctx context.Context, slug string) (LandingPage, error) {
	return s.getPage(ctx, `slug=$1`, slug)
}

func (s *PostgresStore) getPage(ctx context.Context, where string, args ...any) (LandingPage, error) {
	var p LandingPage
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name, slug, is_active, content, created_at, updated_at
		FROM landing_pages
		WHERE `+where, args...).Scan(&p.ID, &p.OrganizationID, &p.Name, &p.Slug, &p.IsActive, &content, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return LandingPage{}, err
	}
	if err := json.Unmarshal(content, &p.Content); err != nil {
		return LandingPage{}, fmt.Errorf("decode page content: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM landing_pages WHERE slug=$1)`, slug).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return taken, nil
}

func (s *PostgresStore) InsertLandingPage(ctx context.Context, p LandingPage) error {
	content, err := json.Marshal(p.Content)
	if err != nil {
		return fmt.Errorf("encode page content: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO landing_pages (id, organization_id, name, slug, is_active, content)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.ID, p.OrganizationID, p.Name, p.Slug, p.IsActive, content)
	if err != nil {
		return fmt.Errorf("insert landing page: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateLandingPage(ctx context.Context, organizationID string, p LandingPage) (bool, error) {
	content, err := json.Marshal(p.Content)
	if err != nil {
		return false, fmt.Errorf("encode page content: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE landing_pages
		SET name=$3, is_active=$4, content=$5, updated_at=NOW()
		WHERE organization_id=$1 AND id=$2
	`, organizationID, p.ID, p.Name, p.IsActive, content)
	if err != nil {
		return false, fmt.Errorf("update landing page: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update landing page rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) DeleteLandingPage(ctx context.Context, organizationID, pageID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM landing_pages WHERE organization_id=$1 AND id=$2
	`, organizationID, pageID)
	if err != nil {
		return false, fmt.Errorf("delete landing page: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete landing page rows: %w", err)
	}
	return affected > 0, nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation, for callers that race an exists-check against an insert.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
