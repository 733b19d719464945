// Package permission holds the static permission catalog, role defaults and
// effective-permission resolution. It only answers queries; enforcement is
// the caller's responsibility at each route boundary.
package permission

type Role string
type Category string

const (
	RoleCEO      Role = "ceo"
	RoleTeamLead Role = "team_lead"
	RoleStaff    Role = "staff"
)

const (
	CategorySchema  Category = "schema"
	CategoryData    Category = "data"
	CategoryAdmin   Category = "admin"
	CategoryFeature Category = "feature"
)

const (
	SchemaFieldsRead       = "schema.fields.read"
	SchemaFieldsCreate     = "schema.fields.create"
	SchemaFieldsUpdate     = "schema.fields.update"
	SchemaFieldsDelete     = "schema.fields.delete"
	SchemaAutomationRead   = "schema.automation.read"
	SchemaAutomationManage = "schema.automation.manage"

	DataCustomersReadAll    = "data.customers.read.all"
	DataCustomersReadTeam   = "data.customers.read.team"
	DataCustomersReadOwn    = "data.customers.read.own"
	DataCustomersCreate     = "data.customers.create"
	DataCustomersUpdateAll  = "data.customers.update.all"
	DataCustomersUpdateTeam = "data.customers.update.team"
	DataCustomersUpdateOwn  = "data.customers.update.own"
	DataCustomersDelete     = "data.customers.delete"
	DataCustomersExport     = "data.customers.export"

	AdminUsersRead         = "admin.users.read"
	AdminUsersManage       = "admin.users.manage"
	AdminTeamsManage       = "admin.teams.manage"
	AdminPermissionsManage = "admin.permissions.manage"
	AdminAuditRead         = "admin.audit.read"
	AdminSettingsManage    = "admin.settings.manage"

	FeatureReportsView   = "feature.reports.view"
	FeatureReportsCreate = "feature.reports.create"
	FeatureAPIAccess     = "feature.api.access"
)

// Definition is an immutable catalog entry. The catalog is global and not
// tenant-scoped.
type Definition struct {
	ID          string   `json:"id"`
	Category    Category `json:"category"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
}

// Override layers a per-user grant or denial on top of the role defaults.
// At most one override exists per (user, permission) pair.
type Override struct {
	UserID       string `json:"userId"`
	PermissionID string `json:"permissionId"`
	Granted      bool   `json:"granted"`
	GrantedBy    string `json:"grantedBy"`
}

// State is the 3-state display value for a single permission.
type State string

const (
	StateGranted State = "granted"
	StateDenied  State = "denied"
	StateDefault State = "default"
)

var catalog = []Definition{
	{ID: SchemaFieldsRead, Category: CategorySchema, Name: "View fields", Description: "View field definitions"},
	{ID: SchemaFieldsCreate, Category: CategorySchema, Name: "Create fields", Description: "Add new field definitions"},
	{ID: SchemaFieldsUpdate, Category: CategorySchema, Name: "Edit fields", Description: "Rename, reorder and lay out fields"},
	{ID: SchemaFieldsDelete, Category: CategorySchema, Name: "Delete fields", Description: "Remove non-system field definitions"},
	{ID: SchemaAutomationRead, Category: CategorySchema, Name: "View automation", Description: "View dependency rules"},
	{ID: SchemaAutomationManage, Category: CategorySchema, Name: "Manage automation", Description: "Edit dependency rules"},

	{ID: DataCustomersReadAll, Category: CategoryData, Name: "Read all customers", Description: "Read every customer record in the organization"},
	{ID: DataCustomersReadTeam, Category: CategoryData, Name: "Read team customers", Description: "Read customer records assigned to the user's team"},
	{ID: DataCustomersReadOwn, Category: CategoryData, Name: "Read own customers", Description: "Read customer records assigned to the user"},
	{ID: DataCustomersCreate, Category: CategoryData, Name: "Create customers", Description: "Create customer records"},
	{ID: DataCustomersUpdateAll, Category: CategoryData, Name: "Update all customers", Description: "Update every customer record"},
	{ID: DataCustomersUpdateTeam, Category: CategoryData, Name: "Update team customers", Description: "Update team customer records"},
	{ID: DataCustomersUpdateOwn, Category: CategoryData, Name: "Update own customers", Description: "Update own customer records"},
	{ID: DataCustomersDelete, Category: CategoryData, Name: "Delete customers", Description: "Soft-delete customer records"},
	{ID: DataCustomersExport, Category: CategoryData, Name: "Export customers", Description: "Export customer records to CSV"},

	{ID: AdminUsersRead, Category: CategoryAdmin, Name: "View members", Description: "View member profiles"},
	{ID: AdminUsersManage, Category: CategoryAdmin, Name: "Manage members", Description: "Invite, edit and deactivate members"},
	{ID: AdminTeamsManage, Category: CategoryAdmin, Name: "Manage teams", Description: "Create and delete teams"},
	{ID: AdminPermissionsManage, Category: CategoryAdmin, Name: "Manage permissions", Description: "Toggle per-member permission overrides"},
	{ID: AdminAuditRead, Category: CategoryAdmin, Name: "View audit", Description: "Read the audit trail"},
	{ID: AdminSettingsManage, Category: CategoryAdmin, Name: "Manage settings", Description: "Edit organization settings and landing pages"},

	{ID: FeatureReportsView, Category: CategoryFeature, Name: "View reports", Description: "View reports"},
	{ID: FeatureReportsCreate, Category: CategoryFeature, Name: "Create reports", Description: "Create reports"},
	{ID: FeatureAPIAccess, Category: CategoryFeature, Name: "API access", Description: "Use the external API"},
}

var teamLeadDefaults = []string{
	SchemaFieldsRead,
	SchemaAutomationRead,
	DataCustomersReadAll,
	DataCustomersReadTeam,
	DataCustomersReadOwn,
	DataCustomersCreate,
	DataCustomersUpdateTeam,
	DataCustomersUpdateOwn,
	DataCustomersExport,
	AdminUsersRead,
	AdminAuditRead,
	FeatureReportsView,
}

var staffDefaults = []string{
	SchemaFieldsRead,
	DataCustomersReadOwn,
	DataCustomersCreate,
	DataCustomersUpdateOwn,
	FeatureReportsView,
}

// Catalog returns the full immutable permission catalog.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Normalize maps an arbitrary role string onto a known role, defaulting to
// the least privileged one.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleCEO, RoleTeamLead, RoleStaff:
		return Role(role)
	default:
		return RoleStaff
	}
}

// RoleDefaults returns the default grant set for a role. CEO holds every
// catalog permission.
func RoleDefaults(role Role) map[string]struct{} {
	out := make(map[string]struct{})
	switch role {
	case RoleCEO:
		for _, def := range catalog {
			out[def.ID] = struct{}{}
		}
	case RoleTeamLead:
		for _, id := range teamLeadDefaults {
			out[id] = struct{}{}
		}
	case RoleStaff:
		for _, id := range staffDefaults {
			out[id] = struct{}{}
		}
	}
	return out
}

// Effective resolves the permission set for a role plus a user's overrides.
// A granted override adds, a denied override removes. Overrides are applied
// in iteration order; the store guarantees at most one per permission, and
// if that invariant is violated the last one wins.
func Effective(role Role, overrides []Override) map[string]struct{} {
	set := RoleDefaults(role)
	for _, o := range overrides {
		if o.Granted {
			set[o.PermissionID] = struct{}{}
		} else {
			delete(set, o.PermissionID)
		}
	}
	return set
}

// Has is a membership test against a precomputed effective set.
func Has(set map[string]struct{}, permissionID string) bool {
	_, ok := set[permissionID]
	return ok
}

// StateOf reports the 3-state display value for one permission.
func StateOf(permissionID string, overrides []Override) State {
	for _, o := range overrides {
		if o.PermissionID == permissionID {
			if o.Granted {
				return StateGranted
			}
			return StateDenied
		}
	}
	return StateDefault
}

// ToggleDecision describes what a toggle should do to the override store.
type ToggleDecision struct {
	// RemoveOverride reverts the permission to its role default.
	RemoveOverride bool
	// Granted is the value for the new override when one is created.
	Granted bool
}

// Toggle computes the 2-state toggle over the 3-state display: with no
// override present, create one inverting the current effective value; with
// an override present, delete it.
func Toggle(role Role, permissionID string, overrides []Override) ToggleDecision {
	if StateOf(permissionID, overrides) != StateDefault {
		return ToggleDecision{RemoveOverride: true}
	}
	base := Has(RoleDefaults(role), permissionID)
	return ToggleDecision{Granted: !base}
}
