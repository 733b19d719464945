package store

import "time"

type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type UserProfile struct {
	ID             string
	OrganizationID string
	Email          string
	PasswordHash   string
	DisplayName    string
	Role           string
	TeamID         *string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Team struct {
	ID             string
	OrganizationID string
	Name           string
	LeadID         *string
	MemberCount    int
	CreatedAt      time.Time
}

// PermissionOverride is one per-member grant or denial layered over the
// member's role defaults.
type PermissionOverride struct {
	UserID       string
	PermissionID string
	Granted      bool
	CreatedAt    time.Time
}

type Customer struct {
	ID                  string
	OrganizationID      string
	Data                map[string]any
	AssignedTo          *string
	TeamID              *string
	SourceLandingPageID *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	DeletedAt           *time.Time
}

type AutomationRule struct {
	ID             string
	OrganizationID string
	TriggerFieldID string
	TriggerValue   any
	TargetFieldID  string
	TargetValue    any
	Position       int
}

// PageContent is the editable template of a public landing page. Stored
// sparse; every read merges it over the defaults field by field.
type PageContent struct {
	Title            string `json:"title,omitempty"`
	Description      string `json:"description,omitempty"`
	InputLabel       string `json:"inputLabel,omitempty"`
	InputPlaceholder string `json:"inputPlaceholder,omitempty"`
	ButtonText       string `json:"buttonText,omitempty"`
	SuccessTitle     string `json:"successTitle,omitempty"`
	SuccessMessage   string `json:"successMessage,omitempty"`
	PrimaryColor     string `json:"primaryColor,omitempty"`
}

// DefaultPageContent is what a page renders before any customization.
func DefaultPageContent() PageContent {
	return PageContent{
		Title:            "Get in touch",
		Description:      "Leave your phone number and we will call you back.",
		InputLabel:       "Phone number",
		InputPlaceholder: "Enter your phone number",
		ButtonText:       "Request a call",
		SuccessTitle:     "Thank you!",
		SuccessMessage:   "We received your request and will contact you shortly.",
		PrimaryColor:     "#2563eb",
	}
}

// WithDefaults fills empty fields from the default template.
func (c PageContent) WithDefaults() PageContent {
	d := DefaultPageContent()
	if c.Title == "" {
		c.Title = d.Title
	}
	if c.Description == "" {
		c.Description = d.Description
	}
	if c.InputLabel == "" {
		c.InputLabel = d.InputLabel
	}
	if c.InputPlaceholder == "" {
		c.InputPlaceholder = d.InputPlaceholder
	}
	if c.ButtonText == "" {
		c.ButtonText = d.ButtonText
	}
	if c.SuccessTitle == "" {
		c.SuccessTitle = d.SuccessTitle
	}
	if c.SuccessMessage == "" {
		c.SuccessMessage = d.SuccessMessage
	}
	if c.PrimaryColor == "" {
		c.PrimaryColor = d.PrimaryColor
	}
	return c
}

type LandingPage struct {
	ID             string
	OrganizationID string
	Name           string
	Slug           string
	IsActive       bool
	Content        PageContent
	LeadCount      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
