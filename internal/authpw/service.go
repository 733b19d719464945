// Package authpw provides username/password authentication and tenant
// provisioning.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/j-keen/flexicrm/internal/permission"
	"github.com/j-keen/flexicrm/internal/schema"
	"github.com/j-keen/flexicrm/internal/store"
	"github.com/j-keen/flexicrm/internal/util"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrAccountInactive    = errors.New("account is deactivated")
	ErrUsernameTaken      = errors.New("username already registered")
)

// UserStore defines the storage interface for auth.
type UserStore interface {
	GetProfileByEmail(ctx context.Context, email string) (store.UserProfile, error)
	CreateOrganization(ctx context.Context, org store.Organization, owner store.UserProfile, seed []schema.FieldDefinition) error
}

// Service authenticates members and provisions organizations.
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// CanonicalEmail maps a short username to the internal account email:
// trimmed, lowercased, @crm.team appended.
func CanonicalEmail(username string) string {
	return strings.ToLower(strings.TrimSpace(username)) + "@crm.team"
}

// canonicalPassword applies the fixed suffix transform before hashing or
// verification. Both sign-up and sign-in must use the same mapping or
// stored hashes never match.
func canonicalPassword(password string) string {
	return password + "##crm"
}

// SignUpRequest contains sign-up parameters.
type SignUpRequest struct {
	Username         string
	Password         string
	DisplayName      string
	OrganizationName string
}

// SignUp provisions a new organization with the caller as its ceo. The
// organization, owner profile and seed schema are created in one
// transaction.
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.UserProfile, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" || req.OrganizationName == "" {
		return store.UserProfile{}, errors.New("username, password and organization name are required")
	}
	if len(req.Password) < 6 {
		return store.UserProfile{}, errors.New("password must be at least 6 characters")
	}

	email := CanonicalEmail(username)
	if _, err := s.store.GetProfileByEmail(ctx, email); err == nil {
		return store.UserProfile{}, ErrUsernameTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(canonicalPassword(req.Password)), bcrypt.DefaultCost)
	if err != nil {
		return store.UserProfile{}, fmt.Errorf("hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	org := store.Organization{
		ID:   util.NewID("org"),
		Name: strings.TrimSpace(req.OrganizationName),
	}
	owner := store.UserProfile{
		ID:           util.NewID("usr"),
		Email:        email,
		PasswordHash: string(hash),
		DisplayName:  displayName,
		Role:         string(permission.RoleCEO),
	}

	if err := s.store.CreateOrganization(ctx, org, owner, SeedFields()); err != nil {
		return store.UserProfile{}, fmt.Errorf("provision organization: %w", err)
	}

	owner.OrganizationID = org.ID
	owner.IsActive = true
	return owner, nil
}

// SignIn verifies a username/password pair against the stored hash.
func (s *Service) SignIn(ctx context.Context, username, password string) (store.UserProfile, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return store.UserProfile{}, ErrInvalidCredentials
	}

	profile, err := s.store.GetProfileByEmail(ctx, CanonicalEmail(username))
	if err != nil {
		return store.UserProfile{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(profile.PasswordHash), []byte(canonicalPassword(password))); err != nil {
		return store.UserProfile{}, ErrInvalidCredentials
	}
	if !profile.IsActive {
		return store.UserProfile{}, ErrAccountInactive
	}
	return profile, nil
}

// HashPassword is used when an admin creates a member account.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(canonicalPassword(password)), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// SeedFields is the schema every new organization starts with.
func SeedFields() []schema.FieldDefinition {
	name := schema.DefaultLayout(0)
	mobile := schema.DefaultLayout(1)
	status := schema.DefaultLayout(2)
	return []schema.FieldDefinition{
		{ID: "name", Name: "Name", Type: schema.TypeText, Visible: true, Order: 0, IsSystem: true, Width: schema.DefaultColumnWidth, Layout: &name},
		{ID: "mobile", Name: "Mobile", Type: schema.TypeText, Visible: true, Order: 1, IsSystem: true, Width: schema.DefaultColumnWidth, Layout: &mobile},
		{ID: "status", Name: "Status", Type: schema.TypeSelect, Visible: true, Order: 2, Width: schema.DefaultColumnWidth, Layout: &status, Options: []schema.SelectOption{
			{ID: "status_new", Label: "New", Color: "#3b82f6"},
			{ID: "status_in_progress", Label: "In Progress", Color: "#f59e0b"},
			{ID: "status_won", Label: "Won", Color: "#22c55e"},
			{ID: "status_lost", Label: "Lost", Color: "#ef4444"},
		}},
	}
}
