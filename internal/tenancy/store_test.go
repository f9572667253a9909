package tenancy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nextsaas/nextsaas/internal/db/models"
)

var errStoreDown = errors.New("connection refused")

// fakeStore is an in-memory Store. Entries in fail force a Failed lookup for that method.
type fakeStore struct {
	mu sync.Mutex

	users            map[string]*models.User
	orgs             map[string]*models.Organization
	members          map[string]*models.OrganizationMember // org|user
	permissions      map[string][]string                   // org|user
	subscriptions    map[string]*models.Subscription
	workspaces       map[string]*models.Workspace
	workspaceMembers map[string]*models.WorkspaceMember // workspace|user
	projects         map[string]*models.Project
	apiKeys          map[string]*models.APIKey // raw key
	quotas           map[string][]models.Quota // org|resource

	fail      map[string]bool
	touchErr  error
	touchHook func(ctx context.Context)
	touched   []string
	calls     []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:            map[string]*models.User{},
		orgs:             map[string]*models.Organization{},
		members:          map[string]*models.OrganizationMember{},
		permissions:      map[string][]string{},
		subscriptions:    map[string]*models.Subscription{},
		workspaces:       map[string]*models.Workspace{},
		workspaceMembers: map[string]*models.WorkspaceMember{},
		projects:         map[string]*models.Project{},
		apiKeys:          map[string]*models.APIKey{},
		quotas:           map[string][]models.Quota{},
		fail:             map[string]bool{},
	}
}

func pair(a, b string) string { return a + "|" + b }

func lookupPtr[T any](s *fakeStore, method string, m map[string]*T, key string) Lookup[*T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, method)
	if s.fail[method] {
		return Failed[*T](errStoreDown)
	}
	return FromRepo(m[key], nil)
}

func (s *fakeStore) FindUser(_ context.Context, userID string) Lookup[*models.User] {
	return lookupPtr(s, "FindUser", s.users, userID)
}

func (s *fakeStore) FindOrganization(_ context.Context, orgID string) Lookup[*models.Organization] {
	return lookupPtr(s, "FindOrganization", s.orgs, orgID)
}

func (s *fakeStore) FindMembership(_ context.Context, orgID, userID string) Lookup[*models.OrganizationMember] {
	return lookupPtr(s, "FindMembership", s.members, pair(orgID, userID))
}

func (s *fakeStore) ResolvePermissions(_ context.Context, orgID, userID string) Lookup[[]string] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "ResolvePermissions")
	if s.fail["ResolvePermissions"] {
		return Failed[[]string](errStoreDown)
	}
	return FromList(s.permissions[pair(orgID, userID)], nil)
}

func (s *fakeStore) FindBillingStatus(_ context.Context, orgID string) Lookup[*models.Subscription] {
	return lookupPtr(s, "FindBillingStatus", s.subscriptions, orgID)
}

func (s *fakeStore) FindWorkspace(_ context.Context, workspaceID string) Lookup[*models.Workspace] {
	return lookupPtr(s, "FindWorkspace", s.workspaces, workspaceID)
}

func (s *fakeStore) FindWorkspaceMember(_ context.Context, workspaceID, userID string) Lookup[*models.WorkspaceMember] {
	return lookupPtr(s, "FindWorkspaceMember", s.workspaceMembers, pair(workspaceID, userID))
}

func (s *fakeStore) FindProject(_ context.Context, projectID string) Lookup[*models.Project] {
	return lookupPtr(s, "FindProject", s.projects, projectID)
}

func (s *fakeStore) FindAPIKey(_ context.Context, _ string, rawKey string) Lookup[*models.APIKey] {
	return lookupPtr(s, "FindAPIKey", s.apiKeys, rawKey)
}

func (s *fakeStore) TouchAPIKey(ctx context.Context, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.touchHook != nil {
		s.touchHook(ctx)
	}
	s.touched = append(s.touched, keyID)
	return s.touchErr
}

func (s *fakeStore) FindQuotas(_ context.Context, orgID, resourceType string) Lookup[[]models.Quota] {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, "FindQuotas")
	if s.fail["FindQuotas"] {
		return Failed[[]models.Quota](errStoreDown)
	}
	return FromList(s.quotas[pair(orgID, resourceType)], nil)
}

func (s *fakeStore) called(method string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == method {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// seedTenant stores a confirmed user, an active organization and an active membership
func seedTenant(s *fakeStore, orgID, userID, role string, permissions ...string) {
	confirmed := fixedNow.Add(-24 * time.Hour)
	s.users[userID] = &models.User{ID: userID, Email: userID + "@example.com", EmailConfirmedAt: &confirmed}
	s.orgs[orgID] = &models.Organization{ID: orgID, Name: "Acme", Slug: "acme", Status: models.OrganizationStatusActive}
	if permissions == nil {
		permissions = []string{}
	}
	s.members[pair(orgID, userID)] = &models.OrganizationMember{
		OrganizationID: orgID,
		UserID:         userID,
		Role:           role,
		Status:         models.MemberStatusActive,
		Permissions:    permissions,
	}
}

func syncRunner(fn func()) { fn() }

func newTestValidator(s Store, opts ...Option) *Validator {
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithBackgroundRunner(syncRunner),
	}
	return NewValidator(s, append(base, opts...)...)
}
