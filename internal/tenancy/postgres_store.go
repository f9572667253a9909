package tenancy

import (
	"context"

	"github.com/nextsaas/nextsaas/internal/auth"
	"github.com/nextsaas/nextsaas/internal/db/models"
	"github.com/nextsaas/nextsaas/internal/db/repositories"
)

// PostgresStore implements Store over the Postgres repositories
type PostgresStore struct {
	users         *repositories.UserRepository
	organizations *repositories.OrganizationRepository
	rbac          *repositories.RBACRepository
	subscriptions *repositories.SubscriptionRepository
	workspaces    *repositories.WorkspaceRepository
	projects      *repositories.ProjectRepository
	apiKeys       *repositories.APIKeyRepository
	quotas        *repositories.QuotaRepository
}

// Repositories bundles the repositories a PostgresStore reads from
type Repositories struct {
	Users         *repositories.UserRepository
	Organizations *repositories.OrganizationRepository
	RBAC          *repositories.RBACRepository
	Subscriptions *repositories.SubscriptionRepository
	Workspaces    *repositories.WorkspaceRepository
	Projects      *repositories.ProjectRepository
	APIKeys       *repositories.APIKeyRepository
	Quotas        *repositories.QuotaRepository
}

// NewPostgresStore creates a Store backed by the given repositories
func NewPostgresStore(r Repositories) *PostgresStore {
	return &PostgresStore{
		users:         r.Users,
		organizations: r.Organizations,
		rbac:          r.RBAC,
		subscriptions: r.Subscriptions,
		workspaces:    r.Workspaces,
		projects:      r.Projects,
		apiKeys:       r.APIKeys,
		quotas:        r.Quotas,
	}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) FindUser(ctx context.Context, userID string) Lookup[*models.User] {
	v, err := s.users.GetUserByID(ctx, userID)
	return FromRepo(v, err)
}

func (s *PostgresStore) FindOrganization(ctx context.Context, organizationID string) Lookup[*models.Organization] {
	v, err := s.organizations.GetByID(ctx, organizationID)
	return FromRepo(v, err)
}

func (s *PostgresStore) FindMembership(ctx context.Context, organizationID, userID string) Lookup[*models.OrganizationMember] {
	v, err := s.organizations.GetMember(ctx, organizationID, userID)
	return FromRepo(v, err)
}

func (s *PostgresStore) ResolvePermissions(ctx context.Context, organizationID, userID string) Lookup[[]string] {
	v, err := s.rbac.ResolvePermissions(ctx, organizationID, userID)
	return FromList(v, err)
}

func (s *PostgresStore) FindBillingStatus(ctx context.Context, organizationID string) Lookup[*models.Subscription] {
	v, err := s.subscriptions.GetCurrentSubscription(ctx, organizationID)
	return FromRepo(v, err)
}

func (s *PostgresStore) FindWorkspace(ctx context.Context, workspaceID string) Lookup[*models.Workspace] {
	v, err := s.workspaces.GetWorkspaceByID(ctx, workspaceID)
	return FromRepo(v, err)
}

func (s *PostgresStore) FindWorkspaceMember(ctx context.Context, workspaceID, userID string) Lookup[*models.WorkspaceMember] {
	v, err := s.workspaces.GetWorkspaceMember(ctx, workspaceID, userID)
	return FromRepo(v, err)
}

func (s *PostgresStore) FindProject(ctx context.Context, projectID string) Lookup[*models.Project] {
	v, err := s.projects.GetProjectByID(ctx, projectID)
	return FromRepo(v, err)
}

// FindAPIKey narrows candidates by display prefix within the organization, then compares
// bcrypt hashes. Several keys can share a prefix, so every candidate is tried.
func (s *PostgresStore) FindAPIKey(ctx context.Context, organizationID, rawKey string) Lookup[*models.APIKey] {
	if rawKey == "" {
		return NotFound[*models.APIKey]()
	}

	candidates, err := s.apiKeys.GetAPIKeysByPrefix(ctx, organizationID, auth.DisplayPrefix(rawKey))
	if err != nil {
		return Failed[*models.APIKey](err)
	}
	for _, key := range candidates {
		if auth.ValidateAPIKey(rawKey, key.KeyHash) {
			return Found(key)
		}
	}
	return NotFound[*models.APIKey]()
}

func (s *PostgresStore) TouchAPIKey(ctx context.Context, keyID string) error {
	return s.apiKeys.UpdateLastUsed(ctx, keyID)
}

func (s *PostgresStore) FindQuotas(ctx context.Context, organizationID, resourceType string) Lookup[[]models.Quota] {
	v, err := s.quotas.ListQuotas(ctx, organizationID, resourceType)
	return FromList(v, err)
}
