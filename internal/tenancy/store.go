package tenancy

import (
	"context"

	"github.com/nextsaas/nextsaas/internal/db/models"
)

// Store is the read model the validators depend on. One method per query, each returning
// a tagged Lookup; TouchAPIKey is the only write.
type Store interface {
	FindUser(ctx context.Context, userID string) Lookup[*models.User]
	FindOrganization(ctx context.Context, organizationID string) Lookup[*models.Organization]
	FindMembership(ctx context.Context, organizationID, userID string) Lookup[*models.OrganizationMember]

	// ResolvePermissions returns role defaults plus explicit grants. NotFound means the
	// resolver has nothing recorded and the membership's own list should be used.
	ResolvePermissions(ctx context.Context, organizationID, userID string) Lookup[[]string]

	// FindBillingStatus returns the organization's current subscription
	FindBillingStatus(ctx context.Context, organizationID string) Lookup[*models.Subscription]

	FindWorkspace(ctx context.Context, workspaceID string) Lookup[*models.Workspace]
	FindWorkspaceMember(ctx context.Context, workspaceID, userID string) Lookup[*models.WorkspaceMember]
	FindProject(ctx context.Context, projectID string) Lookup[*models.Project]

	// FindAPIKey resolves a raw key presented by a client, scoped to one organization
	FindAPIKey(ctx context.Context, organizationID, rawKey string) Lookup[*models.APIKey]
	TouchAPIKey(ctx context.Context, keyID string) error

	// FindQuotas returns every quota row for the resource type; NotFound means unlimited
	FindQuotas(ctx context.Context, organizationID, resourceType string) Lookup[[]models.Quota]
}
