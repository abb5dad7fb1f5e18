//go:build integration

package repositories

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/testhelpers"
)

// repoTestContext holds test dependencies for repository tests.
type repoTestContext struct {
	t           *testing.T
	trackerDB   *testhelpers.TrackerDB
	ctx         context.Context
	projects    ProjectRepository
	memberships MembershipRepository
	roles       RoleRepository
	tickets     TicketRepository
	statuses    StatusRepository
}

// setupRepoTest initializes the test context with the shared testcontainer.
func setupRepoTest(t *testing.T) *repoTestContext {
	trackerDB := testhelpers.GetTrackerDB(t)
	return &repoTestContext{
		t:           t,
		trackerDB:   trackerDB,
		ctx:         trackerDB.ScopedContext(t),
		projects:    NewProjectRepository(),
		memberships: NewMembershipRepository(),
		roles:       NewRoleRepository(),
		tickets:     NewTicketRepository(),
		statuses:    NewStatusRepository(),
	}
}

// uniqueEmail returns an email no other test uses, so tests can share one database.
func uniqueEmail(name string) string {
	return fmt.Sprintf("%s-%s@example.com", name, uuid.New().String()[:8])
}

// createProject creates a project owned by creator and removes it when the test ends.
func (tc *repoTestContext) createProject(title, creator string) *models.Project {
	tc.t.Helper()
	project := &models.Project{Title: title, Description: "test project"}
	if _, err := tc.projects.CreateWithAdmin(tc.ctx, project, creator); err != nil {
		tc.t.Fatalf("failed to create project: %v", err)
	}
	tc.t.Cleanup(func() {
		_ = tc.projects.Delete(tc.ctx, project.ID)
	})
	return project
}

// role returns the seeded role with the given title.
func (tc *repoTestContext) role(title models.RoleTitle) *models.Role {
	tc.t.Helper()
	role, err := tc.roles.GetByTitle(tc.ctx, title)
	if err != nil {
		tc.t.Fatalf("failed to get role %q: %v", title, err)
	}
	return role
}

// addMember adds email to the project with the given role.
func (tc *repoTestContext) addMember(projectID int64, email string, title models.RoleTitle) *models.Membership {
	tc.t.Helper()
	m := &models.Membership{ProjectID: projectID, UserEmail: email, RoleID: tc.role(title).ID}
	if err := tc.memberships.Add(tc.ctx, m); err != nil {
		tc.t.Fatalf("failed to add member %s: %v", email, err)
	}
	return m
}
