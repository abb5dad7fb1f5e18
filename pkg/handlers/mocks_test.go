package handlers

import (
	"context"
	"net/http"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/auth"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
	"github.com/ekaya-inc/ekaya-tracker/pkg/services"
)

// testEmailHeader carries the caller identity into headerAuthService.
const testEmailHeader = "X-Test-Email"

// headerAuthService authenticates whoever is named in testEmailHeader.
type headerAuthService struct{}

func (headerAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	email := r.Header.Get(testEmailHeader)
	if email == "" {
		return nil, "", auth.ErrMissingAuthorization
	}
	return &auth.Claims{Email: email}, "test-token", nil
}

func (headerAuthService) RequireEmail(claims *auth.Claims) error {
	if claims.UserEmail() == "" {
		return auth.ErrMissingEmail
	}
	return nil
}

// accessStore is an in-memory RoleSource and ProjectSource.
type accessStore struct {
	projects map[int64]*models.Project
	roles    map[int64]map[string]models.RoleTitle
	err      error
}

func newAccessStore() *accessStore {
	return &accessStore{
		projects: make(map[int64]*models.Project),
		roles:    make(map[int64]map[string]models.RoleTitle),
	}
}

func (s *accessStore) grant(projectID int64, email string, role models.RoleTitle) {
	if _, ok := s.projects[projectID]; !ok {
		s.projects[projectID] = &models.Project{ID: projectID, Title: "Project", Version: 1}
	}
	if s.roles[projectID] == nil {
		s.roles[projectID] = make(map[string]models.RoleTitle)
	}
	s.roles[projectID][email] = role
}

func (s *accessStore) GetMemberRoles(ctx context.Context, projectID int64, email string) ([]*models.Membership, error) {
	if s.err != nil {
		return nil, s.err
	}
	role, ok := s.roles[projectID][email]
	if !ok {
		return nil, nil
	}
	return []*models.Membership{{ID: 1, ProjectID: projectID, UserEmail: email, RoleTitle: role}}, nil
}

func (s *accessStore) Get(ctx context.Context, id int64) (*models.Project, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

func passthroughScope(next http.HandlerFunc) http.HandlerFunc {
	return next
}

// mockProjectService authorizes like the real service and returns canned data.
type mockProjectService struct {
	projects   []*models.Project
	view       *services.ProjectView
	currentErr error
	err        error

	capturedCreate  *models.Project
	capturedUpdate  *models.Project
	capturedCurrent int64
}

func (m *mockProjectService) List(ctx context.Context, userEmail string) ([]*models.Project, error) {
	return m.projects, m.err
}

func (m *mockProjectService) Create(ctx context.Context, userEmail string, project *models.Project) (*models.Project, error) {
	m.capturedCreate = project
	if m.err != nil {
		return nil, m.err
	}
	project.ID = 42
	return project, nil
}

func (m *mockProjectService) Get(ctx context.Context, pc *authz.ProjectContext) (*services.ProjectView, error) {
	if err := authz.Require(authz.ActionViewTickets, pc); err != nil {
		return nil, err
	}
	return &services.ProjectView{Project: pc.Project(), Role: pc.Role()}, m.err
}

func (m *mockProjectService) Update(ctx context.Context, pc *authz.ProjectContext, project *models.Project) (*models.Project, error) {
	if err := authz.Require(authz.ActionAdministerProject, pc); err != nil {
		return nil, err
	}
	m.capturedUpdate = project
	if m.err != nil {
		return nil, m.err
	}
	return project, nil
}

func (m *mockProjectService) Delete(ctx context.Context, pc *authz.ProjectContext) error {
	if err := authz.Require(authz.ActionAdministerProject, pc); err != nil {
		return err
	}
	return m.err
}

func (m *mockProjectService) Current(ctx context.Context, userEmail string, projectID int64) (*services.ProjectView, error) {
	m.capturedCurrent = projectID
	if m.currentErr != nil {
		return nil, m.currentErr
	}
	return m.view, nil
}

type mockMembershipService struct {
	addResult *services.AddPeopleResult
	err       error

	capturedEmails []string
	capturedRoleID int64
	capturedMember int64
}

func (m *mockMembershipService) List(ctx context.Context, pc *authz.ProjectContext) (*services.MemberList, error) {
	if err := authz.Require(authz.ActionManageMembers, pc); err != nil {
		return nil, err
	}
	return &services.MemberList{Members: []*models.Membership{}, Roles: []*models.Role{}}, m.err
}

func (m *mockMembershipService) AddPeople(ctx context.Context, pc *authz.ProjectContext, emails []string, roleID int64) (*services.AddPeopleResult, error) {
	if err := authz.Require(authz.ActionManageMembers, pc); err != nil {
		return nil, err
	}
	m.capturedEmails, m.capturedRoleID = emails, roleID
	if m.err != nil {
		return nil, m.err
	}
	if m.addResult != nil {
		return m.addResult, nil
	}
	return &services.AddPeopleResult{Added: []*models.Membership{{ID: 7}}, Skipped: []string{}}, nil
}

func (m *mockMembershipService) UpdateRole(ctx context.Context, pc *authz.ProjectContext, membershipID, roleID int64) (*models.Membership, error) {
	if err := authz.Require(authz.ActionManageMembers, pc); err != nil {
		return nil, err
	}
	m.capturedMember, m.capturedRoleID = membershipID, roleID
	if m.err != nil {
		return nil, m.err
	}
	return &models.Membership{ID: membershipID, ProjectID: pc.ProjectID(), RoleID: roleID}, nil
}

func (m *mockMembershipService) Remove(ctx context.Context, pc *authz.ProjectContext, membershipID int64) error {
	if err := authz.Require(authz.ActionManageMembers, pc); err != nil {
		return err
	}
	m.capturedMember = membershipID
	return m.err
}

type mockTicketService struct {
	err error

	capturedTicket *models.Ticket
	capturedID     int64
}

func (m *mockTicketService) List(ctx context.Context, pc *authz.ProjectContext) ([]*models.Ticket, error) {
	if err := authz.Require(authz.ActionViewTickets, pc); err != nil {
		return nil, err
	}
	return []*models.Ticket{}, m.err
}

func (m *mockTicketService) Get(ctx context.Context, pc *authz.ProjectContext, ticketID int64) (*models.Ticket, error) {
	if err := authz.Require(authz.ActionViewTickets, pc); err != nil {
		return nil, err
	}
	m.capturedID = ticketID
	if m.err != nil {
		return nil, m.err
	}
	return &models.Ticket{ID: ticketID, ProjectID: pc.ProjectID()}, nil
}

func (m *mockTicketService) Create(ctx context.Context, pc *authz.ProjectContext, ticket *models.Ticket) (*models.Ticket, error) {
	if err := authz.Require(authz.ActionModifyTickets, pc); err != nil {
		return nil, err
	}
	m.capturedTicket = ticket
	if m.err != nil {
		return nil, m.err
	}
	ticket.ID = 9
	return ticket, nil
}

func (m *mockTicketService) Update(ctx context.Context, pc *authz.ProjectContext, ticket *models.Ticket) (*models.Ticket, error) {
	if err := authz.Require(authz.ActionModifyTickets, pc); err != nil {
		return nil, err
	}
	m.capturedTicket = ticket
	return ticket, m.err
}

func (m *mockTicketService) Delete(ctx context.Context, pc *authz.ProjectContext, ticketID int64) error {
	if err := authz.Require(authz.ActionModifyTickets, pc); err != nil {
		return err
	}
	m.capturedID = ticketID
	return m.err
}

type mockReferenceService struct {
	err error
}

func (m *mockReferenceService) Roles(ctx context.Context) ([]*models.Role, error) {
	return []*models.Role{{ID: 1, Title: models.RoleAdmin}, {ID: 2, Title: models.RoleUser}}, m.err
}

func (m *mockReferenceService) Statuses(ctx context.Context) ([]*models.Status, error) {
	return []*models.Status{{ID: 1, Name: "To Do"}}, m.err
}

// testServer holds a mux with every API route registered over mocks.
type testServer struct {
	mux      *http.ServeMux
	access   *accessStore
	sessions *auth.SessionStore
	projects *mockProjectService
	members  *mockMembershipService
	tickets  *mockTicketService
	refs     *mockReferenceService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()

	s := &testServer{
		mux:      http.NewServeMux(),
		access:   newAccessStore(),
		sessions: auth.NewSessionStore("test-secret", auth.CookieSettings{}),
		projects: &mockProjectService{},
		members:  &mockMembershipService{},
		tickets:  &mockTicketService{},
		refs:     &mockReferenceService{},
	}

	mw := Middlewares{
		Auth:    auth.NewMiddleware(headerAuthService{}, logger),
		Scope:   passthroughScope,
		Project: authz.NewMiddleware(authz.NewResolver(s.access, s.access, logger), logger),
	}

	NewProjectsHandler(s.projects, s.sessions, logger).RegisterRoutes(s.mux, mw)
	NewMembersHandler(s.members, logger).RegisterRoutes(s.mux, mw)
	NewTicketsHandler(s.tickets, s.sessions, logger).RegisterRoutes(s.mux, mw)
	NewReferenceHandler(s.refs, logger).RegisterRoutes(s.mux, mw)
	return s
}
