package services

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/audit"
	"github.com/ekaya-inc/ekaya-tracker/pkg/authz"
	"github.com/ekaya-inc/ekaya-tracker/pkg/metrics"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

const (
	adminRoleID int64 = 1
	userRoleID  int64 = 2
)

// memStore backs the in-memory repository mocks below.
type memStore struct {
	projects map[int64]*models.Project
	members  map[int64]*models.Membership
	roles    []*models.Role
	tickets  map[int64]*models.Ticket
	nextID   int64

	// failWith, when set, is returned by every store call.
	failWith error
	// updateConflict makes project updates report a version conflict.
	updateConflict bool
	addCalls       int
}

func newMemStore() *memStore {
	return &memStore{
		projects: make(map[int64]*models.Project),
		members:  make(map[int64]*models.Membership),
		roles: []*models.Role{
			{ID: adminRoleID, Title: models.RoleAdmin},
			{ID: userRoleID, Title: models.RoleUser},
		},
		tickets: make(map[int64]*models.Ticket),
	}
}

func (s *memStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *memStore) roleTitle(id int64) models.RoleTitle {
	for _, r := range s.roles {
		if r.ID == id {
			return r.Title
		}
	}
	return models.RoleNone
}

func (s *memStore) addProject(title string) *models.Project {
	p := &models.Project{ID: s.id(), Title: title, Version: 1}
	s.projects[p.ID] = p
	return p
}

func (s *memStore) addMember(projectID int64, email string, roleID int64) *models.Membership {
	m := &models.Membership{ID: s.id(), ProjectID: projectID, UserEmail: email, RoleID: roleID}
	s.members[m.ID] = m
	return m
}

func (s *memStore) withTitle(m *models.Membership) *models.Membership {
	c := *m
	c.RoleTitle = s.roleTitle(m.RoleID)
	return &c
}

type memProjectRepo struct{ *memStore }

func (r memProjectRepo) CreateWithAdmin(ctx context.Context, project *models.Project, creatorEmail string) (*models.Membership, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	project.ID = r.id()
	project.Version = 1
	stored := *project
	r.projects[project.ID] = &stored
	return r.withTitle(r.addMember(project.ID, creatorEmail, adminRoleID)), nil
}

func (r memProjectRepo) Get(ctx context.Context, id int64) (*models.Project, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	p, ok := r.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (r memProjectRepo) Exists(ctx context.Context, id int64) (bool, error) {
	if r.failWith != nil {
		return false, r.failWith
	}
	_, ok := r.projects[id]
	return ok, nil
}

func (r memProjectRepo) Update(ctx context.Context, project *models.Project) error {
	if r.failWith != nil {
		return r.failWith
	}
	stored, ok := r.projects[project.ID]
	if !ok || r.updateConflict || stored.Version != project.Version {
		return apperrors.ErrConflict
	}
	project.Version++
	c := *project
	r.projects[project.ID] = &c
	return nil
}

func (r memProjectRepo) Delete(ctx context.Context, id int64) error {
	if r.failWith != nil {
		return r.failWith
	}
	delete(r.projects, id)
	for mid, m := range r.members {
		if m.ProjectID == id {
			delete(r.members, mid)
		}
	}
	for tid, t := range r.tickets {
		if t.ProjectID == id {
			delete(r.tickets, tid)
		}
	}
	return nil
}

type memMembershipRepo struct{ *memStore }

func (r memMembershipRepo) IsUserAssignedToProject(ctx context.Context, projectID int64, email string) (bool, error) {
	if r.failWith != nil {
		return false, r.failWith
	}
	for _, m := range r.members {
		if m.ProjectID == projectID && m.UserEmail == email {
			return true, nil
		}
	}
	return false, nil
}

func (r memMembershipRepo) GetMembersOfProject(ctx context.Context, projectID int64) ([]*models.Membership, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	out := []*models.Membership{}
	for _, m := range r.members {
		if m.ProjectID == projectID {
			out = append(out, r.withTitle(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserEmail < out[j].UserEmail })
	return out, nil
}

func (r memMembershipRepo) GetProjectsForUser(ctx context.Context, email string) ([]*models.Project, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	out := []*models.Project{}
	for _, p := range r.projects {
		for _, m := range r.members {
			if m.ProjectID == p.ID && m.UserEmail == email {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (r memMembershipRepo) GetDistinctMemberEmails(ctx context.Context, projectID int64) ([]string, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []string
	for _, m := range r.members {
		if m.ProjectID == projectID && !slices.Contains(out, m.UserEmail) {
			out = append(out, m.UserEmail)
		}
	}
	return out, nil
}

func (r memMembershipRepo) GetMemberRoles(ctx context.Context, projectID int64, email string) ([]*models.Membership, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	var out []*models.Membership
	for _, m := range r.members {
		if m.ProjectID == projectID && m.UserEmail == email {
			out = append(out, r.withTitle(m))
		}
	}
	return out, nil
}

func (r memMembershipRepo) GetByID(ctx context.Context, id int64) (*models.Membership, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	m, ok := r.members[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return r.withTitle(m), nil
}

func (r memMembershipRepo) Add(ctx context.Context, m *models.Membership) error {
	r.addCalls++
	if r.failWith != nil {
		return r.failWith
	}
	for _, existing := range r.members {
		if existing.ProjectID == m.ProjectID && existing.UserEmail == m.UserEmail {
			return apperrors.ErrAlreadyMember
		}
	}
	m.ID = r.addMember(m.ProjectID, m.UserEmail, m.RoleID).ID
	return nil
}

func (r memMembershipRepo) Update(ctx context.Context, m *models.Membership) error {
	if r.failWith != nil {
		return r.failWith
	}
	stored, ok := r.members[m.ID]
	if !ok || stored.ProjectID != m.ProjectID {
		return apperrors.ErrNotFound
	}
	next := r.roleTitle(m.RoleID)
	if next.IsNone() {
		return apperrors.ErrInvalidRole
	}
	if r.roleTitle(stored.RoleID) == models.RoleAdmin && next != models.RoleAdmin && r.adminCount(stored.ProjectID) <= 1 {
		return apperrors.ErrLastAdmin
	}
	stored.RoleID = m.RoleID
	return nil
}

func (r memMembershipRepo) Remove(ctx context.Context, id int64) error {
	if r.failWith != nil {
		return r.failWith
	}
	stored, ok := r.members[id]
	if !ok {
		return nil
	}
	if r.roleTitle(stored.RoleID) == models.RoleAdmin && r.adminCount(stored.ProjectID) <= 1 {
		return apperrors.ErrLastAdmin
	}
	delete(r.members, id)
	return nil
}

func (r memMembershipRepo) adminCount(projectID int64) int {
	n := 0
	for _, m := range r.members {
		if m.ProjectID == projectID && r.roleTitle(m.RoleID) == models.RoleAdmin {
			n++
		}
	}
	return n
}

type memRoleRepo struct{ *memStore }

func (r memRoleRepo) All(ctx context.Context) ([]*models.Role, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	return r.roles, nil
}

func (r memRoleRepo) GetByTitle(ctx context.Context, title models.RoleTitle) (*models.Role, error) {
	for _, role := range r.roles {
		if role.Title == title {
			return role, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r memRoleRepo) GetByID(ctx context.Context, id int64) (*models.Role, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	for _, role := range r.roles {
		if role.ID == id {
			return role, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

type memStatusRepo struct{}

func (memStatusRepo) All(ctx context.Context) ([]*models.Status, error) {
	return []*models.Status{{ID: 1, Name: "To Do"}, {ID: 2, Name: "In Progress"}, {ID: 3, Name: "Done"}}, nil
}

type memTicketRepo struct{ *memStore }

func (r memTicketRepo) ListByProject(ctx context.Context, projectID int64) ([]*models.Ticket, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	out := []*models.Ticket{}
	for _, t := range r.tickets {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memTicketRepo) Get(ctx context.Context, projectID, id int64) (*models.Ticket, error) {
	if r.failWith != nil {
		return nil, r.failWith
	}
	t, ok := r.tickets[id]
	if !ok || t.ProjectID != projectID {
		return nil, apperrors.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (r memTicketRepo) Create(ctx context.Context, ticket *models.Ticket) error {
	if r.failWith != nil {
		return r.failWith
	}
	if ticket.StatusID > 3 {
		return apperrors.Validation("unknown status")
	}
	ticket.ID = r.id()
	c := *ticket
	r.tickets[ticket.ID] = &c
	return nil
}

func (r memTicketRepo) Update(ctx context.Context, ticket *models.Ticket) error {
	if r.failWith != nil {
		return r.failWith
	}
	t, ok := r.tickets[ticket.ID]
	if !ok || t.ProjectID != ticket.ProjectID {
		return apperrors.ErrNotFound
	}
	c := *ticket
	r.tickets[ticket.ID] = &c
	return nil
}

func (r memTicketRepo) Delete(ctx context.Context, projectID, id int64) error {
	if r.failWith != nil {
		return r.failWith
	}
	t, ok := r.tickets[id]
	if !ok || t.ProjectID != projectID {
		return apperrors.ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

// testEnv wires the services over a memStore the way main does.
type testEnv struct {
	store    *memStore
	resolver *authz.Resolver
	metrics  *metrics.Metrics
	registry *prometheus.Registry

	projects ProjectService
	members  MembershipService
	tickets  TicketService
}

func newTestEnv() *testEnv {
	store := newMemStore()
	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(registry)
	auditor := audit.NewSecurityAuditor(logger)
	guard := authz.NewGuard(logger, m, auditor)
	resolver := authz.NewResolver(memMembershipRepo{store}, memProjectRepo{store}, logger)

	return &testEnv{
		store:    store,
		resolver: resolver,
		metrics:  m,
		registry: registry,
		projects: NewProjectService(memProjectRepo{store}, memMembershipRepo{store}, resolver, guard, auditor, logger),
		members:  NewMembershipService(memMembershipRepo{store}, memRoleRepo{store}, guard, auditor, m, logger),
		tickets:  NewTicketService(memTicketRepo{store}, memMembershipRepo{store}, guard, logger),
	}
}

// contextFor resolves the ProjectContext the middleware would build for email.
func (e *testEnv) contextFor(email string, projectID int64) *authz.ProjectContext {
	pc, err := e.resolver.Resolve(context.Background(), strings.ToLower(email), projectID)
	if err != nil {
		panic(err)
	}
	return pc
}
