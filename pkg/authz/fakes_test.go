package authz

import (
	"context"
	"sync"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// fakeStore is an in-memory RoleSource and ProjectSource for tests.
type fakeStore struct {
	mu          sync.Mutex
	projects    map[int64]*models.Project
	memberships []*models.Membership
	err         error
	calls       int
}

func newFakeStore() *fakeStore {
	return &fakeStore{projects: make(map[int64]*models.Project)}
}

func (f *fakeStore) addProject(id int64, title string) {
	f.projects[id] = &models.Project{ID: id, Title: title, Version: 1}
}

func (f *fakeStore) addMember(projectID int64, email string, role models.RoleTitle) {
	f.memberships = append(f.memberships, &models.Membership{
		ID:        int64(len(f.memberships) + 1),
		ProjectID: projectID,
		UserEmail: email,
		RoleTitle: role,
	})
}

func (f *fakeStore) GetMemberRoles(ctx context.Context, projectID int64, email string) ([]*models.Membership, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Membership
	for _, m := range f.memberships {
		if m.ProjectID == projectID && m.UserEmail == email {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) Get(ctx context.Context, id int64) (*models.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return p, nil
}

// recordingObserver captures guard decisions.
type recordingObserver struct {
	mu        sync.Mutex
	decisions []Decision
	actions   []Action
}

func (o *recordingObserver) ObserveDecision(ctx context.Context, action Action, pc *ProjectContext, decision Decision) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.actions = append(o.actions, action)
	o.decisions = append(o.decisions, decision)
}
