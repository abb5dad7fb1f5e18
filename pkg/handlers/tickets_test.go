package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

func TestTicketsHandler_Create(t *testing.T) {
	s := newTestServer(t)
	s.access.grant(1, "bob@x.com", models.RoleUser)

	rec := s.do(t, http.MethodPost, "/api/projects/1/tickets", "bob@x.com",
		`{"title":"Crash on save","description":"stack trace","status_id":1,"assignee_email":"alice@x.com"}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, s.tickets.capturedTicket)
	assert.Equal(t, "Crash on save", s.tickets.capturedTicket.Title)
	assert.Equal(t, int64(1), s.tickets.capturedTicket.StatusID)
	assert.Equal(t, "alice@x.com", s.tickets.capturedTicket.AssigneeEmail)
}

func TestTicketsHandler_Update_UsesPathID(t *testing.T) {
	s := newTestServer(t)
	s.access.grant(1, "bob@x.com", models.RoleUser)

	rec := s.do(t, http.MethodPut, "/api/projects/1/tickets/3", "bob@x.com", `{"title":"t","status_id":2}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, s.tickets.capturedTicket)
	assert.Equal(t, int64(3), s.tickets.capturedTicket.ID)
	assert.Equal(t, int64(2), s.tickets.capturedTicket.StatusID)
}

func TestTicketsHandler_Get(t *testing.T) {
	s := newTestServer(t)
	s.access.grant(1, "bob@x.com", models.RoleUser)

	rec := s.do(t, http.MethodGet, "/api/projects/1/tickets/11", "bob@x.com", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(11), s.tickets.capturedID)
}

func TestTicketsHandler_NotFound(t *testing.T) {
	s := newTestServer(t)
	s.access.grant(1, "bob@x.com", models.RoleUser)
	s.tickets.err = apperrors.ErrNotFound

	rec := s.do(t, http.MethodGet, "/api/projects/1/tickets/11", "bob@x.com", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTicketsHandler_ListDeniedDoesNotSelectProject(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/projects/1/tickets", "eve@x.com", "")

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}

func TestTicketsHandler_InvalidTicketID(t *testing.T) {
	s := newTestServer(t)
	s.access.grant(1, "bob@x.com", models.RoleUser)

	rec := s.do(t, http.MethodDelete, "/api/projects/1/tickets/zero", "bob@x.com", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
