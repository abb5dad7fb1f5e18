package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-tracker/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-tracker/pkg/models"
)

// TicketRepository defines data access for tickets. Every method is keyed by
// project so that a ticket id from another project is reported as not found.
type TicketRepository interface {
	ListByProject(ctx context.Context, projectID int64) ([]*models.Ticket, error)
	Get(ctx context.Context, projectID, id int64) (*models.Ticket, error)
	Create(ctx context.Context, ticket *models.Ticket) error
	Update(ctx context.Context, ticket *models.Ticket) error
	Delete(ctx context.Context, projectID, id int64) error
}

type ticketRepository struct{}

// NewTicketRepository creates a new ticket repository.
func NewTicketRepository() TicketRepository {
	return &ticketRepository{}
}

const ticketColumns = `id, project_id, title, description, status_id, COALESCE(assignee_email, ''), reporter_email, created_at, updated_at`

func scanTicket(row pgx.Row) (*models.Ticket, error) {
	var t models.Ticket
	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.StatusID,
		&t.AssigneeEmail, &t.ReporterEmail, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ticketRepository) ListByProject(ctx context.Context, projectID int64) ([]*models.Ticket, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE project_id = $1 ORDER BY created_at, id`,
		projectID)
	if err != nil {
		return nil, apperrors.StoreFailure("failed to query tickets", err)
	}
	defer rows.Close()

	tickets := make([]*models.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, apperrors.StoreFailure("failed to scan ticket", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreFailure("error iterating tickets", err)
	}
	return tickets, nil
}

func (r *ticketRepository) Get(ctx context.Context, projectID, id int64) (*models.Ticket, error) {
	scope, err := getScope(ctx)
	if err != nil {
		return nil, err
	}

	t, err := scanTicket(scope.Conn.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE project_id = $1 AND id = $2`,
		projectID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.StoreFailure("failed to get ticket", err)
	}
	return t, nil
}

func (r *ticketRepository) Create(ctx context.Context, ticket *models.Ticket) error {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now

	err = scope.Conn.QueryRow(ctx, `
		INSERT INTO tickets (project_id, title, description, status_id, assignee_email, reporter_email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8)
		RETURNING id`,
		ticket.ProjectID, ticket.Title, ticket.Description, ticket.StatusID,
		ticket.AssigneeEmail, ticket.ReporterEmail, ticket.CreatedAt, ticket.UpdatedAt,
	).Scan(&ticket.ID)
	if err != nil {
		return translateTicketWriteError("failed to create ticket", err)
	}
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *models.Ticket) error {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	ticket.UpdatedAt = time.Now()
	result, err := scope.Conn.Exec(ctx, `
		UPDATE tickets
		SET title = $1, description = $2, status_id = $3, assignee_email = NULLIF($4, ''), updated_at = $5
		WHERE project_id = $6 AND id = $7`,
		ticket.Title, ticket.Description, ticket.StatusID, ticket.AssigneeEmail,
		ticket.UpdatedAt, ticket.ProjectID, ticket.ID)
	if err != nil {
		return translateTicketWriteError("failed to update ticket", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, projectID, id int64) error {
	scope, err := getScope(ctx)
	if err != nil {
		return err
	}

	result, err := scope.Conn.Exec(ctx, `DELETE FROM tickets WHERE project_id = $1 AND id = $2`, projectID, id)
	if err != nil {
		return apperrors.StoreFailure("failed to delete ticket", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func translateTicketWriteError(msg string, err error) error {
	code, constraint := pgErrorCode(err)
	if code == pgForeignKeyViolation {
		if constraint == "tickets_status_id_fkey" {
			return apperrors.Validation("unknown status")
		}
		return apperrors.ErrNotFound
	}
	return apperrors.StoreFailure(msg, err)
}

// Ensure ticketRepository implements TicketRepository at compile time.
var _ TicketRepository = (*ticketRepository)(nil)
