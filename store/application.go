package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mochisuna/slack-application-vote/domain"
)

const applicationColumns = `id, applicant_id, applicant_name, server_name, invite_url, reason,
	vote_message_id, votes, status, created_at, updated_at`

// Create inserts app and assigns its ID. A zero status becomes AWAITING.
func (s *Store) Create(ctx context.Context, app *domain.Application) error {
	if app.Status == "" {
		app.Status = domain.StatusAwaiting
	}
	if app.Votes.Entries == nil {
		app.Votes = domain.NewVoteTally()
	}
	votes, err := json.Marshal(app.Votes)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO applications
		(applicant_id, applicant_name, server_name, invite_url, reason, vote_message_id, votes, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		app.ApplicantID,
		app.ApplicantName,
		app.ServerName,
		app.InviteURL,
		app.Reason,
		app.VoteMessageID,
		string(votes),
		string(app.Status),
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	app.ID = id
	app.CreatedAt = now
	app.UpdatedAt = now
	return nil
}

// Save overwrites the mutable columns of an existing application.
func (s *Store) Save(ctx context.Context, app *domain.Application) error {
	votes, err := json.Marshal(app.Votes)
	if err != nil {
		return fmt.Errorf("save application %d: %w", app.ID, err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET
			applicant_id = ?, applicant_name = ?, server_name = ?, invite_url = ?, reason = ?,
			vote_message_id = ?, votes = ?, status = ?, updated_at = ?
		WHERE id = ?
	`,
		app.ApplicantID,
		app.ApplicantName,
		app.ServerName,
		app.InviteURL,
		app.Reason,
		app.VoteMessageID,
		string(votes),
		string(app.Status),
		now.UnixNano(),
		app.ID,
	)
	if err != nil {
		return fmt.Errorf("save application %d: %w", app.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save application %d: %w", app.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("save application %d: %w", app.ID, domain.ErrNotFound)
	}
	app.UpdatedAt = now
	return nil
}

// SaveVotes writes the binding and tally of an awaiting application and
// nothing else. A decided application is left untouched and yields
// domain.ErrAlreadyDecided, so a decision made by another process always wins.
func (s *Store) SaveVotes(ctx context.Context, app *domain.Application) error {
	votes, err := json.Marshal(app.Votes)
	if err != nil {
		return fmt.Errorf("save votes of application %d: %w", app.ID, err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET vote_message_id = ?, votes = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		app.VoteMessageID,
		string(votes),
		now.UnixNano(),
		app.ID,
		string(domain.StatusAwaiting),
	)
	if err != nil {
		return fmt.Errorf("save votes of application %d: %w", app.ID, err)
	}
	if err := s.checkAwaitingUpdate(ctx, res, app.ID); err != nil {
		return fmt.Errorf("save votes of application %d: %w", app.ID, err)
	}
	app.UpdatedAt = now
	return nil
}

// Decide moves an awaiting application to status and returns the stored record.
func (s *Store) Decide(ctx context.Context, id int64, status domain.Status) (*domain.Application, error) {
	if !status.IsTerminal() {
		return nil, fmt.Errorf("decide application %d: invalid status %q", id, status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`,
		string(status),
		time.Now().UTC().UnixNano(),
		id,
		string(domain.StatusAwaiting),
	)
	if err != nil {
		return nil, fmt.Errorf("decide application %d: %w", id, err)
	}
	if err := s.checkAwaitingUpdate(ctx, res, id); err != nil {
		return nil, fmt.Errorf("decide application %d: %w", id, err)
	}
	return s.FindByID(ctx, id)
}

// checkAwaitingUpdate tells a missing row apart from a decided one when a
// status-guarded update touched nothing.
func (s *Store) checkAwaitingUpdate(ctx context.Context, res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM applications WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("status %s: %w", status, domain.ErrAlreadyDecided)
}

func (s *Store) FindByID(ctx context.Context, id int64) (*domain.Application, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	return scanApplication(row)
}

func (s *Store) FindByVoteMessageID(ctx context.Context, key string) (*domain.Application, error) {
	if key == "" {
		return nil, domain.ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE vote_message_id = ? ORDER BY id LIMIT 1`, key)
	return scanApplication(row)
}

func (s *Store) FindByStatus(ctx context.Context, status domain.Status) ([]*domain.Application, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE status = ? ORDER BY id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("find applications by status: %w", err)
	}
	defer rows.Close()

	apps := []*domain.Application{}
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find applications by status: %w", err)
	}
	return apps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*domain.Application, error) {
	var (
		app              domain.Application
		votes, status    string
		created, updated int64
	)
	err := row.Scan(
		&app.ID,
		&app.ApplicantID,
		&app.ApplicantName,
		&app.ServerName,
		&app.InviteURL,
		&app.Reason,
		&app.VoteMessageID,
		&votes,
		&status,
		&created,
		&updated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan application: %w", err)
	}
	if err := json.Unmarshal([]byte(votes), &app.Votes); err != nil {
		return nil, fmt.Errorf("decode votes of application %d: %w", app.ID, err)
	}
	if app.Votes.Entries == nil {
		app.Votes.Entries = map[string]domain.VoteType{}
	}
	app.Status = domain.Status(status)
	if !app.Status.Valid() {
		return nil, fmt.Errorf("application %d has unknown status %q", app.ID, status)
	}
	app.CreatedAt = time.Unix(0, created).UTC()
	app.UpdatedAt = time.Unix(0, updated).UTC()
	return &app, nil
}
