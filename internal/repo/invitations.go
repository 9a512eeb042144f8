package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"editgate/internal/domain"
)

// UpsertInvitation stores the raw invitation document; descriptors stay raw.
func (r Repo) UpsertInvitation(ctx context.Context, tx *sql.Tx, inv domain.Invitation, body json.RawMessage) error {
	if inv.ID == "" {
		return errors.New("invitation id required")
	}
	_, err := r.execer(tx).ExecContext(ctx, `INSERT INTO invitations(id,domain,body_json,created_at) VALUES (?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET domain=excluded.domain, body_json=excluded.body_json`,
		inv.ID, nullable(inv.Domain), string(body), inv.CreatedAt)
	return err
}

// GetInvitation returns the decoded invitation and its raw document.
func (r Repo) GetInvitation(ctx context.Context, id string) (domain.Invitation, json.RawMessage, error) {
	var body, createdAt string
	err := r.DB.QueryRowContext(ctx, `SELECT body_json, created_at FROM invitations WHERE id=?`, id).Scan(&body, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Invitation{}, nil, ErrNotFound
	}
	if err != nil {
		return domain.Invitation{}, nil, err
	}
	var inv domain.Invitation
	if err := json.Unmarshal([]byte(body), &inv); err != nil {
		return domain.Invitation{}, nil, fmt.Errorf("invitation %s: %w", id, err)
	}
	inv.CreatedAt = createdAt
	return inv, json.RawMessage(body), nil
}

func (r Repo) ListInvitationIDs(ctx context.Context, domainID string) ([]string, error) {
	query := `SELECT id FROM invitations`
	var args []any
	if domainID != "" {
		query += ` WHERE domain=?`
		args = append(args, domainID)
	}
	query += ` ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
