package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"editgate/internal/domain"
)

func (r Repo) InsertEdit(ctx context.Context, tx *sql.Tx, e domain.Edit) error {
	if e.ID == "" || e.NoteID == "" {
		return errors.New("edit id and note id required")
	}
	_, err := r.execer(tx).ExecContext(ctx, `INSERT INTO edits(id,invitation,note_id,readers_json,signatures_json,actor_id,created_at) VALUES (?,?,?,?,?,?,?)`,
		e.ID, e.Invitation, e.NoteID, toJSONArray(e.Readers), toJSONArray(e.Signatures), e.ActorID, e.CreatedAt)
	return err
}

func (r Repo) ListEdits(ctx context.Context, noteID string) ([]domain.Edit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,invitation,note_id,readers_json,signatures_json,actor_id,created_at FROM edits WHERE note_id=? ORDER BY rowid`, noteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Edit
	for rows.Next() {
		var e domain.Edit
		var readers, signatures string
		if err := rows.Scan(&e.ID, &e.Invitation, &e.NoteID, &readers, &signatures, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if e.Readers, err = fromJSONArray(readers); err != nil {
			return nil, fmt.Errorf("edit %s readers: %w", e.ID, err)
		}
		if e.Signatures, err = fromJSONArray(signatures); err != nil {
			return nil, fmt.Errorf("edit %s signatures: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
