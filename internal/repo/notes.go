package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"editgate/internal/domain"
)

func (r Repo) InsertNote(ctx context.Context, tx *sql.Tx, n domain.Note) error {
	if n.ID == "" {
		return errors.New("note id required")
	}
	var content any
	if len(n.Content) > 0 {
		b, err := json.Marshal(n.Content)
		if err != nil {
			return fmt.Errorf("marshal content: %w", err)
		}
		content = string(b)
	}
	_, err := r.execer(tx).ExecContext(ctx, `INSERT INTO notes(id,forum,replyto,invitation,readers_json,signatures_json,content_json,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		n.ID, nullable(n.Forum), nullable(n.ReplyTo), nullable(n.Invitation), toJSONArray(n.Readers), toJSONArray(n.Signatures), content, n.CreatedAt)
	return err
}

const noteColumns = `id,COALESCE(forum,''),COALESCE(replyto,''),COALESCE(invitation,''),readers_json,signatures_json,COALESCE(content_json,''),created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (domain.Note, error) {
	var n domain.Note
	var readers, signatures, content string
	if err := row.Scan(&n.ID, &n.Forum, &n.ReplyTo, &n.Invitation, &readers, &signatures, &content, &n.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return n, ErrNotFound
		}
		return n, err
	}
	var err error
	if n.Readers, err = fromJSONArray(readers); err != nil {
		return n, fmt.Errorf("note %s readers: %w", n.ID, err)
	}
	if n.Signatures, err = fromJSONArray(signatures); err != nil {
		return n, fmt.Errorf("note %s signatures: %w", n.ID, err)
	}
	if content != "" {
		if err := json.Unmarshal([]byte(content), &n.Content); err != nil {
			return n, fmt.Errorf("note %s content: %w", n.ID, err)
		}
	}
	return n, nil
}

func (r Repo) GetNote(ctx context.Context, id string) (domain.Note, error) {
	return scanNote(r.DB.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=?`, id))
}

// ListNotes returns notes in creation order, optionally restricted to a forum.
func (r Repo) ListNotes(ctx context.Context, forum string, limit int) ([]domain.Note, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	var args []any
	if forum != "" {
		query += ` WHERE forum=?`
		args = append(args, forum)
	}
	query += ` ORDER BY rowid LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateNoteAccess rewrites the readers and signatures of an existing note.
func (r Repo) UpdateNoteAccess(ctx context.Context, tx *sql.Tx, id string, readers, signatures []string) error {
	res, err := r.execer(tx).ExecContext(ctx, `UPDATE notes SET readers_json=?, signatures_json=? WHERE id=?`,
		toJSONArray(readers), toJSONArray(signatures), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
