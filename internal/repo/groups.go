package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"editgate/internal/domain"
	"editgate/internal/groups"
)

var ErrInvalidPattern = errors.New("invalid group pattern")

// UpsertGroup creates a group or replaces its member list, keeping member order.
func (r Repo) UpsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	if g.ID == "" {
		return errors.New("group id required")
	}
	exec := r.execer(tx)
	if _, err := exec.ExecContext(ctx, `INSERT INTO groups(id,created_at) VALUES (?,?) ON CONFLICT(id) DO NOTHING`, g.ID, g.CreatedAt); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM group_members WHERE group_id=?`, g.ID); err != nil {
		return fmt.Errorf("clear members: %w", err)
	}
	seen := map[string]bool{}
	pos := 0
	for _, m := range g.Members {
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		if _, err := exec.ExecContext(ctx, `INSERT INTO group_members(group_id,member,position) VALUES (?,?,?)`, g.ID, m, pos); err != nil {
			return fmt.Errorf("insert member %s: %w", m, err)
		}
		pos++
	}
	return nil
}

func (r Repo) GetGroup(ctx context.Context, id string) (domain.Group, error) {
	gs, err := r.loadGroups(ctx, `WHERE g.id=?`, id)
	if err != nil {
		return domain.Group{}, err
	}
	if len(gs) == 0 {
		return domain.Group{}, ErrNotFound
	}
	return gs[0], nil
}

// ListGroups returns every group in creation order.
func (r Repo) ListGroups(ctx context.Context) ([]domain.Group, error) {
	return r.loadGroups(ctx, "")
}

// FindGroups answers a group query the way the remote API does: regex
// patterns match whole ids, prefix patterns match the start of ids, and a
// signatory keeps only groups it may sign as (itself or a group it belongs to).
func (r Repo) FindGroups(ctx context.Context, q groups.Query) ([]domain.Group, error) {
	if q.Mode() == groups.ModeID {
		g, err := r.GetGroup(ctx, q.ID)
		if errors.Is(err, ErrNotFound) {
			return []domain.Group{}, nil
		}
		if err != nil {
			return nil, err
		}
		return []domain.Group{g}, nil
	}
	match, err := compileQuery(q)
	if err != nil {
		return nil, err
	}
	all, err := r.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := []domain.Group{}
	for _, g := range all {
		if !match.MatchString(g.ID) {
			continue
		}
		if q.Signatory != "" && !canSignAs(q.Signatory, g) {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func compileQuery(q groups.Query) (*regexp.Regexp, error) {
	expr := "^(?:" + q.Pattern() + ")"
	if q.Mode() == groups.ModeRegex {
		expr += "$"
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, q.Pattern(), err)
	}
	return re, nil
}

func canSignAs(signatory string, g domain.Group) bool {
	if g.ID == signatory {
		return true
	}
	for _, m := range g.Members {
		if m == signatory {
			return true
		}
	}
	return false
}

func (r Repo) loadGroups(ctx context.Context, where string, args ...any) ([]domain.Group, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT g.id, g.created_at, COALESCE(m.member,'')
		FROM groups g LEFT JOIN group_members m ON m.group_id = g.id `+where+`
		ORDER BY g.rowid, m.position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Group
	index := map[string]int{}
	for rows.Next() {
		var id, createdAt, member string
		if err := rows.Scan(&id, &createdAt, &member); err != nil {
			return nil, err
		}
		i, ok := index[id]
		if !ok {
			i = len(out)
			index[id] = i
			out = append(out, domain.Group{ID: id, CreatedAt: createdAt})
		}
		if member != "" {
			out[i].Members = append(out[i].Members, member)
		}
	}
	return out, rows.Err()
}
