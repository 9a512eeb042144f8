package repo_test

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"editgate/internal/db"
	"editgate/internal/domain"
	"editgate/internal/groups"
	"editgate/internal/migrate"
	"editgate/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

func seedGroups(t *testing.T, r repo.Repo, gs ...domain.Group) {
	t.Helper()
	for _, g := range gs {
		if g.CreatedAt == "" {
			g.CreatedAt = "2024-01-01T00:00:00Z"
		}
		if err := r.UpsertGroup(context.Background(), nil, g); err != nil {
			t.Fatalf("upsert %s: %v", g.ID, err)
		}
	}
}

func ids(gs []domain.Group) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.ID)
	}
	return out
}

func TestFindGroupsModes(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedGroups(t, r,
		domain.Group{ID: "everyone"},
		domain.Group{ID: "ICLR.cc/2024/Conference/Program_Committee", Members: []string{"~Ann1"}},
		domain.Group{ID: "ICLR.cc/2024/Conference/Paper5/Reviewers", Members: []string{"~Me1", "~Bob1"}},
		domain.Group{ID: "ICLR.cc/2024/Conference/Paper5/Reviewer_Ab12", Members: []string{"~Me1"}},
		domain.Group{ID: "~Me1"},
	)

	got, err := r.FindGroups(ctx, groups.Query{Prefix: "ICLR.cc/2024/Conference/Paper5/.*"})
	if err != nil {
		t.Fatalf("prefix: %v", err)
	}
	want := []string{"ICLR.cc/2024/Conference/Paper5/Reviewers", "ICLR.cc/2024/Conference/Paper5/Reviewer_Ab12"}
	if !slices.Equal(ids(got), want) {
		t.Fatalf("prefix got %v want %v", ids(got), want)
	}

	got, err = r.FindGroups(ctx, groups.Query{Regex: "ICLR.cc/2024/Conference/Paper5/Reviewers|everyone"})
	if err != nil {
		t.Fatalf("regex: %v", err)
	}
	if !slices.Equal(ids(got), []string{"everyone", "ICLR.cc/2024/Conference/Paper5/Reviewers"}) {
		t.Fatalf("regex got %v", ids(got))
	}

	got, err = r.FindGroups(ctx, groups.Query{Prefix: "ICLR.cc/2024/Conference/Paper5/Reviewer_.*", Signatory: "~Me1"})
	if err != nil {
		t.Fatalf("signatory: %v", err)
	}
	if !slices.Equal(ids(got), []string{"ICLR.cc/2024/Conference/Paper5/Reviewer_Ab12"}) {
		t.Fatalf("signatory got %v", ids(got))
	}

	got, err = r.FindGroups(ctx, groups.Query{Prefix: "~.*", Signatory: "~Me1"})
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if !slices.Equal(ids(got), []string{"~Me1"}) {
		t.Fatalf("profile got %v", ids(got))
	}

	got, err = r.FindGroups(ctx, groups.Query{ID: "missing"})
	if err != nil || len(got) != 0 {
		t.Fatalf("missing id: %v %v", got, err)
	}
}

func TestFindGroupsRejectsBadPattern(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.FindGroups(context.Background(), groups.Query{Regex: "a|("})
	if !errors.Is(err, repo.ErrInvalidPattern) {
		t.Fatalf("expected ErrInvalidPattern, got %v", err)
	}
}

func TestUpsertGroupReplacesMembers(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedGroups(t, r, domain.Group{ID: "g", Members: []string{"b", "a", "b"}})
	g, err := r.GetGroup(ctx, "g")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !slices.Equal(g.Members, []string{"b", "a"}) {
		t.Fatalf("members %v", g.Members)
	}
	seedGroups(t, r, domain.Group{ID: "g", Members: []string{"c"}})
	g, _ = r.GetGroup(ctx, "g")
	if !slices.Equal(g.Members, []string{"c"}) {
		t.Fatalf("replaced members %v", g.Members)
	}
	if _, err := r.GetGroup(ctx, "nope"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestNotesInvitationsAndEdits(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	body := json.RawMessage(`{"id":"V/-/Comment","domain":"V","edit":{"readers":["everyone"],"signatures":{"param":{"regex":"~.*"}}}}`)
	if err := r.UpsertInvitation(ctx, nil, domain.Invitation{ID: "V/-/Comment", Domain: "V", CreatedAt: "2024-01-01T00:00:00Z"}, body); err != nil {
		t.Fatalf("invitation: %v", err)
	}
	inv, raw, err := r.GetInvitation(ctx, "V/-/Comment")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if inv.Domain != "V" || string(inv.Edit.Readers) != `["everyone"]` || len(raw) == 0 {
		t.Fatalf("unexpected invitation %+v", inv)
	}
	list, err := r.ListInvitationIDs(ctx, "V")
	if err != nil || !slices.Equal(list, []string{"V/-/Comment"}) {
		t.Fatalf("list invitations %v %v", list, err)
	}

	note := domain.Note{ID: "n1", Forum: "n1", Readers: []string{"everyone"}, Signatures: []string{"~Me1"},
		Content: map[string]any{"title": "hello"}, CreatedAt: "2024-01-01T00:00:00Z"}
	if err := r.InsertNote(ctx, nil, note); err != nil {
		t.Fatalf("insert note: %v", err)
	}
	got, err := r.GetNote(ctx, "n1")
	if err != nil {
		t.Fatalf("get note: %v", err)
	}
	if got.Forum != "n1" || got.Content["title"] != "hello" || !slices.Equal(got.Readers, note.Readers) {
		t.Fatalf("unexpected note %+v", got)
	}
	if _, err := r.GetNote(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	edit := domain.Edit{ID: "e1", Invitation: "V/-/Comment", NoteID: "n1", Readers: note.Readers, Signatures: note.Signatures, ActorID: "~Me1", CreatedAt: "2024-01-01T00:00:00Z"}
	if err := r.InsertEdit(ctx, nil, edit); err != nil {
		t.Fatalf("insert edit: %v", err)
	}
	edits, err := r.ListEdits(ctx, "n1")
	if err != nil || len(edits) != 1 || edits[0].ActorID != "~Me1" {
		t.Fatalf("list edits %+v %v", edits, err)
	}
}

func TestAPIKeys(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	key := domain.APIKey{ID: "k1", ProfileID: "~Me1", Name: "cli", KeyHash: repo.HashAPIKey("secret")}
	if err := r.InsertAPIKey(ctx, nil, key); err != nil {
		t.Fatalf("insert key: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, repo.HashAPIKey(" secret "))
	if err != nil || got.ProfileID != "~Me1" {
		t.Fatalf("lookup key %+v %v", got, err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
