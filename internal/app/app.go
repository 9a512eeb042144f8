// Package app assembles the pieces a command needs from the workspace,
// flags and environment: logger, config, API client and the local platform.
package app

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"editgate/internal/config"
	"editgate/internal/db"
	"editgate/internal/descriptor"
	"editgate/internal/domain"
	"editgate/internal/engine"
	"editgate/internal/groups"
	"editgate/internal/metrics"
	"editgate/internal/migrate"
	"editgate/internal/platform"
	editgatesdk "editgate/sdk/go"
)

// EnvFile is the per-workspace file `eg login` writes the token to.
const EnvFile = ".env"

// TokenKey is the env var holding a bearer token for the API.
const TokenKey = "EDITGATE_TOKEN"

// Settings are the persistent CLI flags after env and flag merging.
type Settings struct {
	Workspace string
	APIURL    string
	Token     string
	APIKey    string
	Verbose   bool
}

// NewLogger writes text logs to w; verbose lowers the level to debug.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// LoadConfig reads editgate.yml from the workspace, falling back to defaults.
func LoadConfig(workspace string) (*config.Config, error) {
	return config.LoadOptional(workspace)
}

// Client builds an API client. Flags win over the workspace config; a token
// saved by `eg login` is used when no credential was passed.
func Client(s Settings, cfg *config.Config) (*editgatesdk.Client, error) {
	baseURL := strings.TrimSpace(s.APIURL)
	if baseURL == "" {
		baseURL = cfg.API.BaseURL
	}
	if baseURL == "" {
		return nil, fmt.Errorf("api url not set; pass --api-url or set api.base_url in %s", config.Path(s.Workspace))
	}
	c := editgatesdk.New(baseURL)
	if cfg.API.Timeout.Duration > 0 {
		c.Timeout = cfg.API.Timeout.Duration
	}
	c.APIKey = strings.TrimSpace(s.APIKey)
	c.BearerToken = strings.TrimSpace(s.Token)
	if c.APIKey == "" && c.BearerToken == "" {
		token, err := ReadEnvValue(filepath.Join(s.Workspace, EnvFile), TokenKey)
		if err != nil {
			return nil, err
		}
		c.BearerToken = token
	}
	return c, nil
}

// ResolverOptions maps the resolve section of the config onto engine options.
func ResolverOptions(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) []engine.Option {
	opts := []engine.Option{
		engine.WithLiteralVerification(cfg.Resolve.VerifyLiteralOptions),
		engine.WithLookupTimeout(cfg.Resolve.LookupTimeout.Duration),
	}
	if logger != nil {
		opts = append(opts, engine.WithLogger(logger))
	}
	if m != nil {
		opts = append(opts, engine.WithMetrics(m))
	}
	return opts
}

// OpenPlatform opens and migrates the workspace database and wires a
// platform on top of it. The caller closes the returned database.
func OpenPlatform(ctx context.Context, workspace string, opts ...engine.Option) (platform.Platform, *sql.DB, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return platform.Platform{}, nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return platform.Platform{}, nil, err
	}
	if _, err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return platform.Platform{}, nil, fmt.Errorf("migrate: %w", err)
	}
	p, err := platform.New(conn, opts...)
	if err != nil {
		conn.Close()
		return platform.Platform{}, nil, err
	}
	return p, conn, nil
}

// ReadEnvValue returns key from a dotenv file, or "" when the file or key
// is missing.
func ReadEnvValue(path, key string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return v.GetString(key), nil
}

// SetEnvValue writes key=value into a dotenv file, replacing an existing
// entry and keeping every other line.
func SetEnvValue(path, key, value string) error {
	var lines []string
	seen := false
	f, err := os.Open(path)
	if err == nil {
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, key+"=") {
				lines = append(lines, fmt.Sprintf("%s=%s", key, value))
				seen = true
			} else {
				lines = append(lines, line)
			}
		}
		if err := scanner.Err(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	} else if !os.IsNotExist(err) {
		return err
	}
	if !seen {
		lines = append(lines, fmt.Sprintf("%s=%s", key, value))
	}
	content := strings.Join(lines, "\n")
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

// LocalResolver runs the resolver in this process. Invitations, parent notes
// and group queries come from the API, the way an editor resolves a form.
type LocalResolver struct {
	API    *editgatesdk.Client
	Engine *engine.Engine
	// User is the profile the edit is resolved for; empty for a guest.
	User string
}

// NewLocalResolver paces group queries at lookupRate per second; 0 is unlimited.
func NewLocalResolver(api *editgatesdk.Client, user string, lookupRate float64, opts ...engine.Option) (LocalResolver, error) {
	lookup := groups.NewClient(api).WithRateLimit(lookupRate, 4)
	e, err := engine.New(lookup, opts...)
	if err != nil {
		return LocalResolver{}, err
	}
	return LocalResolver{API: api, Engine: e, User: user}, nil
}

func (l LocalResolver) Resolve(ctx context.Context, invitationID, replyTo string, readers, signatures []string) (editgatesdk.Resolution, error) {
	raw, err := l.API.Invitation(ctx, invitationID)
	if err != nil {
		return editgatesdk.Resolution{}, err
	}
	inv, err := descriptor.DecodeInvitation(raw)
	if err != nil {
		return editgatesdk.Resolution{}, err
	}
	req := engine.Request{
		Invitation: inv,
		User:       l.User,
		Prior:      engine.Prior{Readers: readers, Signatures: signatures},
	}
	if replyTo != "" {
		parent, err := l.API.Note(ctx, replyTo)
		if err != nil {
			return editgatesdk.Resolution{}, fmt.Errorf("load parent note: %w", err)
		}
		req.Parent = &domain.Note{
			ID:         parent.ID,
			Forum:      parent.Forum,
			ReplyTo:    parent.ReplyTo,
			Invitation: parent.Invitation,
			Readers:    parent.Readers,
			Signatures: parent.Signatures,
		}
	}
	res, err := l.Engine.ResolveForEdit(ctx, req)
	if err != nil {
		return editgatesdk.Resolution{}, err
	}
	return editgatesdk.Resolution{
		Status:     string(res.Status),
		Readers:    sdkSelection(res.Readers),
		Signatures: sdkSelection(res.Signatures),
	}, nil
}

func sdkSelection(sel engine.Selection) editgatesdk.Selection {
	return editgatesdk.Selection{
		Field:        string(sel.Field),
		Shape:        string(sel.Shape),
		Candidates:   sel.Candidates,
		Selected:     sel.Selected,
		Defaults:     sel.Defaults,
		Mandatory:    sel.Mandatory,
		Pending:      sel.Pending,
		Descriptions: sel.Descriptions,
	}
}
