package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"editgate/internal/app"
	"editgate/internal/config"
	"editgate/internal/db"
	"editgate/internal/metrics"
	"editgate/internal/platform"
	"editgate/internal/server"
	"editgate/internal/tui"
	editgatesdk "editgate/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "eg",
	Short: "Editgate CLI",
	Long: `Editgate works out who may read and who may sign a note before it is posted.
Core concepts:
- Invitation: the rules for one kind of note; its readers and signatures descriptors say which values are allowed.
- Groups: ids like V/Program_Chairs or ~Jane_Doe1; a user may sign as any group they belong to.
- Resolve: expands the descriptors into candidates for the current user and tells you what still has to be picked.
- Replies: readers of a reply are narrowed to what the parent note allows.
- Workspace: the .editgate directory holding the dev server database; editgate.yml holds client and resolver settings.
- Event log: every accepted or rejected edit, view with 'eg log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("EDITGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides api.base_url)")
	rootCmd.PersistentFlags().String("token", "", "bearer token")
	rootCmd.PersistentFlags().String("api-key", "", "API key")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "api-url", "token", "api-key", "verbose"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(groupCmd())
	rootCmd.AddCommand(invitationCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(resolveCmd())
	rootCmd.AddCommand(editCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keyCmd())
}

func settings() app.Settings {
	return app.Settings{
		Workspace: viper.GetString("workspace"),
		APIURL:    viper.GetString("api-url"),
		Token:     viper.GetString("token"),
		APIKey:    viper.GetString("api-key"),
		Verbose:   viper.GetBool("verbose"),
	}
}

func logger() *slog.Logger {
	return app.NewLogger(os.Stderr, viper.GetBool("verbose"))
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowProfileHeader bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dev HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := settings()
			cfg, err := app.LoadConfig(s.Workspace)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			secret := os.Getenv("EDITGATE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("EDITGATE_JWT_SECRET is required for bearer auth")
			}
			log := logger()
			m := metrics.New(prometheus.DefaultRegisterer)
			p, conn, err := app.OpenPlatform(cmd.Context(), s.Workspace, app.ResolverOptions(cfg, log, m)...)
			if err != nil {
				return err
			}
			defer conn.Close()
			p.Logger = log
			handler, err := server.New(server.Config{
				Platform: p,
				BasePath: basePath,
				Auth: server.AuthConfig{
					JWTSecret:          secret,
					AllowProfileHeader: allowProfileHeader,
					Logger:             log,
				},
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving editgate API", "addr", addr, "base_path", basePath, "db", db.Path(s.Workspace))
			fmt.Printf("Serving Editgate API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().BoolVar(&allowProfileHeader, "allow-profile-header", false, "trust X-Profile-Id without credentials (local use only)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage editgate.yml",
		Long:  "editgate.yml sets the API the CLI talks to and how the resolver expands invitations.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default editgate.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate editgate.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	var profileID string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Get a dev token for a profile and save it in the workspace .env",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(profileID) == "" {
				return fmt.Errorf("--profile required")
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				token, err := c.DevLogin(ctx, profileID)
				if err != nil {
					return err
				}
				workspace := viper.GetString("workspace")
				path := filepath.Join(workspace, app.EnvFile)
				if err := app.SetEnvValue(path, app.TokenKey, token); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"profile_id": profileID, "env_file": path})
				}
				fmt.Printf("Logged in as %s; token saved to %s\n", profileID, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "profile id, e.g. ~Jane_Doe1")
	return cmd
}

func groupCmd() *cobra.Command {
	grp := &cobra.Command{
		Use:   "group",
		Short: "Manage groups",
		Long:  "Groups are the ids readers and signatures are made of. Members of a group may sign as it.",
	}
	grp.AddCommand(groupCreateCmd())
	grp.AddCommand(groupListCmd())
	grp.AddCommand(groupShowCmd())
	return grp
}

func groupCreateCmd() *cobra.Command {
	var id string
	var members []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create or replace a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id required")
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				g, err := c.CreateGroup(ctx, editgatesdk.Group{ID: id, Members: members})
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "group id")
	cmd.Flags().StringSliceVar(&members, "member", nil, "member id (repeatable)")
	return cmd
}

func groupListCmd() *cobra.Command {
	var q editgatesdk.GroupQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List or query groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				items, err := c.Groups(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Members"})
				for _, g := range items {
					tw.AppendRow(table.Row{g.ID, strings.Join(g.Members, ", ")})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&q.Regex, "regex", "", "match ids against a regex")
	cmd.Flags().StringVar(&q.Prefix, "prefix", "", "match ids starting with a pattern")
	cmd.Flags().StringVar(&q.ID, "id", "", "match one id")
	cmd.Flags().StringVar(&q.Signatory, "signatory", "", "keep groups this profile may sign as")
	return cmd
}

func groupShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				g, err := c.Group(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(g)
			})
		},
	}
}

func invitationCmd() *cobra.Command {
	inv := &cobra.Command{
		Use:   "invitation",
		Short: "Manage invitations",
		Long:  "Invitations carry the readers and signatures descriptors an edit is resolved against.",
	}
	inv.AddCommand(invitationImportCmd())
	inv.AddCommand(invitationListCmd())
	inv.AddCommand(invitationShowCmd())
	return inv
}

func invitationImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import an invitation JSON document (use - for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), filePath)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				out, err := c.ImportInvitation(ctx, data)
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to invitation JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func invitationListCmd() *cobra.Command {
	var domainID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invitation ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				ids, err := c.InvitationIDs(ctx, domainID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ids)
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&domainID, "domain", "", "venue domain filter")
	return cmd
}

func invitationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an invitation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				doc, err := c.Invitation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(doc)
			})
		},
	}
}

func noteCmd() *cobra.Command {
	n := &cobra.Command{
		Use:   "note",
		Short: "Manage notes",
		Long:  "Notes are what edits create. A reply's readers are bounded by its parent note.",
	}
	n.AddCommand(noteCreateCmd())
	n.AddCommand(noteShowCmd())
	return n
}

func noteCreateCmd() *cobra.Command {
	var note editgatesdk.Note
	var content string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a note directly, bypassing resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(note.Readers) == 0 {
				return fmt.Errorf("--reader required")
			}
			var err error
			if note.Content, err = parseContent(content); err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				out, err := c.CreateNote(ctx, note)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&note.ID, "id", "", "note id (generated when empty)")
	cmd.Flags().StringVar(&note.Forum, "forum", "", "forum id")
	cmd.Flags().StringVar(&note.ReplyTo, "replyto", "", "parent note id")
	cmd.Flags().StringVar(&note.Invitation, "invitation", "", "invitation id")
	cmd.Flags().StringSliceVar(&note.Readers, "reader", nil, "reader id (repeatable)")
	cmd.Flags().StringSliceVar(&note.Signatures, "signature", nil, "signature id (repeatable)")
	cmd.Flags().StringVar(&content, "content", "", "content as a JSON object")
	return cmd
}

func noteShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				n, err := c.Note(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
}

type resolveFlags struct {
	invitation  string
	replyTo     string
	readers     []string
	signatures  []string
	interactive bool
	local       bool
	user        string
}

func (f *resolveFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.invitation, "invitation", "", "invitation id")
	cmd.Flags().StringVar(&f.replyTo, "replyto", "", "parent note id for a reply")
	cmd.Flags().StringSliceVar(&f.readers, "reader", nil, "picked reader (repeatable)")
	cmd.Flags().StringSliceVar(&f.signatures, "signature", nil, "picked signature (repeatable)")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "pick pending fields in a terminal UI")
	cmd.Flags().BoolVar(&f.local, "local", false, "resolve in this process, querying groups over the API")
	cmd.Flags().StringVar(&f.user, "user", "", "profile to resolve for with --local")
}

// resolve asks the server once, or runs the picker until the edit is ready.
func (f *resolveFlags) resolve(ctx context.Context, c *editgatesdk.Client) (editgatesdk.Resolution, error) {
	if f.invitation == "" {
		return editgatesdk.Resolution{}, fmt.Errorf("--invitation required")
	}
	var local *app.LocalResolver
	if f.local {
		cfg, err := app.LoadConfig(viper.GetString("workspace"))
		if err != nil {
			return editgatesdk.Resolution{}, err
		}
		l, err := app.NewLocalResolver(c, f.user, cfg.API.LookupRate, app.ResolverOptions(cfg, logger(), nil)...)
		if err != nil {
			return editgatesdk.Resolution{}, err
		}
		local = &l
	}
	call := func(ctx context.Context, readers, signatures []string) (editgatesdk.Resolution, error) {
		if len(readers) == 0 {
			readers = f.readers
		}
		if len(signatures) == 0 {
			signatures = f.signatures
		}
		if local != nil {
			return local.Resolve(ctx, f.invitation, f.replyTo, readers, signatures)
		}
		return c.Resolve(ctx, editgatesdk.ResolveRequest{
			Invitation: f.invitation,
			ReplyTo:    f.replyTo,
			Readers:    readers,
			Signatures: signatures,
		})
	}
	if f.interactive {
		return tui.Run(ctx, call)
	}
	return call(ctx, nil, nil)
}

func resolveCmd() *cobra.Command {
	var f resolveFlags
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve readers and signatures for an edit",
		Long:  "Expands the invitation's readers and signatures for the logged-in profile. Fields that need a pick are marked pending; pass --reader/--signature or --interactive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				res, err := f.resolve(ctx, c)
				if err != nil {
					return err
				}
				return printResolution(res)
			})
		},
	}
	f.bind(cmd)
	return cmd
}

func editCmd() *cobra.Command {
	e := &cobra.Command{
		Use:   "edit",
		Short: "Submit edits",
	}
	e.AddCommand(editSubmitCmd())
	return e
}

func editSubmitCmd() *cobra.Command {
	var f resolveFlags
	var noteID, content string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an edit; the server checks readers and signatures against the invitation",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := parseContent(content)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *editgatesdk.Client) error {
				readers, signatures := f.readers, f.signatures
				if f.interactive {
					res, err := f.resolve(ctx, c)
					if err != nil {
						return err
					}
					readers, signatures = res.Readers.Selected, res.Signatures.Selected
				}
				out, err := c.SubmitEdit(ctx, editgatesdk.EditRequest{
					Invitation: f.invitation,
					ReplyTo:    f.replyTo,
					NoteID:     noteID,
					Readers:    readers,
					Signatures: signatures,
					Content:    body,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&noteID, "note", "", "existing note to update")
	cmd.Flags().StringVar(&content, "content", "", "content as a JSON object")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every group change, import, note and edit the dev server accepted or rejected.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events from the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(cmd.Context(), func(ctx context.Context, p platform.Platform) error {
				events, err := p.Repo.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, e := range events {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.EntityKind + ":" + e.EntityID, e.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func keyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "key",
		Short: "Manage API keys in the workspace database",
	}
	k.AddCommand(keyCreateCmd())
	k.AddCommand(keyListCmd())
	return k
}

func keyCreateCmd() *cobra.Command {
	var profileID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the token is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(cmd.Context(), func(ctx context.Context, p platform.Platform) error {
				key, token, err := p.CreateAPIKey(ctx, profileID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "token": token})
				}
				fmt.Printf("Created key %s for %s\n", key.ID, key.ProfileID)
				fmt.Printf("Token (shown once): %s\n", token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "profile id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func keyListCmd() *cobra.Command {
	var profileID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys of a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPlatform(cmd.Context(), func(ctx context.Context, p platform.Platform) error {
				keys, err := p.Repo.ListAPIKeys(ctx, profileID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&profileID, "profile", "", "profile id")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

// --- helpers ---

func withClient(ctx context.Context, fn func(context.Context, *editgatesdk.Client) error) error {
	s := settings()
	cfg, err := app.LoadConfig(s.Workspace)
	if err != nil {
		return err
	}
	c, err := app.Client(s, cfg)
	if err != nil {
		return err
	}
	logger().Debug("api client", "base_url", c.BaseURL, "api_key", c.APIKey != "", "token", c.BearerToken != "")
	return fn(ctx, c)
}

func withPlatform(ctx context.Context, fn func(context.Context, platform.Platform) error) error {
	s := settings()
	cfg, err := app.LoadConfig(s.Workspace)
	if err != nil {
		return err
	}
	log := logger()
	p, conn, err := app.OpenPlatform(ctx, s.Workspace, app.ResolverOptions(cfg, log, nil)...)
	if err != nil {
		return err
	}
	defer conn.Close()
	p.Logger = log
	return fn(ctx, p)
}

func printResolution(res editgatesdk.Resolution) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("Status: %s", res.Status)
	tw.AppendHeader(table.Row{"Field", "Shape", "Candidates", "Selected", "Pending"})
	for _, sel := range []editgatesdk.Selection{res.Signatures, res.Readers} {
		pending := ""
		if sel.Pending {
			pending = "yes"
		}
		tw.AppendRow(table.Row{sel.Field, sel.Shape, strings.Join(sel.Candidates, "\n"), strings.Join(sel.Selected, "\n"), pending})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseContent(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("--content must be a JSON object: %w", err)
	}
	return out, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
