package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"peopleops/internal/app"
	"peopleops/internal/config"
	"peopleops/internal/domain"
	"peopleops/internal/engine"
	"peopleops/internal/repo"
	"peopleops/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "peopleops",
	Short: "PeopleOps approvals and training CLI",
	Long: `PeopleOps merges HR approval work into one queue and runs training quizzes.
- Queue: pending tasks, leave requests, reimbursements and requisitions the caller may decide.
- Decisions: approve or reject with a note; every decision leaves an audit record.
- Notifications: a capped digest of what needs the caller's attention.
- Training: assignments with graded quizzes; a pass is final.
- Event log: every change, view with 'peopleops log tail'.
The caller is set with --name/--email/--department/--role/--director or PEOPLEOPS_* env vars.`,
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
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PEOPLEOPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("name", "", "caller display name")
	flags.String("email", "", "caller email")
	flags.String("department", "", "caller department")
	flags.String("role", "", "caller role")
	flags.Bool("director", false, "caller is a director")
	flags.String("locale", "", "label locale (en, vi)")
	for _, name := range []string{"workspace", "json", "name", "email", "department", "role", "director", "locale"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(trainingCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		Long:  "Reads PEOPLEOPS_JWT_SECRET, PEOPLEOPS_ADDR, PEOPLEOPS_BASE_PATH, PEOPLEOPS_DEV_LOGIN, PEOPLEOPS_LOG_LEVEL and PEOPLEOPS_LOG_FORMAT.",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := app.LoadServeEnv()
			if err != nil {
				return err
			}
			log, err := app.NewLogger(os.Stderr, env.LogLevel, env.LogFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(log)
			e, closeDB, err := app.Open(viper.GetString("workspace"), log)
			if err != nil {
				return err
			}
			defer closeDB()
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: env.BasePath,
				Auth:     server.AuthConfig{JWTSecret: env.JWTSecret, DevLogin: env.DevLogin, Logger: log},
			})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e, log)
			srv := &http.Server{Addr: env.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving PeopleOps API", "addr", env.Addr, "base_path", env.BasePath, "dev_login", env.DevLogin)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Unified approval queue",
	}
	cmd.AddCommand(queueListCmd())
	cmd.AddCommand(queueDecideCmd())
	cmd.AddCommand(queueHistoryCmd())
	return cmd
}

func queueListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending requests the caller may decide",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id := identityFromFlags()
				q := e.ListPending(ctx, e.Resolve(id), id)
				if viper.GetBool("json") {
					return printJSON(map[string]any{"items": q.Items, "sources": q.Sources, "degraded": q.Degraded()})
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Kind", "ID", "Title", "Submitted by", "Summary"})
				for _, item := range q.Items {
					tw.AppendRow(table.Row{item.Kind, item.ID, item.Title, item.SubmittedBy, item.Summary})
				}
				tw.Render()
				for _, s := range q.Sources {
					if s.Error != "" {
						fmt.Fprintf(os.Stderr, "warning: %s unavailable: %s\n", s.Kind, s.Error)
					}
				}
				return nil
			})
		},
	}
}

func queueDecideCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "decide <kind> <id> <approve|reject>",
		Short: "Approve or reject a pending request",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := domain.ParseKind(args[0])
			if err != nil {
				return err
			}
			action, err := domain.ParseAction(args[2])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.Decide(ctx, engine.DecideOptions{
					Kind:     kind,
					ID:       args[1],
					Action:   action,
					Note:     note,
					Identity: identityFromFlags(),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rec)
				}
				fmt.Printf("%s %s %s (%s)\n", rec.Status, rec.SourceKind, rec.SourceID, rec.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "decision note (required)")
	return cmd
}

func queueHistoryCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent decisions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListCompleted(ctx, identityFromFlags(), n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Decided at", "Kind", "Title", "Status", "By", "Note"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.DecidedAt, a.SourceKind, a.Title, a.Status, a.DecidedBy, a.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of decisions")
	return cmd
}

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Show the caller's notification digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				id := identityFromFlags()
				digest := e.Compose(ctx, id, e.Resolve(id))
				if viper.GetBool("json") {
					return printJSON(digest)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Label", "Title", "Detail"})
				for _, item := range digest.Items {
					tw.AppendRow(table.Row{item.Label, item.Title, item.Detail})
				}
				tw.Render()
				for _, src := range digest.Degraded {
					fmt.Fprintf(os.Stderr, "warning: %s unavailable\n", src)
				}
				return nil
			})
		},
	}
}

func trainingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "training",
		Short: "Training assignments and quizzes",
	}
	cmd.AddCommand(trainingListCmd())
	cmd.AddCommand(trainingCreateCmd())
	cmd.AddCommand(trainingSubmitCmd())
	cmd.AddCommand(trainingResponsesCmd())
	return cmd
}

func trainingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List assignments the caller is eligible for",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEligible(ctx, identityFromFlags())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Title", "Department", "Due", "Done", "Passed"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Title, a.Department, a.DueDate, fmt.Sprintf("%d/%d", a.Completed, a.Total), a.Passed})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func trainingCreateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assignment from a YAML file (ops only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts engine.AssignmentCreateOptions
			if err := readYAML(file, &opts); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAssignment(ctx, identityFromFlags(), opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				fmt.Printf("created assignment %s (%d questions, %d participants)\n", a.ID, len(a.Questions), a.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "assignment YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func trainingSubmitCmd() *cobra.Command {
	var raw []string
	cmd := &cobra.Command{
		Use:   "submit <assignment-id>",
		Short: "Submit quiz answers",
		Long:  "Answers are given as --answer INDEX=VALUE; comma separated values make a multiple choice answer.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			answers, err := parseAnswers(raw)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Submit(ctx, identityFromFlags(), args[0], answers)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("score %s, passed %t\n", formatScore(res.Score), res.Passed)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&raw, "answer", nil, "answer as INDEX=VALUE (repeatable)")
	return cmd
}

func trainingResponsesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "responses <assignment-id>",
		Short: "List responses (own responses unless ops)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListResponses(ctx, identityFromFlags(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Submitted at", "Employee", "Score", "Passed"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.SubmittedAt, r.EmployeeName, formatScore(r.Score), r.Passed})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import requests and assignments from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f engine.Fixture
			if err := readYAML(file, &f); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				summary, err := e.Import(ctx, f)
				if err != nil {
					return err
				}
				return printJSONOrTable(summary)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "fixture YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer tokens for the HTTP API",
	}
	cmd.AddCommand(tokenMintCmd())
	return cmd
}

func tokenMintCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Sign a token for the caller flags with PEOPLEOPS_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if strings.TrimSpace(secret) == "" {
				return fmt.Errorf("PEOPLEOPS_JWT_SECRET is required to sign tokens")
			}
			token, err := server.SignToken(secret, identityFromFlags(), ttl)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.Events(ctx, repo.EventFilter{Type: evtType, EntityKind: entityKind, EntityID: entityID, Limit: n})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + "/" + evt.EntityID, evt.ActorID})
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

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage peopleops.yml",
		Long:  "peopleops.yml holds role claims (cfo, ops), the training passing score, notification limits, the default locale and webhooks.",
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
		Short: "Write a default peopleops.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			redacted := *cfg
			redacted.Webhooks = make([]config.WebhookConfig, len(cfg.Webhooks))
			for i, hook := range cfg.Webhooks {
				if hook.Secret != "" {
					hook.Secret = "<redacted>"
				}
				redacted.Webhooks[i] = hook
			}
			out, err := yaml.Marshal(redacted)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate peopleops.yml",
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

// --- helpers ---

func identityFromFlags() domain.Identity {
	return domain.Identity{
		Name:       strings.TrimSpace(viper.GetString("name")),
		Email:      strings.TrimSpace(viper.GetString("email")),
		Department: strings.TrimSpace(viper.GetString("department")),
		Role:       strings.TrimSpace(viper.GetString("role")),
		Director:   viper.GetBool("director"),
		Locale:     strings.TrimSpace(viper.GetString("locale")),
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	e, closeDB, err := app.Open(viper.GetString("workspace"), slog.Default())
	if err != nil {
		return err
	}
	defer closeDB()
	return fn(ctx, e)
}

// parseAnswers reads INDEX=VALUE pairs; a comma makes the answer multi-valued.
func parseAnswers(raw []string) (map[int]domain.Answer, error) {
	out := make(map[int]domain.Answer, len(raw))
	for _, item := range raw {
		idx, value, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("answer %q must be INDEX=VALUE", item)
		}
		n, err := strconv.Atoi(strings.TrimSpace(idx))
		if err != nil {
			return nil, fmt.Errorf("answer %q: invalid index", item)
		}
		var values []string
		for _, v := range strings.Split(value, ",") {
			if v = strings.TrimSpace(v); v != "" {
				values = append(values, v)
			}
		}
		out[n] = domain.Answer{Values: values, Multi: strings.Contains(value, ",")}
	}
	return out, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func formatScore(score *int) string {
	if score == nil {
		return "-"
	}
	return strconv.Itoa(*score)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := yaml.Marshal(v)
	fmt.Print(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
