package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"permitline/internal/app"
	"permitline/internal/db"
	"permitline/internal/migrate"
	"permitline/internal/repo"
	"permitline/internal/server"
	"permitline/internal/tracker"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Permitline CLI",
	Long: `Permitline tracks planning applications from draft through decision.
- Workspace: your .permitline directory holding only the database; reference
  tables (fees, statutory periods, stage templates) live in the DB and can be
  imported from permitline.yml.
- Permit: one planning application with its stage pipeline, key dates,
  conditions, consultees, documents, fees, and notes.
- Status: draft -> submitted -> validated -> pending_decision -> decision
  (approved/approved_with_conditions/refused); withdrawn and appealed are the
  exits. Transitions are checked; --force bypasses the table.
- Stages: preparation, submission, validation, consultation, (committee),
  assessment, decision. Earlier stages complete automatically as status moves.
- Event log: diary of changes, view with 'pl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load(filepath.Join(viper.GetString("workspace"), ".env"))
	viper.SetEnvPrefix("PERMITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
}

func registerCommands() {
	rootCmd.AddCommand(permitCmd())
	rootCmd.AddCommand(conditionCmd())
	rootCmd.AddCommand(consulteeCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(documentCmd())
	rootCmd.AddCommand(officerCmd())
	rootCmd.AddCommand(feeCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(areaCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func permitCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "permit",
		Short: "Manage permits",
		Long:  "Permits are planning applications. Create one in draft, move it through submitted/validated to a decision, and watch key dates and stages update as it goes.",
	}
	p.AddCommand(permitCreateCmd())
	p.AddCommand(permitListCmd())
	p.AddCommand(permitShowCmd())
	p.AddCommand(permitStatusCmd())
	p.AddCommand(permitTimelineCmd())
	return p
}

func permitCreateCmd() *cobra.Command {
	var address, postcode, appType, owner string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a permit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = viper.GetString("actor-id")
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.Create(ctx, tracker.CreateOptions{
					OwnerID:         owner,
					PropertyAddress: address,
					Postcode:        postcode,
					Type:            appType,
					ActorID:         viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "property address")
	cmd.Flags().StringVar(&postcode, "postcode", "", "postcode")
	cmd.Flags().StringVar(&appType, "type", "householder", "application type")
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (defaults to actor-id)")
	_ = cmd.MarkFlagRequired("address")
	_ = cmd.MarkFlagRequired("postcode")
	return cmd
}

func permitListCmd() *cobra.Command {
	var f repo.PermitFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permits",
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.OwnerID == "" {
				f.OwnerID = viper.GetString("actor-id")
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				items, err := tr.Repo.ListPermits(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Ref", "Address", "Type", "Status", "Stage", "Updated"})
				for _, p := range items {
					ref := p.ApplicationRef
					if ref == "" {
						ref = p.ID[:8]
					}
					tw.AppendRow(table.Row{ref, p.PropertyAddress, p.Type, p.Status, p.CurrentStage, p.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.OwnerID, "owner", "", "owner filter (defaults to actor-id)")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "type filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max results")
	return cmd
}

func permitShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a permit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func permitStatusCmd() *cobra.Command {
	var status, note string
	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Update permit status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.UpdateStatus(ctx, tracker.UpdateStatusOptions{
					ID:      args[0],
					Status:  status,
					Note:    note,
					ActorID: viper.GetString("actor-id"),
					Force:   viper.GetBool("force"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&note, "note", "", "note to record with the change")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func permitTimelineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show permit timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				items, err := tr.Timeline(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Category", "Description"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.Date, e.Category, e.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func conditionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "condition",
		Short: "Manage conditions",
		Long:  "Conditions are obligations attached to a decision. They start pending, get submitted for discharge, and end approved or discharged.",
	}
	c.AddCommand(conditionAddCmd())
	c.AddCommand(conditionUpdateCmd())
	return c
}

func conditionAddCmd() *cobra.Command {
	var condType, description, deadline string
	cmd := &cobra.Command{
		Use:   "add <permit-id>",
		Short: "Add condition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.AddCondition(ctx, args[0], tracker.ConditionInput{
					Type:        condType,
					Description: description,
					Deadline:    optionalString(deadline),
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&condType, "type", "", "condition type (pre_commencement, pre_occupation, ongoing, informative)")
	cmd.Flags().StringVar(&description, "description", "", "condition text")
	cmd.Flags().StringVar(&deadline, "deadline", "", "discharge deadline (RFC3339)")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func conditionUpdateCmd() *cobra.Command {
	var status, dischargeRef string
	cmd := &cobra.Command{
		Use:   "update <permit-id> <condition-id>",
		Short: "Update condition status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.UpdateConditionStatus(ctx, args[0], args[1], status, dischargeRef, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (pending, submitted, approved, discharged)")
	cmd.Flags().StringVar(&dischargeRef, "discharge-ref", "", "discharge reference")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func consulteeCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "consultee",
		Short: "Manage consultee responses",
		Long:  "Consultees are the bodies asked for a view (highways, heritage, neighbours). Recording the same name again replaces the earlier response.",
	}
	c.AddCommand(consulteeRecordCmd())
	return c
}

func consulteeRecordCmd() *cobra.Command {
	var name, consType, status, recommendation string
	cmd := &cobra.Command{
		Use:   "record <permit-id>",
		Short: "Record consultee response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.AddConsulteeResponse(ctx, args[0], tracker.ConsulteeInput{
					Name:           name,
					Type:           consType,
					Status:         status,
					Recommendation: recommendation,
				}, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "consultee name")
	cmd.Flags().StringVar(&consType, "type", "", "consultee type (statutory, internal, public)")
	cmd.Flags().StringVar(&status, "status", "", "response status (pending, received, no_response)")
	cmd.Flags().StringVar(&recommendation, "recommendation", "", "recommendation")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func noteCmd() *cobra.Command {
	n := &cobra.Command{Use: "note", Short: "Manage notes"}
	n.AddCommand(noteAddCmd())
	return n
}

func noteAddCmd() *cobra.Command {
	var content, category string
	cmd := &cobra.Command{
		Use:   "add <permit-id>",
		Short: "Add note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.AddNote(ctx, args[0], viper.GetString("actor-id"), content, category)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "note text")
	cmd.Flags().StringVar(&category, "category", "", "note category (system, officer_update, user_note)")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func documentCmd() *cobra.Command {
	d := &cobra.Command{Use: "document", Short: "Manage documents"}
	d.AddCommand(documentAddCmd())
	d.AddCommand(documentStatusCmd())
	return d
}

func documentAddCmd() *cobra.Command {
	var name, category string
	cmd := &cobra.Command{
		Use:   "add <permit-id>",
		Short: "Add document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.AddDocument(ctx, args[0], name, category, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "document name")
	cmd.Flags().StringVar(&category, "category", "", "document category")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func documentStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <permit-id> <document-id>",
		Short: "Update document status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.SetDocumentStatus(ctx, args[0], args[1], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (pending, approved, rejected)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func officerCmd() *cobra.Command {
	o := &cobra.Command{Use: "officer", Short: "Case officer"}
	o.AddCommand(officerAssignCmd())
	return o
}

func officerAssignCmd() *cobra.Command {
	var name, contact string
	cmd := &cobra.Command{
		Use:   "assign <permit-id>",
		Short: "Assign case officer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.AssignOfficer(ctx, args[0], name, contact, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "officer name")
	cmd.Flags().StringVar(&contact, "contact", "", "officer contact")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func feeCmd() *cobra.Command {
	f := &cobra.Command{Use: "fee", Short: "Fees"}
	f.AddCommand(feePayCmd())
	f.AddCommand(feeAddItemCmd())
	return f
}

func feePayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pay <permit-id>",
		Short: "Mark application fee paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.MarkFeePaid(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func feeAddItemCmd() *cobra.Command {
	var description string
	var amount int
	cmd := &cobra.Command{
		Use:   "add-item <permit-id>",
		Short: "Add fee line item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				p, err := tr.AddFeeItem(ctx, args[0], description, amount, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "item description")
	cmd.Flags().IntVar(&amount, "amount", 0, "amount in pounds")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func summaryCmd() *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Portfolio summary",
		Long:  "The scoreboard across an owner's permits: counts by status and type, average processing days, success rate, and what is due in the next fortnight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if owner == "" {
				owner = viper.GetString("actor-id")
			}
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				s, err := tr.Summary(ctx, owner)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Permits: %d (pending decision: %d)\n", s.Total, s.PendingDecision)
				fmt.Printf("Avg processing days: %d\n", s.AvgProcessingDays)
				fmt.Printf("Success rate: %d%%\n", s.SuccessRate)
				fmt.Println("By status:")
				for status, c := range s.StatusCounts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				if len(s.UpcomingDeadlines) > 0 {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Date", "Ref", "Kind", "Description"})
					for _, d := range s.UpcomingDeadlines {
						tw.AppendRow(table.Row{d.Date, d.ApplicationRef, d.Kind, d.Description})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "owner id (defaults to actor-id)")
	return cmd
}

func areaCmd() *cobra.Command {
	a := &cobra.Command{Use: "area", Short: "Area benchmarks"}
	a.AddCommand(areaStatsCmd())
	return a
}

func areaStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <postcode>",
		Short: "Show area statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				return printJSONOrTable(tr.AreaStatistics(args[0]))
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect tracker config",
		Long:  "Config is the reference data (stored in DB): authority, fee table, statutory decision periods, stage templates, deadline window, and area benchmarks. Import from permitline.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				return printJSONOrTable(tr.Config)
			})
		},
	}
	return cmd
}

func configImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				cfg, err := app.ImportConfig(ctx, filePath, r)
				if err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withTracker(cmd.Context(), func(ctx context.Context, tr tracker.Tracker) error {
				return tr.Config.Validate()
			})
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
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: creations, status changes, conditions, documents, fees.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			tr := tracker.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("PERMITLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PERMITLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Tracker: tr, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Permitline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withTracker(ctx context.Context, fn func(context.Context, tracker.Tracker) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, r)
	if err != nil {
		return err
	}
	return fn(ctx, tracker.New(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
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

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
