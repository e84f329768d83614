package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stratline/internal/answers"
	"stratline/internal/autosave"
	"stratline/internal/catalog"
	"stratline/internal/db"
	"stratline/internal/domain"
	"stratline/internal/engine"
	"stratline/internal/migrate"
	"stratline/internal/repo"
	"stratline/internal/scheduler"
	"stratline/internal/server"
)

// currentSnapshotID is the well-known snapshot the CLI loads and saves
// around every invocation, making the in-memory store stateful across
// commands.
const currentSnapshotID = "current"

var rootCmd = &cobra.Command{
	Use:   "sl",
	Short: "Stratline CLI",
	Long: `Stratline is a guided strategy curriculum you work through module by module.
Core concepts:
- Workspace: your .stratline directory holding the answer database.
- Catalog: the curriculum content file; modules, worksheets, quizzes, challenges.
- Modules: ordered units with required outputs and free-text responses; complete them in order or not, the engines do not care.
- Warnings: completed modules whose upstream assumptions no longer hold; fix the upstream answer and they clear on their own.
- Violations: internally inconsistent answers within one module (premium positioning with high elasticity, and friends).
- Challenges: random pushback questions against modules you completed; ignoring them costs credibility.
- Metrics: a directional valuation and CAC derived from answer quality, plus a profit trajectory. Illustrative, never authoritative.
- Event log: diary of changes, view with 'sl log tail'.`,
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
	viper.SetEnvPrefix("STRATLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("learner-id", "local-user", "learner identifier")
	rootCmd.PersistentFlags().String("catalog", "", "catalog file (default: embedded curriculum)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("learner-id", rootCmd.PersistentFlags().Lookup("learner-id"))
	_ = viper.BindPFlag("catalog", rootCmd.PersistentFlags().Lookup("catalog"))
}

func registerCommands() {
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(answerCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(metricsCmd())
	rootCmd.AddCommand(trajectoryCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(demoCmd())
	rootCmd.AddCommand(snapshotCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func catalogCmd() *cobra.Command {
	cat := &cobra.Command{Use: "catalog", Short: "Curriculum content"}
	cat.AddCommand(catalogShowCmd())
	cat.AddCommand(catalogValidateCmd())
	return cat
}

func catalogShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List curriculum modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				modules := e.Catalog.Ordered()
				if viper.GetBool("json") {
					return printJSON(modules)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"#", "ID", "Pillar", "Title", "Quiz", "Challenge", "Done"})
				for _, m := range modules {
					done := ""
					if rec, ok := e.Store.Modules[m.ID]; ok && rec.Completed {
						done = "yes"
					}
					quiz := ""
					if m.Quiz != nil {
						quiz = "yes"
					}
					challenge := ""
					if m.Challenge != "" {
						challenge = "yes"
					}
					tw.AppendRow(table.Row{m.Ordinal, m.ID, m.Pillar, m.Title, quiz, challenge, done})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func catalogValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a catalog file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := catalog.Load(file); err != nil {
				return err
			}
			fmt.Println("catalog ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "catalog file (default: embedded curriculum)")
	return cmd
}

func answerCmd() *cobra.Command {
	ans := &cobra.Command{Use: "answer", Short: "Record answers"}
	ans.AddCommand(answerSetOutputCmd())
	ans.AddCommand(answerSetFieldCmd())
	ans.AddCommand(answerRespondCmd())
	ans.AddCommand(answerQuizCmd())
	ans.AddCommand(answerCompleteCmd())
	ans.AddCommand(answerCompleteWorksheetCmd())
	ans.AddCommand(answerShowCmd())
	return ans
}

func answerSetOutputCmd() *cobra.Command {
	var moduleID, outputID, value string
	cmd := &cobra.Command{
		Use:   "set-output",
		Short: "Record a required-output value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				v := coerceOutputValue(e.Catalog, moduleID, outputID, value)
				if err := e.RecordOutput(ctx, moduleID, outputID, v, learnerID()); err != nil {
					return err
				}
				out, err := e.Store.Output(moduleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	cmd.Flags().StringVar(&outputID, "output", "", "output id")
	cmd.Flags().StringVar(&value, "value", "", "value")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func answerSetFieldCmd() *cobra.Command {
	var moduleID, worksheetID, fieldID, value string
	cmd := &cobra.Command{
		Use:   "set-field",
		Short: "Record a worksheet field value",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				v := coerceFieldValue(e.Catalog, moduleID, worksheetID, fieldID, value)
				if err := e.RecordWorksheetField(ctx, moduleID, worksheetID, fieldID, v, learnerID()); err != nil {
					return err
				}
				out, err := e.Store.Output(moduleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	cmd.Flags().StringVar(&worksheetID, "worksheet", "", "worksheet id")
	cmd.Flags().StringVar(&fieldID, "field", "", "field id")
	cmd.Flags().StringVar(&value, "value", "", "value")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("worksheet")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func answerRespondCmd() *cobra.Command {
	var moduleID, kind, text string
	cmd := &cobra.Command{
		Use:   "respond",
		Short: "Record a free-text response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				if err := e.RecordResponse(ctx, moduleID, kind, text, learnerID()); err != nil {
					return err
				}
				out, err := e.Store.Output(moduleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	cmd.Flags().StringVar(&kind, "kind", domain.ResponseSynthesis, "response kind (challenge|adversarial|synthesis|week_ahead)")
	cmd.Flags().StringVar(&text, "text", "", "response text")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func answerQuizCmd() *cobra.Command {
	var moduleID string
	var correct, total int
	var conceptGap bool
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Record a quiz attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				if err := e.RecordQuizResult(ctx, moduleID, correct, total, conceptGap, learnerID()); err != nil {
					return err
				}
				out, err := e.Store.Output(moduleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	cmd.Flags().IntVar(&correct, "correct", 0, "correct answers")
	cmd.Flags().IntVar(&total, "total", 0, "total questions")
	cmd.Flags().BoolVar(&conceptGap, "concept-gap", false, "flag a concept gap")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func answerCompleteCmd() *cobra.Command {
	var moduleID string
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark a module complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				if err := e.CompleteModule(ctx, moduleID, learnerID()); err != nil {
					return err
				}
				out, err := e.Store.Output(moduleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func answerCompleteWorksheetCmd() *cobra.Command {
	var moduleID, worksheetID string
	cmd := &cobra.Command{
		Use:   "complete-worksheet",
		Short: "Mark a worksheet complete",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				if err := e.CompleteWorksheet(ctx, moduleID, worksheetID, learnerID()); err != nil {
					return err
				}
				out, err := e.Store.Output(moduleID)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	cmd.Flags().StringVar(&worksheetID, "worksheet", "", "worksheet id")
	_ = cmd.MarkFlagRequired("module")
	_ = cmd.MarkFlagRequired("worksheet")
	return cmd
}

func answerShowCmd() *cobra.Command {
	var moduleID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show recorded answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				if moduleID != "" {
					out, err := e.Store.Output(moduleID)
					if err != nil {
						return err
					}
					return printJSONOrTable(out)
				}
				return printJSONOrTable(map[string]any{
					"modules":      e.Store.Modules,
					"thesis_lines": e.Store.ThesisLines,
					"pushbacks":    e.Store.Pushbacks,
					"credibility":  e.Store.Credibility,
				})
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id (default: all)")
	return cmd
}

func checkCmd() *cobra.Command {
	chk := &cobra.Command{Use: "check", Short: "Dependency and consistency checks"}
	chk.AddCommand(checkWarningsCmd())
	chk.AddCommand(checkViolationsCmd())
	chk.AddCommand(checkInvalidatedCmd())
	return chk
}

func checkWarningsCmd() *cobra.Command {
	var moduleID string
	cmd := &cobra.Command{
		Use:   "warnings",
		Short: "Failing upstream assumptions for a module",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				if _, ok := e.Catalog.Module(moduleID); !ok {
					return fmt.Errorf("%w: %s", answers.ErrUnknownModule, moduleID)
				}
				return printJSONOrTable(e.CheckDependencies(moduleID))
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func checkViolationsCmd() *cobra.Command {
	var moduleID string
	cmd := &cobra.Command{
		Use:   "violations",
		Short: "Consistency-rule violations for a module",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				if _, ok := e.Catalog.Module(moduleID); !ok {
					return fmt.Errorf("%w: %s", answers.ErrUnknownModule, moduleID)
				}
				return printJSONOrTable(e.EvaluateModuleRules(moduleID))
			})
		},
	}
	cmd.Flags().StringVar(&moduleID, "module", "", "module id")
	_ = cmd.MarkFlagRequired("module")
	return cmd
}

func checkInvalidatedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invalidated",
		Short: "Completed modules with violated upstream assumptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				invalidated := e.InvalidatedModules()
				if viper.GetBool("json") {
					return printJSON(invalidated)
				}
				if len(invalidated) == 0 {
					fmt.Println("no invalidated modules")
					return nil
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Module", "Upstream", "Message"})
				for id, warnings := range invalidated {
					for _, w := range warnings {
						tw.AppendRow(table.Row{id, w.Upstream, w.Message})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func noteCmd() *cobra.Command {
	note := &cobra.Command{Use: "note", Short: "Strategy notes"}
	note.AddCommand(noteScoreCmd())
	return note
}

func noteScoreCmd() *cobra.Command {
	var thesis, decision string
	var evidence, tradeoffs, risks []string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a strategy note against the rubric",
		RunE: func(cmd *cobra.Command, args []string) error {
			score := engine.ScoreStrategyNote(&domain.StrategyNote{
				Thesis:    thesis,
				Evidence:  evidence,
				Tradeoffs: tradeoffs,
				Risks:     risks,
				Decision:  decision,
			})
			return printJSONOrTable(score)
		},
	}
	cmd.Flags().StringVar(&thesis, "thesis", "", "thesis text")
	cmd.Flags().StringVar(&decision, "decision", "", "decision text")
	cmd.Flags().StringArrayVar(&evidence, "evidence", nil, "evidence bullet (repeatable)")
	cmd.Flags().StringArrayVar(&tradeoffs, "tradeoff", nil, "tradeoff bullet (repeatable)")
	cmd.Flags().StringArrayVar(&risks, "risk", nil, "risk bullet (repeatable)")
	_ = cmd.MarkFlagRequired("thesis")
	return cmd
}

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Derived valuation and CAC",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Valuation())
			})
		},
	}
	return cmd
}

func trajectoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trajectory",
		Short: "Profit trajectory series",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				points := e.Trajectory()
				if viper.GetBool("json") {
					return printJSON(points)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Module", "Profit"})
				for _, p := range points {
					tw.AppendRow(table.Row{p.Label, fmt.Sprintf("%.0f", p.Profit)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func ledgerCmd() *cobra.Command {
	led := &cobra.Command{Use: "ledger", Short: "Thesis and pushback ledger"}
	led.AddCommand(ledgerThesisCmd())
	led.AddCommand(ledgerPushbackCmd())
	led.AddCommand(ledgerCredibilityCmd())
	return led
}

func ledgerThesisCmd() *cobra.Command {
	var line string
	cmd := &cobra.Command{
		Use:   "thesis",
		Short: "Append a thesis ledger line",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Without --line this is a pure listing; leave the current
			// snapshot untouched.
			return withEngine(cmd.Context(), line != "", func(ctx context.Context, e engine.Engine) error {
				if line == "" {
					return printJSONOrTable(e.Store.ThesisLines)
				}
				if err := e.AppendThesisLine(ctx, line, learnerID()); err != nil {
					return err
				}
				return printJSONOrTable(e.Store.ThesisLines)
			})
		},
	}
	cmd.Flags().StringVar(&line, "line", "", "line to append (omit to list)")
	return cmd
}

func ledgerPushbackCmd() *cobra.Command {
	var id, response string
	cmd := &cobra.Command{
		Use:   "pushback",
		Short: "Record a boardroom-pushback response",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				if err := e.RecordPushback(ctx, id, response, learnerID()); err != nil {
					return err
				}
				return printJSONOrTable(e.Store.Pushbacks)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pushback id")
	cmd.Flags().StringVar(&response, "response", "", "response text")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("response")
	return cmd
}

func ledgerCredibilityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credibility",
		Short: "Current credibility score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(map[string]int{"credibility": e.Store.Credibility})
			})
		},
	}
	return cmd
}

func demoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Replace all answers with demo data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				demo := answers.Demo(e.Catalog)
				data, err := demo.ToJSON()
				if err != nil {
					return err
				}
				if err := e.Store.RestoreJSON(data); err != nil {
					return err
				}
				if err := e.LogEvent(ctx, "demo.loaded", "store", "", learnerID(), nil); err != nil {
					return err
				}
				fmt.Println("demo data loaded")
				return nil
			})
		},
	}
	return cmd
}

func snapshotCmd() *cobra.Command {
	snap := &cobra.Command{Use: "snapshot", Short: "Saved answer snapshots"}
	snap.AddCommand(snapshotSaveCmd())
	snap.AddCommand(snapshotLoadCmd())
	snap.AddCommand(snapshotListCmd())
	snap.AddCommand(snapshotDeleteCmd())
	return snap
}

func snapshotSaveCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Persist the current answers under a name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			return withEngine(cmd.Context(), false, func(ctx context.Context, e engine.Engine) error {
				if err := e.SaveSnapshot(ctx, id, learnerID()); err != nil {
					return err
				}
				fmt.Println("saved snapshot", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "snapshot id (default: generated)")
	return cmd
}

func snapshotLoadCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Replace the current answers from a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), true, func(ctx context.Context, e engine.Engine) error {
				return e.LoadSnapshot(ctx, id, learnerID())
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "snapshot id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func snapshotListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSnapshots(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func snapshotDeleteCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteSnapshot(ctx, id)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "snapshot id")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
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
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Entity", "Actor"})
				for _, e := range events {
					entity := e.EntityKind
					if e.EntityID != "" {
						entity += "/" + e.EntityID
					}
					tw.AppendRow(table.Row{e.TS, e.Type, entity, e.ActorID})
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

func serveCmd() *cobra.Command {
	var addr, basePath string
	var quiet time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cat, err := catalog.Load(viper.GetString("catalog"))
			if err != nil {
				return err
			}
			store := answers.NewStore(cat)
			e := engine.New(conn, cat, store)
			if err := restoreCurrent(cmd.Context(), e); err != nil {
				return err
			}

			saver := autosave.New(quiet, func() error {
				return e.SaveSnapshot(context.Background(), currentSnapshotID, "autosave")
			})
			e.OnMutate = saver.Notify
			defer saver.Close()

			sched := scheduler.New(e, scheduler.DefaultConfig())
			sched.Start(cmd.Context())
			defer sched.Stop()

			handler, err := server.New(server.Config{Engine: e, Scheduler: sched, BasePath: basePath})
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
			fmt.Printf("Serving Stratline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().DurationVar(&quiet, "autosave-quiet", 2*time.Second, "autosave debounce window")
	return cmd
}

// --- helpers ---

// withEngine opens the workspace, restores the working snapshot, runs fn,
// and (for mutating commands) persists the working snapshot back.
func withEngine(ctx context.Context, mutating bool, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cat, err := catalog.Load(viper.GetString("catalog"))
	if err != nil {
		return err
	}
	store := answers.NewStore(cat)
	e := engine.New(conn, cat, store)
	if err := restoreCurrent(ctx, e); err != nil {
		return err
	}
	if err := fn(ctx, e); err != nil {
		return err
	}
	if mutating {
		return persistCurrent(ctx, e)
	}
	return nil
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

// restoreCurrent loads the working snapshot into the store. A missing
// snapshot means a fresh workspace, not an error. Bypasses the event log:
// routine CLI state loading is not an action worth recording.
func restoreCurrent(ctx context.Context, e engine.Engine) error {
	snap, err := e.Repo.GetSnapshot(ctx, currentSnapshotID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return e.Store.RestoreJSON([]byte(snap.Data))
}

// persistCurrent writes the working snapshot back, also without an event.
func persistCurrent(ctx context.Context, e engine.Engine) error {
	data, err := e.Store.ToJSON()
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	return e.Repo.SaveSnapshot(ctx, currentSnapshotID, string(data), now)
}

// coerceOutputValue parses the flag value against the declared output
// type. Unknown references pass through as strings and fail later in the
// store with a proper error.
func coerceOutputValue(cat *catalog.Catalog, moduleID, outputID, raw string) any {
	m, ok := cat.Module(moduleID)
	if !ok {
		return raw
	}
	def, ok := m.Output(outputID)
	if !ok {
		return raw
	}
	return coerceByType(def.Type, raw)
}

func coerceFieldValue(cat *catalog.Catalog, moduleID, worksheetID, fieldID, raw string) any {
	m, ok := cat.Module(moduleID)
	if !ok {
		return raw
	}
	ws, ok := m.Worksheet(worksheetID)
	if !ok {
		return raw
	}
	def, ok := ws.Field(fieldID)
	if !ok {
		return raw
	}
	return coerceByType(def.Type, raw)
}

func coerceByType(ft catalog.FieldType, raw string) any {
	if ft == catalog.FieldNumber {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}

func learnerID() string {
	return viper.GetString("learner-id")
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
