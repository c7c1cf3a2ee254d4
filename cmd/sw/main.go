package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"slipway/internal/app"
	"slipway/internal/config"
	"slipway/internal/db"
	"slipway/internal/engine"
	"slipway/internal/migrate"
	"slipway/internal/notify"
	"slipway/internal/repo"
	"slipway/internal/server"
	"slipway/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "sw",
	Short: "Slipway CLI",
	Long: `Slipway tracks hull fabrication schedules against immutable baselines.
The workspace holds one SQLite database under .slipway/; the role catalog and
notification routing live in slipway.yml next to it. Every schedule change
that touches the baseline goes through a reviewed change request, lands in
the audit ledger, and fans out notifications to the assigned stakeholders.`,
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
	viper.SetEnvPrefix("SLIPWAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting stakeholder id")
	rootCmd.PersistentFlags().Bool("force", false, "force operation")
	rootCmd.PersistentFlags().String("project", "", "project id (defaults to the workspace's single project)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("force", rootCmd.PersistentFlags().Lookup("force"))
	_ = viper.BindPFlag("project", rootCmd.PersistentFlags().Lookup("project"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(phaseCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(baselineCmd())
	rootCmd.AddCommand(changeCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(stakeholderCmd())
	rootCmd.AddCommand(resumeCmd())
	rootCmd.AddCommand(serveCmd())
}

func actorID() (string, error) {
	id := viper.GetString("actor-id")
	if id == "" {
		return "", fmt.Errorf("--actor-id required (or SLIPWAY_ACTOR_ID)")
	}
	return id, nil
}

func withEngine(ctx context.Context, fn func(context.Context, *engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	log := telemetry.NewLogger(viper.GetString("log-level"), true)
	r := repo.Repo{DB: conn}
	e, _, _ := app.Wire(&r, cfg, log, true)
	return fn(ctx, e)
}

func resolveProject(ctx context.Context, e *engine.Engine) (string, error) {
	return app.ResolveProjectID(ctx, viper.GetString("project"), e.Repo)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func projectCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "project", Short: "Manage projects"}

	var name, desc, shipyard, vessel, start, end string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create project",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				in := engine.CreateProjectInput{
					Name:         name,
					Description:  desc,
					ShipyardName: shipyard,
					VesselType:   vessel,
					ActorID:      actor,
				}
				if start != "" {
					in.PlannedStart = &start
				}
				if end != "" {
					in.PlannedEnd = &end
				}
				p, err := e.CreateProject(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "project name")
	create.Flags().StringVar(&desc, "description", "", "description")
	create.Flags().StringVar(&shipyard, "shipyard", "", "shipyard name")
	create.Flags().StringVar(&vessel, "vessel-type", "", "vessel type")
	create.Flags().StringVar(&start, "planned-start", "", "planned start (YYYY-MM-DD)")
	create.Flags().StringVar(&end, "planned-end", "", "planned end (YYYY-MM-DD)")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Vessel", "Progress %", "Baseline"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.VesselType, fmt.Sprintf("%.1f", p.ProgressPct), str(p.ActiveBaselineID)})
				}
				tw.Render()
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				id, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				p, err := e.GetProject(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}

	gantt := &cobra.Command{
		Use:   "gantt",
		Short: "Schedule view with deviations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				id, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				g, err := e.GetGantt(ctx, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(g)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Phase", "Stage", "Status", "Progress %", "Planned End", "Baseline End", "Deviation"})
				for _, ph := range g.Phases {
					for _, s := range ph.Stages {
						dev := "no data"
						if s.Deviation.Status != nil {
							dev = fmt.Sprintf("%s (%+d d)", *s.Deviation.Status, *s.Deviation.DeviationDays)
						}
						tw.AppendRow(table.Row{ph.Name, s.Name, s.Status, fmt.Sprintf("%.1f", s.ProgressPct), str(s.PlannedEnd), str(s.BaselineEnd), dev})
					}
				}
				tw.Render()
				fmt.Printf("on baseline: %d  ahead: %d  delayed: %d  no data: %d\n",
					g.Summary.OnBaseline, g.Summary.Ahead, g.Summary.Delayed, g.Summary.NoData)
				return nil
			})
		},
	}

	cmd.AddCommand(create, list, show, gantt)
	return cmd
}

func phaseCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "phase", Short: "Manage phases"}

	var name, desc, start, end string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				in := engine.AddPhaseInput{ProjectID: projectID, Name: name, Description: desc, ActorID: actor}
				if start != "" {
					in.PlannedStart = &start
				}
				if end != "" {
					in.PlannedEnd = &end
				}
				p, err := e.AddPhase(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(p)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "phase name")
	add.Flags().StringVar(&desc, "description", "", "description")
	add.Flags().StringVar(&start, "planned-start", "", "planned start")
	add.Flags().StringVar(&end, "planned-end", "", "planned end")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListPhases(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Order", "ID", "Name", "Progress %"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Order, p.ID, p.Name, fmt.Sprintf("%.1f", p.ProgressPct)})
				}
				tw.Render()
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <phase-id>",
		Short: "Remove phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				return e.RemovePhase(ctx, projectID, args[0], actor, viper.GetBool("force"))
			})
		},
	}

	reorder := &cobra.Command{
		Use:   "reorder <phase-id>...",
		Short: "Reorder phases (complete ordered id list)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				return e.ReorderPhases(ctx, projectID, args, actor)
			})
		},
	}

	cmd.AddCommand(add, list, remove, reorder)
	return cmd
}

func stageCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stage", Short: "Manage stages"}

	var phaseID, name, desc, start, end string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add stage to a phase",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				in := engine.AddStageInput{ProjectID: projectID, PhaseID: phaseID, Name: name, Description: desc, ActorID: actor}
				if start != "" {
					in.PlannedStart = &start
				}
				if end != "" {
					in.PlannedEnd = &end
				}
				s, err := e.AddStage(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	add.Flags().StringVar(&phaseID, "phase", "", "phase id")
	add.Flags().StringVar(&name, "name", "", "stage name")
	add.Flags().StringVar(&desc, "description", "", "description")
	add.Flags().StringVar(&start, "planned-start", "", "planned start")
	add.Flags().StringVar(&end, "planned-end", "", "planned end")
	_ = add.MarkFlagRequired("phase")
	_ = add.MarkFlagRequired("name")

	var planStart, planEnd, planName string
	plan := &cobra.Command{
		Use:   "plan <stage-id>",
		Short: "Edit a stage's current plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				in := engine.UpdateStagePlanInput{ProjectID: projectID, StageID: args[0], ActorID: actor}
				if planName != "" {
					in.Name = &planName
				}
				if planStart != "" {
					in.PlannedStart = &planStart
				}
				if planEnd != "" {
					in.PlannedEnd = &planEnd
				}
				s, err := e.UpdateStagePlan(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	plan.Flags().StringVar(&planName, "name", "", "new name")
	plan.Flags().StringVar(&planStart, "planned-start", "", "new planned start")
	plan.Flags().StringVar(&planEnd, "planned-end", "", "new planned end")

	var status, actualStart, actualEnd, comments string
	var progressPct float64
	progress := &cobra.Command{
		Use:   "progress <stage-id>",
		Short: "Report stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				in := engine.StageProgressInput{ProjectID: projectID, StageID: args[0], ActorID: actor}
				if status != "" {
					in.Status = &status
				}
				if cmd.Flags().Changed("pct") {
					in.ProgressPct = &progressPct
				}
				if actualStart != "" {
					in.ActualStart = &actualStart
				}
				if actualEnd != "" {
					in.ActualEnd = &actualEnd
				}
				if comments != "" {
					in.Comments = &comments
				}
				s, err := e.UpdateStageProgress(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	progress.Flags().StringVar(&status, "status", "", "not_started|in_progress|blocked|completed")
	progress.Flags().Float64Var(&progressPct, "pct", 0, "progress percentage")
	progress.Flags().StringVar(&actualStart, "actual-start", "", "actual start")
	progress.Flags().StringVar(&actualEnd, "actual-end", "", "actual end")
	progress.Flags().StringVar(&comments, "comments", "", "comments")

	remove := &cobra.Command{
		Use:   "remove <stage-id>",
		Short: "Remove stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				return e.RemoveStage(ctx, projectID, args[0], actor, viper.GetBool("force"))
			})
		},
	}

	var reorderPhase string
	reorder := &cobra.Command{
		Use:   "reorder <stage-id>...",
		Short: "Reorder stages within a phase",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				return e.ReorderStages(ctx, projectID, reorderPhase, args, actor)
			})
		},
	}
	reorder.Flags().StringVar(&reorderPhase, "phase", "", "phase id")
	_ = reorder.MarkFlagRequired("phase")

	updates := &cobra.Command{
		Use:   "updates <stage-id>",
		Short: "Stage update history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListStageUpdates(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}

	deviation := &cobra.Command{
		Use:   "deviation <stage-id>",
		Short: "Deviation against the active baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				d, err := e.ComputeDeviation(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}

	cmd.AddCommand(add, plan, progress, remove, reorder, updates, deviation)
	return cmd
}

func depCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "dep", Short: "Manage stage dependencies"}

	var depType string
	add := &cobra.Command{
		Use:   "add <predecessor-stage-id> <successor-stage-id>",
		Short: "Add dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.AddDependency(ctx, projectID, args[0], args[1], depType, actor)
				if err != nil {
					return err
				}
				return printJSON(d)
			})
		},
	}
	add.Flags().StringVar(&depType, "type", "finish_to_start", "dependency type")

	list := &cobra.Command{
		Use:   "list",
		Short: "List dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListDependencies(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <dependency-id>",
		Short: "Remove dependency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				return e.RemoveDependency(ctx, projectID, args[0], actor)
			})
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}

func baselineCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "baseline", Short: "Baselines and deviation reports"}

	var notes string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Set the initial baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				b, err := e.SetInitialBaseline(ctx, projectID, actor, notes)
				if err != nil {
					return err
				}
				return printJSON(b)
			})
		},
	}
	initCmd.Flags().StringVar(&notes, "notes", "", "baseline notes")

	list := &cobra.Command{
		Use:   "list",
		Short: "Baseline version history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListBaselines(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Version", "Active", "Set By", "Set At", "Change Request"})
				for _, b := range items {
					tw.AppendRow(table.Row{b.VersionNumber, b.IsActive, b.SetBy, b.SetAt, str(b.ChangeRequestID)})
				}
				tw.Render()
				return nil
			})
		},
	}

	report := &cobra.Command{
		Use:   "report",
		Short: "Baseline report with per-stage deviations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				r, err := e.GetBaselineReport(ctx, projectID)
				if err != nil {
					return err
				}
				return printJSON(r)
			})
		},
	}

	snapshots := &cobra.Command{
		Use:   "snapshots <baseline-id>",
		Short: "Per-stage snapshots of a baseline version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListBaselineSnapshots(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(items)
			})
		},
	}

	cmd.AddCommand(initCmd, list, report, snapshots)
	return cmd
}

func changeCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "change", Short: "Change-control workflow"}

	var changeType, reason, approver, comment string
	var impactDays int
	var costImpact float64
	submit := &cobra.Command{
		Use:   "submit",
		Short: "Submit a change request",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				in := engine.SubmitChangeInput{
					ProjectID:          projectID,
					ChangeType:         changeType,
					Reason:             reason,
					StakeholderComment: comment,
					RequestedBy:        actor,
					ApproverID:         approver,
				}
				if cmd.Flags().Changed("impact-days") {
					in.ScheduleImpactDays = &impactDays
				}
				if cmd.Flags().Changed("cost-impact") {
					in.CostImpact = &costImpact
				}
				cr, err := e.SubmitChangeRequest(ctx, in)
				if err != nil {
					return err
				}
				return printJSON(cr)
			})
		},
	}
	submit.Flags().StringVar(&changeType, "type", "", "initial_baseline|delay|scope_change|cost_change|other")
	submit.Flags().StringVar(&reason, "reason", "", "reason")
	submit.Flags().StringVar(&approver, "approver", "", "designated approver stakeholder id")
	submit.Flags().IntVar(&impactDays, "impact-days", 0, "schedule impact in days (signed)")
	submit.Flags().Float64Var(&costImpact, "cost-impact", 0, "cost impact (informational)")
	submit.Flags().StringVar(&comment, "comments", "", "stakeholder comments")
	_ = submit.MarkFlagRequired("type")
	_ = submit.MarkFlagRequired("reason")
	_ = submit.MarkFlagRequired("approver")

	var statusFilter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List change requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListChangeRequests(ctx, projectID, statusFilter)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Impact Days", "Requested By", "Approver"})
				for _, c := range items {
					impact := ""
					if c.ScheduleImpactDays != nil {
						impact = strconv.Itoa(*c.ScheduleImpactDays)
					}
					tw.AppendRow(table.Row{c.ID, c.ChangeType, c.Status, impact, c.RequestedBy, c.ApproverID})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&statusFilter, "status", "", "pending|approved|rejected")

	show := &cobra.Command{
		Use:   "show <change-request-id>",
		Short: "Show change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				cr, err := e.GetChangeRequest(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cr)
			})
		},
	}

	var signoffComment string
	signoff := &cobra.Command{
		Use:   "signoff <change-request-id>",
		Short: "Record owner representative sign-off on a scope change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				cr, err := e.RecordOwnerSignoff(ctx, projectID, args[0], actor, signoffComment)
				if err != nil {
					return err
				}
				return printJSON(cr)
			})
		},
	}
	signoff.Flags().StringVar(&signoffComment, "comment", "", "sign-off comment")

	var reviewerComments string
	resolve := func(decision, short string) *cobra.Command {
		c := &cobra.Command{
			Use:   decision + " <change-request-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				actor, err := actorID()
				if err != nil {
					return err
				}
				return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
					projectID, err := resolveProject(ctx, e)
					if err != nil {
						return err
					}
					cr, err := e.ResolveChangeRequest(ctx, engine.ResolveChangeInput{
						ProjectID:        projectID,
						ChangeRequestID:  args[0],
						Decision:         decision,
						ReviewerComments: reviewerComments,
						ActorID:          actor,
					})
					if err != nil {
						return err
					}
					return printJSON(cr)
				})
			},
		}
		c.Flags().StringVar(&reviewerComments, "comments", "", "reviewer comments")
		return c
	}

	cmd.AddCommand(submit, list, show, signoff,
		resolve("approve", "Approve a pending change request"),
		resolve("reject", "Reject a pending change request"))
	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Audit ledger"}

	list := &cobra.Command{
		Use:   "list",
		Short: "Ledger in sequence order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListAuditEntries(ctx, projectID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "Type", "Changed By", "Approved By", "Reason", "Occurred At"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.SequenceNumber, a.ChangeType, a.ChangedBy, str(a.ApprovedBy), a.Reason, a.OccurredAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	var format string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export the ledger as CSV or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListAuditEntries(ctx, projectID)
				if err != nil {
					return err
				}
				if format == "json" {
					return printJSON(items)
				}
				w := csv.NewWriter(os.Stdout)
				defer w.Flush()
				if err := w.Write([]string{"sequence_number", "occurred_at", "change_type", "changed_by", "approved_by", "reason", "schedule_impact_days", "baseline_id", "change_request_id"}); err != nil {
					return err
				}
				for _, a := range items {
					impact := ""
					if a.ScheduleImpactDays != nil {
						impact = strconv.Itoa(*a.ScheduleImpactDays)
					}
					if err := w.Write([]string{
						strconv.FormatInt(a.SequenceNumber, 10), a.OccurredAt, a.ChangeType, a.ChangedBy,
						str(a.ApprovedBy), a.Reason, impact, str(a.BaselineID), str(a.ChangeRequestID),
					}); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	export.Flags().StringVar(&format, "format", "csv", "csv|json")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Verify the ledger sequence is gap-free",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				if err := e.Ledger.Verify(ctx, e.DB, projectID); err != nil {
					return err
				}
				fmt.Println("ledger ok")
				return nil
			})
		},
	}

	cmd.AddCommand(list, export, verify)
	return cmd
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "notify", Short: "Notification records"}

	var stakeholder string
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				items, err := e.ListNotifications(ctx, projectID, stakeholder)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Type", "Stakeholder", "Role", "Notified At", "Comments"})
				for _, n := range items {
					tw.AppendRow(table.Row{n.Type, n.StakeholderID, n.RoleAtTime, n.NotifiedAt, n.Comments})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&stakeholder, "stakeholder", "", "filter by stakeholder id")

	replay := &cobra.Command{
		Use:   "replay",
		Short: "Re-derive notifications from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				entries, err := e.ListAuditEntries(ctx, projectID)
				if err != nil {
					return err
				}
				d, ok := e.Notify.(*notify.Dispatcher)
				if !ok {
					return fmt.Errorf("dispatcher unavailable")
				}
				if err := d.Replay(ctx, entries); err != nil {
					return err
				}
				fmt.Printf("replayed %d ledger entries\n", len(entries))
				return nil
			})
		},
	}

	cmd.AddCommand(list, replay)
	return cmd
}

func stakeholderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "stakeholder", Short: "Stakeholders and project roles"}

	var fullName, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register stakeholder",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				s, err := e.RegisterStakeholder(ctx, fullName, email)
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	create.Flags().StringVar(&fullName, "name", "", "full name")
	create.Flags().StringVar(&email, "email", "", "email")
	_ = create.MarkFlagRequired("name")
	_ = create.MarkFlagRequired("email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stakeholders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				items, err := e.ListStakeholders(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Active"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.ID, s.FullName, s.Email, s.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	}

	var role string
	assign := &cobra.Command{
		Use:   "assign <stakeholder-id>",
		Short: "Assign a project role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				a, err := e.AssignStakeholder(ctx, projectID, args[0], role, actor)
				if err != nil {
					return err
				}
				return printJSON(a)
			})
		},
	}
	assign.Flags().StringVar(&role, "role", "", "role name from the catalog")
	_ = assign.MarkFlagRequired("role")

	unassign := &cobra.Command{
		Use:   "unassign <stakeholder-id>",
		Short: "Remove a project role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := actorID()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				return e.UnassignStakeholder(ctx, projectID, args[0], role, actor)
			})
		},
	}
	unassign.Flags().StringVar(&role, "role", "", "role name")
	_ = unassign.MarkFlagRequired("role")

	deactivate := &cobra.Command{
		Use:   "deactivate <stakeholder-id>",
		Short: "Deactivate a stakeholder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				return e.DeactivateStakeholder(ctx, args[0])
			})
		},
	}

	cmd.AddCommand(create, list, assign, unassign, deactivate)
	return cmd
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Verify the ledger and lift a consistency halt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e *engine.Engine) error {
				projectID, err := resolveProject(ctx, e)
				if err != nil {
					return err
				}
				if err := e.ResumeProject(ctx, projectID); err != nil {
					return err
				}
				fmt.Println("project resumed")
				return nil
			})
		},
	}
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
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			log := telemetry.NewLogger(viper.GetString("log-level"), false)
			r := repo.Repo{DB: conn}
			e, dispatcher, metrics := app.Wire(&r, cfg, log, false)
			dispatcher.Start(cmd.Context())

			secret := os.Getenv("SLIPWAY_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("SLIPWAY_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:     e,
				Dispatcher: dispatcher,
				Metrics:    metrics,
				BasePath:   basePath,
				Auth: server.AuthConfig{
					JWTSecret:              secret,
					AllowLegacyActorHeader: viper.GetBool("allow-legacy-actor-header"),
					Logger:                 log,
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
			log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving slipway api")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().Bool("allow-legacy-actor-header", false, "accept X-Actor-Id without a token")
	_ = viper.BindPFlag("allow-legacy-actor-header", cmd.Flags().Lookup("allow-legacy-actor-header"))
	return cmd
}
