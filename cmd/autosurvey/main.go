package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"autosurvey-backend/internal/batch"
	"autosurvey-backend/internal/bootstrap"
	"autosurvey-backend/internal/queue"
	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/config"
	"autosurvey-backend/internal/shared/telemetry"
	"autosurvey-backend/internal/workerproc"
)

var (
	// Global state
	cfg      config.Config
	closeLog func() error
	buildApp = bootstrap.BuildCore

	// task flags
	taskURL      string
	personalInfo string

	// run flags
	runTask   string
	attendURL string
	quizURL   string
	csvPath   string
)

var rootCmd = &cobra.Command{
	Use:   "autosurvey",
	Short: "Fill attendance surveys and quizzes for a roster",
	Long: `autosurvey drives a headless browser through attendance and quiz forms
for every participant of a roster, recording each submission so a form is
never filled twice for the same person.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		var err error
		closeLog, err = telemetry.Init(telemetry.Options{Level: cfg.LogLevel, File: cfg.LogFile})
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			_ = closeLog()
		}
	},
}

// taskCmd runs one job the way a queue worker would.
var taskCmd = &cobra.Command{
	Use:   "task [task_type]",
	Short: "Run a single automation task",
	Long: `Runs one task against a form URL.

Task types:
  - batch_attendance: attendance form for the whole roster
  - batch_quiz: quiz for the whole roster
  - personal_attendance: attendance form for --personal-info
  - personal_quiz: quiz for --personal-info

Example:
  autosurvey task personal_quiz --url https://forms.example.com/q \
    --personal-info '{"name":"Ann","email":"ann@example.com","company_name":"Acme"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runTaskCmd,
}

// runCmd is the batch entry point: attendance then quiz.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run attendance and/or quiz batches for the roster",
	RunE:  runBatchCmd,
}

func init() {
	taskCmd.Flags().StringVar(&taskURL, "url", "", "form URL (required)")
	taskCmd.Flags().StringVar(&personalInfo, "personal-info", "", `JSON {"name","email","company_name"} for personal tasks`)

	runCmd.Flags().StringVar(&runTask, "task", "all", "attend, quiz or all")
	runCmd.Flags().StringVar(&attendURL, "attend-url", "", "attendance form URL")
	runCmd.Flags().StringVar(&quizURL, "quiz-url", "", "quiz form URL")
	runCmd.Flags().StringVar(&csvPath, "csv", "", "roster CSV; defaults to the configured roster store")

	rootCmd.AddCommand(taskCmd, runCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func runTaskCmd(cmd *cobra.Command, args []string) error {
	msg, err := buildTaskMessage(args[0], taskURL, personalInfo)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer closeApp(app)

	report, err := app.Processor.Process(ctx, msg)
	printReport(cmd, report)
	if err != nil {
		return fmt.Errorf("%s: %w", msg.Task, err)
	}
	return nil
}

// buildTaskMessage validates command input into a job message.
func buildTaskMessage(rawTask, url, personal string) (queue.Message, error) {
	task, err := queue.ParseTask(rawTask)
	if err != nil {
		return queue.Message{}, err
	}
	msg := queue.Message{
		JobID:      "cli-" + time.Now().UTC().Format("20060102T150405"),
		Task:       task,
		URL:        strings.TrimSpace(url),
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    queue.MessageVersion,
	}
	if task.Personal() {
		if strings.TrimSpace(personal) == "" {
			return queue.Message{}, queue.ErrMissingPersonal
		}
		var p roster.Participant
		if err := json.Unmarshal([]byte(personal), &p); err != nil {
			return queue.Message{}, fmt.Errorf("personal info: %w", err)
		}
		p.Name = strings.TrimSpace(p.Name)
		p.Email = strings.TrimSpace(p.Email)
		p.CompanyName = strings.TrimSpace(p.CompanyName)
		msg.Personal = &p
	}
	if err := msg.Validate(); err != nil {
		return queue.Message{}, err
	}
	return msg, nil
}

func runBatchCmd(cmd *cobra.Command, args []string) error {
	plan, err := planRun(runTask, attendURL, quizURL)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := buildApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer closeApp(app)

	var participants []roster.Participant
	if strings.TrimSpace(csvPath) != "" {
		participants, err = roster.LoadCSV(csvPath)
	} else if app.Processor.Roster != nil {
		participants, err = app.Processor.Roster.Participants(ctx)
	} else {
		err = errors.New("roster not configured")
	}
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	reports, err := runPlan(ctx, app.Processor.Automation, plan, participants)
	for _, r := range reports {
		printReport(cmd, r)
	}
	return err
}

type runStep struct {
	task string
	url  string
}

// planRun turns the run flags into ordered batch steps.
func planRun(task, attend, quiz string) ([]runStep, error) {
	attend, quiz = strings.TrimSpace(attend), strings.TrimSpace(quiz)
	var steps []runStep
	switch strings.ToLower(strings.TrimSpace(task)) {
	case "attend", "attendance":
		steps = []runStep{{batch.TaskAttendance, attend}}
	case "quiz":
		steps = []runStep{{batch.TaskQuiz, quiz}}
	case "", "all":
		steps = []runStep{{batch.TaskAttendance, attend}, {batch.TaskQuiz, quiz}}
	default:
		return nil, fmt.Errorf("unknown task %q (want attend, quiz or all)", task)
	}
	for _, s := range steps {
		if s.url == "" {
			return nil, fmt.Errorf("%s url is required", s.task)
		}
	}
	return steps, nil
}

// runPlan runs the steps in order and stops at the first failed batch.
func runPlan(ctx context.Context, auto workerproc.Automation, steps []runStep, participants []roster.Participant) ([]batch.Report, error) {
	reports := make([]batch.Report, 0, len(steps))
	for _, s := range steps {
		var (
			report batch.Report
			err    error
		)
		if s.task == batch.TaskQuiz {
			report, err = auto.RunQuiz(ctx, s.url, participants)
		} else {
			report, err = auto.RunAttendance(ctx, s.url, participants)
		}
		reports = append(reports, report)
		if err != nil {
			return reports, fmt.Errorf("%s batch: %w", s.task, err)
		}
	}
	return reports, nil
}

func printReport(cmd *cobra.Command, r batch.Report) {
	if r.Task == "" {
		return
	}
	out, err := json.Marshal(r)
	if err != nil {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}

func closeApp(app *bootstrap.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Close(ctx); err != nil {
		telemetry.Warn("cli.close_failed", map[string]any{"error": err})
	}
}
