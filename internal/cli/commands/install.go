package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/declwidgets/declwidgets/internal/cli/ui"
)

var (
	installVerbose bool
	listJSON       bool
	jobsLimit      int
)

// NewInstallCommand creates the install command
func NewInstallCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <package>...",
		Short: "Install front-end packages with bower",
		Long: `Install one or more bower packages into the widgets directory. Packages
install one at a time, in order, and every attempt is recorded in the
install history.

Examples:
  declwidgets install PolymerElements/paper-slider
  declwidgets install paper-input#1.1.0 paper-button`,
		Args: cobra.MinimumNArgs(1),
		RunE: runInstall,
	}

	cmd.Flags().BoolVarP(&installVerbose, "verbose", "v", false, "Log queue activity")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if installVerbose {
		if logger, err = cfg.NewLogger(); err != nil {
			return err
		}
		defer logger.Sync()
	}

	bower, err := newBower(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	history, err := openHistory(ctx, cfg)
	if err != nil {
		ui.WriteError(cmd.ErrOrStderr(), ui.ErrorOptions{
			Context: "history unavailable",
			Problem: err.Error(),
			Hints:   []string{"Installs will run but not be recorded"},
			NoColor: noColor,
		})
		history = nil
	} else {
		defer history.Close()
	}

	queue := newQueue(bower, history, logger)
	defer queue.Close()

	out := cmd.OutOrStdout()
	for _, pkg := range args {
		err := ui.WithSpinner(out, "Installing "+pkg, noColor, func() error {
			ticket, err := queue.Submit(ctx, pkg)
			if err != nil {
				return err
			}
			return ticket.Wait(ctx)
		})
		if err != nil {
			fmt.Fprint(cmd.ErrOrStderr(), ui.InstallError(pkg, err, noColor))
			return fmt.Errorf("failed to install %s", pkg)
		}
	}
	return nil
}

// NewListCommand creates the list command
func NewListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed front-end packages",
		RunE:  runList,
	}

	cmd.Flags().BoolVar(&listJSON, "json", false, "Print the listing as JSON")

	return cmd
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	bower, err := newBower(cfg)
	if err != nil {
		return err
	}

	listing, err := bower.List(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list bower packages: %w", err)
	}

	out := cmd.OutOrStdout()
	if listJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(listing)
	}

	names := make([]string, 0, len(listing))
	for name := range listing {
		names = append(names, name)
	}
	sort.Strings(names)

	table := ui.NewTable(out, noColor, "PACKAGE", "PATH")
	for _, name := range names {
		table.AddRow(name, describe(listing[name]))
	}
	table.Render()
	return nil
}

func describe(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []any:
		parts := make([]string, len(val))
		for i, p := range val {
			parts[i] = fmt.Sprint(p)
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(val)
	}
}

// NewJobsCommand creates the jobs command
func NewJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Show recent package installs",
		RunE:  runJobs,
	}

	cmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "Number of jobs to show")

	return cmd
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	history, err := openHistory(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer history.Close()

	jobs, err := history.Recent(cmd.Context(), jobsLimit)
	if err != nil {
		return err
	}

	table := ui.NewTable(cmd.OutOrStdout(), noColor, "ID", "PACKAGE", "STATUS", "CREATED", "DURATION", "ERROR")
	for _, job := range jobs {
		errMsg := ""
		if job.Error != nil {
			errMsg = *job.Error
		}
		table.AddRow(
			job.ID.String()[:8],
			job.Package,
			string(job.Status),
			job.CreatedAt.Local().Format(time.DateTime),
			job.Duration().Round(time.Millisecond).String(),
			errMsg,
		)
	}
	table.Render()
	return nil
}
