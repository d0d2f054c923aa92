package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"calsync/internal/app"
	"calsync/internal/config"
	"calsync/internal/export"
	"calsync/internal/logging"
	"calsync/internal/models"
	"calsync/internal/service"
	"calsync/internal/timefmt"
)

type globalOptions struct {
	configPath string
}

type runOptions struct {
	start    string
	end      string
	file     string
	dryRun   bool
	xlsxPath string
}

func (o *runOptions) addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.start, "start", "", "First day, YYYY-MM-DD (default: first day of the current month)")
	cmd.Flags().StringVar(&o.end, "end", "", "Last day, inclusive (default: --start, or end of the current month)")
}

func (o *runOptions) addSubmitFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Print the entries without submitting them")
	cmd.Flags().StringVar(&o.xlsxPath, "xlsx", "", "With --dry-run, also write the entries to this .xlsx file")
}

func eventsCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List calendar meetings in a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, true, func(ctx context.Context, a *app.App) error {
				rng, err := o.parseRange(a.Service.Location(), time.Now())
				if err != nil {
					return err
				}
				occurrences, err := a.Service.Events(ctx, rng)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), occurrences)
			})
		},
	}
	o.addRangeFlags(cmd)
	return cmd
}

func meetingsCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "meetings",
		Short: "Create one time entry per calendar meeting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, o.dryRun, func(ctx context.Context, a *app.App) error {
				rng, err := o.parseRange(a.Service.Location(), time.Now())
				if err != nil {
					return err
				}
				res, err := a.Service.CreateMeetings(ctx, rng, service.Options{DryRun: o.dryRun})
				return o.report(cmd.OutOrStdout(), a, res, err)
			})
		},
	}
	o.addRangeFlags(cmd)
	o.addSubmitFlags(cmd)
	return cmd
}

func productiveCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "productive",
		Short: "Fill workday gaps around meetings with productive work",
		Long: `Reads a YAML list of requests from --file:

  - description: Feature work
    start: "2024-03-04"
    end: "2024-03-08"
    task_name: Development`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var inputs []models.ProductiveInput
			if err := readYAML(o.file, &inputs); err != nil {
				return err
			}
			return withApp(cmd, g, o.dryRun, func(ctx context.Context, a *app.App) error {
				requests, err := models.ResolveProductive(inputs, a.Service.Location())
				if err != nil {
					return err
				}
				res, err := a.Service.CreateProductive(ctx, requests, service.Options{DryRun: o.dryRun})
				return o.report(cmd.OutOrStdout(), a, res, err)
			})
		},
	}
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "YAML file with productive requests")
	_ = cmd.MarkFlagRequired("file")
	o.addSubmitFlags(cmd)
	return cmd
}

func recurringCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "recurring",
		Short: "Create entries for meetings described by recurring templates",
		Long: `Reads a YAML list of templates from --file:

  - description: Sprint planning
    start_date: "2024-03-04"
    end_date: "2024-06-28"
    days_of_week: [monday]
    start_time: "10:00"
    end_time: "11:00"
    interval: 14`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var inputs []models.RecurringInput
			if err := readYAML(o.file, &inputs); err != nil {
				return err
			}
			return withApp(cmd, g, o.dryRun, func(ctx context.Context, a *app.App) error {
				templates, err := models.ResolveRecurring(inputs, a.Service.Location())
				if err != nil {
					return err
				}
				res, err := a.Service.CreateRecurring(ctx, templates, service.Options{DryRun: o.dryRun})
				return o.report(cmd.OutOrStdout(), a, res, err)
			})
		},
	}
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "YAML file with recurring templates")
	_ = cmd.MarkFlagRequired("file")
	o.addSubmitFlags(cmd)
	return cmd
}

func ticketsCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}
	var listOnly bool
	cmd := &cobra.Command{
		Use:   "tickets",
		Short: "Book meetings plus the in-progress ticket of each workday",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, o.dryRun || listOnly, func(ctx context.Context, a *app.App) error {
				rng, err := o.parseRange(a.Service.Location(), time.Now())
				if err != nil {
					return err
				}
				if listOnly {
					days, err := a.Service.Tickets(ctx, rng)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), days)
				}

				res, err := a.Service.CreateFromTickets(ctx, rng, service.Options{DryRun: o.dryRun})
				if res != nil {
					if perr := printJSON(cmd.OutOrStdout(), res); perr != nil {
						return perr
					}
				}
				if err != nil {
					return err
				}
				if o.dryRun && o.xlsxPath != "" {
					drafts := append(append([]models.TimeEntryDraft{}, res.Meetings.Drafts...), res.Productive.Drafts...)
					return writeXLSX(o.xlsxPath, drafts, a.Service.Location())
				}
				return nil
			})
		},
	}
	o.addRangeFlags(cmd)
	o.addSubmitFlags(cmd)
	cmd.Flags().BoolVar(&listOnly, "list", false, "Only list the in-progress tickets")
	return cmd
}

// withApp loads config, wires the application and runs fn with a context
// canceled on SIGINT/SIGTERM. Logs go to stderr so stdout stays JSON.
func withApp(cmd *cobra.Command, g *globalOptions, readOnly bool, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if out := strings.ToLower(cfg.Logging.Output); out == "" || out == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	logger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}
	l := logger.With().Str("component", "cli").Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{AllowMissingLedger: readOnly, SkipJournal: readOnly}, &l)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}

func (o *runOptions) report(w io.Writer, a *app.App, res *service.Result, err error) error {
	if res != nil {
		if perr := printJSON(w, res); perr != nil {
			return perr
		}
	}
	if err != nil {
		return err
	}
	if o.dryRun && o.xlsxPath != "" {
		return writeXLSX(o.xlsxPath, res.Drafts, a.Service.Location())
	}
	return nil
}

func (o *runOptions) parseRange(loc *time.Location, now time.Time) (models.Range, error) {
	if o.start == "" && o.end == "" {
		return models.CurrentMonth(now.In(loc)), nil
	}
	if o.start == "" {
		return models.Range{}, fmt.Errorf("%w: --end given without --start", service.ErrInvalidRange)
	}
	start, err := timefmt.ParseDate(o.start, loc)
	if err != nil {
		return models.Range{}, fmt.Errorf("--start: %w", err)
	}
	end := start
	if o.end != "" {
		if end, err = timefmt.ParseDate(o.end, loc); err != nil {
			return models.Range{}, fmt.Errorf("--end: %w", err)
		}
	}
	return models.Range{Start: start, End: end}, nil
}

func readYAML(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeXLSX(path string, drafts []models.TimeEntryDraft, loc *time.Location) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := export.WriteDrafts(f, drafts, loc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

