package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"jokeline/internal/app"
	"jokeline/internal/config"
	"jokeline/internal/task/scheduler"
	logx "jokeline/pkg/logx"
)

func NewCheckConfigCommand(rootOpts *RootOptions) *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the config and print the effective schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			if err := app.ValidateConfig(cfg); err != nil {
				return err
			}
			return writeSchedule(cmd.OutOrStdout(), rootOpts.Format, cfg, time.Now(), runs)
		},
	}
	cmd.Flags().IntVarP(&runs, "runs", "n", 5, "number of upcoming runs to print")
	return cmd
}

type scheduleView struct {
	Enabled  bool     `json:"enabled"`
	Spec     string   `json:"spec"`
	Timezone string   `json:"timezone"`
	Timeout  string   `json:"timeout"`
	Next     []string `json:"next"`
}

func writeSchedule(w io.Writer, format string, cfg *config.Config, from time.Time, n int) error {
	spec, timeout, err := app.ScheduleSpec(cfg)
	if err != nil {
		return err
	}
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Schedule.Timezone}, logx.Nop())
	next, err := sched.NextRuns(spec, from, n)
	if err != nil {
		return err
	}

	view := scheduleView{
		Enabled:  cfg.Schedule.Enabled,
		Spec:     spec,
		Timezone: sched.Location().String(),
		Timeout:  timeout.String(),
	}
	for _, t := range next {
		view.Next = append(view.Next, t.Format(time.RFC3339))
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}
	fmt.Fprintln(w, "config ok")
	fmt.Fprintf(w, "schedule %q in %s (enabled=%t, timeout %s)\n", view.Spec, view.Timezone, view.Enabled, view.Timeout)
	for _, t := range view.Next {
		fmt.Fprintf(w, "  next %s\n", t)
	}
	return nil
}
