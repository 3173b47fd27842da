package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"jokeline/internal/app"
	"jokeline/internal/broadcast"
)

func NewBroadcastCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast",
		Short: "Run one broadcast cycle now and print the report",
		Long: `Run one broadcast cycle immediately: pick an unsent joke, record it, and
send it to every current subscriber. The schedule is not consulted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := app.New(ctx, rootOpts.ConfigPath, app.WithSystemdNotify(false))
			if err != nil {
				return err
			}
			defer a.Stop(ctx, app.StopAppStop)

			rep, err := a.RunOnce(ctx)
			if err != nil {
				return err
			}
			return writeReport(cmd.OutOrStdout(), rootOpts.Format, rep)
		},
	}
}

type outcomeView struct {
	Address   string `json:"address"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

type reportView struct {
	CycleID   string        `json:"cycle_id"`
	ContentID string        `json:"content_id"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Took      string        `json:"took"`
	Outcomes  []outcomeView `json:"outcomes"`
}

func writeReport(w io.Writer, format string, rep broadcast.Report) error {
	view := reportView{
		CycleID:   rep.CycleID,
		ContentID: rep.ContentID,
		Sent:      rep.Sent,
		Failed:    rep.Failed,
		Took:      rep.Took.Round(time.Millisecond).String(),
		Outcomes:  make([]outcomeView, 0, len(rep.Outcomes)),
	}
	for _, o := range rep.Outcomes {
		ov := outcomeView{Address: o.Address, Status: string(o.Status), MessageID: o.MessageID}
		if o.Err != nil {
			ov.Error = o.Err.Error()
		}
		view.Outcomes = append(view.Outcomes, ov)
	}

	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	fmt.Fprintf(w, "cycle %s content %s: sent %d, failed %d (%s)\n",
		view.CycleID, view.ContentID, view.Sent, view.Failed, view.Took)
	for _, o := range view.Outcomes {
		if o.Error != "" {
			fmt.Fprintf(w, "  %s %s: %s\n", o.Status, o.Address, o.Error)
		}
	}
	return nil
}
