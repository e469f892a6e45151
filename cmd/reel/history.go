package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/justchokingaround/reel/internal/catalog"
	"github.com/justchokingaround/reel/internal/checkpoint"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show watch positions of the active user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userID == "" {
			fmt.Println("Guests have no watch history. Pass --user or set user.id in the config.")
			return nil
		}

		ctx := cmd.Context()
		policy, err := checkpoint.ParseCompletionPolicy(cfg.Checkpoint.CompletionPolicy)
		if err != nil {
			return err
		}
		checkpoints, err := checkpoint.NewGormStore(db, policy).FetchByUser(ctx, userID)
		if err != nil {
			return err
		}
		if len(checkpoints) == 0 {
			fmt.Println("No watch history yet")
			return nil
		}

		repo := catalog.NewRepository(db)
		titles := make(map[string]string)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TITLE\tEPISODE\tPOSITION\tPROGRESS\tWATCHED")
		for _, cp := range checkpoints {
			title, ok := titles[cp.Key.ContentID]
			if !ok {
				title = cp.Key.ContentID
				if c, err := repo.GetContentByID(ctx, cp.Key.ContentID); err == nil {
					title = c.Title
				}
				titles[cp.Key.ContentID] = title
			}

			episode := "-"
			if cp.Key.EpisodeID != "" {
				episode = cp.Key.EpisodeID
			}
			progress := fmt.Sprintf("%.0f%%", cp.Progress()*100)
			if cp.Completed {
				progress = "✓ completed"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				title, episode, formatPosition(cp.LastPosition), progress, humanize.Time(cp.WatchedAt))
		}
		return w.Flush()
	},
}

func formatPosition(seconds float64) string {
	s := int(seconds)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, (s/60)%60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
