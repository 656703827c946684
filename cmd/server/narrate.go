package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stepwise/internal/speech"
)

var narrateCmd = &cobra.Command{
	Use:   "narrate <user-id> <course-id>",
	Short: "Write an MP3 file for every generated step of a course",
	Args:  cobra.ExactArgs(2),
	RunE:  runNarrate,
}

func init() {
	narrateCmd.Flags().String("out", "media", "output directory")
	narrateCmd.Flags().Int("workers", 10, "concurrent synthesis requests")
	narrateCmd.Flags().Duration("pause", 700*time.Millisecond, "pause per worker between requests")
}

func runNarrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	out, _ := cmd.Flags().GetString("out")
	workers, _ := cmd.Flags().GetInt("workers")
	pause, _ := cmd.Flags().GetDuration("pause")

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	c, err := st.Get(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("load course %s: %w", args[1], err)
	}

	narrator, err := speech.NewGoogle(ctx)
	if err != nil {
		return err
	}
	defer narrator.Close()

	written, err := speech.ExportCourse(ctx, narrator, c, out, speech.ExportOptions{Workers: workers, Pause: pause})
	for _, p := range written {
		log.Info("narrated", "file", p)
	}
	log.Info("narration finished", "course_id", c.ID, "files", len(written))
	return err
}
