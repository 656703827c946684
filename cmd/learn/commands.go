package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stepwise/internal/models"
)

var registerCmd = &cobra.Command{
	Use:   "register <email>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		id, err := newClient().Register(cmd.Context(), args[0], password, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run `learn login %s` next.\n", id.DisplayName, id.Email)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <email>",
	Short: "Log in and remember the session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		c := newClient()
		token, err := c.Login(cmd.Context(), args[0], password)
		if err != nil {
			return err
		}
		if err := saveToken(token); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		me, err := c.Me(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", me.DisplayName)
		return nil
	},
}

var newCmd = &cobra.Command{
	Use:   "new <topic>",
	Short: "Generate a new course",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")
		d, err := models.ParseDepth(depth)
		if err != nil {
			return err
		}
		s, _, err := loadedSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Generating course, this can take a while...")
		c, err := s.CreateCourse(cmd.Context(), strings.Join(args, " "), d)
		if err != nil {
			return err
		}
		printCourse(cmd, c)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your courses, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadedSession(cmd.Context())
		if err != nil {
			return err
		}
		courses := s.State().State().Courses
		if len(courses) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No courses yet. Create one with `learn new <topic>`.")
			return nil
		}
		for _, c := range courses {
			p := c.Progress()
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-40s %3d/%-3d %s\n", c.ID, c.Topic, p.Completed, p.Total, humanize.Time(c.CreatedAt))
		}
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <course-id>",
	Short: "Show a course outline and progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadedSession(cmd.Context())
		if err != nil {
			return err
		}
		c, ok := s.Select(args[0])
		if !ok {
			return fmt.Errorf("course %s not found", args[0])
		}
		printCourse(cmd, c)
		return nil
	},
}

var stepCmd = &cobra.Command{
	Use:   "step <course-id> <step>",
	Short: "Print the content of a step, generating it on first view",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := stepArg(args[1])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		s, _, err := loadedSession(cmd.Context())
		if err != nil {
			return err
		}
		content, err := s.EnsureContent(cmd.Context(), args[0], n, force)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), content)
		return nil
	},
}

var doneCmd = &cobra.Command{
	Use:   "done <course-id> <step>",
	Short: "Toggle whether a step is completed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := stepArg(args[1])
		if err != nil {
			return err
		}
		s, _, err := loadedSession(cmd.Context())
		if err != nil {
			return err
		}
		completed, err := s.ToggleCompleted(cmd.Context(), args[0], n)
		if err != nil {
			return err
		}
		c, _ := s.State().State().Find(args[0])
		p := c.Progress()
		state := "not completed"
		if completed {
			state = "completed"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Step %d marked %s (%d/%d).\n", n, state, p.Completed, p.Total)
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <course-id> <step> <question>",
	Short: "Ask a question about a step",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := stepArg(args[1])
		if err != nil {
			return err
		}
		s, _, err := loadedSession(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.Ask(cmd.Context(), args[0], n, strings.Join(args[2:], " ")))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <course-id>",
	Short: "Delete a course",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, _, err := loadedSession(cmd.Context())
		if err != nil {
			return err
		}
		if err := s.DeleteCourse(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Course deleted.")
		return nil
	},
}

var audioCmd = &cobra.Command{
	Use:   "audio <course-id> <step>",
	Short: "Download the narration of a step as MP3",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := stepArg(args[1])
		if err != nil {
			return err
		}
		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			out = fmt.Sprintf("step-%02d.mp3", n)
		}
		audio, err := newClient().StepAudio(cmd.Context(), args[0], n)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, audio, 0o644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s).\n", out, humanize.Bytes(uint64(len(audio))))
		return nil
	},
}

func init() {
	registerCmd.Flags().String("password", "", "account password")
	registerCmd.Flags().String("name", "", "display name")
	loginCmd.Flags().String("password", "", "account password")
	newCmd.Flags().Int("depth", int(models.DepthOverview), "number of steps: 20, 50 or 100")
	stepCmd.Flags().Bool("force", false, "regenerate even if content exists")
	audioCmd.Flags().String("out", "", "output file")
}

func stepArg(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid step number %q", s)
	}
	return n, nil
}

func printCourse(cmd *cobra.Command, c models.Course) {
	p := c.Progress()
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s (%d steps, %.0f%% complete)\n", c.Topic, p.Total, p.Percent)
	fmt.Fprintf(w, "id: %s\n\n", c.ID)
	for _, s := range c.Steps {
		mark := "[ ]"
		if s.Completed {
			mark = "[x]"
		}
		suffix := ""
		if s.HasContent() {
			suffix = " *"
		}
		fmt.Fprintf(w, "%s %3d. %s%s\n", mark, s.StepNumber, s.Title, suffix)
	}
}
