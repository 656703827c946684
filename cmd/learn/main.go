// Command learn is a terminal client for the course server.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stepwise/internal/apperr"
	"stepwise/internal/client"
)

var rootCmd = &cobra.Command{
	Use:           "learn",
	Short:         "Learn any topic step by step from the terminal",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "server URL (STEPWISE_SERVER)")
	rootCmd.PersistentFlags().String("token", "", "session token (STEPWISE_TOKEN), defaults to the saved login")
	if err := bindFlags(rootCmd, "server", "token"); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("STEPWISE")
	viper.AutomaticEnv()

	rootCmd.AddCommand(registerCmd, loginCmd, newCmd, listCmd, showCmd, stepCmd, doneCmd, askCmd, deleteCmd, audioCmd)
}

// bindFlags binds persistent flags of cmd to viper keys of the same name.
func bindFlags(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		f := cmd.PersistentFlags().Lookup(name)
		if f == nil {
			return fmt.Errorf("bind flag %q: no such flag", name)
		}
		if err := viper.BindPFlag(name, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", userMessage(err))
		os.Exit(1)
	}
}

func userMessage(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.As(err, new(*apperr.Error)):
		return apperr.MessageOf(err)
	case errors.As(err, &apiErr):
		return apiErr.Message
	}
	return err.Error()
}

func tokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "stepwise", "token"), nil
}

func saveToken(token string) error {
	p, err := tokenPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(token), 0o600)
}

func loadToken() string {
	if t := viper.GetString("token"); t != "" {
		return t
	}
	p, err := tokenPath()
	if err != nil {
		return ""
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func newClient() *client.Client {
	return client.New(viper.GetString("server"), loadToken())
}

// loadedSession returns a session with the user's courses loaded.
func loadedSession(ctx context.Context) (*client.Session, *client.Client, error) {
	c := newClient()
	if c.Token == "" {
		return nil, nil, errors.New("not logged in, run `learn login` first")
	}
	s := client.NewSession(c)
	if err := s.Load(ctx); err != nil {
		return nil, nil, err
	}
	return s, c, nil
}
