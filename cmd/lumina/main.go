package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/lumina/internal/auth"
	"github.com/comigor/lumina/internal/config"
	"github.com/comigor/lumina/internal/llm"
	"github.com/comigor/lumina/internal/logger"
	"github.com/comigor/lumina/internal/remote"
	"github.com/comigor/lumina/internal/session"
	"github.com/comigor/lumina/internal/transcript"
)

var (
	configPath string
	logLevel   string

	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lumina",
	Short: "Chat with the Lumina assistant from the terminal",
	Long: `Lumina is a terminal client for the Lumina assistant.

Conversations are kept for the session, synced from the server when you
are signed in, and answered offline when the assistant cannot be reached.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		load := config.Load
		if configPath != "" {
			load = func() (*config.Config, error) { return config.LoadFile(configPath) }
		}
		loaded, err := load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
		level := cfg.Log.Level
		if logLevel != "" {
			level = logLevel
		}
		logger.SetLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./config.yaml or $CONFIG_PATH)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	authCmd.AddCommand(authTokenCmd, authLogoutCmd, authStatusCmd)
	profileCmd.Flags().StringVar(&profileName, "name", "", "Display name")
	profileCmd.Flags().StringVar(&profileEmail, "email", "", "Email address")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is one wired client session.
type app struct {
	creds   *auth.Store
	gate    *auth.Gate
	store   *transcript.Store
	ctrl    *session.Controller
	history *session.HistorySync // nil when the backend keeps no history
	out     io.Writer
}

func newApp(cfg *config.Config, out io.Writer) *app {
	a := &app{
		creds: auth.Open(cfg.Auth.DBPath),
		store: transcript.NewStore(),
		out:   out,
	}
	a.gate = auth.NewGate(a.creds, func() {
		fmt.Fprintln(a.out, "Your session has expired. Sign in again with `lumina auth token`.")
	})

	var backend session.Remote
	switch cfg.Backend {
	case config.BackendOpenAI:
		backend = llm.NewBackend(llm.NewClient(cfg.LLM), cfg.LLM, cfg.Client.AskTimeout)
	default:
		client := remote.NewClient(cfg.Server, cfg.Client, a.gate)
		backend = client
		a.history = session.NewHistorySync(client, a.gate)
	}

	a.ctrl = session.New(a.store, backend,
		session.WithTimeout(cfg.Client.AskTimeout),
		session.WithDeleteTimeout(cfg.Client.DeleteTimeout),
	)
	return a
}

// Close waits for background deletes and releases the credential store.
func (a *app) Close() error {
	a.ctrl.Wait()
	return a.creds.Close()
}
