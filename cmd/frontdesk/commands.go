package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"frontdesk/cmd/internal/app"
	"frontdesk/cmd/internal/auth/session"
	"frontdesk/cmd/internal/tui"
)

// globalFlags override the environment configuration.
type globalFlags struct {
	apiURL    string
	wsURL     string
	logLevel  string
	logFormat string
	backend   string
}

func (f globalFlags) apply(cfg *app.Config) {
	if f.apiURL != "" {
		cfg.Session.APIBaseURL = strings.TrimRight(f.apiURL, "/")
	}
	if f.wsURL != "" {
		cfg.Realtime.URL = f.wsURL
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFormat != "" {
		cfg.LogFormat = f.logFormat
	}
	if f.backend != "" {
		cfg.CredentialBackend = strings.ToLower(f.backend)
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "frontdesk",
		Short:         "Front-desk agent: staff session and live hotel notifications",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.apiURL, "api", "", "hotel backend base URL (FRONTDESK_API_BASE_URL)")
	pf.StringVar(&flags.wsURL, "ws", "", "push server URL (FRONTDESK_WS_URL)")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error (FRONTDESK_LOG_LEVEL)")
	pf.StringVar(&flags.logFormat, "log-format", "", "json or pretty (FRONTDESK_LOG_FORMAT)")
	pf.StringVar(&flags.backend, "backend", "", "credential backend: file, memory, redis or postgres")

	root.AddCommand(
		newRunCmd(&flags),
		newWatchCmd(&flags),
		newLoginCmd(&flags),
		newLogoutCmd(&flags),
		newWhoamiCmd(&flags),
		newVersionCmd(),
	)
	return root
}

func loadConfig(flags *globalFlags) (app.Config, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return app.Config{}, err
	}
	flags.apply(&cfg)
	return cfg, nil
}

// withApp builds the App, hands it to fn and releases it. The context is cancelled on
// SIGINT/SIGTERM.
func withApp(cmd *cobra.Command, flags *globalFlags, logOut io.Writer, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, app.NewLogger(logOut, cfg.LogLevel, cfg.LogFormat))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent headless: restore the session, stay connected and serve the admin API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, os.Stderr, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx, nil)
			})
		},
	}
}

func newWatchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Open the live notification screen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			// The screen owns the terminal; logs go to a file or nowhere.
			var logOut io.Writer = io.Discard
			if cfg.LogFile != "" {
				f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
				if err != nil {
					return fmt.Errorf("log file: %w", err)
				}
				defer f.Close()
				logOut = f
			}
			return withApp(cmd, flags, logOut, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx, func(ctx context.Context) error {
					return tui.Run(ctx, a.Sink, a.Status)
				})
			})
		},
	}
}

func newLoginCmd(flags *globalFlags) *cobra.Command {
	var (
		username      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			if username == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Username: ")
				line, err := readLine(in)
				if err != nil {
					return err
				}
				username = line
			}
			password, err := readPassword(cmd, in, passwordStdin)
			if err != nil {
				return err
			}

			return withApp(cmd, flags, os.Stderr, func(ctx context.Context, a *app.App) error {
				p, err := a.Session.Login(ctx, username, password)
				if err != nil {
					var le *session.LoginError
					if errors.As(err, &le) {
						return errors.New(le.UserMessage())
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", displayName(p.FullName, p.Username, username), p.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "staff username")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and clear stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, os.Stderr, func(ctx context.Context, a *app.App) error {
				if err := a.Session.Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Restore the stored session and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, os.Stderr, func(ctx context.Context, a *app.App) error {
				snap, err := a.Session.RestoreSession(ctx)
				if err != nil && !errors.Is(err, session.ErrNotAuthenticated) {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(snap)
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "frontdesk %s (%s)\n", version, commit)
		},
	}
}

func readPassword(cmd *cobra.Command, in *bufio.Reader, fromStdin bool) (string, error) {
	if fromStdin {
		return readLine(in)
	}
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(f.Fd()) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		b, err := term.ReadPassword(f.Fd())
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return "", errors.New("no terminal: use --password-stdin")
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func displayName(candidates ...string) string {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return "unknown"
}
