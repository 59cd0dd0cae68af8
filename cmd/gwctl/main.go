// Command gwctl is the gateway's operator CLI: start the server in the
// foreground, inspect account/token health, and run environment
// diagnostics. Grounded on the teacher's cmd/cli cobra tree, with the
// REPL/agent subcommands replaced by gateway-operator subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brgw/gateway/internal/app"
	"github.com/brgw/gateway/internal/auth"
	"github.com/brgw/gateway/internal/config"
	"github.com/brgw/gateway/internal/credential"
	"github.com/brgw/gateway/internal/logging"
)

const (
	cliVersion = "0.2.0"
	cliName    = "gwctl"
)

var (
	colorGreen = lipgloss.Color("#5FD75F")
	colorRed   = lipgloss.Color("#FF5F5F")
	colorGray  = lipgloss.Color("#808080")
	colorCyan  = lipgloss.Color("#5FD7D7")

	okStyle   = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(colorGray)
	headStyle = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   cliName,
		Short: "gwctl — gateway operator CLI",
		Long:  "gwctl controls and inspects the bilingual upstream gateway: start the server, check account health, and diagnose the environment.",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "start the gateway server in the foreground",
		RunE:  runServe,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "accounts",
		Short: "show credential/account status",
		RunE:  runAccounts,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "doctor",
		Short: "diagnose configuration and credential health",
		RunE:  runDoctor,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// ─── serve ───

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logging.New(logging.Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("starting gateway", zap.String("version", cliVersion))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := a.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
		return err
	}

	log.Info("application stopped successfully")
	return nil
}

// ─── accounts ───

func runAccounts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(logging.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	if len(cfg.Auth.RefreshTokens) > 1 {
		fmt.Println(headStyle.Render(fmt.Sprintf("mode: multi-account (%d slots)", len(cfg.Auth.RefreshTokens))))
		fmt.Println()
		m := auth.NewMultiTokenManager(cfg.Auth.RefreshTokens, cfg.Auth.ClientID, cfg.Auth.ClientSecret, noopRefresher{}, cfg.Timing.RefreshThreshold, cfg.Timing.BackgroundRefreshInterval, log)
		for i, st := range m.Status() {
			marker := " "
			if st.Active {
				marker = "*"
			}
			statusLabel := renderStatus(st.IsFailed, st.FailureCount)
			fmt.Printf("%s slot %d: token=%v expires=%s last_refresh=%s status=%s\n",
				marker, i, st.HasAccessToken, dimStyle.Render(formatTime(st.ExpiresAt)), dimStyle.Render(formatTime(st.LastRefresh)), statusLabel)
		}
		return nil
	}

	fmt.Println(headStyle.Render("mode: single-account"))
	store, _, err := buildAccountsStore(cfg)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}
	single := auth.NewSingleTokenManager(store, noopRefresher{}, cfg.Store.Backend == "sql", cfg.Timing.RefreshThreshold, cfg.Timing.BackgroundRefreshInterval, log)
	st := single.Status()
	statusLabel := renderStatus(st.IsFailed, st.FailureCount)
	fmt.Printf("token=%v expires=%s last_refresh=%s profile_arn=%s status=%s\n",
		st.HasAccessToken, dimStyle.Render(formatTime(st.ExpiresAt)), dimStyle.Render(formatTime(st.LastRefresh)), st.ProfileArn, statusLabel)
	return nil
}

func renderStatus(failed bool, failureCount int) string {
	if failed {
		return failStyle.Render(fmt.Sprintf("failed (x%d)", failureCount))
	}
	return okStyle.Render("ok")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

// noopRefresher satisfies auth.Refresher for read-only inspection; accounts
// only reads persisted status, it never triggers a refresh.
type noopRefresher struct{}

func (noopRefresher) Refresh(ctx context.Context, refreshToken, clientID, clientSecret string) (auth.RefreshResult, error) {
	return auth.RefreshResult{}, fmt.Errorf("refresh not available from gwctl accounts")
}

func buildAccountsStore(cfg *config.Config) (credential.Store, bool, error) {
	log, _ := logging.New(logging.Config{Level: "error", Format: "console", OutputPath: "stdout"})
	switch cfg.Store.Backend {
	case "sql":
		db, err := credential.OpenDB(cfg.Store.DBType, cfg.Store.DSN)
		if err != nil {
			return nil, false, err
		}
		return credential.NewSQLStore(db, log), true, nil
	default:
		path := cfg.Store.Path
		if path == "" {
			path = "credentials.json"
		}
		return credential.NewJSONStore(path, log), false, nil
	}
}

// ─── doctor ───

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println(headStyle.Render(fmt.Sprintf("gwctl doctor v%s", cliVersion)))
	fmt.Println()

	cfg, cfgErr := config.Load()

	checks := []struct {
		name  string
		check func() (string, bool)
	}{
		{"configuration", func() (string, bool) {
			if cfgErr != nil {
				return cfgErr.Error(), false
			}
			return fmt.Sprintf("server on %s:%d", cfg.Server.Host, cfg.Server.Port), true
		}},
		{"proxy api key", func() (string, bool) {
			if cfgErr != nil {
				return "config not loaded", false
			}
			if cfg.Auth.ProxyAPIKey == "" {
				return "not set", false
			}
			return "set", true
		}},
		{"credential store", func() (string, bool) {
			if cfgErr != nil {
				return "config not loaded", false
			}
			if cfg.Store.Backend == "sql" {
				if _, err := credential.OpenDB(cfg.Store.DBType, cfg.Store.DSN); err != nil {
					return err.Error(), false
				}
				return fmt.Sprintf("sql (%s)", cfg.Store.DBType), true
			}
			path := cfg.Store.Path
			if path == "" {
				path = "credentials.json"
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Sprintf("%s not found (will be created on first refresh)", path), true
			}
			return path, true
		}},
		{"upstream region", func() (string, bool) {
			if cfgErr != nil {
				return "config not loaded", false
			}
			if cfg.Auth.Region == "" {
				return "not set", false
			}
			return cfg.Auth.Region, true
		}},
	}

	allOK := true
	for _, c := range checks {
		val, ok := c.check()
		icon := okStyle.Render("✓")
		if !ok {
			icon = failStyle.Render("✗")
			allOK = false
		}
		fmt.Printf("  %s %s: %s\n", icon, c.name, dimStyle.Render(val))
	}

	fmt.Println()
	if allOK {
		fmt.Println(okStyle.Render("all checks passed"))
	} else {
		fmt.Println(failStyle.Render("problems found, see above"))
	}
	return nil
}
