package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lu-zhengda/mailsweep/internal/config"
	"github.com/lu-zhengda/mailsweep/internal/provider/gmail"
	"github.com/lu-zhengda/mailsweep/internal/store"
	"github.com/lu-zhengda/mailsweep/internal/store/sqlite"
)

var (
	// version is set via ldflags at build time.
	version = "dev"
	cfgFile string

	// jsonFlag enables JSON output for all commands.
	jsonFlag bool

	verboseFlag bool
	accountFlag string
)

func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mailsweep",
		Short: "Email cleanup engine",
		Long: "Classify Gmail messages with sender lists, filter rules and a junk score,\n" +
			"then preview or apply deletes, archives, labels and unsubscribes.",
		Version:       version,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if shell, _ := cmd.Flags().GetString("generate-completion"); shell != "" {
				switch shell {
				case "bash":
					return cmd.Root().GenBashCompletion(os.Stdout)
				case "zsh":
					return cmd.Root().GenZshCompletion(os.Stdout)
				case "fish":
					return cmd.Root().GenFishCompletion(os.Stdout, true)
				default:
					return fmt.Errorf("unsupported shell: %s (use bash, zsh, or fish)", shell)
				}
			}
			return cmd.Help()
		},
	}
	root.SetVersionTemplate(fmt.Sprintf("mailsweep %s\n", version))
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().String("generate-completion", "", "Generate shell completion (bash, zsh, fish)")
	root.Flags().MarkHidden("generate-completion")
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&accountFlag, "account", "", "account ID to use (defaults to config default or first account)")

	root.AddCommand(newAccountCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newListCmd(listAllow))
	root.AddCommand(newListCmd(listDeny))
	root.AddCommand(newRulesCmd())
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newCleanCmd())
	root.AddCommand(newPurgeUnreadCmd())
	root.AddCommand(newScoreCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newLogCmd())
	root.AddCommand(newSettingsCmd())
	root.AddCommand(newServeCmd())
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger returns the stderr logger at warn level.
func newLogger() *slog.Logger {
	return newLoggerAt(slog.LevelWarn)
}

// newLoggerAt returns a stderr logger at level; --verbose lowers it to debug.
func newLoggerAt(level slog.Level) *slog.Logger {
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openDB creates the data directory and opens the SQLite database.
func openDB() (*sqlite.DB, error) {
	dataDir := config.DataDir()
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "mailsweep.db")
	db, err := sqlite.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// configPath returns --config or the default config location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

// loadConfig loads the application configuration from the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// resolveAccountID determines which account to use: the --account flag, the
// config default, or the first account in the database.
func resolveAccountID(ctx context.Context, db *sqlite.DB, cfg *config.Config) (string, error) {
	if accountFlag != "" {
		return accountFlag, nil
	}
	if cfg.Accounts.Default != "" {
		return cfg.Accounts.Default, nil
	}

	accounts, err := db.ListAccounts(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list accounts: %w", err)
	}
	if len(accounts) == 0 {
		return "", fmt.Errorf("no accounts configured; run 'mailsweep account add' first")
	}
	return accounts[0].ID, nil
}

// resolveGmailCredentials sets Gmail OAuth credentials using the first
// available source: config file, then environment variables.
func resolveGmailCredentials(cfg *config.Config) error {
	if cfg.Gmail.ClientID != "" && cfg.Gmail.ClientSecret != "" {
		gmail.SetCredentials(cfg.Gmail.ClientID, cfg.Gmail.ClientSecret)
		return nil
	}

	clientID := os.Getenv("GMAIL_CLIENT_ID")
	clientSecret := os.Getenv("GMAIL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		gmail.SetCredentials(clientID, clientSecret)
		return nil
	}

	return gmail.EnsureCredentials()
}

// session bundles what most commands need: the database, config and account.
type session struct {
	db        *sqlite.DB
	cfg       *config.Config
	accountID string
	log       *slog.Logger
}

// openSession opens the database and loads config. When needAccount is set
// the account is resolved too.
func openSession(ctx context.Context, needAccount bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	db, err := openDB()
	if err != nil {
		return nil, err
	}
	s := &session{db: db, cfg: cfg, log: newLogger()}
	if needAccount {
		if s.accountID, err = resolveAccountID(ctx, db, cfg); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) Close() error {
	return s.db.Close()
}

// gmailProvider returns a Gmail provider for the session account.
func (s *session) gmailProvider() (*gmail.Provider, error) {
	if err := resolveGmailCredentials(s.cfg); err != nil {
		return nil, err
	}
	return gmail.New(s.accountID, store.NewKeyringTokenStore()), nil
}
