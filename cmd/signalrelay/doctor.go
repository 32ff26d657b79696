package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"signalrelay/internal/config"
	"signalrelay/internal/relay"
	"signalrelay/internal/store"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// botTokenPattern is the shape of a BotFather token: <bot id>:<secret>.
var botTokenPattern = regexp.MustCompile(`^\d{5,}:[A-Za-z0-9_-]{30,}$`)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the relay setup",
		Long: `Verifies configuration, credentials shape, channel ids, templates, the stats
database, the dedup backend and the listen port. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("signalrelay doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults + env", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := config.LoadOrDefaults(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Relay essentials
			if err := config.RequireRelay(cfg); err != nil {
				printFail("Relay settings", err.Error())
				failed++
			} else {
				printPass("Relay settings", fmt.Sprintf("%d → %d", cfg.Relay.SourceChannelID, cfg.Relay.TargetChannelID))
				passed++
			}

			// 4. Token shape
			switch {
			case cfg.Telegram.Token == "":
				// already reported above
			case botTokenPattern.MatchString(cfg.Telegram.Token):
				printPass("Bot token", "well-formed")
				passed++
			default:
				printFail("Bot token", "does not look like <id>:<secret>; is BOT_TOKEN set?")
				failed++
			}

			// 5. Templates
			if _, err := relay.LoadTemplates(cfg.Relay.TemplatesFile); err != nil {
				printFail("Templates", err.Error())
				failed++
			} else {
				src := "built-in"
				if cfg.Relay.TemplatesFile != "" {
					src = cfg.Relay.TemplatesFile
				}
				printPass("Templates", fmt.Sprintf("%s, variant %s", src, cfg.Relay.SignalVariant))
				passed++
			}

			// 6. Stats database writable
			if cfg.Store.Enabled {
				if err := checkDatabase(cfg.Store.DBPath); err != nil {
					printFail("Database", err.Error())
					failed++
				} else {
					printPass("Database", cfg.Store.DBPath)
					passed++
				}
			}

			// 7. Dedup backend
			if cfg.Dedup.Enabled && cfg.Dedup.Backend == "redis" {
				if err := checkRedis(cfg.Dedup); err != nil {
					printFail("Redis", err.Error())
					failed++
				} else {
					printPass("Redis", cfg.Dedup.RedisAddr)
					passed++
				}
			}

			// 8. Listen port
			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Listen port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			// 9. Webhook URL
			if cfg.Telegram.Mode == "webhook" {
				if u := cfg.Server.WebhookURL(); u != "" {
					printPass("Webhook URL", u)
					passed++
				} else {
					printWarn("Webhook URL", "no public URL; Telegram cannot reach the webhook")
					warned++
				}
				if cfg.Server.SecretToken == "" {
					printWarn("Webhook secret", "not set; any caller can post updates")
					warned++
				}
			}

			// 10. Log file writable
			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running the gateway.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe relay should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! Run 'signalrelay gateway'.\n")
			}
			return nil
		},
	}
}

// checkDatabase opens the stats store, which applies pending migrations.
func checkDatabase(dbPath string) error {
	st, err := store.NewSQLiteStore(dbPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	return nil
}

func checkRedis(d config.DedupConfig) error {
	client := redis.NewClient(&redis.Options{
		Addr:     d.RedisAddr,
		Password: d.RedisPassword,
		DB:       d.RedisDB,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
