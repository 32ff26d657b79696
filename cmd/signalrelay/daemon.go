package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"signalrelay/internal/config"

	"github.com/spf13/cobra"
)

const (
	launchdLabel = "com.signalrelay.gateway"
	systemdUnit  = "signalrelay.service"
)

// serviceFile is the user-level service definition for one OS.
type serviceFile struct {
	path    string
	content string
	hints   []string // printed after install
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the gateway as a user service (launchd/systemd)",
		Long: `Writes a service file that runs 'signalrelay gateway' at login and restarts it
on failure. On Linux, secrets such as BOT_TOKEN go in ~/.signalrelay/env.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			svc, err := serviceFor(runtime.GOOS, home, execPath, resolveConfigPath())
			if err != nil {
				return err
			}

			if err := os.MkdirAll(filepath.Join(config.DefaultConfigDir(), "logs"), 0o755); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(svc.path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(svc.path, []byte(svc.content), 0o644); err != nil {
				return fmt.Errorf("write service file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service installed: %s\n", svc.path)
			for _, h := range svc.hints {
				fmt.Fprintln(out, h)
			}
			return nil
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the gateway user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			svc, err := serviceFor(runtime.GOOS, home, "", "")
			if err != nil {
				return err
			}
			if err := os.Remove(svc.path); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("no service installed at %s", svc.path)
				}
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Service removed: %s\n", svc.path)
			return nil
		},
	}
}

// serviceFor describes the service file for goos under home.
func serviceFor(goos, home, execPath, cfgPath string) (serviceFile, error) {
	logDir := filepath.Join(config.DefaultConfigDir(), "logs")

	switch goos {
	case "darwin":
		path := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
		return serviceFile{
			path: path,
			content: strings.NewReplacer(
				"{{LABEL}}", launchdLabel,
				"{{EXEC}}", execPath,
				"{{CONFIG}}", cfgPath,
				"{{LOG}}", filepath.Join(logDir, "gateway.log"),
				"{{ERR_LOG}}", filepath.Join(logDir, "gateway-error.log"),
			).Replace(launchdTemplate),
			hints: []string{
				"Start: launchctl load " + path,
				"Stop:  launchctl unload " + path,
			},
		}, nil
	case "linux":
		envPath := filepath.Join(config.DefaultConfigDir(), "env")
		return serviceFile{
			path:    filepath.Join(home, ".config", "systemd", "user", systemdUnit),
			content: renderUnit(execPath, cfgPath, envPath),
			hints: []string{
				"Start:   systemctl --user daemon-reload && systemctl --user start signalrelay",
				"Enable:  systemctl --user enable signalrelay",
				"Secrets: BOT_TOKEN, SOURCE_CHANNEL_ID, TARGET_CHANNEL_ID in " + envPath,
			},
		}, nil
	default:
		return serviceFile{}, fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func renderUnit(execPath, cfgPath, envPath string) string {
	return strings.NewReplacer(
		"{{EXEC}}", execPath,
		"{{CONFIG}}", cfgPath,
		"{{ENV}}", envPath,
	).Replace(systemdTemplate)
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>gateway</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=signalrelay Telegram channel relay
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
EnvironmentFile=-{{ENV}}
ExecStart={{EXEC}} gateway --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
