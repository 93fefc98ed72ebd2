package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/modoterra/logcatview/internal/buildinfo"
	"github.com/modoterra/logcatview/internal/logging"
	"github.com/modoterra/logcatview/pkg/config"
	"github.com/modoterra/logcatview/pkg/prefs"
	"github.com/modoterra/logcatview/pkg/transport/uds"
	tuimodel "github.com/modoterra/logcatview/pkg/tui/model"
)

const requestTimeout = 5 * time.Second

var (
	socketPath string
	configPath string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "logcatview",
	Short: "Terminal viewer for Android logcat",
	Long: "logcatview streams Android logcat through a small daemon (logcatviewd) and shows it in a TUI " +
		"with priority and text filters, pause/resume and recording to files.",
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "daemon socket path (default from config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to logcatview.yaml (default "+config.DefaultPath()+")")

	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
}

// --- Root: TUI ---

func runTUI(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	socket := resolveSocket(cfg)
	ensureDaemon(socket)

	app := tuimodel.New(tuimodel.Options{
		Socket:    socket,
		PrefsPath: prefs.DefaultPath(),
		History:   cfg.History,
	})
	restore := logging.Silence()
	defer restore()

	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// resolveSocket prefers --socket over the configured path.
func resolveSocket(cfg *config.Config) string {
	if socketPath != "" {
		return socketPath
	}
	if cfg != nil && cfg.Socket != "" {
		return cfg.Socket
	}
	return config.Default().Socket
}

// ensureDaemon spawns logcatviewd when nothing answers on the socket and
// waits up to three seconds for it to come up.
func ensureDaemon(socket string) {
	if daemonAlive(socket) {
		return
	}
	args := []string{}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	cmd := exec.Command("logcatviewd", args...)
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "warning: could not start logcatviewd:", err)
		return
	}
	_ = cmd.Process.Release()

	for i := 0; i < 30; i++ {
		if daemonAlive(socket) {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "warning: daemon did not come up, continuing anyway")
}

func daemonAlive(socket string) bool {
	client, err := uds.Dial(socket)
	if err != nil {
		return false
	}
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return client.Call(ctx, uds.MethodPing, nil, nil) == nil
}

func dialDaemon() (*uds.Client, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	socket := resolveSocket(cfg)
	client, err := uds.Dial(socket)
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon at %s: %w", socket, err)
	}
	return client, nil
}

// callDaemon sends one request and decodes the response into out.
func callDaemon(method string, data, out any) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return client.Call(ctx, method, data, out)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- Ping ---

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if daemon is running",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var pong uds.PingResponse
		if err := callDaemon(uds.MethodPing, nil, &pong); err != nil {
			return err
		}
		if !pong.Pong {
			return errors.New("daemon did not answer ping")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "pong ✓ (logcatviewd %s)\n", pong.Version)
		return nil
	},
}

// --- Version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String("logcatview"))
	},
}

// --- Daemon ---

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start daemon in foreground (for debugging)",
	Long:  "Normally the TUI auto-spawns the daemon. Use this to run it manually.",
	RunE: func(_ *cobra.Command, _ []string) error {
		args := []string{}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		cmd := exec.Command("logcatviewd", args...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	},
}

// --- Status ---

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the logcat session and recording state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st uds.StatusResponse
		if err := callDaemon(uds.MethodStatus, nil, &st); err != nil {
			return err
		}
		if statusJSON {
			return printJSON(cmd, st)
		}
		writeStatus(cmd, st)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func writeStatus(cmd *cobra.Command, st uds.StatusResponse) {
	out := cmd.OutOrStdout()
	s := st.Session

	state := "stopped"
	switch {
	case s.Running && s.Paused:
		state = "paused"
	case s.Running:
		state = "running"
	}

	fmt.Fprintf(out, "session:   %s\n", state)
	fmt.Fprintf(out, "buffer:    %s\n", s.Buffer)
	if len(s.Command) > 0 {
		fmt.Fprintf(out, "command:   %s\n", strings.Join(s.Command, " "))
	}
	if s.ID != "" {
		fmt.Fprintf(out, "id:        %s\n", s.ID)
	}
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(out, "started:   %s\n", s.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(out, "lines:     %d\n", s.Lines)
	fmt.Fprintf(out, "history:   %d\n", st.History)
	if s.Backlog > 0 || s.Dropped > 0 {
		fmt.Fprintf(out, "backlog:   %d (dropped %d)\n", s.Backlog, s.Dropped)
	}
	if s.LastError != "" {
		fmt.Fprintf(out, "error:     %s\n", s.LastError)
	}
	if st.Recording != nil {
		fmt.Fprintf(out, "recording: %s (%d lines, filter %s)\n", st.Recording.Path, st.Recording.Entries, st.Recording.Filter)
	} else {
		fmt.Fprintln(out, "recording: off")
	}
	fmt.Fprintf(out, "records:   %s\n", st.RecordsDir)
}
