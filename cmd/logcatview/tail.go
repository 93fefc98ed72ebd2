package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/modoterra/logcatview/internal/logging"
	"github.com/modoterra/logcatview/pkg/core"
	"github.com/modoterra/logcatview/pkg/logcat"
	"github.com/modoterra/logcatview/pkg/transport/uds"
)

var (
	tailPriority string
	tailGrep     string
	tailBuffer   string
	tailLines    int
	tailLocal    bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Stream logcat to stdout",
	Long: "Print history and then follow new entries from the daemon. With --local, logcat is run " +
		"in-process and no daemon is needed.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := core.ParsePriority(tailPriority)
		if err != nil {
			return err
		}
		var buffer core.Buffer
		if tailBuffer != "" {
			if buffer, err = core.ParseBuffer(tailBuffer); err != nil {
				return err
			}
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		printer := &entryPrinter{w: cmd.OutOrStdout(), filter: core.NewFilter(p, tailGrep)}
		if tailLocal {
			return tailLocalSession(ctx, cmd, printer, buffer)
		}
		return tailDaemon(ctx, printer, buffer)
	},
}

func init() {
	tailCmd.Flags().StringVarP(&tailPriority, "priority", "p", "", "minimum priority (V, D, I, W, E, F)")
	tailCmd.Flags().StringVarP(&tailGrep, "grep", "g", "", "only show lines containing this text (case-insensitive)")
	tailCmd.Flags().StringVarP(&tailBuffer, "buffer", "b", "", "switch to this logcat buffer first")
	tailCmd.Flags().IntVarP(&tailLines, "lines", "n", 100, "history lines to print before following (0 for all)")
	tailCmd.Flags().BoolVar(&tailLocal, "local", false, "run logcat in-process instead of using the daemon")
	rootCmd.AddCommand(tailCmd)
}

func tailDaemon(ctx context.Context, printer *entryPrinter, buffer core.Buffer) error {
	client, err := dialDaemon()
	if err != nil {
		return err
	}
	defer client.Close()

	ended := make(chan string, 1)
	client.OnEvent(func(m uds.Message) {
		switch m.Method {
		case uds.EventLogsBatch:
			var entries []core.Entry
			if err := m.Decode(&entries); err == nil {
				printer.add(entries)
			}
		case uds.EventSessionEnded:
			var ev uds.SessionEndedEvent
			_ = m.Decode(&ev)
			select {
			case ended <- ev.Error:
			default:
			}
		}
	})

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if buffer != "" {
		if err := client.Call(reqCtx, uds.MethodSetSource, uds.SetSourceRequest{Buffer: string(buffer)}, nil); err != nil {
			return err
		}
	}
	var hist uds.EntriesResponse
	if err := client.Call(reqCtx, uds.MethodLogsSubscribe, uds.RecentRequest{Limit: tailLines}, &hist); err != nil {
		return err
	}
	printer.start(hist.Entries)

	select {
	case <-ctx.Done():
		return nil
	case <-client.Done():
		return errors.New("daemon connection closed")
	case msg := <-ended:
		return fmt.Errorf("logcat ended: %s", msg)
	}
}

func tailLocalSession(ctx context.Context, cmd *cobra.Command, printer *entryPrinter, buffer core.Buffer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if buffer == "" {
		if buffer, err = core.ParseBuffer(cfg.Buffer); err != nil {
			return err
		}
	}

	ended := make(chan error, 1)
	session := logcat.NewSession(logcat.Options{
		Command: cfg.LogcatCommand(),
		Buffer:  buffer,
		Format:  cfg.Format,
		Backlog: cfg.Backlog,
		Logger:  logging.New(cmd.ErrOrStderr(), false, slog.LevelWarn),
		OnEnd: func(err error) {
			select {
			case ended <- err:
			default:
			}
		},
	}, func(e core.Entry) {
		printer.add([]core.Entry{e})
	})

	printer.start(nil)
	if err := session.Start(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		session.Stop()
		return nil
	case err := <-ended:
		return err
	}
}

// entryPrinter writes matching entries once each. Entries that arrive
// before start are held so history prints first.
type entryPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	filter  core.Filter
	session string
	seq     uint64
	ready   bool
	pending []core.Entry
}

func (p *entryPrinter) add(entries []core.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ready {
		p.pending = append(p.pending, entries...)
		return
	}
	p.printLocked(entries)
}

func (p *entryPrinter) start(history []core.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printLocked(history)
	p.printLocked(p.pending)
	p.pending = nil
	p.ready = true
}

func (p *entryPrinter) printLocked(entries []core.Entry) {
	for _, e := range entries {
		if e.SessionID == p.session && e.Seq <= p.seq && e.Seq != 0 {
			continue
		}
		p.session, p.seq = e.SessionID, e.Seq
		if p.filter.Match(e) {
			fmt.Fprintln(p.w, e.Raw)
		}
	}
}
