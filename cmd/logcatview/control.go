package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/modoterra/logcatview/pkg/core"
	"github.com/modoterra/logcatview/pkg/logcat"
	"github.com/modoterra/logcatview/pkg/record"
	"github.com/modoterra/logcatview/pkg/transport/uds"
)

func init() {
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(sourceCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(recordsCmd)
}

// --- Session control ---

var pauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause delivery; lines are held until resume",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st logcat.Status
		if err := callDaemon(uds.MethodPause, nil, &st); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "paused")
		return nil
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume delivery and flush held lines",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp uds.ResumeResponse
		if err := callDaemon(uds.MethodResume, nil, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "resumed (%d held lines flushed)\n", resp.Flushed)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear the daemon's log history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := callDaemon(uds.MethodClear, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "cleared")
		return nil
	},
}

var sourceCmd = &cobra.Command{
	Use:   "source <buffer>",
	Short: "Switch the logcat buffer (main, system, radio, events, crash, kernel, all, default)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := core.ParseBuffer(args[0])
		if err != nil {
			return err
		}
		var st logcat.Status
		if err := callDaemon(uds.MethodSetSource, uds.SetSourceRequest{Buffer: string(b)}, &st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "source → %s ✓\n", st.Buffer)
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart logcat on the current buffer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st logcat.Status
		if err := callDaemon(uds.MethodRestart, nil, &st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restarted %s ✓\n", st.Buffer)
		return nil
	},
}

// --- Recording ---

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Start or stop recording to a file",
}

var (
	recordPriority string
	recordGrep     string
)

var recordStartCmd = &cobra.Command{
	Use:   "start [name]",
	Short: "Start recording entries that pass the filter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := core.ParsePriority(recordPriority)
		if err != nil {
			return err
		}
		req := uds.StartRecordingRequest{Filter: core.NewFilter(p, recordGrep)}
		if len(args) > 0 {
			if err := record.ValidateName(args[0]); err != nil {
				return err
			}
			req.Name = args[0]
		}

		var st record.Status
		if err := callDaemon(uds.MethodStartRecording, req, &st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recording to %s\n", st.Path)
		return nil
	},
}

var recordStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop recording and flush the file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var st record.Status
		if err := callDaemon(uds.MethodStopRecording, nil, &st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d lines)\n", st.Path, st.Entries)
		return nil
	},
}

func init() {
	recordStartCmd.Flags().StringVarP(&recordPriority, "priority", "p", "", "minimum priority (V, D, I, W, E, F)")
	recordStartCmd.Flags().StringVarP(&recordGrep, "grep", "g", "", "only record lines containing this text")
	recordCmd.AddCommand(recordStartCmd)
	recordCmd.AddCommand(recordStopCmd)
}

// --- Records ---

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Manage saved recordings",
}

var recordsJSON bool

var recordsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recordings, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var resp uds.ListRecordsResponse
		if err := callDaemon(uds.MethodListRecords, nil, &resp); err != nil {
			return err
		}
		if recordsJSON {
			return printJSON(cmd, resp)
		}
		if len(resp.Records) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no recordings in %s\n", resp.Dir)
			return nil
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
		for _, r := range resp.Records {
			fmt.Fprintf(w, "%s\t%d\t%s\n", r.Name, r.Size, r.ModTime.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

var recordsDeleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete recordings",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp uds.DeleteRecordsResponse
		if err := callDaemon(uds.MethodDeleteRecords, uds.DeleteRecordsRequest{Names: args}, &resp); err != nil {
			return err
		}
		for _, name := range resp.Deleted {
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", name)
		}
		return nil
	},
}

var recordsExportCmd = &cobra.Command{
	Use:   "export <dest> <name>...",
	Short: "Write recordings to a tar.gz archive",
	Long:  "dest may be a file path or an existing directory, in which case a timestamped archive name is used.",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dest, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		var resp uds.ExportRecordsResponse
		if err := callDaemon(uds.MethodExportRecords, uds.ExportRecordsRequest{Names: args[1:], Dest: dest}, &resp); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "exported %d record(s) to %s\n", len(args)-1, resp.Path)
		return nil
	},
}

var recordsTailLines int

var recordsTailCmd = &cobra.Command{
	Use:   "tail <name>",
	Short: "Print the last lines of a recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp uds.TailRecordResponse
		req := uds.TailRecordRequest{Name: args[0], Lines: recordsTailLines}
		if err := callDaemon(uds.MethodTailRecord, req, &resp); err != nil {
			return err
		}
		for _, line := range resp.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	recordsListCmd.Flags().BoolVar(&recordsJSON, "json", false, "output as JSON")
	recordsTailCmd.Flags().IntVarP(&recordsTailLines, "lines", "n", 50, "number of lines")
	recordsCmd.AddCommand(recordsListCmd)
	recordsCmd.AddCommand(recordsDeleteCmd)
	recordsCmd.AddCommand(recordsExportCmd)
	recordsCmd.AddCommand(recordsTailCmd)
}
