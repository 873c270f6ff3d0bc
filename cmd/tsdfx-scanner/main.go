// Command tsdfx-scanner is the scanner worker: invoked by
// the supervisor once per map entry under the source directory owner's
// dropped-privilege credentials, it walks PATH and prints one validated
// entry per line to stdout.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsdfx/tsdfx/internal/logging"
	"github.com/tsdfx/tsdfx/internal/version"
	"github.com/tsdfx/tsdfx/internal/walk"
)

type cmdScanner struct {
	flagVerbose  bool
	flagLogSpec  string
	flagMaxFiles int
	flagVersion  bool
}

func main() {
	c := &cmdScanner{}

	app := &cobra.Command{
		Use:          "tsdfx-scanner [-v] [-l LOGSPEC] [-m MAXFILES] PATH",
		Short:        "Walk a directory tree and print validated relative paths",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE:         c.run,
	}
	app.Flags().BoolVarP(&c.flagVerbose, "verbose", "v", false, "show info-level messages")
	app.Flags().StringVarP(&c.flagLogSpec, "log", "l", "", "log spec (:stderr, :syslog, :user=PATH, or a file path)")
	app.Flags().IntVarP(&c.flagMaxFiles, "max-files", "m", 0, "abort after emitting this many entries (0: unbounded)")
	app.Flags().BoolVarP(&c.flagVersion, "version", "V", false, "print version and exit")

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cmdScanner) run(cmd *cobra.Command, args []string) error {
	if c.flagVersion {
		fmt.Println(version.Version)
		return nil
	}
	if len(args) != 1 {
		return fmt.Errorf("exactly one PATH argument is required")
	}
	root := args[0]

	logger, err := logging.New(logging.Config{Spec: c.flagLogSpec, Verbose: c.flagVerbose})
	if err != nil {
		return fmt.Errorf("tsdfx-scanner: %w", err)
	}

	if os.Geteuid() == 0 {
		logger.Warn("tsdfx-scanner is running as root; the supervisor should have dropped privileges before exec")
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	opts := walk.Options{MaxFiles: c.flagMaxFiles}
	err = walk.Walk(root, opts,
		func(rel string, isDir bool) {
			line := "/" + rel
			if isDir {
				line += "/"
			}
			fmt.Fprintln(out, line)
			out.Flush() // stdout is line-buffered
		},
		func(msg string) {
			logger.Warn(msg)
		},
	)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	return nil
}
