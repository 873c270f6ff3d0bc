// Command tsdfx is the supervisor process: it reads a map
// file, forks one scanner worker per active map entry and one copier
// worker per pending file, and keeps trusted storage mirroring an
// untrusted drop zone until killed.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/tsdfx/tsdfx/internal/binpath"
	"github.com/tsdfx/tsdfx/internal/copydispatch"
	"github.com/tsdfx/tsdfx/internal/logging"
	"github.com/tsdfx/tsdfx/internal/statusserver"
	"github.com/tsdfx/tsdfx/internal/supervisor"
	"github.com/tsdfx/tsdfx/internal/version"
)

type cmdSupervisor struct {
	flagOneShot    bool
	flagDryRun     bool
	flagVerbose    bool
	flagVersion    bool
	flagLogSpec    string
	flagCopierPath string
	flagScanPath   string
	flagPidFile    string
	flagMapFile    string
	flagStatusAddr string
}

func main() {
	c := &cmdSupervisor{}

	app := &cobra.Command{
		Use:          "tsdfx [-1nvV] [-l LOG] [-C COPIER] [-S SCANNER] [-p PIDFILE] -m MAPFILE",
		Short:        "One-way, unattended file-tree replicator for trust-boundary crossings",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE:         c.run,
	}
	app.Flags().BoolVarP(&c.flagOneShot, "one-shot", "1", false, "run until idle once, then exit")
	app.Flags().BoolVarP(&c.flagDryRun, "dry-run", "n", false, "pass -n to the copier: report, touch nothing")
	app.Flags().BoolVarP(&c.flagVerbose, "verbose", "v", false, "show info-level messages")
	app.Flags().BoolVarP(&c.flagVersion, "version", "V", false, "print version and exit")
	app.Flags().StringVarP(&c.flagLogSpec, "log", "l", "", "log spec (:stderr, :syslog, :user=PATH, or a file path)")
	app.Flags().StringVarP(&c.flagCopierPath, "copier", "C", "", "override the copier binary path")
	app.Flags().StringVarP(&c.flagScanPath, "scanner", "S", "", "override the scanner binary path")
	app.Flags().StringVarP(&c.flagPidFile, "pidfile", "p", "/var/run/tsdfx.pid", "pidfile path")
	app.Flags().StringVarP(&c.flagMapFile, "map", "m", "", "map file path (required)")
	app.Flags().StringVar(&c.flagStatusAddr, "status-addr", "", "serve GET /status on this address (default disabled)")

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cmdSupervisor) run(cmd *cobra.Command, args []string) error {
	if c.flagVersion {
		fmt.Println(version.Version)
		return nil
	}
	if c.flagMapFile == "" {
		return fmt.Errorf("tsdfx: -m MAPFILE is required")
	}

	logger, err := logging.New(logging.Config{Spec: c.flagLogSpec, Verbose: c.flagVerbose})
	if err != nil {
		return initFailure(err)
	}

	lock := flock.New(c.flagPidFile)
	locked, err := lock.TryLock()
	if err != nil {
		return initFailure(fmt.Errorf("lock pidfile %s: %w", c.flagPidFile, err))
	}
	if !locked {
		return initFailure(fmt.Errorf("another instance holds %s", c.flagPidFile))
	}
	defer lock.Unlock()
	if err := os.WriteFile(c.flagPidFile, []byte(strconv.Itoa(os.Getpid())+"\n"), 0644); err != nil {
		return initFailure(fmt.Errorf("write pidfile %s: %w", c.flagPidFile, err))
	}
	defer os.Remove(c.flagPidFile)

	scannerPath := c.flagScanPath
	if scannerPath == "" {
		var err error
		scannerPath, err = binpath.Resolve("TSDFX_SCANNER", "tsdfx-scanner")
		if err != nil {
			return initFailure(fmt.Errorf("locate scanner binary: %w", err))
		}
	}

	copierPath := c.flagCopierPath
	if copierPath == "" {
		var err error
		copierPath, err = binpath.Resolve("TSDFX_COPIER", "tsdfx-copier")
		if err != nil {
			return initFailure(fmt.Errorf("locate copier binary: %w", err))
		}
	}

	dispatch := copydispatch.NewDispatcher(copierPath, copydispatch.DefaultPolicies)
	dispatch.DryRun = c.flagDryRun
	dispatch.Verbose = c.flagVerbose
	dispatch.LogSpec = c.flagLogSpec
	dispatch.OnError = func(msg string) { logger.Error(msg) }

	cfg := supervisor.Config{ScannerPath: scannerPath}
	sup := supervisor.New(cfg, dispatch, func(msg string) { logger.Warn(msg) }, func(msg string) { logger.Error(msg) })

	if err := sup.Reload(c.flagMapFile); err != nil {
		return initFailure(fmt.Errorf("load map file: %w", err))
	}

	if c.flagStatusAddr != "" {
		srv := statusserver.New(func() []statusserver.MapStatus {
			var out []statusserver.MapStatus
			for _, name := range sup.MapNames() {
				src, dst, scanTask, log, ok := sup.MapEntry(name)
				if !ok {
					continue
				}
				out = append(out, statusserver.MapStatus{
					Name:        name,
					Src:         src,
					Dst:         dst,
					ScanState:   statusserver.ScanStateString(scanTask),
					RecentCount: log.Len(),
				})
			}
			return out
		})
		ln, err := statusserver.Serve(c.flagStatusAddr, srv)
		if err != nil {
			return initFailure(fmt.Errorf("start status server: %w", err))
		}
		defer ln.Close()
	}

	sig, stopSignals := supervisor.InstallSignals()
	defer stopSignals()

	caught := sup.Run(c.flagMapFile, sig, c.flagOneShot, func(msg string) { logger.Warn(msg) })
	if caught != 0 {
		logger.Info(fmt.Sprintf("exiting on signal %s", caught))
	}
	return nil
}

// initFailure logs nothing extra; cobra's error return already prints
// "Error: ..." to stderr. Exit is 0 on normal completion or a caught TERM,
// 1 on init failure.
func initFailure(err error) error {
	return err
}
