// Command tsdfx-copier is the copier worker: invoked by
// the supervisor once per (src, dst) pair under the source owner's
// dropped-privilege credentials, it reconciles dst to match src and
// exits.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tsdfx/tsdfx/internal/copyfile"
	"github.com/tsdfx/tsdfx/internal/logging"
	"github.com/tsdfx/tsdfx/internal/version"
)

type cmdCopier struct {
	flagForce   bool
	flagDryRun  bool
	flagVerbose bool
	flagLogSpec string
	flagMaxSize int64
	flagVersion bool
}

func main() {
	c := &cmdCopier{}

	app := &cobra.Command{
		Use:          "tsdfx-copier [-fnv] [-l LOGSPEC] [-m MAXSIZE] SRC DST",
		Short:        "Reconcile one destination path to match one source path",
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE:         c.run,
	}
	app.Flags().BoolVarP(&c.flagForce, "force", "f", false, "reconcile even if the comparator would skip")
	app.Flags().BoolVarP(&c.flagDryRun, "dry-run", "n", false, "report what would happen, touch nothing")
	app.Flags().BoolVarP(&c.flagVerbose, "verbose", "v", false, "show info-level messages")
	app.Flags().StringVarP(&c.flagLogSpec, "log", "l", "", "log spec (:stderr, :syslog, :user=PATH, or a file path)")
	app.Flags().Int64VarP(&c.flagMaxSize, "max-size", "m", 0, "cap source size; abort if exceeded (0: unbounded)")
	app.Flags().BoolVarP(&c.flagVersion, "version", "V", false, "print version and exit")

	if err := app.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *cmdCopier) run(cmd *cobra.Command, args []string) error {
	if c.flagVersion {
		fmt.Println(version.Version)
		return nil
	}
	if len(args) != 2 {
		return fmt.Errorf("exactly two arguments (SRC DST) are required")
	}
	src, dst := args[0], args[1]

	logger, err := logging.New(logging.Config{Spec: c.flagLogSpec, Verbose: c.flagVerbose})
	if err != nil {
		return fmt.Errorf("tsdfx-copier: %w", err)
	}

	if os.Geteuid() == 0 {
		logger.Warn("tsdfx-copier is running as root; the supervisor should have dropped privileges before exec")
	}
	syscall.Umask(0007)

	interrupted := &atomic.Bool{}
	var caught atomic.Int32
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sig
		caught.Store(int32(s.(syscall.Signal)))
		interrupted.Store(true)
	}()

	opts := copyfile.Options{
		Force:     c.flagForce,
		DryRun:    c.flagDryRun,
		MaxSize:   c.flagMaxSize,
		Interrupt: interrupted.Load,
	}

	res, err := copyfile.Reconcile(src, dst, opts)
	if err != nil {
		logger.Error(err.Error())
		return err
	}
	if res.Interrupted {
		logger.Warn(fmt.Sprintf("interrupted after %d bytes", res.BytesCopied))
	}
	logger.Info(fmt.Sprintf("reconciled %s -> %s: %d bytes, skipped=%v", src, dst, res.BytesCopied, res.Skipped))

	// Re-raise the signal that interrupted the copy under the default
	// disposition, so the supervisor observes the worker's exit the same
	// way it would a process it never intercepted a signal for.
	if s := syscall.Signal(caught.Load()); s != 0 {
		signal.Reset(s)
		_ = syscall.Kill(os.Getpid(), s)
	}
	return nil
}
