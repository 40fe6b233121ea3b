// Command ctreectl drives an in-process ctree.Tree from the command line:
// single-shot operations for scripting, a replay of the canonical seed
// scenario, and a concurrent load generator for exercising the locking
// protocol under contention.
package main

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/concurrentfs/ctree"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	logLevel string
	log      = logrus.New()
	tree     = ctree.New(ctree.WithLogger(log))
)

func main() {
	root := &cobra.Command{
		Use:   "ctreectl",
		Short: "drive an in-memory concurrent directory tree",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level %q: %w", logLevel, err)
			}
			log.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level: trace, debug, info, warn, error")

	root.AddCommand(lsCmd(), createCmd(), rmCmd(), mvCmd(), scriptCmd(), benchCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "list a directory's children",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			listing, err := tree.List(args[0])
			if err != nil {
				return err
			}
			fmt.Println(listing)
			return nil
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <path>",
		Short: "create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tree.Create(args[0])
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "remove an empty directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tree.Remove(args[0])
		},
	}
}

func mvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <source> <target>",
		Short: "move a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tree.Move(args[0], args[1])
		},
	}
}

// scriptStep is one line of the canonical seed scenario: an operation and
// the outcome it's expected to produce.
type scriptStep struct {
	op      string
	args    []string
	wantErr error
	wantOut string
}

func scriptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "script",
		Short: "replay the canonical seed scenario against a fresh tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := []scriptStep{
				{op: "list", args: []string{"/"}, wantOut: ""},
				{op: "list", args: []string{"/a/"}, wantErr: ctree.ErrNotExist},
				{op: "create", args: []string{"/a/"}},
				{op: "create", args: []string{"/a/b/"}},
				{op: "create", args: []string{"/a/b/"}, wantErr: ctree.ErrExist},
				{op: "create", args: []string{"/a/b/c/d/"}, wantErr: ctree.ErrNotExist},
				{op: "remove", args: []string{"/a/"}, wantErr: ctree.ErrNotEmpty},
				{op: "create", args: []string{"/b/"}},
				{op: "create", args: []string{"/a/c/"}},
				{op: "create", args: []string{"/a/c/d/"}},
				{op: "move", args: []string{"/a/c/", "/b/c/"}},
				{op: "remove", args: []string{"/b/c/d/"}},
				{op: "list", args: []string{"/b/"}, wantOut: "c"},
			}

			fresh := ctree.New(ctree.WithLogger(log))
			for i, step := range steps {
				if err := runStep(fresh, step); err != nil {
					return fmt.Errorf("step %d (%s %s): %w", i+1, step.op, strings.Join(step.args, " "), err)
				}
			}
			fmt.Println("script: all steps matched expected outcome")
			return nil
		},
	}
}

func runStep(tr *ctree.Tree, step scriptStep) error {
	var (
		out string
		err error
	)
	switch step.op {
	case "list":
		out, err = tr.List(step.args[0])
	case "create":
		err = tr.Create(step.args[0])
	case "remove":
		err = tr.Remove(step.args[0])
	case "move":
		err = tr.Move(step.args[0], step.args[1])
	default:
		return fmt.Errorf("unknown script op %q", step.op)
	}

	if step.wantErr != nil {
		if err == nil {
			return fmt.Errorf("expected error %v, got success", step.wantErr)
		}
		if !errors.Is(err, step.wantErr) {
			return fmt.Errorf("expected error %v, got %v", step.wantErr, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("unexpected error: %w", err)
	}
	if step.op == "list" && out != step.wantOut {
		return fmt.Errorf("expected listing %q, got %q", step.wantOut, out)
	}
	return nil
}

func benchCmd() *cobra.Command {
	var workers int
	var duration time.Duration
	var depth int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "fan out concurrent workers hammering a shared tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(workers, depth, duration)
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 8, "number of concurrent workers")
	cmd.Flags().IntVar(&depth, "depth", 3, "number of top-level directories to contend over")
	cmd.Flags().DurationVar(&duration, "duration", 3*time.Second, "how long to run")
	return cmd
}

func runBench(workers, depth int, duration time.Duration) error {
	tr := ctree.New(ctree.WithLogger(log))
	names := make([]string, depth)
	for i := range names {
		names[i] = fmt.Sprintf("/d%d/", i)
		if err := tr.Create(names[i]); err != nil {
			return err
		}
	}

	var ops int64
	var mu sync.Mutex
	deadline := time.Now().Add(duration)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		seed := int64(w)
		g.Go(func() error {
			rng := rand.New(rand.NewSource(seed))
			local := 0
			for time.Now().Before(deadline) {
				a := names[rng.Intn(len(names))]
				b := names[rng.Intn(len(names))]
				switch rng.Intn(4) {
				case 0:
					_, _ = tr.List(a)
				case 1:
					_ = tr.Create(a + fmt.Sprintf("leaf%d/", rng.Intn(64)))
				case 2:
					_ = tr.Remove(a + fmt.Sprintf("leaf%d/", rng.Intn(64)))
				case 3:
					_ = tr.Move(a+fmt.Sprintf("leaf%d/", rng.Intn(64)), b+fmt.Sprintf("leaf%d/", rng.Intn(64)))
				}
				local++
			}
			mu.Lock()
			ops += int64(local)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("bench: %d workers, %d ops in %s\n", workers, ops, duration)
	return nil
}
