// conveyor-bench drives synthetic workloads through a conveyor and reports
// throughput, for sizing worker and queue settings on a target machine.
package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	conveyor "github.com/AndreyK641/multi-task-conveyor"
	"github.com/AndreyK641/multi-task-conveyor/core"
)

func main() {
	app := &cli.App{
		Name:  "conveyor-bench",
		Usage: "Benchmark the multi-task conveyor on synthetic workloads",
		Commands: []*cli.Command{
			runCommand(),
			compareCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run concurrent jobs through one conveyor and report throughput",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   0,
				Usage:   "Worker count (0 = CPU count minus one)",
			},
			&cli.IntFlag{
				Name:    "queue-capacity",
				Aliases: []string{"q"},
				Value:   0,
				Usage:   "Task queue capacity (0 = unbounded)",
			},
			&cli.IntFlag{
				Name:    "jobs",
				Aliases: []string{"j"},
				Value:   4,
				Usage:   "Number of concurrent jobs",
			},
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"t"},
				Value:   10_000,
				Usage:   "Tasks per job",
			},
			&cli.IntFlag{
				Name:    "spin",
				Aliases: []string{"s"},
				Value:   100,
				Usage:   "Spin rounds per task (CPU cost knob)",
			},
		},

		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	workers := c.Int("workers")
	queueCapacity := c.Int("queue-capacity")
	jobs := c.Int("jobs")
	tasks := c.Int("tasks")
	spin := c.Int("spin")

	if jobs < 1 || tasks < 1 {
		return cli.Exit("jobs and tasks must be at least 1", 1)
	}

	cv := conveyor.New(workers, queueCapacity)
	defer cv.Shutdown()

	fmt.Printf("conveyor: %d workers, queue capacity %d\n", cv.WorkerCount(), cv.QueueCapacity())
	fmt.Printf("workload: %d jobs x %d tasks, spin %d\n", jobs, tasks, spin)

	start := time.Now()

	var group errgroup.Group
	for j := 0; j < jobs; j++ {
		group.Go(func() error {
			handle, err := cv.SubmitJob(newSpinJob(tasks, spin))
			if err != nil {
				return err
			}
			return cv.WaitUntilDone(context.Background(), handle)
		})
	}
	if err := group.Wait(); err != nil {
		return cli.Exit(fmt.Sprintf("benchmark failed: %v", err), 1)
	}

	elapsed := time.Since(start)
	total := jobs * tasks
	fmt.Printf("completed %d tasks in %v (%.0f tasks/s)\n",
		total, elapsed.Round(time.Millisecond), float64(total)/elapsed.Seconds())

	stats := cv.Stats()
	fmt.Printf("stats: executed=%d failed=%d panicked=%d completed_runs=%d\n",
		stats.ExecutedTasks, stats.FailedTasks, stats.PanickedTasks, stats.CompletedRuns)

	return nil
}

func compareCommand() *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare conveyor execution against a serial loop",

		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   0,
				Usage:   "Worker count (0 = CPU count minus one)",
			},
			&cli.IntFlag{
				Name:    "queue-capacity",
				Aliases: []string{"q"},
				Value:   0,
				Usage:   "Task queue capacity (0 = unbounded)",
			},
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"t"},
				Value:   100_000,
				Usage:   "Total tasks",
			},
			&cli.IntFlag{
				Name:    "spin",
				Aliases: []string{"s"},
				Value:   100,
				Usage:   "Spin rounds per task (CPU cost knob)",
			},
		},

		Action: compareAction,
	}
}

func compareAction(c *cli.Context) error {
	workers := c.Int("workers")
	queueCapacity := c.Int("queue-capacity")
	tasks := c.Int("tasks")
	spin := c.Int("spin")

	if tasks < 1 {
		return cli.Exit("tasks must be at least 1", 1)
	}

	cv := conveyor.New(workers, queueCapacity)
	defer cv.Shutdown()

	fmt.Printf("conveyor: %d workers (host has %d CPUs)\n", cv.WorkerCount(), runtime.NumCPU())

	parallelStart := time.Now()
	handle, err := cv.SubmitJob(newSpinJob(tasks, spin))
	if err != nil {
		return cli.Exit(fmt.Sprintf("submit failed: %v", err), 1)
	}
	if err := cv.WaitUntilDone(context.Background(), handle); err != nil {
		return cli.Exit(fmt.Sprintf("wait failed: %v", err), 1)
	}
	parallelTime := time.Since(parallelStart)

	serialStart := time.Now()
	for i := 0; i < tasks; i++ {
		spinWork(i, spin)
	}
	serialTime := time.Since(serialStart)

	fmt.Printf("parallel: %v\n", parallelTime.Round(time.Millisecond))
	fmt.Printf("serial:   %v\n", serialTime.Round(time.Millisecond))
	if parallelTime > 0 {
		fmt.Printf("speedup:  %.2fx\n", float64(serialTime)/float64(parallelTime))
	}

	return nil
}

// spinJob pushes n independent spin tasks.
type spinJob struct {
	tasks int
	spin  int
}

func newSpinJob(tasks int, spin int) *spinJob {
	return &spinJob{tasks: tasks, spin: spin}
}

func (j *spinJob) Produce(ctx context.Context, submitter core.TaskSubmitter) error {
	for i := 0; i < j.tasks; i++ {
		seed := i
		err := submitter.Submit(func(ctx context.Context) error {
			spinWork(seed, j.spin)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (j *spinJob) Complete(ctx context.Context) error { return nil }

// spinWork burns CPU deterministically so runs are comparable.
func spinWork(seed int, rounds int) float64 {
	acc := float64(seed%997) + 1
	for i := 0; i < rounds; i++ {
		acc = math.Sqrt(acc*1.0001) + math.Sin(acc)
		if acc < 1 {
			acc += float64(seed%13) + 1
		}
	}
	return acc
}
