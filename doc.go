// Package conveyor provides a two-level execution engine for fan-out jobs.
//
// A job describes a production routine that pushes many small tasks and a
// completion routine that aggregates their results. Each submitted job gets
// its own driver goroutine; all jobs share one bounded FIFO task queue
// drained by a fixed pool of worker goroutines. The driver waits for the
// job's outstanding task count to reach zero, runs the completion routine,
// then marks the job done.
//
// # Quick Start
//
// Initialize the global conveyor at application startup:
//
//	conveyor.InitGlobalConveyor(4, 1024) // 4 workers, queue bounded at 1024
//	defer conveyor.ShutdownGlobalConveyor()
//
// Define a job from closures and submit it:
//
//	sum := make([]int, 100)
//	job := conveyor.NewFuncJob(
//		func(ctx context.Context, s conveyor.TaskSubmitter) error {
//			for i := 0; i < 100; i++ {
//				if err := s.Submit(func(ctx context.Context) error {
//					sum[i] = i * i
//					return nil
//				}); err != nil {
//					return err
//				}
//			}
//			return nil
//		},
//		func(ctx context.Context) error {
//			// All 100 tasks have finished here.
//			return nil
//		},
//	)
//
//	h, err := conveyor.Submit(job)
//	if err != nil {
//		log.Fatal(err)
//	}
//	conveyor.GetGlobalConveyor().WaitUntilDone(context.Background(), h)
//
// # Key Concepts
//
// Job: Two routines, Produce and Complete. Produce pushes tasks through the
// TaskSubmitter it is handed; Complete runs exactly once per run, after the
// last of those tasks has finished.
//
// JobHandle: An opaque, generation-checked identifier. Handles of removed
// jobs are detected as stale instead of resolving to a different job.
//
// Backpressure: With a positive queue capacity, submitters block while the
// queue is full, so memory stays bounded no matter how fast jobs produce.
//
// Shutdown: Stops intake, drops queued tasks that have not started, lets
// in-flight tasks finish, and joins every worker and driver goroutine.
//
// # Restart
//
// A completed job can be restarted under the same handle:
//
//	c := conveyor.New(0, 0) // default workers, unbounded queue
//	h, _ := c.SubmitJob(job)
//	c.WaitUntilDone(ctx, h)
//	c.Restart(h) // runs Produce and Complete again
//	c.WaitUntilDone(ctx, h)
//	returned, _ := c.Remove(h) // ownership back to the caller
//
// For more details, see the core package documentation.
package conveyor
