// Package asyncx provides the small set of concurrency primitives shared by
// the job pipeline: tracked fire-and-forget goroutines with panic capture,
// and bounded waiting.
//
// # Tracked goroutines
//
// A [Tracker] starts goroutines whose lifetime the owner must be able to
// wait on, typically during graceful shutdown. A panic inside a tracked
// goroutine is recovered and handed to the tracker's panic handler as a
// [*PanicError] instead of crashing the process.
//
//	var t asyncx.Tracker
//	t.Go(func() { process(ctx, job) })
//
//	// at shutdown
//	if err := t.Wait(shutdownCtx); err != nil {
//	    // some goroutines were still running when shutdownCtx expired
//	}
//
// # Bounded waits
//
// [WaitContext] waits for a blocking function to return, or for ctx to be
// done, whichever happens first. It is how the lifecycle supervisor races a
// pool close against the shutdown timeout.
package asyncx
