/*
Package workers sizes worker pools in containerized environments and bounds
access to scarce external-process capacity.

Go sets GOMAXPROCS from the container CPU limit, while runtime.NumCPU still
reports host CPUs. Count and its helpers use GOMAXPROCS so a pod limited to
2 CPUs on a 64-core node spawns 2 extractors, not 64:

	n := workers.ForCPU(8) // at most 8, at most one per available CPU

Operators may pin the value with ANALYZE_WORKERS.

Semaphore caps concurrent transcoding runs. The packager holds one slot for
the whole A+B packaging operation:

	sem := workers.NewSemaphore(cfg.TranscodeSlots)
	if !sem.Acquire(ctx.Done()) {
		return ctx.Err()
	}
	defer sem.Release()

All functions are safe for concurrent use.
*/
package workers
