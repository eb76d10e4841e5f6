// Package harness runs end-to-end test sessions against the reconstruction tool.
//
// A session probes the tool's capabilities once, then runs every case in
// order. For each case the harness:
//
//  1. Gates the case on tags and declared requirements (skip with a reason)
//  2. Creates a fresh working directory
//  3. Fetches the case's data files into the cache (or the working directory
//     when caching is disabled)
//  4. Runs the dependency job, if any, then the reconstruction job
//  5. Validates the reconstruction output against the reference file
//  6. Collects *.log* files on failure and copies the working directory to
//     the save-results directory when requested
//
// # Determinism
//
// Run IDs come from an IDGenerator (UUIDv7 by default). Tests inject
// testutil.FixedRunIDGenerator and a fixed clock so reports render identically
// across runs.
//
// # Usage
//
//	specs, err := spec.Discover("cases", "")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h, err := harness.New(harness.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := h.Run(ctx, specs)
//
// Inside a Go test, RunTests maps every case onto a subtest.
package harness
