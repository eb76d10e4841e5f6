package harness

import (
	"testing"

	"github.com/roopchansinghv/pingvin/internal/spec"
)

// RunTests runs every spec as a subtest of t named after the case.
//
// Gated cases call t.Skip with the gate's reason and each failure message is
// reported with t.Error. Captured logs are attached with t.Log. The session
// report is returned for further assertions.
//
// Results are not recorded; use Run for sessions that keep history.
func RunTests(t *testing.T, h *Harness, specs []*spec.Spec) *Report {
	t.Helper()

	caps, err := h.prepare(t.Context(), specs)
	if err != nil {
		t.Fatalf("failed to prepare session: %v", err)
	}

	report := h.newReport(caps)
	for _, s := range specs {
		t.Run(s.ID(), func(t *testing.T) {
			res := h.RunCase(t.Context(), s, caps)
			report.add(res)

			switch res.Status {
			case StatusSkip:
				t.Skip(res.Reason)
			case StatusFail:
				for _, msg := range res.Errors {
					t.Error(msg)
				}
				for _, l := range res.Logs {
					t.Logf("--- %s ---\n%s", l.Name, l.Content)
				}
			}
		})
	}
	return report
}
