package testutil

import (
	"flag"
	"testing"
)

var Integration = flag.Bool("integration", false, "run integration tests")

// SkipIfNotIntegration skips the test if -integration flag is not set (for integration tests)
func SkipIfNotIntegration(t *testing.T) {
	if !*Integration {
		t.Skip("Skipping integration test")
	}
}
