package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if STANZA_TEST_SKIP_NETWORK is set.
// Use this for tests that require TCP/network connectivity which may
// not be available in sandboxed environments.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("STANZA_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: STANZA_TEST_SKIP_NETWORK is set")
	}
}

// RequireNATS returns the NATS server URL from STANZA_TEST_NATS_URL,
// skipping the test when it is unset.
func RequireNATS(t *testing.T) string {
	t.Helper()
	SkipIfNoNetwork(t)
	url := os.Getenv("STANZA_TEST_NATS_URL")
	if url == "" {
		t.Skip("STANZA_TEST_NATS_URL not set")
	}
	return url
}
