// Package testlog wires the test logging profile into package tests.
package testlog

import (
	"testing"

	"github.com/danmuck/wristlink/internal/logging"
	"github.com/rs/zerolog/log"
)

// Start configures test logging once and tags the test boundary.
func Start(t testing.TB) {
	t.Helper()
	logging.ConfigureTests()
	log.Debug().Str("test", t.Name()).Msg("test.start")
}
