package egress

import (
	"testing"

	"github.com/FerroO2000/buritto/internal/telemetry"
)

func testTelemetry(t *testing.T) *telemetry.Telemetry {
	t.Helper()

	return telemetry.NewTelemetry("test")
}
