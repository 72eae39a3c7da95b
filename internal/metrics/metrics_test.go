// SPDX-License-Identifier: MIT
package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterIsIdempotent(t *testing.T) {
	Register()
	Register()

	if err := prometheus.DefaultRegisterer.Register(Sessions); err == nil {
		t.Error("expected AlreadyRegisteredError for a collector registered by Register")
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(HapticCommands.WithLabelValues("stop"))
	HapticCommands.WithLabelValues("stop").Inc()
	if got := testutil.ToFloat64(HapticCommands.WithLabelValues("stop")); got != before+1 {
		t.Errorf("stop commands = %v, want %v", got, before+1)
	}
}
