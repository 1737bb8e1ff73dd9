package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveCycle(t *testing.T) {
	before := testutil.ToFloat64(CycleOutcomes.WithLabelValues("destinations", "pass"))

	ObserveCycle("destinations", "pass", 2)

	assert.Equal(t, before+1, testutil.ToFloat64(CycleOutcomes.WithLabelValues("destinations", "pass")))
}
