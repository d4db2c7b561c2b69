package metrics

import (
	"fmt"

	dto "github.com/prometheus/client_model/go"
)

func findMetricFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

// fetchCounterValue returns the counter of the first series carrying label=value.
func fetchCounterValue(families []*dto.MetricFamily, name, label, value string) (float64, error) {
	family := findMetricFamily(families, name)
	if family == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, series := range family.GetMetric() {
		for _, pair := range series.GetLabel() {
			if pair.GetName() == label && pair.GetValue() == value {
				return series.GetCounter().GetValue(), nil
			}
		}
	}
	return 0, fmt.Errorf("metric %q has no series with %s=%s", name, label, value)
}
