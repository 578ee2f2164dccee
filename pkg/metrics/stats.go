package metrics

// calculateStats calculates basic statistics for metric values
func calculateStats(values []TimestampedValue) (avg, peak, min, current float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}

	sum := 0.0
	peak = values[0].Value
	min = values[0].Value
	current = values[len(values)-1].Value

	for _, v := range values {
		sum += v.Value
		if v.Value > peak {
			peak = v.Value
		}
		if v.Value < min {
			min = v.Value
		}
	}

	avg = sum / float64(len(values))
	return avg, peak, min, current
}

// calculateTrend compares the last value with the first, with a 10% dead band.
func calculateTrend(values []TimestampedValue) string {
	if len(values) < 2 {
		return "stable"
	}

	first := values[0].Value
	last := values[len(values)-1].Value
	diff := last - first

	if diff > first*0.1 {
		return "increasing"
	} else if diff < -first*0.1 {
		return "decreasing"
	}
	return "stable"
}

// calculateUtilization grades a usage percentage of a limit.
func calculateUtilization(percent float64) string {
	if percent > 90 {
		return "critical"
	} else if percent > 70 {
		return "high"
	} else if percent > 30 {
		return "medium"
	}
	return "low"
}

func newMetricValue(q PrometheusQuery, values []TimestampedValue) MetricValue {
	avg, peak, min, current := calculateStats(values)
	return MetricValue{
		Name:    q.Name,
		Unit:    q.Unit,
		Values:  values,
		Average: avg,
		Peak:    peak,
		Minimum: min,
		Current: current,
		Trend:   calculateTrend(values),
	}
}
