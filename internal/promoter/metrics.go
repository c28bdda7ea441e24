package promoter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/simplesurance/stagepromote/internal/logfields"
)

const metricNamespace = "stagepromote"

const (
	runsMetricName    = "runs_total"
	mergesMetricName  = "merges_total"
	skippedMetricName = "skipped_prs_total"
)

const (
	resultLabel = "result"
	reasonLabel = "reason"
)

type mergeResultLabelVal string

const (
	mergeResultSuccessVal   mergeResultLabelVal = "success"
	mergeResultFailureVal   mergeResultLabelVal = "failure"
	mergeResultSimulatedVal mergeResultLabelVal = "simulated"
)

type metricCollector struct {
	logger  *zap.Logger
	runs    *prometheus.CounterVec
	merges  *prometheus.CounterVec
	skipped *prometheus.CounterVec
}

var metrics = newMetricCollector()

func newMetricCollector() *metricCollector {
	return &metricCollector{
		logger: zap.L().Named(loggerName).Named("metrics"),
		runs: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      runsMetricName,
				Help:      "count of promoter runs by result",
			},
			[]string{resultLabel},
		),
		merges: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      mergesMetricName,
				Help:      "count of pull request merge operations by result",
			},
			[]string{resultLabel},
		),
		skipped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricNamespace,
				Name:      skippedMetricName,
				Help:      "count of pull requests that were not merged by reason",
			},
			[]string{reasonLabel},
		),
	}
}

func (m *metricCollector) logGetMetricFailed(metricName string, err error) {
	m.logger.Warn(
		"could not record metric",
		zap.String("metric", metricName),
		logfields.Event("recording_metric_failed"),
		zap.Error(err),
	)
}

func (m *metricCollector) RunsInc(result RunResult) {
	cnt, err := m.runs.GetMetricWith(prometheus.Labels{resultLabel: string(result)})
	if err != nil {
		m.logGetMetricFailed(runsMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) MergesInc(result mergeResultLabelVal) {
	cnt, err := m.merges.GetMetricWith(prometheus.Labels{resultLabel: string(result)})
	if err != nil {
		m.logGetMetricFailed(mergesMetricName, err)
		return
	}

	cnt.Inc()
}

func (m *metricCollector) SkippedInc(reason SkipReason) {
	cnt, err := m.skipped.GetMetricWith(prometheus.Labels{reasonLabel: string(reason)})
	if err != nil {
		m.logGetMetricFailed(skippedMetricName, err)
		return
	}

	cnt.Inc()
}
