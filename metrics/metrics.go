package metrics

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/html2ndi/ndi-acceptor/types"
)

const (
	MetricsNamespace = "ndi_acceptor"
)

var (
	Debug                bool = true
	validResults              = []types.TestStatus{types.TestStatusPass, types.TestStatusFail, types.TestStatusSkip}
	validStopModes            = []string{"exited", "graceful", "forced"}
	nonAlphanumericRegex      = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	testCasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_cases_total",
		Help:      "Count of completed test cases by result",
	}, []string{
		"run_id",
		"name",
		"result",
	})

	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "verifications_total",
		Help:      "Count of verification outcomes by check and verdict",
	}, []string{
		"check",
		"verdict",
	})

	readinessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: MetricsNamespace,
		Name:      "worker_readiness_seconds",
		Help:      "Time from worker launch until its status interface answered",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{
		"ready",
	})

	workerStopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "worker_stops_total",
		Help:      "Count of worker teardowns by how the process ended",
	}, []string{
		"mode",
	})

	suiteResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_results",
		Help:      "Test case tallies of the last suite run",
	}, []string{
		"run_id",
		"counter",
	})

	suiteDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_duration_seconds",
		Help:      "Duration of the last suite run",
	}, []string{
		"run_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	if Debug {
		log.Debug("metric inc",
			"m", "errors_total",
			"error", error,
		)
	}
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	label = fmt.Sprintf("%s.%s", label, errToLabel(err))
	RecordError(label)
}

func RecordTestCase(runID string, name string, result types.TestStatus) {
	if !isValidResult(result) {
		log.Error("RecordTestCase - invalid result", "result", result)
		return
	}
	if Debug {
		log.Debug("metric inc",
			"m", "test_cases_total",
			"run_id", runID,
			"name", name,
			"result", result)
	}
	testCasesTotal.WithLabelValues(runID, name, string(result)).Inc()
}

// RecordVerification counts one verification outcome.
func RecordVerification(outcome types.Outcome) {
	verdict := "pass"
	switch {
	case outcome.Soft:
		verdict = "soft"
	case !outcome.Passed:
		verdict = "fail"
	}
	verificationsTotal.WithLabelValues(outcome.Check, verdict).Inc()
}

func RecordReadiness(ready bool, elapsed time.Duration) {
	readinessDuration.WithLabelValues(fmt.Sprintf("%t", ready)).Observe(elapsed.Seconds())
}

func RecordWorkerStop(mode string) {
	if !slices.Contains(validStopModes, mode) {
		log.Error("RecordWorkerStop - invalid mode", "mode", mode)
		return
	}
	workerStopsTotal.WithLabelValues(mode).Inc()
}

func RecordSuite(runID string, counters types.Counters, duration time.Duration) {
	suiteResults.WithLabelValues(runID, "run").Set(float64(counters.Run))
	suiteResults.WithLabelValues(runID, "passed").Set(float64(counters.Passed))
	suiteResults.WithLabelValues(runID, "failed").Set(float64(counters.Failed))
	suiteDuration.WithLabelValues(runID).Set(duration.Seconds())
}

func isValidResult(result types.TestStatus) bool {
	return slices.Contains(validResults, result)
}
