// Package metrics records per-run Prometheus metrics and writes them in the
// text exposition format for node_exporter's textfile collector. A run is a
// short-lived process, so there is no /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"webnotifier/internal/delivery"
	"webnotifier/internal/item"
)

const namespace = "webnotifier"

// Outcome labels for DeliveriesTotal. "failed" counts first-attempt
// failures, "abandoned" failed retries.
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// Run holds the metrics of one run. Each Run owns its registry; nothing is
// registered globally.
type Run struct {
	reg *prometheus.Registry

	ItemsExtracted  prometheus.Gauge
	ItemsInserted   prometheus.Gauge
	DeliveriesTotal *prometheus.CounterVec
	StoredItems     *prometheus.GaugeVec
	RunDuration     prometheus.Gauge
	LastRunSuccess  prometheus.Gauge
	LastRunTime     prometheus.Gauge
}

func New(source string) *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	labels := prometheus.Labels{"source": source}

	return &Run{
		reg: reg,
		ItemsExtracted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "items_extracted", ConstLabels: labels,
			Help: "Candidate items extracted from the page in the last run",
		}),
		ItemsInserted: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "items_inserted", ConstLabels: labels,
			Help: "New items stored in the last run",
		}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deliveries_total", ConstLabels: labels,
			Help: "Delivery attempts in the last run by outcome",
		}, []string{"outcome"}),
		StoredItems: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "stored_items", ConstLabels: labels,
			Help: "Items in the store by delivery status",
		}, []string{"status"}),
		RunDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "run_duration_seconds", ConstLabels: labels,
			Help: "Wall time of the last run",
		}),
		LastRunSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_success", ConstLabels: labels,
			Help: "1 if the last run completed, 0 if it was aborted",
		}),
		LastRunTime: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_run_timestamp_seconds", ConstLabels: labels,
			Help: "Unix time the last run finished",
		}),
	}
}

// ObserveReport adds the outcomes of a delivery run.
func (r *Run) ObserveReport(rep delivery.Report) {
	r.DeliveriesTotal.WithLabelValues(OutcomeSent).Add(float64(rep.Sent))
	r.DeliveriesTotal.WithLabelValues(OutcomeFailed).Add(float64(rep.FailedOnce))
	r.DeliveriesTotal.WithLabelValues(OutcomeAbandoned).Add(float64(rep.FailedFinal))
}

func (r *Run) SetStored(counts map[item.Status]int) {
	for _, s := range item.Statuses() {
		r.StoredItems.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}

// Finish records the end of the run.
func (r *Run) Finish(ok bool, took time.Duration, now time.Time) {
	r.RunDuration.Set(took.Seconds())
	r.LastRunTime.Set(float64(now.Unix()))
	if ok {
		r.LastRunSuccess.Set(1)
	} else {
		r.LastRunSuccess.Set(0)
	}
}

// WriteTextfile atomically replaces path with the current values.
func (r *Run) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
