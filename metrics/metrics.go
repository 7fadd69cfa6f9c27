// Package metrics holds the Prometheus collectors of the worker and catalog
// server binaries.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chirpsounder"

// Worker bundles the metrics of one analysis worker.
type Worker struct {
	gatherer prometheus.Gatherer

	IonogramsWritten prometheus.Counter
	WriteErrors      prometheus.Counter
	Skipped          prometheus.Counter
	MissingWindows   prometheus.Counter
	Claims           *prometheus.CounterVec
	Processing       prometheus.Histogram
	Waiting          prometheus.Histogram
	Speed            prometheus.Gauge
}

// NewWorker registers the worker metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewWorker(reg prometheus.Registerer) (*Worker, error) {
	reg, gatherer := defaults(reg)
	w := &Worker{gatherer: gatherer}
	var err error

	if w.IonogramsWritten, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ionograms_written_total",
		Help:      "Number of ionogram files written.",
	})); err != nil {
		return nil, err
	}
	if w.WriteErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ionogram_write_errors_total",
		Help:      "Number of transmissions abandoned because the ionogram could not be written.",
	})); err != nil {
		return nil, err
	}
	if w.Skipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transmissions_skipped_total",
		Help:      "Number of transmissions rejected by filters.",
	})); err != nil {
		return nil, err
	}
	if w.MissingWindows, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "missing_windows_total",
		Help:      "Number of downconversion windows zero filled because samples were unavailable.",
	})); err != nil {
		return nil, err
	}
	if w.Claims, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_total",
		Help:      "Claim attempts on detected transmissions, labeled by result.",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if w.Processing, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "processing_seconds",
		Help:      "Wall clock time spent downconverting one transmission, excluding waits.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 50, 100, 200, 500},
	})); err != nil {
		return nil, err
	}
	if w.Waiting, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "waiting_seconds",
		Help:      "Time spent waiting for the recording to catch up, per transmission.",
		Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500},
	})); err != nil {
		return nil, err
	}
	if w.Speed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_speed",
		Help:      "Expected duration over processing time of the last transmission.",
	})); err != nil {
		return nil, err
	}
	return w, nil
}

// ObserveClaim counts a claim attempt.
func (w *Worker) ObserveClaim(won bool) {
	if w == nil {
		return
	}
	result := "lost"
	if won {
		result = "won"
	}
	w.Claims.WithLabelValues(result).Inc()
}

func (w *Worker) Handler() http.Handler {
	return promhttp.HandlerFor(w.gatherer, promhttp.HandlerOpts{})
}

// Server bundles the metrics of the catalog server.
type Server struct {
	gatherer prometheus.Gatherer

	SummariesCollected prometheus.Counter
	CollectErrors      prometheus.Counter
}

func NewServer(reg prometheus.Registerer) (*Server, error) {
	reg, gatherer := defaults(reg)
	s := &Server{gatherer: gatherer}
	var err error

	if s.SummariesCollected, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "summaries_collected_total",
		Help:      "Number of ionogram summaries received from workers.",
	})); err != nil {
		return nil, err
	}
	if s.CollectErrors, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "collect_errors_total",
		Help:      "Number of rejected collect requests.",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

func defaults(reg prometheus.Registerer) (prometheus.Registerer, prometheus.Gatherer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	return reg, gatherer
}

// register returns the already registered collector of the same type if
// there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return c, fmt.Errorf("collector %T already registered with incompatible type", c)
		}
		return c, err
	}
	return c, nil
}
