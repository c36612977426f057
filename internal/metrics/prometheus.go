package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "apr_signal_bot"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry          *prometheus.Registry
	evaluations       prometheus.Counter
	opportunities     prometheus.Counter
	admissionRejected prometheus.Counter
	alertsSent        prometheus.Counter
	alertsSuppressed  prometheus.Counter
	notifyFailed      prometheus.Counter
	feedErrors        prometheus.Counter
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	evaluations := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "evaluations_total",
		Help:      "Total number of strategy evaluations over market snapshots.",
	})
	opportunities := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "opportunities_total",
		Help:      "Total number of opportunities emitted by strategies.",
	})
	admissionRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "admission_rejected_total",
		Help:      "Total number of opportunities rejected by admission gates.",
	})
	alertsSent := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "alerts_sent_total",
		Help:      "Total number of alerts delivered to at least one channel.",
	})
	alertsSuppressed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "alerts_suppressed_total",
		Help:      "Total number of alerts suppressed by the cooldown gate.",
	})
	notifyFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "notify_failed_total",
		Help:      "Total number of notifier delivery failures.",
	})
	feedErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "feed_errors_total",
		Help:      "Total number of market feed fetch failures.",
	})

	registry.MustRegister(evaluations, opportunities, admissionRejected, alertsSent, alertsSuppressed, notifyFailed, feedErrors)

	m := &Metrics{
		EvaluationsRun:     promCounter{evaluations},
		OpportunitiesFound: promCounter{opportunities},
		AdmissionRejected:  promCounter{admissionRejected},
		AlertsSent:         promCounter{alertsSent},
		AlertsSuppressed:   promCounter{alertsSuppressed},
		NotifyFailed:       promCounter{notifyFailed},
		FeedErrors:         promCounter{feedErrors},
	}

	return &Prometheus{
		Metrics:           m,
		registry:          registry,
		evaluations:       evaluations,
		opportunities:     opportunities,
		admissionRejected: admissionRejected,
		alertsSent:        alertsSent,
		alertsSuppressed:  alertsSuppressed,
		notifyFailed:      notifyFailed,
		feedErrors:        feedErrors,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
