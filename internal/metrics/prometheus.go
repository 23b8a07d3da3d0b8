package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "crypto_client"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type promVenueCounter struct {
	vec *prometheus.CounterVec
}

func (p promVenueCounter) Inc(venue string) {
	p.vec.WithLabelValues(venue).Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	ordersPlaced     *prometheus.CounterVec
	ordersFailed     *prometheus.CounterVec
	ordersCanceled   *prometheus.CounterVec
	partialSuccesses *prometheus.CounterVec
	endpointFailures prometheus.Counter
	idPoolRefills    prometheus.Counter
}

func newVenueCounter(name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	}, []string{"venue"})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	ordersPlaced := newVenueCounter("orders_placed_total", "Total number of orders placed.")
	ordersFailed := newVenueCounter("orders_failed_total", "Total number of order placement failures.")
	ordersCanceled := newVenueCounter("orders_canceled_total", "Total number of orders canceled.")
	partialSuccesses := newVenueCounter("partial_successes_total", "Total number of broadcast transactions whose order could not be resolved.")
	endpointFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "endpoint_failures_total",
		Help:      "Total number of failed chain endpoint attempts.",
	})
	idPoolRefills := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      "id_pool_refills_total",
		Help:      "Total number of order id pool refills.",
	})

	registry.MustRegister(ordersPlaced, ordersFailed, ordersCanceled, partialSuccesses, endpointFailures, idPoolRefills)

	m := &Metrics{
		OrdersPlaced:     promVenueCounter{ordersPlaced},
		OrdersFailed:     promVenueCounter{ordersFailed},
		OrdersCanceled:   promVenueCounter{ordersCanceled},
		PartialSuccesses: promVenueCounter{partialSuccesses},
		EndpointFailures: promCounter{endpointFailures},
		IDPoolRefills:    promCounter{idPoolRefills},
	}

	return &Prometheus{
		Metrics:          m,
		registry:         registry,
		ordersPlaced:     ordersPlaced,
		ordersFailed:     ordersFailed,
		ordersCanceled:   ordersCanceled,
		partialSuccesses: partialSuccesses,
		endpointFailures: endpointFailures,
		idPoolRefills:    idPoolRefills,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
