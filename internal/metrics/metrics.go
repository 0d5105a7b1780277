// Package metrics exposes the named-pipe subsystem's counters and gauges
// through prometheus/client_golang, the metrics stack carried over from
// the teacher's own dependency set rather than invented for this server.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Recorder implements pipe.Metrics against a Prometheus registry.
type Recorder struct {
	instances   *prometheus.GaugeVec
	connected   *prometheus.GaugeVec
	queueDepth  *prometheus.GaugeVec
	reselects   prometheus.Counter
}

// NewRecorder registers the subsystem's metrics with reg and returns a
// Recorder ready to be passed to pipe.WithMetrics.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		instances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "npserver",
			Subsystem: "pipe",
			Name:      "instances",
			Help:      "Number of server instances currently open for a named pipe.",
		}, []string{"pipe"}),
		connected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "npserver",
			Subsystem: "pipe",
			Name:      "connected_servers",
			Help:      "Number of server instances of a named pipe currently connected to a client.",
		}, []string{"pipe"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "npserver",
			Subsystem: "pipe",
			Name:      "message_queue_depth",
			Help:      "Number of unread messages queued on a message-mode pipe end.",
		}, []string{"pipe", "end"}),
		reselects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "npserver",
			Subsystem: "pipe",
			Name:      "reselects_total",
			Help:      "Number of times a pipe end's read queue was re-examined after a state change.",
		}),
	}
	reg.MustRegister(r.instances, r.connected, r.queueDepth, r.reselects)
	return r
}

func (r *Recorder) SetInstances(pipeName string, n int) {
	r.instances.WithLabelValues(pipeName).Set(float64(n))
}

func (r *Recorder) SetConnected(pipeName string, n int) {
	r.connected.WithLabelValues(pipeName).Set(float64(n))
}

func (r *Recorder) SetQueueDepth(pipeName, end string, n int) {
	r.queueDepth.WithLabelValues(pipeName, end).Set(float64(n))
}

func (r *Recorder) IncReselect() {
	r.reselects.Inc()
}
