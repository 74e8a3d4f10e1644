// Package telemetry is the engine's machine-readable introspection
// surface: a JSON snapshot endpoint, a Prometheus /metrics endpoint,
// and a WebSocket stream of detector notifications. It is a data
// surface only — it never renders anything and holds no HTML templates
// or static assets, unlike the dashboard it is adapted from.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics the engine exposes: per
// segment occupancy/flow/mean-speed gauges and a running count of
// detector notifications by reason, registered against reg (or the
// default global registry when reg is nil).
type Collector struct {
	gatherer prometheus.Gatherer

	SegmentOccupancy *prometheus.GaugeVec
	SegmentMeanSpeed *prometheus.GaugeVec
	SegmentFlow      *prometheus.GaugeVec
	SegmentCarCount  *prometheus.GaugeVec
	Notifications    *prometheus.CounterVec
}

// NewCollector registers the engine's metrics against reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	occupancy, err := registerGaugeVec(reg, "meso_segment_occupancy",
		"Current occupancy in length-units for each segment.", []string{"segment"})
	if err != nil {
		return nil, err
	}
	meanSpeed, err := registerGaugeVec(reg, "meso_segment_mean_speed",
		"Cached mean speed in metres per second for each segment.", []string{"segment"})
	if err != nil {
		return nil, err
	}
	flow, err := registerGaugeVec(reg, "meso_segment_flow",
		"Estimated vehicles-per-hour flow for each segment.", []string{"segment"})
	if err != nil {
		return nil, err
	}
	carCount, err := registerGaugeVec(reg, "meso_segment_car_count",
		"Number of vehicles currently queued in each segment.", []string{"segment"})
	if err != nil {
		return nil, err
	}
	notifications, err := registerCounterVec(reg, "meso_detector_notifications_total",
		"Count of detector notifications fired, labeled by reason.", []string{"reason"})
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:          gatherer,
		SegmentOccupancy:  occupancy,
		SegmentMeanSpeed:  meanSpeed,
		SegmentFlow:       flow,
		SegmentCarCount:   carCount,
		Notifications:     notifications,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// RecordNotification increments the notification counter for reason.
func (c *Collector) RecordNotification(reason string) {
	if c == nil || c.Notifications == nil {
		return
	}
	c.Notifications.WithLabelValues(reason).Inc()
}

// RecordSegment updates every per-segment gauge for one segment snapshot.
func (c *Collector) RecordSegment(id string, occupancy, meanSpeed, flow float64, carCount int) {
	if c == nil {
		return
	}
	if c.SegmentOccupancy != nil {
		c.SegmentOccupancy.WithLabelValues(id).Set(occupancy)
	}
	if c.SegmentMeanSpeed != nil {
		c.SegmentMeanSpeed.WithLabelValues(id).Set(meanSpeed)
	}
	if c.SegmentFlow != nil {
		c.SegmentFlow.WithLabelValues(id).Set(flow)
	}
	if c.SegmentCarCount != nil {
		c.SegmentCarCount.WithLabelValues(id).Set(float64(carCount))
	}
}

func registerGaugeVec(reg prometheus.Registerer, name, help string, labels []string) (*prometheus.GaugeVec, error) {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounterVec(reg prometheus.Registerer, name, help string, labels []string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
