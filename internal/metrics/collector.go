package metrics

import (
	prom "github.com/prometheus/client_golang/prometheus"
)

// Collector exposes a Registry to Prometheus. Every Collect call renders a
// single Registry snapshot, so one scrape is internally consistent.
//
// Families must be declared before the collector is registered: Describe
// reports the families known at that time.
type Collector struct {
	reg *Registry
}

// NewCollector returns a collector over reg.
func NewCollector(reg *Registry) *Collector {
	return &Collector{reg: reg}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prom.Desc) {
	for _, d := range c.reg.Descs() {
		ch <- promDesc(d)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prom.Metric) {
	snap := c.reg.Snapshot()
	for _, f := range snap.Families {
		desc := promDesc(f.Desc)
		vt := valueType(f.Desc.Kind)
		for _, s := range f.Samples {
			m, err := prom.NewConstMetric(desc, vt, s.Value, s.LabelValues...)
			if err != nil {
				ch <- prom.NewInvalidMetric(desc, err)
				continue
			}
			ch <- m
		}
	}
}

func promDesc(d Desc) *prom.Desc {
	return prom.NewDesc(d.Name, d.Help, d.LabelNames, nil)
}

func valueType(k Kind) prom.ValueType {
	if k == KindCounter {
		return prom.CounterValue
	}
	return prom.GaugeValue
}
