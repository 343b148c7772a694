// Package metrics holds the exporter's metric registry and its Prometheus
// exposition.
//
// The Registry is a small, explicitly constructed store of metric families
// (counters, gauges and last-value durations) behind one mutex. Nothing here
// is global: the daemon builds one Registry, declares the catalogue on it and
// injects it where needed.
//
// Writers do not touch the Registry directly. They receive a Recorder, with
// NoopRecorder as the default and RegistryRecorder in production:
//
//	reg := metrics.NewRegistry()
//	rec, err := metrics.NewRegistryRecorder(reg, logger)
//	tr := tracker.New(tracker.WithRecorder(rec))
//
// Readers go through Collector, which renders one Snapshot per scrape into
// Prometheus const metrics, and HTTPHandler, which serves it with promhttp.
package metrics
