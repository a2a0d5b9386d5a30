package prom

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// DBCollector reports badger size stats for the entity store.
type DBCollector struct {
	db *badger.DB

	lsmSize  *prometheus.Desc
	vlogSize *prometheus.Desc
}

// RegisterDBCollector creates a metric collector for the given database.
func RegisterDBCollector(name string, db *badger.DB) {
	if metrics {
		prometheus.Register(NewDBCollector(name, db))
	}
}

func NewDBCollector(name string, db *badger.DB) *DBCollector {
	labels := prometheus.Labels{"db_name": name}
	return &DBCollector{
		db: db,
		lsmSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "lsm_size_bytes"),
			"Size of the store's LSM tree on disk",
			nil, labels,
		),
		vlogSize: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db", "vlog_size_bytes"),
			"Size of the store's value log on disk",
			nil, labels,
		),
	}
}

func (c *DBCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.lsmSize
	ch <- c.vlogSize
}

func (c *DBCollector) Collect(ch chan<- prometheus.Metric) {
	lsm, vlog := c.db.Size()
	ch <- prometheus.MustNewConstMetric(c.lsmSize, prometheus.GaugeValue, float64(lsm))
	ch <- prometheus.MustNewConstMetric(c.vlogSize, prometheus.GaugeValue, float64(vlog))
}
