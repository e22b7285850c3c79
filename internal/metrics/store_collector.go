package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/database"
	"github.com/BLINK-sys/Printer-WEB-APIServer/internal/logging"
)

const collectTimeout = 5 * time.Second

// StoreCollector reads the dashboard counters at scrape time
type StoreCollector struct {
	store database.StatsStore
	now   func() time.Time

	users        *prometheus.Desc
	activeTrials *prometheus.Desc
	keys         *prometheus.Desc
	revenue      *prometheus.Desc
	scrapeErrors *prometheus.Desc
}

func NewStoreCollector(store database.StatsStore) *StoreCollector {
	return &StoreCollector{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		users: prometheus.NewDesc("license_users", "Registered accounts by role",
			[]string{"role"}, nil),
		activeTrials: prometheus.NewDesc("license_active_trials", "Devices inside their trial window", nil, nil),
		keys: prometheus.NewDesc("license_keys", "Activation keys by lifecycle state",
			[]string{"status"}, nil),
		revenue:      prometheus.NewDesc("license_revenue_total", "Sum of recorded sale prices", nil, nil),
		scrapeErrors: prometheus.NewDesc("license_store_scrape_error", "1 if the last store read failed", nil, nil),
	}
}

func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.users
	ch <- c.activeTrials
	ch <- c.keys
	ch <- c.revenue
	ch <- c.scrapeErrors
}

func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	stats, err := c.store.Stats(ctx, c.now())
	if err != nil {
		logging.WithComponent("metrics").WithError(err).Warn("Failed to collect store stats")
		ch <- prometheus.MustNewConstMetric(c.scrapeErrors, prometheus.GaugeValue, 1)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeErrors, prometheus.GaugeValue, 0)

	ch <- prometheus.MustNewConstMetric(c.users, prometheus.GaugeValue, float64(stats.AdminUsers), "admin")
	ch <- prometheus.MustNewConstMetric(c.users, prometheus.GaugeValue, float64(stats.TotalUsers-stats.AdminUsers), "client")
	ch <- prometheus.MustNewConstMetric(c.activeTrials, prometheus.GaugeValue, float64(stats.ActiveTrials))
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(stats.AvailableKeys), string(database.KeyStatusAvailable))
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(stats.SoldKeys), string(database.KeyStatusSold))
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(stats.ActiveKeys), "active")
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(stats.TotalKeys), "all")
	ch <- prometheus.MustNewConstMetric(c.revenue, prometheus.GaugeValue, stats.Revenue)
}
