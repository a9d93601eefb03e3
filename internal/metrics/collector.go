package metrics

import (
	"time"

	"media-forensics/internal/logging"
)

// StatsProvider interface for collecting stats
type StatsProvider interface {
	GetStats() Stats
}

// StatsProviderFunc adapts a function to StatsProvider.
type StatsProviderFunc func() Stats

// GetStats implements StatsProvider.
func (f StatsProviderFunc) GetStats() Stats {
	return f()
}

// Stats holds the current statistics
type Stats struct {
	RenditionSets map[string]int // by layout, plus "legacy"
	StorageBytes  int64
	Fingerprints  int
}

// Collector periodically collects and updates metrics
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	for _, layout := range []string{"v1", "v2", "legacy"} {
		RenditionSetsTotal.WithLabelValues(layout).Set(float64(stats.RenditionSets[layout]))
	}
	RenditionStorageBytes.Set(float64(stats.StorageBytes))
	FingerprintsTotal.Set(float64(stats.Fingerprints))

	logging.Debug("Metrics collected: sets=%v, bytes=%d, fingerprints=%d",
		stats.RenditionSets, stats.StorageBytes, stats.Fingerprints)
}
