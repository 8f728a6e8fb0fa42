// Package metrics exposes session usage counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/custodia-labs/strata/internal/core/domain"
	"github.com/custodia-labs/strata/internal/core/ports/driving"
)

const namespace = "strata"

// Ensure Collector implements the interface.
var _ prometheus.Collector = (*Collector)(nil)

type counter struct {
	desc  *prometheus.Desc
	value func(domain.UsageSnapshot) int64
}

// Collector reads a usage snapshot on every scrape. Counters start over
// when the usage session is reset, which scrapers treat like a restart.
type Collector struct {
	usage    driving.UsageService
	counters []counter
	savings  *prometheus.Desc
}

// NewCollector creates a collector over usage.
func NewCollector(usage driving.UsageService) *Collector {
	c := func(name, help string, value func(domain.UsageSnapshot) int64) counter {
		return counter{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil),
			value: value,
		}
	}
	return &Collector{
		usage: usage,
		counters: []counter{
			c("decisions_text_only_total", "Blocks routed to text-only extraction.",
				func(u domain.UsageSnapshot) int64 { return u.TextOnlyDecisions }),
			c("decisions_vision_total", "Blocks routed to vision extraction.",
				func(u domain.UsageSnapshot) int64 { return u.VisionDecisions }),
			c("vision_calls_saved_total", "Table and image blocks that avoided a vision call.",
				func(u domain.UsageSnapshot) int64 { return u.VisionAvoided }),
			c("vision_calls_total", "Vision model calls made.",
				func(u domain.UsageSnapshot) int64 { return u.VisionCalls }),
			c("vision_failures_total", "Vision model calls that failed.",
				func(u domain.UsageSnapshot) int64 { return u.VisionFailures }),
			c("embedding_calls_total", "Embedding model calls made.",
				func(u domain.UsageSnapshot) int64 { return u.EmbeddingCalls }),
			c("completion_calls_total", "Completion model calls made.",
				func(u domain.UsageSnapshot) int64 { return u.CompletionCalls }),
			c("cache_hits_total", "Embedding requests served from cache.",
				func(u domain.UsageSnapshot) int64 { return u.CacheHits }),
			c("queries_total", "Queries answered.",
				func(u domain.UsageSnapshot) int64 { return u.Queries }),
			c("blocks_downgraded_total", "Blocks extracted with the cheap path after vision was unavailable.",
				func(u domain.UsageSnapshot) int64 { return u.BlocksDowngraded }),
			c("blocks_failed_total", "Blocks that produced no text.",
				func(u domain.UsageSnapshot) int64 { return u.BlocksFailed }),
			c("input_tokens_total", "Prompt tokens reported by completion models.",
				func(u domain.UsageSnapshot) int64 { return u.InputTokens }),
			c("output_tokens_total", "Generated tokens reported by completion models.",
				func(u domain.UsageSnapshot) int64 { return u.OutputTokens }),
		},
		savings: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "savings_ratio"),
			"Share of routing decisions that avoided a vision call.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.counters {
		ch <- m.desc
	}
	ch <- c.savings
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.usage.Snapshot()
	for _, m := range c.counters {
		ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, float64(m.value(snap)))
	}
	ch <- prometheus.MustNewConstMetric(c.savings, prometheus.GaugeValue, snap.SavingsRatio())
}

// Handler returns an HTTP handler serving the usage metrics.
func Handler(usage driving.UsageService) http.Handler {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewCollector(usage))
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
