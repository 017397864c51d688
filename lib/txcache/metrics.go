package txcache

import (
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

// Logger is the package logger.
var Logger = logger.GetLogger("txcache")

var (
	getHits        = metrics.NewCounter(`txcache_cache_hits_total{op="get"}`)
	getMisses      = metrics.NewCounter(`txcache_cache_misses_total{op="get"}`)
	getDeduped     = metrics.NewCounter(`txcache_fetch_dedup_total`)
	getKeyHits     = metrics.NewCounter(`txcache_cache_hits_total{op="getkey"}`)
	getKeyMisses   = metrics.NewCounter(`txcache_cache_misses_total{op="getkey"}`)
	rangeHits      = metrics.NewCounter(`txcache_cache_hits_total{op="getrange"}`)
	rangeMisses    = metrics.NewCounter(`txcache_cache_misses_total{op="getrange"}`)
	harvestedPairs = metrics.NewCounter(`txcache_harvested_pairs_total`)
	backendCalls   = metrics.NewCounter(`txcache_backend_calls_total`)
	backendErrors  = metrics.NewCounter(`txcache_backend_errors_total`)
	inconsistent   = metrics.NewCounter(`txcache_inconsistent_reads_total`)
)
