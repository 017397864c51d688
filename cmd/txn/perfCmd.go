package txn

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/txcache/cmd/util"
	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/ValentinKolb/txcache/lib/txcache"
	"github.com/ValentinKolb/txcache/rpc/common"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf",
		Short: "Compares cached and uncached transactions against a txcache server",
		Long: util.WrapString(`Every benchmark operation is one transaction that performs a number of reads over a small set of keys. ` +
			`The uncached variant sends every read to the server, the cached variant puts a cache in front of the transaction.`),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix    = "__perf"
	perfNumThreads   = 10
	perfKeySpread    = 100
	perfReadsPerTx   = 20
	perfRangeLimit   = 10
	perfSkip         = make([]string, 0)
	perfRegistry     = gometrics.NewRegistry()
	perfBackendCalls = gometrics.NewRegisteredCounter("backend-calls", perfRegistry)
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. get,range)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "reads-per-tx"
	perfTestCmd.Flags().Int(key, 20, util.WrapString("How many reads one transaction performs"))
	key = "range-limit"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("The limit of the range reads"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfReadsPerTx = max(viper.GetInt("reads-per-tx"), 1)
	perfRangeLimit = max(viper.GetInt("range-limit"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

// perfResult is the outcome of one benchmark
type perfResult struct {
	bench        testing.BenchmarkResult
	latency      gometrics.Timer
	backendCalls int64
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for txcache servers")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Threads: %d, Reads per transaction: %d\n", perfNumThreads, perfReadsPerTx)
	fmt.Println()

	if err := seedKeys(); err != nil {
		return fmt.Errorf("failed to write the test keys: %w", err)
	}
	defer func() {
		if err := clearKeys(); err != nil {
			log.Printf("error clearing the test keys: %v\n", err)
		}
	}()

	fmt.Println("staring tests...")

	tests := []struct {
		name   string
		cached bool
		read   func(ctx context.Context, r reader, i int) error
	}{
		{"get", false, readGet},
		{"get-cached", true, readGet},
		{"getkey", false, readGetKey},
		{"getkey-cached", true, readGetKey},
		{"range", false, readRange},
		{"range-cached", true, readRange},
	}

	results := make(map[string]perfResult)
	for _, test := range tests {
		if shouldSkip(test.name) {
			printResult(test.name, perfResult{})
			continue
		}
		result := benchmark(test.name, test.cached, test.read)
		results[test.name] = result
		printResult(test.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, util.GetClientConfig()); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// reader is the read side shared by the cached and the uncached transaction
type reader interface {
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	GetKey(ctx context.Context, sel keys.KeySelector) ([]byte, error)
	GetRange(ctx context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (keys.RangeResult, error)
}

// cachedReader adapts a cached transaction to reader
type cachedReader struct {
	tx *txcache.Transaction
}

func (c cachedReader) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	return c.tx.Get(ctx, key, false)
}

func (c cachedReader) GetKey(ctx context.Context, sel keys.KeySelector) ([]byte, error) {
	return c.tx.GetKey(ctx, sel, false)
}

func (c cachedReader) GetRange(ctx context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (keys.RangeResult, error) {
	return c.tx.GetRange(ctx, begin, end, opts)
}

// countingTransaction counts the reads that reach the server
type countingTransaction struct {
	store.ITransaction
}

func (c countingTransaction) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	perfBackendCalls.Inc(1)
	return c.ITransaction.Get(ctx, key)
}

func (c countingTransaction) GetKey(ctx context.Context, sel keys.KeySelector) ([]byte, error) {
	perfBackendCalls.Inc(1)
	return c.ITransaction.GetKey(ctx, sel)
}

func (c countingTransaction) GetRange(ctx context.Context, begin, end keys.KeySelector, opts keys.RangeOptions) (keys.RangeResult, error) {
	perfBackendCalls.Inc(1)
	return c.ITransaction.GetRange(ctx, begin, end, opts)
}

func readGet(ctx context.Context, r reader, i int) error {
	_, _, err := r.Get(ctx, perfKey(i))
	return err
}

func readGetKey(ctx context.Context, r reader, i int) error {
	_, err := r.GetKey(ctx, keys.FirstGreaterThan(perfKey(i)))
	return err
}

func readRange(ctx context.Context, r reader, i int) error {
	_, err := r.GetRange(ctx,
		keys.FirstGreaterOrEqual(perfKey(i)),
		keys.FirstGreaterOrEqual(keys.NamespaceEnd([]byte(perfKeyPrefix))),
		keys.RangeOptions{Limit: perfRangeLimit})
	return err
}

// benchmark runs transactions of perfReadsPerTx reads in parallel. Every
// transaction reads the keys of a small window so reads repeat.
func benchmark(name string, cached bool, read func(ctx context.Context, r reader, i int) error) perfResult {
	latency := gometrics.GetOrRegisterTimer(name, perfRegistry)
	perfBackendCalls.Clear()

	bench := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := runTransaction(cached, counter, read); err != nil {
					log.Printf("(%s) - error running transaction: %v\n", name, err)
				}
				latency.UpdateSince(start)
				counter++
			}
		})
	})

	return perfResult{bench: bench, latency: latency, backendCalls: perfBackendCalls.Count()}
}

func runTransaction(cached bool, counter int, read func(ctx context.Context, r reader, i int) error) error {
	ctx, cancel := commandContext()
	defer cancel()

	tx, err := remoteStore.NewTransaction(ctx)
	if err != nil {
		return err
	}
	backend := countingTransaction{tx}

	var r reader = backend
	var cache *txcache.Transaction
	if cached {
		cache = txcache.NewTransaction(backend)
		r = cachedReader{cache}
	}

	// a window of a quarter of the keys, shifted per transaction
	window := max(perfKeySpread/4, 1)
	for i := 0; i < perfReadsPerTx; i++ {
		if err := read(ctx, r, counter+i%window); err != nil {
			_ = tx.Abort(ctx)
			return err
		}
	}

	if cached {
		return cache.Abort(ctx)
	}
	return tx.Abort(ctx)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func perfKey(i int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", perfKeyPrefix, i%perfKeySpread))
}

// seedKeys writes the keys read by the benchmarks
func seedKeys() error {
	ctx, cancel := commandContext()
	defer cancel()

	tx, err := remoteStore.NewTransaction(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < perfKeySpread; i++ {
		if err := tx.Set(ctx, perfKey(i), []byte("test")); err != nil {
			_ = tx.Abort(ctx)
			return err
		}
	}
	return tx.Commit(ctx)
}

// clearKeys removes the keys written by seedKeys
func clearKeys() error {
	ctx, cancel := commandContext()
	defer cancel()

	tx, err := remoteStore.NewTransaction(ctx)
	if err != nil {
		return err
	}
	prefix := []byte(perfKeyPrefix)
	if err := tx.ClearRange(ctx, prefix, keys.NamespaceEnd(prefix)); err != nil {
		_ = tx.Abort(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.bench.N == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p99 := time.Duration(result.latency.Percentile(0.99))
	callsPerTx := float64(result.backendCalls) / float64(result.latency.Count())

	// Print the formatted result
	fmt.Printf("%-20s%s/tx\t%.0f tx/sec\tp99 %s\t%.1f server reads/tx\n",
		test, time.Duration(nsPerOp), opsPerSec, p99, callsPerTx)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult, config *common.ClientConfig) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	header := []string{
		"Test", "NsPerTx", "TxPerSec", "P50Ns", "P99Ns", "ServerReads",
		"Endpoints", "TimeoutSec", "RetryCount", "ConnectionsPerEndpoint",
		"Serializer", "Transport",
		"Threads", "ReadsPerTx", "Keys Count",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	// Write test results
	for test, result := range results {
		nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			fmt.Sprintf("%.0f", result.latency.Percentile(0.5)),
			fmt.Sprintf("%.0f", result.latency.Percentile(0.99)),
			strconv.FormatInt(result.backendCalls, 10),
			strings.Join(config.Transport.Endpoints, ";"),
			strconv.Itoa(config.TimeoutSecond),
			strconv.Itoa(config.Transport.RetryCount),
			strconv.Itoa(config.Transport.ConnectionsPerEndpoint),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfReadsPerTx),
			strconv.Itoa(perfKeySpread),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
