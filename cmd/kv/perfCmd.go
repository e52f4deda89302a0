package kv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/kvdown/cmd/util"
	"github.com/ValentinKolb/kvdown/lib/down"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for kvdown stores",
		Long:    "Runs a set of benchmarks (put, put-large, get, del, batch, iter, mixed) against the store selected by --backend and --location and prints throughput and latency percentiles.",
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfKeyPrefix        = "__test"
	perfLargeValueSizeKB = 100
	perfNumThreads       = 10
	perfKeySpread        = 100
	perfBatchSize        = 10
	perfSkip             = make([]string, 0)

	// perfRegistry holds one latency timer and one error counter per benchmark
	perfRegistry = metrics.NewRegistry()
)

func init() {
	// add flags
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. put,get)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of threads to use for the benchmark"))
	key = "large-value-size"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How large the value for the put-large test should be (in KB)"))
	key = "keys"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "batch-size"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("How many operations one batch of the batch test holds"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// Read the configuration from the command line flags and environment variables
	perfLargeValueSizeKB = viper.GetInt("large-value-size")
	perfKeySpread = max(viper.GetInt("keys"), 1)
	perfNumThreads = max(viper.GetInt("threads"), 1)
	perfBatchSize = max(viper.GetInt("batch-size"), 1)
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return open(cmd)
}

// benchmark describes one perf test. setup runs once before the timed loop,
// op is called by every worker with an increasing counter.
type benchmark struct {
	name  string
	setup func(ctx context.Context, keys [][]byte)
	op    func(ctx context.Context, keys [][]byte, i int) error
}

func benchmarks() []benchmark {
	value := []byte("test")
	largeValue := make([]byte, perfLargeValueSizeKB*1024)

	fill := func(ctx context.Context, keys [][]byte) {
		ops := make([]down.BatchOp, len(keys))
		for i, k := range keys {
			ops[i] = down.BatchOp{Type: down.BatchPut, Key: k, Value: value}
		}
		if err := driver.Batch(ctx, ops, nil); err != nil {
			fmt.Printf("error filling keys: %v\n", err)
		}
	}

	return []benchmark{
		{
			name: "put",
			op: func(ctx context.Context, keys [][]byte, i int) error {
				return driver.Put(ctx, keys[i%len(keys)], value, nil)
			},
		},
		{
			name: "put-large",
			op: func(ctx context.Context, keys [][]byte, i int) error {
				return driver.Put(ctx, keys[i%len(keys)], largeValue, nil)
			},
		},
		{
			name:  "get",
			setup: fill,
			op: func(ctx context.Context, keys [][]byte, i int) error {
				_, err := driver.Get(ctx, keys[i%len(keys)])
				return err
			},
		},
		{
			name:  "del",
			setup: fill,
			op: func(ctx context.Context, keys [][]byte, i int) error {
				return driver.Delete(ctx, keys[i%len(keys)], nil)
			},
		},
		{
			name: "batch",
			op: func(ctx context.Context, keys [][]byte, i int) error {
				ops := make([]down.BatchOp, perfBatchSize)
				for j := range ops {
					ops[j] = down.BatchOp{Type: down.BatchPut, Key: keys[(i+j)%len(keys)], Value: value}
				}
				return driver.Batch(ctx, ops, nil)
			},
		},
		{
			name:  "iter",
			setup: fill,
			op: func(ctx context.Context, keys [][]byte, i int) error {
				it, err := driver.NewIterator(ctx, &down.IteratorOptions{Gte: keys[i%len(keys)], Limit: down.Limit(10)})
				if err != nil {
					return err
				}
				for it.Next(ctx) {
				}
				if err := it.Err(); err != nil {
					_ = it.Close()
					return err
				}
				return it.Close()
			},
		},
		{
			name:  "mixed",
			setup: fill,
			op: func(ctx context.Context, keys [][]byte, i int) error {
				key := keys[i%len(keys)]
				switch i % 4 {
				case 0:
					return driver.Put(ctx, key, value, nil)
				case 1:
					_, err := driver.Get(ctx, key)
					return err
				case 2:
					return driver.Delete(ctx, key, nil)
				default:
					_, err := driver.ApproximateSize(ctx, key, key)
					return err
				}
			},
		},
	}
}

func run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	fmt.Println("Performance testing tool for kvdown stores")

	// Print configuration
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("Backend: %s\n", viper.GetString("backend"))
	fmt.Printf("Location: %s\n", driver.Location)
	if driver.Backend != nil {
		fmt.Println(util.GetClientConfig().String())
	}
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	results := make(map[string]testing.BenchmarkResult)
	for _, bm := range benchmarks() {
		if shouldSkip(bm.name) {
			results[bm.name] = testing.BenchmarkResult{}
			printResult(bm.name, testing.BenchmarkResult{})
			continue
		}
		result := runBenchmark(ctx, bm)
		results[bm.name] = result
		printResult(bm.name, result)
	}

	// Write results to csv is specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// runBenchmark runs bm in parallel and records the latency of every op
func runBenchmark(ctx context.Context, bm benchmark) testing.BenchmarkResult {
	timer := metrics.GetOrRegisterTimer(bm.name+".latency", perfRegistry)
	failures := metrics.GetOrRegisterCounter(bm.name+".errors", perfRegistry)
	keys := getKeys(bm.name)

	return testing.Benchmark(func(b *testing.B) {
		if bm.setup != nil {
			bm.setup(ctx, keys)
		}

		// cleanup
		b.Cleanup(func() {
			for _, k := range keys {
				if err := driver.Delete(ctx, k, nil); err != nil && !errors.Is(err, down.ErrNotFound) {
					fmt.Printf("(%s) - error deleting key: %v\n", bm.name, err)
				}
			}
		})

		b.SetParallelism(perfNumThreads)
		b.ResetTimer()

		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				err := bm.op(ctx, keys, counter)
				timer.UpdateSince(start)

				// deleted keys are expected in the del and mixed tests
				if err != nil && !errors.Is(err, down.ErrNotFound) {
					failures.Inc(1)
				}
				counter++
			}
		})
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == strings.TrimSpace(skip) {
			return true
		}
	}
	return false
}

// getKeys creates the test keys of a benchmark
func getKeys(prefix string) [][]byte {
	keys := make([][]byte, perfKeySpread)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("%s-%s-%d", perfKeyPrefix, prefix, i))
	}
	return keys
}

// latency returns the p50 and p99 latency and the error count of a test
func latency(test string) (p50, p99 time.Duration, failures int64) {
	if timer, ok := perfRegistry.Get(test + ".latency").(metrics.Timer); ok {
		ps := timer.Percentiles([]float64{0.5, 0.99})
		p50, p99 = time.Duration(ps[0]), time.Duration(ps[1])
	}
	if counter, ok := perfRegistry.Get(test + ".errors").(metrics.Counter); ok {
		failures = counter.Count()
	}
	return p50, p99, failures
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p50, p99, failures := latency(test)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\tp50=%s p99=%s\terrors=%d\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, p50, p99, failures)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "P50", "P99", "Errors", "Skipped",
		"Backend", "Location", "Endpoints", "ShardID", "Serializer", "Transport",
		"Threads", "LargeValueSizeKB", "Keys Count", "BatchSize",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	config := util.GetClientConfig()
	for test, result := range results {
		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}
		p50, p99, failures := latency(test)

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			p50.String(),
			p99.String(),
			strconv.FormatInt(failures, 10),
			skipped,
			viper.GetString("backend"),
			driver.Location,
			strings.Join(config.Endpoints, ";"),
			strconv.FormatUint(util.GetShardID(), 10),
			viper.GetString("serializer"),
			viper.GetString("transport"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfLargeValueSizeKB),
			strconv.Itoa(perfKeySpread),
			strconv.Itoa(perfBatchSize),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
