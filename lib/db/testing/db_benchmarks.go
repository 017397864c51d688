package testing

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/ValentinKolb/txcache/lib/db"
)

// RunKVDBBenchmarks runs all benchmarks for a key-value database implementations
func RunKVDBBenchmarks(b *testing.B, name string, factory DBFactory) {

	b.Run("Set", func(b *testing.B) {
		benchmarkSet(b, factory())
	})

	b.Run("SetExisting", func(b *testing.B) {
		benchmarkSetExisting(b, factory())
	})

	b.Run("Get", func(b *testing.B) {
		benchmarkGet(b, factory())
	})

	b.Run("Delete", func(b *testing.B) {
		benchmarkDelete(b, factory())
	})

	b.Run("Scan", func(b *testing.B) {
		benchmarkScan(b, factory())
	})

	b.Run("Clone", func(b *testing.B) {
		benchmarkClone(b, factory())
	})

	b.Run("SaveLoad", func(b *testing.B) {
		benchmarkSaveLoad(b, factory)
	})

	b.Run("MixedUsage", func(b *testing.B) {
		benchmarkMixedUsage(b, factory())
	})
}

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("test-key-%08d", i))
}

// fill inserts n sequential keys
func fill(database db.KVDB, n int) {
	for i := 0; i < n; i++ {
		database.Set(benchKey(i), []byte(fmt.Sprintf("test-value-%d", i)), 0)
	}
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

// Benchmark for Set operation
func benchmarkSet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			i := rnd.Int()
			database.Set(benchKey(i), []byte(fmt.Sprintf("test-value-%d", i)), 0)
		}
	})
}

// Benchmark for Set operation with existing keys
func benchmarkSetExisting(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet)

	numKeys := 10_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Set(benchKey(counter%numKeys), []byte(fmt.Sprintf("test-value-%d", counter)), 0)
			counter++
		}
	})
}

// Parallel benchmarking for Get operation
func benchmarkGet(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet)

	numKeys := 10_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			database.Get(benchKey(counter % numKeys))
			counter++
		}
	})
}

// Benchmark for Delete operation
func benchmarkDelete(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureDelete)

	fill(database, b.N)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		database.Delete(benchKey(i), 0)
	}
}

// benchmarkScan reads pages of 100 keys starting at random positions
func benchmarkScan(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureScan)

	numKeys := 50_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			n := 0
			visit := func(_, _ []byte) bool {
				n++
				return n < 100
			}
			if rnd.Intn(2) == 0 {
				database.Ascend(benchKey(rnd.Intn(numKeys)), nil, visit)
			} else {
				database.Descend(nil, benchKey(rnd.Intn(numKeys)), visit)
			}
		}
	})
}

// benchmarkClone clones the database and writes one key to the clone, which
// forces the copy of a path of shared nodes
func benchmarkClone(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureClone)

	numKeys := 50_000
	fill(database, numKeys)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		clone := database.Clone()
		clone.Set(benchKey(i%numKeys), []byte("updated"), 0)
	}
}

// Benchmark for Save and Load operations
func benchmarkSaveLoad(b *testing.B, factory DBFactory) {
	database := factory()
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureSave|db.FeatureLoad)

	fill(database, 100_000)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		b.Fatalf("Save failed: %v", err)
	}
	data := buf.Bytes()

	b.Run("Save", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var out bytes.Buffer
			if err := database.Save(&out); err != nil {
				b.Fatalf("Save failed: %v", err)
			}
		}
	})

	b.Run("Load", func(b *testing.B) {
		target := factory()
		defer target.Close()
		for i := 0; i < b.N; i++ {
			if err := target.Load(bytes.NewReader(data)); err != nil {
				b.Fatalf("Load failed: %v", err)
			}
		}
	})
}

// benchmarkMixedUsage runs 70% Get, 20% Set and 10% short scans
func benchmarkMixedUsage(b *testing.B, database db.KVDB) {
	b.Cleanup(func() {
		database.Close()
	})

	requireFeature(b, database, db.FeatureSet|db.FeatureGet|db.FeatureScan)

	numKeys := 50_000
	fill(database, numKeys)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		counter := 0

		for pb.Next() {
			key := benchKey(counter % numKeys)
			switch r := rnd.Float32(); {
			case r < .7:
				database.Get(key)
			case r < .9:
				database.Set(key, []byte(fmt.Sprintf("test-mixed-value-%d", counter)), uint64(counter))
			default:
				n := 0
				database.Ascend(key, nil, func(_, _ []byte) bool {
					n++
					return n < 10
				})
			}
			counter++
		}
	})
}
