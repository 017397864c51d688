package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/txcache/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs the test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("DeleteRange", func(t *testing.T) {
			testDeleteRange(t, factory())
		})

		t.Run("Scan", func(t *testing.T) {
			testScan(t, factory())
		})

		t.Run("Clone", func(t *testing.T) {
			testClone(t, factory())
		})

		t.Run("WriteIndex", func(t *testing.T) {
			testWriteIndex(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory())
		})

		t.Run("RealisticUsage", func(t *testing.T) {
			testRealisticUsage(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// Checks if the database supports the specified feature
// Skip the test if it is not supported
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// collect returns the keys visited by a scan as strings
func collect(scan func(begin, end []byte, fn db.Visitor), begin, end []byte, limit int) []string {
	var out []string
	scan(begin, end, func(key, _ []byte) bool {
		out = append(out, string(key))
		return limit == 0 || len(out) < limit
	})
	return out
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureHas)

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	database.Set(testKey, testValue1, 1)

	result, exists := database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	database.Set(testKey, testValue2, 2)

	result, exists = database.Get(testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	if _, exists = database.Get([]byte("nonexistent-key")); exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}
	if database.Has([]byte("nonexistent-key")) {
		t.Errorf("Expected Has to return false for a nonexistent key")
	}
	if !database.Has(testKey) {
		t.Errorf("Expected Has to return true for %s", testKey)
	}

	retrievedValue, _ := database.Get(testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := database.Get(testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("mutable")
	database.Set([]byte("mutable-key"), input, 3)
	input[0] = 'X'
	if stored, _ := database.Get([]byte("mutable-key")); !bytes.Equal(stored, []byte("mutable")) {
		t.Errorf("Set should copy the value, got %s", stored)
	}

	if database.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", database.Len())
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set([]byte("a"), []byte("1"), 1)
	database.Set([]byte("b"), []byte("2"), 1)

	database.Delete([]byte("a"), 2)
	if _, exists := database.Get([]byte("a")); exists {
		t.Errorf("Expected key a to be deleted")
	}
	if _, exists := database.Get([]byte("b")); !exists {
		t.Errorf("Expected key b to still exist")
	}

	// deleting a missing key is a no-op
	database.Delete([]byte("missing"), 3)
	if database.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", database.Len())
	}
}

func testDeleteRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureDeleteRange|db.FeatureScan)

	for i := 0; i < 10; i++ {
		database.Set([]byte{byte(i)}, []byte{byte(i)}, 1)
	}

	database.DeleteRange([]byte{3}, []byte{7}, 2)
	want := []string{"\x00", "\x01", "\x02", "\x07", "\x08", "\x09"}
	if got := collect(database.Ascend, []byte{}, nil, 0); !equalKeys(got, want) {
		t.Errorf("Expected %q after DeleteRange, got %q", want, got)
	}

	// an empty or inverted range deletes nothing
	database.DeleteRange([]byte{8}, []byte{8}, 3)
	database.DeleteRange([]byte{9}, []byte{1}, 3)
	if database.Len() != 6 {
		t.Errorf("Expected 6 entries, got %d", database.Len())
	}

	// the end is exclusive
	database.DeleteRange([]byte{}, []byte{8}, 4)
	want = []string{"\x08", "\x09"}
	if got := collect(database.Ascend, []byte{}, nil, 0); !equalKeys(got, want) {
		t.Errorf("Expected %q after DeleteRange, got %q", want, got)
	}
}

func testScan(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureScan)

	for _, k := range []string{"a", "b", "b\x00", "c", "d"} {
		database.Set([]byte(k), []byte("v-"+k), 1)
	}

	cases := []struct {
		name       string
		scan       func(begin, end []byte, fn db.Visitor)
		begin, end []byte
		limit      int
		want       []string
	}{
		{"ascend all", database.Ascend, []byte{}, nil, 0, []string{"a", "b", "b\x00", "c", "d"}},
		{"ascend range", database.Ascend, []byte("b"), []byte("d"), 0, []string{"b", "b\x00", "c"}},
		{"ascend limit", database.Ascend, []byte("b"), nil, 2, []string{"b", "b\x00"}},
		{"ascend empty", database.Ascend, []byte("c"), []byte("c"), 0, nil},
		{"ascend inverted", database.Ascend, []byte("d"), []byte("a"), 0, nil},
		{"descend all", database.Descend, []byte{}, nil, 0, []string{"d", "c", "b\x00", "b", "a"}},
		{"descend range", database.Descend, []byte("b"), []byte("d"), 0, []string{"c", "b\x00", "b"}},
		{"descend limit", database.Descend, []byte("a"), []byte("c"), 1, []string{"b\x00"}},
		{"descend between keys", database.Descend, []byte("a\x00"), []byte("b\x00"), 0, []string{"b"}},
		{"descend inverted", database.Descend, []byte("d"), []byte("a"), 0, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := collect(tc.scan, tc.begin, tc.end, tc.limit); !equalKeys(got, tc.want) {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}

	database.Ascend([]byte("c"), nil, func(key, value []byte) bool {
		if !bytes.Equal(value, append([]byte("v-"), key...)) {
			t.Errorf("Unexpected value %s for key %s", value, key)
		}
		return true
	})
}

func testClone(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureClone)

	database.Set([]byte("a"), []byte("1"), 1)
	database.Set([]byte("b"), []byte("2"), 1)

	clone := database.Clone()
	defer clone.Close()

	database.Set([]byte("a"), []byte("changed"), 2)
	database.Delete([]byte("b"), 2)
	database.Set([]byte("c"), []byte("3"), 2)

	if value, _ := clone.Get([]byte("a")); !bytes.Equal(value, []byte("1")) {
		t.Errorf("Clone should keep the old value, got %s", value)
	}
	if !clone.Has([]byte("b")) {
		t.Errorf("Clone should keep keys deleted in the original")
	}
	if clone.Has([]byte("c")) {
		t.Errorf("Clone should not see later inserts")
	}
	if clone.WriteIdx() != 1 {
		t.Errorf("Expected clone write index 1, got %d", clone.WriteIdx())
	}

	clone.Set([]byte("d"), []byte("4"), 3)
	clone.DeleteRange([]byte("a"), []byte("b\x00"), 3)
	if database.Has([]byte("d")) {
		t.Errorf("Original should not see writes to the clone")
	}
	if value, _ := database.Get([]byte("a")); !bytes.Equal(value, []byte("changed")) {
		t.Errorf("Original should keep its value, got %s", value)
	}
	if clone.Len() != 1 || database.Len() != 2 {
		t.Errorf("Expected 1 entry in the clone and 2 in the original, got %d and %d", clone.Len(), database.Len())
	}
}

func testWriteIndex(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet)

	database.Set([]byte("a"), nil, 5)
	database.Set([]byte("b"), nil, 3)
	if database.WriteIdx() != 5 {
		t.Errorf("Expected write index 5, got %d", database.WriteIdx())
	}

	database.SetWriteIdx(9)
	database.SetWriteIdx(7)
	if database.WriteIdx() != 9 {
		t.Errorf("Expected write index 9, got %d", database.WriteIdx())
	}
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()

	// close the databases after the test
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		key := []byte(fmt.Sprintf("save-load-test-key-%d", i))
		value := []byte(fmt.Sprintf("save-load-test-value-%d", i))
		database.Set(key, value, uint64(i))
	}

	// database2 has stale data that Load replaces
	database2.Set([]byte("stale"), []byte("x"), 1)

	var buf bytes.Buffer
	if err := database.Save(&buf); err != nil {
		t.Fatalf("Unexpected error during Save: %v", err)
	}
	if err := database2.Load(&buf); err != nil {
		t.Fatalf("Unexpected error during Load: %v", err)
	}

	for i := 0; i < numEntries; i++ {
		key := []byte(fmt.Sprintf("save-load-test-key-%d", i))
		expectedValue := []byte(fmt.Sprintf("save-load-test-value-%d", i))

		actualValue, exists := database2.Get(key)
		if !exists {
			t.Errorf("Key %s not found after Load", key)
			continue
		}
		if !bytes.Equal(actualValue, expectedValue) {
			t.Errorf("Value mismatch for key %s: expected %s, got %s", key, expectedValue, actualValue)
		}
	}

	if database2.Has([]byte("stale")) {
		t.Errorf("Load should replace the existing content")
	}
	if database2.Len() != numEntries {
		t.Errorf("Expected %d entries after Load, got %d", numEntries, database2.Len())
	}
	if database2.WriteIdx() != uint64(numEntries-1) {
		t.Errorf("Expected write index %d after Load, got %d", numEntries-1, database2.WriteIdx())
	}

	if err := database2.Load(bytes.NewReader([]byte("garbage"))); err == nil {
		t.Errorf("Expected an error when loading garbage")
	}
	if database2.Len() != numEntries {
		t.Errorf("A failed Load must not change the database")
	}
}

func testEdgeCases(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureScan)

	emptyKeyValue := []byte("value for empty key")
	database.Set([]byte{}, emptyKeyValue, 0)

	result, exists := database.Get(nil)
	if !exists {
		t.Errorf("Empty key not found after Set")
	} else if !bytes.Equal(result, emptyKeyValue) {
		t.Errorf("Value mismatch for empty key")
	}

	if got := collect(database.Ascend, nil, nil, 0); !equalKeys(got, []string{""}) {
		t.Errorf("Expected the empty key to be scanned first, got %q", got)
	}

	nilValueKey := []byte("nil-value-key")
	database.Set(nilValueKey, nil, 0)

	result, exists = database.Get(nilValueKey)
	if !exists {
		t.Errorf("Key for nil value not found after Set")
	} else if len(result) != 0 {
		t.Errorf("Nil value resulted in non-empty value: %v", result)
	}

	largeKey := bytes.Repeat([]byte{0xfe}, 1000)
	database.Set(largeKey, []byte("large"), 0)
	if _, exists = database.Get(largeKey); !exists {
		t.Errorf("Large key not found after Set")
	}

	// keys that differ only by a trailing NUL byte are distinct
	database.Set([]byte("k"), []byte("1"), 0)
	database.Set([]byte("k\x00"), []byte("2"), 0)
	if got := collect(database.Ascend, []byte("k"), []byte("k\x00\x00"), 0); !equalKeys(got, []string{"k", "k\x00"}) {
		t.Errorf("Expected both keys, got %q", got)
	}
}

func testRealisticUsage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete|db.FeatureScan)

	numWorkers := 8
	opsPerWorker := 2_000

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		go func(workerId int) {
			defer wg.Done()

			prefix := fmt.Sprintf("worker-%d/", workerId)
			for i := 0; i < opsPerWorker; i++ {
				key := []byte(fmt.Sprintf("%s%05d", prefix, i))
				switch i % 4 {
				case 0, 1, 2:
					database.Set(key, []byte(fmt.Sprint(i)), uint64(i))
				case 3:
					database.Delete([]byte(fmt.Sprintf("%s%05d", prefix, i-1)), uint64(i))
				}

				// a concurrent scan must always see an ordered result
				if i%100 == 0 {
					var last []byte
					database.Ascend([]byte(prefix), nil, func(key, _ []byte) bool {
						if last != nil && bytes.Compare(last, key) >= 0 {
							t.Errorf("Scan out of order: %q before %q", last, key)
							return false
						}
						last = append(last[:0], key...)
						return true
					})
				}
			}
		}(w)
	}

	wg.Wait()

	// every worker keeps the keys i%4 == 0 and i%4 == 1
	expected := numWorkers * opsPerWorker / 2
	if database.Len() != expected {
		t.Errorf("Expected %d entries, got %d", expected, database.Len())
	}
}
