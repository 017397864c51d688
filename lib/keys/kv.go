package keys

// KeyValue is a single key-value pair as returned by range reads.
type KeyValue struct {
	Key   []byte `json:"key"`
	Value []byte `json:"value"`
}

// KeyRange is the half-open range [Begin, End).
type KeyRange struct {
	Begin []byte `json:"begin"`
	End   []byte `json:"end"`
}

// RangeOptions control a range read. A Limit of zero means no limit.
// Snapshot reads do not add read conflict ranges. Backends ignore it.
type RangeOptions struct {
	Limit    int  `json:"limit"`
	Reverse  bool `json:"reverse"`
	Snapshot bool `json:"snapshot"`
}

// RangeResult is one page of a range read. More is set when the read stopped
// because of the limit and further pairs may exist.
type RangeResult struct {
	KVs  []KeyValue `json:"kvs"`
	More bool       `json:"more"`
}
