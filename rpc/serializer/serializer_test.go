package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/ValentinKolb/txcache/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON":   NewJSONSerializer,
	"GOB":    NewGOBSerializer,
	"Binary": NewBinarySerializer,
}

// testMessages creates a set of test messages with different fields filled.
// Byte slices are either nil or non-empty, since JSON and GOB do not keep
// empty slices apart from nil ones.
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Begin response
		{MsgType: common.MsgTTxBegin, TxID: 42},

		// Set request
		*common.NewSetRequest(7, []byte("test-key"), []byte("test-value")),

		// Get response
		*common.NewGetResponse([]byte("test-value"), true, nil),

		// GetKey request with a backward selector
		*common.NewGetKeyRequest(7, keys.LastLessOrEqual([]byte("k")).Add(-3)),

		// GetRange request and response
		*common.NewGetRangeRequest(7, keys.FirstGreaterThan([]byte("a")), keys.FirstGreaterOrEqual([]byte("z")).Add(2),
			keys.RangeOptions{Limit: 10, Reverse: true}),
		*common.NewGetRangeResponse(keys.RangeResult{
			KVs: []keys.KeyValue{
				{Key: []byte("a"), Value: []byte("1")},
				{Key: []byte{0x00, 0x01}, Value: []byte("2")},
			},
			More: true,
		}, nil),

		// Conflict range
		*common.NewRangeRequest(common.MsgTTxAddReadConflict, 7, []byte("a"), []byte("b")),

		// Error responses
		*common.NewErrorResponse(store.ErrUnknownTransaction),
		*common.NewResponse(common.MsgTTxSet, store.NewError(store.RetCIllegalKey, "key \"\\xff\\x01\" outside legal range")),

		// Info response
		*common.NewInfoResponse([]byte(`{"keys":3}`), nil),
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestErrorTransport checks that store errors keep their code over the wire
func TestErrorTransport(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*common.NewResponse(common.MsgTTxCommit, store.ErrTransactionClosed))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			rebuilt := result.AsError()
			if rebuilt == nil {
				t.Fatalf("Expected an error after round trip")
			}
			if !reflect.DeepEqual(rebuilt, store.ErrTransactionClosed) {
				t.Errorf("Error mismatch: expected %v, got %v", store.ErrTransactionClosed, rebuilt)
			}
		})
	}
}

// TestBinarySerializerSpecific tests that the binary serializer keeps empty
// slices apart from nil ones. The empty key is a valid key.
func TestBinarySerializerSpecific(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name string
		msg  common.Message
	}{
		{
			name: "Empty message",
			msg:  common.Message{},
		},
		{
			name: "Empty key",
			msg: common.Message{
				MsgType: common.MsgTTxGet,
				TxID:    1,
				Key:     []byte{},
			},
		},
		{
			name: "Empty value with Ok=true",
			msg: common.Message{
				MsgType: common.MsgTTxGet,
				Ok:      true,
				Value:   []byte{},
			},
		},
		{
			name: "Selectors with negative offsets",
			msg: common.Message{
				MsgType:      common.MsgTTxGetRange,
				Key:          []byte{},
				KeyInclusive: true,
				KeyOffset:    -5,
				End:          []byte{0xff},
				EndOffset:    -1,
				Limit:        1,
			},
		},
		{
			name: "Empty range result",
			msg: common.Message{
				MsgType: common.MsgTTxGetRange,
				Pairs:   []keys.KeyValue{},
			},
		},
		{
			name: "Pairs with empty keys and values",
			msg: common.Message{
				MsgType: common.MsgTTxGetRange,
				Pairs: []keys.KeyValue{
					{Key: []byte{}, Value: []byte{}},
					{Key: []byte("b"), Value: []byte{}},
				},
			},
		},
		{
			name: "Empty meta slice",
			msg: common.Message{
				MsgType: common.MsgTInfo,
				Meta:    []byte{},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Serialize
			data, err := serializer.Serialize(tc.msg)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}

			// Deserialize
			var result common.Message
			err = serializer.Deserialize(data, &result)
			if err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}

			if !reflect.DeepEqual(tc.msg, result) {
				t.Errorf("Message doesn't match after round trip:\nOriginal: %+v\nResult: %+v", tc.msg, result)
			}
		})
	}
}

// TestBinaryDeserializeResets checks that decoding into a used message does
// not leave fields of the previous message behind
func TestBinaryDeserializeResets(t *testing.T) {
	serializer := NewBinarySerializer()

	data, err := serializer.Serialize(common.Message{MsgType: common.MsgTSuccess})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	msg := *common.NewSetRequest(3, []byte("k"), []byte("v"))
	if err := serializer.Deserialize(data, &msg); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if !reflect.DeepEqual(msg, common.Message{MsgType: common.MsgTSuccess}) {
		t.Errorf("Expected a clean message, got %+v", msg)
	}
}

// TestInvalidBinaryData tests how the binary serializer handles corrupt or invalid data
func TestInvalidBinaryData(t *testing.T) {
	serializer := NewBinarySerializer()

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{
			name:        "Empty data",
			data:        []byte{},
			expectError: true,
		},
		{
			name:        "Too short header",
			data:        []byte{1, 0}, // Message type and half of the flags
			expectError: true,
		},
		{
			name:        "Valid header only",
			data:        []byte{1, 0, 0}, // Message type 1, no flags
			expectError: false,
		},
		{
			name:        "Invalid length for key",
			data:        []byte{1, 0, 2, 0, 0, 0, 5, 'a', 'b', 'c'}, // Claims key length 5 but only 3 bytes provided
			expectError: true,
		},
		{
			name:        "Invalid length for value",
			data:        []byte{1, 0, 0x80, 0, 0, 0, 10}, // Claims value length 10 but no bytes provided
			expectError: true,
		},
		{
			name:        "Missing tx id",
			data:        []byte{1, 0, 1, 0, 0, 0}, // Claims a tx id but only 3 bytes follow
			expectError: true,
		},
		{
			name:        "Too many pairs",
			data:        []byte{1, 0x04, 0, 0xff, 0xff, 0xff, 0xff}, // Claims 2^32-1 pairs without data
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var msg common.Message
			err := serializer.Deserialize(tc.data, &msg)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
		})
	}
}
