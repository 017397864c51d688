package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
//
// Key and End hold plain keys for writes and conflict ranges. For reads they
// are the anchors of the begin and end selectors, with the Inclusive and
// Offset fields next to them.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Transaction the request belongs to, set by the server in Begin responses
	TxID uint64 `json:"tx_id,omitempty"`

	// General fields
	Key          []byte `json:"key,omitempty"`           // Used for: Get, GetKey, GetRange, Set, Clear, ClearRange, conflicts
	KeyInclusive bool   `json:"key_inclusive,omitempty"` // Used for: GetKey, GetRange
	KeyOffset    int32  `json:"key_offset,omitempty"`    // Used for: GetKey, GetRange
	End          []byte `json:"end,omitempty"`           // Used for: GetRange, ClearRange, conflicts
	EndInclusive bool   `json:"end_inclusive,omitempty"` // Used for: GetRange
	EndOffset    int32  `json:"end_offset,omitempty"`    // Used for: GetRange
	Value        []byte `json:"value,omitempty"`         // Used for: Set (request), Get and GetKey (response)
	Limit        uint32 `json:"limit,omitempty"`         // Used for: GetRange
	Reverse      bool   `json:"reverse,omitempty"`       // Used for: GetRange

	// Response only fields
	Pairs []keys.KeyValue `json:"pairs,omitempty"` // Used for: GetRange responses
	Ok    bool            `json:"ok,omitempty"`    // Used for: Get (exists), GetRange (more)
	Code  store.RetCode   `json:"code,omitempty"`  // Return code of a failed request
	Err   string          `json:"err,omitempty"`   // Empty if no error, otherwise contains the error message

	// Meta information
	Meta []byte `json:"meta,omitempty"` // Used for: Info responses (JSON encoded db.DatabaseInfo)
}

// BeginSelector returns the selector stored in Key, KeyInclusive and KeyOffset.
func (m *Message) BeginSelector() keys.KeySelector {
	return keys.KeySelector{Key: m.Key, Inclusive: m.KeyInclusive, Offset: int(m.KeyOffset)}
}

// EndSelector returns the selector stored in End, EndInclusive and EndOffset.
func (m *Message) EndSelector() keys.KeySelector {
	return keys.KeySelector{Key: m.End, Inclusive: m.EndInclusive, Offset: int(m.EndOffset)}
}

// RangeOptions returns the range read options of a GetRange request.
func (m *Message) RangeOptions() keys.RangeOptions {
	return keys.RangeOptions{Limit: int(m.Limit), Reverse: m.Reverse}
}

// AsError rebuilds the store error carried by a response, or returns nil.
func (m *Message) AsError() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := m.Code
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

func (m *Message) setBegin(sel keys.KeySelector) {
	m.Key, m.KeyInclusive, m.KeyOffset = sel.Key, sel.Inclusive, int32(sel.Offset)
}

func (m *Message) setEnd(sel keys.KeySelector) {
	m.End, m.EndInclusive, m.EndOffset = sel.Key, sel.Inclusive, int32(sel.Offset)
}

// setErr stores err as code and message. Errors that are not store errors
// travel as internal errors.
func (m *Message) setErr(err error) {
	if err == nil {
		return
	}
	var storeErr *store.Error
	if errors.As(err, &storeErr) {
		m.Code, m.Err = storeErr.Code, storeErr.Msg
		return
	}
	m.Code, m.Err = store.RetCInternalError, err.Error()
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewResponse creates a response without payload, used for writes, conflict
// ranges, commit and abort
func NewResponse(msgType MessageType, err error) *Message {
	msg := &Message{MsgType: msgType}
	msg.setErr(err)
	return msg
}

// NewBeginRequest creates a new Begin request
func NewBeginRequest() *Message {
	return &Message{MsgType: MsgTTxBegin}
}

// NewBeginResponse creates a new Begin response
func NewBeginResponse(txID uint64, err error) *Message {
	msg := &Message{MsgType: MsgTTxBegin, TxID: txID}
	msg.setErr(err)
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(txID uint64, key []byte) *Message {
	return &Message{
		MsgType: MsgTTxGet,
		TxID:    txID,
		Key:     key,
	}
}

// NewGetResponse creates a new Get response
func NewGetResponse(value []byte, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTTxGet,
		Value:   value,
		Ok:      ok,
	}
	msg.setErr(err)
	return msg
}

// NewGetKeyRequest creates a new GetKey request
func NewGetKeyRequest(txID uint64, sel keys.KeySelector) *Message {
	msg := &Message{MsgType: MsgTTxGetKey, TxID: txID}
	msg.setBegin(sel)
	return msg
}

// NewGetKeyResponse creates a new GetKey response, the key is sent as Value
func NewGetKeyResponse(key []byte, err error) *Message {
	msg := &Message{MsgType: MsgTTxGetKey, Value: key}
	msg.setErr(err)
	return msg
}

// NewGetRangeRequest creates a new GetRange request
func NewGetRangeRequest(txID uint64, begin, end keys.KeySelector, opts keys.RangeOptions) *Message {
	msg := &Message{
		MsgType: MsgTTxGetRange,
		TxID:    txID,
		Limit:   uint32(max(opts.Limit, 0)),
		Reverse: opts.Reverse,
	}
	msg.setBegin(begin)
	msg.setEnd(end)
	return msg
}

// NewGetRangeResponse creates a new GetRange response
func NewGetRangeResponse(result keys.RangeResult, err error) *Message {
	msg := &Message{
		MsgType: MsgTTxGetRange,
		Pairs:   result.KVs,
		Ok:      result.More,
	}
	msg.setErr(err)
	return msg
}

// NewSetRequest creates a new Set request
func NewSetRequest(txID uint64, key, value []byte) *Message {
	return &Message{
		MsgType: MsgTTxSet,
		TxID:    txID,
		Key:     key,
		Value:   value,
	}
}

// NewClearRequest creates a new Clear request
func NewClearRequest(txID uint64, key []byte) *Message {
	return &Message{
		MsgType: MsgTTxClear,
		TxID:    txID,
		Key:     key,
	}
}

// NewRangeRequest creates a request over [begin, end), used for ClearRange
// and the conflict range messages
func NewRangeRequest(msgType MessageType, txID uint64, begin, end []byte) *Message {
	return &Message{
		MsgType: msgType,
		TxID:    txID,
		Key:     begin,
		End:     end,
	}
}

// NewTxRequest creates a request that only names a transaction, used for
// Commit and Abort
func NewTxRequest(msgType MessageType, txID uint64) *Message {
	return &Message{MsgType: msgType, TxID: txID}
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTInfo}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(meta []byte, err error) *Message {
	msg := &Message{MsgType: MsgTInfo, Meta: meta}
	msg.setErr(err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err error) *Message {
	msg := &Message{MsgType: MsgTError}
	msg.setErr(err)
	return msg
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTSuccess:            "success",
	MsgTError:              "error",
	MsgTTxBegin:            "begin",
	MsgTTxGet:              "get",
	MsgTTxGetKey:           "getKey",
	MsgTTxGetRange:         "getRange",
	MsgTTxSet:              "set",
	MsgTTxClear:            "clear",
	MsgTTxClearRange:       "clearRange",
	MsgTTxAddReadConflict:  "addReadConflict",
	MsgTTxAddWriteConflict: "addWriteConflict",
	MsgTTxCommit:           "commit",
	MsgTTxAbort:            "abort",
	MsgTInfo:               "info",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for msgType, name := range messageTypeNames {
		if name == s {
			*t = msgType
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// ITransaction operations

	MsgTTxBegin            // Open a transaction
	MsgTTxGet              // Get a value by key
	MsgTTxGetKey           // Resolve a key selector
	MsgTTxGetRange         // Read the pairs between two selectors
	MsgTTxSet              // Set a key-value pair
	MsgTTxClear            // Clear a key
	MsgTTxClearRange       // Clear a range of keys
	MsgTTxAddReadConflict  // Add a read conflict range
	MsgTTxAddWriteConflict // Add a write conflict range
	MsgTTxCommit           // Commit a transaction
	MsgTTxAbort            // Abort a transaction

	// IStore operations

	MsgTInfo // Database information
)
