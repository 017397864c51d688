package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/txcache/lib/keys"
	"github.com/ValentinKolb/txcache/lib/store"
	"github.com/ValentinKolb/txcache/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format.
//
// Layout: 1 byte MsgType, 2 bytes flags, then the present fields in the order
// of the flags below. Booleans are carried by their flag alone. Byte fields
// are length prefixed with a uint32, all integers are big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasTxID      uint16 = 1 << 0
	hasKey       uint16 = 1 << 1
	keyInclusive uint16 = 1 << 2
	hasKeyOffset uint16 = 1 << 3
	hasEnd       uint16 = 1 << 4
	endInclusive uint16 = 1 << 5
	hasEndOffset uint16 = 1 << 6
	hasValue     uint16 = 1 << 7
	hasLimit     uint16 = 1 << 8
	isReverse    uint16 = 1 << 9
	hasPairs     uint16 = 1 << 10
	isOk         uint16 = 1 << 11
	hasCode      uint16 = 1 << 12
	hasErr       uint16 = 1 << 13
	hasMeta      uint16 = 1 << 14
)

const headerSize = 3

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, headerSize, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags uint16

	putBytes := func(data []byte) {
		result = binary.BigEndian.AppendUint32(result, uint32(len(data)))
		result = append(result, data...)
	}

	if msg.TxID != 0 {
		flags |= hasTxID
		result = binary.BigEndian.AppendUint64(result, msg.TxID)
	}

	// Begin selector or key
	if msg.Key != nil {
		flags |= hasKey
		putBytes(msg.Key)
	}
	if msg.KeyInclusive {
		flags |= keyInclusive
	}
	if msg.KeyOffset != 0 {
		flags |= hasKeyOffset
		result = binary.BigEndian.AppendUint32(result, uint32(msg.KeyOffset))
	}

	// End selector or key
	if msg.End != nil {
		flags |= hasEnd
		putBytes(msg.End)
	}
	if msg.EndInclusive {
		flags |= endInclusive
	}
	if msg.EndOffset != 0 {
		flags |= hasEndOffset
		result = binary.BigEndian.AppendUint32(result, uint32(msg.EndOffset))
	}

	if msg.Value != nil {
		flags |= hasValue
		putBytes(msg.Value)
	}

	// Range options
	if msg.Limit != 0 {
		flags |= hasLimit
		result = binary.BigEndian.AppendUint32(result, msg.Limit)
	}
	if msg.Reverse {
		flags |= isReverse
	}

	// Range result: pair count followed by the pairs
	if msg.Pairs != nil {
		flags |= hasPairs
		result = binary.BigEndian.AppendUint32(result, uint32(len(msg.Pairs)))
		for _, kv := range msg.Pairs {
			putBytes(kv.Key)
			putBytes(kv.Value)
		}
	}

	if msg.Ok {
		flags |= isOk
	}

	// Error
	if msg.Code != store.RetCSuccess {
		flags |= hasCode
		result = binary.BigEndian.AppendUint64(result, uint64(msg.Code))
	}
	if msg.Err != "" {
		flags |= hasErr
		putBytes([]byte(msg.Err))
	}

	if msg.Meta != nil {
		flags |= hasMeta
		putBytes(msg.Meta)
	}

	// Set flags after knowing which fields are present
	binary.BigEndian.PutUint16(result[1:headerSize], flags)

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	*msg = common.Message{MsgType: common.MessageType(data[0])}
	flags := binary.BigEndian.Uint16(data[1:headerSize])
	r := reader{data: data, pos: headerSize}

	if flags&hasTxID != 0 {
		msg.TxID = r.uint64("tx id")
	}

	if flags&hasKey != 0 {
		msg.Key = r.bytes("key")
	}
	msg.KeyInclusive = flags&keyInclusive != 0
	if flags&hasKeyOffset != 0 {
		msg.KeyOffset = int32(r.uint32("key offset"))
	}

	if flags&hasEnd != 0 {
		msg.End = r.bytes("end")
	}
	msg.EndInclusive = flags&endInclusive != 0
	if flags&hasEndOffset != 0 {
		msg.EndOffset = int32(r.uint32("end offset"))
	}

	if flags&hasValue != 0 {
		msg.Value = r.bytes("value")
	}

	if flags&hasLimit != 0 {
		msg.Limit = r.uint32("limit")
	}
	msg.Reverse = flags&isReverse != 0

	if flags&hasPairs != 0 {
		n := int(r.uint32("pair count"))
		if r.err == nil && n > (len(data)-r.pos)/8 {
			return fmt.Errorf("data too short for %d pairs", n)
		}
		msg.Pairs = make([]keys.KeyValue, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			key := r.bytes("pair key")
			value := r.bytes("pair value")
			msg.Pairs = append(msg.Pairs, keys.KeyValue{Key: key, Value: value})
		}
	}

	msg.Ok = flags&isOk != 0

	if flags&hasCode != 0 {
		msg.Code = store.RetCode(r.uint64("code"))
	}
	if flags&hasErr != 0 {
		msg.Err = string(r.bytes("error"))
	}

	if flags&hasMeta != 0 {
		msg.Meta = r.bytes("meta")
	}

	return r.err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := headerSize

	if msg.TxID != 0 {
		size += 8
	}
	if msg.Key != nil {
		size += 4 + len(msg.Key)
	}
	if msg.KeyOffset != 0 {
		size += 4
	}
	if msg.End != nil {
		size += 4 + len(msg.End)
	}
	if msg.EndOffset != 0 {
		size += 4
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Limit != 0 {
		size += 4
	}
	if msg.Pairs != nil {
		size += 4
		for _, kv := range msg.Pairs {
			size += 8 + len(kv.Key) + len(kv.Value)
		}
	}
	if msg.Code != store.RetCSuccess {
		size += 8
	}
	if msg.Err != "" {
		size += 4 + len(msg.Err)
	}
	if msg.Meta != nil {
		size += 4 + len(msg.Meta)
	}

	return size
}

// reader decodes the fields of a message. After the first error all reads
// return zero values and err holds the error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.err = fmt.Errorf("data too short for %s", field)
		return nil
	}
	out := r.data[r.pos : r.pos+n]
	r.pos += n
	return out
}

func (r *reader) uint32(field string) uint32 {
	if b := r.take(4, field); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) uint64(field string) uint64 {
	if b := r.take(8, field); b != nil {
		return binary.BigEndian.Uint64(b)
	}
	return 0
}

// bytes reads a length prefixed field into a new slice. An empty field
// decodes to an empty, non-nil slice.
func (r *reader) bytes(field string) []byte {
	n := r.uint32(field + " length")
	b := r.take(int(n), field)
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}
