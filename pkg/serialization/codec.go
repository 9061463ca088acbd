package serialization

import (
	"encoding/json"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/organica-ai/nishub/pkg/config"
	"github.com/organica-ai/nishub/pkg/types"
)

// Codec defines the interface for record serialization. The persistence
// mirror stores node records and membership events in this format.
type Codec interface {
	// EncodeNode serializes a node record to bytes
	EncodeNode(record *types.NodeRecord) ([]byte, error)

	// DecodeNode deserializes bytes to a node record
	DecodeNode(data []byte) (*types.NodeRecord, error)

	// EncodeEvent serializes a membership event
	EncodeEvent(event *types.Event) ([]byte, error)

	// DecodeEvent deserializes bytes to a membership event
	DecodeEvent(data []byte) (*types.Event, error)

	// Name returns the codec name
	Name() string
}

// CodecFactory creates codecs based on configuration
type CodecFactory struct {
	codecs map[config.SerializationType]Codec
	mutex  sync.RWMutex
}

// NewCodecFactory creates a factory with all default codecs registered
func NewCodecFactory() (*CodecFactory, error) {
	f := &CodecFactory{codecs: make(map[config.SerializationType]Codec)}

	cborCodec, err := NewCBORCodec()
	if err != nil {
		return nil, err
	}
	f.Register(config.SerializationCBOR, cborCodec)
	f.Register(config.SerializationJSON, &JSONCodec{})
	f.Register(config.SerializationMsgPack, &MsgPackCodec{})

	return f, nil
}

// Register registers a codec for a serialization type
func (f *CodecFactory) Register(serType config.SerializationType, codec Codec) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.codecs[serType] = codec
}

// Get returns a codec for the specified serialization type
func (f *CodecFactory) Get(serType config.SerializationType) (Codec, error) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()

	codec, exists := f.codecs[serType]
	if !exists {
		return nil, types.NewHubError(types.ErrCodeSerializationError, "unsupported serialization type").
			WithDetail("type", serType)
	}
	return codec, nil
}

// CBORCodec implements CBOR serialization
type CBORCodec struct {
	encMode cbor.EncMode
	decMode cbor.DecMode
}

// NewCBORCodec creates a new CBOR codec with deterministic encoding
func NewCBORCodec() (*CBORCodec, error) {
	encOpts := cbor.EncOptions{
		Time:        cbor.TimeRFC3339Nano,
		TimeTag:     cbor.EncTagNone,
		IndefLength: cbor.IndefLengthForbidden,
		Sort:        cbor.SortCanonical,
	}

	decOpts := cbor.DecOptions{
		TimeTag:     cbor.DecTagIgnored,
		IndefLength: cbor.IndefLengthForbidden,
	}

	encMode, err := encOpts.EncMode()
	if err != nil {
		return nil, types.ErrSerialization("cbor", err)
	}

	decMode, err := decOpts.DecMode()
	if err != nil {
		return nil, types.ErrSerialization("cbor", err)
	}

	return &CBORCodec{encMode: encMode, decMode: decMode}, nil
}

func (c *CBORCodec) EncodeNode(record *types.NodeRecord) ([]byte, error) {
	data, err := c.encMode.Marshal(record)
	if err != nil {
		return nil, types.ErrSerialization("cbor", err)
	}
	return data, nil
}

func (c *CBORCodec) DecodeNode(data []byte) (*types.NodeRecord, error) {
	var record types.NodeRecord
	if err := c.decMode.Unmarshal(data, &record); err != nil {
		return nil, types.ErrDeserialization("cbor", err)
	}
	return &record, nil
}

func (c *CBORCodec) EncodeEvent(event *types.Event) ([]byte, error) {
	data, err := c.encMode.Marshal(event)
	if err != nil {
		return nil, types.ErrSerialization("cbor", err)
	}
	return data, nil
}

func (c *CBORCodec) DecodeEvent(data []byte) (*types.Event, error) {
	var event types.Event
	if err := c.decMode.Unmarshal(data, &event); err != nil {
		return nil, types.ErrDeserialization("cbor", err)
	}
	return &event, nil
}

func (c *CBORCodec) Name() string { return "cbor" }

// JSONCodec implements JSON serialization
type JSONCodec struct{}

func (j *JSONCodec) EncodeNode(record *types.NodeRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, types.ErrSerialization("json", err)
	}
	return data, nil
}

func (j *JSONCodec) DecodeNode(data []byte) (*types.NodeRecord, error) {
	var record types.NodeRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, types.ErrDeserialization("json", err)
	}
	return &record, nil
}

func (j *JSONCodec) EncodeEvent(event *types.Event) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, types.ErrSerialization("json", err)
	}
	return data, nil
}

func (j *JSONCodec) DecodeEvent(data []byte) (*types.Event, error) {
	var event types.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, types.ErrDeserialization("json", err)
	}
	return &event, nil
}

func (j *JSONCodec) Name() string { return "json" }

// MsgPackCodec implements MessagePack serialization
type MsgPackCodec struct{}

func (m *MsgPackCodec) EncodeNode(record *types.NodeRecord) ([]byte, error) {
	data, err := msgpack.Marshal(record)
	if err != nil {
		return nil, types.ErrSerialization("msgpack", err)
	}
	return data, nil
}

func (m *MsgPackCodec) DecodeNode(data []byte) (*types.NodeRecord, error) {
	var record types.NodeRecord
	if err := msgpack.Unmarshal(data, &record); err != nil {
		return nil, types.ErrDeserialization("msgpack", err)
	}
	return &record, nil
}

func (m *MsgPackCodec) EncodeEvent(event *types.Event) ([]byte, error) {
	data, err := msgpack.Marshal(event)
	if err != nil {
		return nil, types.ErrSerialization("msgpack", err)
	}
	return data, nil
}

func (m *MsgPackCodec) DecodeEvent(data []byte) (*types.Event, error) {
	var event types.Event
	if err := msgpack.Unmarshal(data, &event); err != nil {
		return nil, types.ErrDeserialization("msgpack", err)
	}
	return &event, nil
}

func (m *MsgPackCodec) Name() string { return "msgpack" }
