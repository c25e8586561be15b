package codec

import (
	"encoding/binary"
	"math"

	"tickflow/internal/schema"
)

const eventHeaderSize = 17 // type(1) + timestamp(8) + symbol(4) + code(4)

// EncodeEvent serializes a data event: a small header followed by the
// payload variant the tag selects. Error/news events carry no payload.
func EncodeEvent(dst []byte, event schema.DataEvent) []byte {
	dst = dst[:0]
	dst = append(dst, byte(event.Type))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(event.Timestamp))
	dst = binary.LittleEndian.AppendUint32(dst, uint32(event.SymbolID))
	dst = binary.LittleEndian.AppendUint32(dst, event.Code)

	if tick, ok := event.Market(); ok {
		var buf [MarketTickPayloadSize]byte
		return append(dst, EncodeMarketTick(buf[:0], tick)...)
	}
	if tick, ok := event.Option(); ok {
		var buf [OptionTickPayloadSize]byte
		return append(dst, EncodeOptionTick(buf[:0], tick)...)
	}
	return dst
}

// DecodeEvent parses an encoded data event.
func DecodeEvent(src []byte) (schema.DataEvent, bool) {
	if len(src) < eventHeaderSize {
		return schema.DataEvent{}, false
	}
	eventType := schema.EventType(src[0])
	ts := schema.Timestamp(binary.LittleEndian.Uint64(src[1:9]))
	symbolID := schema.SymbolID(binary.LittleEndian.Uint32(src[9:13]))
	code := binary.LittleEndian.Uint32(src[13:17])
	payload := src[eventHeaderSize:]

	switch eventType {
	case schema.EventMarketTick, schema.EventTrade, schema.EventOrderBookUpdate:
		tick, ok := DecodeMarketTick(payload)
		if !ok {
			return schema.DataEvent{}, false
		}
		event := schema.NewMarketEvent(ts, tick)
		event.Type = eventType
		return event, true
	case schema.EventOptionTick:
		tick, ok := DecodeOptionTick(payload)
		if !ok {
			return schema.DataEvent{}, false
		}
		return schema.NewOptionEvent(ts, tick), true
	case schema.EventError, schema.EventNews:
		event := schema.NewErrorEvent(ts, symbolID, code)
		event.Type = eventType
		return event, true
	default:
		return schema.DataEvent{}, false
	}
}

func floatBits(v float64) uint64 {
	return math.Float64bits(v)
}

func floatFromBits(bits uint64) float64 {
	return math.Float64frombits(bits)
}
