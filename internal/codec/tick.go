// Package codec serializes ticks and events into fixed-size little-endian
// payloads for the recorder and downstream sinks.
package codec

import (
	"encoding/binary"

	"tickflow/internal/schema"
)

const (
	MarketTickPayloadSize = 56
	OptionTickPayloadSize = 72
)

// EncodeMarketTick serializes a market tick into a fixed-size payload.
func EncodeMarketTick(dst []byte, tick schema.MarketTick) []byte {
	if cap(dst) < MarketTickPayloadSize {
		dst = make([]byte, MarketTickPayloadSize)
	} else {
		dst = dst[:MarketTickPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(tick.Timestamp))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(tick.Bid))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(tick.Ask))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(tick.Last))
	binary.LittleEndian.PutUint32(dst[32:36], uint32(tick.SymbolID))
	binary.LittleEndian.PutUint32(dst[36:40], tick.BidSize)
	binary.LittleEndian.PutUint32(dst[40:44], tick.AskSize)
	binary.LittleEndian.PutUint32(dst[44:48], tick.Volume)
	binary.LittleEndian.PutUint32(dst[48:52], tick.Seq)
	binary.LittleEndian.PutUint32(dst[52:56], uint32(tick.Exchange))

	return dst
}

// DecodeMarketTick parses a fixed-size market tick payload.
func DecodeMarketTick(src []byte) (schema.MarketTick, bool) {
	if len(src) < MarketTickPayloadSize {
		return schema.MarketTick{}, false
	}
	return schema.MarketTick{
		Timestamp: schema.Timestamp(binary.LittleEndian.Uint64(src[0:8])),
		Bid:       schema.Price(binary.LittleEndian.Uint64(src[8:16])),
		Ask:       schema.Price(binary.LittleEndian.Uint64(src[16:24])),
		Last:      schema.Price(binary.LittleEndian.Uint64(src[24:32])),
		SymbolID:  schema.SymbolID(binary.LittleEndian.Uint32(src[32:36])),
		BidSize:   binary.LittleEndian.Uint32(src[36:40]),
		AskSize:   binary.LittleEndian.Uint32(src[40:44]),
		Volume:    binary.LittleEndian.Uint32(src[44:48]),
		Seq:       binary.LittleEndian.Uint32(src[48:52]),
		Exchange:  schema.ExchangeID(binary.LittleEndian.Uint32(src[52:56])),
	}, true
}

// EncodeOptionTick serializes an option tick into a fixed-size payload.
func EncodeOptionTick(dst []byte, tick schema.OptionTick) []byte {
	if cap(dst) < OptionTickPayloadSize {
		dst = make([]byte, OptionTickPayloadSize)
	} else {
		dst = dst[:OptionTickPayloadSize]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(tick.Timestamp))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(tick.Strike))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(tick.Bid))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(tick.Ask))
	binary.LittleEndian.PutUint64(dst[32:40], uint64(tick.Last))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(floatBits(tick.ImpliedVol)))
	binary.LittleEndian.PutUint32(dst[48:52], uint32(tick.SymbolID))
	binary.LittleEndian.PutUint32(dst[52:56], uint32(tick.UnderlyingID))
	binary.LittleEndian.PutUint32(dst[56:60], tick.Volume)
	binary.LittleEndian.PutUint32(dst[60:64], tick.OpenInterest)
	binary.LittleEndian.PutUint32(dst[64:68], tick.Expiration)
	binary.LittleEndian.PutUint16(dst[68:70], tick.DaysToExpiry)
	dst[70] = byte(tick.Right)
	dst[71] = byte(tick.Style)

	return dst
}

// DecodeOptionTick parses a fixed-size option tick payload.
func DecodeOptionTick(src []byte) (schema.OptionTick, bool) {
	if len(src) < OptionTickPayloadSize {
		return schema.OptionTick{}, false
	}
	return schema.OptionTick{
		Timestamp:    schema.Timestamp(binary.LittleEndian.Uint64(src[0:8])),
		Strike:       schema.Price(binary.LittleEndian.Uint64(src[8:16])),
		Bid:          schema.Price(binary.LittleEndian.Uint64(src[16:24])),
		Ask:          schema.Price(binary.LittleEndian.Uint64(src[24:32])),
		Last:         schema.Price(binary.LittleEndian.Uint64(src[32:40])),
		ImpliedVol:   floatFromBits(binary.LittleEndian.Uint64(src[40:48])),
		SymbolID:     schema.SymbolID(binary.LittleEndian.Uint32(src[48:52])),
		UnderlyingID: schema.SymbolID(binary.LittleEndian.Uint32(src[52:56])),
		Volume:       binary.LittleEndian.Uint32(src[56:60]),
		OpenInterest: binary.LittleEndian.Uint32(src[60:64]),
		Expiration:   binary.LittleEndian.Uint32(src[64:68]),
		DaysToExpiry: binary.LittleEndian.Uint16(src[68:70]),
		Right:        schema.OptionRight(src[70]),
		Style:        schema.OptionStyle(src[71]),
	}, true
}
