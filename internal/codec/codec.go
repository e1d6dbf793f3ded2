// Package codec encodes the compact blobs tyuo persists: adjacency lists
// and capitalization maps.
//
// Two formats exist. FormatJSONZlib is JSON text compressed with zlib, the
// layout the store has always used. FormatCBORZstd is deterministic CBOR
// compressed with zstd. Decode sniffs the container so a store may hold a
// mix of both and the configured format only affects new writes.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Format identifies a blob encoding.
type Format uint8

const (
	// FormatJSONZlib is zlib-compressed JSON.
	FormatJSONZlib Format = 1

	// FormatCBORZstd is zstd-compressed deterministic CBOR.
	FormatCBORZstd Format = 2
)

// ErrUnknownFormat is returned by Decode when the blob matches no container.
var ErrUnknownFormat = errors.New("unrecognised blob format")

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	cborEnc     cbor.EncMode
	cborDec     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

func (f Format) String() string {
	switch f {
	case FormatJSONZlib:
		return "json-zlib"
	case FormatCBORZstd:
		return "cbor-zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// ParseFormat maps a configuration name to a Format.
func ParseFormat(name string) (Format, error) {
	switch name {
	case "json-zlib", "":
		return FormatJSONZlib, nil
	case "cbor-zstd":
		return FormatCBORZstd, nil
	default:
		return 0, fmt.Errorf("unknown codec %q", name)
	}
}

// Encode serializes v and compresses it in format f.
func Encode(f Format, v any) ([]byte, error) {
	switch f {
	case FormatJSONZlib:
		payload, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("json encode: %w", err)
		}
		var buf bytes.Buffer
		w := zlib.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("zlib compress: %w", err)
		}
		return buf.Bytes(), nil

	case FormatCBORZstd:
		payload, err := cborEnc.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cbor encode: %w", err)
		}
		return zstdEncoder.EncodeAll(payload, nil), nil

	default:
		return nil, fmt.Errorf("unsupported codec: %s", f)
	}
}

// Decode sniffs the blob container, decompresses it and unmarshals into v.
// It returns the detected format.
func Decode(data []byte, v any) (Format, error) {
	f, ok := Sniff(data)
	if !ok {
		return 0, ErrUnknownFormat
	}
	payload, err := decompress(f, data)
	if err != nil {
		return f, err
	}
	switch f {
	case FormatJSONZlib:
		if err := json.Unmarshal(payload, v); err != nil {
			return f, fmt.Errorf("json decode: %w", err)
		}
	case FormatCBORZstd:
		if err := cborDec.Unmarshal(payload, v); err != nil {
			return f, fmt.Errorf("cbor decode: %w", err)
		}
	}
	return f, nil
}

// Payload returns the decompressed, still serialized contents of a blob.
func Payload(data []byte) ([]byte, Format, error) {
	f, ok := Sniff(data)
	if !ok {
		return nil, 0, ErrUnknownFormat
	}
	payload, err := decompress(f, data)
	return payload, f, err
}

// Sniff identifies the container of data without decompressing it.
func Sniff(data []byte) (Format, bool) {
	if bytes.HasPrefix(data, zstdMagic) {
		return FormatCBORZstd, true
	}
	// RFC 1950: CM=8 (deflate) and the two header bytes form a multiple of 31.
	if len(data) >= 2 && data[0]&0x0f == 8 && (uint16(data[0])<<8|uint16(data[1]))%31 == 0 {
		return FormatJSONZlib, true
	}
	return 0, false
}

func decompress(f Format, data []byte) ([]byte, error) {
	switch f {
	case FormatJSONZlib:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		defer r.Close()
		payload, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zlib decompress: %w", err)
		}
		return payload, nil
	case FormatCBORZstd:
		payload, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", f)
	}
}
