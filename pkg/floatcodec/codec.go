// Package floatcodec encodes float64 sequences for storage in a single
// column.
//
// Two formats exist. Text joins shortest round-trip decimal renderings with
// ';' and matches the layout of existing rvs_data columns.
// Binary is a uvarint element count followed by little-endian IEEE-754
// words, which avoids formatting and parsing altogether.
package floatcodec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Separator joins values in the text format.
const Separator = ";"

// ErrInvalidData is returned when a binary payload is truncated or its
// length prefix disagrees with its size.
var ErrInvalidData = errors.New("invalid float sequence data")

// Codec converts float sequences to and from a column payload.
type Codec interface {
	// Name identifies the codec in configuration ("text" or "binary").
	Name() string
	// Encode renders values. The result is a string for Text and a []byte
	// for Binary so that SQLite stores them as TEXT and BLOB respectively.
	Encode(values []float64) any
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "text":
		return Text{}, nil
	case "binary":
		return Binary{}, nil
	default:
		return nil, fmt.Errorf("unknown sample encoding: %s (supported: text, binary)", name)
	}
}

// Text is the ';'-joined decimal format.
type Text struct{}

// Name implements Codec.
func (Text) Name() string { return "text" }

// Encode implements Codec.
func (Text) Encode(values []float64) any { return EncodeText(values) }

// Binary is the length-prefixed little-endian format.
type Binary struct{}

// Name implements Codec.
func (Binary) Name() string { return "binary" }

// Encode implements Codec.
func (Binary) Encode(values []float64) any { return EncodeBinary(values) }

// EncodeText joins values with Separator. Each value uses the shortest
// decimal form that parses back to the same float64.
func EncodeText(values []float64) string {
	var sb strings.Builder
	for i, v := range values {
		if i > 0 {
			sb.WriteString(Separator)
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}

// DecodeText splits data on Separator and parses each token. An empty
// string decodes to an empty sequence.
func DecodeText(data string) ([]float64, error) {
	if data == "" {
		return []float64{}, nil
	}

	tokens := strings.Split(data, Separator)
	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, fmt.Errorf("parsing value %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// EncodeBinary writes the element count as a uvarint followed by 8 bytes
// per value.
func EncodeBinary(values []float64) []byte {
	buf := make([]byte, binary.MaxVarintLen64+8*len(values))
	n := binary.PutUvarint(buf, uint64(len(values)))
	for _, v := range values {
		binary.LittleEndian.PutUint64(buf[n:], math.Float64bits(v))
		n += 8
	}
	return buf[:n]
}

// DecodeBinary reverses EncodeBinary.
func DecodeBinary(data []byte) ([]float64, error) {
	count, n := binary.Uvarint(data)
	if n <= 0 {
		return nil, ErrInvalidData
	}
	body := data[n:]
	// compare without multiplying: count*8 overflows for large headers
	if count > uint64(len(body))/8 || uint64(len(body)) != count*8 {
		return nil, fmt.Errorf("%w: header says %d values, payload holds %d bytes", ErrInvalidData, count, len(body))
	}

	values := make([]float64, count)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[8*i:]))
	}
	return values, nil
}

// Decode accepts whatever a database driver returned for a payload column:
// TEXT arrives as string, BLOB as []byte.
func Decode(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case string:
		return DecodeText(v)
	case []byte:
		return DecodeBinary(v)
	case nil:
		return []float64{}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected column type %T", ErrInvalidData, raw)
	}
}
