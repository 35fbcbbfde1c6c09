package flat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/hupe1980/pagevec/distance"
	"github.com/klauspost/compress/gzip"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec applied to the vector payload of a
// serialized index blob.
type Compression uint8

// Supported payload codecs.
const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionLZ4
)

// String returns a string representation of the Compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var magic = [8]byte{'P', 'V', 'F', 'L', 'A', 'T', '0', '1'}

const flagNormalized = 1 << 0

// crcTable uses the Castagnoli polynomial, matching common storage formats.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// header is the fixed-size prelude of a serialized index blob. The vector
// payload follows, compressed according to Compression, and is verified
// against the checksum of the uncompressed bytes on load.
type header struct {
	Magic       [8]byte
	Compression uint8
	Flags       uint8
	Dimension   uint32
	Count       uint32
	Checksum    uint32
}

// WriteTo writes the index to w in binary format.
// It matches the io.WriterTo interface.
func (f *Flat) WriteTo(w io.Writer) (int64, error) {
	return f.writeTo(w, CompressionNone)
}

// WriteToCompressed writes the index to w with the given payload codec.
func (f *Flat) WriteToCompressed(w io.Writer, c Compression) (int64, error) {
	return f.writeTo(w, c)
}

func (f *Flat) writeTo(w io.Writer, c Compression) (int64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	payload := make([]byte, len(f.vecs)*4)
	for i, v := range f.vecs {
		binary.LittleEndian.PutUint32(payload[i*4:], math.Float32bits(v))
	}

	h := header{
		Magic:       magic,
		Compression: uint8(c),
		Dimension:   uint32(f.opts.Dimension),
		Count:       uint32(f.count),
		Checksum:    crc32.Checksum(payload, crcTable),
	}
	if f.opts.NormalizeVectors {
		h.Flags |= flagNormalized
	}

	cw := &countingWriter{w: w}
	if err := binary.Write(cw, binary.LittleEndian, h); err != nil {
		return cw.n, err
	}

	switch c {
	case CompressionNone:
		if _, err := cw.Write(payload); err != nil {
			return cw.n, err
		}
	case CompressionGzip:
		zw := gzip.NewWriter(cw)
		if _, err := zw.Write(payload); err != nil {
			return cw.n, err
		}
		if err := zw.Close(); err != nil {
			return cw.n, err
		}
	case CompressionLZ4:
		zw := lz4.NewWriter(cw)
		if _, err := zw.Write(payload); err != nil {
			return cw.n, err
		}
		if err := zw.Close(); err != nil {
			return cw.n, err
		}
	default:
		return cw.n, fmt.Errorf("flat: unsupported compression: %d", c)
	}

	return cw.n, nil
}

// Marshal serializes the index to a byte slice.
func (f *Flat) Marshal(c Compression) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.writeTo(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Read loads an index from r.
func Read(r io.Reader) (*Flat, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("flat: read header: %w", err)
	}
	if h.Magic != magic {
		return nil, fmt.Errorf("flat: bad magic")
	}
	if h.Dimension == 0 {
		return nil, fmt.Errorf("flat: invalid dimension in header: %d", h.Dimension)
	}

	var (
		payload []byte
		err     error
	)
	switch Compression(h.Compression) {
	case CompressionNone:
		payload, err = io.ReadAll(r)
	case CompressionGzip:
		var zr *gzip.Reader
		zr, err = gzip.NewReader(r)
		if err == nil {
			payload, err = io.ReadAll(zr)
			if cerr := zr.Close(); err == nil {
				err = cerr
			}
		}
	case CompressionLZ4:
		payload, err = io.ReadAll(lz4.NewReader(r))
	default:
		return nil, fmt.Errorf("flat: unsupported compression: %d", h.Compression)
	}
	if err != nil {
		return nil, fmt.Errorf("flat: read payload: %w", err)
	}

	want := int(h.Count) * int(h.Dimension) * 4
	if len(payload) != want {
		return nil, fmt.Errorf("flat: payload size %d does not match header (want %d)", len(payload), want)
	}
	if sum := crc32.Checksum(payload, crcTable); sum != h.Checksum {
		return nil, fmt.Errorf("flat: checksum mismatch: got %08x, want %08x", sum, h.Checksum)
	}

	f := &Flat{
		distanceFunc: distance.SquaredL2,
		opts: Options{
			Dimension:        int(h.Dimension),
			NormalizeVectors: h.Flags&flagNormalized != 0,
		},
		count: int(h.Count),
		vecs:  make([]float32, int(h.Count)*int(h.Dimension)),
	}
	for i := range f.vecs {
		f.vecs[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return f, nil
}

// Unmarshal loads an index from a byte slice.
func Unmarshal(data []byte) (*Flat, error) {
	return Read(bytes.NewReader(data))
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
