// Package audioio provides WAV container handling for the audio payloads
// exchanged on the bus. Payloads travel whole, so encoding works on
// in-memory byte slices rather than seekable files.
package audioio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

const (
	maxChunkSize     = 256 * 1024 * 1024
	maxDataChunkSize = 500 * 1024 * 1024
)

// Format describes PCM audio characteristics.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is the synthesis output format: 22.05 kHz mono PCM16.
var DefaultFormat = Format{SampleRate: 22050, Channels: 1, BitDepth: 16}

func (f Format) valid() bool {
	return f.SampleRate > 0 && f.Channels > 0 && f.BitDepth > 0
}

// Reader provides sequential access to PCM samples from a WAV stream.
type Reader struct {
	r         io.Reader
	remaining uint32
	format    Format
}

// NewReader parses a WAV header and prepares to stream PCM samples.
func NewReader(r io.Reader) (*Reader, error) {
	if r == nil {
		return nil, errors.New("wav: reader nil")
	}

	header := make([]byte, 12)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("wav: read header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil, errors.New("wav: invalid header")
	}

	var (
		fmtParsed bool
		dataSize  uint32
		format    Format
	)

	for {
		chunkHeader := make([]byte, 8)
		if _, err := io.ReadFull(r, chunkHeader); err != nil {
			return nil, fmt.Errorf("wav: read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])
		if chunkSize > maxChunkSize {
			return nil, fmt.Errorf("wav: chunk %s too large (%d bytes)", strings.TrimSpace(chunkID), chunkSize)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, errors.New("wav: invalid fmt chunk")
			}
			payload := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			audioFmt := binary.LittleEndian.Uint16(payload[0:2])
			if audioFmt != 1 { // PCM
				return nil, fmt.Errorf("wav: unsupported audio format %d", audioFmt)
			}
			format = Format{
				Channels:   int(binary.LittleEndian.Uint16(payload[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(payload[4:8])),
				BitDepth:   int(binary.LittleEndian.Uint16(payload[14:16])),
			}
			if !format.valid() {
				return nil, errors.New("wav: invalid format values")
			}
			fmtParsed = true
		case "data":
			if chunkSize > maxDataChunkSize {
				return nil, fmt.Errorf("wav: data chunk too large (%d bytes)", chunkSize)
			}
			dataSize = chunkSize
		default:
			skip := int64(chunkSize)
			if skip%2 == 1 {
				skip++
			}
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("wav: skip chunk %s: %w", strings.TrimSpace(chunkID), err)
			}
		}

		if fmtParsed && dataSize > 0 {
			break
		}
	}

	return &Reader{r: r, remaining: dataSize, format: format}, nil
}

// Read streams PCM sample bytes until the data chunk is exhausted.
func (r *Reader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if uint32(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	n, err := r.r.Read(p)
	if n > 0 {
		r.remaining -= uint32(n)
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, err
	}
	if r.remaining == 0 {
		return n, io.EOF
	}
	return n, nil
}

// Format returns the parsed audio format.
func (r *Reader) Format() Format {
	return r.format
}

// Remaining reports the unread PCM byte count.
func (r *Reader) Remaining() int {
	return int(r.remaining)
}

// Encode wraps raw PCM sample bytes in a WAV container.
func Encode(format Format, pcm []byte) ([]byte, error) {
	if !format.valid() {
		return nil, errors.New("wav: invalid format parameters")
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+len(pcm)))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(header[22:24], uint16(format.Channels))
	binary.LittleEndian.PutUint32(header[24:28], uint32(format.SampleRate))
	byteRate := format.SampleRate * format.Channels * format.BitDepth / 8
	blockAlign := format.Channels * format.BitDepth / 8
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], uint16(format.BitDepth))
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(len(pcm)))

	buf.Write(header)
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// Sine renders a PCM16 sine tone. Used by the placeholder synthesizer.
func Sine(format Format, freq float64, d time.Duration) []byte {
	if format.BitDepth != 16 || !format.valid() || d <= 0 {
		return nil
	}

	samples := int(float64(format.SampleRate) * d.Seconds())
	pcm := make([]byte, 0, samples*format.Channels*2)
	for i := 0; i < samples; i++ {
		v := math.Sin(2 * math.Pi * freq * float64(i) / float64(format.SampleRate))
		sample := int16(v * 0.3 * math.MaxInt16)
		for ch := 0; ch < format.Channels; ch++ {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(sample))
		}
	}
	return pcm
}

// Duration computes playback time of a PCM byte count in a format.
func Duration(format Format, pcmBytes int) time.Duration {
	if !format.valid() {
		return 0
	}
	byteRate := format.SampleRate * format.Channels * format.BitDepth / 8
	if byteRate <= 0 {
		return 0
	}
	return time.Duration(float64(pcmBytes) / float64(byteRate) * float64(time.Second))
}
