package audioio

import (
	"bytes"
	"io"
	"testing"
	"time"
)

func TestEncodeReaderRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []byte{0x00, 0x10, 0xFF, 0x7F, 0x01, 0x00}
	format := Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

	wav, err := Encode(format, samples)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(wav) != 44+len(samples) {
		t.Fatalf("unexpected container size: %d", len(wav))
	}

	reader, err := NewReader(bytes.NewReader(wav))
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	if got := reader.Format(); got != format {
		t.Fatalf("unexpected format: %+v", got)
	}

	data, err := io.ReadAll(reader)
	if err != nil && err != io.EOF {
		t.Fatalf("read data: %v", err)
	}
	if !bytes.Equal(data, samples) {
		t.Fatalf("samples altered: %v", data)
	}
}

func TestEncodeRejectsInvalidFormat(t *testing.T) {
	t.Parallel()

	if _, err := Encode(Format{}, []byte{1, 2}); err == nil {
		t.Fatal("expected error for zero format")
	}
}

func TestReaderRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := NewReader(bytes.NewReader([]byte("definitely not a wav"))); err == nil {
		t.Fatal("expected error for invalid header")
	}
}

func TestSineDeterministicAndSized(t *testing.T) {
	t.Parallel()

	format := DefaultFormat
	a := Sine(format, 440, 50*time.Millisecond)
	b := Sine(format, 440, 50*time.Millisecond)
	if !bytes.Equal(a, b) {
		t.Fatal("tone generation must be deterministic")
	}

	wantSamples := int(float64(format.SampleRate) * 0.05)
	if len(a) != wantSamples*format.Channels*2 {
		t.Fatalf("unexpected pcm size: %d", len(a))
	}

	if got := Duration(format, len(a)); got < 45*time.Millisecond || got > 55*time.Millisecond {
		t.Fatalf("duration estimate off: %s", got)
	}
}
