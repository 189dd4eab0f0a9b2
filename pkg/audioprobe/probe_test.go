package audioprobe

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// pcmWAV builds a mono 16-bit PCM WAV file with n zero samples.
func pcmWAV(sampleRate, n int) []byte {
	var b bytes.Buffer
	dataLen := n * 2
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataLen))
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&b, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataLen))
	b.Write(make([]byte, dataLen))
	return b.Bytes()
}

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"webm", []byte{0x1a, 0x45, 0xdf, 0xa3, 0x01}, FormatWebM},
		{"ogg", []byte("OggS\x00\x02"), FormatOgg},
		{"wav", pcmWAV(16000, 4), FormatWAV},
		{"id3", []byte("ID3\x04\x00"), FormatMP3},
		{"mp3 frame", []byte{0xff, 0xfb, 0x90, 0x00}, FormatMP3},
		{"riff but not wave", []byte("RIFF\x00\x00\x00\x00AVI "), FormatUnknown},
		{"empty", nil, FormatUnknown},
		{"text", []byte("hello"), FormatUnknown},
	}
	for _, tc := range tests {
		if got := Sniff(tc.data); got != tc.want {
			t.Fatalf("%s: Sniff = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestMIMEType(t *testing.T) {
	if got := FormatWebM.MIMEType(); got != "audio/webm" {
		t.Fatalf("webm mime = %q", got)
	}
	if got := FormatMP3.MIMEType(); got != "audio/mpeg" {
		t.Fatalf("mp3 mime = %q", got)
	}
	if got := FormatUnknown.MIMEType(); got != "" {
		t.Fatalf("unknown mime = %q, want empty", got)
	}
}

func TestProbeWAVDuration(t *testing.T) {
	info, err := Probe(pcmWAV(16000, 8000))
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Format != FormatWAV || info.SampleRate != 16000 || info.Channels != 1 {
		t.Fatalf("info = %+v", info)
	}
	if info.Duration != 500*time.Millisecond {
		t.Fatalf("duration = %v, want 500ms", info.Duration)
	}
}

func TestProbeWebMIsRecognisedWithoutDuration(t *testing.T) {
	info, err := Probe([]byte{0x1a, 0x45, 0xdf, 0xa3, 0x9f, 0x42, 0x86, 0x81})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if info.Format != FormatWebM || info.Duration != 0 {
		t.Fatalf("info = %+v", info)
	}
}

func TestProbeUnknown(t *testing.T) {
	if _, err := Probe([]byte("not audio")); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("err = %v, want ErrUnknownFormat", err)
	}
}
