// Package audioprobe sniffs audio containers and reports their duration
// where a pure Go decoder is available.
package audioprobe

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

type Format string

const (
	FormatUnknown Format = ""
	FormatWebM    Format = "webm"
	FormatOgg     Format = "ogg"
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
)

var ErrUnknownFormat = errors.New("unknown audio format")

// MIMEType returns the content type providers expect, or "" when unknown.
func (f Format) MIMEType() string {
	switch f {
	case FormatWebM:
		return "audio/webm"
	case FormatOgg:
		return "audio/ogg"
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	default:
		return ""
	}
}

// Sniff inspects the leading bytes of data.
func Sniff(data []byte) Format {
	switch {
	case len(data) >= 4 && bytes.Equal(data[:4], []byte{0x1a, 0x45, 0xdf, 0xa3}):
		return FormatWebM
	case len(data) >= 4 && string(data[:4]) == "OggS":
		return FormatOgg
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return FormatWAV
	case len(data) >= 3 && string(data[:3]) == "ID3":
		return FormatMP3
	case len(data) >= 2 && data[0] == 0xff && data[1]&0xe0 == 0xe0:
		return FormatMP3
	default:
		return FormatUnknown
	}
}

type Info struct {
	Format     Format
	Codec      string
	SampleRate int
	Channels   int
	// Duration is zero when the container cannot be decoded in process.
	Duration time.Duration
}

// Probe sniffs data and decodes enough of it to fill Info. WebM and Ogg Opus
// are recognised but not decoded.
func Probe(data []byte) (Info, error) {
	f := Sniff(data)
	switch f {
	case FormatWAV:
		return probeWAV(data)
	case FormatMP3:
		return probeMP3(data)
	case FormatOgg:
		return probeOgg(data)
	case FormatWebM:
		return Info{Format: FormatWebM}, nil
	default:
		return Info{}, ErrUnknownFormat
	}
}

func probeWAV(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, errors.New("invalid wav")
	}
	if err := dec.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("wav data chunk: %w", err)
	}
	info := Info{
		Format:     FormatWAV,
		Codec:      "pcm",
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}
	frameBytes := int(dec.NumChans) * int(dec.BitDepth) / 8
	if frameBytes > 0 && info.SampleRate > 0 {
		frames := dec.PCMSize / frameBytes
		info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

func probeMP3(data []byte) (Info, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return Info{}, fmt.Errorf("mp3 decode: %w", err)
	}
	info := Info{
		Format:     FormatMP3,
		Codec:      "mp3",
		SampleRate: dec.SampleRate(),
		// go-mp3 always decodes to 16-bit stereo.
		Channels: 2,
	}
	if n := dec.Length(); n > 0 && info.SampleRate > 0 {
		frames := n / 4
		info.Duration = time.Duration(frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}

func probeOgg(data []byte) (Info, error) {
	n, format, err := oggvorbis.GetLength(bytes.NewReader(data))
	if err != nil {
		if bytes.Contains(data[:min(len(data), 64)], []byte("OpusHead")) {
			return Info{Format: FormatOgg, Codec: "opus"}, nil
		}
		return Info{}, fmt.Errorf("cannot decode Ogg container as Vorbis: %w", err)
	}
	info := Info{Format: FormatOgg, Codec: "vorbis"}
	if format != nil {
		info.SampleRate = format.SampleRate
		info.Channels = format.Channels
		if format.SampleRate > 0 {
			info.Duration = time.Duration(n) * time.Second / time.Duration(format.SampleRate)
		}
	}
	return info, nil
}
