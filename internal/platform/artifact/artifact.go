package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"recvault/internal/platform/manifest"
	"recvault/internal/platform/slug"
)

const (
	ContentTypeWebM = "audio/webm"
	ContentTypeWAV  = "audio/wav"
)

// Filename follows recording_<id>_<start>[_<label>].<ext>.
func Filename(id, label string, start time.Time, ext string) string {
	name := fmt.Sprintf("recording_%s_%s", id, start.UTC().Format("2006-01-02T15-04-05Z"))
	if s := slug.Make(label); s != "" {
		name += "_" + s
	}
	return name + "." + strings.TrimPrefix(ext, ".")
}

// Manifest describes an exported artifact.
type Manifest struct {
	SessionID        string     `yaml:"session_id"`
	Label            string     `yaml:"label,omitempty"`
	StartTime        time.Time  `yaml:"start_time"`
	EndTime          *time.Time `yaml:"end_time,omitempty"`
	ChunkCount       int        `yaml:"chunk_count"`
	TotalBytes       int64      `yaml:"total_bytes"`
	PayloadBytes     int        `yaml:"payload_bytes"`
	FirstSequence    int        `yaml:"first_sequence"`
	LastSequence     int        `yaml:"last_sequence"`
	MissingSequences []int      `yaml:"missing_sequences,omitempty"`
	ContentType      string     `yaml:"content_type"`
	Reason           string     `yaml:"reason"`
	ExportedAt       time.Time  `yaml:"exported_at"`
}

func (m Manifest) Render() ([]byte, error) {
	return manifest.Render(m)
}

// WAVFormat describes raw PCM carried in a payload.
type WAVFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func DefaultWAVFormat() WAVFormat {
	return WAVFormat{SampleRate: 16000, Channels: 1, BitsPerSample: 16}
}

// WrapWAV prefixes raw little-endian PCM with a RIFF/WAVE header.
func WrapWAV(pcm []byte, f WAVFormat) ([]byte, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 || f.BitsPerSample <= 0 || f.BitsPerSample%8 != 0 {
		return nil, fmt.Errorf("invalid wav format %+v", f)
	}
	blockAlign := f.Channels * f.BitsPerSample / 8
	byteRate := f.SampleRate * blockAlign

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(pcm)))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.Channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(f.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(f.BitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes(), nil
}
