package audio

import (
	"bytes"
	"encoding/json"

	"github.com/civicvoice/bylaw-tts/internal/logging"
)

// Header is the one-line JSON metadata frame sent ahead of the PCM tail.
// Its contents are informational only; playback never branches on them.
type Header struct {
	Format        string `json:"format"`
	SampleRate    int    `json:"sampleRate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bitsPerSample"`
}

// FrameParser splits the raw byte stream into the header line and decoded
// PCM samples. Chunk boundaries are arbitrary: bytes accumulate until a
// newline terminates the header, and after that an odd trailing byte is
// carried over until its pair arrives.
type FrameParser struct {
	buf        []byte
	headerDone bool
	header     Header
	headerErr  error
}

func NewFrameParser() *FrameParser {
	return &FrameParser{}
}

// Push consumes one network chunk and returns all samples that became
// complete, as float32 in [-1, 1]. Before the header newline is seen it
// returns nothing rather than mis-decoding header bytes as audio.
func (p *FrameParser) Push(chunk []byte) []float32 {
	p.buf = append(p.buf, chunk...)

	if !p.headerDone {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			return nil
		}
		line := p.buf[:idx]
		if err := json.Unmarshal(line, &p.header); err != nil {
			// Malformed header is not fatal: the byte offset is what
			// matters, PCM starts right after the newline either way.
			p.headerErr = err
			logging.Warnf("audio: malformed stream header (%d bytes): %v", len(line), err)
		} else {
			logging.Debugf("audio: stream header format=%s rate=%d channels=%d bits=%d",
				p.header.Format, p.header.SampleRate, p.header.Channels, p.header.BitsPerSample)
		}
		p.buf = append(p.buf[:0], p.buf[idx+1:]...)
		p.headerDone = true
	}

	whole := len(p.buf) / 2 * 2
	if whole == 0 {
		return nil
	}

	samples := make([]float32, whole/2)
	for i := range samples {
		v := int16(p.buf[i*2]) | int16(p.buf[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}
	p.buf = append(p.buf[:0], p.buf[whole:]...)
	return samples
}

// HeaderDone reports whether the header line has been consumed.
func (p *FrameParser) HeaderDone() bool {
	return p.headerDone
}

// Header returns the parsed header. Zero value until HeaderDone, or when the
// header line was not valid JSON.
func (p *FrameParser) Header() Header {
	return p.header
}

// HeaderErr returns the JSON error for a malformed header line, if any.
func (p *FrameParser) HeaderErr() error {
	return p.headerErr
}

// Pending returns the number of buffered bytes awaiting completion. After the
// header this is at most one (an unpaired low byte).
func (p *FrameParser) Pending() int {
	return len(p.buf)
}

// EncodePCM converts samples back to 16-bit little-endian bytes. Used by
// diagnostics and tests.
func EncodePCM(samples []float32, data []byte) int {
	n := 0
	for i := 0; i < len(samples) && n+1 < len(data); i++ {
		scaled := int32(samples[i] * 32768.0)
		if scaled > 32767 {
			scaled = 32767
		} else if scaled < -32768 {
			scaled = -32768
		}
		s := int16(scaled)
		data[n] = byte(s)
		data[n+1] = byte(s >> 8)
		n += 2
	}
	return n
}
