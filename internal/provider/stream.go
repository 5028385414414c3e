package provider

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	sseDataPrefix     = "data:"
	sseDone           = "[DONE]"
	sseMaxEventLength = 1024 * 1024
)

// sseDecoder turns the data of one server-sent event into a chunk. skip
// reports events that carry no content.
type sseDecoder func(data []byte) (chunk StreamChunk, skip bool, err error)

type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	decode  sseDecoder
	done    bool
}

func newSSEStream(body io.ReadCloser, decode sseDecoder) *sseStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), sseMaxEventLength)
	return &sseStream{body: body, scanner: scanner, decode: decode}
}

func (s *sseStream) Recv() (StreamChunk, error) {
	if s.done {
		return StreamChunk{Done: true}, nil
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, sseDataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
		if data == sseDone {
			s.done = true
			return StreamChunk{Done: true}, nil
		}
		chunk, skip, err := s.decode([]byte(data))
		if err != nil {
			return StreamChunk{}, err
		}
		if chunk.Done {
			s.done = true
			return chunk, nil
		}
		if skip {
			continue
		}
		return chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return StreamChunk{}, fmt.Errorf("read stream: %w", err)
	}
	s.done = true
	return StreamChunk{Done: true}, nil
}

func (s *sseStream) Close() error { return s.body.Close() }

// Collect drains stream and returns the concatenated content. The stream
// is closed on return.
func Collect(stream ResponseStream, onChunk func(StreamChunk) error) (string, error) {
	defer func() { _ = stream.Close() }()
	var sb strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(chunk.Content)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return sb.String(), err
			}
		}
		if chunk.Done {
			return sb.String(), nil
		}
	}
}
