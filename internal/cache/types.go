package cache

import (
	"bytes"
	"slices"

	"github.com/benjaminschubert/cacheproxy/internal/wire"
)

//go:generate go tool github.com/tinylib/msgp -io=false
//msgp:tuple StoredHeader StoredResponse

// StoredHeader is the persisted form of a wire.Header.
type StoredHeader struct {
	Name  string
	Value string
}

// StoredResponse is the persisted form of a cache entry, used to snapshot
// the cache across restarts.
type StoredResponse struct {
	Key        string
	Version    string
	StatusCode int
	Reason     string
	Headers    []StoredHeader
	Body       []byte
}

func newStoredResponse(key string, resp *wire.Response) StoredResponse {
	headers := make([]StoredHeader, len(resp.Headers))
	for i, header := range resp.Headers {
		headers[i] = StoredHeader(header)
	}

	return StoredResponse{
		Key:        key,
		Version:    resp.Version,
		StatusCode: resp.StatusCode,
		Reason:     resp.Reason,
		Headers:    headers,
		Body:       append([]byte(nil), resp.Body...),
	}
}

func (s *StoredResponse) toResponse() *wire.Response {
	headers := make(wire.Headers, len(s.Headers))
	for i, header := range s.Headers {
		headers[i] = wire.Header(header)
	}

	return &wire.Response{
		Version:    s.Version,
		StatusCode: s.StatusCode,
		Reason:     s.Reason,
		Headers:    headers,
		Body:       s.Body,
	}
}

func (s *StoredResponse) equal(other StoredResponse) bool {
	return s.Key == other.Key &&
		s.Version == other.Version &&
		s.StatusCode == other.StatusCode &&
		s.Reason == other.Reason &&
		slices.Equal(s.Headers, other.Headers) &&
		bytes.Equal(s.Body, other.Body)
}
