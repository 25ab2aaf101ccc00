package roster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// maxRosterBytes bounds the size of a fetched roster.
const maxRosterBytes = 32 << 20

// Source supplies the encrypted roster blob.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
	String() string
}

// NewSource returns an HTTPSource for http(s) locations and a FileSource
// otherwise.
func NewSource(location string, client *http.Client) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if client == nil {
			client = http.DefaultClient
		}
		return &HTTPSource{URL: location, Client: client}
	}
	return &FileSource{Path: location}
}

// FileSource reads the roster from the local filesystem.
type FileSource struct {
	Path string
}

func (s *FileSource) Fetch(_ context.Context) ([]byte, error) {
	return os.ReadFile(s.Path)
}

func (s *FileSource) String() string { return s.Path }

// HTTPSource downloads the roster, for example from a raw repository URL.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// errStatus marks a non-200 response, which is not retried.
var errStatus = errors.New("unexpected status")

// Fetch performs a GET, retrying once on a transport error.
func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	data, err := s.fetchOnce(ctx)
	if err == nil || errors.Is(err, errStatus) || ctx.Err() != nil {
		return data, err
	}
	slog.Warn("roster fetch failed, retrying once", "url", s.URL, "error", err)
	return s.fetchOnce(ctx)
}

func (s *HTTPSource) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errStatus, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRosterBytes))
}

func (s *HTTPSource) String() string { return s.URL }
