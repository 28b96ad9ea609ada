package citypop

import (
	"context"
	"io"
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch a page.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Source extracts raw city rows for a country from one kind of page.
// Extract never returns an error; a nil or empty slice means "no data".
type Source interface {
	Name() string
	Priority() int
	Policy() ParsePolicy
	Extract(ctx context.Context, country Country, limit int) []RawRow
}

// Pacer spaces out work between countries.
type Pacer interface {
	Wait(ctx context.Context) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// RunStore keeps a history of completed runs.
type RunStore interface {
	RecordRun(ctx context.Context, run RunSummary) error
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator yields unique run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher produces a stable digest of report bytes.
type Hasher interface {
	Hash(data []byte) (string, error)
}
