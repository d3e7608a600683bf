package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobLister enumerates stored objects under a prefix.
type BlobLister interface {
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
}

// HistoryExport describes one uploaded history snapshot.
type HistoryExport struct {
	Curve     string    `json:"curve"`
	Path      string    `json:"path"`
	Count     int       `json:"count"`
	FromBlock uint64    `json:"fromBlock"`
	ToBlock   uint64    `json:"toBlock"`
	CreatedAt time.Time `json:"createdAt"`
}
