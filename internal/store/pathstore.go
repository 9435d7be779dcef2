package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dgallion1/papergest/internal/pathstore"
)

// DefaultPathstorePrefix is the key prefix documents are stored under.
const DefaultPathstorePrefix = "papergest/documents"

// PathstoreBackend keeps membership in a remote pathstore service, one node
// per fingerprint.
type PathstoreBackend struct {
	client *pathstore.Client
	prefix string
}

func NewPathstoreBackend(client *pathstore.Client, prefix string) *PathstoreBackend {
	if prefix == "" {
		prefix = DefaultPathstorePrefix
	}
	return &PathstoreBackend{client: client, prefix: prefix}
}

func (p *PathstoreBackend) Load(ctx context.Context) ([]Entry, error) {
	nodes, err := p.client.Scan(ctx, p.prefix, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		var e Entry
		if err := json.Unmarshal(n.Value, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", n.Key, err)
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AcquiredAt.Before(out[j].AcquiredAt)
	})
	return out, nil
}

func (p *PathstoreBackend) Append(ctx context.Context, e Entry) error {
	return p.client.Put(ctx, p.prefix+"/"+e.Fingerprint, e)
}

func (p *PathstoreBackend) Flush(context.Context) error { return nil }

func (p *PathstoreBackend) Close() error {
	p.client.Close()
	return nil
}
