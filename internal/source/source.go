// Package source defines the per-channel record source boundary: raw records
// delivered already time-ordered, paginated backwards from the newest, with
// an end-of-history signal.
package source

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
)

// Page is one backward page of raw records, oldest first.
type Page struct {
	Records []json.RawMessage
	// NextCursor fetches the page before this one. Empty when End is true.
	NextCursor string
	// End signals that no older records exist.
	End bool
}

// Source fetches older raw records for a channel. beforeCursor is the opaque
// cursor from the previous page, or empty for the newest page.
type Source interface {
	FetchOlderPage(ctx context.Context, channelID, beforeCursor string, limit int) (Page, error)
}

// Memory is an in-memory Source, used in tests and local development. Records
// are held oldest-first per channel; cursors are plain indexes.
type Memory struct {
	mu       sync.Mutex
	channels map[string][]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{channels: make(map[string][]json.RawMessage)}
}

// Add appends records to a channel in delivery order.
func (m *Memory) Add(channelID string, records ...json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channelID] = append(m.channels[channelID], records...)
}

func (m *Memory) FetchOlderPage(_ context.Context, channelID, beforeCursor string, limit int) (Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := m.channels[channelID]
	end := len(all)
	if beforeCursor != "" {
		n, err := strconv.Atoi(beforeCursor)
		if err != nil || n < 0 || n > len(all) {
			return Page{End: true}, nil
		}
		end = n
	}

	start := end - limit
	if start < 0 {
		start = 0
	}

	page := Page{
		Records: append([]json.RawMessage(nil), all[start:end]...),
		End:     start == 0,
	}
	if !page.End {
		page.NextCursor = strconv.Itoa(start)
	}
	return page, nil
}
