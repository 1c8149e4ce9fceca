package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/loom/internal/message"
	"github.com/MikeSquared-Agency/loom/internal/source"
)

// FetchOlderPage implements source.Source against the channel_records table.
// Records are keyed by a monotonically increasing per-channel sequence; the
// cursor is the sequence of the oldest record already loaded.
func (s *Store) FetchOlderPage(ctx context.Context, channelID, beforeCursor string, limit int) (source.Page, error) {
	if limit <= 0 {
		limit = 50
	}
	before := int64(0)
	if beforeCursor != "" {
		n, err := strconv.ParseInt(beforeCursor, 10, 64)
		if err != nil {
			return source.Page{}, fmt.Errorf("parse cursor %q: %w", beforeCursor, err)
		}
		before = n
	}

	// Probe one extra row to learn whether older history remains.
	rows, err := s.pool.Query(ctx, `
		SELECT seq, payload
		FROM channel_records
		WHERE channel_id = $1 AND ($2 = 0 OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3`,
		channelID, before, limit+1)
	if err != nil {
		return source.Page{}, fmt.Errorf("query channel records: %w", err)
	}
	defer rows.Close()

	type row struct {
		seq     int64
		payload []byte
	}
	var fetched []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.seq, &r.payload); err != nil {
			return source.Page{}, fmt.Errorf("scan channel record: %w", err)
		}
		fetched = append(fetched, r)
	}
	if err := rows.Err(); err != nil {
		return source.Page{}, fmt.Errorf("iterate channel records: %w", err)
	}

	hasMore := len(fetched) > limit
	if hasMore {
		fetched = fetched[:limit]
	}

	// Rows came newest-first; the page contract is oldest-first.
	page := source.Page{End: !hasMore}
	for i := len(fetched) - 1; i >= 0; i-- {
		page.Records = append(page.Records, json.RawMessage(fetched[i].payload))
	}
	if hasMore && len(fetched) > 0 {
		page.NextCursor = strconv.FormatInt(fetched[len(fetched)-1].seq, 10)
	}
	return page, nil
}

// InsertRecords appends raw records to a channel in delivery order, assigning
// consecutive sequence numbers after the channel's current tail. Statements in
// the batch run in order, so each insert sees the previous one's sequence.
func (s *Store) InsertRecords(ctx context.Context, channelID string, records []json.RawMessage) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, rec := range records {
		batch.Queue(`
			INSERT INTO channel_records (channel_id, seq, payload)
			VALUES ($1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM channel_records WHERE channel_id = $1), $2)`,
			channelID, []byte(rec))
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()
	for i := range records {
		if _, err := results.Exec(); err != nil {
			return i, fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return len(records), nil
}

// ErrExternalPostNotFound is returned when the reference target does not
// exist upstream.
var ErrExternalPostNotFound = errors.New("external post not found")

// FetchExternalPost implements refcache.Fetcher against the external_posts
// table.
func (s *Store) FetchExternalPost(ctx context.Context, externalID string) (*message.Message, error) {
	var (
		authorID     string
		authorName   string
		authorHandle string
		body         string
		likes        int
		shares       int
		permalink    string
		postedAt     time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT author_id, author_name, author_handle, body, likes, shares, permalink_url, posted_at
		FROM external_posts
		WHERE id = $1`,
		externalID).Scan(&authorID, &authorName, &authorHandle, &body, &likes, &shares, &permalink, &postedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrExternalPostNotFound, externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("query external post %s: %w", externalID, err)
	}

	return &message.Message{
		ID:        externalID,
		Channel:   message.ChannelPublicPost,
		SenderID:  authorID,
		Role:      message.RoleThirdParty,
		Timestamp: postedAt,
		Kind:      message.KindSocialPost,
		Lifecycle: message.LifecycleActive,
		Post: &message.SocialPost{
			AuthorName:   authorName,
			AuthorHandle: authorHandle,
			Body:         body,
			Likes:        likes,
			Shares:       shares,
			PermalinkURL: permalink,
		},
	}, nil
}
