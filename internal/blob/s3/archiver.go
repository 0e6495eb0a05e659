package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/arbot/internal/domain"
)

// TradeArchiver implements domain.TradeArchiver by serialising trade records
// to JSONL and uploading the batch to S3. The ledger hands it the records it
// is about to evict from its in-memory window; deletion from the primary
// store is a separate, explicit step.
type TradeArchiver struct {
	client *Client
	now    func() time.Time
}

// NewTradeArchiver creates a TradeArchiver backed by the given client.
func NewTradeArchiver(client *Client) *TradeArchiver {
	return &TradeArchiver{client: client, now: time.Now}
}

// ArchiveTrades uploads the given records as a single JSONL object keyed by
// upload date and batch timestamp, e.g.
// archive/trades/2026-08-29/20260829T120000Z.jsonl. Empty batches are a
// no-op.
func (a *TradeArchiver) ArchiveTrades(ctx context.Context, trades []domain.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	now := a.now().UTC()
	key := fmt.Sprintf("archive/trades/%s/%s.jsonl",
		now.Format("2006-01-02"), now.Format("20060102T150405Z"))

	_, err = a.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: archive trades upload %s: %w", key, err)
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.TradeArchiver = (*TradeArchiver)(nil)
