package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"lotkeeper/internal/core/id"
)

// CompressionAlgo specifies the compression algorithm used for a payload.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// AuditEntry is one document lifecycle event: a transfer created, approved,
// executed. The quantity trail lives in the movement ledger; this records
// the surrounding who/what/when with the full document payload.
type AuditEntry struct {
	ID                id.ID           `db:"id"`
	EntityType        string          `db:"entity_type"`
	EntityID          id.ID           `db:"entity_id"`
	Action            string          `db:"action"`
	Payload           json.RawMessage `db:"payload"`
	PayloadCompressed []byte          `db:"payload_compressed"`
	CompressionAlgo   CompressionAlgo `db:"compression_algo"`
	CreatedAt         time.Time       `db:"created_at"`
}

// AuditService stores audit entries, compressing large payloads with zstd.
type AuditService struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int // bytes
}

// NewAuditService creates a new audit service.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &AuditService{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: 10 * 1024,
	}, nil
}

// Record marshals payload and stores an audit entry. Satisfies the
// transfer.Auditor interface.
func (s *AuditService) Record(ctx context.Context, entityType string, entityID id.ID, action string, payload any) error {
	var payloadJSON json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal audit payload: %w", err)
		}
		payloadJSON = b
	}

	entry := AuditEntry{
		ID:              id.New(),
		EntityType:      entityType,
		EntityID:        entityID,
		Action:          action,
		Payload:         payloadJSON,
		CompressionAlgo: CompressionNone,
		CreatedAt:       time.Now().UTC(),
	}

	if len(entry.Payload) > s.compressThreshold {
		entry.PayloadCompressed = s.encoder.EncodeAll(entry.Payload, nil)
		entry.Payload = nil
		entry.CompressionAlgo = CompressionZstd
	}

	const sql = `
		INSERT INTO sys_audit (
			id, entity_type, entity_id, action,
			payload, payload_compressed, compression_algo, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	querier := s.txManager.GetQuerier(ctx)
	_, err := querier.Exec(ctx, sql,
		entry.ID, entry.EntityType, entry.EntityID, entry.Action,
		entry.Payload, entry.PayloadCompressed, entry.CompressionAlgo,
		entry.CreatedAt,
	)

	return err
}

// GetEntityHistory retrieves audit history for an entity, newest first,
// with compressed payloads inflated.
func (s *AuditService) GetEntityHistory(ctx context.Context, entityType string, entityID id.ID, limit int) ([]AuditEntry, error) {
	const sql = `
		SELECT id, entity_type, entity_id, action,
		       payload, payload_compressed, compression_algo, created_at
		FROM sys_audit
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		err := rows.Scan(
			&e.ID, &e.EntityType, &e.EntityID, &e.Action,
			&e.Payload, &e.PayloadCompressed, &e.CompressionAlgo,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		if e.CompressionAlgo == CompressionZstd && len(e.PayloadCompressed) > 0 {
			decompressed, err := s.decoder.DecodeAll(e.PayloadCompressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress payload: %w", err)
			}
			e.Payload = decompressed
			e.PayloadCompressed = nil
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
