package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"datasethub/internal/model"
)

// DatasetCache keeps recently read dataset records in Redis so edit and
// delete flows do not hit Mongo for every lookup. Entries are invalidated on
// any write to the record.
type DatasetCache struct {
	client    *redisv9.Client
	recordTTL time.Duration
}

func NewDatasetCache(client *redisv9.Client, recordTTL time.Duration) *DatasetCache {
	if recordTTL <= 0 {
		recordTTL = 60 * time.Second
	}
	return &DatasetCache{
		client:    client,
		recordTTL: recordTTL,
	}
}

func (c *DatasetCache) GetRecord(ctx context.Context, datasetID string) (*model.DatasetRecord, bool, error) {
	raw, err := c.client.Get(ctx, c.recordKey(datasetID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get record failed: %w", err)
	}

	var record model.DatasetRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached record failed: %w", err)
	}
	return &record, true, nil
}

func (c *DatasetCache) SetRecord(ctx context.Context, record *model.DatasetRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.recordKey(record.DatasetID), payload, c.recordTTL).Err(); err != nil {
		return fmt.Errorf("redis set record failed: %w", err)
	}
	return nil
}

func (c *DatasetCache) DeleteRecord(ctx context.Context, datasetID string) error {
	if err := c.client.Del(ctx, c.recordKey(datasetID)).Err(); err != nil {
		return fmt.Errorf("redis delete record failed: %w", err)
	}
	return nil
}

func (c *DatasetCache) recordKey(datasetID string) string {
	return fmt.Sprintf("dataset:record:%s", datasetID)
}
