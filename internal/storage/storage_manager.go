/**
 * Storage Manager for the OCR worker
 *
 * Coordinates PostgreSQL (durable job records) and an optional Redis
 * read-through cache for finished jobs, which are polled far more often
 * than they change.
 */

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 10 * time.Minute

// StorageManager coordinates the job store and the result cache
type StorageManager struct {
	postgres JobStore
	cache    *redis.Client
	cacheTTL time.Duration
	prefix   string
}

// StorageManagerConfig holds storage manager configuration
type StorageManagerConfig struct {
	// Store is the durable job store, usually a *PostgresClient
	Store JobStore
	// Cache is optional; nil disables caching
	Cache    *redis.Client
	CacheTTL time.Duration
	// KeyPrefix namespaces cache keys (default "ocr:job:")
	KeyPrefix string
}

// NewStorageManager creates a new storage manager
func NewStorageManager(cfg *StorageManagerConfig) (*StorageManager, error) {
	if cfg == nil || cfg.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "ocr:job:"
	}

	return &StorageManager{
		postgres: cfg.Store,
		cache:    cfg.Cache,
		cacheTTL: ttl,
		prefix:   prefix,
	}, nil
}

// UpdateJobStatus writes the update to the store and drops any cached copy
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	if err := sm.postgres.UpdateJobStatus(ctx, update); err != nil {
		return err
	}
	if sm.cache != nil {
		if err := sm.cache.Del(ctx, sm.prefix+update.JobID).Err(); err != nil {
			return fmt.Errorf("failed to invalidate cached job: %w", err)
		}
	}
	return nil
}

// GetJobByID returns a job, serving finished jobs from the cache when possible
func (sm *StorageManager) GetJobByID(ctx context.Context, jobID string) (*Job, error) {
	// Any cache miss or cache failure falls through to the store.
	if sm.cache != nil {
		if raw, err := sm.cache.Get(ctx, sm.prefix+jobID).Bytes(); err == nil {
			var job Job
			if err := json.Unmarshal(raw, &job); err == nil {
				return &job, nil
			}
		}
	}

	job, err := sm.postgres.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if sm.cache != nil && isTerminal(job.Status) {
		if raw, err := json.Marshal(job); err == nil {
			sm.cache.Set(ctx, sm.prefix+jobID, raw, sm.cacheTTL)
		}
	}
	return job, nil
}

// GetStats returns statistics from both systems
func (sm *StorageManager) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}

	if pg, ok := sm.postgres.(*PostgresClient); ok {
		pgStats := pg.GetStats()
		stats["postgres"] = map[string]interface{}{
			"max_open_connections": pgStats.MaxOpenConnections,
			"open_connections":     pgStats.OpenConnections,
			"in_use":               pgStats.InUse,
			"idle":                 pgStats.Idle,
			"wait_count":           pgStats.WaitCount,
			"wait_duration":        pgStats.WaitDuration.String(),
		}
	}

	if sm.cache != nil {
		poolStats := sm.cache.PoolStats()
		stats["cache"] = map[string]interface{}{
			"hits":        poolStats.Hits,
			"misses":      poolStats.Misses,
			"total_conns": poolStats.TotalConns,
			"idle_conns":  poolStats.IdleConns,
		}
	}

	return stats, nil
}

// Close closes all connections
func (sm *StorageManager) Close() error {
	var pgErr, cacheErr error

	if pg, ok := sm.postgres.(*PostgresClient); ok {
		pgErr = pg.Close()
	}

	if sm.cache != nil {
		cacheErr = sm.cache.Close()
	}

	if pgErr != nil {
		return fmt.Errorf("failed to close PostgreSQL: %w", pgErr)
	}

	if cacheErr != nil {
		return fmt.Errorf("failed to close Redis cache: %w", cacheErr)
	}

	return nil
}

func isTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

var (
	nullEscape    = regexp.MustCompile(`\\u0000`)
	controlEscape = regexp.MustCompile(`\\u00[01][0-9a-fA-F]`)
)

// sanitizeJSONForPostgres removes escape sequences JSONB rejects. Recognized
// text occasionally contains NUL and other control characters.
func sanitizeJSONForPostgres(jsonBytes []byte) []byte {
	result := nullEscape.ReplaceAll(jsonBytes, []byte{})
	return controlEscape.ReplaceAll(result, []byte(" "))
}
