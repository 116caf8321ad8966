package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fileconvert/database"
	"fileconvert/models"
	"fileconvert/store"
)

const (
	statusKeyPrefix = "operation:status:"
	statusTTL       = 10 * time.Minute
)

// StatusMirror keeps a best-effort copy of operation records in Redis
// so status polls can still be answered after the in-memory record has
// been evicted (or the process restarted). It is never authoritative.
type StatusMirror struct {
	cache *database.Cache
}

func NewStatusMirror(cache *database.Cache) *StatusMirror {
	return &StatusMirror{cache: cache}
}

func (sm *StatusMirror) Set(ctx context.Context, op *models.Operation) error {
	data, err := json.Marshal(op)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%s", statusKeyPrefix, op.ID)
	return sm.cache.Set(ctx, key, data, statusTTL)
}

func (sm *StatusMirror) Get(ctx context.Context, operationID string) (*models.Operation, error) {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, operationID)

	data, err := sm.cache.Get(ctx, key)
	if err != nil {
		if database.IsMiss(err) {
			return nil, store.ErrOperationNotFound
		}
		return nil, err
	}

	var op models.Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

func (sm *StatusMirror) Delete(ctx context.Context, operationID string) error {
	key := fmt.Sprintf("%s%s", statusKeyPrefix, operationID)
	return sm.cache.Del(ctx, key)
}
