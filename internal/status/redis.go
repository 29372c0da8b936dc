package status

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/technosupport/ts-hubmon/internal/stream"
)

const stateKey = "hubmon:stream:state"

// Store keeps the latest stream state in Redis so liveness probes and
// sibling processes can read it without touching the database.
type Store struct {
	rdb *redis.Client
}

func NewStore(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// StreamStatus implements stream.StatusSink. The write is bounded by
// its own short deadline so a slow Redis cannot stall the stream.
func (s *Store) StreamStatus(ctx context.Context, change stream.StatusChange) {
	data, err := json.Marshal(change)
	if err != nil {
		log.Printf("[ERROR] Status: marshal state: %v", err)
		return
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.rdb.Set(wctx, stateKey, data, 0).Err(); err != nil {
		log.Printf("[WARN] Status: write state to redis: %v", err)
	}
}

// Current returns the last recorded state. A missing key reads as
// disconnected, which is what a fresh deploy actually is.
func (s *Store) Current(ctx context.Context) (stream.StatusChange, error) {
	data, err := s.rdb.Get(ctx, stateKey).Bytes()
	if err == redis.Nil {
		return stream.StatusChange{State: stream.StateDisconnected}, nil
	}
	if err != nil {
		return stream.StatusChange{}, err
	}

	var change stream.StatusChange
	if err := json.Unmarshal(data, &change); err != nil {
		return stream.StatusChange{}, err
	}
	return change, nil
}
