package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kosss26/storybot/pkg/run"
)

// RedisStore implements RunStore on Redis. Run and user records are
// stored as JSON values, flags as one hash per run. Active runs are
// indexed two ways: a per-(user,story) key pointing at the active run id
// and a set of all active run ids for operational listing.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStore implements RunStore interface
var _ RunStore = (*RedisStore)(nil)

// NewRedisStore creates a new Redis-backed run store.
func NewRedisStore(redisAddr string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	return &RedisStore{
		client: rdb,
		logger: logger,
	}
}

func (r *RedisStore) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Key layout. Run records never expire: an unfinished run must survive
// until it is played out or reset, and the finished marker persists past
// reset so allow_restart can be enforced.

func userKey(userID string) string {
	return "user:" + userID
}

func runKey(id string) string {
	return "run:" + id
}

func activeKey(userID, storyID string) string {
	return "active:" + userID + ":" + storyID
}

func flagsKey(id string) string {
	return "flags:" + id
}

func finishedKey(userID, storyID string) string {
	return "finished:" + userID + ":" + storyID
}

// activeSetKey indexes all unfinished run ids for ListActiveRuns.
const activeSetKey = "runs:active"

// User operations

func (r *RedisStore) EnsureUser(ctx context.Context, userID, username string) (*run.User, error) {
	key := userKey(userID)
	cmd := r.client.Get(ctx, key)
	if err := cmd.Err(); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if data := cmd.Val(); data != "" {
		var u run.User
		if err := json.Unmarshal([]byte(data), &u); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user: %w", err)
		}
		return &u, nil
	}

	u := &run.User{
		ID:        userID,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	// NX keeps the earliest record if two first contacts race.
	if err := r.client.SetNX(ctx, key, string(data), 0).Err(); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	r.logger.Info("User created", "user_id", userID, "username", username)
	return u, nil
}

// Run operations

func (r *RedisStore) saveRun(ctx context.Context, rn *run.Run) error {
	data, err := json.Marshal(rn)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := r.client.Set(ctx, runKey(rn.ID.String()), string(data), 0).Err(); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

func (r *RedisStore) loadRun(ctx context.Context, id string) (*run.Run, error) {
	cmd := r.client.Get(ctx, runKey(id))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var rn run.Run
	if err := json.Unmarshal([]byte(cmd.Val()), &rn); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &rn, nil
}

func (r *RedisStore) CreateRun(ctx context.Context, userID, storyID, startPosition string) (*run.Run, error) {
	rn := run.New(userID, storyID, startPosition)

	data, err := json.Marshal(rn)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey(rn.ID.String()), string(data), 0)
	pipe.Set(ctx, activeKey(userID, storyID), rn.ID.String(), 0)
	pipe.SAdd(ctx, activeSetKey, rn.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	r.logger.Info("Run created", "run_id", rn.ID, "user_id", userID, "story_id", storyID, "position", startPosition)
	return rn, nil
}

func (r *RedisStore) GetRun(ctx context.Context, id uuid.UUID) (*run.Run, error) {
	return r.loadRun(ctx, id.String())
}

func (r *RedisStore) GetActiveRun(ctx context.Context, userID, storyID string) (*run.Run, error) {
	cmd := r.client.Get(ctx, activeKey(userID, storyID))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load active run index: %w", err)
	}

	rn, err := r.loadRun(ctx, cmd.Val())
	if err != nil {
		return nil, err
	}
	if rn == nil {
		// Dangling index entry; treat as no active run.
		r.logger.Warn("Active run index points at missing run", "run_id", cmd.Val(), "user_id", userID, "story_id", storyID)
		return nil, nil
	}
	return rn, nil
}

func (r *RedisStore) ListActiveRuns(ctx context.Context) ([]*run.Run, error) {
	ids, err := r.client.SMembers(ctx, activeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active runs: %w", err)
	}

	runs := make([]*run.Run, 0, len(ids))
	for _, id := range ids {
		rn, err := r.loadRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if rn == nil {
			r.logger.Warn("Active set contains missing run", "run_id", id)
			continue
		}
		runs = append(runs, rn)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs, nil
}

func (r *RedisStore) UpdatePosition(ctx context.Context, id uuid.UUID, position string) error {
	rn, err := r.loadRun(ctx, id.String())
	if err != nil {
		return err
	}
	if rn == nil {
		return ErrRunNotFound
	}

	rn.Position = position
	return r.saveRun(ctx, rn)
}

func (r *RedisStore) FinishRun(ctx context.Context, id uuid.UUID) error {
	rn, err := r.loadRun(ctx, id.String())
	if err != nil {
		return err
	}
	if rn == nil {
		return ErrRunNotFound
	}

	now := time.Now().UTC()
	rn.Finished = true
	rn.FinishedAt = &now

	data, err := json.Marshal(rn)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, runKey(rn.ID.String()), string(data), 0)
	pipe.Del(ctx, activeKey(rn.UserID, rn.StoryID))
	pipe.SRem(ctx, activeSetKey, rn.ID.String())
	pipe.Set(ctx, finishedKey(rn.UserID, rn.StoryID), "1", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	r.logger.Info("Run finished", "run_id", rn.ID, "user_id", rn.UserID, "story_id", rn.StoryID, "position", rn.Position)
	return nil
}

func (r *RedisStore) HasFinishedRun(ctx context.Context, userID, storyID string) (bool, error) {
	n, err := r.client.Exists(ctx, finishedKey(userID, storyID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check finished marker: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) ResetRun(ctx context.Context, userID, storyID string) error {
	cmd := r.client.Get(ctx, activeKey(userID, storyID))
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return ErrRunNotFound
		}
		return fmt.Errorf("failed to load active run index: %w", err)
	}
	id := cmd.Val()

	// Flags first, then the run, in one transaction.
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, flagsKey(id))
	pipe.Del(ctx, runKey(id))
	pipe.Del(ctx, activeKey(userID, storyID))
	pipe.SRem(ctx, activeSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to reset run: %w", err)
	}

	r.logger.Info("Run reset", "run_id", id, "user_id", userID, "story_id", storyID)
	return nil
}

// Flag operations

func (r *RedisStore) GetFlags(ctx context.Context, runID uuid.UUID) (map[string]string, error) {
	flags, err := r.client.HGetAll(ctx, flagsKey(runID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	return flags, nil
}

func (r *RedisStore) SetFlag(ctx context.Context, runID uuid.UUID, name, value string) error {
	if err := r.client.HSet(ctx, flagsKey(runID.String()), name, value).Err(); err != nil {
		return fmt.Errorf("failed to set flag: %w", err)
	}
	return nil
}

func (r *RedisStore) RemoveFlag(ctx context.Context, runID uuid.UUID, name string) error {
	if err := r.client.HDel(ctx, flagsKey(runID.String()), name).Err(); err != nil {
		return fmt.Errorf("failed to remove flag: %w", err)
	}
	return nil
}
