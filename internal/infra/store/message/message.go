package messagestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const Collection = "messages"

type Notifier interface {
	Notify(collection string)
}

type redisMessageStore struct {
	rdb      redis.Cmdable
	notifier Notifier
}

func NewRedisMessageStore(rdb redis.Cmdable, notifier Notifier) *redisMessageStore {
	return &redisMessageStore{rdb: rdb, notifier: notifier}
}

func (s *redisMessageStore) Create(ctx context.Context, p domain.PublishParams) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return "", fmt.Errorf("marshal attributes: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, messageKey(id),
		"topic", p.Topic,
		"message", p.Message,
		"attributes", attrs,
		"status", string(domain.MessagePublished),
		"published_at", now.UnixNano(),
	)
	pipe.ZAdd(ctx, messagesByPublishedKey(), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: id,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	s.notify()
	return id, nil
}

// MarkProcessed flips the record forward. Re-marking an already processed
// message rewrites the same shape, so transport redelivery stays idempotent.
func (s *redisMessageStore) MarkProcessed(ctx context.Context, id string, details domain.ProcessingDetails) error {
	hk := messageKey(id)

	n, err := s.rdb.Exists(ctx, hk).Result()
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrMessageNotFound
	}

	d, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal processing details: %w", err)
	}

	err = s.rdb.HSet(ctx, hk,
		"status", string(domain.MessageProcessed),
		"processed_at", time.Now().UTC().UnixNano(),
		"processing_details", d,
	).Err()
	if err != nil {
		return fmt.Errorf("mark processed %s: %w", id, err)
	}

	s.notify()
	return nil
}

func (s *redisMessageStore) Message(ctx context.Context, id string) (domain.Message, error) {
	res, err := s.rdb.HGetAll(ctx, messageKey(id)).Result()
	if err != nil {
		return domain.Message{}, fmt.Errorf("read message %s: %w", id, err)
	}
	if len(res) == 0 {
		return domain.Message{}, domain.ErrMessageNotFound
	}

	return parseMessage(id, res), nil
}

// List returns the top-limit records ordered by published_at descending,
// ties broken by descending id.
func (s *redisMessageStore) List(ctx context.Context, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		return []domain.Message{}, nil
	}

	ids, err := s.rdb.ZRevRange(ctx, messagesByPublishedKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	msgs := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		m, err := s.Message(ctx, id)
		if err != nil {
			continue
		}
		msgs = append(msgs, m)
	}

	return msgs, nil
}

func (s *redisMessageStore) notify() {
	if s.notifier != nil {
		s.notifier.Notify(Collection)
	}
}

func parseMessage(id string, res map[string]string) domain.Message {
	m := domain.Message{
		ID:         id,
		Topic:      res["topic"],
		Message:    res["message"],
		Status:     domain.MessageStatus(res["status"]),
		Attributes: map[string]string{},
	}

	if v := res["attributes"]; v != "" {
		_ = json.Unmarshal([]byte(v), &m.Attributes)
	}
	if v := res["published_at"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			m.PublishedAt = time.Unix(0, n).UTC()
		}
	}
	if v := res["processed_at"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			ts := time.Unix(0, n).UTC()
			m.ProcessedAt = &ts
		}
	}
	if v := res["processing_details"]; v != "" {
		var d domain.ProcessingDetails
		if err := json.Unmarshal([]byte(v), &d); err == nil {
			m.ProcessingDetails = &d
		}
	}

	return m
}

func messageKey(id string) string {
	return "message:" + id
}

func messagesByPublishedKey() string {
	return "messages:by_published_at"
}
