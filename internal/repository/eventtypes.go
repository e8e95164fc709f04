// Package repository is the Postgres persistence layer for the dispatcher.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"comm-dispatch/internal/common/logger"
	"comm-dispatch/internal/models"
)

const eventTypeColumns = `id, code, name, category, email_subject_template, email_body_template,
	email_body_html_template, sms_template, date_created, date_updated`

type EventTypeRepository struct {
	db *sql.DB
}

func NewEventTypeRepository(db *sql.DB) *EventTypeRepository {
	return &EventTypeRepository{db: db}
}

// GetByCode returns models.ErrNotFound when no event type has code.
func (r *EventTypeRepository) GetByCode(ctx context.Context, code models.EventCode) (*models.CommunicationEventType, error) {
	var t models.CommunicationEventType
	err := r.db.QueryRowContext(ctx,
		`SELECT `+eventTypeColumns+` FROM communication_eventtype WHERE code = $1`, string(code),
	).Scan(
		&t.ID, &t.Code, &t.Name, &t.Category, &t.EmailSubjectTemplate, &t.EmailBodyTemplate,
		&t.EmailBodyHTMLTemplate, &t.SMSTemplate, &t.DateCreated, &t.DateUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event type %s: %w", code, models.ErrNotFound)
		}
		return nil, fmt.Errorf("query event type %s: %w", code, err)
	}
	return &t, nil
}

// EventTypeStore is what the cache wraps.
type EventTypeStore interface {
	GetByCode(ctx context.Context, code models.EventCode) (*models.CommunicationEventType, error)
}

// CachedEventTypeRepository keeps event types in Redis. Cache failures are logged
// and the database result is used; misses are not cached.
type CachedEventTypeRepository struct {
	next   EventTypeStore
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedEventTypeRepository(next EventTypeStore, rdb *redis.Client, ttl time.Duration, log logger.Logger) *CachedEventTypeRepository {
	return &CachedEventTypeRepository{
		next:   next,
		redis:  rdb,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "eventtype-cache"}),
	}
}

func EventTypeCacheKey(code models.EventCode) string {
	return "commtype:" + string(code)
}

func (r *CachedEventTypeRepository) GetByCode(ctx context.Context, code models.EventCode) (*models.CommunicationEventType, error) {
	key := EventTypeCacheKey(code)

	val, err := r.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var t models.CommunicationEventType
		if err := json.Unmarshal([]byte(val), &t); err == nil {
			return &t, nil
		}
		r.logger.Warn("discarding unreadable cached event type", map[string]interface{}{"key": key})
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("event type cache read failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}

	t, err := r.next.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(t)
	if err == nil {
		if err := r.redis.Set(ctx, key, data, r.ttl).Err(); err != nil {
			r.logger.Warn("event type cache write failed", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
		}
	}
	return t, nil
}
