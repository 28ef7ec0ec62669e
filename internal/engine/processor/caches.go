package processor

import (
	"context"
	"time"

	"github.com/zjrosen/followup/internal/cachemanager"
	"github.com/zjrosen/followup/internal/message"
	"github.com/zjrosen/followup/internal/settings"
)

// cacheTTL outlives any realistic tick; the scheduler flushes both
// caches at tick start, so the TTL is a backstop, not the freshness
// mechanism.
const cacheTTL = 5 * time.Minute

// CachedSettings serves provider settings to send processors. Within a
// tick every send shares one settings read; across ticks the scheduler
// flush guarantees fresh rows.
type CachedSettings struct {
	sms   *cachemanager.ReadThroughCache[string, settings.SMSSettings]
	email *cachemanager.ReadThroughCache[string, settings.EmailSettings]
}

// NewCachedSettings wraps the settings service with per-tick caches.
func NewCachedSettings(svc *settings.Service) *CachedSettings {
	return &CachedSettings{
		sms: cachemanager.NewReadThroughCache(
			cachemanager.NewInMemoryCacheManager[string, settings.SMSSettings]("sms-settings", cacheTTL, 10*time.Minute),
			cacheTTL,
			func(ctx context.Context, _ string) (settings.SMSSettings, error) {
				return svc.SMS(ctx)
			},
		),
		email: cachemanager.NewReadThroughCache(
			cachemanager.NewInMemoryCacheManager[string, settings.EmailSettings]("email-settings", cacheTTL, 10*time.Minute),
			cacheTTL,
			func(ctx context.Context, _ string) (settings.EmailSettings, error) {
				return svc.Email(ctx)
			},
		),
	}
}

// SMS returns the cached SMS settings.
func (c *CachedSettings) SMS(ctx context.Context) (settings.SMSSettings, error) {
	return c.sms.Get(ctx, settings.KeySMS)
}

// Email returns the cached email settings.
func (c *CachedSettings) Email(ctx context.Context) (settings.EmailSettings, error) {
	return c.email.Get(ctx, settings.KeyEmail)
}

// Flush drops both caches. The scheduler calls this at tick start.
func (c *CachedSettings) Flush(ctx context.Context) error {
	if err := c.sms.Flush(ctx); err != nil {
		return err
	}
	return c.email.Flush(ctx)
}

// CachedTemplates serves template rows to send processors with the same
// per-tick lifetime as CachedSettings.
type CachedTemplates struct {
	cache *cachemanager.ReadThroughCache[string, *message.Template]
}

// NewCachedTemplates wraps the template repository with a per-tick
// cache.
func NewCachedTemplates(repo message.TemplateRepository) *CachedTemplates {
	return &CachedTemplates{
		cache: cachemanager.NewReadThroughCache(
			cachemanager.NewInMemoryCacheManager[string, *message.Template]("templates", cacheTTL, 10*time.Minute),
			cacheTTL,
			func(ctx context.Context, id string) (*message.Template, error) {
				return repo.Get(ctx, id)
			},
		),
	}
}

// Get returns the template by id, from cache when warm.
func (c *CachedTemplates) Get(ctx context.Context, id string) (*message.Template, error) {
	return c.cache.Get(ctx, id)
}

// Flush drops the cache. The scheduler calls this at tick start.
func (c *CachedTemplates) Flush(ctx context.Context) error {
	return c.cache.Flush(ctx)
}
