package cachemanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTemplateLoader(calls *int, fail bool) func(ctx context.Context, id string) (cachedTemplate, error) {
	return func(_ context.Context, id string) (cachedTemplate, error) {
		*calls++
		if fail {
			return cachedTemplate{}, errors.New("template lookup failed")
		}
		return cachedTemplate{ID: id, Body: "Hi {{first_name}}"}, nil
	}
}

func newTemplateCache(calls *int, fail bool) *ReadThroughCache[string, cachedTemplate] {
	backing := NewInMemoryCacheManager[string, cachedTemplate]("templates", time.Minute, time.Minute)
	return NewReadThroughCache(backing, time.Minute, newTemplateLoader(calls, fail))
}

func TestReadThroughCache_Get_PopulatesAndReuses(t *testing.T) {
	var calls int
	rtc := newTemplateCache(&calls, false)

	first, err := rtc.Get(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, "Hi {{first_name}}", first.Body)

	second, err := rtc.Get(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, first, second)

	require.Equal(t, 1, calls, "second read should come from cache")
}

func TestReadThroughCache_Get_DistinctKeysLoadSeparately(t *testing.T) {
	var calls int
	rtc := newTemplateCache(&calls, false)

	a, err := rtc.Get(context.Background(), "tpl-1")
	require.NoError(t, err)
	b, err := rtc.Get(context.Background(), "tpl-2")
	require.NoError(t, err)

	require.Equal(t, "tpl-1", a.ID)
	require.Equal(t, "tpl-2", b.ID)
	require.Equal(t, 2, calls)
}

func TestReadThroughCache_Get_LoaderError(t *testing.T) {
	var calls int
	rtc := newTemplateCache(&calls, true)

	_, err := rtc.Get(context.Background(), "tpl-1")
	require.Error(t, err)

	// Errors must not be cached.
	_, err = rtc.Get(context.Background(), "tpl-1")
	require.Error(t, err)
	require.Equal(t, 2, calls)
}

func TestReadThroughCache_FlushForcesReload(t *testing.T) {
	var calls int
	rtc := newTemplateCache(&calls, false)

	_, err := rtc.Get(context.Background(), "tpl-1")
	require.NoError(t, err)

	require.NoError(t, rtc.Flush(context.Background()))

	_, err = rtc.Get(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, 2, calls, "flush should force the loader to run again")
}
