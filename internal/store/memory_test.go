package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetMerge(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	got, err := ms.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Nil(t, got, "missing path reads as nil")

	require.NoError(t, ms.Merge(ctx, "users/u1", map[string]interface{}{
		"displayName": "Dana",
	}))
	require.NoError(t, ms.Merge(ctx, "users/u1/progress", map[string]interface{}{
		"points": 20,
		"level":  1,
	}))

	// Merge дозаписывает, не затирая соседние поля.
	require.NoError(t, ms.Merge(ctx, "users/u1/progress", map[string]interface{}{
		"streak": 3,
	}))

	got, err = ms.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", got["displayName"])

	prog, ok := got["progress"].(map[string]interface{})
	require.True(t, ok, "subtree snapshot includes children")
	assert.Equal(t, 20, prog["points"])
	assert.Equal(t, 3, prog["streak"])
}

func TestMemoryStoreSnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	require.NoError(t, ms.Merge(ctx, "users/u1", map[string]interface{}{"displayName": "Dana"}))

	got, err := ms.Get(ctx, "users/u1")
	require.NoError(t, err)
	got["displayName"] = "Mallory"

	again, err := ms.Get(ctx, "users/u1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", again["displayName"], "snapshots are copies")
}

func TestMemoryStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	require.NoError(t, ms.Merge(ctx, "languages/spanish/levels/A1/classes/class1", map[string]interface{}{
		"title": "A1 Lesson 1",
	}))

	ch, cancel := ms.Subscribe("languages/spanish/levels/A1/classes")
	defer cancel()

	// Первый снимок приходит сразу.
	select {
	case snap := <-ch:
		require.NotNil(t, snap)
		class1, _ := snap["class1"].(map[string]interface{})
		assert.Equal(t, "A1 Lesson 1", class1["title"])
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	// Изменение под подписанным путем рождает событие.
	require.NoError(t, ms.Merge(ctx, "languages/spanish/levels/A1/classes/class2", map[string]interface{}{
		"title": "A1 Lesson 2",
	}))
	select {
	case snap := <-ch:
		_, ok := snap["class2"]
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no update after merge")
	}

	// Изменение в чужом поддереве событий не рождает.
	require.NoError(t, ms.Merge(ctx, "users/u1", map[string]interface{}{"displayName": "Dana"}))
	select {
	case snap, open := <-ch:
		if open {
			t.Fatalf("unexpected snapshot: %v", snap)
		}
	case <-time.After(50 * time.Millisecond):
	}

	// После cancel канал закрывается.
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

// Подписка не должна зависать, даже если записи идут непрерывно и
// уведомление успевает занять буфер канала до отправки первого снимка.
func TestMemoryStoreSubscribeUnderConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			_ = ms.Merge(ctx, "users/u1", map[string]interface{}{"n": i})
		}
	}()

	for i := 0; i < 50; i++ {
		done := make(chan struct{})
		go func() {
			ch, cancel := ms.Subscribe("users/u1")
			<-ch
			cancel()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Subscribe blocked")
		}
	}

	close(stop)
	wg.Wait()
}

func TestPathsOverlap(t *testing.T) {
	assert.True(t, pathsOverlap("a/b", "a/b"))
	assert.True(t, pathsOverlap("a/b", "a/b/c"))
	assert.True(t, pathsOverlap("a/b/c", "a/b"))
	assert.False(t, pathsOverlap("a/b", "a/bc"))
	assert.False(t, pathsOverlap("a/b", "c/d"))
}

func TestEncodeEmail(t *testing.T) {
	assert.Equal(t, "dana@example,com", EncodeEmail("Dana@Example.com"))
}
