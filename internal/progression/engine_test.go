package progression

import (
	"context"
	"testing"
	"time"

	"speak-master/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedEngine(s store.Store, day string) *Engine {
	e := NewEngine(s)
	e.now = func() time.Time {
		t, _ := time.Parse(dateLayout, day)
		return t
	}
	return e
}

func TestEvaluateAttempt(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []TaskOutcome
		wantRate float64
		wantPass bool
	}{
		{
			name:     "no outcomes at all",
			outcomes: nil,
			wantRate: 100,
			wantPass: true,
		},
		{
			name: "only presentations",
			outcomes: []TaskOutcome{
				{Kind: KindNewSentence, Correct: true},
				{Kind: KindNewSentence, Correct: true},
			},
			wantRate: 100,
			wantPass: true,
		},
		{
			name: "exactly 60 percent passes",
			outcomes: []TaskOutcome{
				{Kind: KindCompleteSentence, Correct: true},
				{Kind: KindTrueOrFalse, Correct: true},
				{Kind: KindChooseRight, Correct: true},
				{Kind: KindOrderSentence, Correct: false},
				{Kind: KindSpellLetters, Correct: false},
			},
			wantRate: 60,
			wantPass: true,
		},
		{
			name: "below 60 percent fails",
			outcomes: []TaskOutcome{
				{Kind: KindCompleteSentence, Correct: true},
				{Kind: KindTrueOrFalse, Correct: true},
				{Kind: KindChooseRight, Correct: false},
				{Kind: KindOrderSentence, Correct: false},
			},
			wantRate: 50,
			wantPass: false,
		},
		{
			name: "presentations excluded from scoring",
			outcomes: []TaskOutcome{
				{Kind: KindNewSentence, Correct: true},
				{Kind: KindNewSentence, Correct: true},
				{Kind: KindNewSentence, Correct: true},
				{Kind: KindCompleteSentence, Correct: true},
				{Kind: KindMatchThePairs, Correct: false},
			},
			wantRate: 50,
			wantPass: false,
		},
		{
			name: "all correct",
			outcomes: []TaskOutcome{
				{Kind: KindCompleteSentence, Correct: true},
				{Kind: KindOrderSentence, Correct: true},
			},
			wantRate: 100,
			wantPass: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateAttempt(tt.outcomes)
			assert.InDelta(t, tt.wantRate, got.SuccessRate, 0.001)
			assert.Equal(t, tt.wantPass, got.Passed)
		})
	}
}

func TestApplyPoints(t *testing.T) {
	ctx := context.Background()

	t.Run("plain increment", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, "2025-03-10")
		require.NoError(t, ms.Merge(ctx, store.UserProgressPath("u1"), map[string]interface{}{
			"points": 0, "level": 1,
		}))

		require.NoError(t, e.applyPoints(ctx, "u1"))

		doc, err := ms.Get(ctx, store.UserProgressPath("u1"))
		require.NoError(t, err)
		assert.Equal(t, 20, asInt(doc["points"]))
		assert.Equal(t, 1, asInt(doc["level"]))
	})

	t.Run("rollover at 100 bumps level once", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, "2025-03-10")
		require.NoError(t, ms.Merge(ctx, store.UserProgressPath("u1"), map[string]interface{}{
			"points": 90, "level": 3,
		}))

		require.NoError(t, e.applyPoints(ctx, "u1"))

		doc, err := ms.Get(ctx, store.UserProgressPath("u1"))
		require.NoError(t, err)
		assert.Equal(t, 10, asInt(doc["points"]))
		assert.Equal(t, 4, asInt(doc["level"]))
	})

	t.Run("missing progress doc starts at level 1", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, "2025-03-10")

		require.NoError(t, e.applyPoints(ctx, "u1"))

		doc, err := ms.Get(ctx, store.UserProgressPath("u1"))
		require.NoError(t, err)
		assert.Equal(t, 20, asInt(doc["points"]))
		assert.Equal(t, 1, asInt(doc["level"]))
	})
}

func TestApplyStreak(t *testing.T) {
	ctx := context.Background()
	const today = "2025-03-10"

	seed := func(t *testing.T, ms *store.MemoryStore, streak int, last string) {
		t.Helper()
		fields := map[string]interface{}{"streak": streak}
		if last != "" {
			fields["lastCompletionDate"] = last
		}
		require.NoError(t, ms.Merge(ctx, store.UserProgressPath("u1"), fields))
	}

	check := func(t *testing.T, ms *store.MemoryStore, wantStreak int, wantLast string) {
		t.Helper()
		doc, err := ms.Get(ctx, store.UserProgressPath("u1"))
		require.NoError(t, err)
		assert.Equal(t, wantStreak, asInt(doc["streak"]))
		assert.Equal(t, wantLast, asString(doc["lastCompletionDate"]))
	}

	t.Run("first ever activity starts at 1", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, today)
		require.NoError(t, e.applyStreak(ctx, "u1"))
		check(t, ms, 1, today)
	})

	t.Run("same day is a no-op", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, today)
		seed(t, ms, 5, today)
		require.NoError(t, e.applyStreak(ctx, "u1"))
		check(t, ms, 5, today)
	})

	t.Run("yesterday increments", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, today)
		seed(t, ms, 5, "2025-03-09")
		require.NoError(t, e.applyStreak(ctx, "u1"))
		check(t, ms, 6, today)
	})

	t.Run("three days ago resets then credits today", func(t *testing.T) {
		// Выбранная политика: сломанный бездействием стрик в день
		// возвращения сразу стартует с 1.
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, today)
		seed(t, ms, 7, "2025-03-07")
		require.NoError(t, e.applyStreak(ctx, "u1"))
		check(t, ms, 1, today)
	})

	t.Run("future date is left untouched", func(t *testing.T) {
		// Рассинхрон часов: дату назад не откатываем, стрик не трогаем.
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, today)
		seed(t, ms, 5, "2025-03-12")
		require.NoError(t, e.applyStreak(ctx, "u1"))
		check(t, ms, 5, "2025-03-12")
	})

	t.Run("unparsable date treated as first activity", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, today)
		seed(t, ms, 4, "garbage")
		require.NoError(t, e.applyStreak(ctx, "u1"))
		check(t, ms, 1, today)
	})
}

func TestCommitLessonPass(t *testing.T) {
	ctx := context.Background()

	t.Run("applies all three effects in order", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, "2025-03-10")
		require.NoError(t, ms.Merge(ctx, store.UserProgressPath("u1"), map[string]interface{}{
			"points": 0, "level": 1, "streak": 0,
		}))

		require.NoError(t, e.CommitLessonPass(ctx, "u1", "spanish", "A1", "class1"))

		completed, err := e.CompletedLessons(ctx, "u1", "spanish", "A1")
		require.NoError(t, err)
		assert.True(t, completed["class1"])

		doc, err := ms.Get(ctx, store.UserProgressPath("u1"))
		require.NoError(t, err)
		assert.Equal(t, 20, asInt(doc["points"]))
		assert.Equal(t, 1, asInt(doc["level"]))
		assert.Equal(t, 1, asInt(doc["streak"]))
		assert.Equal(t, "2025-03-10", asString(doc["lastCompletionDate"]))
	})

	t.Run("progress flag is monotonic across repeat commits", func(t *testing.T) {
		ms := store.NewMemoryStore()
		e := fixedEngine(ms, "2025-03-10")

		require.NoError(t, e.CommitLessonPass(ctx, "u1", "spanish", "A1", "class1"))
		require.NoError(t, e.CommitLessonPass(ctx, "u1", "spanish", "A1", "class1"))

		completed, err := e.CompletedLessons(ctx, "u1", "spanish", "A1")
		require.NoError(t, err)
		assert.True(t, completed["class1"])

		// Повтор в тот же день стрик не раздувает.
		doc, err := ms.Get(ctx, store.UserProgressPath("u1"))
		require.NoError(t, err)
		assert.Equal(t, 1, asInt(doc["streak"]))
	})
}

func TestLockStates(t *testing.T) {
	keys := []string{"class1", "class2", "class3"}

	t.Run("empty progress locks everything after the first", func(t *testing.T) {
		states := LockStates(keys, nil)
		assert.Equal(t, UnlockedIncomplete, states["class1"])
		assert.Equal(t, Locked, states["class2"])
		assert.Equal(t, Locked, states["class3"])
	})

	t.Run("completing the first unlocks the second", func(t *testing.T) {
		states := LockStates(keys, map[string]bool{"class1": true})
		assert.Equal(t, Completed, states["class1"])
		assert.Equal(t, UnlockedIncomplete, states["class2"])
		assert.Equal(t, Locked, states["class3"])
	})

	t.Run("completed never reverts", func(t *testing.T) {
		completed := map[string]bool{"class1": true, "class2": true}
		states := LockStates(keys, completed)
		assert.Equal(t, Completed, states["class1"])
		assert.Equal(t, Completed, states["class2"])
		assert.Equal(t, UnlockedIncomplete, states["class3"])

		// Дальнейшие прохождения состояние пройденных не меняют.
		completed["class3"] = true
		states = LockStates(keys, completed)
		assert.Equal(t, Completed, states["class1"])
		assert.Equal(t, Completed, states["class2"])
		assert.Equal(t, Completed, states["class3"])
	})
}

func TestDaysBetween(t *testing.T) {
	days, ok := DaysBetween("2025-03-07", "2025-03-10")
	require.True(t, ok)
	assert.Equal(t, 3, days)

	_, ok = DaysBetween("", "2025-03-10")
	assert.False(t, ok)

	_, ok = DaysBetween("not-a-date", "2025-03-10")
	assert.False(t, ok)
}
