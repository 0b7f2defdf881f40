package jobs

import (
	"context"
	"log"
	"time"

	"speak-master/internal/progression"
	"speak-master/internal/store"

	"github.com/robfig/cron/v3"
)

// StartStreakSweeper запускает ежедневную уборку стриков: у пользователей
// без активности больше одного календарного дня стрик обнуляется, чтобы
// профиль не показывал устаревшее значение. Зачет сегодняшнего прохождения
// всегда делает движок при коммите урока - уборка только сбрасывает.
func StartStreakSweeper(s store.Store) *cron.Cron {
	log.Println("[STREAK-SWEEPER] Initializing streak sweeper...")

	c := cron.New()
	c.AddFunc("0 3 * * *", func() {
		log.Println("[STREAK-SWEEPER] Running daily streak check...")
		if err := SweepStaleStreaks(context.Background(), s, time.Now()); err != nil {
			log.Printf("[STREAK-SWEEPER] Sweep failed: %v", err)
		}
	})
	c.Start()

	log.Println("[STREAK-SWEEPER] Streak sweeper started - runs daily at 3 AM")
	return c
}

// SweepStaleStreaks обнуляет стрики, сломанные бездействием.
func SweepStaleStreaks(ctx context.Context, s store.Store, now time.Time) error {
	users, err := s.Get(ctx, "users")
	if err != nil {
		return err
	}

	today := now.Format("2006-01-02")
	swept := 0
	for userID, v := range users {
		doc, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		prog, ok := doc["progress"].(map[string]interface{})
		if !ok {
			continue
		}

		streak := intField(prog["streak"])
		last, _ := prog["lastCompletionDate"].(string)
		if streak == 0 || last == "" {
			continue
		}

		days, ok := progression.DaysBetween(last, today)
		if !ok || days <= 1 {
			continue
		}

		if err := s.Merge(ctx, store.UserProgressPath(userID), map[string]interface{}{
			"streak": 0,
		}); err != nil {
			log.Printf("[STREAK-SWEEPER] Failed to reset streak for user %s: %v", userID, err)
			continue
		}
		swept++
	}

	log.Printf("[STREAK-SWEEPER] Done, %d stale streak(s) reset", swept)
	return nil
}

func intField(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
