package progression

import (
	"context"
	"fmt"
	"time"

	"speak-master/internal/store"
)

// PointsPerLesson и PassThreshold - правила начисления:
// за пройденный урок +20 очков, очки по модулю 100 с переносом в уровень,
// урок засчитан при доле правильных ответов не ниже 60%.
const (
	PointsPerLesson = 20
	PointsPerLevel  = 100
	PassThreshold   = 60.0

	dateLayout = "2006-01-02"
)

// TaskOutcome - результат одного задания в рамках попытки, в порядке урока.
type TaskOutcome struct {
	Kind    string `json:"kind"`
	Correct bool   `json:"correct"`
}

// AttemptResult - итог попытки прохождения урока.
type AttemptResult struct {
	SuccessRate   float64 `json:"successRate"`
	Passed        bool    `json:"passed"`
	CorrectCount  int     `json:"correctCount"`
	ScorableCount int     `json:"scorableCount"`
}

// EvaluateAttempt - чистая функция: по результатам заданий считает
// долю правильных ответов среди оцениваемых заданий. Презентации
// (newSentence) в счет не идут. Урок без оцениваемых заданий
// считается пройденным (rate = 100).
func EvaluateAttempt(outcomes []TaskOutcome) AttemptResult {
	var correct, scorable int
	for _, o := range outcomes {
		if !Scorable(o.Kind) {
			continue
		}
		scorable++
		if o.Correct {
			correct++
		}
	}

	rate := 100.0
	if scorable > 0 {
		rate = float64(correct) / float64(scorable) * 100
	}

	return AttemptResult{
		SuccessRate:   rate,
		Passed:        rate >= PassThreshold,
		CorrectCount:  correct,
		ScorableCount: scorable,
	}
}

// LockState - производное состояние урока в дереве уровня.
type LockState int

const (
	Locked LockState = iota
	UnlockedIncomplete
	Completed
)

// LockStates вычисляет состояние каждого урока: первый урок открыт
// всегда, урок с индексом i открыт, когда пройден урок i-1.
// Completed никогда не откатывается - completed берется из
// userProgress, где флаги только взводятся.
func LockStates(orderedKeys []string, completed map[string]bool) map[string]LockState {
	states := make(map[string]LockState, len(orderedKeys))
	for i, key := range orderedKeys {
		switch {
		case completed[key]:
			states[key] = Completed
		case i == 0 || completed[orderedKeys[i-1]]:
			states[key] = UnlockedIncomplete
		default:
			states[key] = Locked
		}
	}
	return states
}

// Engine применяет результат попытки к сохраненному состоянию
// пользователя. Зависит только от интерфейса хранилища, поэтому
// в тестах работает поверх MemoryStore.
type Engine struct {
	store store.Store
	now   func() time.Time
}

func NewEngine(s store.Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// CommitLessonPass фиксирует пройденный урок. Три эффекта строго
// по порядку: флаг прохождения, очки/уровень, стрик. Каждый эффект
// идемпотентен, поэтому повтор всего вызова после сбоя записи безопасен.
func (e *Engine) CommitLessonPass(ctx context.Context, userID, language, level, lessonKey string) error {
	progressPath := store.LessonProgressPath(userID, language, level)
	if err := e.store.Merge(ctx, progressPath, map[string]interface{}{lessonKey: true}); err != nil {
		return fmt.Errorf("failed to mark lesson %s completed: %w", lessonKey, err)
	}

	if err := e.applyPoints(ctx, userID); err != nil {
		return fmt.Errorf("failed to apply points for user %s: %w", userID, err)
	}

	if err := e.applyStreak(ctx, userID); err != nil {
		return fmt.Errorf("failed to apply streak for user %s: %w", userID, err)
	}

	return nil
}

// CompletedLessons возвращает флаги прохождения уроков уровня.
func (e *Engine) CompletedLessons(ctx context.Context, userID, language, level string) (map[string]bool, error) {
	doc, err := e.store.Get(ctx, store.LessonProgressPath(userID, language, level))
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(doc))
	for key, v := range doc {
		completed[key] = asBool(v)
	}
	return completed, nil
}

// applyPoints: +20 очков, при пересечении 100 очки обнуляются по
// модулю и уровень растет ровно на 1 (один урок не может пересечь
// сотню дважды). Обе записи уходят одним Merge.
func (e *Engine) applyPoints(ctx context.Context, userID string) error {
	path := store.UserProgressPath(userID)
	doc, err := e.store.Get(ctx, path)
	if err != nil {
		return err
	}

	points := asInt(doc["points"])
	level := asInt(doc["level"])
	if level < 1 {
		level = 1
	}

	total := points + PointsPerLesson
	return e.store.Merge(ctx, path, map[string]interface{}{
		"points": total % PointsPerLevel,
		"level":  level + total/PointsPerLevel,
	})
}

// applyStreak: один вызов дает ровно один из четырех исходов.
//   - первая активность: стрик = 1;
//   - сегодня уже засчитано: ничего не меняем;
//   - прошел один день: стрик + 1;
//   - прошло больше дня: стрик сломан, сбрасываем и тут же засчитываем
//     сегодняшнее прохождение - итог 1.
//
// Дата из будущего (рассинхрон часов, другое устройство) трактуется
// как "сегодня уже засчитано": откатывать ее назад нельзя.
func (e *Engine) applyStreak(ctx context.Context, userID string) error {
	path := store.UserProgressPath(userID)
	doc, err := e.store.Get(ctx, path)
	if err != nil {
		return err
	}

	today := e.now().Format(dateLayout)
	last := asString(doc["lastCompletionDate"])
	if last == today {
		return nil
	}

	days, ok := DaysBetween(last, today)
	if ok && days < 0 {
		return nil
	}

	streak := 1
	if ok && days <= 1 {
		streak = asInt(doc["streak"]) + 1
	}

	return e.store.Merge(ctx, path, map[string]interface{}{
		"streak":             streak,
		"lastCompletionDate": today,
	})
}

// DaysBetween считает целые календарные дни между двумя датами
// формата YYYY-MM-DD. ok=false, если from не задан или не парсится.
func DaysBetween(from, to string) (int, bool) {
	if from == "" {
		return 0, false
	}
	t1, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, false
	}
	t2, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, false
	}
	return int(t2.Sub(t1).Hours() / 24), true
}
