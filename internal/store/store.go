package store

import (
	"context"
	"strings"
	"sync"
)

// Store - интерфейс документного хранилища с путевой адресацией.
// Путь - строка вида "users/abc123/progress", сегменты разделены '/'.
// Get возвращает снимок поддерева (nil, если по пути ничего нет),
// Merge дозаписывает поля документа (shallow-merge, как update() в RTDB),
// Subscribe отдает канал снимков: первый сразу, далее при каждом изменении
// на этом пути или под ним.
type Store interface {
	Get(ctx context.Context, path string) (map[string]interface{}, error)
	Merge(ctx context.Context, path string, fields map[string]interface{}) error
	Subscribe(path string) (<-chan map[string]interface{}, func())
}

// UserPath возвращает путь к документу пользователя.
func UserPath(userID string) string {
	return "users/" + userID
}

// UserProgressPath - путь к очкам/уровню/стрику пользователя.
func UserProgressPath(userID string) string {
	return "users/" + userID + "/progress"
}

// LessonProgressPath - путь к флагам прохождения уроков
// (userProgress/{userId}/{lang}/{level}).
func LessonProgressPath(userID, language, level string) string {
	return "userProgress/" + userID + "/" + language + "/" + level
}

// LevelPath - путь к списку уроков уровня.
func LevelPath(language, level string) string {
	return "languages/" + language + "/levels/" + level + "/classes"
}

// LessonPath - путь к метаданным одного урока.
func LessonPath(language, level, lessonKey string) string {
	return LevelPath(language, level) + "/" + lessonKey
}

// TasksPath - путь к заданиям урока.
func TasksPath(language, level, lessonKey string) string {
	return LessonPath(language, level, lessonKey) + "/lessons"
}

// EncodeEmail кодирует email для использования в сегменте пути:
// точка в путях зарезервирована, заменяем ее запятой.
func EncodeEmail(email string) string {
	return strings.ReplaceAll(strings.ToLower(email), ".", ",")
}

// AuthEmailPath - путь к учетной записи по email.
func AuthEmailPath(email string) string {
	return "auth/emails/" + EncodeEmail(email)
}

// ResetTokenPath - путь к токену сброса пароля.
func ResetTokenPath(token string) string {
	return "auth/resets/" + token
}

// subscriber - одна подписка: путь и канал снимков.
type subscriber struct {
	path string
	ch   chan map[string]interface{}
}

// hub раздает уведомления подписчикам внутри процесса.
// Сервер - единственный писатель в хранилище, поэтому рассылки
// после собственных Merge достаточно для "реального времени".
type hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[*subscriber]struct{})}
}

func (h *hub) add(path string) (*subscriber, func()) {
	sub := &subscriber{path: path, ch: make(chan map[string]interface{}, 1)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[sub]; ok {
			delete(h.subs, sub)
			close(sub.ch)
		}
		h.mu.Unlock()
	}
	return sub, cancel
}

// notify рассылает снимки всем, кого затронуло изменение по changedPath.
// snapshot вычисляется лениво для каждого пути подписки.
func (h *hub) notify(changedPath string, snapshot func(path string) map[string]interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !pathsOverlap(sub.path, changedPath) {
			continue
		}
		val := snapshot(sub.path)
		// Канал с буфером 1: старый непрочитанный снимок вытесняем новым.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- val:
		default:
		}
	}
}

// pathsOverlap: изменение по b затрагивает подписку на a, если один
// путь является префиксом другого (по целым сегментам).
func pathsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}
