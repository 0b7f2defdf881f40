package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"speak-master/internal/models"
	"speak-master/internal/progression"
	"speak-master/internal/store"

	"github.com/gorilla/mux"
)

// GetLanguages отдает каталог: доступные языки и уровни.
func (h *ApiHandler) GetLanguages(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"languages": models.Languages,
		"levels":    models.Levels,
	})
}

// GetProfile отдает имя, очки, уровень и стрик текущего пользователя.
func (h *ApiHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token (no user ID)")
		return
	}

	profile, err := h.loadProfile(r.Context(), userID)
	if err != nil {
		log.Printf("Failed to load profile for user %s: %v", userID, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load profile")
		return
	}

	respondWithJSON(w, http.StatusOK, profile)
}

// GetLessonsByLevel отдает уроки уровня в авторском порядке вместе
// с флагами completed/locked для текущего пользователя.
func (h *ApiHandler) GetLessonsByLevel(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token (no user ID)")
		return
	}

	vars := mux.Vars(r)
	language, level := vars["language"], vars["level"]
	if !validLanguageLevel(language, level) {
		respondWithError(w, http.StatusNotFound, "Unknown language or level")
		return
	}

	lessons, err := h.lessonList(r.Context(), userID, language, level)
	if err != nil {
		log.Printf("Failed to build lesson list for %s/%s: %v", language, level, err)
		respondWithError(w, http.StatusInternalServerError, "Failed to query lessons")
		return
	}

	respondWithJSON(w, http.StatusOK, lessons)
}

// GetTasksByLesson отдает задания урока. Закрытый урок не открывается:
// порядок уроков задает блокировку.
func (h *ApiHandler) GetTasksByLesson(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token (no user ID)")
		return
	}

	vars := mux.Vars(r)
	language, level, lessonKey := vars["language"], vars["level"], vars["lessonKey"]
	if !validLanguageLevel(language, level) {
		respondWithError(w, http.StatusNotFound, "Unknown language or level")
		return
	}

	locked, err := h.isLocked(r.Context(), userID, language, level, lessonKey)
	if errors.Is(err, errLessonNotFound) {
		respondWithError(w, http.StatusNotFound, "Lesson not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to check lesson state")
		return
	}
	if locked {
		respondWithError(w, http.StatusForbidden, "Lesson is locked")
		return
	}

	raw, err := h.Store.Get(r.Context(), store.TasksPath(language, level, lessonKey))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to query tasks")
		return
	}

	respondWithJSON(w, http.StatusOK, progression.DecodeTasks(raw))
}

// AttemptRequest - ответы одной попытки: ключ задания -> ответ.
type AttemptRequest struct {
	Answers map[string]progression.Answer `json:"answers"`
}

// AttemptResponse - итог попытки и обновленный профиль (профиль
// присылается только когда урок засчитан).
type AttemptResponse struct {
	progression.AttemptResult
	Profile *models.Profile `json:"profile,omitempty"`
}

// SubmitAttempt принимает ответы по всем заданиям урока, проверяет их
// по правилам типов, считает долю правильных и при прохождении
// фиксирует урок (флаг, очки, стрик). Ошибка записи не съедается:
// клиент хранит ответы сессии и может повторить попытку целиком.
func (h *ApiHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token (no user ID)")
		return
	}

	vars := mux.Vars(r)
	language, level, lessonKey := vars["language"], vars["level"], vars["lessonKey"]
	if !validLanguageLevel(language, level) {
		respondWithError(w, http.StatusNotFound, "Unknown language or level")
		return
	}

	var req AttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	locked, err := h.isLocked(r.Context(), userID, language, level, lessonKey)
	if errors.Is(err, errLessonNotFound) {
		respondWithError(w, http.StatusNotFound, "Lesson not found")
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to check lesson state")
		return
	}
	if locked {
		respondWithError(w, http.StatusForbidden, "Lesson is locked")
		return
	}

	raw, err := h.Store.Get(r.Context(), store.TasksPath(language, level, lessonKey))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to query tasks")
		return
	}

	tasks := progression.DecodeTasks(raw)
	outcomes := make([]progression.TaskOutcome, 0, len(tasks))
	for _, task := range tasks {
		correct, _ := progression.CheckAnswer(task, req.Answers[task.Key])
		outcomes = append(outcomes, progression.TaskOutcome{Kind: task.Type, Correct: correct})
	}

	result := progression.EvaluateAttempt(outcomes)
	resp := AttemptResponse{AttemptResult: result}

	if result.Passed {
		if err := h.Engine.CommitLessonPass(r.Context(), userID, language, level, lessonKey); err != nil {
			log.Printf("Failed to commit lesson pass for user %s, lesson %s: %v", userID, lessonKey, err)
			respondWithError(w, http.StatusInternalServerError, "Failed to save progress")
			return
		}
		profile, err := h.loadProfile(r.Context(), userID)
		if err != nil {
			log.Printf("Failed to reload profile for user %s: %v", userID, err)
		} else {
			resp.Profile = profile
		}
	}

	respondWithJSON(w, http.StatusOK, resp)
}

// WatchLessons - SSE-поток списка уроков уровня: событие при каждом
// изменении контента уровня или прогресса пользователя.
func (h *ApiHandler) WatchLessons(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Invalid token (no user ID)")
		return
	}

	vars := mux.Vars(r)
	language, level := vars["language"], vars["level"]
	if !validLanguageLevel(language, level) {
		respondWithError(w, http.StatusNotFound, "Unknown language or level")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondWithError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	contentCh, cancelContent := h.Store.Subscribe(store.LevelPath(language, level))
	defer cancelContent()
	progressCh, cancelProgress := h.Store.Subscribe(store.LessonProgressPath(userID, language, level))
	defer cancelProgress()

	send := func() bool {
		lessons, err := h.lessonList(r.Context(), userID, language, level)
		if err != nil {
			log.Printf("Failed to build lesson snapshot for %s/%s: %v", language, level, err)
			return true
		}
		payload, _ := json.Marshal(lessons)
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-contentCh:
			if !open || !send() {
				return
			}
		case _, open := <-progressCh:
			if !open || !send() {
				return
			}
		}
	}
}

// --- Вспомогательные функции ---

func validLanguageLevel(language, level string) bool {
	return contains(models.Languages, language) && contains(models.Levels, level)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// lessonList собирает уроки уровня с вычисленными состояниями блокировки.
func (h *ApiHandler) lessonList(ctx context.Context, userID, language, level string) ([]models.Lesson, error) {
	classes, err := h.Store.Get(ctx, store.LevelPath(language, level))
	if err != nil {
		return nil, err
	}

	completed, err := h.Engine.CompletedLessons(ctx, userID, language, level)
	if err != nil {
		return nil, err
	}

	keys := progression.OrderedKeys(classes)
	states := progression.LockStates(keys, completed)

	lessons := make([]models.Lesson, 0, len(keys))
	for _, key := range keys {
		doc, ok := classes[key].(map[string]interface{})
		if !ok {
			continue
		}
		title, _ := doc["title"].(string)
		image, _ := doc["image"].(string)
		nextLevel, _ := doc["nextLevel"].(string)
		lessons = append(lessons, models.Lesson{
			Key:       key,
			Title:     title,
			Image:     image,
			NextLevel: nextLevel,
			Completed: states[key] == progression.Completed,
			Locked:    states[key] == progression.Locked,
		})
	}
	return lessons, nil
}

// errLessonNotFound отличает неизвестный урок от закрытого.
var errLessonNotFound = errors.New("lesson not found")

// isLocked проверяет, заблокирован ли урок для пользователя.
// Возвращает errLessonNotFound, если такого урока в уровне нет.
func (h *ApiHandler) isLocked(ctx context.Context, userID, language, level, lessonKey string) (bool, error) {
	classes, err := h.Store.Get(ctx, store.LevelPath(language, level))
	if err != nil {
		return false, err
	}
	if _, ok := classes[lessonKey]; !ok {
		return false, errLessonNotFound
	}
	completed, err := h.Engine.CompletedLessons(ctx, userID, language, level)
	if err != nil {
		return false, err
	}
	states := progression.LockStates(progression.OrderedKeys(classes), completed)
	return states[lessonKey] == progression.Locked, nil
}

// loadProfile собирает профиль из users/{id} и users/{id}/progress.
func (h *ApiHandler) loadProfile(ctx context.Context, userID string) (*models.Profile, error) {
	user, err := h.Store.Get(ctx, store.UserPath(userID))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	displayName, _ := user["displayName"].(string)
	profile := &models.Profile{
		ID:          userID,
		DisplayName: displayName,
		Level:       1,
	}
	if prog, ok := user["progress"].(map[string]interface{}); ok {
		profile.Points = intField(prog["points"])
		if lvl := intField(prog["level"]); lvl > 0 {
			profile.Level = lvl
		}
		profile.Streak = intField(prog["streak"])
		profile.LastCompletionDate, _ = prog["lastCompletionDate"].(string)
	}
	return profile, nil
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
