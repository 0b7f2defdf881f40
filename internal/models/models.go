package models

// Languages и Levels - внешне заданные перечисления, порядок уровней важен.
var (
	Languages = []string{"spanish", "french", "german", "english"}
	Levels    = []string{"A1", "A2", "B1", "B2", "C1", "C2"}
)

// Profile представляет видимое пользователю состояние прогресса.
type Profile struct {
	ID                 string `json:"id"`
	DisplayName        string `json:"displayName"`
	Points             int    `json:"points"`
	Level              int    `json:"level"`
	Streak             int    `json:"streak"`
	LastCompletionDate string `json:"lastCompletionDate,omitempty"`
}

// Lesson представляет один урок в списке уровня С УЧЕТОМ прогресса
// пользователя (completed/locked вычисляются на каждого пользователя).
type Lesson struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	Image     string `json:"image,omitempty"`
	NextLevel string `json:"nextLevel,omitempty"`

	Completed bool `json:"completed"`
	Locked    bool `json:"locked"`
}

// Task представляет одно задание урока. Набор заполненных полей
// зависит от типа (type): у newSentence есть только sentence/translation,
// у completeSentence - options и answer, и так далее.
type Task struct {
	Key              string            `json:"key"`
	Type             string            `json:"type"`
	Title            string            `json:"title"`
	Sentence         string            `json:"sentence,omitempty"`
	Translation      string            `json:"translation,omitempty"`
	RevealedSentence string            `json:"revealedSentence,omitempty"`
	Options          map[string]string `json:"options,omitempty"`
	Answer           string            `json:"answer,omitempty"`
	Words            []string          `json:"words,omitempty"`
	Letters          []string          `json:"letters,omitempty"`
	Pairs            map[string]string `json:"pairs,omitempty"`
	AudioPath        string            `json:"audioPath,omitempty"`
}
