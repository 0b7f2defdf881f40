package progression

import (
	"sort"
	"strconv"
	"strings"

	"speak-master/internal/models"
)

// Типы заданий. newSentence - презентация без правильного ответа,
// остальные оцениваются.
const (
	KindNewSentence      = "newSentence"
	KindCompleteSentence = "completeSentence"
	KindTrueOrFalse      = "trueOrFalse"
	KindChooseRight      = "chooseRight"
	KindOrderSentence    = "orderSentence"
	KindSpellLetters     = "spellLetters"
	KindMatchThePairs    = "matchThePairs"
)

// Scorable сообщает, несет ли тип задания оценку правильности.
// Правило одно на все слои: презентация и неизвестный тип (контент
// авторится вне сервера, опечатка в type не должна ронять урок)
// в счет не идут.
func Scorable(kind string) bool {
	switch kind {
	case KindCompleteSentence, KindTrueOrFalse, KindChooseRight,
		KindOrderSentence, KindSpellLetters, KindMatchThePairs:
		return true
	}
	return false
}

// Answer - ответ пользователя на одно задание. Заполняется поле,
// соответствующее типу задания.
type Answer struct {
	Option  string            `json:"option,omitempty"`
	Words   []string          `json:"words,omitempty"`
	Letters []string          `json:"letters,omitempty"`
	Pairs   map[string]string `json:"pairs,omitempty"`
}

// CheckAnswer проверяет ответ по правилу типа задания.
// Возвращает (правильно, оценивается). Для newSentence задание
// считается просмотренным и в счет не идет.
func CheckAnswer(task models.Task, ans Answer) (correct bool, scorable bool) {
	switch task.Type {
	case KindNewSentence:
		return true, false

	case KindCompleteSentence, KindTrueOrFalse, KindChooseRight:
		return ans.Option == task.Answer, true

	case KindOrderSentence:
		// Цель - авторский порядок слов; words в данных урока могут
		// храниться перемешанными, тогда эталон лежит в answer.
		target := task.Answer
		if target == "" {
			target = strings.Join(task.Words, " ")
		}
		return strings.Join(ans.Words, " ") == target, true

	case KindSpellLetters:
		target := task.Answer
		if target == "" {
			target = strings.Join(task.Letters, "")
		}
		return strings.Join(ans.Letters, "") == target, true

	case KindMatchThePairs:
		// Каждому левому ключу должно быть сопоставлено авторское значение.
		if len(task.Pairs) == 0 {
			return false, true
		}
		for k, v := range task.Pairs {
			if ans.Pairs[k] != v {
				return false, true
			}
		}
		return true, true
	}

	// Неизвестный тип не оцениваем.
	return false, false
}

// OrderedKeys сортирует ключи вида "task1"/"class10" по числовому
// суффиксу (лексикографически "task10" встал бы перед "task2").
func OrderedKeys(raw map[string]interface{}) []string {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, oki := trailingNumber(keys[i])
		nj, okj := trailingNumber(keys[j])
		if oki && okj && ni != nj {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	return keys
}

func trailingNumber(s string) (int, bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return 0, false
	}
	n, err := strconv.Atoi(s[i:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// DecodeTask восстанавливает задание из документа хранилища.
func DecodeTask(key string, raw map[string]interface{}) models.Task {
	return models.Task{
		Key:              key,
		Type:             asString(raw["type"]),
		Title:            asString(raw["title"]),
		Sentence:         asString(raw["sentence"]),
		Translation:      asString(raw["translation"]),
		RevealedSentence: asString(raw["revealedSentence"]),
		Options:          asStringMap(raw["options"]),
		Answer:           asString(raw["answer"]),
		Words:            asStringSlice(raw["words"]),
		Letters:          asStringSlice(raw["letters"]),
		Pairs:            asStringMap(raw["pairs"]),
		AudioPath:        asString(raw["audioPath"]),
	}
}

// DecodeTasks восстанавливает задания урока в авторском порядке.
func DecodeTasks(raw map[string]interface{}) []models.Task {
	tasks := make([]models.Task, 0, len(raw))
	for _, key := range OrderedKeys(raw) {
		doc, ok := raw[key].(map[string]interface{})
		if !ok {
			continue
		}
		tasks = append(tasks, DecodeTask(key, doc))
	}
	return tasks
}

// Документы приходят и из jsonb (после json.Unmarshal всё - interface{}),
// и из памяти (родные Go-типы), поэтому конверсия терпимая к обоим видам.

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) int {
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

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asStringSlice(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, asString(item))
		}
		return out
	}
	return nil
}

func asStringMap(v interface{}) map[string]string {
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]interface{}:
		out := make(map[string]string, len(m))
		for k, item := range m {
			out[k] = asString(item)
		}
		return out
	}
	return nil
}
