package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"speak-master/internal/store"

	"github.com/joho/godotenv"
)

const contentDir = "content" // Папка, где лежат CSV с уроками

// Имя файла урока: {язык}_{уровень}_class{N}.csv, например spanish_A1_class1.csv
var fileRe = regexp.MustCompile(`^([a-z]+)_([A-C][12])_class(\d+)\.csv$`)

// Структура для сортировки файлов
type lessonFile struct {
	Path      string
	Language  string // "spanish", "french"
	Level     string // "A1", "B2"
	ClassNum  int    // 1, 2, 10
	ClassKey  string // "class1"
	Title     string // "A1 Lesson 1"
	NextLevel string
}

func main() {
	log.Println("Запуск загрузчика данных...")
	startTime := time.Now()

	// 1. Загружаем .env (из корня проекта)
	if err := godotenv.Load(); err != nil {
		log.Fatalf("Ошибка загрузки .env файла: %v", err)
	}

	// 2. Подключаемся к хранилищу документов
	db, err := store.Connect()
	if err != nil {
		log.Fatalf("Не удалось подключиться к БД: %v", err)
	}
	defer db.Close()
	log.Println("Успешно подключен к БД.")

	// 3. Собираем и сортируем файлы уроков
	files, err := collectLessonFiles(contentDir)
	if err != nil {
		log.Fatalf("Не удалось прочитать папку %s: %v", contentDir, err)
	}
	if len(files) == 0 {
		log.Fatalf("В папке %s нет файлов уроков", contentDir)
	}
	log.Printf("Найдено файлов уроков: %d", len(files))
	markNextLevels(files)

	// 4. Загружаем каждый урок
	ctx := context.Background()
	for _, lf := range files {
		if err := loadLesson(ctx, db, lf); err != nil {
			log.Fatalf("Ошибка загрузки %s: %v", lf.Path, err)
		}
		log.Printf("Загружен %s -> languages/%s/levels/%s/classes/%s", filepath.Base(lf.Path), lf.Language, lf.Level, lf.ClassKey)
	}

	log.Printf("Готово за %v", time.Since(startTime))
}

func collectLessonFiles(dir string) ([]lessonFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []lessonFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := fileRe.FindStringSubmatch(entry.Name())
		if m == nil {
			log.Printf("Пропускаем файл с неожиданным именем: %s", entry.Name())
			continue
		}
		num, _ := strconv.Atoi(m[3])
		files = append(files, lessonFile{
			Path:     filepath.Join(dir, entry.Name()),
			Language: m[1],
			Level:    m[2],
			ClassNum: num,
			ClassKey: "class" + m[3],
			Title:    fmt.Sprintf("%s Lesson %d", m[2], num),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Language != files[j].Language {
			return files[i].Language < files[j].Language
		}
		if files[i].Level != files[j].Level {
			return files[i].Level < files[j].Level
		}
		return files[i].ClassNum < files[j].ClassNum
	})
	return files, nil
}

// markNextLevels помечает последний урок каждого уровня ярлыком
// следующего уровня ("переход на A2"). files должны быть отсортированы.
func markNextLevels(files []lessonFile) {
	nextLevel := map[string]string{"A1": "A2", "A2": "B1", "B1": "B2", "B2": "C1", "C1": "C2"}
	for i := range files {
		last := i == len(files)-1 ||
			files[i+1].Language != files[i].Language ||
			files[i+1].Level != files[i].Level
		if last {
			files[i].NextLevel = nextLevel[files[i].Level]
		}
	}
}

// loadLesson читает CSV и пишет метаданные урока и задания в хранилище.
// Колонки: type,title,sentence,translation,revealedSentence,options,answer,words,letters,pairs
// Списки разделены '|', пары заданы как "ключ=значение|ключ=значение".
func loadLesson(ctx context.Context, db store.Store, lf lessonFile) error {
	f, err := os.Open(lf.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	// Первая строка - заголовок
	if _, err := reader.Read(); err != nil {
		return fmt.Errorf("не удалось прочитать заголовок: %w", err)
	}

	lessonPath := store.LessonPath(lf.Language, lf.Level, lf.ClassKey)
	meta := map[string]interface{}{"title": lf.Title}
	setIfNotEmpty(meta, "nextLevel", lf.NextLevel)
	if err := db.Merge(ctx, lessonPath, meta); err != nil {
		return err
	}

	taskNum := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("ошибка чтения строки: %w", err)
		}
		if len(record) < 7 {
			return fmt.Errorf("слишком короткая строка: %v", record)
		}

		taskNum++
		task := map[string]interface{}{
			"type":  record[0],
			"title": record[1],
		}
		setIfNotEmpty(task, "sentence", record[2])
		setIfNotEmpty(task, "translation", record[3])
		setIfNotEmpty(task, "revealedSentence", record[4])
		if m := parsePairs(record[5]); len(m) > 0 {
			task["options"] = m
		}
		setIfNotEmpty(task, "answer", record[6])
		if len(record) > 7 {
			if list := parseList(record[7]); len(list) > 0 {
				task["words"] = list
			}
		}
		if len(record) > 8 {
			if list := parseList(record[8]); len(list) > 0 {
				task["letters"] = list
			}
		}
		if len(record) > 9 {
			if m := parsePairs(record[9]); len(m) > 0 {
				task["pairs"] = m
			}
		}

		taskPath := store.TasksPath(lf.Language, lf.Level, lf.ClassKey) + fmt.Sprintf("/task%d", taskNum)
		if err := db.Merge(ctx, taskPath, task); err != nil {
			return err
		}
	}

	log.Printf("  заданий: %d", taskNum)
	return nil
}

func setIfNotEmpty(doc map[string]interface{}, key, value string) {
	if value != "" {
		doc[key] = value
	}
}

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "|")
}

func parsePairs(s string) map[string]string {
	if s == "" {
		return nil
	}
	out := make(map[string]string)
	for _, pair := range strings.Split(s, "|") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
