package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/joho/godotenv"
	texttospeechpb "google.golang.org/genproto/googleapis/cloud/texttospeech/v1"

	"speak-master/internal/models"
	"speak-master/internal/store"
)

// job - одно предложение для озвучки: путь задания в хранилище,
// текст и язык урока.
type job struct {
	TaskPath string
	FileName string
	Text     string
	Language string
}

// === Настройки ===
const outputDir = "media" // Папка для сохранения .mp3
const maxWorkers = 10     // Кол-во одновременных запросов к Google
// =================

// Голоса Standard (не Wavenet) - для бесплатного лимита.
var voices = map[string]struct {
	Code string
	Name string
}{
	"spanish": {"es-ES", "es-ES-Standard-A"},
	"french":  {"fr-FR", "fr-FR-Standard-A"},
	"german":  {"de-DE", "de-DE-Standard-A"},
	"english": {"en-US", "en-US-Standard-F"},
}

func main() {
	log.Println("Запуск генератора аудио...")

	// 1. Загружаем .env (из корня проекта)
	if err := godotenv.Load(); err != nil {
		log.Fatal("Ошибка загрузки .env файла. Убедитесь, что он в корне:", err)
	}

	// 2. Подключаемся к хранилищу документов
	db, err := store.Connect()
	if err != nil {
		log.Fatalf("Не удалось подключиться к БД: %v", err)
	}
	defer db.Close()
	log.Println("Успешно подключен к БД.")

	// 3. Создаем TTS клиент
	// (Он автоматически найдет ключ через GOOGLE_APPLICATION_CREDENTIALS)
	ctx := context.Background()
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		log.Fatalf("Не удалось создать TTS клиент: %v", err)
	}
	defer client.Close()
	log.Println("Успешно подключен к Google TTS API.")

	// 4. Создаем папку 'media', если ее нет
	if err := os.MkdirAll(outputDir, os.ModePerm); err != nil {
		log.Fatalf("Не удалось создать папку %s: %v", outputDir, err)
	}

	// 5. Собираем все предложения без озвучки
	pending, err := collectPendingTasks(ctx, db)
	if err != nil {
		log.Fatalf("Ошибка получения предложений: %v", err)
	}
	if len(pending) == 0 {
		log.Println("Все предложения уже озвучены. Завершение.")
		return
	}
	log.Printf("Найдено %d предложений для озвучки.", len(pending))

	// 6. Запускаем пул воркеров для обработки
	jobs := make(chan job, len(pending))
	results := make(chan string, len(pending))
	var wg sync.WaitGroup

	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go worker(ctx, &wg, client, db, jobs, results)
	}

	for _, j := range pending {
		jobs <- j
	}
	close(jobs)

	wg.Wait()
	close(results)

	log.Println("--- Генерация завершена! ---")
	processedCount := 0
	for msg := range results {
		log.Println(msg)
		processedCount++
	}
	log.Printf("Успешно обработано: %d", processedCount)
}

// collectPendingTasks обходит дерево контента и собирает задания,
// у которых есть sentence, но еще нет audioPath.
func collectPendingTasks(ctx context.Context, db store.Store) ([]job, error) {
	var pending []job
	for _, language := range models.Languages {
		for _, level := range models.Levels {
			classes, err := db.Get(ctx, store.LevelPath(language, level))
			if err != nil {
				return nil, err
			}
			for classKey, classDoc := range classes {
				classMap, ok := classDoc.(map[string]interface{})
				if !ok {
					continue
				}
				tasks, ok := classMap["lessons"].(map[string]interface{})
				if !ok {
					continue
				}
				for taskKey, taskDoc := range tasks {
					taskMap, ok := taskDoc.(map[string]interface{})
					if !ok {
						continue
					}
					sentence, _ := taskMap["sentence"].(string)
					audioPath, _ := taskMap["audioPath"].(string)
					if sentence == "" || audioPath != "" {
						continue
					}
					pending = append(pending, job{
						TaskPath: store.TasksPath(language, level, classKey) + "/" + taskKey,
						FileName: strings.Join([]string{language, level, classKey, taskKey}, "_") + ".mp3",
						Text:     sentence,
						Language: language,
					})
				}
			}
		}
	}
	return pending, nil
}

// worker - это один "рабочий", который берет задания из канала jobs
func worker(ctx context.Context, wg *sync.WaitGroup, client *texttospeech.Client, db store.Store, jobs <-chan job, results chan<- string) {
	defer wg.Done()

	for j := range jobs {
		filePath := filepath.Join(outputDir, j.FileName)

		// 1. Генерируем аудио
		if err := synthesizeAndSave(ctx, client, j.Text, j.Language, filePath); err != nil {
			log.Printf("Ошибка (%s): Не удалось сгенерировать: %v", j.TaskPath, err)
			continue
		}

		// 2. Обновляем путь в хранилище
		dbPath := outputDir + "/" + j.FileName
		if err := db.Merge(ctx, j.TaskPath, map[string]interface{}{"audioPath": dbPath}); err != nil {
			log.Printf("Ошибка (%s): Не удалось обновить БД: %v", j.TaskPath, err)
			continue
		}

		results <- fmt.Sprintf("Успех: %s -> %s", j.TaskPath, dbPath)

		// Пауза, чтобы не превысить лимит запросов (1000/мин).
		time.Sleep(700 * time.Millisecond)
	}
}

// synthesizeAndSave вызывает Google API и сохраняет .mp3 файл
func synthesizeAndSave(ctx context.Context, client *texttospeech.Client, text, language, outputPath string) error {
	voice, ok := voices[language]
	if !ok {
		voice = voices["english"]
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voice.Code,
			SsmlGender:   texttospeechpb.SsmlVoiceGender_FEMALE,
			Name:         voice.Name,
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}

	resp, err := client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return fmt.Errorf("SynthesizeSpeech: %v", err)
	}

	if err := os.WriteFile(outputPath, resp.AudioContent, 0644); err != nil {
		return fmt.Errorf("WriteFile: %v", err)
	}
	return nil
}
