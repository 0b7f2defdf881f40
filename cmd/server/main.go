package main

import (
	"log"
	"net/http"
	"os"

	"speak-master/internal/api"
	"speak-master/internal/jobs"
	"speak-master/internal/mailer"
	"speak-master/internal/progression"
	"speak-master/internal/store"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

func main() {
	// .env опционален: в контейнере переменные приходят из окружения.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	db, err := store.Connect()
	if err != nil {
		log.Fatalf("DB connect error: %v", err)
	}
	log.Println("DB connected!")
	defer db.Close()

	engine := progression.NewEngine(db)
	apiHandler := api.NewApiHandler(db, engine, mailer.FromEnv(), api.LoadJWTKey())

	// Ежедневный сброс устаревших стриков.
	sweeper := jobs.StartStreakSweeper(db)
	defer sweeper.Stop()

	// --- РЕГИСТРАЦИЯ API ЭНДПОИНТОВ ---
	r := mux.NewRouter()
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/register", apiHandler.RegisterUser).Methods("POST")
	apiRouter.HandleFunc("/login", apiHandler.LoginUser).Methods("POST")
	apiRouter.HandleFunc("/password-reset", apiHandler.RequestPasswordReset).Methods("POST")
	apiRouter.HandleFunc("/password-reset/confirm", apiHandler.ConfirmPasswordReset).Methods("POST")

	s := apiRouter.PathPrefix("/").Subrouter()
	s.Use(apiHandler.AuthMiddleware)
	s.HandleFunc("/profile", apiHandler.GetProfile).Methods("GET")
	s.HandleFunc("/languages", apiHandler.GetLanguages).Methods("GET")
	s.HandleFunc("/languages/{language}/levels/{level}/lessons", apiHandler.GetLessonsByLevel).Methods("GET")
	s.HandleFunc("/languages/{language}/levels/{level}/lessons/watch", apiHandler.WatchLessons).Methods("GET")
	s.HandleFunc("/languages/{language}/levels/{level}/lessons/{lessonKey}/tasks", apiHandler.GetTasksByLesson).Methods("GET")
	s.HandleFunc("/languages/{language}/levels/{level}/lessons/{lessonKey}/attempt", apiHandler.SubmitAttempt).Methods("POST")

	// --- ЗАПУСК СЕРВЕРА ---
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("Starting server on port :%s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server start error: %v", err)
	}
}
