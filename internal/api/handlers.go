package api

import (
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"time"

	"speak-master/internal/mailer"
	"speak-master/internal/progression"
	"speak-master/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// ApiHandler хранит зависимости обработчиков: хранилище, движок
// прогресса, почту и ключ подписи токенов.
type ApiHandler struct {
	Store  store.Store
	Engine *progression.Engine
	Mailer *mailer.Mailer
	jwtKey []byte
}

func NewApiHandler(s store.Store, engine *progression.Engine, m *mailer.Mailer, jwtKey []byte) *ApiHandler {
	return &ApiHandler{Store: s, Engine: engine, Mailer: m, jwtKey: jwtKey}
}

// Credentials - структура для JSON-запросов регистрации/входа.
type Credentials struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName,omitempty"`
}

// Claims - структура для данных внутри JWT-токена.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Сообщения об ошибках аутентификации совпадают с теми, что видел
// пользователь мобильного клиента.
const (
	msgBadEmail     = "The email address is badly formatted."
	msgUserNotFound = "There is no user corresponding to the email address."
	msgEmailInUse   = "The email address is already in use by another account."
	msgWeakPassword = "Password should be at least 6 characters"
	msgBadLogin     = "Invalid email or password"
)

// RegisterUser создает пользователя: учетную запись по email и
// стартовый документ прогресса (0 очков, уровень 1, стрик 0).
func (h *ApiHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if !emailRe.MatchString(creds.Email) {
		respondWithError(w, http.StatusBadRequest, msgBadEmail)
		return
	}
	if len(creds.Password) < 6 {
		respondWithError(w, http.StatusBadRequest, msgWeakPassword)
		return
	}

	accountPath := store.AuthEmailPath(creds.Email)
	existing, err := h.Store.Get(r.Context(), accountPath)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to check account")
		return
	}
	if existing != nil {
		respondWithError(w, http.StatusConflict, msgEmailInUse)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	userID := uuid.NewString()
	displayName := creds.DisplayName
	if displayName == "" {
		displayName = creds.Email
	}

	// Учетную запись по email пишем последней: если одна из записей
	// не удалась, email остается свободным и повторная регистрация
	// доведет дело до конца.
	if err := h.Store.Merge(r.Context(), store.UserPath(userID), map[string]interface{}{
		"displayName": displayName,
		"email":       creds.Email,
	}); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if err := h.Store.Merge(r.Context(), store.UserProgressPath(userID), map[string]interface{}{
		"points": 0,
		"level":  1,
		"streak": 0,
	}); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create user progress")
		return
	}
	if err := h.Store.Merge(r.Context(), accountPath, map[string]interface{}{
		"userId":       userID,
		"passwordHash": string(hashedPassword),
	}); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create account")
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "User registered successfully"})
}

// LoginUser проверяет пароль и выдает JWT на 3 дня.
func (h *ApiHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	account, err := h.Store.Get(r.Context(), store.AuthEmailPath(creds.Email))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load account")
		return
	}
	if account == nil {
		respondWithError(w, http.StatusUnauthorized, msgBadLogin)
		return
	}

	storedHash, _ := account["passwordHash"].(string)
	if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(creds.Password)); err != nil {
		respondWithError(w, http.StatusUnauthorized, msgBadLogin)
		return
	}

	userID, _ := account["userId"].(string)
	expirationTime := time.Now().Add(72 * time.Hour)
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(h.jwtKey)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"token": tokenString})
}

// RequestPasswordReset выписывает токен сброса и шлет письмо.
// Ответ одинаковый вне зависимости от того, есть ли такой email.
func (h *ApiHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if !emailRe.MatchString(req.Email) {
		respondWithError(w, http.StatusBadRequest, msgBadEmail)
		return
	}

	account, err := h.Store.Get(r.Context(), store.AuthEmailPath(req.Email))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load account")
		return
	}

	if account != nil {
		token := uuid.NewString()
		expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		if err := h.Store.Merge(r.Context(), store.ResetTokenPath(token), map[string]interface{}{
			"email":     req.Email,
			"expiresAt": expires,
			"used":      false,
		}); err != nil {
			respondWithError(w, http.StatusInternalServerError, "Failed to create reset token")
			return
		}
		if err := h.Mailer.SendPasswordReset(req.Email, token); err != nil {
			log.Printf("Failed to send password reset email to %s: %v", req.Email, err)
		}
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "If the account exists, a reset email has been sent"})
}

// ConfirmPasswordReset меняет пароль по действующему токену.
func (h *ApiHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if len(req.NewPassword) < 6 {
		respondWithError(w, http.StatusBadRequest, msgWeakPassword)
		return
	}

	reset, err := h.Store.Get(r.Context(), store.ResetTokenPath(req.Token))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load reset token")
		return
	}
	if reset == nil {
		respondWithError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	used, _ := reset["used"].(bool)
	expiresAt, _ := reset["expiresAt"].(string)
	expiry, parseErr := time.Parse(time.RFC3339, expiresAt)
	if used || parseErr != nil || time.Now().After(expiry) {
		respondWithError(w, http.StatusBadRequest, "Invalid or expired reset token")
		return
	}

	email, _ := reset["email"].(string)
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to hash password")
		return
	}

	if err := h.Store.Merge(r.Context(), store.AuthEmailPath(email), map[string]interface{}{
		"passwordHash": string(hashedPassword),
	}); err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to update password")
		return
	}
	if err := h.Store.Merge(r.Context(), store.ResetTokenPath(req.Token), map[string]interface{}{
		"used": true,
	}); err != nil {
		log.Printf("Failed to mark reset token used: %v", err)
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Password updated"})
}

// --- Вспомогательные функции ---

// respondWithJSON - вспомогательная функция для отправки JSON-ответов.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
