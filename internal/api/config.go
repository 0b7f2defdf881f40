package api

import "os"

// defaultJWTKey - ключ для локальной разработки, когда JWT_SECRET не задан.
const defaultJWTKey = "my_very_secret_and_long_key_32_bytes"

// LoadJWTKey возвращает ключ подписи токенов из окружения.
func LoadJWTKey() []byte {
	if key := os.Getenv("JWT_SECRET"); key != "" {
		return []byte(key)
	}
	return []byte(defaultJWTKey)
}
