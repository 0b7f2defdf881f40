package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Анонимный импорт PostgreSQL драйвера
)

// PostgresStore хранит дерево документов в одной таблице:
// path TEXT PRIMARY KEY, doc JSONB. Merge - это upsert с jsonb-конкатенацией,
// то есть shallow-merge полей, как update() у внешнего RTDB.
type PostgresStore struct {
	db  *sql.DB
	hub *hub
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	path TEXT PRIMARY KEY,
	doc  JSONB NOT NULL DEFAULT '{}'::jsonb
);`

// Connect подключается к базе данных, используя DATABASE_URL из окружения,
// и создает схему документов.
func Connect() (*PostgresStore, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	// sql.Open не устанавливает соединение, а только готовит пул
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection (driver error): %w", err)
	}

	// БД в docker-compose может подниматься дольше сервера - ждем ее.
	maxRetries := 10
	var pingErr error
	for i := 1; i <= maxRetries; i++ {
		pingErr = db.Ping()
		if pingErr == nil {
			break
		}
		log.Printf("DB not ready (attempt %d/%d). Retrying in 3 seconds...", i, maxRetries)
		time.Sleep(3 * time.Second)
	}
	if pingErr != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, pingErr)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents schema: %w", err)
	}

	return &PostgresStore{db: db, hub: newHub()}, nil
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// Get собирает снимок поддерева: документ по самому пути плюс все
// документы под ним, вложенные по относительным сегментам.
func (p *PostgresStore) Get(ctx context.Context, path string) (map[string]interface{}, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT path, doc FROM documents WHERE path = $1 OR path LIKE $1 || '/%' ORDER BY path`,
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents at %q: %w", path, err)
	}
	defer rows.Close()

	var result map[string]interface{}
	for rows.Next() {
		var docPath string
		var raw []byte
		if err := rows.Scan(&docPath, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		var doc map[string]interface{}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("corrupt document at %q: %w", docPath, err)
		}
		if result == nil {
			result = make(map[string]interface{})
		}
		node := result
		if docPath != path {
			rel := strings.TrimPrefix(docPath, path+"/")
			for _, seg := range strings.Split(rel, "/") {
				child, ok := node[seg].(map[string]interface{})
				if !ok {
					child = make(map[string]interface{})
					node[seg] = child
				}
				node = child
			}
		}
		for k, v := range doc {
			node[k] = v
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents at %q: %w", path, err)
	}
	return result, nil
}

func (p *PostgresStore) Merge(ctx context.Context, path string, fields map[string]interface{}) error {
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields for %q: %w", path, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (path, doc)
		VALUES ($1, $2::jsonb)
		ON CONFLICT (path)
		DO UPDATE SET doc = documents.doc || EXCLUDED.doc;
	`, path, raw)
	if err != nil {
		return fmt.Errorf("failed to merge document at %q: %w", path, err)
	}

	p.hub.notify(path, func(subPath string) map[string]interface{} {
		snap, err := p.Get(ctx, subPath)
		if err != nil {
			log.Printf("Failed to build snapshot for subscriber at %q: %v", subPath, err)
			return nil
		}
		return snap
	})
	return nil
}

func (p *PostgresStore) Subscribe(path string) (<-chan map[string]interface{}, func()) {
	initial, err := p.Get(context.Background(), path)
	if err != nil {
		log.Printf("Failed to load initial snapshot at %q: %v", path, err)
	}

	sub, cancel := p.hub.add(path)

	// Отправка без блокировки: если параллельный Merge уже успел
	// положить снимок, он свежее нашего.
	select {
	case sub.ch <- initial:
	default:
	}

	return sub.ch, cancel
}
