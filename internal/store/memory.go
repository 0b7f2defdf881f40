package store

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore - хранилище в памяти. Используется в тестах вместо
// Postgres и при локальной разработке без БД.
type MemoryStore struct {
	mu   sync.RWMutex
	root map[string]interface{}
	hub  *hub
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		root: make(map[string]interface{}),
		hub:  newHub(),
	}
}

func (m *MemoryStore) Get(_ context.Context, path string) (map[string]interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot(path), nil
}

func (m *MemoryStore) Merge(_ context.Context, path string, fields map[string]interface{}) error {
	m.mu.Lock()
	node := m.descend(path, true)
	for k, v := range fields {
		node[k] = v
	}
	m.mu.Unlock()

	m.hub.notify(path, func(subPath string) map[string]interface{} {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.snapshot(subPath)
	})
	return nil
}

func (m *MemoryStore) Subscribe(path string) (<-chan map[string]interface{}, func()) {
	m.mu.RLock()
	initial := m.snapshot(path)
	m.mu.RUnlock()

	sub, cancel := m.hub.add(path)

	// Первый снимок - сразу, как onValue в RTDB. Отправка без блокировки:
	// если параллельный Merge уже успел положить снимок, он свежее нашего.
	select {
	case sub.ch <- initial:
	default:
	}

	return sub.ch, cancel
}

// descend спускается по сегментам пути, при create создавая
// промежуточные узлы.
func (m *MemoryStore) descend(path string, create bool) map[string]interface{} {
	node := m.root
	for _, seg := range strings.Split(path, "/") {
		child, ok := node[seg].(map[string]interface{})
		if !ok {
			if !create {
				return nil
			}
			child = make(map[string]interface{})
			node[seg] = child
		}
		node = child
	}
	return node
}

// snapshot возвращает глубокую копию поддерева; вызывать под mu.
func (m *MemoryStore) snapshot(path string) map[string]interface{} {
	node := m.descend(path, false)
	if node == nil {
		return nil
	}
	return deepCopy(node)
}

func deepCopy(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		if child, ok := v.(map[string]interface{}); ok {
			dst[k] = deepCopy(child)
		} else {
			dst[k] = v
		}
	}
	return dst
}
