// Package progress хранит пользовательский прогресс по контенту: завершённые
// уроки, недельные планы, ответы на рабочие листы, отметки привычек и флаги.
//
// Store никогда не возвращает вызывающему ошибки носителя: сбой чтения
// превращается в значение по умолчанию, сбой записи сохраняет значение в памяти
// процесса и сообщается через FailureHandler. Изменение, построенное без
// прочитанного значения, никогда не затирает сохранённую запись.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/wellness-escape/vitality-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEDIUM
// ══════════════════════════════════════════════════════════════════════════════

// Medium - носитель ключ-значение для записей прогресса.
type Medium interface {
	// Get возвращает значение и признак наличия ключа.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set перезаписывает значение ключа.
	Set(ctx context.Context, key, value string) error
}

// Deleter - необязательная способность носителя удалять ключи по префиксу.
type Deleter interface {
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
}

// Pinger - необязательная проверка доступности носителя.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Op - операция, на которой произошёл сбой носителя.
type Op string

const (
	OpLoad  Op = "load"
	OpSave  Op = "save"
	OpParse Op = "parse"
)

// FailureHandler получает сбои носителя. Вызывается синхронно.
type FailureHandler func(op Op, key string, err error)

// DefaultMediumTimeout - таймаут одного обращения к носителю.
const DefaultMediumTimeout = 2 * time.Second

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store - хранилище прогресса поверх Medium.
//
// pending держит значения, которые не удалось записать в носитель: пока ключ
// там, чтение берёт значение из памяти. Удачная запись ключ из pending убирает.
// Без носителя pending - единственное хранилище.
//
// Если носитель не прочитался, изменение строилось не от сохранённого значения.
// Такая запись в носитель не идёт: она ждёт в pending вместе с replay и
// применяется к сохранённому значению, когда его снова удастся прочитать.
//
// Обращения к носителю по одному ключу упорядочены полосатой блокировкой.
type Store struct {
	medium  Medium
	timeout time.Duration
	onFail  FailureHandler

	mu      sync.RWMutex
	pending map[string]pendingWrite

	locks [lockStripes]sync.Mutex
}

const lockStripes = 64

// replayFunc повторяет накопленные изменения поверх сохранённого значения.
type replayFunc func(durable string, found bool) string

// pendingWrite - значение, ждущее записи. replay == nil означает, что
// значение целиком заменяет сохранённое.
type pendingWrite struct {
	value  string
	replay replayFunc
}

// Option настраивает Store.
type Option func(*Store)

// WithTimeout задаёт таймаут обращения к носителю.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithFailureHandler задаёт обработчик сбоев носителя.
func WithFailureHandler(h FailureHandler) Option {
	return func(s *Store) {
		if h != nil {
			s.onFail = h
		}
	}
}

// NewStore создаёт хранилище. medium может быть nil.
func NewStore(medium Medium, opts ...Option) *Store {
	s := &Store{
		medium:  medium,
		timeout: DefaultMediumTimeout,
		onFail:  func(Op, string, error) {},
		pending: make(map[string]pendingWrite),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load читает значение ключа. Отсутствующее, нечитаемое или
// повреждённое значение заменяется на def.
func Load[T any](ctx context.Context, s *Store, key Key, def T) T {
	k := key.String()
	unlock := s.lock(k)
	defer unlock()

	r := s.read(ctx, k)
	return decode(s, k, r.value, r.found, def)
}

// Save перезаписывает значение ключа. Сбой носителя не возвращается:
// значение остаётся в памяти до следующей удачной записи.
func Save[T any](ctx context.Context, s *Store, key Key, v T) {
	data, err := json.Marshal(v)
	if err != nil {
		// Типы записей сериализуемы всегда; сюда попадает только ошибка программиста.
		s.onFail(OpSave, key.String(), err)
		return
	}
	k := key.String()
	unlock := s.lock(k)
	defer unlock()

	s.write(ctx, k, string(data), nil)
}

// Update - чтение-изменение-запись одного ключа под его блокировкой.
// fn возвращает новое значение и признак изменения; без изменения записи нет.
// fn может быть вызвана повторно на сохранённом значении, поэтому не должна
// зависеть ни от чего, кроме аргумента и своих параметров.
func Update[T any](ctx context.Context, s *Store, key Key, def T, fn func(T) (T, bool)) (T, bool) {
	k := key.String()
	unlock := s.lock(k)
	defer unlock()

	r := s.read(ctx, k)
	next, changed := fn(decode(s, k, r.value, r.found, def))
	if !changed {
		return next, false
	}
	data, err := json.Marshal(next)
	if err != nil {
		s.onFail(OpSave, k, err)
		return next, true
	}

	var replay replayFunc
	if r.blind {
		prior := r.replay
		replay = func(durable string, found bool) string {
			if prior != nil {
				durable, found = prior(durable, found), true
			}
			v, _ := fn(decode(s, k, durable, found, def))
			out, err := json.Marshal(v)
			if err != nil {
				return durable
			}
			return string(out)
		}
	}
	s.write(ctx, k, string(data), replay)
	return next, true
}

func decode[T any](s *Store, key, raw string, found bool, def T) T {
	if !found {
		return def
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		s.onFail(OpParse, key, shared.WrapError("progress", "Load", shared.ErrCorruptData, "unparsable value", err))
		return def
	}
	return v
}

func (s *Store) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &s.locks[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}

// readResult - итог чтения. blind: сохранённое значение неизвестно,
// value (если есть) собрано из изменений без него.
type readResult struct {
	value  string
	found  bool
	blind  bool
	replay replayFunc
}

// read вызывается под блокировкой ключа.
func (s *Store) read(ctx context.Context, key string) readResult {
	s.mu.RLock()
	p, pending := s.pending[key]
	s.mu.RUnlock()
	if pending && p.replay == nil {
		return readResult{value: p.value, found: true}
	}
	if s.medium == nil {
		return readResult{}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	v, ok, err := s.medium.Get(callCtx, key)
	cancel()
	if err != nil {
		s.onFail(OpLoad, key, shared.WrapError("progress", "Load", shared.ErrStorageUnavailable, "medium read failed", err))
		if pending {
			return readResult{value: p.value, found: true, blind: true, replay: p.replay}
		}
		return readResult{blind: true}
	}

	if pending {
		v, ok = p.replay(v, ok), true
		s.write(ctx, key, v, nil)
	}
	return readResult{value: v, found: ok}
}

// write вызывается под блокировкой ключа.
func (s *Store) write(ctx context.Context, key, value string, replay replayFunc) {
	if s.medium == nil {
		s.mu.Lock()
		s.pending[key] = pendingWrite{value: value}
		s.mu.Unlock()
		return
	}
	if replay != nil {
		s.mu.Lock()
		s.pending[key] = pendingWrite{value: value, replay: replay}
		s.mu.Unlock()
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.medium.Set(callCtx, key, value); err != nil {
		s.mu.Lock()
		s.pending[key] = pendingWrite{value: value}
		s.mu.Unlock()
		s.onFail(OpSave, key, shared.WrapError("progress", "Save", shared.ErrStorageUnavailable, "medium write failed", err))
		return
	}

	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

// Pending возвращает количество значений, ждущих записи в носитель.
func (s *Store) Pending() int {
	if s.medium == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Flush повторяет запись значений, не доехавших до носителя.
// Возвращает количество записанных ключей.
func (s *Store) Flush(ctx context.Context) int {
	if s.medium == nil {
		return 0
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	flushed := 0
	for _, k := range keys {
		if s.flushKey(ctx, k) {
			flushed++
		}
	}
	return flushed
}

func (s *Store) flushKey(ctx context.Context, key string) bool {
	unlock := s.lock(key)
	defer unlock()

	// Ключ мог уже записаться запросом, пока сброс ждал блокировку.
	s.mu.RLock()
	p, ok := s.pending[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	value := p.value
	if p.replay != nil {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		durable, found, err := s.medium.Get(callCtx, key)
		cancel()
		if err != nil {
			s.onFail(OpLoad, key, shared.WrapError("progress", "Flush", shared.ErrStorageUnavailable, "medium read failed", err))
			return false
		}
		value = p.replay(durable, found)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.medium.Set(callCtx, key, value)
	cancel()
	if err != nil {
		if p.replay != nil {
			s.mu.Lock()
			s.pending[key] = pendingWrite{value: value}
			s.mu.Unlock()
		}
		s.onFail(OpSave, key, shared.WrapError("progress", "Flush", shared.ErrStorageUnavailable, "medium write failed", err))
		return false
	}

	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
	return true
}

// Ping проверяет носитель, если он это умеет.
func (s *Store) Ping(ctx context.Context) error {
	p, ok := s.medium.(Pinger)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return p.Ping(ctx)
}

// ErrResetUnsupported возвращается, если носитель не умеет удалять по префиксу.
var ErrResetUnsupported = errors.New("progress medium does not support prefix deletion")

// Reset удаляет весь прогресс пользователя. Только для админских сценариев:
// в отличие от остальных операций, ошибки носителя возвращаются.
func (s *Store) Reset(ctx context.Context, user shared.UserID) (int64, error) {
	if !user.IsValid() {
		return 0, shared.ErrInvalidUserID
	}
	prefix := UserPrefix(user)

	s.mu.Lock()
	var removed int64
	for k := range s.pending {
		if strings.HasPrefix(k, prefix) {
			delete(s.pending, k)
			removed++
		}
	}
	s.mu.Unlock()

	if s.medium == nil {
		return removed, nil
	}

	d, ok := s.medium.(Deleter)
	if !ok {
		return removed, ErrResetUnsupported
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := d.DeletePrefix(ctx, prefix)
	if err != nil {
		return removed, shared.WrapError("progress", "Reset", shared.ErrStorageUnavailable, "medium delete failed", err)
	}
	return n, nil
}
