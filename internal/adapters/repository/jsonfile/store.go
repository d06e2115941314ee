// Package jsonfile は社員名簿と警告数を単一の JSON ファイルに保存するリポジトリです。
//
// 書き込みは一時ファイルへの出力と rename による置き換えで行われるため、正規のパスに
// 書きかけのファイルが現れることはありません。読み込めないファイルはバックアップへ退避され、
// 空の状態から再初期化されます。
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ogurasousui/staff-bot/internal/core/employee"
	"github.com/rs/zerolog"
)

const (
	tempSuffix       = ".tmp"
	backupInfix      = "_backup_"
	backupTimeLayout = "20060102_150405"
	maxBackupSuffix  = 100
	filePerm         = 0o644
)

// Observer はストアの障害・復旧イベントを受け取ります。
type Observer interface {
	FlushFailed()
	Recovered()
}

type record struct {
	Name     string `json:"name"`
	Position string `json:"position"`
	JoinDate string `json:"join_date"`
	Active   bool   `json:"active"`
}

type document struct {
	Employees map[string]record `json:"employees"`
	Warnings  map[string]int    `json:"warnings"`
}

func newDocument() document {
	return document{
		Employees: make(map[string]record),
		Warnings:  make(map[string]int),
	}
}

func (d document) clone() document {
	out := document{
		Employees: make(map[string]record, len(d.Employees)),
		Warnings:  make(map[string]int, len(d.Warnings)),
	}
	for k, v := range d.Employees {
		out.Employees[k] = v
	}
	for k, v := range d.Warnings {
		out.Warnings[k] = v
	}
	return out
}

// Store は JSON ファイルを用いた employee.Repository の実装です。
type Store struct {
	path           string
	maxFieldLength int
	logger         zerolog.Logger
	observer       Observer
	now            func() time.Time

	// mu はメモリ上のドキュメントの変更とスナップショットの取得だけを保護する
	mu      sync.Mutex
	doc     document
	version uint64

	// ioMu はファイル書き込みを直列化する。written は最後に書き込んだスナップショットの版
	ioMu    sync.Mutex
	written uint64
}

var _ employee.Repository = (*Store)(nil)

// Option は Store の任意設定です。
type Option func(*Store)

// WithLogger はロガーを設定します。
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithObserver は障害イベントの通知先を設定します。
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithMaxFieldLength は自由入力項目の最大文字数を設定します。
func WithMaxFieldLength(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxFieldLength = n
		}
	}
}

// WithClock はバックアップ名に使う時刻の取得元を設定します。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open はファイルを読み込んで Store を構築します。ファイルの内容に起因するエラーは返さず、
// 常に利用可能な状態の Store を返します。
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("jsonfile: path is required")
	}

	s := &Store{
		path:           path,
		maxFieldLength: employee.DefaultMaxFieldLength,
		logger:         zerolog.Nop(),
		now:            time.Now,
		doc:            newDocument(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "jsonfile").Str("path", path).Logger()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.logger.Warn().Err(err).Msg("ensure store directory failed")
		}
	}

	s.load()
	return s, nil
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info().Msg("store file not found, initializing empty document")
		s.reinitialize()
		return
	case err != nil:
		// 内容を救える可能性があるのでファイルには触れない
		s.logger.Error().Err(err).Msg("read store file failed, starting with empty document")
		s.doc = newDocument()
		return
	}

	if len(bytes.TrimSpace(data)) == 0 {
		s.logger.Info().Msg("store file is empty, initializing empty document")
		s.reinitialize()
		return
	}

	doc, err := decode(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("store file is corrupted, reinitializing")
		s.backup(data)
		if s.observer != nil {
			s.observer.Recovered()
		}
		s.reinitialize()
		return
	}

	s.doc = doc
	s.logger.Info().
		Int("employees", len(doc.Employees)).
		Int("warnings", len(doc.Warnings)).
		Msg("store loaded")
}

func (s *Store) reinitialize() {
	s.mu.Lock()
	s.doc = newDocument()
	s.version++
	snapshot, version := s.doc.clone(), s.version
	s.mu.Unlock()

	s.persist("initialize", snapshot, version)
}

func (s *Store) backup(data []byte) {
	base := s.path + backupInfix + s.now().Format(backupTimeLayout)
	backupPath, err := writeNewFile(base, data)
	if err != nil {
		s.logger.Warn().Err(err).Str("backup_path", base).Msg("backup of corrupted store file failed")
		return
	}
	s.logger.Warn().Str("backup_path", backupPath).Msg("corrupted store file backed up")
}

// writeNewFile は既存のファイルを上書きせずに data を書き込みます。
// base が使用済みの場合は _1, _2, ... を付けた名前を試します。
func writeNewFile(base string, data []byte) (string, error) {
	for i := 0; i <= maxBackupSuffix; i++ {
		path := base
		if i > 0 {
			path = fmt.Sprintf("%s_%d", base, i)
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("jsonfile: no free backup name for %s", base)
}

func decode(data []byte) (document, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("jsonfile: decode: %w", err)
	}
	if doc.Employees == nil {
		doc.Employees = make(map[string]record)
	}
	if doc.Warnings == nil {
		doc.Warnings = make(map[string]int)
	}
	for id, count := range doc.Warnings {
		if count <= 0 {
			delete(doc.Warnings, id)
		}
	}
	return doc, nil
}

func encode(doc document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("jsonfile: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// mutate はロックを取ってドキュメントを変更し、変更があればロックの外でスナップショットを書き込みます。
func (s *Store) mutate(op string, fn func(doc *document) bool) {
	s.mu.Lock()
	if !fn(&s.doc) {
		s.mu.Unlock()
		return
	}
	s.version++
	snapshot, version := s.doc.clone(), s.version
	s.mu.Unlock()

	s.persist(op, snapshot, version)
}

func (s *Store) persist(op string, snapshot document, version uint64) {
	if err := s.write(snapshot, version); err != nil {
		logPersistenceError(s.logger, op, err)
		if s.observer != nil {
			s.observer.FlushFailed()
		}
	}
}

func (s *Store) write(snapshot document, version uint64) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	// より新しいスナップショットが先に書かれていれば古い版で上書きしない
	if version < s.written {
		return nil
	}

	data, err := encode(snapshot)
	if err != nil {
		return err
	}
	if err := atomicWrite(s.path, data); err != nil {
		return err
	}
	s.written = version
	return nil
}

func atomicWrite(path string, data []byte) (err error) {
	tmp := path + tempSuffix
	defer func() {
		if err != nil {
			if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
				err = errors.Join(err, fmt.Errorf("jsonfile: remove temp file: %w", rmErr))
			}
		}
	}()

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("jsonfile: create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("jsonfile: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("jsonfile: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("jsonfile: close temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("jsonfile: replace store file: %w", err)
	}
	return nil
}

// Flush は現在のドキュメントを書き込みます。変更系の操作と異なり書き込みエラーを返します。
func (s *Store) Flush() error {
	s.mu.Lock()
	snapshot, version := s.doc.clone(), s.version
	s.mu.Unlock()

	if err := s.write(snapshot, version); err != nil {
		logPersistenceError(s.logger, "flush", err)
		return err
	}
	return nil
}

// Close はシャットダウン時に最後の書き込みを行います。
func (s *Store) Close() error {
	return s.Flush()
}

// AddEmployee は社員を有効な状態で登録します。既存のレコードは上書きされます。
func (s *Store) AddEmployee(_ context.Context, id, name, position, joinDate string) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}
	rec := record{
		Name:     employee.Sanitize(name, s.maxFieldLength),
		Position: employee.Sanitize(position, s.maxFieldLength),
		JoinDate: employee.Sanitize(joinDate, s.maxFieldLength),
		Active:   true,
	}

	s.mutate("add_employee", func(doc *document) bool {
		doc.Employees[key] = rec
		return true
	})
	return nil
}

// UpdateEmployee は指定された項目だけを既存レコードへ反映します。レコードがなければ何もしません。
func (s *Store) UpdateEmployee(_ context.Context, id string, fields employee.UpdateFields) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}
	if fields.IsEmpty() {
		return nil
	}

	var position, joinDate *string
	if fields.Position != nil {
		v := employee.Sanitize(*fields.Position, s.maxFieldLength)
		position = &v
	}
	if fields.JoinDate != nil {
		v := employee.Sanitize(*fields.JoinDate, s.maxFieldLength)
		joinDate = &v
	}

	s.mutate("update_employee", func(doc *document) bool {
		rec, ok := doc.Employees[key]
		if !ok {
			return false
		}
		if position != nil {
			rec.Position = *position
		}
		if joinDate != nil {
			rec.JoinDate = *joinDate
		}
		doc.Employees[key] = rec
		return true
	})
	return nil
}

// RemoveEmployee はレコードを無効化します。レコード自体は履歴として残ります。
func (s *Store) RemoveEmployee(_ context.Context, id string) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}

	s.mutate("remove_employee", func(doc *document) bool {
		rec, ok := doc.Employees[key]
		if !ok || !rec.Active {
			return false
		}
		rec.Active = false
		doc.Employees[key] = rec
		return true
	})
	return nil
}

// GetEmployee はレコードのコピーを返します。
func (s *Store) GetEmployee(_ context.Context, id string) (*employee.Employee, error) {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	rec, ok := s.doc.Employees[key]
	s.mu.Unlock()

	if !ok {
		return nil, employee.ErrEmployeeNotFound
	}
	return toEmployee(key, rec), nil
}

// GetAllEmployees は有効なレコードを ID 順に返します。
func (s *Store) GetAllEmployees(_ context.Context) ([]*employee.Employee, error) {
	s.mu.Lock()
	employees := make([]*employee.Employee, 0, len(s.doc.Employees))
	for key, rec := range s.doc.Employees {
		if rec.Active {
			employees = append(employees, toEmployee(key, rec))
		}
	}
	s.mu.Unlock()

	slices.SortFunc(employees, func(a, b *employee.Employee) int {
		if len(a.ID) != len(b.ID) {
			return len(a.ID) - len(b.ID)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return employees, nil
}

// SetWarnings は警告数を上書きします。0 の場合はエントリを削除します。
func (s *Store) SetWarnings(_ context.Context, id string, count int) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}
	if count < 0 {
		return employee.ErrInvalidWarningCount
	}

	s.mutate("set_warnings", func(doc *document) bool {
		current, ok := doc.Warnings[key]
		if count == 0 {
			if !ok {
				return false
			}
			delete(doc.Warnings, key)
			return true
		}
		if ok && current == count {
			return false
		}
		doc.Warnings[key] = count
		return true
	})
	return nil
}

// GetWarnings は警告数を返します。エントリがなければ 0 です。
func (s *Store) GetWarnings(_ context.Context, id string) (int, error) {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Warnings[key], nil
}

// RemoveWarnings は警告のエントリを削除します。
func (s *Store) RemoveWarnings(_ context.Context, id string) error {
	key, err := employee.NormalizeID(id)
	if err != nil {
		return err
	}

	s.mutate("remove_warnings", func(doc *document) bool {
		if _, ok := doc.Warnings[key]; !ok {
			return false
		}
		delete(doc.Warnings, key)
		return true
	})
	return nil
}

func toEmployee(id string, rec record) *employee.Employee {
	return &employee.Employee{
		ID:       id,
		Name:     rec.Name,
		Position: rec.Position,
		JoinDate: rec.JoinDate,
		Active:   rec.Active,
	}
}

func logPersistenceError(logger zerolog.Logger, operation string, err error) {
	logger.Error().
		Str("event", "persistence_error").
		Str("operation", operation).
		Err(err).
		Msg("store write failed, change kept in memory only")
}
