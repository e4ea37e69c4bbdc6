// Package journal 记录已提交交易的哈希，便于在结果不确定（轮询超时）时稍后重新查询
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quizchain/client-sdk-go/types"
)

// StatusTimeout 轮询超时后的本地状态（链上结果未知）
const StatusTimeout types.TxStatus = "TIMEOUT"

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("journal entry not found")

// Entry 一条提交记录
type Entry struct {
	Hash       string
	ContractID string
	Method     string
	Source     string
	Status     types.TxStatus
	Ledger     uint32
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StatusLookup 查询链上状态（client.Client 满足该接口）
type StatusLookup interface {
	GetStatus(ctx context.Context, hash string) (*types.SubmissionResult, error)
}

// Journal SQLite 提交日志
type Journal struct {
	db *sql.DB
}

// Open 打开（或创建）日志数据库，path 为 ":memory:" 时使用内存数据库
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite 单写者；内存库每个连接是独立的数据库
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS submissions (
			hash TEXT PRIMARY KEY,
			contract_id TEXT NOT NULL,
			method TEXT NOT NULL,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			ledger INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS submissions_status ON submissions(status)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close 关闭数据库
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record 记录一次提交（重复哈希忽略）
func (j *Journal) Record(ctx context.Context, hash string, inv types.ContractInvocation, source string) error {
	if hash == "" {
		return errors.New("hash is required")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UTC().UnixMilli()
	_, err := j.db.ExecContext(ctx, `INSERT INTO submissions (hash, contract_id, method, source, status, ledger, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(hash) DO NOTHING`,
		hash, inv.ContractID(), inv.Method(), source, string(types.TxStatusPending), now, now)
	return err
}

// UpdateStatus 更新状态
func (j *Journal) UpdateStatus(ctx context.Context, hash string, status types.TxStatus, ledger uint32) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := j.db.ExecContext(ctx, `UPDATE submissions SET status = ?, ledger = ?, updated_at = ? WHERE hash = ?`,
		string(status), ledger, time.Now().UTC().UnixMilli(), hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return nil
}

// Get 按哈希读取
func (j *Journal) Get(ctx context.Context, hash string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := j.db.QueryRowContext(ctx, `SELECT hash, contract_id, method, source, status, ledger, created_at, updated_at
		FROM submissions WHERE hash = ?`, hash)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}
	return entry, err
}

// Pending 所有尚未确认终态的记录（按提交时间排序）
func (j *Journal) Pending(ctx context.Context) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := j.db.QueryContext(ctx, `SELECT hash, contract_id, method, source, status, ledger, created_at, updated_at
		FROM submissions WHERE status NOT IN (?, ?) ORDER BY created_at ASC, hash ASC`,
		string(types.TxStatusSuccess), string(types.TxStatusFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Reconcile 重新查询所有未确认记录并更新状态
//
// 查询失败的记录保持原状态，错误按哈希返回。
func (j *Journal) Reconcile(ctx context.Context, lookup StatusLookup) ([]Entry, map[string]error, error) {
	pending, err := j.Pending(ctx)
	if err != nil {
		return nil, nil, err
	}

	failures := make(map[string]error)
	updated := make([]Entry, 0, len(pending))
	for _, entry := range pending {
		res, err := lookup.GetStatus(ctx, entry.Hash)
		if err != nil {
			failures[entry.Hash] = err
			continue
		}
		if res.Status == types.TxStatusNotFound && entry.Status == StatusTimeout {
			// 仍未上链，保留 TIMEOUT 以便继续重查
			updated = append(updated, entry)
			continue
		}
		if err := j.UpdateStatus(ctx, entry.Hash, res.Status, res.Ledger); err != nil {
			return nil, nil, err
		}
		entry.Status = res.Status
		entry.Ledger = res.Ledger
		updated = append(updated, entry)
	}
	return updated, failures, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e                  Entry
		status             string
		created, updatedAt int64
	)
	if err := s.Scan(&e.Hash, &e.ContractID, &e.Method, &e.Source, &status, &e.Ledger, &created, &updatedAt); err != nil {
		return nil, err
	}
	e.Status = types.TxStatus(status)
	e.CreatedAt = time.UnixMilli(created).UTC()
	e.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &e, nil
}
