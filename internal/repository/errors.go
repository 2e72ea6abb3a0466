// Package repository defines sentinel error values shared by every
// repository implementation. Callers branch on these with errors.Is to
// distinguish failure scenarios without inspecting driver-level errors:
// ErrNotFound for a missing device or alert, ErrConnection for an
// unreachable store, ErrConstraint for a store-enforced uniqueness or
// foreign-key violation surfaced unchanged.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a referenced device or alert does not exist.
var ErrNotFound = errors.New("not found")

// ErrConnection is returned when the store is unreachable or the connection
// was lost. It is propagated as-is: this layer does not retry.
var ErrConnection = errors.New("connection error")

// ErrConstraint is returned when the store rejects a write due to a
// uniqueness or foreign-key violation.
var ErrConstraint = errors.New("constraint violation")

// pg error classes (see PostgreSQL Appendix A)
const (
	pgClassIntegrityViolation = "23"
	pgCodeForeignKeyViolation = "23503"
	pgClassConnectionError    = "08"
)

// translateError 将驱动层错误映射为仓储层哨兵错误
// 外键违例（23503）视为被引用设备不存在 → ErrNotFound
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: %v: %w", op, err, ErrConnection)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == pgCodeForeignKeyViolation:
			return fmt.Errorf("%s: %v: %w", op, pqErr, ErrNotFound)
		case pqErr.Code.Class() == pgClassIntegrityViolation:
			return fmt.Errorf("%s: %v: %w", op, pqErr, ErrConstraint)
		case pqErr.Code.Class() == pgClassConnectionError:
			return fmt.Errorf("%s: %v: %w", op, pqErr, ErrConnection)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
