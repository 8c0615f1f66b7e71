package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrorKind 存储层错误分类
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindDuplicate
	KindForeignKey
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindDuplicate:
		return "duplicate"
	case KindForeignKey:
		return "foreign_key"
	default:
		return "other"
	}
}

// Error is returned by every store operation that fails. Kind is decided
// once, where the driver error is first seen.
type Error struct {
	Op         string
	Table      string
	Kind       ErrorKind
	Constraint string
	Field      string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Op, e.Table, e.Kind)
	if e.Constraint != "" {
		msg += " (" + e.Constraint + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// postgres SQLSTATE codes
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

// translateError 将驱动错误转换为结构化的 *Error
func translateError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	e := &Error{Op: op, Table: table, Kind: KindOther, Err: err}

	if errors.Is(err, sql.ErrNoRows) {
		e.Kind = KindNotFound
		return e
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		e.Constraint = pqErr.Constraint
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			e.Kind = KindDuplicate
			e.Field = fieldFromConstraint(pqErr.Table, pqErr.Constraint)
		case pqForeignKeyViolation:
			e.Kind = KindForeignKey
		}
	}
	return e
}

// fieldFromConstraint recovers the column from postgres' default unique
// constraint naming: <table>_<column>_key.
func fieldFromConstraint(table, constraint string) string {
	if table == "" || constraint == "" {
		return ""
	}
	name := strings.TrimPrefix(constraint, table+"_")
	return strings.TrimSuffix(name, "_key")
}

func notFound(op, table string) error {
	return &Error{Op: op, Table: table, Kind: KindNotFound, Err: sql.ErrNoRows}
}

func duplicate(op, table, field string) error {
	return &Error{
		Op:         op,
		Table:      table,
		Kind:       KindDuplicate,
		Constraint: table + "_" + field + "_key",
		Field:      field,
	}
}

// IsNotFound 判断是否为记录不存在
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindNotFound
}

// IsDuplicate 判断是否违反唯一约束
func IsDuplicate(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindDuplicate
}

// IsDuplicateEmail reports whether err is a uniqueness violation on an email column
func IsDuplicateEmail(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindDuplicate && e.Field == "email"
}

// IsForeignKey 判断是否违反外键约束
func IsForeignKey(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindForeignKey
}
