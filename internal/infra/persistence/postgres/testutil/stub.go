// Package testutil provides a stub database/sql driver that understands the
// handful of statement shapes the postgres archive issues.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync/atomic"
)

// StubConn keeps tables as slices of column maps and records every statement.
type StubConn struct {
	Execs      []string
	Tables     map[string][]map[string]any
	FailPing   bool
	FailExec   bool
	FailBegin  bool
	FailCommit bool
	FailTables map[string]bool
}

var stubSeq atomic.Int64

// NewStubDB registers a fresh driver and returns a *sql.DB bound to it.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{Tables: make(map[string][]map[string]any)}
	name := fmt.Sprintf("stubpg%d", stubSeq.Add(1))
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

// Opener returns a func with the shape of sql.Open that ignores its
// arguments and hands back db.
func Opener(db *sql.DB) func(string, string) (*sql.DB, error) {
	return func(string, string) (*sql.DB, error) { return db, nil }
}

type stubDriver struct{ conn *StubConn }

func (d *stubDriver) Open(string) (driver.Conn, error) { return d.conn, nil }

func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("prepare not supported") }
func (c *StubConn) Close() error                        { return nil }
func (c *StubConn) Begin() (driver.Tx, error)           { return c.BeginTx(context.Background(), driver.TxOptions{}) }

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext for CREATE, INSERT (with
// optional ON CONFLICT upsert on the first column) and DELETE ... WHERE.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.Execs = append(c.Execs, query)
	if c.FailExec {
		return nil, fmt.Errorf("exec fail")
	}
	verb := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(verb, "INSERT INTO"):
		table, cols, err := parseInsert(query)
		if err != nil {
			return nil, err
		}
		if c.FailTables[table] {
			return nil, fmt.Errorf("exec fail for %s", table)
		}
		if len(cols) != len(args) {
			return nil, fmt.Errorf("column/arg mismatch for %s", table)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = args[i].Value
		}
		if strings.Contains(verb, "ON CONFLICT") {
			c.Tables[table] = without(c.Tables[table], cols[0], row[cols[0]])
		}
		c.Tables[table] = append(c.Tables[table], row)
		return driver.RowsAffected(1), nil
	case strings.HasPrefix(verb, "DELETE FROM"):
		table, col, err := parseDelete(query)
		if err != nil {
			return nil, err
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("missing args for delete %s", table)
		}
		before := len(c.Tables[table])
		c.Tables[table] = without(c.Tables[table], col, args[0].Value)
		return driver.RowsAffected(int64(before - len(c.Tables[table]))), nil
	}
	return driver.RowsAffected(0), nil
}

// QueryContext implements driver.QueryerContext for
// SELECT cols FROM table [WHERE col = $1] [ORDER BY col].
func (c *StubConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	q, err := parseSelect(query)
	if err != nil {
		return nil, err
	}
	if c.FailTables[q.table] {
		return nil, fmt.Errorf("query fail for %s", q.table)
	}
	var matched []map[string]any
	for _, row := range c.Tables[q.table] {
		if q.where != "" {
			if len(args) == 0 || row[q.where] != args[0].Value {
				continue
			}
		}
		matched = append(matched, row)
	}
	if q.orderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			return fmt.Sprint(matched[i][q.orderBy]) < fmt.Sprint(matched[j][q.orderBy])
		})
	}
	values := make([][]driver.Value, 0, len(matched))
	for _, row := range matched {
		vals := make([]driver.Value, len(q.cols))
		for i, col := range q.cols {
			vals[i] = row[col]
		}
		values = append(values, vals)
	}
	return &stubRows{cols: q.cols, rows: values}, nil
}

func without(rows []map[string]any, col string, value any) []map[string]any {
	out := rows[:0:0]
	for _, row := range rows {
		if row[col] != value {
			out = append(out, row)
		}
	}
	return out
}

type stubTx struct{ conn *StubConn }

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}

func parseInsert(query string) (string, []string, error) {
	idx := strings.Index(strings.ToUpper(query), "INTO ")
	if idx == -1 {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	rest := strings.TrimSpace(query[idx+len("INTO "):])
	open, closeIdx := strings.Index(rest, "("), strings.Index(rest, ")")
	if open == -1 || closeIdx <= open {
		return "", nil, fmt.Errorf("cannot parse insert: %s", query)
	}
	return strings.ToLower(strings.TrimSpace(rest[:open])), splitColumns(rest[open+1 : closeIdx]), nil
}

func parseDelete(query string) (string, string, error) {
	fields := strings.Fields(strings.ToLower(query))
	// delete from <table> where <col> = $1
	if len(fields) < 5 || fields[3] != "where" {
		return "", "", fmt.Errorf("cannot parse delete: %s", query)
	}
	col, _, _ := strings.Cut(fields[4], "=")
	return fields[2], col, nil
}

type selectQuery struct {
	table   string
	cols    []string
	where   string
	orderBy string
}

func parseSelect(query string) (selectQuery, error) {
	lower := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if !strings.HasPrefix(lower, "select ") {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	colsPart, rest, ok := strings.Cut(lower[len("select "):], " from ")
	if !ok || strings.TrimSpace(rest) == "" {
		return selectQuery{}, fmt.Errorf("cannot parse select: %s", query)
	}
	q := selectQuery{cols: splitColumns(colsPart), table: strings.Fields(rest)[0]}
	if _, order, ok := strings.Cut(rest, " order by "); ok {
		q.orderBy = strings.Fields(order)[0]
		rest, _, _ = strings.Cut(rest, " order by ")
	}
	if _, where, ok := strings.Cut(rest, " where "); ok {
		col, _, _ := strings.Cut(where, "=")
		q.where = strings.TrimSpace(col)
	}
	return q, nil
}

func splitColumns(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(part)))
	}
	return out
}
