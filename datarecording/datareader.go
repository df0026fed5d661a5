package datarecording

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// QueryParams selects and orders the rows returned by DataReader.Query.
type QueryParams struct {
	// Where is a SQL condition without the WHERE keyword, for example
	// "Vertex = ? AND Kind = ?".
	Where string
	Args  []any

	// OrderBy is a column list without the ORDER BY keywords.
	OrderBy string

	// Limit of 0 returns every row. Offset only applies with a limit.
	Limit  int
	Offset int
}

// DataReader reads recorded tables back into Go structs.
type DataReader interface {
	// MapTable declares the struct type the rows of a table are read into.
	// A table must be mapped before it is queried.
	MapTable(tableName string, sampleEntry any)

	// ListTables returns the mapped tables, sorted by name.
	ListTables() []string

	// Query returns pointers to the mapped struct, one per selected row, and
	// the number of rows matching params.Where regardless of the limit.
	Query(ctx context.Context, tableName string, params QueryParams) (
		results []any,
		totalCount int,
		err error,
	)

	Close() error
}

type sqliteReader struct {
	db *sql.DB

	lock  sync.Mutex
	types map[string]reflect.Type
}

// NewReader opens an existing recording for reading.
func NewReader(filename string) (DataReader, error) {
	_, err := os.Stat(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening recording")
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", filename)
	}

	return NewReaderWithDB(db), nil
}

// NewReaderWithDB creates a DataReader over a given database.
func NewReaderWithDB(db *sql.DB) DataReader {
	return &sqliteReader{
		db:    db,
		types: make(map[string]reflect.Type),
	}
}

func (r *sqliteReader) MapTable(tableName string, sampleEntry any) {
	r.lock.Lock()
	defer r.lock.Unlock()

	r.types[tableName] = reflect.TypeOf(sampleEntry)
}

func (r *sqliteReader) ListTables() []string {
	r.lock.Lock()
	defer r.lock.Unlock()

	tables := make([]string, 0, len(r.types))
	for name := range r.types {
		tables = append(tables, name)
	}

	slices.Sort(tables)

	return tables
}

func (r *sqliteReader) mapped(tableName string) (reflect.Type, bool) {
	r.lock.Lock()
	defer r.lock.Unlock()

	t, ok := r.types[tableName]

	return t, ok
}

func (r *sqliteReader) Query(
	ctx context.Context,
	tableName string,
	params QueryParams,
) ([]any, int, error) {
	rowType, ok := r.mapped(tableName)
	if !ok {
		return nil, 0, errors.Errorf("table %s is not mapped", tableName)
	}

	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+tableName+whereClause(params),
		params.Args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "counting %s", tableName)
	}

	rows, err := r.db.QueryContext(ctx, selectQuery(tableName, params),
		params.Args...)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "querying %s", tableName)
	}
	defer rows.Close()

	results, err := scanRows(rows, rowType)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "reading %s", tableName)
	}

	return results, total, nil
}

func whereClause(params QueryParams) string {
	if params.Where == "" {
		return ""
	}

	return " WHERE " + params.Where
}

func selectQuery(tableName string, params QueryParams) string {
	var b strings.Builder

	b.WriteString("SELECT * FROM ")
	b.WriteString(tableName)
	b.WriteString(whereClause(params))

	if params.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(params.OrderBy)
	}

	if params.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", params.Limit)

		if params.Offset > 0 {
			fmt.Fprintf(&b, " OFFSET %d", params.Offset)
		}
	}

	return b.String()
}

// scanRows reads every row into a new rowType value. Columns without a
// matching field are skipped.
func scanRows(rows *sql.Rows, rowType reflect.Type) ([]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fieldOf := make([]int, len(columns))
	for i, name := range columns {
		fieldOf[i] = -1

		if f, ok := rowType.FieldByName(name); ok && len(f.Index) == 1 {
			fieldOf[i] = f.Index[0]
		}
	}

	var (
		results []any
		skipped any
	)

	targets := make([]any, len(columns))

	for rows.Next() {
		row := reflect.New(rowType)

		for i, field := range fieldOf {
			if field < 0 {
				targets[i] = &skipped
				continue
			}

			targets[i] = row.Elem().Field(field).Addr().Interface()
		}

		err = rows.Scan(targets...)
		if err != nil {
			return nil, err
		}

		results = append(results, row.Interface())
	}

	return results, rows.Err()
}

func (r *sqliteReader) Close() error {
	return r.db.Close()
}
