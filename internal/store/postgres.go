package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"toolcatalog/internal/model"
)

type PostgresStore struct {
	db *sql.DB

	customers    *Table[model.Customer]
	applications *Table[model.Application]
	tools        *Table[model.Tool]
	toolInputs   *Table[model.ToolInput]
	toolOutputs  *Table[model.ToolOutput]
	inputOptions *Table[model.InputOption]
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:           db,
		customers:    &Table[model.Customer]{db: db, spec: customerTable},
		applications: &Table[model.Application]{db: db, spec: applicationTable},
		tools:        &Table[model.Tool]{db: db, spec: toolTable},
		toolInputs:   &Table[model.ToolInput]{db: db, spec: toolInputTable},
		toolOutputs:  &Table[model.ToolOutput]{db: db, spec: toolOutputTable},
		inputOptions: &Table[model.InputOption]{db: db, spec: inputOptionTable},
	}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Customers() *Table[model.Customer]       { return s.customers }
func (s *PostgresStore) Applications() *Table[model.Application] { return s.applications }
func (s *PostgresStore) Tools() *Table[model.Tool]               { return s.tools }
func (s *PostgresStore) ToolInputs() *Table[model.ToolInput]     { return s.toolInputs }
func (s *PostgresStore) ToolOutputs() *Table[model.ToolOutput]   { return s.toolOutputs }
func (s *PostgresStore) InputOptions() *Table[model.InputOption] { return s.inputOptions }

type scanner interface {
	Scan(dest ...any) error
}

// tableSpec maps one entity onto its table. columns excludes id and lists
// the parent key first when there is one.
type tableSpec[T any] struct {
	name    string
	parent  string
	columns []string
	values  func(T) []any
	scan    func(scanner) (T, error)
}

var customerTable = tableSpec[model.Customer]{
	name:    "customers",
	columns: []string{"name"},
	values:  func(c model.Customer) []any { return []any{c.Name} },
	scan: func(row scanner) (model.Customer, error) {
		var c model.Customer
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	},
}

var applicationTable = tableSpec[model.Application]{
	name:    "applications",
	parent:  "customer_id",
	columns: []string{"customer_id", "name"},
	values:  func(a model.Application) []any { return []any{a.CustomerID, a.Name} },
	scan: func(row scanner) (model.Application, error) {
		var a model.Application
		err := row.Scan(&a.ID, &a.CustomerID, &a.Name)
		return a, err
	},
}

var toolTable = tableSpec[model.Tool]{
	name:    "tools",
	parent:  "application_id",
	columns: []string{"application_id", "name", "api_endpoint"},
	values:  func(t model.Tool) []any { return []any{t.ApplicationID, t.Name, t.APIEndpoint} },
	scan: func(row scanner) (model.Tool, error) {
		var t model.Tool
		err := row.Scan(&t.ID, &t.ApplicationID, &t.Name, &t.APIEndpoint)
		return t, err
	},
}

var toolInputTable = tableSpec[model.ToolInput]{
	name:    "tool_inputs",
	parent:  "tool_id",
	columns: []string{"tool_id", "name", "label", "placeholder", "field_type"},
	values: func(i model.ToolInput) []any {
		return []any{i.ToolID, i.Name, i.Label, i.Placeholder, int(i.FieldType)}
	},
	scan: func(row scanner) (model.ToolInput, error) {
		var i model.ToolInput
		var fieldType int
		err := row.Scan(&i.ID, &i.ToolID, &i.Name, &i.Label, &i.Placeholder, &fieldType)
		i.FieldType = model.InputFieldType(fieldType)
		return i, err
	},
}

var toolOutputTable = tableSpec[model.ToolOutput]{
	name:    "tool_outputs",
	parent:  "tool_id",
	columns: []string{"tool_id", "name", "field_type", "value"},
	values: func(o model.ToolOutput) []any {
		var value any
		if len(o.Value) > 0 {
			value = string(o.Value)
		}
		return []any{o.ToolID, o.Name, int(o.FieldType), value}
	},
	scan: func(row scanner) (model.ToolOutput, error) {
		var o model.ToolOutput
		var fieldType int
		var value []byte
		err := row.Scan(&o.ID, &o.ToolID, &o.Name, &fieldType, &value)
		o.FieldType = model.OutputFieldType(fieldType)
		if len(value) > 0 {
			o.Value = json.RawMessage(value)
		}
		return o, err
	},
}

var inputOptionTable = tableSpec[model.InputOption]{
	name:    "input_options",
	parent:  "input_id",
	columns: []string{"input_id", "label", "value"},
	values:  func(o model.InputOption) []any { return []any{o.InputID, o.Label, o.Value} },
	scan: func(row scanner) (model.InputOption, error) {
		var o model.InputOption
		err := row.Scan(&o.ID, &o.InputID, &o.Label, &o.Value)
		return o, err
	},
}

func (t tableSpec[T]) selectList() string {
	return "id, " + strings.Join(t.columns, ", ")
}

// Table is the Postgres repository of one entity kind. Get, Update and Delete
// return sql.ErrNoRows for a missing id.
type Table[T model.Record[T]] struct {
	db   *sql.DB
	spec tableSpec[T]
}

func (t *Table[T]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", t.spec.name, err)
	}
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := t.spec.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t.spec.name, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *Table[T]) List(ctx context.Context) ([]T, error) {
	return t.query(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, t.spec.selectList(), t.spec.name))
}

// ListByParent returns the children of parentID. Customers have no parent
// and always return the full list.
func (t *Table[T]) ListByParent(ctx context.Context, parentID int64) ([]T, error) {
	if t.spec.parent == "" {
		return t.List(ctx)
	}
	return t.query(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1 ORDER BY id`, t.spec.selectList(), t.spec.name, t.spec.parent),
		parentID)
}

func (t *Table[T]) Get(ctx context.Context, id int64) (T, error) {
	row := t.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, t.spec.selectList(), t.spec.name), id)
	return t.spec.scan(row)
}

// Insert stores item and returns it with the id Postgres assigned. The id on
// item is ignored.
func (t *Table[T]) Insert(ctx context.Context, item T) (T, error) {
	placeholders := make([]string, len(t.spec.columns))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) RETURNING %s`,
		t.spec.name, strings.Join(t.spec.columns, ", "), strings.Join(placeholders, ", "), t.spec.selectList())
	created, err := t.spec.scan(t.db.QueryRowContext(ctx, query, t.spec.values(item)...))
	if err != nil {
		var zero T
		return zero, translate(err)
	}
	return created, nil
}

// Update writes every column of item. The parent key is never changed.
func (t *Table[T]) Update(ctx context.Context, item T) (T, error) {
	values := t.spec.values(item)
	var sets []string
	var args []any
	for i, column := range t.spec.columns {
		if column == t.spec.parent {
			continue
		}
		args = append(args, values[i])
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	args = append(args, item.RecordID())
	query := fmt.Sprintf(`UPDATE %s SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		t.spec.name, strings.Join(sets, ", "), len(args), t.spec.selectList())
	updated, err := t.spec.scan(t.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		var zero T
		return zero, translate(err)
	}
	return updated, nil
}

// Delete removes the row; foreign keys cascade to its descendants.
func (t *Table[T]) Delete(ctx context.Context, id int64) error {
	result, err := t.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.spec.name), id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", t.spec.name, id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", t.spec.name, id, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteByParent removes every child of parentID and returns their ids.
func (t *Table[T]) DeleteByParent(ctx context.Context, parentID int64) ([]int64, error) {
	if t.spec.parent == "" {
		return nil, fmt.Errorf("%s has no parent", t.spec.name)
	}
	rows, err := t.db.QueryContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE %s = $1 RETURNING id`, t.spec.name, t.spec.parent), parentID)
	if err != nil {
		return nil, fmt.Errorf("delete %s by parent: %w", t.spec.name, err)
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Exists reports whether a row with id is present.
func (t *Table[T]) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := t.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, t.spec.name), id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check %s %d: %w", t.spec.name, id, err)
	}
	return exists, nil
}
