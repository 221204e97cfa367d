package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// table maps a resource to its Postgres table and name column.
type table struct {
	resource string
	name     string
	parent   string
	column   string
	parentOf string // resource of the parent table
}

var tables = []table{
	{resource: "customers", name: "customers", parent: "0", column: "name"},
	{resource: "applications", name: "applications", parent: "customer_id", column: "name", parentOf: "customers"},
	{resource: "tools", name: "tools", parent: "application_id", column: "name", parentOf: "applications"},
	{resource: "tool-inputs", name: "tool_inputs", parent: "tool_id", column: "name", parentOf: "tools"},
	{resource: "tool-outputs", name: "tool_outputs", parent: "tool_id", column: "name", parentOf: "tools"},
	{resource: "input-options", name: "input_options", parent: "input_id", column: "label", parentOf: "tool-inputs"},
}

// Postgres implements Searcher with case-insensitive substring matching.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Healthy always returns true; without Postgres the server is down anyway.
func (p *Postgres) Healthy() bool {
	return true
}

func (p *Postgres) Search(q Query) ([]Result, int, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, 0, nil
	}

	var subQueries []string
	for _, t := range tables {
		if q.Type != "" && q.Type != t.resource {
			continue
		}
		subQueries = append(subQueries, fmt.Sprintf(
			`SELECT '%s'::text AS type, id, %s AS name, %s::bigint AS parent_id FROM %s WHERE %s ILIKE $1`,
			t.resource, t.column, t.parent, t.name, t.column))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	pattern := "%" + escapeLike(text) + "%"
	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM (`+union+`) matches`, pattern).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT type, id, name, parent_id FROM (`+union+`) matches ORDER BY name, type, id LIMIT $2 OFFSET $3`,
		pattern, q.limit(), q.offset())
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.Type, &r.ID, &r.Name, &r.ParentID); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// LoadEntities reads every catalog record with its ancestor keys, parents
// before children.
func (p *Postgres) LoadEntities(ctx context.Context) ([]Entity, error) {
	var entities []Entity
	byKey := map[string]Entity{}
	for _, t := range tables {
		rows, err := p.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT id, %s, %s::bigint FROM %s ORDER BY id`, t.column, t.parent, t.name))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", t.name, err)
		}
		for rows.Next() {
			e := Entity{Type: t.resource}
			if err := rows.Scan(&e.ID, &e.Name, &e.ParentID); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s: %w", t.name, err)
			}
			e.Key = Key(t.resource, e.ID)
			e.Ancestors = []string{}
			if t.parentOf != "" {
				parentKey := Key(t.parentOf, e.ParentID)
				if parent, ok := byKey[parentKey]; ok {
					e.Ancestors = append(append(e.Ancestors, parent.Ancestors...), parentKey)
				}
			}
			byKey[e.Key] = e
			entities = append(entities, e)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", t.name, err)
		}
	}
	return entities, nil
}
