// Package sqlquery provides the parameterized SQL execution worker.
package sqlquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	// Postgres driver registration.
	_ "github.com/lib/pq"

	"github.com/lariat-run/lariat/pkg/protocol"
	"github.com/lariat-run/lariat/pkg/template"
)

const (
	OutputPortMain = "main"
	InputPortMain  = "main"
)

// Worker executes one parameterized SQL statement against a database whose
// connection string arrives pre-resolved in the node configuration. Queries
// use placeholder parameters only; values are never interpolated into the
// statement text.
type Worker struct {
	id     string
	driver string
	dsn    string
	query  string
	params []any
}

// NewWorker creates a new SQL query worker.
func NewWorker(id string, config map[string]any) (*Worker, error) {
	query, ok := config["query"].(string)
	if !ok {
		return nil, errors.New("missing required field 'query'")
	}

	dsn, ok := config["dsn"].(string)
	if !ok {
		return nil, errors.New("missing required field 'dsn'")
	}

	w := &Worker{
		id:     id,
		driver: "postgres",
		dsn:    dsn,
		query:  query,
	}

	if driver, ok := config["driver"].(string); ok {
		w.driver = driver
	}

	if params, ok := config["params"].([]any); ok {
		w.params = params
	}

	return w, nil
}

// ID returns the node ID.
func (w *Worker) ID() string {
	return w.id
}

// Type returns the worker type.
func (w *Worker) Type() string {
	return "sqlquery"
}

// Execute runs the statement. String parameters support {var|default:x}
// placeholders resolved from inputs and shared variables; the resolved
// values are passed as bind parameters.
func (w *Worker) Execute(ctx context.Context, inputs map[string]any, info protocol.ExecutionInfo) (map[string]any, error) {
	db, err := sql.Open(w.driver, w.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	data := make(map[string]any, len(info.Variables)+len(inputs))

	for k, v := range info.Variables {
		data[k] = v
	}

	for k, v := range inputs {
		data[k] = v
	}

	params := make([]any, len(w.params))

	for i, p := range w.params {
		if s, ok := p.(string); ok {
			params[i] = template.RenderAdvanced(s, data)

			continue
		}

		params[i] = p
	}

	if isQuery(w.query) {
		return w.runQuery(ctx, db, params)
	}

	return w.runExec(ctx, db, params)
}

func (w *Worker) runQuery(ctx context.Context, db *sql.DB, params []any) (map[string]any, error) {
	rows, err := db.QueryContext(ctx, w.query, params...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	results := make([]map[string]any, 0)

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))

		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))

		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}

	return map[string]any{
		OutputPortMain: map[string]any{
			"rows":  results,
			"count": len(results),
		},
	}, nil
}

func (w *Worker) runExec(ctx context.Context, db *sql.DB, params []any) (map[string]any, error) {
	result, err := db.ExecContext(ctx, w.query, params...)
	if err != nil {
		return nil, fmt.Errorf("statement failed: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		affected = 0
	}

	return map[string]any{
		OutputPortMain: map[string]any{
			"rows_affected": affected,
		},
	}, nil
}

func isQuery(statement string) bool {
	head := strings.ToUpper(strings.TrimSpace(statement))

	return strings.HasPrefix(head, "SELECT") || strings.HasPrefix(head, "WITH")
}
