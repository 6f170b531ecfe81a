package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pagopa/interop-platform-state/internal/core"
)

const DefaultPageSize = 100

// DB is the subset of *pgxpool.Pool used by PostgresTable.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ core.Table = (*PostgresTable)(nil)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ValidIdentifier reports whether s can be used verbatim as a table or attribute name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// PostgresTable stores every row as a JSONB document keyed by pk.
// Secondary indexes are expression indexes over the document attributes.
type PostgresTable struct {
	db       DB
	name     string
	pageSize int
	indexes  map[string]core.IndexDefinition
}

func NewPostgresTable(db DB, name string, pageSize int, indexes ...core.IndexDefinition) (*PostgresTable, error) {
	if !ValidIdentifier(name) {
		return nil, fmt.Errorf("invalid table name '%s'", name)
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	idx := make(map[string]core.IndexDefinition, len(indexes))
	for _, i := range indexes {
		if !ValidIdentifier(i.PartitionAttr) || (i.SortAttr != "" && !ValidIdentifier(i.SortAttr)) {
			return nil, fmt.Errorf("index '%s' on %s uses an invalid attribute name", i.Name, name)
		}
		idx[i.Name] = i
	}
	return &PostgresTable{db: db, name: name, pageSize: pageSize, indexes: idx}, nil
}

// Connect opens a pool with the same limits for every process.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return pool, nil
}

func (t *PostgresTable) Name() string {
	return t.name
}

func (t *PostgresTable) Get(ctx context.Context, pk string) (core.Item, error) {
	var item core.Item
	err := t.db.QueryRow(ctx, `SELECT item FROM `+t.name+` WHERE pk=$1`, pk).Scan(&item)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("reading '%s' from %s: %w", pk, t.name, err)
	}
	if item == nil {
		return nil, fmt.Errorf("%w: '%s' has a null document", core.ErrCorruptRecord, pk)
	}
	return item, nil
}

func (t *PostgresTable) Put(ctx context.Context, item core.Item) error {
	pk := item.PK()
	if pk == "" {
		return fmt.Errorf("put into %s: item without primary key", t.name)
	}
	tag, err := t.db.Exec(ctx,
		`INSERT INTO `+t.name+`(pk,item) VALUES($1,$2) ON CONFLICT (pk) DO NOTHING`, pk, map[string]any(item))
	if err != nil {
		return fmt.Errorf("inserting '%s' into %s: %w", pk, t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConditionFailed
	}
	return nil
}

func (t *PostgresTable) Update(ctx context.Context, pk string, attrs core.Item) error {
	patch := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if k != core.AttrPK {
			patch[k] = v
		}
	}
	tag, err := t.db.Exec(ctx,
		`UPDATE `+t.name+` SET item = item || $2::jsonb WHERE pk=$1`, pk, patch)
	if err != nil {
		return fmt.Errorf("updating '%s' in %s: %w", pk, t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConditionFailed
	}
	return nil
}

const revisionExpr = `COALESCE((item->>'` + core.AttrRevision + `')::bigint, 0)`

func (t *PostgresTable) UpdateIf(ctx context.Context, pk string, attrs core.Item, revision int64) error {
	patch := make(map[string]any, len(attrs))
	for k, v := range attrs {
		if k != core.AttrPK {
			patch[k] = v
		}
	}
	tag, err := t.db.Exec(ctx, `
UPDATE `+t.name+`
SET item = item || $2::jsonb || jsonb_build_object('`+core.AttrRevision+`', `+revisionExpr+` + 1)
WHERE pk=$1 AND `+revisionExpr+` = $3
`, pk, patch, revision)
	if err != nil {
		return fmt.Errorf("updating '%s' in %s: %w", pk, t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return t.conditionError(ctx, pk)
	}
	return nil
}

func (t *PostgresTable) DeleteIf(ctx context.Context, pk string, revision int64) error {
	tag, err := t.db.Exec(ctx, `DELETE FROM `+t.name+` WHERE pk=$1 AND `+revisionExpr+` = $2`, pk, revision)
	if err != nil {
		return fmt.Errorf("deleting '%s' from %s: %w", pk, t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return t.conditionError(ctx, pk)
	}
	return nil
}

// conditionError tells a missing row from a moved revision after a conditional
// write matched nothing.
func (t *PostgresTable) conditionError(ctx context.Context, pk string) error {
	var exists bool
	if err := t.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM `+t.name+` WHERE pk=$1)`, pk).Scan(&exists); err != nil {
		return fmt.Errorf("reading '%s' from %s: %w", pk, t.name, err)
	}
	if !exists {
		return core.ErrConditionFailed
	}
	return core.ErrRevisionMismatch
}

func (t *PostgresTable) Delete(ctx context.Context, pk string) error {
	if _, err := t.db.Exec(ctx, `DELETE FROM `+t.name+` WHERE pk=$1`, pk); err != nil {
		return fmt.Errorf("deleting '%s' from %s: %w", pk, t.name, err)
	}
	return nil
}

func (t *PostgresTable) Replace(ctx context.Context, item core.Item, oldPK string) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning replace of '%s': %w", oldPK, err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM `+t.name+` WHERE pk=$1`, oldPK)
	if err != nil {
		return fmt.Errorf("deleting '%s' from %s: %w", oldPK, t.name, err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrConditionFailed
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO `+t.name+`(pk,item) VALUES($1,$2)
ON CONFLICT (pk) DO UPDATE SET item = EXCLUDED.item
`, item.PK(), map[string]any(item)); err != nil {
		return fmt.Errorf("writing '%s' into %s: %w", item.PK(), t.name, err)
	}
	return tx.Commit(ctx)
}

func (t *PostgresTable) Query(ctx context.Context, q core.Query) (core.Page, error) {
	idx, ok := t.indexes[q.Index]
	if !ok {
		return core.Page{}, fmt.Errorf("table %s has no index '%s'", t.name, q.Index)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = t.pageSize
	}

	sortExpr := `''`
	if idx.SortAttr != "" {
		sortExpr = sortExpression(idx.SortAttr)
	}
	cmp, dir := ">", "ASC"
	if q.Descending {
		cmp, dir = "<", "DESC"
	}

	var sb strings.Builder
	sb.WriteString(`SELECT pk, item FROM ` + t.name + ` WHERE item->>'` + idx.PartitionAttr + `' = $1`)
	args := []any{q.Key}
	if q.Cursor != "" {
		after, err := decodeCursor(q.Cursor)
		if err != nil {
			return core.Page{}, err
		}
		sb.WriteString(fmt.Sprintf(` AND (%s, pk) %s ($2, $3)`, sortExpr, cmp))
		args = append(args, after.Sort, after.PK)
	}
	sb.WriteString(fmt.Sprintf(` ORDER BY %s %s, pk %s LIMIT %d`, sortExpr, dir, dir, limit+1))

	rows, err := t.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return core.Page{}, fmt.Errorf("querying %s by %s: %w", t.name, q.Index, err)
	}
	defer rows.Close()

	page := core.Page{Items: make([]core.Item, 0, limit)}
	more := false
	for rows.Next() {
		var pk string
		var item core.Item
		if err := rows.Scan(&pk, &item); err != nil {
			return core.Page{}, fmt.Errorf("%w: scanning row of %s: %v", core.ErrCorruptRecord, t.name, err)
		}
		if len(page.Items) == limit {
			more = true
			break
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return core.Page{}, fmt.Errorf("querying %s by %s: %w", t.name, q.Index, err)
	}
	if more {
		page.Next = encodeCursor(positionOf(page.Items[limit-1], idx))
	}
	return page, nil
}

// Migrate creates the table and one expression index per secondary index.
func (t *PostgresTable) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + t.name + ` (pk TEXT COLLATE "C" PRIMARY KEY, item JSONB NOT NULL)`,
	}
	for _, idx := range t.indexes {
		cols := `(item->>'` + idx.PartitionAttr + `')`
		if idx.SortAttr != "" {
			cols += `, (` + sortExpression(idx.SortAttr) + `)`
		}
		name := t.name + "_" + strings.ReplaceAll(idx.Name, "-", "_") + "_idx"
		stmts = append(stmts, `CREATE INDEX IF NOT EXISTS `+pgx.Identifier{name}.Sanitize()+` ON `+t.name+` (`+cols+`, pk)`)
	}
	for _, stmt := range stmts {
		if _, err := t.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrating %s: %w", t.name, err)
		}
	}
	return nil
}

// sortExpression compares bytewise, matching the order of MemoryTable and of
// the fixed-width timestamps stored in sort attributes.
func sortExpression(attr string) string {
	return `COALESCE(item->>'` + attr + `','') COLLATE "C"`
}
