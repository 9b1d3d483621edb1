package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/customapi"
	"go.uber.org/zap"
)

type definitionPool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const definitionColumns = "id::text, name, slug, content_type_uid, content_type_name, structure, created_at, updated_at"

// DefinitionsTableDDL returns the statements creating the definitions table
// and its unique slug index.
func DefinitionsTableDDL(table string) []string {
	name := sanitizeIdentifier(table)
	index := sanitizeIdentifier(table + "_slug_key")
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL,
	content_type_uid TEXT NOT NULL,
	content_type_name TEXT NOT NULL DEFAULT '',
	structure JSONB,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL
)`, name),
		fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (slug)", index, name),
	}
}

// PostgresDefinitionStore persists definitions in a single table. The
// selection tree is stored as JSONB; timestamps are unix milliseconds.
type PostgresDefinitionStore struct {
	pool    definitionPool
	table   string
	nowFunc func() time.Time
}

// NewPostgresDefinitionStore creates a store over table.
func NewPostgresDefinitionStore(pool definitionPool, table string) *PostgresDefinitionStore {
	return &PostgresDefinitionStore{
		pool:    pool,
		table:   sanitizeIdentifier(table),
		nowFunc: time.Now,
	}
}

func (s *PostgresDefinitionStore) withClock(now func() time.Time) {
	if now == nil {
		return
	}
	s.nowFunc = now
}

func (s *PostgresDefinitionStore) nowMillis() int64 {
	return s.nowFunc().UnixMilli()
}

// FindByID returns DEFINITION_NOT_FOUND when no row matches.
func (s *PostgresDefinitionStore) FindByID(ctx context.Context, id uuid.UUID) (*customapi.Definition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", definitionColumns, s.table)
	def, err := scanDefinition(s.pool.QueryRow(ctx, query, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, customapi.NewDefinitionNotFoundError(id.String())
	}
	if err != nil {
		return nil, fmt.Errorf("find definition %s: %w", id, err)
	}
	return def, nil
}

// FindBySlug returns DEFINITION_NOT_FOUND when no row matches.
func (s *PostgresDefinitionStore) FindBySlug(ctx context.Context, slug string) (*customapi.Definition, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE slug = $1", definitionColumns, s.table)
	def, err := scanDefinition(s.pool.QueryRow(ctx, query, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, customapi.NewDefinitionNotFoundError(slug)
	}
	if err != nil {
		return nil, fmt.Errorf("find definition by slug %s: %w", slug, err)
	}
	return def, nil
}

// SlugExists reports whether another definition uses slug. excludeID, when
// set, is ignored so a definition can keep its own slug on update.
func (s *PostgresDefinitionStore) SlugExists(ctx context.Context, slug string, excludeID *uuid.UUID) (bool, error) {
	query := fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE slug = $1)", s.table)
	args := []any{slug}
	if excludeID != nil {
		query = fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE slug = $1 AND id <> $2)", s.table)
		args = append(args, excludeID.String())
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slug %s: %w", slug, err)
	}
	return exists, nil
}

// List returns one page of definitions, newest first, and the total count.
func (s *PostgresDefinitionStore) List(ctx context.Context, opts customapi.ListOptions) ([]*customapi.Definition, int64, error) {
	where := ""
	args := []any{}
	if opts.ContentType != "" {
		where = " WHERE content_type_uid = $1"
		args = append(args, opts.ContentType)
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table, where)
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count definitions: %w", err)
	}

	page, pageSize := max(opts.Page, 1), opts.PageSize
	if pageSize < 1 {
		pageSize = 25
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d",
		definitionColumns, s.table, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, customapi.PaginationSpec{Page: page, PageSize: pageSize}.Offset())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	defs := make([]*customapi.Definition, 0, pageSize)
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate definitions: %w", err)
	}
	return defs, total, nil
}

// Create inserts def, assigning an id when it has none and stamping both
// timestamps.
func (s *PostgresDefinitionStore) Create(ctx context.Context, def *customapi.Definition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	now := s.nowMillis()
	def.CreatedAt, def.UpdatedAt = now, now

	structure, err := marshalStructure(def.Structure)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, name, slug, content_type_uid, content_type_name, structure, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, s.table)
	if _, err := s.pool.Exec(ctx, query,
		def.ID.String(), def.Name, def.Slug, def.SelectedContentType.UID, def.SelectedContentType.DisplayName,
		structure, def.CreatedAt, def.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return customapi.NewSlugConflictError(def.Slug).WithCause(err)
		}
		return fmt.Errorf("insert definition: %w", err)
	}

	zap.S().Infow("custom api definition created", "id", def.ID, "slug", def.Slug)
	return nil
}

// Update overwrites every mutable column of def and refreshes UpdatedAt.
func (s *PostgresDefinitionStore) Update(ctx context.Context, def *customapi.Definition) error {
	def.UpdatedAt = s.nowMillis()
	structure, err := marshalStructure(def.Structure)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET name = $2, slug = $3, content_type_uid = $4, content_type_name = $5,
		structure = $6, updated_at = $7 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		def.ID.String(), def.Name, def.Slug, def.SelectedContentType.UID, def.SelectedContentType.DisplayName,
		structure, def.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return customapi.NewSlugConflictError(def.Slug).WithCause(err)
		}
		return fmt.Errorf("update definition %s: %w", def.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return customapi.NewDefinitionNotFoundError(def.ID.String())
	}

	zap.S().Infow("custom api definition updated", "id", def.ID, "slug", def.Slug)
	return nil
}

// Delete removes the definition with id.
func (s *PostgresDefinitionStore) Delete(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.table)
	tag, err := s.pool.Exec(ctx, query, id.String())
	if err != nil {
		return fmt.Errorf("delete definition %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return customapi.NewDefinitionNotFoundError(id.String())
	}
	zap.S().Infow("custom api definition deleted", "id", id)
	return nil
}

func scanDefinition(row pgx.Row) (*customapi.Definition, error) {
	var (
		def       customapi.Definition
		id        string
		structure []byte
	)
	if err := row.Scan(&id, &def.Name, &def.Slug, &def.SelectedContentType.UID, &def.SelectedContentType.DisplayName,
		&structure, &def.CreatedAt, &def.UpdatedAt); err != nil {
		return nil, err
	}

	parsed, ok := toUUID(id)
	if !ok {
		return nil, fmt.Errorf("invalid definition id %q", id)
	}
	def.ID = parsed

	if len(structure) > 0 && string(structure) != "null" {
		var node customapi.SchemaNode
		if err := json.Unmarshal(structure, &node); err != nil {
			return nil, fmt.Errorf("decode structure of %s: %w", id, err)
		}
		def.Structure = &node
	}
	return &def, nil
}

func marshalStructure(node *customapi.SchemaNode) ([]byte, error) {
	if node == nil {
		return nil, nil
	}
	data, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("encode structure: %w", err)
	}
	return data, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ customapi.DefinitionStore = (*PostgresDefinitionStore)(nil)
