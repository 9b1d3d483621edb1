package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	duckdb "github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/internal/queryparams"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned while the engine's circuit breaker is open.
var ErrCircuitOpen = errors.New("query engine temporarily unavailable")

const sourceIDColumn = "__source_id"

// SQLDocumentService fetches documents with plain SQL. Each content type
// maps onto one table; relations go through link tables and media,
// components and dynamic zones are JSON columns on the owner table.
type SQLDocumentService struct {
	runner    SQLRunner
	describer customapi.ContentTypeDescriber
	engine    string
	maxRows   int
	breaker   *CircuitBreaker
}

// DocumentServiceOption configures a SQLDocumentService.
type DocumentServiceOption func(*SQLDocumentService)

// WithMaxRows caps unpaginated reads.
func WithMaxRows(n int) DocumentServiceOption {
	return func(s *SQLDocumentService) { s.maxRows = n }
}

// WithCircuitBreaker rejects calls fast while cb is open.
func WithCircuitBreaker(cb *CircuitBreaker) DocumentServiceOption {
	return func(s *SQLDocumentService) { s.breaker = cb }
}

// WithEngineName labels telemetry emitted by the service.
func WithEngineName(name string) DocumentServiceOption {
	return func(s *SQLDocumentService) { s.engine = name }
}

// NewSQLDocumentService creates a document service over runner.
func NewSQLDocumentService(runner SQLRunner, describer customapi.ContentTypeDescriber, opts ...DocumentServiceOption) *SQLDocumentService {
	s := &SQLDocumentService{
		runner:    runner,
		describer: describer,
		engine:    customapi.EnginePostgres,
		maxRows:   10000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query fetches the rows selected by q from the table of uid.
func (s *SQLDocumentService) Query(ctx context.Context, uid string, q *customapi.DocumentQuery) ([]customapi.Row, error) {
	ct, err := s.describer.Describe(ctx, uid)
	if err != nil {
		return nil, err
	}
	if q == nil {
		q = &customapi.DocumentQuery{}
	}

	b := &sqlBuilder{}
	query := fmt.Sprintf("SELECT %s FROM %s AS t", strings.Join(selectList(ct, q.Fields, q.Populate), ", "), sanitizeIdentifier(ct.Table()))
	if where := b.where(ct, q.Filters); where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY " + orderBy(ct, q.Sort)
	query += s.limitClause(q.Pagination)

	var rows []map[string]any
	if err := s.guard(func() error {
		var err error
		rows, err = s.runner.QueryRows(ctx, query, b.args...)
		return err
	}); err != nil {
		return nil, fmt.Errorf("query %s: %w", uid, err)
	}

	if err := s.populate(ctx, ct, rows, q.Populate); err != nil {
		return nil, err
	}
	EmitRowCount(ctx, s.engine, int64(len(rows)))
	return rows, nil
}

// Count returns the number of rows of uid matching filters.
func (s *SQLDocumentService) Count(ctx context.Context, uid string, filters customapi.FilterSpec) (int64, error) {
	ct, err := s.describer.Describe(ctx, uid)
	if err != nil {
		return 0, err
	}

	b := &sqlBuilder{}
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s AS t", sanitizeIdentifier(ct.Table()))
	if where := b.where(ct, filters); where != "" {
		query += " WHERE " + where
	}

	var total int64
	if err := s.guard(func() error {
		var err error
		total, err = s.runner.QueryCount(ctx, query, b.args...)
		return err
	}); err != nil {
		return 0, fmt.Errorf("count %s: %w", uid, err)
	}
	return total, nil
}

func (s *SQLDocumentService) guard(fn func() error) error {
	if s.breaker.IsOpen() {
		return ErrCircuitOpen
	}
	err := fn()
	switch {
	case err == nil:
		s.breaker.RecordSuccess()
	case isEngineFailure(err):
		s.breaker.RecordFailure()
	}
	return err
}

// isEngineFailure reports whether err points at the engine rather than at
// the statement. Cancellations, data exceptions and statements the engine
// refused to bind or plan are not engine failures.
func isEngineFailure(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := pgErr.Code[:min(2, len(pgErr.Code))]
		return class != "22" && class != "42"
	}
	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		switch duckErr.Type {
		case duckdb.ErrorTypeConversion, duckdb.ErrorTypeOutOfRange, duckdb.ErrorTypeMismatchType,
			duckdb.ErrorTypeInvalidType, duckdb.ErrorTypeDecimal, duckdb.ErrorTypeDivideByZero,
			duckdb.ErrorTypeBinder, duckdb.ErrorTypeParser, duckdb.ErrorTypeSyntax,
			duckdb.ErrorTypeInvalidInput, duckdb.ErrorTypeParameterNotResolved:
			return false
		}
	}
	return true
}

func (s *SQLDocumentService) limitClause(p *customapi.PaginationSpec) string {
	if p == nil || p.Unpaginated {
		if s.maxRows > 0 {
			return " LIMIT " + strconv.Itoa(s.maxRows)
		}
		return ""
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", p.PageSize, p.Offset())
}

// populate decodes JSON columns and loads relation branches into rows.
func (s *SQLDocumentService) populate(ctx context.Context, owner *customapi.ContentType, rows []map[string]any, populate map[string]*customapi.QueryProjection) error {
	for _, key := range sortedKeys(populate) {
		attr, ok := owner.Attribute(key)
		if !ok {
			continue
		}
		switch attr.Kind() {
		case customapi.AttributeKindMedia, customapi.AttributeKindComponent, customapi.AttributeKindDynamicZone:
			for _, row := range rows {
				row[key] = decodeJSONValue(row[key])
			}
		case customapi.AttributeKindRelation:
			if err := s.populateRelation(ctx, owner, attr, rows, populate[key]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *SQLDocumentService) populateRelation(ctx context.Context, owner *customapi.ContentType, attr customapi.Attribute, parents []map[string]any, proj *customapi.QueryProjection) error {
	ids := make([]any, 0, len(parents))
	seen := make(map[string]struct{}, len(parents))
	for _, parent := range parents {
		parent[attr.Name] = []customapi.Row{}
		id, ok := parent[customapi.DefaultIdentifierField]
		if !ok || id == nil {
			continue
		}
		key := fmt.Sprint(id)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}

	target, err := s.describer.Describe(ctx, attr.Target)
	if err != nil {
		zap.S().Warnw("skipping relation with unknown target", "owner", owner.UID, "attribute", attr.Name, "target", attr.Target, "error", err)
		return nil
	}

	var fields []string
	var nested map[string]*customapi.QueryProjection
	if proj != nil && !proj.IsLeaf() {
		fields, nested = proj.Fields, proj.Populate
	} else {
		fields = scalarNames(target)
	}

	b := &sqlBuilder{}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = b.bind(id)
	}
	query := fmt.Sprintf("SELECT l.%s AS %s, %s FROM %s AS l JOIN %s AS t ON t.%s = l.%s WHERE l.%s IN (%s) ORDER BY l.%s, t.%s",
		quoteColumn("source_id"), quoteColumn(sourceIDColumn),
		strings.Join(selectList(target, fields, nested), ", "),
		sanitizeIdentifier(linkTable(owner, attr)), sanitizeIdentifier(target.Table()),
		quoteColumn(customapi.DefaultIdentifierField), quoteColumn("target_id"),
		quoteColumn("source_id"), strings.Join(placeholders, ", "),
		quoteColumn("source_id"), quoteColumn(customapi.DefaultIdentifierField),
	)

	var children []map[string]any
	if err := s.guard(func() error {
		var err error
		children, err = s.runner.QueryRows(ctx, query, b.args...)
		return err
	}); err != nil {
		return fmt.Errorf("populate %s.%s: %w", owner.UID, attr.Name, err)
	}

	if err := s.populate(ctx, target, children, nested); err != nil {
		return err
	}

	grouped := make(map[string][]customapi.Row, len(ids))
	for _, child := range children {
		source := fmt.Sprint(child[sourceIDColumn])
		delete(child, sourceIDColumn)
		grouped[source] = append(grouped[source], child)
	}
	for _, parent := range parents {
		if id, ok := parent[customapi.DefaultIdentifierField]; ok && id != nil {
			if related, ok := grouped[fmt.Sprint(id)]; ok {
				parent[attr.Name] = related
			}
		}
	}
	return nil
}

// linkTable names the join table of a relation attribute.
func linkTable(owner *customapi.ContentType, attr customapi.Attribute) string {
	if attr.JoinTable != "" {
		return attr.JoinTable
	}
	return owner.Table() + "_" + attr.Name + "_lnk"
}

// selectList renders the id column, every requested scalar field and the
// JSON columns named by populate.
func selectList(ct *customapi.ContentType, fields []string, populate map[string]*customapi.QueryProjection) []string {
	cols := []string{"t." + quoteColumn(customapi.DefaultIdentifierField)}
	seen := map[string]struct{}{customapi.DefaultIdentifierField: {}}
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		cols = append(cols, "t."+quoteColumn(name))
	}

	for _, name := range fields {
		if attr, ok := ct.Attribute(name); ok && attr.Kind() == customapi.AttributeKindScalar {
			add(name)
		}
	}
	for _, name := range sortedKeys(populate) {
		attr, ok := ct.Attribute(name)
		if !ok {
			continue
		}
		switch attr.Kind() {
		case customapi.AttributeKindMedia, customapi.AttributeKindComponent, customapi.AttributeKindDynamicZone:
			add(name)
		}
	}
	return cols
}

func scalarNames(ct *customapi.ContentType) []string {
	names := make([]string, 0, len(ct.Attributes))
	for _, attr := range ct.Attributes {
		if attr.Kind() == customapi.AttributeKindScalar {
			names = append(names, attr.Name)
		}
	}
	return names
}

// columnType resolves a filterable or sortable column. Only the id and
// scalar attributes qualify.
func columnType(ct *customapi.ContentType, name string) (string, bool) {
	if attr, ok := ct.Attribute(name); ok {
		return attr.Type, attr.Kind() == customapi.AttributeKindScalar
	}
	if name == customapi.DefaultIdentifierField {
		return "integer", true
	}
	return "", false
}

func orderBy(ct *customapi.ContentType, spec customapi.SortSpec) string {
	parts := make([]string, 0, len(spec)+1)
	seen := make(map[string]struct{}, len(spec))
	for _, entry := range spec {
		if _, ok := columnType(ct, entry.Field); !ok {
			continue
		}
		if _, dup := seen[entry.Field]; dup {
			continue
		}
		seen[entry.Field] = struct{}{}
		dir := "ASC"
		if entry.Direction == customapi.SortDesc {
			dir = "DESC"
		}
		parts = append(parts, "t."+quoteColumn(entry.Field)+" "+dir)
	}
	if _, ok := seen[customapi.DefaultIdentifierField]; !ok {
		parts = append(parts, "t."+quoteColumn(customapi.DefaultIdentifierField)+" ASC")
	}
	return strings.Join(parts, ", ")
}

type sqlBuilder struct {
	args []any
}

func (b *sqlBuilder) bind(v any) string {
	b.args = append(b.args, v)
	return "$" + strconv.Itoa(len(b.args))
}

// where renders filters as an AND of conditions. Unknown fields, non-scalar
// fields, unsupported operators and values that do not fit the column type
// are skipped.
func (b *sqlBuilder) where(ct *customapi.ContentType, filters customapi.FilterSpec) string {
	var conds []string
	for _, field := range sortedKeys(filters) {
		fieldType, ok := columnType(ct, field)
		if !ok {
			continue
		}
		col := "t." + quoteColumn(field)

		ops := make([]string, 0, len(filters[field]))
		for op := range filters[field] {
			ops = append(ops, string(op))
		}
		sort.Strings(ops)
		for _, op := range ops {
			value := filters[field][customapi.FilterOperator(op)]
			if cond := b.condition(col, fieldType, customapi.FilterOperator(op), value); cond != "" {
				conds = append(conds, cond)
			}
		}
	}
	return strings.Join(conds, " AND ")
}

var comparisons = map[customapi.FilterOperator]string{
	customapi.FilterEq:  " = ",
	customapi.FilterNe:  " <> ",
	customapi.FilterGt:  " > ",
	customapi.FilterGte: " >= ",
	customapi.FilterLt:  " < ",
	customapi.FilterLte: " <= ",
}

var likePatterns = map[customapi.FilterOperator]struct {
	keyword        string
	prefix, suffix string
}{
	customapi.FilterContains:     {" LIKE ", "%", "%"},
	customapi.FilterNotContains:  {" NOT LIKE ", "%", "%"},
	customapi.FilterContainsi:    {" ILIKE ", "%", "%"},
	customapi.FilterNotContainsi: {" NOT ILIKE ", "%", "%"},
	customapi.FilterStartsWith:   {" LIKE ", "", "%"},
	customapi.FilterEndsWith:     {" LIKE ", "%", ""},
}

func (b *sqlBuilder) condition(col, fieldType string, op customapi.FilterOperator, value any) string {
	if cmp, ok := comparisons[op]; ok {
		if value == nil && op == customapi.FilterEq {
			return col + " IS NULL"
		}
		if value == nil && op == customapi.FilterNe {
			return col + " IS NOT NULL"
		}
		v, ok := queryparams.CoerceFilterValue(fieldType, op, value)
		if !ok {
			return ""
		}
		return col + cmp + b.bind(v)
	}
	if like, ok := likePatterns[op]; ok {
		if value == nil {
			return ""
		}
		if !queryparams.IsTextType(fieldType) {
			col = "CAST(" + col + " AS TEXT)"
		}
		return col + like.keyword + b.bind(like.prefix+escapeLike(fmt.Sprint(value))+like.suffix) + ` ESCAPE '\'`
	}

	switch op {
	case customapi.FilterIn, customapi.FilterNotIn:
		values := queryparams.FilterValueList(value)
		if len(values) == 0 {
			if op == customapi.FilterIn {
				return "FALSE"
			}
			return "TRUE"
		}
		placeholders := make([]string, 0, len(values))
		for _, v := range values {
			if v == nil {
				continue
			}
			if coerced, ok := queryparams.CoerceFilterValue(fieldType, customapi.FilterEq, v); ok {
				placeholders = append(placeholders, b.bind(coerced))
			}
		}
		if len(placeholders) == 0 {
			return ""
		}
		keyword := " IN ("
		if op == customapi.FilterNotIn {
			keyword = " NOT IN ("
		}
		return col + keyword + strings.Join(placeholders, ", ") + ")"
	case customapi.FilterNull:
		if truthy(value) {
			return col + " IS NULL"
		}
		return col + " IS NOT NULL"
	case customapi.FilterNotNull:
		if truthy(value) {
			return col + " IS NOT NULL"
		}
		return col + " IS NULL"
	}
	return ""
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	}
	return false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func decodeJSONValue(value any) any {
	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return value
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return value
	}
	return decoded
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ customapi.DocumentService = (*SQLDocumentService)(nil)
