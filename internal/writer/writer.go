package writer

import (
	"context"
	"fmt"
	"time"

	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
	"onboard-backend/internal/token"
)

// UnknownFieldPolicy controls what happens to candidate-record keys that are
// not declared in the table descriptor.
type UnknownFieldPolicy int

const (
	// IgnoreUnknown silently drops undeclared keys. This is the default:
	// route handlers pass request bodies through verbatim and rely on the
	// writer to keep strays out of the SQL.
	IgnoreUnknown UnknownFieldPolicy = iota
	// RejectUnknown fails the write when the candidate record carries a key
	// the descriptor does not declare.
	RejectUnknown
)

// Writer is the single choke point through which every entity mutation flows.
// It owns metadata stamping (actor, tenant, timestamps) and parameterized SQL
// construction; duplicate prevention and field validation stay with callers.
type Writer struct {
	store  *store.Store
	policy UnknownFieldPolicy
}

func New(s *store.Store) *Writer {
	return &Writer{store: s, policy: IgnoreUnknown}
}

// NewWithPolicy creates a Writer with an explicit unknown-field policy.
func NewWithPolicy(s *store.Store, policy UnknownFieldPolicy) *Writer {
	return &Writer{store: s, policy: policy}
}

// Insert persists a new row for the given table. Candidate keys are matched
// against declared columns case-insensitively; undeclared keys are dropped.
// The acting payload supplies createdby/updatedby and the tenant. On success
// the generated id is returned and also written back into record["id"] so
// callers can chain a follow-up update.
func (w *Writer) Insert(ctx context.Context, table *schema.Table, record map[string]any, tok token.Payload) (int64, error) {
	return w.InsertTx(ctx, w.store.Pool, table, record, tok)
}

// InsertTx is Insert against an explicit querier (pool or transaction).
func (w *Writer) InsertTx(ctx context.Context, q store.Querier, table *schema.Table, record map[string]any, tok token.Payload) (int64, error) {
	stmt, err := buildInsert(table, record, tok, time.Now(), w.policy)
	if err != nil {
		return 0, err
	}

	row, err := store.QueryRow(ctx, q, stmt.SQL, stmt.Params...)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table.Name, err)
	}

	id, err := extractID(row["id"])
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table.Name, err)
	}
	record["id"] = id
	return id, nil
}

// Update patches a single row identified by the mandatory id field. Only
// supplied declared fields are written; updatedate and updatedby are always
// refreshed. Returns the number of rows affected; 0 means no matching row.
// Last write wins, there is no version check.
func (w *Writer) Update(ctx context.Context, table *schema.Table, fields map[string]any, tok token.Payload) (int64, error) {
	return w.UpdateTx(ctx, w.store.Pool, table, fields, tok)
}

// UpdateTx is Update against an explicit querier (pool or transaction).
func (w *Writer) UpdateTx(ctx context.Context, q store.Querier, table *schema.Table, fields map[string]any, tok token.Payload) (int64, error) {
	stmt, err := buildUpdate(table, fields, tok, time.Now(), w.policy)
	if err != nil {
		return 0, err
	}

	affected, err := store.Exec(ctx, q, stmt.SQL, stmt.Params...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table.Name, err)
	}
	return affected, nil
}

// ResolveTenant decides which tenant a new record belongs to. A caller with a
// bound tenant always stamps its own; only a caller with no tenant may stamp
// one explicitly via the candidate record.
func ResolveTenant(tokenTenant, candidateTenant int64) int64 {
	if tokenTenant != 0 {
		return tokenTenant
	}
	return candidateTenant
}

func extractID(v any) (int64, error) {
	switch id := v.(type) {
	case int64:
		return id, nil
	case int32:
		return int64(id), nil
	case int:
		return int64(id), nil
	case float64:
		return int64(id), nil
	default:
		return 0, fmt.Errorf("unexpected id type %T", v)
	}
}
