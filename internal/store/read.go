package store

import (
	"context"
	"database/sql"
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/tyuo/internal/ir"
)

// maxBatch bounds the number of bound parameters per IN (...) query.
const maxBatch = 500

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlReader struct {
	q querier
}

// TokensByText implements Reader.
func (r sqlReader) TokensByText(ctx context.Context, texts []string) ([]TokenRow, error) {
	result := []TokenRow{}
	for _, batch := range chunk(texts, maxBatch) {
		rows, err := r.queryTokens(ctx,
			"SELECT id, text, occurrences, forms FROM dictionary WHERE text IN ("+placeholders(len(batch))+") ORDER BY id",
			toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("query tokens by text: %w", err)
		}
		result = append(result, rows...)
	}
	sortRows(result)
	return result, nil
}

// TokensByID implements Reader.
func (r sqlReader) TokensByID(ctx context.Context, ids []ir.TokenID) ([]TokenRow, error) {
	result := []TokenRow{}
	for _, batch := range chunk(ids, maxBatch) {
		rows, err := r.queryTokens(ctx,
			"SELECT id, text, occurrences, forms FROM dictionary WHERE id IN ("+placeholders(len(batch))+") ORDER BY id",
			toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("query tokens by id: %w", err)
		}
		result = append(result, rows...)
	}
	sortRows(result)
	return result, nil
}

func (r sqlReader) queryTokens(ctx context.Context, query string, args ...any) ([]TokenRow, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TokenRow
	for rows.Next() {
		var (
			row         TokenRow
			occurrences int64
		)
		if err := rows.Scan(&row.ID, &row.Text, &occurrences, &row.Forms); err != nil {
			return nil, err
		}
		row.Occurrences = uint32(occurrences)
		result = append(result, row)
	}
	return result, rows.Err()
}

// TokensContaining implements Reader.
//
// instr() is used instead of LIKE so that '%' and '_' in banned texts match
// literally and comparison stays case-sensitive.
func (r sqlReader) TokensContaining(ctx context.Context, substrings []string) ([]ir.TokenRef, error) {
	seen := make(map[ir.TokenID]bool)
	result := []ir.TokenRef{}
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		refs, err := r.queryRefs(ctx,
			"SELECT text, id FROM dictionary WHERE instr(text, ?) > 0 ORDER BY id", sub)
		if err != nil {
			return nil, fmt.Errorf("query tokens containing %q: %w", sub, err)
		}
		for _, ref := range refs {
			if !seen[ref.ID] {
				seen[ref.ID] = true
				result = append(result, ref)
			}
		}
	}
	return result, nil
}

// RandomTokens implements Reader.
func (r sqlReader) RandomTokens(ctx context.Context, count int) ([]ir.TokenRef, error) {
	if count <= 0 {
		return []ir.TokenRef{}, nil
	}
	refs, err := r.queryRefs(ctx, "SELECT text, id FROM dictionary ORDER BY RANDOM() LIMIT ?", count)
	if err != nil {
		return nil, fmt.Errorf("query random tokens: %w", err)
	}
	return refs, nil
}

func (r sqlReader) queryRefs(ctx context.Context, query string, args ...any) ([]ir.TokenRef, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []ir.TokenRef{}
	for rows.Next() {
		var ref ir.TokenRef
		if err := rows.Scan(&ref.Text, &ref.ID); err != nil {
			return nil, err
		}
		result = append(result, ref)
	}
	return result, rows.Err()
}

// MaxTokenID implements Reader.
func (r sqlReader) MaxTokenID(ctx context.Context) (ir.TokenID, bool, error) {
	var max sql.NullInt64
	if err := r.q.QueryRowContext(ctx, "SELECT MAX(id) FROM dictionary").Scan(&max); err != nil {
		return 0, false, fmt.Errorf("query max token id: %w", err)
	}
	if !max.Valid {
		return 0, false, nil
	}
	return ir.TokenID(max.Int64), true, nil
}

// CountTokens implements Reader.
func (r sqlReader) CountTokens(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM dictionary").Scan(&n); err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// Banned implements Reader.
func (r sqlReader) Banned(ctx context.Context, texts ...string) ([]BannedRow, error) {
	const base = "SELECT b.text, d.id FROM dictionary_banned b LEFT JOIN dictionary d ON d.text = b.text"

	if len(texts) == 0 {
		rows, err := r.queryBanned(ctx, base+" ORDER BY b.text")
		if err != nil {
			return nil, fmt.Errorf("query banned: %w", err)
		}
		return rows, nil
	}

	result := []BannedRow{}
	for _, batch := range chunk(texts, maxBatch) {
		rows, err := r.queryBanned(ctx,
			base+" WHERE b.text IN ("+placeholders(len(batch))+") ORDER BY b.text", toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("query banned: %w", err)
		}
		result = append(result, rows...)
	}
	return result, nil
}

func (r sqlReader) queryBanned(ctx context.Context, query string, args ...any) ([]BannedRow, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []BannedRow{}
	for rows.Next() {
		var (
			row BannedRow
			id  sql.NullInt64
		)
		if err := rows.Scan(&row.Text, &id); err != nil {
			return nil, err
		}
		if id.Valid {
			row.TokenID = ir.TokenID(id.Int64)
			row.Linked = true
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// Nodes implements Reader.
func (r sqlReader) Nodes(ctx context.Context, dir ir.Direction, ids []ir.TokenID) (map[ir.TokenID][]byte, error) {
	table, err := nodeTable(dir)
	if err != nil {
		return nil, err
	}

	result := make(map[ir.TokenID][]byte, len(ids))
	for _, batch := range chunk(ids, maxBatch) {
		rows, err := r.q.QueryContext(ctx,
			"SELECT source_id, transitions FROM "+table+" WHERE source_id IN ("+placeholders(len(batch))+")",
			toArgs(batch)...)
		if err != nil {
			return nil, fmt.Errorf("query %s nodes: %w", dir, err)
		}
		for rows.Next() {
			var (
				id   ir.TokenID
				blob []byte
			)
			if err := rows.Scan(&id, &blob); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan %s node: %w", dir, err)
			}
			result[id] = blob
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("iterate %s nodes: %w", dir, err)
		}
	}
	return result, nil
}

// CountNodes implements Reader.
func (r sqlReader) CountNodes(ctx context.Context, dir ir.Direction) (int, error) {
	table, err := nodeTable(dir)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s nodes: %w", dir, err)
	}
	return n, nil
}

// NodeIDs implements Reader.
func (r sqlReader) NodeIDs(ctx context.Context, dir ir.Direction) ([]ir.TokenID, error) {
	table, err := nodeTable(dir)
	if err != nil {
		return nil, err
	}
	rows, err := r.q.QueryContext(ctx, "SELECT source_id FROM "+table+" ORDER BY source_id")
	if err != nil {
		return nil, fmt.Errorf("query %s node ids: %w", dir, err)
	}
	defer rows.Close()

	ids := []ir.TokenID{}
	for rows.Next() {
		var id ir.TokenID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s node id: %w", dir, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s node ids: %w", dir, err)
	}
	return ids, nil
}

func nodeTable(dir ir.Direction) (string, error) {
	switch dir {
	case ir.Forward:
		return "transitions_forward", nil
	case ir.Reverse:
		return "transitions_reverse", nil
	default:
		return "", fmt.Errorf("invalid direction %s", dir)
	}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func toArgs[T any](values []T) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func chunk[T any](values []T, size int) [][]T {
	var batches [][]T
	for len(values) > size {
		batches = append(batches, values[:size])
		values = values[size:]
	}
	if len(values) > 0 {
		batches = append(batches, values)
	}
	return batches
}

func sortRows(rows []TokenRow) {
	slices.SortFunc(rows, func(a, b TokenRow) int { return cmp.Compare(a.ID, b.ID) })
}
