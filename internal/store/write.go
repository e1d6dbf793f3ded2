package store

import (
	"context"
	"fmt"

	"github.com/roach88/tyuo/internal/ir"
)

// sqlTx is the Tx handed to Update callbacks. Write failures are classified
// as CodeTransactionFailure; Update rolls the transaction back.
type sqlTx struct {
	sqlReader
}

// PutTokens implements Writer.
func (t *sqlTx) PutTokens(ctx context.Context, rows []TokenRow) error {
	const query = `
		INSERT INTO dictionary (id, text, occurrences, forms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			occurrences = excluded.occurrences,
			forms = excluded.forms`

	for _, row := range rows {
		var forms any
		if row.Forms != nil {
			forms = row.Forms
		}
		if _, err := t.q.ExecContext(ctx, query, row.ID, row.Text, int64(row.Occurrences), forms); err != nil {
			return newError(CodeTransactionFailure, "write token", fmt.Errorf("%q: %w", row.Text, err))
		}
	}
	return nil
}

// ClearForms implements Writer.
func (t *sqlTx) ClearForms(ctx context.Context, ids []ir.TokenID) error {
	for _, batch := range chunk(ids, maxBatch) {
		_, err := t.q.ExecContext(ctx,
			"UPDATE dictionary SET forms = NULL WHERE id IN ("+placeholders(len(batch))+")", toArgs(batch)...)
		if err != nil {
			return newError(CodeTransactionFailure, "clear forms", err)
		}
	}
	return nil
}

// PutBanned implements Writer.
func (t *sqlTx) PutBanned(ctx context.Context, texts []string) error {
	for _, text := range texts {
		_, err := t.q.ExecContext(ctx,
			"INSERT INTO dictionary_banned (text) VALUES (?) ON CONFLICT(text) DO NOTHING", text)
		if err != nil {
			return newError(CodeTransactionFailure, "write banned", fmt.Errorf("%q: %w", text, err))
		}
	}
	return nil
}

// DeleteBanned implements Writer.
func (t *sqlTx) DeleteBanned(ctx context.Context, texts []string) error {
	for _, text := range texts {
		if _, err := t.q.ExecContext(ctx, "DELETE FROM dictionary_banned WHERE text = ?", text); err != nil {
			return newError(CodeTransactionFailure, "delete banned", fmt.Errorf("%q: %w", text, err))
		}
	}
	return nil
}

// PutNode implements Writer.
func (t *sqlTx) PutNode(ctx context.Context, dir ir.Direction, id ir.TokenID, blob []byte) error {
	table, err := nodeTable(dir)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx,
		"INSERT INTO "+table+" (source_id, transitions) VALUES (?, ?) "+
			"ON CONFLICT(source_id) DO UPDATE SET transitions = excluded.transitions",
		id, blob)
	if err != nil {
		return newError(CodeTransactionFailure, "write "+dir.String()+" node", fmt.Errorf("%d: %w", id, err))
	}
	return nil
}

// DeleteNode implements Writer.
func (t *sqlTx) DeleteNode(ctx context.Context, dir ir.Direction, id ir.TokenID) error {
	table, err := nodeTable(dir)
	if err != nil {
		return err
	}
	if _, err := t.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE source_id = ?", id); err != nil {
		return newError(CodeTransactionFailure, "delete "+dir.String()+" node", fmt.Errorf("%d: %w", id, err))
	}
	return nil
}
