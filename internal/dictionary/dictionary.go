// Package dictionary maps canonical token text to stable per-context ids and
// tracks how often each capitalization of a token was observed.
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/roach88/tyuo/internal/codec"
	"github.com/roach88/tyuo/internal/ir"
	"github.com/roach88/tyuo/internal/normalize"
	"github.com/roach88/tyuo/internal/store"
)

// ErrIDSpaceExhausted is returned when a new token would need an id past ir.MaxTokenID.
var ErrIDSpaceExhausted = errors.New("dictionary id space exhausted")

// Token is one dictionary entry.
type Token struct {
	ID          ir.TokenID
	Text        string
	Occurrences uint32
	// Forms counts observed surface spellings. Empty after a ban scrub.
	Forms map[string]uint32
}

// Dictionary reads and writes tokens through whatever store.Reader or
// store.Tx the caller hands it; it holds no storage of its own.
type Dictionary struct {
	format codec.Format
	logger *zap.Logger
}

// New returns a Dictionary that encodes capitalization maps with format.
func New(format codec.Format, logger *zap.Logger) *Dictionary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dictionary{format: format, logger: logger.With(zap.String("component", "dictionary"))}
}

// LookupByText returns the tokens whose canonical text matches one of texts.
// Inputs are canonicalized first; nothing is created.
func (d *Dictionary) LookupByText(ctx context.Context, r store.Reader, texts []string) ([]Token, error) {
	rows, err := r.TokensByText(ctx, canonicalUnique(texts))
	if err != nil {
		return nil, fmt.Errorf("lookup tokens by text: %w", err)
	}
	return d.decodeRows(rows), nil
}

// LookupByID returns the token for every id. A missing id is a consistency
// failure reported as store.CodeNotFound.
func (d *Dictionary) LookupByID(ctx context.Context, r store.Reader, ids []ir.TokenID) (map[ir.TokenID]Token, error) {
	rows, err := r.TokensByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup tokens by id: %w", err)
	}

	result := make(map[ir.TokenID]Token, len(rows))
	for _, tok := range d.decodeRows(rows) {
		result[tok.ID] = tok
	}

	var missing []ir.TokenID
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, store.NewNotFoundError("lookup tokens by id", missing)
	}
	return result, nil
}

// EnumerateBySubstring maps the canonical text of every token containing any
// of substrings to its id.
func (d *Dictionary) EnumerateBySubstring(ctx context.Context, r store.Reader, substrings []string) (map[string]ir.TokenID, error) {
	refs, err := r.TokensContaining(ctx, canonicalUnique(substrings))
	if err != nil {
		return nil, fmt.Errorf("enumerate tokens by substring: %w", err)
	}
	result := make(map[string]ir.TokenID, len(refs))
	for _, ref := range refs {
		result[ref.Text] = ref.ID
	}
	return result, nil
}

// SampleRandom returns up to count uniformly chosen tokens.
func (d *Dictionary) SampleRandom(ctx context.Context, r store.Reader, count int) ([]ir.TokenRef, error) {
	refs, err := r.RandomTokens(ctx, count)
	if err != nil {
		return nil, fmt.Errorf("sample tokens: %w", err)
	}
	return refs, nil
}

// Learn records one observation of every text and returns their ids in input
// order, one per input. Unknown texts are assigned the next free id.
func (d *Dictionary) Learn(ctx context.Context, tx store.Tx, texts []string) ([]ir.TokenID, error) {
	if len(texts) == 0 {
		return []ir.TokenID{}, nil
	}

	canon := make([]string, len(texts))
	for i, text := range texts {
		canon[i] = normalize.Canonical(text)
		if canon[i] == "" {
			return nil, fmt.Errorf("learn: token %d is blank", i)
		}
	}

	rows, err := tx.TokensByText(ctx, uniqueStrings(canon))
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	byText := make(map[string]*Token, len(rows))
	for _, tok := range d.decodeRows(rows) {
		byText[tok.Text] = &tok
	}

	next, err := nextID(ctx, tx)
	if err != nil {
		return nil, err
	}

	ids := make([]ir.TokenID, len(texts))
	touched := make(map[ir.TokenID]*Token)
	for i, text := range canon {
		tok, ok := byText[text]
		if !ok {
			if next.exhausted {
				return nil, fmt.Errorf("learn %q: %w", text, ErrIDSpaceExhausted)
			}
			tok = &Token{ID: next.id, Text: text, Forms: map[string]uint32{}}
			byText[text] = tok
			next = next.advance()
		}
		if tok.Occurrences < math.MaxUint32 {
			tok.Occurrences++
		}
		surface := trimmed(texts[i])
		if tok.Forms[surface] < math.MaxUint32 {
			tok.Forms[surface]++
		}
		touched[tok.ID] = tok
		ids[i] = tok.ID
	}

	out := make([]store.TokenRow, 0, len(touched))
	for _, tok := range touched {
		row, err := d.encode(*tok)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if err := tx.PutTokens(ctx, out); err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	return ids, nil
}

// Scrub empties the capitalization maps of ids. Rows and ids stay in place.
func (d *Dictionary) Scrub(ctx context.Context, tx store.Tx, ids []ir.TokenID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.ClearForms(ctx, ids); err != nil {
		return fmt.Errorf("scrub forms: %w", err)
	}
	return nil
}

// Render returns the surface form of one token.
func (d *Dictionary) Render(ctx context.Context, r store.Reader, id ir.TokenID, sentenceInitial bool) (string, error) {
	toks, err := d.LookupByID(ctx, r, []ir.TokenID{id})
	if err != nil {
		return "", err
	}
	return toks[id].Surface(sentenceInitial), nil
}

type idCursor struct {
	id        ir.TokenID
	exhausted bool
}

func (c idCursor) advance() idCursor {
	if c.id == ir.MaxTokenID {
		return idCursor{id: c.id, exhausted: true}
	}
	return idCursor{id: c.id + 1}
}

func nextID(ctx context.Context, r store.Reader) (idCursor, error) {
	max, ok, err := r.MaxTokenID(ctx)
	if err != nil {
		return idCursor{}, fmt.Errorf("learn: %w", err)
	}
	if !ok {
		return idCursor{id: ir.MinTokenID}, nil
	}
	return idCursor{id: max}.advance(), nil
}

func (d *Dictionary) decodeRows(rows []store.TokenRow) []Token {
	toks := make([]Token, 0, len(rows))
	for _, row := range rows {
		tok := Token{ID: row.ID, Text: row.Text, Occurrences: row.Occurrences, Forms: map[string]uint32{}}
		if row.Forms != nil {
			if _, err := codec.Decode(row.Forms, &tok.Forms); err != nil {
				d.logger.Warn("discarding unreadable capitalization map",
					zap.Int32("token_id", int32(row.ID)),
					zap.Error(store.NewCorruptedError("decode forms", err)))
				tok.Forms = map[string]uint32{}
			}
		}
		toks = append(toks, tok)
	}
	return toks
}

func (d *Dictionary) encode(tok Token) (store.TokenRow, error) {
	row := store.TokenRow{ID: tok.ID, Text: tok.Text, Occurrences: tok.Occurrences}
	if len(tok.Forms) == 0 {
		return row, nil
	}
	blob, err := codec.Encode(d.format, tok.Forms)
	if err != nil {
		return row, fmt.Errorf("encode forms of %q: %w", tok.Text, err)
	}
	row.Forms = blob
	return row, nil
}

func canonicalUnique(texts []string) []string {
	canon := make([]string, 0, len(texts))
	for _, text := range texts {
		if c := normalize.Canonical(text); c != "" {
			canon = append(canon, c)
		}
	}
	return uniqueStrings(canon)
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
