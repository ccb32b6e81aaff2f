package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

func marshalList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

func unmarshalList(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil
	}
	return out
}

// ListKBEntries returns all active knowledge base entries.
func (db *DB) ListKBEntries(ctx context.Context) ([]*KBEntry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, answer, keywords, require_all, require_any, exclude_any, min_query_len, advanced, active
		FROM kb_entries
		WHERE active = 1
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query kb entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*KBEntry
	for rows.Next() {
		var e KBEntry
		var keywords, requireAll, requireAny, excludeAny string
		var advanced, active int
		if err := rows.Scan(&e.ID, &e.Answer, &keywords, &requireAll, &requireAny,
			&excludeAny, &e.MinQueryLen, &advanced, &active); err != nil {
			return nil, fmt.Errorf("failed to scan kb entry: %w", err)
		}
		e.Keywords = unmarshalList(keywords)
		e.RequireAll = unmarshalList(requireAll)
		e.RequireAny = unmarshalList(requireAny)
		e.ExcludeAny = unmarshalList(excludeAny)
		e.Advanced = advanced != 0
		e.Active = active != 0
		out = append(out, &e)
	}
	return out, rows.Err()
}

// UpsertKBEntry stores a knowledge base entry. Entries with ID 0 are
// inserted and receive a new ID.
func (db *DB) UpsertKBEntry(ctx context.Context, e *KBEntry) error {
	advanced := 0
	if e.Advanced {
		advanced = 1
	}
	active := 0
	if e.Active {
		active = 1
	}

	if e.ID == 0 {
		res, err := db.conn.ExecContext(ctx, `
			INSERT INTO kb_entries (answer, keywords, require_all, require_any, exclude_any, min_query_len, advanced, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			e.Answer, marshalList(e.Keywords), marshalList(e.RequireAll), marshalList(e.RequireAny),
			marshalList(e.ExcludeAny), e.MinQueryLen, advanced, active)
		if err != nil {
			return fmt.Errorf("failed to insert kb entry: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read kb entry id: %w", err)
		}
		e.ID = id
		return nil
	}

	_, err := db.conn.ExecContext(ctx, `
		UPDATE kb_entries
		SET answer = ?, keywords = ?, require_all = ?, require_any = ?, exclude_any = ?,
			min_query_len = ?, advanced = ?, active = ?
		WHERE id = ?`,
		e.Answer, marshalList(e.Keywords), marshalList(e.RequireAll), marshalList(e.RequireAny),
		marshalList(e.ExcludeAny), e.MinQueryLen, advanced, active, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update kb entry: %w", err)
	}
	return nil
}
