// Package store provides SQLite-backed persistence for snippets and
// clipboard history.
//
// Security model:
//  1. File permissions: 0600 (owner read/write only)
//  2. Snippets flagged sensitive and clipboard history are sealed with a
//     passphrase-derived key when one is configured
//  3. Sealed rows are bound to their id, so swapping ciphertexts between
//     rows fails to open
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"expandd/internal/security"
	"expandd/internal/snippet"
)

// Options configures Open.
type Options struct {
	BusyTimeout time.Duration
	// Passphrase enables sealing. Empty leaves sensitive text in plaintext.
	Passphrase string
	Logger     *slog.Logger
}

// Store is the SQLite snippet store. It implements snippet.Persister.
type Store struct {
	db     *sql.DB
	path   string
	sealer *Sealer
	log    *slog.Logger
}

var _ snippet.Persister = (*Store)(nil)

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string, opts Options) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, security.PermPrivateDir); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := MigrateDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	if err := os.Chmod(path, security.PermPrivateFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		opts.Logger.Warn("cannot restrict database permissions", "path", path, "error", err)
	}

	s := &Store{db: db, path: path, log: opts.Logger.With("component", "store")}
	if opts.Passphrase != "" {
		if err := s.setupSealer(opts.Passphrase); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Sealed reports whether sensitive data is encrypted at rest.
func (s *Store) Sealed() bool { return s.sealer != nil }

func (s *Store) setupSealer(passphrase string) error {
	salt, err := s.meta("seal_salt")
	if err != nil {
		return err
	}
	if salt == nil {
		sealer, err := NewSealer(passphrase, nil)
		if err != nil {
			return err
		}
		v, err := sealer.verifier()
		if err != nil {
			return err
		}
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES ('seal_salt', ?), ('seal_verifier', ?)", sealer.Salt(), v); err != nil {
			tx.Rollback()
			return fmt.Errorf("store sealing parameters: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit sealing parameters: %w", err)
		}
		s.sealer = sealer
		return nil
	}

	sealer, err := NewSealer(passphrase, salt)
	if err != nil {
		return err
	}
	v, err := s.meta("seal_verifier")
	if err != nil {
		return err
	}
	if err := sealer.checkVerifier(v); err != nil {
		return err
	}
	s.sealer = sealer
	return nil
}

func (s *Store) meta(key string) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read meta %s: %w", key, err)
	}
	return v, nil
}

// SaveAll replaces the stored snippets with the given ones in a single
// transaction, preserving their order.
func (s *Store) SaveAll(snippets []snippet.Snippet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM snippets"); err != nil {
		return fmt.Errorf("clear snippets: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO snippets (id, position, shortcut, body, sealed, description, categories, tags,
			favorite, case_sensitive, use_regex, sensitive, form_fields, allowed_apps, blocked_apps,
			hotkey, enabled, use_count, first_used_ns, last_used_ns, created_ns, modified_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, sn := range snippets {
		body := sn.Text
		var sealed []byte
		if sn.Sensitive && s.sealer != nil {
			if sealed, err = s.sealer.Seal([]byte(sn.Text), []byte(sn.ID)); err != nil {
				return fmt.Errorf("seal snippet %s: %w", sn.ID, err)
			}
			body = ""
		}
		_, err := stmt.Exec(
			sn.ID, i, sn.Shortcut, body, sealed, sn.Description,
			mustJSON(sn.Categories), mustJSON(sn.Tags),
			sn.Favorite, sn.CaseSensitive, sn.UseRegex, sn.Sensitive,
			mustJSON(sn.FormFields), mustJSON(sn.AllowedApps), mustJSON(sn.BlockedApps),
			sn.Hotkey, sn.Enabled, sn.Stats.UseCount,
			toNs(sn.Stats.FirstUsed), toNs(sn.Stats.LastUsed), toNs(sn.Created), toNs(sn.Modified),
		)
		if err != nil {
			return fmt.Errorf("insert snippet %s: %w", sn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snippets: %w", err)
	}
	return nil
}

// LoadAll returns every stored snippet in saved order.
func (s *Store) LoadAll() ([]snippet.Snippet, error) {
	rows, err := s.db.Query(`
		SELECT id, shortcut, body, sealed, description, categories, tags,
			favorite, case_sensitive, use_regex, sensitive, form_fields, allowed_apps, blocked_apps,
			hotkey, enabled, use_count, first_used_ns, last_used_ns, created_ns, modified_ns
		FROM snippets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query snippets: %w", err)
	}
	defer rows.Close()

	var out []snippet.Snippet
	for rows.Next() {
		var (
			sn                                   snippet.Snippet
			sealed                               []byte
			cats, tags, fields, allowed, blocked string
			firstUsed, lastUsed, created, mod    int64
		)
		if err := rows.Scan(
			&sn.ID, &sn.Shortcut, &sn.Text, &sealed, &sn.Description, &cats, &tags,
			&sn.Favorite, &sn.CaseSensitive, &sn.UseRegex, &sn.Sensitive, &fields, &allowed, &blocked,
			&sn.Hotkey, &sn.Enabled, &sn.Stats.UseCount, &firstUsed, &lastUsed, &created, &mod,
		); err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		if sealed != nil {
			if s.sealer == nil {
				return nil, fmt.Errorf("snippet %s: %w", sn.ID, ErrSealed)
			}
			plain, err := s.sealer.Open(sealed, []byte(sn.ID))
			if err != nil {
				return nil, fmt.Errorf("snippet %s: %w", sn.ID, err)
			}
			sn.Text = string(plain)
		}
		for _, f := range []struct {
			raw string
			dst any
		}{
			{cats, &sn.Categories}, {tags, &sn.Tags}, {fields, &sn.FormFields},
			{allowed, &sn.AllowedApps}, {blocked, &sn.BlockedApps},
		} {
			if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
				return nil, fmt.Errorf("snippet %s: decode list: %w", sn.ID, err)
			}
		}
		emptyToNil(&sn)
		sn.Stats.FirstUsed = fromNs(firstUsed)
		sn.Stats.LastUsed = fromNs(lastUsed)
		sn.LastUsed = sn.Stats.LastUsed
		sn.Created = fromNs(created)
		sn.Modified = fromNs(mod)
		out = append(out, sn)
	}
	return out, rows.Err()
}

// SaveClipboardHistory replaces the stored history, most recent first.
// Entries are sealed whenever a passphrase is configured.
func (s *Store) SaveClipboardHistory(entries []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM clipboard_history"); err != nil {
		return fmt.Errorf("clear clipboard history: %w", err)
	}
	now := time.Now().UnixNano()
	for i, e := range entries {
		var body any = e
		var sealed []byte
		if s.sealer != nil {
			if sealed, err = s.sealer.Seal([]byte(e), historyAAD(i)); err != nil {
				return fmt.Errorf("seal clipboard entry: %w", err)
			}
			body = nil
		}
		if _, err := tx.Exec("INSERT INTO clipboard_history (position, body, sealed, captured_ns) VALUES (?, ?, ?, ?)",
			i, body, sealed, now); err != nil {
			return fmt.Errorf("insert clipboard entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clipboard history: %w", err)
	}
	return nil
}

// LoadClipboardHistory returns up to limit entries, most recent first.
// Sealed entries that cannot be opened are skipped.
func (s *Store) LoadClipboardHistory(limit int) ([]string, error) {
	rows, err := s.db.Query("SELECT position, body, sealed FROM clipboard_history ORDER BY position LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("query clipboard history: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var (
			pos    int
			body   sql.NullString
			sealed []byte
		)
		if err := rows.Scan(&pos, &body, &sealed); err != nil {
			return nil, fmt.Errorf("scan clipboard entry: %w", err)
		}
		if sealed == nil {
			out = append(out, body.String)
			continue
		}
		if s.sealer == nil {
			continue
		}
		plain, err := s.sealer.Open(sealed, historyAAD(pos))
		if err != nil {
			s.log.Warn("skipping unreadable clipboard entry", "position", pos, "error", err)
			continue
		}
		out = append(out, string(plain))
	}
	return out, rows.Err()
}

func historyAAD(pos int) []byte {
	return []byte(fmt.Sprintf("clipboard/%d", pos))
}

func emptyToNil(sn *snippet.Snippet) {
	for _, l := range []*[]string{&sn.Categories, &sn.Tags, &sn.AllowedApps, &sn.BlockedApps} {
		if len(*l) == 0 {
			*l = nil
		}
	}
	if len(sn.FormFields) == 0 {
		sn.FormFields = nil
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "[]"
	}
	return string(b)
}

func toNs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNs(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
