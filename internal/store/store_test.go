package store

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expandd/internal/snippet"
)

func openTest(t *testing.T, opts Options) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "snippets.db")
	s, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func sample() []snippet.Snippet {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return []snippet.Snippet{
		{
			ID: "a", Shortcut: "brb", Text: "be right back", Enabled: true,
			Categories: []string{"chat"}, Tags: []string{"short"},
			Created: created, Modified: created,
		},
		{
			ID: "b", Shortcut: "pin", Text: "1234", Sensitive: true, Enabled: true,
			FormFields:  []snippet.FormField{{Name: "who", Required: true}},
			AllowedApps: []string{"notepad"}, BlockedApps: []string{"cmd.exe"},
			Hotkey:      "Ctrl+Shift+P",
			Stats:       snippet.Statistics{UseCount: 3, FirstUsed: created, LastUsed: created.Add(time.Hour)},
			Created:     created, Modified: created,
		},
	}
}

func TestOpenRunsMigrations(t *testing.T) {
	s, _ := openTest(t, Options{})
	status, err := GetMigrationStatus(s.db)
	require.NoError(t, err)
	assert.Equal(t, status.LatestVersion, status.CurrentVersion)
	assert.Empty(t, status.Pending)

	// Idempotent.
	require.NoError(t, MigrateDB(s.db))
}

func TestRollbackMigration(t *testing.T) {
	s, _ := openTest(t, Options{})
	require.NoError(t, RollbackMigration(s.db))
	status, err := GetMigrationStatus(s.db)
	require.NoError(t, err)
	assert.Equal(t, status.LatestVersion-1, status.CurrentVersion)
	require.Len(t, status.Pending, 1)

	require.NoError(t, MigrateDB(s.db))
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	assert.NoError(t, s.Close())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := openTest(t, Options{})
	in := sample()
	require.NoError(t, s.SaveAll(in))

	out, err := s.LoadAll()
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, "a", out[0].ID, "order preserved")
	assert.Equal(t, in[0].Categories, out[0].Categories)
	assert.Nil(t, out[0].FormFields)
	assert.True(t, in[0].Created.Equal(out[0].Created))

	b := out[1]
	assert.Equal(t, "1234", b.Text)
	assert.Equal(t, in[1].FormFields, b.FormFields)
	assert.Equal(t, in[1].AllowedApps, b.AllowedApps)
	assert.Equal(t, "Ctrl+Shift+P", b.Hotkey)
	assert.Equal(t, 3, b.Stats.UseCount)
	assert.True(t, in[1].Stats.LastUsed.Equal(b.Stats.LastUsed))
	assert.True(t, b.Enabled)

	// SaveAll replaces the table.
	require.NoError(t, s.SaveAll(in[:1]))
	out, err = s.LoadAll()
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestSealedSnippets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sealed.db")
	s, err := Open(path, Options{Passphrase: "correct horse"})
	require.NoError(t, err)
	require.True(t, s.Sealed())
	require.NoError(t, s.SaveAll(sample()))

	var body string
	var sealed []byte
	require.NoError(t, s.db.QueryRow("SELECT body, sealed FROM snippets WHERE id = 'b'").Scan(&body, &sealed))
	assert.Empty(t, body)
	assert.NotEmpty(t, sealed)
	assert.False(t, bytes.Contains(sealed, []byte("1234")))
	require.NoError(t, s.Close())

	_, err = Open(path, Options{Passphrase: "wrong"})
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	plain, err := Open(path, Options{})
	require.NoError(t, err)
	_, err = plain.LoadAll()
	assert.ErrorIs(t, err, ErrSealed)
	plain.Close()

	reopened, err := Open(path, Options{Passphrase: "correct horse"})
	require.NoError(t, err)
	defer reopened.Close()
	out, err := reopened.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, "1234", out[1].Text)
}

func TestSealedRowsAreBoundToID(t *testing.T) {
	s, _ := openTest(t, Options{Passphrase: "pw"})
	in := sample()
	in[0].Sensitive = true
	require.NoError(t, s.SaveAll(in))

	_, err := s.db.Exec("UPDATE snippets SET sealed = (SELECT sealed FROM snippets WHERE id = 'b') WHERE id = 'a'")
	require.NoError(t, err)
	_, err = s.LoadAll()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestSealer(t *testing.T) {
	sealer, err := NewSealer("pw", nil)
	require.NoError(t, err)
	assert.Len(t, sealer.Salt(), saltSize)

	ct, err := sealer.Seal([]byte("secret"), []byte("id"))
	require.NoError(t, err)
	pt, err := sealer.Open(ct, []byte("id"))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pt))

	_, err = sealer.Open(ct, []byte("other"))
	assert.ErrorIs(t, err, ErrCorrupt)
	_, err = sealer.Open([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	same, err := NewSealer("pw", sealer.Salt())
	require.NoError(t, err)
	pt, err = same.Open(ct, []byte("id"))
	require.NoError(t, err)
	assert.Equal(t, "secret", string(pt))

	_, err = NewSealer("", nil)
	assert.Error(t, err)
}

func TestClipboardHistory(t *testing.T) {
	for _, pass := range []string{"", "pw"} {
		t.Run("passphrase="+pass, func(t *testing.T) {
			s, _ := openTest(t, Options{Passphrase: pass})
			require.NoError(t, s.SaveClipboardHistory([]string{"newest", "middle", "oldest"}))

			got, err := s.LoadClipboardHistory(2)
			require.NoError(t, err)
			assert.Equal(t, []string{"newest", "middle"}, got)

			require.NoError(t, s.SaveClipboardHistory(nil))
			got, err = s.LoadClipboardHistory(10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestClipboardHistorySealedAtRest(t *testing.T) {
	s, _ := openTest(t, Options{Passphrase: "pw"})
	require.NoError(t, s.SaveClipboardHistory([]string{"hunter2"}))

	var body sql.NullString
	require.NoError(t, s.db.QueryRow("SELECT body FROM clipboard_history").Scan(&body))
	assert.False(t, body.Valid)
}

func TestDecodeJSON(t *testing.T) {
	doc := `{"version": 1, "snippets": [
		{"shortcut": "brb", "text": "be right back"},
		{"shortcut": "off", "text": "x", "enabled": false, "tags": ["a"]}
	]}`
	out, err := ImportJSON(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Enabled, "enabled defaults to true")
	assert.False(t, out[1].Enabled)
	assert.Equal(t, []string{"a"}, out[1].Tags)

	bare := `[{"shortcut": "sig", "text": "Regards", "form_fields": [{"name": "n", "type": "text"}]}]`
	out, err = ImportJSON(strings.NewReader(bare))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "n", out[0].FormFields[0].Name)
}

func TestDecodeRejectsInvalid(t *testing.T) {
	for name, doc := range map[string]string{
		"missing text":      `[{"shortcut": "a"}]`,
		"space in shortcut": `[{"shortcut": "a b", "text": "x"}]`,
		"bad field type":    `[{"shortcut": "a", "text": "x", "form_fields": [{"name": "f", "type": "color"}]}]`,
		"wrong version":     `{"version": 2, "snippets": []}`,
		"not json":          `{`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ImportJSON(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}
}

func TestDecodeYAML(t *testing.T) {
	doc := `
snippets:
  - shortcut: addr
    text: |
      1 Main St
      Springfield
    categories: [home]
    case_sensitive: true
`
	out, err := ImportYAML(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "1 Main St\nSpringfield\n", out[0].Text)
	assert.True(t, out[0].CaseSensitive)
	assert.True(t, out[0].Enabled)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, f, sample()))
			out, err := Decode(&buf, f)
			require.NoError(t, err)
			require.Len(t, out, 2)
			assert.Equal(t, "brb", out[0].Shortcut)
			assert.Equal(t, "Ctrl+Shift+P", out[1].Hotkey)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	f, err := FormatFromPath("x/snippets.YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)
	f, err = FormatFromPath("a.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	_, err = FormatFromPath("a.csv")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestStoreBacksRepository(t *testing.T) {
	s, path := openTest(t, Options{})
	repo := snippet.NewRepository(s, nil)
	_, err := repo.Add(snippet.Snippet{Shortcut: "brb", Text: "be right back", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(path, Options{})
	require.NoError(t, err)
	defer s2.Close()
	repo2 := snippet.NewRepository(s2, nil)
	require.NoError(t, repo2.Load())
	got, ok := repo2.Match("BRB")
	require.True(t, ok)
	assert.Equal(t, "be right back", got.Text)
}
