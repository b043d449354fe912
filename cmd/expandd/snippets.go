package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expandd/internal/security"
	"expandd/internal/snippet"
	"expandd/internal/store"
)

var (
	// snippet command flags
	snJSON          bool
	snCategory      string
	snSearch        string
	snShortcut      string
	snText          string
	snDescription   string
	snCategories    []string
	snHotkey        string
	snCaseSensitive bool
	snSensitive     bool
	snDisabled      bool
	snFormat        string
)

func init() {
	snippetCmd.AddCommand(snippetListCmd, snippetAddCmd, snippetRmCmd,
		snippetEnableCmd, snippetDisableCmd, snippetImportCmd, snippetExportCmd)

	snippetListCmd.Flags().BoolVar(&snJSON, "json", false, "Output as JSON (text included)")
	snippetListCmd.Flags().StringVar(&snCategory, "category", "", "Only snippets in this category")
	snippetListCmd.Flags().StringVar(&snSearch, "search", "", "Only snippets whose shortcut, description or text contains this")

	snippetAddCmd.Flags().StringVar(&snShortcut, "shortcut", "", "Shortcut to type (required)")
	snippetAddCmd.Flags().StringVar(&snText, "text", "", `Expansion text; "-" reads stdin (required)`)
	snippetAddCmd.Flags().StringVar(&snDescription, "description", "", "Description")
	snippetAddCmd.Flags().StringSliceVar(&snCategories, "category", nil, "Category (repeatable)")
	snippetAddCmd.Flags().StringVar(&snHotkey, "hotkey", "", `Hotkey such as "Ctrl+Shift+K"`)
	snippetAddCmd.Flags().BoolVar(&snCaseSensitive, "case-sensitive", false, "Match the shortcut case-sensitively")
	snippetAddCmd.Flags().BoolVar(&snSensitive, "sensitive", false, "Encrypt the text at rest when a passphrase is configured")
	snippetAddCmd.Flags().BoolVar(&snDisabled, "disabled", false, "Add the snippet disabled")
	_ = snippetAddCmd.MarkFlagRequired("shortcut")
	_ = snippetAddCmd.MarkFlagRequired("text")

	snippetExportCmd.Flags().StringVar(&snFormat, "format", "", "json or yaml (default: from the file extension, json for stdout)")
}

var snippetCmd = &cobra.Command{
	Use:   "snippet",
	Short: "Manage snippets",
	Long: `Manage the snippet store.

A running daemon picks up changes after SIGHUP or a restart.

Examples:
  # Add a snippet
  expandd snippet add --shortcut brb --text "be right back"

  # Add a multi-line snippet from a file
  expandd snippet add --shortcut sig --text - < signature.txt

  # Back up and restore
  expandd snippet export snippets.yaml
  expandd snippet import snippets.yaml`,
}

var snippetListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snippets",
	Args:  cobra.NoArgs,
	RunE:  runSnippetList,
}

var snippetAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a snippet",
	Args:  cobra.NoArgs,
	RunE:  runSnippetAdd,
}

var snippetRmCmd = &cobra.Command{
	Use:     "rm <id|shortcut>",
	Aliases: []string{"remove", "delete"},
	Short:   "Remove a snippet",
	Args:    cobra.ExactArgs(1),
	RunE:    runSnippetRm,
}

var snippetEnableCmd = &cobra.Command{
	Use:   "enable <id|shortcut>",
	Short: "Enable a snippet",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], true) },
}

var snippetDisableCmd = &cobra.Command{
	Use:   "disable <id|shortcut>",
	Short: "Disable a snippet",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], false) },
}

var snippetImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a JSON or YAML snippet collection",
	Long: `Import snippets from a collection file. The file is validated against the
collection schema first. Snippets whose shortcut already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnippetImport,
}

var snippetExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export every snippet",
	Long:  `Export every snippet to a file, or to stdout when no file or "-" is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSnippetExport,
}

// withRepository opens the configured store for one command.
func withRepository(fn func(*snippet.Repository) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	repo, st, err := openRepository(cfg, cliLogger())
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(repo)
}

// resolve finds a snippet by id, then by shortcut.
func resolve(repo *snippet.Repository, ref string) (snippet.Snippet, error) {
	if s, err := repo.Get(ref); err == nil {
		return s, nil
	}
	if s, ok := repo.Lookup(ref, false); ok {
		return s, nil
	}
	return snippet.Snippet{}, fmt.Errorf("%w: %s", snippet.ErrNotFound, ref)
}

func runSnippetList(cmd *cobra.Command, _ []string) error {
	return withRepository(func(repo *snippet.Repository) error {
		var list []snippet.Snippet
		switch {
		case snSearch != "":
			list = repo.Search(snSearch)
		case snCategory != "":
			list = repo.ByCategory(snCategory)
		default:
			list = repo.All()
		}
		if snCategory != "" && snSearch != "" {
			list = inCategory(list, snCategory)
		}

		out := cmd.OutOrStdout()
		if snJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No snippets.")
			return nil
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SHORTCUT\tENABLED\tUSES\tHOTKEY\tDESCRIPTION\tID")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%t\t%d\t%s\t%s\t%s\n", s.Shortcut, s.Enabled, s.Stats.UseCount, s.Hotkey, s.Description, s.ID)
		}
		return w.Flush()
	})
}

func inCategory(list []snippet.Snippet, category string) []snippet.Snippet {
	var out []snippet.Snippet
	for _, s := range list {
		for _, c := range s.Categories {
			if strings.EqualFold(c, category) {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

func runSnippetAdd(cmd *cobra.Command, _ []string) error {
	text := snText
	if text == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read text: %w", err)
		}
		text = strings.TrimSuffix(string(b), "\n")
	}
	return withRepository(func(repo *snippet.Repository) error {
		s, err := repo.Add(snippet.Snippet{
			Shortcut:      snShortcut,
			Text:          text,
			Description:   snDescription,
			Categories:    snCategories,
			Hotkey:        snHotkey,
			CaseSensitive: snCaseSensitive,
			Sensitive:     snSensitive,
			Enabled:       !snDisabled,
		})
		if err != nil {
			return fmt.Errorf("add snippet: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", s.Shortcut, s.ID)
		return nil
	})
}

func runSnippetRm(cmd *cobra.Command, args []string) error {
	return withRepository(func(repo *snippet.Repository) error {
		s, err := resolve(repo, args[0])
		if err != nil {
			return err
		}
		if err := repo.Delete(s.ID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", s.Shortcut)
		return nil
	})
}

func setEnabled(cmd *cobra.Command, ref string, enabled bool) error {
	return withRepository(func(repo *snippet.Repository) error {
		s, err := resolve(repo, ref)
		if err != nil {
			return err
		}
		s.Enabled = enabled
		if err := repo.Update(s); err != nil {
			return err
		}
		state := "Disabled"
		if enabled {
			state = "Enabled"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, s.Shortcut)
		return nil
	})
}

func runSnippetImport(cmd *cobra.Command, args []string) error {
	format, err := store.FormatFromPath(args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	in, err := store.Decode(f, format)
	if err != nil {
		return err
	}
	return withRepository(func(repo *snippet.Repository) error {
		added, err := repo.Import(in)
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d of %d snippets\n", added, len(in))
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Skipped:\n%v\n", err)
		}
		var pe *snippet.PersistError
		if errors.As(err, &pe) {
			return pe
		}
		return nil
	})
}

func runSnippetExport(cmd *cobra.Command, args []string) error {
	path := "-"
	if len(args) == 1 {
		path = args[0]
	}
	format := store.Format(strings.ToLower(snFormat))
	if format == "" {
		format = store.FormatJSON
		if path != "-" {
			f, err := store.FormatFromPath(path)
			if err != nil {
				return err
			}
			format = f
		}
	}
	return withRepository(func(repo *snippet.Repository) error {
		all := repo.All()
		if path == "-" {
			return store.Encode(cmd.OutOrStdout(), format, all)
		}
		w, err := security.NewAtomicWriter(path, security.PermPrivateFile)
		if err != nil {
			return err
		}
		if err := store.Encode(w, format, all); err != nil {
			w.Abort()
			return err
		}
		if err := w.Commit(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d snippets to %s\n", len(all), path)
		return nil
	})
}
