package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expandd/internal/clipboard"
	"expandd/internal/config"
	"expandd/internal/keyboard"
	"expandd/internal/scope"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Report platform support and configuration",
	Long: `Check whether keystroke capture, application filtering, the clipboard, the
snippet store and plugins work on this machine with the current config.
Exits non-zero when expansion cannot work at all.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

type checkLine struct {
	name   string
	ok     bool
	detail string
}

func runCheck(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "config\tFAIL\t%s: %v\n", path, err)
		return err
	}
	logger := cliLogger()

	var lines []checkLine
	lines = append(lines, checkLine{"config", true, path})

	kbOK, kbDetail := keyboard.New().Available()
	lines = append(lines, checkLine{"keyboard", kbOK, kbDetail})

	scOK, scDetail := scope.Available()
	lines = append(lines, checkLine{"app filter", scOK, scDetail})

	lines = append(lines, clipboardCheck(cfg))

	if repo, st, err := openRepository(cfg, logger); err != nil {
		lines = append(lines, checkLine{"store", false, err.Error()})
	} else {
		detail := fmt.Sprintf("%s, %d snippets", st.Path(), repo.Len())
		if st.Sealed() {
			detail += ", sensitive text encrypted"
		}
		lines = append(lines, checkLine{"store", true, detail})
		st.Close()
	}

	if cfg.Plugins.Enabled {
		h, err := renderPipeline(cfg, logger)
		if err != nil {
			lines = append(lines, checkLine{"plugins", false, err.Error()})
		} else {
			lines = append(lines, checkLine{"plugins", true, fmt.Sprintf("%d loaded from %s", len(h.lua.Plugins()), cfg.Plugins.Dir)})
			h.close()
		}
	} else {
		lines = append(lines, checkLine{"plugins", true, "disabled"})
	}
	lines = append(lines, checkLine{"variables", true, describeStages()})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, l := range lines {
		status := "ok"
		if !l.ok {
			status = "WARN"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", l.name, status, l.detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !kbOK {
		return fmt.Errorf("keystroke capture unavailable: %s", kbDetail)
	}
	return nil
}

func clipboardCheck(cfg *config.Config) checkLine {
	if !cfg.Clipboard.Enabled {
		return checkLine{"clipboard", true, "disabled"}
	}
	acc, err := clipboard.New(cfg.Clipboard.Source)
	if err != nil {
		return checkLine{"clipboard", false, err.Error()}
	}
	switch a := acc.(type) {
	case clipboard.System:
		if !a.Available() {
			return checkLine{"clipboard", false, "no clipboard utility found (install xclip, xsel or wl-clipboard)"}
		}
		return checkLine{"clipboard", true, "system clipboard"}
	default:
		return checkLine{"clipboard", true, "KDE Klipper (with history)"}
	}
}
