package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"expandd/internal/clipboard"
	"expandd/internal/config"
	"expandd/internal/plugin"
	"expandd/internal/synth"
	"expandd/internal/variables"
)

var (
	renderFields  map[string]string
	renderSnippet string
	renderTags    bool
)

func init() {
	renderCmd.Flags().StringToStringVar(&renderFields, "field", nil, "Form field value, name=value (repeatable)")
	renderCmd.Flags().StringVar(&renderSnippet, "snippet", "", "Render a stored snippet by id or shortcut instead of a template")
	renderCmd.Flags().BoolVar(&renderTags, "tags", false, "List the tags found in the template instead of rendering")
}

var renderCmd = &cobra.Command{
	Use:   "render [template]",
	Short: "Render a template through the variable pipeline",
	Long: `Render a template the way an expansion would, without typing it.

Examples:
  expandd render "Today is {date:dddd, MMMM d}"
  expandd render "{if:{clipboard}:Copied {clipboard}:Clipboard empty}"
  expandd render --snippet addr --field street="1 Main St"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRender,
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := cliLogger()

	var (
		template string
		id       string
		reserved []string
	)
	switch {
	case renderSnippet != "" && len(args) == 0:
		repo, st, err := openRepository(cfg, logger)
		if err != nil {
			return err
		}
		s, err := resolve(repo, renderSnippet)
		st.Close()
		if err != nil {
			return err
		}
		template, id = s.Text, s.ID
		for _, f := range s.FormFields {
			reserved = append(reserved, f.Name)
			if _, ok := renderFields[f.Name]; !ok && f.Default != "" {
				if renderFields == nil {
					renderFields = map[string]string{}
				}
				renderFields[f.Name] = f.Default
			}
		}
	case renderSnippet == "" && len(args) == 1:
		template, id = args[0], "render"
	default:
		return fmt.Errorf("give either a template or --snippet")
	}
	for name := range renderFields {
		reserved = append(reserved, name)
	}

	out := cmd.OutOrStdout()
	if renderTags {
		return printTags(out, template)
	}

	host, err := renderPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer host.close()
	text := host.pipeline.Render(template, id, reserved...)
	text = variables.FillFields(text, renderFields)
	if head, ok := synth.TruncateAtCursor(text); ok {
		fmt.Fprintf(cmd.ErrOrStderr(), "(typing stops at {cursor}; %d characters dropped)\n", len([]rune(text))-len([]rune(head)))
	}
	fmt.Fprintln(out, text)
	return nil
}

func printTags(w io.Writer, template string) error {
	tags := variables.ParseTags(template)
	if len(tags) == 0 {
		fmt.Fprintln(w, "No tags.")
		return nil
	}
	for _, t := range tags {
		if t.HasArg {
			fmt.Fprintf(w, "%s\t%s\n", t.Name, t.Arg)
		} else {
			fmt.Fprintln(w, t.Name)
		}
	}
	return nil
}

type renderHost struct {
	pipeline *variables.Pipeline
	lua      *plugin.LuaHost
}

func (h renderHost) close() {
	if h.lua != nil {
		h.lua.Close()
	}
}

// renderPipeline builds a one-shot pipeline: the clipboard is read once and
// plugins are loaded from the configured directory.
func renderPipeline(cfg *config.Config, logger *slog.Logger) (renderHost, error) {
	var h renderHost
	var clip variables.ClipboardSource
	if cfg.Clipboard.Enabled {
		if acc, err := clipboard.New(cfg.Clipboard.Source); err == nil {
			m := clipboard.NewMonitor(acc, clipboard.MonitorConfig{HistorySize: cfg.Clipboard.HistorySize, Logger: logger})
			m.Poll()
			clip = m
		} else {
			logger.Warn("clipboard unavailable", "error", err)
		}
	}
	var resolver plugin.Resolver
	if cfg.Plugins.Enabled {
		h.lua = plugin.NewLuaHost(msDuration(cfg.Plugins.TimeoutMs), logger)
		if _, err := h.lua.LoadDir(cfg.Plugins.Dir); err != nil {
			h.lua.Close()
			return renderHost{}, err
		}
		resolver = h.lua
	}
	h.pipeline = variables.NewPipeline(variables.NewContext(clip, resolver), logger)
	return h, nil
}

// describeStages is used by check.
func describeStages() string {
	return strings.Join(variables.NewPipeline(nil, nil).Stages(), ", ")
}
