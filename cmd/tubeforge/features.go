package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pterm/pterm"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/entrhq/tubeforge/pkg/feature"
	"github.com/entrhq/tubeforge/pkg/features"
	"github.com/entrhq/tubeforge/pkg/prefs"
)

// FeaturesCmd edits persisted feature flags without a browser. Lifecycles
// are inert here; the next run applies the new state.
type FeaturesCmd struct {
	store prefs.Store
	opts  features.Options
	out   io.Writer
}

// FeatureRow is one feature in list output.
type FeatureRow struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Group   string `json:"group"`
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
	Value   string `json:"value,omitempty"`
	Parent  string `json:"parent,omitempty"`
}

// ListFeaturesInput holds input for listing features.
type ListFeaturesInput struct {
	Output string
}

func (c FeaturesCmd) registry(ctx context.Context) (*feature.Registry, error) {
	descs, deps, err := features.Catalog(&features.Env{}, c.opts)
	if err != nil {
		return nil, err
	}
	descs = lo.Map(descs, func(d feature.Descriptor, _ int) feature.Descriptor {
		d.Lifecycle = feature.Funcs{}
		return d
	})

	r, err := feature.NewRegistry(descs, deps, c.store, nil)
	if err != nil {
		return nil, err
	}
	flags, err := prefs.Merge(ctx, c.store, r.Defaults())
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	r.Initialize(ctx, flags)
	return r, nil
}

// Rows returns every feature with its persisted state.
func (c FeaturesCmd) Rows(ctx context.Context) ([]FeatureRow, error) {
	r, err := c.registry(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(r.Descriptors(), func(d feature.Descriptor, _ int) FeatureRow {
		row := FeatureRow{
			ID:      d.ID,
			Name:    d.Name,
			Group:   d.Group,
			Type:    string(feature.TypeToggle),
			Enabled: r.Enabled(d.ID),
		}
		if d.Type != "" {
			row.Type = string(d.Type)
		}
		if d.Type == feature.TypeTextarea {
			row.Value = r.Value(d.ID)
		}
		row.Parent, _ = r.Parent(d.ID)
		return row
	}), nil
}

// List prints the catalog as a table, or JSON with Output "json".
func (c FeaturesCmd) List(ctx context.Context, in ListFeaturesInput) error {
	rows, err := c.Rows(ctx)
	if err != nil {
		return err
	}

	if in.Output == "json" {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	on := cell.Foreground(lipgloss.Color("42"))
	off := cell.Foreground(lipgloss.Color("241"))

	states := make([]bool, len(rows))
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("ID", "NAME", "GROUP", "STATE", "VALUE")
	for i, row := range rows {
		name := row.Name
		if row.Parent != "" {
			name = "└ " + name
		}
		state := "off"
		if row.Enabled {
			state = "on"
		}
		states[i] = row.Enabled
		t.Row(row.ID, name, row.Group, state, truncate(row.Value, 32))
	}
	t.StyleFunc(func(r, col int) lipgloss.Style {
		switch {
		case r == table.HeaderRow:
			return header
		case col == 3 && states[r]:
			return on
		case col == 3:
			return off
		default:
			return cell
		}
	})

	_, err = fmt.Fprintln(c.out, t.Render())
	return err
}

// Enable turns a feature on. Sub-features need their parent on first.
func (c FeaturesCmd) Enable(ctx context.Context, id string) error {
	r, err := c.registry(ctx)
	if err != nil {
		return err
	}
	return r.SetEnabled(ctx, id, true)
}

// Disable turns a feature off, along with any sub-features it manages.
func (c FeaturesCmd) Disable(ctx context.Context, id string) error {
	r, err := c.registry(ctx)
	if err != nil {
		return err
	}
	return r.SetEnabled(ctx, id, false)
}

// Set stores a text feature's value. An empty value disables it.
func (c FeaturesCmd) Set(ctx context.Context, id, value string) error {
	r, err := c.registry(ctx)
	if err != nil {
		return err
	}
	return r.SetValue(ctx, id, value)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "List and toggle features",
}

var featuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every feature and its saved state",
	Args:  cobra.NoArgs,
	RunE:  runFeaturesList,
}

var featuresEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable a feature",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeaturesEnable,
}

var featuresDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable a feature and the features it manages",
	Args:  cobra.ExactArgs(1),
	RunE:  runFeaturesDisable,
}

var featuresSetCmd = &cobra.Command{
	Use:   "set <id> <value>",
	Short: "Set a text feature's value (empty disables it)",
	Args:  cobra.ExactArgs(2),
	RunE:  runFeaturesSet,
}

func init() {
	featuresListCmd.Flags().StringP("output", "o", "", "Output format (json)")

	featuresCmd.AddCommand(featuresListCmd)
	featuresCmd.AddCommand(featuresEnableCmd)
	featuresCmd.AddCommand(featuresDisableCmd)
	featuresCmd.AddCommand(featuresSetCmd)
	rootCmd.AddCommand(featuresCmd)
}

func newFeaturesCmd(cmd *cobra.Command) (FeaturesCmd, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return FeaturesCmd{}, err
	}
	store, err := prefs.NewFileStore(cfg.PreferencesPath)
	if err != nil {
		return FeaturesCmd{}, err
	}
	return FeaturesCmd{store: store, opts: featureOptions(cfg), out: os.Stdout}, nil
}

func runFeaturesList(cmd *cobra.Command, args []string) error {
	c, err := newFeaturesCmd(cmd)
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")
	return c.List(cmd.Context(), ListFeaturesInput{Output: output})
}

func runFeaturesEnable(cmd *cobra.Command, args []string) error {
	c, err := newFeaturesCmd(cmd)
	if err != nil {
		return err
	}
	if err := c.Enable(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("Enabled %s", args[0])
	return nil
}

func runFeaturesDisable(cmd *cobra.Command, args []string) error {
	c, err := newFeaturesCmd(cmd)
	if err != nil {
		return err
	}
	if err := c.Disable(cmd.Context(), args[0]); err != nil {
		return err
	}
	pterm.Success.Printfln("Disabled %s", args[0])
	return nil
}

func runFeaturesSet(cmd *cobra.Command, args []string) error {
	c, err := newFeaturesCmd(cmd)
	if err != nil {
		return err
	}
	if err := c.Set(cmd.Context(), args[0], args[1]); err != nil {
		return err
	}
	pterm.Success.Printfln("Updated %s", args[0])
	return nil
}
