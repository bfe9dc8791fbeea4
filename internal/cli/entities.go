package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/critq/internal/config"
	"github.com/roach88/critq/internal/metadata"
	"github.com/roach88/critq/internal/schema"
)

// EntitiesOptions holds flags for the entities command.
type EntitiesOptions struct {
	*RootOptions
	Naming string
}

// EntityInfo describes one registered entity.
type EntityInfo struct {
	Name         string                 `json:"name"`
	Table        string                 `json:"table"`
	Embeddable   bool                   `json:"embeddable,omitempty"`
	Identity     string                 `json:"identity,omitempty"`
	Version      string                 `json:"version,omitempty"`
	Partition    string                 `json:"partition,omitempty"`
	Properties   []metadata.Property    `json:"properties"`
	Associations []metadata.Association `json:"associations,omitempty"`
}

// NewEntitiesCommand creates the entities command.
func NewEntitiesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EntitiesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "entities <schema-dir>",
		Short: "List entities with their persisted names",
		Long: `Load the CUE entity definitions in a directory and print the
resolved metadata: table and column names under the naming strategy,
identity/version/partition roles, and associations.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEntities(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Naming, config.KeyNaming, "", "naming strategy (underscore_plural|underscore|raw)")

	return cmd
}

func runEntities(opts *EntitiesOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, errs := LoadSchema(dir, schema.FailFast, opts.Naming)
	if len(errs) > 0 {
		return formatter.Fail(ExitCommandError, ErrorCodeFor(errs[0]), errs[0].Error())
	}

	var infos []EntityInfo
	for _, e := range loaded.Registry.Entities() {
		infos = append(infos, describeEntity(e))
	}

	if formatter.Format == "json" {
		return formatter.Success(infos)
	}
	for _, info := range infos {
		writeEntity(formatter, info)
	}
	return nil
}

func describeEntity(e metadata.Entity) EntityInfo {
	info := EntityInfo{
		Name:         e.Name(),
		Table:        e.PersistedName(),
		Embeddable:   e.Embeddable(),
		Properties:   e.PersistentProperties(),
		Associations: e.Associations(),
	}
	if p, ok := e.Identity(); ok {
		info.Identity = p.Name
	}
	if p, ok := e.Version(); ok {
		info.Version = p.Name
	}
	if p, ok := e.Partition(); ok {
		info.Partition = p.Name
	}
	return info
}

func writeEntity(f *OutputFormatter, info EntityInfo) {
	w := f.Writer
	kind := "table"
	if info.Embeddable {
		kind = "embeddable"
	}
	fmt.Fprintf(w, "%s (%s %s)\n", info.Name, kind, info.Table)
	for _, p := range info.Properties {
		var tags []string
		switch p.Name {
		case info.Identity:
			tags = append(tags, "id")
		case info.Version:
			tags = append(tags, "version")
		case info.Partition:
			tags = append(tags, "partition")
		}
		if p.Nullable {
			tags = append(tags, "nullable")
		}
		suffix := ""
		if len(tags) > 0 {
			suffix = " [" + strings.Join(tags, ", ") + "]"
		}
		fmt.Fprintf(w, "  %s %s -> %s%s\n", p.Name, p.Type, p.PersistedName, suffix)
	}
	for _, a := range info.Associations {
		fmt.Fprintf(w, "  %s %s %s -> %s\n", a.Name, a.Kind, a.Shape, a.Target)
	}
	fmt.Fprintln(w)
}
