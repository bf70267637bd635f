package cli

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/orq/internal/model"
)

// EntityInfo is the JSON form of an entity mapping.
type EntityInfo struct {
	Name        string       `json:"name"`
	Table       string       `json:"table"`
	Columns     []ColumnInfo `json:"columns"`
	References  []string     `json:"references,omitempty"`
	Collections []string     `json:"collections,omitempty"`
}

// ColumnInfo describes one mapped column.
type ColumnInfo struct {
	Member   string `json:"member"`
	Column   string `json:"column"`
	Type     string `json:"type"`
	Key      bool   `json:"key,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

// NewModelCommand creates the model command.
func NewModelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "model",
		Short:         "Show the entity model",
		Long:          `Load and resolve the CUE entity model and list its entities.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(rootOpts, cmd)
		},
	}
}

func runModel(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ws, err := loadWorkspace(opts, formatter, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	var entities []EntityInfo
	for _, name := range ws.model.Names() {
		e, _ := ws.model.Entity(name)
		entities = append(entities, entityInfo(e))
	}
	return outputModelSuccess(formatter, entities)
}

func entityInfo(e *model.Entity) EntityInfo {
	info := EntityInfo{Name: e.Name, Table: e.Table}
	for _, c := range e.Columns {
		info.Columns = append(info.Columns, ColumnInfo{
			Member:   c.Member,
			Column:   c.Name,
			Type:     fmt.Sprint(c.Type),
			Key:      c.Key,
			Nullable: c.Nullable,
		})
	}
	for member := range e.References {
		info.References = append(info.References, member)
	}
	for member := range e.Collections {
		info.Collections = append(info.Collections, member)
	}
	slices.Sort(info.References)
	slices.Sort(info.Collections)
	return info
}

func outputModelSuccess(f *OutputFormatter, entities []EntityInfo) error {
	if f.Format == "json" {
		return f.Success(entities)
	}

	f.Check("%d entities", len(entities))
	for _, e := range entities {
		fmt.Fprintln(f.Writer)
		f.Field(e.Name, e.Table)
		for _, c := range e.Columns {
			var flags []string
			if c.Key {
				flags = append(flags, "key")
			}
			if c.Nullable {
				flags = append(flags, "null")
			}
			suffix := ""
			if len(flags) > 0 {
				suffix = " (" + strings.Join(flags, ", ") + ")"
			}
			fmt.Fprintf(f.Writer, "  %s %s%s\n", c.Member, c.Type, suffix)
		}
		if len(e.References) > 0 {
			fmt.Fprintf(f.Writer, "  references: %s\n", strings.Join(e.References, ", "))
		}
		if len(e.Collections) > 0 {
			fmt.Fprintf(f.Writer, "  collections: %s\n", strings.Join(e.Collections, ", "))
		}
	}
	return nil
}
