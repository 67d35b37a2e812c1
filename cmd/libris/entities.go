package main

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ersonp/libris/internal/domain/entities"
)

type mutationFlags struct {
	reason string
}

func (f *mutationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.reason, "reason", "r", "", "Reason recorded on the log record")
}

func newCreateCmd() *cobra.Command {
	var (
		flags mutationFlags
		count int
	)

	cmd := &cobra.Command{
		Use:   "create <kind> [field=value...]",
		Short: "Create an object",
		Long: "Creates a subject, book, instance or reader. Pass id=<id> to choose the id.\n" +
			"With --count N, N objects are created with generated ids and logged as one batch.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			return withDeps(cmd, func(d *Deps) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()
				if count > 0 {
					rec, err := d.Inventory.HandleCreateMany(ctx, args[0], count, values, d.Actor, flags.reason)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Created %d %s objects (log %s)\n", len(rec.AffectedIDs), args[0], rec.ID)
					for _, id := range rec.AffectedIDs {
						fmt.Fprintf(out, "  %s\n", id)
					}
					return nil
				}

				rec, err := d.Inventory.HandleCreate(ctx, args[0], values, d.Actor, flags.reason)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Created %s %s (log %s)\n", args[0], rec.AffectedIDs[0], rec.ID)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Create this many objects with generated ids")

	return cmd
}

func newUpdateCmd() *cobra.Command {
	var (
		flags mutationFlags
		ids   []string
	)

	cmd := &cobra.Command{
		Use:   "update <kind> [id] field=value...",
		Short: "Update an object",
		Long: "Changes fields of one object, or of every object listed with --ids.\n" +
			"To-many values are comma-separated; an empty value clears the field.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, rest := args[0], args[1:]
			return withDeps(cmd, func(d *Deps) error {
				ctx := cmd.Context()
				out := cmd.OutOrStdout()

				if len(ids) > 0 {
					values, err := parseAssignments(rest)
					if err != nil {
						return err
					}
					rec, err := d.Inventory.HandleBulkUpdate(ctx, kind, ids, values, d.Actor, flags.reason)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Updated %d %s objects: %s (log %s)\n",
						len(rec.AffectedIDs), kind, strings.Join(rec.Details.ModifiedFields, ", "), rec.ID)
					return nil
				}

				values, err := parseAssignments(rest[1:])
				if err != nil {
					return err
				}
				rec, err := d.Inventory.HandleUpdate(ctx, kind, rest[0], values, d.Actor, flags.reason)
				if err != nil {
					return err
				}
				if rec == nil {
					fmt.Fprintln(out, "No changes.")
					return nil
				}
				for _, name := range sortedKeys(rec.Details.FieldChanges) {
					c := rec.Details.FieldChanges[name]
					fmt.Fprintf(out, "  %s: %s -> %s\n", name, formatValue(c.Old), formatValue(c.New))
				}
				fmt.Fprintf(out, "Updated %s %s (log %s)\n", kind, rest[0], rec.ID)
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Update all of these ids (comma-separated)")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	var (
		flags mutationFlags
		force bool
	)

	cmd := &cobra.Command{
		Use:   "delete <kind> <id>...",
		Short: "Delete objects",
		Long: "Deletes one or more objects. Deleting several objects takes a snapshot first\n" +
			"so the deletion can be reverted.",
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ids := args[0], args[1:]
			if len(ids) > confirmDeleteAbove && !force {
				prompt := fmt.Sprintf("Delete %d %s objects?", len(ids), kind)
				if !confirmAction(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			return withDeps(cmd, func(d *Deps) error {
				rec, err := d.Inventory.HandleDelete(cmd.Context(), kind, ids, d.Actor, flags.reason)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Deleted %d %s objects (log %s)\n", len(rec.AffectedIDs), kind, rec.ID)
				if rec.HasSnapshot() {
					fmt.Fprintf(out, "Snapshot: %s\n", rec.SnapshotRef)
				}
				return nil
			})
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List objects of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *Deps) error {
				result, err := d.Inventory.HandleList(cmd.Context(), args[0], limit, offset)
				if err != nil {
					return fmt.Errorf("listing %s: %w", args[0], err)
				}

				out := cmd.OutOrStdout()
				if len(result.Entities) == 0 {
					fmt.Fprintln(out, "No objects found.")
					return nil
				}
				fmt.Fprintf(out, "Showing %d of %d:\n\n", len(result.Entities), result.Total)
				for _, e := range result.Entities {
					fmt.Fprintf(out, "%-38s %s\n", e.ID(), e.String())
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", DefaultListLimit, "Maximum number of objects to display")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many objects")

	return cmd
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <kind> <id>",
		Short: "Show one object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDeps(cmd, func(d *Deps) error {
				e, err := d.Inventory.HandleShow(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				displayEntity(cmd.OutOrStdout(), e)
				return nil
			})
		},
	}
}

func displayEntity(out io.Writer, e entities.Reflectable) {
	fmt.Fprintf(out, "%s %s\n", e.Kind(), e.ID())
	fmt.Fprintf(out, "  %s\n", e.String())
	for _, name := range e.FieldNames() {
		v, err := e.Field(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(out, "  %-20s %s\n", name+":", formatValue(v))
	}
}

// parseAssignments parses field=value arguments. Values may be empty.
func parseAssignments(args []string) (map[string]string, error) {
	values := make(map[string]string, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", arg)
		}
		if _, dup := values[name]; dup {
			return nil, fmt.Errorf("field %q given twice", name)
		}
		values[name] = value
	}
	return values, nil
}

func formatValue(v any) string {
	switch x := entities.NormalizeValue(v).(type) {
	case nil:
		return "-"
	case string:
		if x == "" {
			return "-"
		}
		return x
	case []string:
		if len(x) == 0 {
			return "-"
		}
		return strings.Join(x, ",")
	default:
		return fmt.Sprint(x)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func confirmAction(in io.Reader, out io.Writer, prompt string) bool {
	reader := bufio.NewReader(in)
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	response, _ := reader.ReadString('\n') // Error ignored: EOF/error treated as "no"
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
