package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DBCDK/opencat-business-connector/pkg/connector"
	"github.com/DBCDK/opencat-business-connector/pkg/json"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

type runFunc func(ctx context.Context, c *connector.Connector, args []string) error

// withConnector wraps run with connector setup and teardown
func (a *app) withConnector(run runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		c, err := a.connect()
		if err != nil {
			return err
		}
		defer c.Close()
		return run(cmd.Context(), c, args)
	}
}

func (a *app) operationCmds() []*cobra.Command {
	var (
		recordPath   string
		currentPath  string
		updatePath   string
		newPath      string
		libraryRules []string
	)

	recordFlag := func(cmd *cobra.Command, required bool) *cobra.Command {
		cmd.Flags().StringVarP(&recordPath, "record", "r", "", `record file, "-" for stdin`)
		if required {
			_ = cmd.MarkFlagRequired("record")
		}
		return cmd
	}

	validate := recordFlag(&cobra.Command{
		Use:   "validate-record TEMPLATE",
		Short: "Validate a record against a template",
		Args:  cobra.ExactArgs(1),
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, args []string) error {
			rec, err := readRecord(c.Codec(), recordPath)
			if err != nil {
				return err
			}
			entries, err := c.ValidateRecord(ctx, args[0], rec, a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeJSON(entries)
		}),
	}, true)

	checkTemplate := &cobra.Command{
		Use:   "check-template NAME GROUP LIBRARY_TYPE",
		Short: "Check whether a template may be used by a library",
		Args:  cobra.ExactArgs(3),
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, args []string) error {
			ok, err := c.CheckTemplate(ctx, args[0], args[1], args[2], a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeJSON(ok)
		}),
	}

	checkTemplateBuild := &cobra.Command{
		Use:   "check-template-build NAME",
		Short: "Check whether a template can be used to build records",
		Args:  cobra.ExactArgs(1),
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, args []string) error {
			ok, err := c.CheckTemplateBuild(ctx, args[0], a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeJSON(ok)
		}),
	}

	checkDoubleFrontend := recordFlag(&cobra.Command{
		Use:   "check-double-record-frontend",
		Short: "Look for double records and report them",
		Args:  cobra.NoArgs,
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, _ []string) error {
			rec, err := readRecord(c.Codec(), recordPath)
			if err != nil {
				return err
			}
			status, err := c.CheckDoubleRecordFrontend(ctx, rec, a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeJSON(status)
		}),
	}, true)

	checkDouble := recordFlag(&cobra.Command{
		Use:   "check-double-record",
		Short: "Fail when the record is a double record",
		Args:  cobra.NoArgs,
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, _ []string) error {
			rec, err := readRecord(c.Codec(), recordPath)
			if err != nil {
				return err
			}
			if err := c.CheckDoubleRecord(ctx, rec, a.callOptions()...); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "ok")
			return nil
		}),
	}, true)

	recategorize := &cobra.Command{
		Use:   "recategorize",
		Short: "Produce the recategorized record",
		Args:  cobra.NoArgs,
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, _ []string) error {
			var recs [3]*marc.Record
			for i, path := range []string{currentPath, updatePath, newPath} {
				rec, err := readRecord(c.Codec(), path)
				if err != nil {
					return err
				}
				recs[i] = rec
			}
			out, err := c.DoRecategorizationThings(ctx, recs[0], recs[1], recs[2], a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeRecord(c.Codec(), out)
		}),
	}
	recategorize.Flags().StringVar(&currentPath, "current", "", "current record file")
	recategorize.Flags().StringVar(&updatePath, "update", "", "update record file")
	recategorize.Flags().StringVar(&newPath, "new", "", "new record file")
	for _, name := range []string{"current", "update", "new"} {
		_ = recategorize.MarkFlagRequired(name)
	}

	note := recordFlag(&cobra.Command{
		Use:   "recategorization-note",
		Short: "Build the recategorization note field for a record",
		Args:  cobra.NoArgs,
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, _ []string) error {
			rec, err := readRecord(c.Codec(), recordPath)
			if err != nil {
				return err
			}
			field, err := c.RecategorizationNoteFieldFactory(ctx, rec, a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeJSON(field)
		}),
	}, true)

	build := recordFlag(&cobra.Command{
		Use:   "build-record TEMPLATE",
		Short: "Build a record from a template, optionally merging an existing record",
		Args:  cobra.ExactArgs(1),
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, args []string) error {
			var rec *marc.Record
			if recordPath != "" {
				var err error
				if rec, err = readRecord(c.Codec(), recordPath); err != nil {
					return err
				}
			}
			out, err := c.BuildRecordFrom(ctx, args[0], rec, a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeRecord(c.Codec(), out)
		}),
	}, false)

	sortCmd := recordFlag(&cobra.Command{
		Use:   "sort-record TEMPLATE_PROVIDER",
		Short: "Sort the fields of a record",
		Args:  cobra.ExactArgs(1),
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, args []string) error {
			rec, err := readRecord(c.Codec(), recordPath)
			if err != nil {
				return err
			}
			out, err := c.SortRecord(ctx, args[0], rec, a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeRecord(c.Codec(), out)
		}),
	}, true)

	schemas := &cobra.Command{
		Use:   "validate-schemas TEMPLATE_GROUP",
		Short: "List the validation schemas available to a template group",
		Args:  cobra.ExactArgs(1),
		RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, args []string) error {
			list, err := c.GetValidateSchemas(ctx, args[0], connector.RuleSet(libraryRules...), a.callOptions()...)
			if err != nil {
				return err
			}
			return a.writeJSON(list)
		}),
	}
	schemas.Flags().StringSliceVar(&libraryRules, "rule", nil, "allowed library rule, repeatable")

	transform := func(use, short string, fn func(*connector.Connector) func(context.Context, *marc.Record, ...connector.CallOption) (*marc.Record, error)) *cobra.Command {
		return recordFlag(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: a.withConnector(func(ctx context.Context, c *connector.Connector, _ []string) error {
				rec, err := readRecord(c.Codec(), recordPath)
				if err != nil {
					return err
				}
				out, err := fn(c)(ctx, rec, a.callOptions()...)
				if err != nil {
					return err
				}
				return a.writeRecord(c.Codec(), out)
			}),
		}, true)
	}

	return []*cobra.Command{
		validate,
		checkTemplate,
		checkTemplateBuild,
		checkDoubleFrontend,
		checkDouble,
		recategorize,
		note,
		build,
		sortCmd,
		schemas,
		transform("preprocess", "Run service-side preprocessing on a record",
			func(c *connector.Connector) func(context.Context, *marc.Record, ...connector.CallOption) (*marc.Record, error) {
				return c.Preprocess
			}),
		transform("metacompass", "Apply metacompass enrichment to a record",
			func(c *connector.Connector) func(context.Context, *marc.Record, ...connector.CallOption) (*marc.Record, error) {
				return c.Metacompass
			}),
	}
}

func readRecord(codec marc.Codec, path string) (*marc.Record, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	rec, err := codec.Decode(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", path, err)
	}
	return rec, nil
}

func (a *app) writeJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func (a *app) writeRecord(codec marc.Codec, rec *marc.Record) error {
	s, err := codec.Encode(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, s)
	return err
}
