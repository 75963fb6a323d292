package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlanes/internal/batch"
	"github.com/rendis/flowlanes/internal/codec"
	"github.com/rendis/flowlanes/internal/diagram"
	"github.com/rendis/flowlanes/internal/expressions"
	"github.com/rendis/flowlanes/internal/importer"
	"github.com/rendis/flowlanes/internal/logging"
	"github.com/rendis/flowlanes/internal/validation"
	"github.com/rendis/flowlanes/internal/workflow"
	"github.com/rendis/flowlanes/pkg/schema"
)

// load imports arg, reading stdin for "-".
func (a *app) load(cmd *cobra.Command, arg string) (*importer.Result, error) {
	ctx := logging.WithOperation(cmd.Context(), cmd.Name())
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, schema.IOFailure("read stdin", err)
		}
		return a.importer.Import(logging.WithSource(ctx, "stdin"), data)
	}
	return a.importer.Load(ctx, location(arg))
}

func (a *app) convertCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "convert <in> [out]",
		Short: "Import a compiler export or native document and write a native document",
		Long: `Import any supported source and write it as a native document.

The output format follows the extension of [out] (.yaml/.yml for YAML,
JSON otherwise) unless --format is given. Without [out] the document
is written to stdout.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}

			if len(args) == 2 && args[1] != "-" && format == "" {
				return codec.NewFiles(a.fs, a.codec).Save(cmd.Context(), location(args[1]), res.Model)
			}

			f, err := codec.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := a.codec.As(f).Marshal(res.Model)
			if err != nil {
				return err
			}
			if len(args) == 2 && args[1] != "-" {
				return writeFile(args[1], data)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: json, yaml")
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "render <in>",
		Short: "Render a diagram as ASCII, Mermaid, PNG, SVG or DOT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format == "" {
				format = a.cfg.RenderFormat
			}
			res, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			d := diagram.Build(res.Model, nil)

			var out []byte
			switch format {
			case "ascii":
				out = []byte(diagram.RenderASCIIAuto(cmd.Context(), d, a.cfg.MermaidASCIIDir))
			case "mermaid":
				out = []byte(diagram.RenderMermaid(d) + "\n")
			case "png", "svg", "dot":
				if out, err = diagram.RenderImage(cmd.Context(), d, diagram.ImageFormat(format)); err != nil {
					return err
				}
				if format == "png" && output == "" {
					out = []byte(base64.StdEncoding.EncodeToString(out) + "\n")
				}
			default:
				return fmt.Errorf("unsupported render format %q", format)
			}

			if output != "" {
				return writeFile(output, out)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "ascii, mermaid, png, svg, dot (default: render_format)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to this file; PNG on stdout is base64")
	return cmd
}

func (a *app) validateCmd() *cobra.Command {
	var (
		asJSON bool
		jobs   int
	)
	cmd := &cobra.Command{
		Use:   "validate <in>...",
		Short: "Check documents and report errors and warnings",
		Long: `Check one or more documents. Several inputs are checked concurrently
and reported in argument order, each line prefixed with its input.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			results := make([]*schema.ValidationResult, len(args))
			indexes := make([]int, len(args))
			for i := range indexes {
				indexes[i] = i
			}
			errs := batch.Each(cmd.Context(), jobs, indexes, func(_ context.Context, i int) error {
				data, err := a.read(cmd, args[i])
				if err != nil {
					return err
				}
				results[i], err = a.check(cmd, data)
				return err
			})
			if err := errors.Join(errs...); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				var v any = results[0]
				if len(args) > 1 {
					reports := make([]validationReport, len(args))
					for i, in := range args {
						reports[i] = validationReport{Input: in, Result: results[i]}
					}
					v = reports
				}
				if err := enc.Encode(v); err != nil {
					return err
				}
			} else {
				for i, result := range results {
					prefix := ""
					if len(args) > 1 {
						prefix = args[i] + ": "
					}
					for _, issue := range append(result.Errors, result.Warnings...) {
						fmt.Fprintln(w, prefix+issue.String())
					}
					if result.Valid() {
						fmt.Fprintf(w, "%sok (%d warnings)\n", prefix, len(result.Warnings))
					}
				}
			}

			failed := make([]error, 0, len(results))
			for _, result := range results {
				failed = append(failed, result.ToError())
			}
			return errors.Join(failed...)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 0, "inputs checked concurrently (default: GOMAXPROCS)")
	return cmd
}

type validationReport struct {
	Input  string                   `json:"input"`
	Result *schema.ValidationResult `json:"result"`
}

// check validates data in either input format, collecting every issue.
func (a *app) check(cmd *cobra.Command, data []byte) (*schema.ValidationResult, error) {
	raw, _, err := codec.DecodeRaw(data)
	if err != nil {
		result := &schema.ValidationResult{}
		result.AddError("/", schema.ErrCodeMalformedDocument, err.Error())
		return result, nil
	}

	if importer.Detect(raw) == importer.KindWorkflow {
		parser, err := workflow.NewParser()
		if err != nil {
			return nil, err
		}
		return parser.Check(data), nil
	}

	result := &schema.ValidationResult{}
	res, err := a.importer.Import(cmd.Context(), data)
	if err != nil {
		addIssue(result, err)
		return result, nil
	}
	result.Merge(validation.LintModel(res.Model))
	return result, nil
}

func addIssue(result *schema.ValidationResult, err error) {
	var dErr *schema.DiagramError
	if errors.As(err, &dErr) {
		path := dErr.Path
		if path == "" {
			path = "/"
		}
		result.AddError(path, dErr.Code, dErr.Message)
		return
	}
	result.AddError("/", schema.ErrCodeMalformedDocument, err.Error())
}

func (a *app) findCmd() *cobra.Command {
	var (
		engineName string
		template   string
	)
	cmd := &cobra.Command{
		Use:   "find <in> <expression>",
		Short: "List the blocks matching a boolean predicate",
		Long: `List the blocks matching a boolean predicate.

The predicate sees two variables: block (name, entity, attributes, index)
and frame (name, index, size). Each match prints as
"<frame>/<block> <frame name>: <block name>" unless --template is given,
e.g. --template '${{frame.name}} -> ${{block.attributes}}'.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := expressions.NewEngine(engineName)
			if err != nil {
				return err
			}
			res, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			matches, err := expressions.FindBlocks(cmd.Context(), engine, res.Model, args[1])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, ref := range matches {
				if template != "" {
					line, err := expressions.Interpolate(template, expressions.NewScope(ref))
					if err != nil {
						return err
					}
					fmt.Fprintln(w, line)
					continue
				}
				fmt.Fprintf(w, "%d/%d %s: %s\n", ref.Frame.Index(), ref.Block.Index(), ref.Frame.Name(), ref.Block.Name())
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&engineName, "engine", "e", expressions.EngineCEL, "cel, expr, jq")
	cmd.Flags().StringVarP(&template, "template", "t", "", "per-match output template")
	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <in> <jq>",
		Short: "Run a jq program over the native document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			out, err := expressions.Query(cmd.Context(), expressions.NewGoJQEngine(), res.Model, args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, v := range out {
				if err := enc.Encode(v); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// read returns the raw bytes behind arg, reading stdin for "-".
func (a *app) read(cmd *cobra.Command, arg string) ([]byte, error) {
	if arg == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, schema.IOFailure("read stdin", err)
		}
		return data, nil
	}
	return codec.ReadURL(cmd.Context(), a.fs, location(arg))
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return schema.IOFailure("write "+path, err)
	}
	return nil
}
