package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rendis/flowlanes/internal/codec"
	"github.com/rendis/flowlanes/internal/store"
)

func (a *app) storeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Save, fetch and list diagrams in the local database",
	}
	cmd.AddCommand(
		a.storeSaveCmd(),
		a.storeGetCmd(),
		a.storeListCmd(),
		a.storeDeleteCmd(),
		a.storeHistoryCmd(),
	)
	return cmd
}

// withStore opens the database for the duration of fn.
func (a *app) withStore(cmd *cobra.Command, fn func(s store.Store) error) error {
	s, err := a.openStore(cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (a *app) storeSaveCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "save <in>",
		Short: "Import a document and save it as a new diagram or a new revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			d, err := store.NewDiagram(a.codec, id, name, res.Model)
			if err != nil {
				return err
			}
			return a.withStore(cmd, func(s store.Store) error {
				if err := s.SaveDiagram(cmd.Context(), d); err != nil {
					return err
				}
				a.logger.InfoContext(cmd.Context(), "diagram saved", "id", d.ID, "revision", d.Revision)
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\trevision %d\n", d.ID, d.Revision)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "diagram ID to update (default: new ID)")
	cmd.Flags().StringVar(&name, "name", "", "diagram name (default: root frame title)")
	return cmd
}

func (a *app) storeGetCmd() *cobra.Command {
	var (
		revision int64
		format   string
	)
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Print a stored diagram as a native document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s store.Store) error {
				var doc json.RawMessage
				if revision > 0 {
					r, err := s.GetRevision(cmd.Context(), args[0], revision)
					if err != nil {
						return err
					}
					doc = r.Document
				} else {
					d, err := s.GetDiagram(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					doc = d.Document
				}

				if format == "" || format == "json" {
					_, err := fmt.Fprintln(cmd.OutOrStdout(), string(doc))
					return err
				}
				m, err := a.codec.Unmarshal(doc)
				if err != nil {
					return err
				}
				f, err := codec.ParseFormat(format)
				if err != nil {
					return err
				}
				data, err := a.codec.As(f).Marshal(m)
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			})
		},
	}
	cmd.Flags().Int64Var(&revision, "revision", 0, "revision to print (default: latest)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "output format: json, yaml")
	return cmd
}

func (a *app) storeListCmd() *cobra.Command {
	var (
		prefix string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored diagrams, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(s store.Store) error {
				diagrams, err := s.ListDiagrams(cmd.Context(), store.DiagramFilter{NamePrefix: prefix, Limit: limit})
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tFRAMES\tBLOCKS\tREVISION\tUPDATED")
				for _, d := range diagrams {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
						d.ID, d.Name, d.FrameCount, d.BlockCount, d.Revision, d.UpdatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&prefix, "prefix", "", "only names starting with this prefix")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (default: all)")
	return cmd
}

func (a *app) storeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored diagram and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s store.Store) error {
				return s.DeleteDiagram(cmd.Context(), args[0])
			})
		},
	}
}

func (a *app) storeHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <id>",
		Short: "List the revisions of a stored diagram",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s store.Store) error {
				revs, err := s.ListRevisions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, r := range revs {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", r.Revision, r.SavedAt.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
}
