package main

import (
	"fmt"
	"strconv"

	"mbook/internal/archive"

	"github.com/spf13/cobra"
)

func newInspectCommand() *cobra.Command {
	var showFiles bool
	cmd := &cobra.Command{
		Use:   "inspect <book.mbook>",
		Short: "Show the manifest of a book archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := archive.ReadManifest(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cover := "-"
			if m.Cover != nil {
				cover = *m.Cover
			}
			fmt.Fprintf(out, "Title:  %s\nAuthor: %s\nCover:  %s\n", m.Title, m.Author, cover)

			rows := make([][]string, 0, len(m.Chapters))
			for i, ch := range m.Chapters {
				rows = append(rows, []string{strconv.Itoa(i + 1), ch.Name, ch.Slides, ch.MD})
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Chapter", "Slides", "Document"}, rows, 0))

			if showFiles {
				names, err := archive.List(args[0])
				if err != nil {
					return err
				}
				for _, n := range names {
					fmt.Fprintln(out, n)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showFiles, "files", false, "Also list every file in the archive")
	return cmd
}

func newUnpackCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "unpack <book.mbook> <dir>",
		Short: "Expand a book archive into a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := archive.Unpack(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unpacked %s into %s\n", args[0], args[1])
			return nil
		},
	}
}
