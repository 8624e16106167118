package main

import (
	"errors"
	"fmt"
	"time"

	"mbook/internal/config"
	"mbook/internal/models"
	"mbook/internal/status"
	"mbook/internal/storage"
	"mbook/internal/util"

	"github.com/spf13/cobra"
)

func openLedger(cmd *cobra.Command, dsn string) (storage.Ledger, error) {
	if dsn == "" {
		dsn = config.Load().LedgerDSN
	}
	return storage.OpenLedger(cmd.Context(), dsn)
}

func newStatusCommand(dsn *string) *cobra.Command {
	var title, author string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the conversion status of a book",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd, *dsn)
			if err != nil {
				return err
			}
			defer ledger.Close()

			b, err := ledger.FindByKey(cmd.Context(), title, author)
			if errors.Is(err, util.ErrBookNotFound) {
				return fmt.Errorf("book %q by %q does not exist", title, author)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBooks([]models.Book{b}))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Book title")
	cmd.Flags().StringVar(&author, "author", "", "Book author")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func newListCommand(dsn *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recently uploaded books",
		RunE: func(cmd *cobra.Command, args []string) error {
			ledger, err := openLedger(cmd, *dsn)
			if err != nil {
				return err
			}
			defer ledger.Close()

			books, err := ledger.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(books) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No books")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderBooks(books))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of books")
	return cmd
}

func renderBooks(books []models.Book) string {
	rows := make([][]string, 0, len(books))
	for _, b := range books {
		state, chapter := "unknown", "-"
		if st, err := status.Parse(b.Status); err == nil {
			state = st.Kind.String()
			if st.Chapter != "" {
				chapter = st.Chapter
			}
		}
		rows = append(rows, []string{b.BookName, b.Author, b.Status, state, chapter, b.Timestamp.Format(time.RFC3339)})
	}
	return renderTable([]string{"Title", "Author", "Status", "State", "Chapter", "Uploaded"}, rows)
}
