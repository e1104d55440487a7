package main

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newInspectCmd(cfg *config) *cobra.Command {
	var (
		roomID string
		after  int64
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print rooms, or the messages of one room, as a table",
		Long:  "inspect opens badger read-only, it can run next to a live server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openReadOnly(cfg.badgerPath)
			if err != nil {
				return err
			}
			defer db.Close()

			out := cmd.OutOrStdout()
			if roomID == "" {
				rooms, err := storage.NewRoomRepository(db, slog.Default()).ListRooms(cmd.Context())
				if err != nil {
					return err
				}
				renderRooms(out, rooms)
				return nil
			}
			messages, err := storage.NewMessageRepository(db, slog.Default()).History(cmd.Context(), domain.RoomID(roomID), after, limit)
			if err != nil {
				return err
			}
			renderMessages(out, messages)
			return nil
		},
	}
	cmd.Flags().StringVar(&roomID, "room", "", "Room whose messages are listed")
	cmd.Flags().Int64Var(&after, "after", 0, "Only messages after this sequence")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum number of messages")
	return cmd
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderRooms(out io.Writer, rooms []domain.Room) {
	table := newTable(out, []string{"Room", "Kind", "Booking", "Active", "Participants", "Updated"})
	for _, r := range rooms {
		participants := make([]string, len(r.Participants))
		for i, p := range r.Participants {
			participants[i] = string(p)
		}
		table.Append([]string{
			string(r.ID),
			string(r.Kind),
			r.BookingRef,
			strconv.FormatBool(r.Active),
			strings.Join(participants, ","),
			r.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
}

func renderMessages(out io.Writer, messages []domain.Message) {
	table := newTable(out, []string{"Seq", "Sender", "Role", "Type", "At", "Content"})
	for _, m := range messages {
		table.Append([]string{
			strconv.FormatInt(m.Sequence, 10),
			string(m.SenderID),
			string(m.SenderRole),
			string(m.ContentType),
			m.CreatedAt.Format("15:04:05"),
			m.Content,
		})
	}
	table.Render()
}

func openReadOnly(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", path, err)
	}
	return db, nil
}
