package main

import (
	"chat-relay/domain"
	"chat-relay/infrastructure/storage"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func newRoomCmd(cfg *config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "room",
		Short: "Create, close or reopen rooms",
	}
	cmd.AddCommand(newRoomCreateCmd(cfg))
	cmd.AddCommand(newRoomActiveCmd(cfg, "close", false))
	cmd.AddCommand(newRoomActiveCmd(cfg, "open", true))
	return cmd
}

func newRoomCreateCmd(cfg *config) *cobra.Command {
	var (
		bookingRef   string
		kind         string
		participants []string
		inactive     bool
	)
	cmd := &cobra.Command{
		Use:   "create <room-id>",
		Short: "Create or replace a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			roomKind := domain.RoomKind(kind)
			if roomKind != domain.RoomKindCustomerAdmin && roomKind != domain.RoomKindCustomerCompany {
				return fmt.Errorf("unknown room kind %q", kind)
			}
			if len(participants) == 0 {
				return fmt.Errorf("at least one participant is required")
			}
			return withRepository(cfg, func(rooms *storage.RoomRepository) error {
				now := time.Now().UTC()
				room := domain.Room{
					ID:           domain.RoomID(args[0]),
					BookingRef:   bookingRef,
					Kind:         roomKind,
					Active:       !inactive,
					Participants: lo.Map(participants, func(p string, _ int) domain.UserID { return domain.UserID(p) }),
					CreatedAt:    now,
					UpdatedAt:    now,
				}
				if err := rooms.Save(cmd.Context(), room); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "room %s saved with %d participants\n", room.ID, len(room.Participants))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&bookingRef, "booking", "", "Booking reference owning the room")
	cmd.Flags().StringVar(&kind, "kind", string(domain.RoomKindCustomerCompany), "customer_admin or customer_company")
	cmd.Flags().StringSliceVar(&participants, "participant", nil, "Participant user id, repeatable")
	cmd.Flags().BoolVar(&inactive, "inactive", false, "Create the room closed")
	return cmd
}

func newRoomActiveCmd(cfg *config, use string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <room-id>",
		Short: fmt.Sprintf("Mark a room as %s", lo.Ternary(active, "open", "closed")),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepository(cfg, func(rooms *storage.RoomRepository) error {
				if err := rooms.SetActive(cmd.Context(), domain.RoomID(args[0]), active); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "room %s active=%t\n", args[0], active)
				return nil
			})
		},
	}
}

// withRepository opens badger for writing, the server must be stopped.
func withRepository(cfg *config, fn func(rooms *storage.RoomRepository) error) error {
	db, err := badger.Open(badger.DefaultOptions(cfg.badgerPath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("opening badger at %s: %w", cfg.badgerPath, err)
	}
	defer db.Close()
	return fn(storage.NewRoomRepository(db, slog.Default()))
}
