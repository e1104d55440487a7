package auth

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"

	"github.com/samber/lo"
)

var _ contract.Authorizer = (*RoomAuthorizer)(nil)

// RoomAuthorizer grants access to the participants of a room and to the
// support admins, who can open every room.
type RoomAuthorizer struct {
	directory contract.RoomDirectory
	admins    map[domain.UserID]struct{}
}

func NewRoomAuthorizer(directory contract.RoomDirectory, admins []domain.UserID) *RoomAuthorizer {
	return &RoomAuthorizer{
		directory: directory,
		admins:    lo.SliceToMap(admins, func(id domain.UserID) (domain.UserID, struct{}) { return id, struct{}{} }),
	}
}

// CanAccessRoom answers false for a room that does not exist, callers cannot
// tell an unknown room from a forbidden one.
func (a *RoomAuthorizer) CanAccessRoom(ctx context.Context, userID domain.UserID, roomID domain.RoomID) (bool, error) {
	room, err := a.directory.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, errors.ErrRoomNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, ok := a.admins[userID]; ok {
		return true, nil
	}
	return room.HasParticipant(userID), nil
}
