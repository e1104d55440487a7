package domain

// Channel is a fan-out destination in the broker.
type Channel string

const (
	// AllRoomsChannel receives every new message of every room.
	AllRoomsChannel Channel = "room:*"
	// AdminRoomListChannel carries room list updates to admin sessions.
	AdminRoomListChannel Channel = "rooms:admin"
)

func RoomChannel(roomID RoomID) Channel {
	return Channel("room:" + string(roomID))
}

func UserRoomListChannel(userID UserID) Channel {
	return Channel("rooms:user:" + string(userID))
}
