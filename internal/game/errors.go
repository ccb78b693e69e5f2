package game

import "fmt"

// ErrorKind classifies registry failures so transports can map them.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1 // malformed input
	KindConflict                        // valid input, wrong state
	KindNotFound                        // unknown match or player
	KindInternal                        // unexpected fault
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	}
	return "unknown"
}

// Error is returned by every registry operation that fails.
// Message is safe to show to the client that caused it.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches the kind sentinels, so errors.Is(err, ErrConflict) works for
// any conflict regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Kind sentinels
var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrConflict   = &Error{Kind: KindConflict}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrInternal   = &Error{Kind: KindInternal}
)

func validationError(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func conflictError(msg string) *Error { return &Error{Kind: KindConflict, Message: msg} }

func notFoundError(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func internalError(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// Client-facing messages
const (
	msgRoomNotFound   = "The room doesn't exists"
	msgAlreadyInRoom  = "Already in a room"
	msgRoomFull       = "The room is full"
	msgRoomStarted    = "Room has already started"
	msgNeedTwo        = "Minimum of 2 player is required to start the match"
	msgNotCreator     = "Room creator should start the match"
	msgNotMember      = "Join the room to start the match"
	msgPlayerNotFound = "Player doesn't exists"
	msgInvalidMove    = "Invalid Move"
	msgNotAlive       = "Player is not alive"
	msgNotActive      = "The match is not active"

	MsgJoined      = "%s joined the room"
	MsgReconnected = "%s connected to the room"
	MsgStarted     = "The room is started"
	MsgMoved       = "Updated successfully"
	MsgWallBlocked = "Wall detected"
	MsgShot        = "Created Successfull"
	MsgLeft        = "Player %s has left the room!"
	MsgDisconnect  = "Player %s is disconnected!"
	MsgDead        = "%s is dead"
	MsgRespawned   = "%s is respawned"
	MsgRoomClosed  = "The room %s has been closed"
)
