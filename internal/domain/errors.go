package domain

// Rejection is an action failure addressed only to the initiating connection.
// Its string value doubles as the wire reason code.
type Rejection string

func (r Rejection) Error() string { return string(r) }

var (
	// ErrRoomNotFound is returned when the referenced room code is unknown.
	ErrRoomNotFound = Rejection("room-not-found")
	// ErrRoomFull is returned when a room is already at the player cap.
	ErrRoomFull = Rejection("room-full")
	// ErrRoomStarted is returned when joining a room that has left the lobby.
	ErrRoomStarted = Rejection("room-started")
	// ErrNotHost is returned when a non-host attempts a host-only action.
	ErrNotHost = Rejection("not-host")
	// ErrMissingPlayers is returned when starting with fewer than two players.
	ErrMissingPlayers = Rejection("missing-players")
	// ErrNotActive is returned when answering outside the active phase.
	ErrNotActive = Rejection("not-active")
	// ErrUnknownPlayer is returned when the connection is not a room member.
	ErrUnknownPlayer = Rejection("unknown-player")
	// ErrInvalidLevel is returned for level indices outside [0, totalLevels).
	ErrInvalidLevel = Rejection("invalid-level")
	// ErrWrongPhase is returned for actions attempted outside their valid phase.
	ErrWrongPhase = Rejection("wrong-phase")
	// ErrInvalidOption is returned for option indices outside the question's range.
	ErrInvalidOption = Rejection("invalid-option")
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = Rejection("bank-not-found")
)

// Reason maps an operation failure to its wire reason code.
func Reason(err error) string {
	if r, ok := err.(Rejection); ok {
		return string(r)
	}
	return "internal-error"
}
