package game

import (
	"time"

	"github.com/park285/smartchess/internal/arbiter"
	"github.com/park285/smartchess/internal/board"
	"github.com/park285/smartchess/internal/channel"
	"github.com/park285/smartchess/internal/hwlink"
)

// Event is anything the loop reacts to. Producers post events; only the loop
// touches game state.
type Event interface{ isEvent() }

// SnapshotEvent is one sensor reading.
type SnapshotEvent struct{ Snapshot board.Snapshot }

// SelectionEvent answers a pending prompt.
type SelectionEvent struct {
	Selection arbiter.Selection
	At        time.Time
}

// RemoteEvent carries something that happened on the game channel.
type RemoteEvent struct{ Event channel.Event }

type TickEvent struct{ At time.Time }

// ResetEvent abandons the current physical action. With Rewind set it also
// takes back the last move.
type ResetEvent struct {
	Rewind bool
	At     time.Time
}

type HintRequest struct{ At time.Time }

type NewGameEvent struct{ At time.Time }

type ResignEvent struct{ At time.Time }

type DrawOfferEvent struct{ At time.Time }

// ShutdownEvent stops Run without error.
type ShutdownEvent struct{}

type hintResult struct {
	gen  int
	move board.CandidateMove
	ok   bool
	err  error
}

func (SnapshotEvent) isEvent()  {}
func (SelectionEvent) isEvent() {}
func (RemoteEvent) isEvent()    {}
func (TickEvent) isEvent()      {}
func (ResetEvent) isEvent()     {}
func (HintRequest) isEvent()    {}
func (NewGameEvent) isEvent()   {}
func (ResignEvent) isEvent()    {}
func (DrawOfferEvent) isEvent() {}
func (ShutdownEvent) isEvent()  {}
func (hintResult) isEvent()     {}

// AckEvent is the OK button: it starts the next game once one is over.
type AckEvent struct{ At time.Time }

func (AckEvent) isEvent() {}

// FromInput maps a controller button to a loop event.
func FromInput(in hwlink.Input) (Event, bool) {
	at := in.At
	if at.IsZero() {
		at = time.Now()
	}
	switch in.Button {
	case hwlink.ButtonNewGame:
		return NewGameEvent{At: at}, true
	case hwlink.ButtonHint:
		return HintRequest{At: at}, true
	case hwlink.ButtonOK:
		return AckEvent{At: at}, true
	case hwlink.ButtonDraw:
		return DrawOfferEvent{At: at}, true
	case hwlink.ButtonBack:
		return ResetEvent{Rewind: true, At: at}, true
	case hwlink.ButtonShutdown:
		return ShutdownEvent{}, true
	case hwlink.ButtonPromotion:
		return SelectionEvent{Selection: arbiter.Selection{Promotion: in.Promotion}, At: at}, true
	case hwlink.ButtonChoice:
		return SelectionEvent{Selection: arbiter.Selection{Index: in.Index}, At: at}, true
	}
	return nil, false
}
