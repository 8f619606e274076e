// Package effects defines the side effects the chat engine asks its host to
// perform. Components never touch UI state directly; they emit effects to a
// Sink in the order the user should observe them.
package effects

import (
	"github.com/go-go-golems/coachchat/pkg/chatmsg"
	"github.com/go-go-golems/coachchat/pkg/classifier"
)

// Type names an effect on the wire.
type Type string

const (
	TypeAddMessage        Type = "chat.message.add"
	TypeUpdateMessage     Type = "chat.message.update"
	TypeTyping            Type = "chat.typing"
	TypeLoadEarlier       Type = "chat.load_earlier"
	TypeFurtherExpected   Type = "chat.further_expected"
	TypeExecuteCommand    Type = "chat.command.execute"
	TypeBackpackInfoAdded Type = "backpack.info.added"
	TypeMarkRead          Type = "chat.message.read"
	TypeVariableValue     Type = "chat.variable.value"
	TypeInitialized       Type = "chat.initialized"
	TypeCloseComponent    Type = "chat.component.close"
)

// Effect is one of the concrete effect types below.
type Effect interface {
	EffectType() Type
}

// AddMessage inserts a chat record. AddToStart prepends it above the records
// already shown (history pages); otherwise it is appended at the bottom.
type AddMessage struct {
	Message    chatmsg.Message
	AddToStart bool
}

// UpdateMessage replaces the records of a server message in place after a
// newer client version arrived. Messages is the full reclassified expansion.
type UpdateMessage struct {
	ClientID string
	Messages []chatmsg.Message
}

// Typing toggles the coach typing indicator.
type Typing struct {
	On bool
}

// LoadEarlier shows or hides the "load earlier messages" control.
type LoadEarlier struct {
	Visible bool
}

// FurtherExpected reports whether more live messages are already queued.
type FurtherExpected struct {
	Expected bool
}

// ExecuteCommand asks the host to run the hidden command with this record id.
type ExecuteCommand struct {
	MessageID string
}

// BackpackInfoAdded stores an info page in the user's backpack.
type BackpackInfoAdded struct {
	Info classifier.BackpackInfo
}

// MarkRead is a read receipt for a server message. FakeTimestamp is set when
// the message was presented later than its server timestamp.
type MarkRead struct {
	ClientID      string
	FakeTimestamp *int64
}

// VariableValue reports a value the user entered in an embedded web view.
type VariableValue struct {
	Variable string
	Value    string
}

// Initialized signals that history hydration finished and live delivery may start.
type Initialized struct{}

// CloseComponent asks the host to close the open component (web view).
type CloseComponent struct {
	Completed bool
}

func (AddMessage) EffectType() Type        { return TypeAddMessage }
func (UpdateMessage) EffectType() Type     { return TypeUpdateMessage }
func (Typing) EffectType() Type            { return TypeTyping }
func (LoadEarlier) EffectType() Type       { return TypeLoadEarlier }
func (FurtherExpected) EffectType() Type   { return TypeFurtherExpected }
func (ExecuteCommand) EffectType() Type    { return TypeExecuteCommand }
func (BackpackInfoAdded) EffectType() Type { return TypeBackpackInfoAdded }
func (MarkRead) EffectType() Type          { return TypeMarkRead }
func (VariableValue) EffectType() Type     { return TypeVariableValue }
func (Initialized) EffectType() Type       { return TypeInitialized }
func (CloseComponent) EffectType() Type    { return TypeCloseComponent }
