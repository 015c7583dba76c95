package bumd

// Action names one step of the user-visible progress trail.
type Action string

const (
	ActionDir   Action = "DIR"
	ActionLink  Action = "LINK"
	ActionFile  Action = "FILE"
	ActionHash  Action = "HASH"
	ActionReuse Action = "REUSE"
	ActionSend  Action = "SEND"
	ActionSkip  Action = "SKIP"
)

// Progress receives one event per step as the backup or restore proceeds.
// Implementations must write unbuffered so a failure leaves a readable trail.
type Progress interface {
	Report(action Action, path string)
}

// NopProgress discards all progress events.
type NopProgress struct{}

func (NopProgress) Report(Action, string) {}
