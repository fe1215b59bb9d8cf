package migrations

// Action selects the direction of a migration file.
type Action string

const (
	ActionDo   Action = "do"
	ActionUndo Action = "undo"
)

func (a Action) String() string {
	if a == ActionUndo {
		return "revert"
	}
	return "apply"
}

// Entry is one catalog version with its forward and optional reverse file.
// Version keeps the textual prefix as named on disk; Number is used for ordering.
type Entry struct {
	Number  int
	Version string
	Title   string
	Do      string
	Undo    string
}

// File returns the file name for action, or "" when absent.
func (e Entry) File(action Action) string {
	if action == ActionUndo {
		return e.Undo
	}
	return e.Do
}
