package commands

// Speech holds the canned replies sent when a handler fails.
type Speech struct {
	WrongInput     string `json:"wrong_input"`
	UnknownCommand string `json:"unknown_command"`
	NotOwner       string `json:"not_owner"`
	NotFound       string `json:"not_found"`
	Precondition   string `json:"precondition"`
	Internal       string `json:"internal"`
}

func DefaultSpeech() Speech {
	return Speech{
		WrongInput:     "I didn't get that. Try /help.",
		UnknownCommand: "Unknown command. Try /help.",
		NotOwner:       "Sorry, only the owner can do that.",
		NotFound:       "That item no longer exists.",
		Precondition:   "That can't be done right now.",
		Internal:       "Sorry, something went wrong.",
	}
}

// Merge returns s with empty entries filled from DefaultSpeech.
func (s Speech) Merge() Speech {
	d := DefaultSpeech()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&s.WrongInput, d.WrongInput)
	fill(&s.UnknownCommand, d.UnknownCommand)
	fill(&s.NotOwner, d.NotOwner)
	fill(&s.NotFound, d.NotFound)
	fill(&s.Precondition, d.Precondition)
	fill(&s.Internal, d.Internal)
	return s
}

// For returns the reply for a failure kind.
func (s Speech) For(k Kind) string {
	switch k {
	case KindWrongInput:
		return s.WrongInput
	case KindNotOwner:
		return s.NotOwner
	case KindNotFound:
		return s.NotFound
	case KindPrecondition:
		return s.Precondition
	default:
		return s.Internal
	}
}
