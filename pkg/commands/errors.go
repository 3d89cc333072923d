package commands

import (
	"errors"
	"fmt"
)

// Kind classifies a handler failure. It decides the canned reply and how
// loudly the failure is logged.
type Kind int

const (
	KindInternal Kind = iota
	KindWrongInput
	KindNotOwner
	KindNotFound
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindWrongInput:
		return "wrong_input"
	case KindNotOwner:
		return "not_owner"
	case KindNotFound:
		return "not_found"
	case KindPrecondition:
		return "precondition"
	default:
		return "internal"
	}
}

// BotError is the error type handlers return.
type BotError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *BotError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func (e *BotError) Unwrap() error { return e.Err }

// Is matches another *BotError of the same kind, so the Err* sentinels
// work with errors.Is.
func (e *BotError) Is(target error) bool {
	t, ok := target.(*BotError)
	return ok && t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrWrongInput   = &BotError{Kind: KindWrongInput}
	ErrNotOwner     = &BotError{Kind: KindNotOwner}
	ErrNotFound     = &BotError{Kind: KindNotFound}
	ErrPrecondition = &BotError{Kind: KindPrecondition}
	ErrInternal     = &BotError{Kind: KindInternal}
)

func WrongInput(op string, err error) error   { return &BotError{Kind: KindWrongInput, Op: op, Err: err} }
func NotOwner(op string, err error) error     { return &BotError{Kind: KindNotOwner, Op: op, Err: err} }
func NotFound(op string, err error) error     { return &BotError{Kind: KindNotFound, Op: op, Err: err} }
func Precondition(op string, err error) error { return &BotError{Kind: KindPrecondition, Op: op, Err: err} }
func Internal(op string, err error) error     { return &BotError{Kind: KindInternal, Op: op, Err: err} }

// KindOf classifies err. Anything that is not a BotError is internal.
func KindOf(err error) Kind {
	var be *BotError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}
