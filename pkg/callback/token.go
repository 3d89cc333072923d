// Package callback encodes the compact action tokens carried by inline
// buttons and decodes them when the button comes back from the client.
//
// Wire form: <namespace><code><target>[ p<page>]
//
// Namespaces and codes are short literals. No registered namespace is a
// prefix of another, and codes within a namespace have distinct first
// characters, so the target id needs no delimiter. A bare namespace is the
// list-root action.
package callback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Code selects the action within a namespace.
type Code string

const (
	NamespaceFiles = "fs"

	CodeListRoot Code = ""
	CodeSelect   Code = "L"
	CodeDelete   Code = "D"
	CodeAddFile  Code = "A"
	CodeAddDir   Code = "M"
	CodeOpen     Code = "O"
)

const pageMarker = " p"

// ErrDecode is returned for any token that does not parse.
var ErrDecode = errors.New("callback: malformed action token")

// Action is the decoded form of a token.
type Action struct {
	Namespace string
	Code      Code
	TargetID  int64
	HasTarget bool
	Page      int
	HasPage   bool
}

func ListRoot(namespace string) Action {
	return Action{Namespace: namespace}
}

func Target(namespace string, code Code, id int64) Action {
	return Action{Namespace: namespace, Code: code, TargetID: id, HasTarget: true}
}

func TargetPage(namespace string, code Code, id int64, page int) Action {
	a := Target(namespace, code, id)
	a.Page = page
	a.HasPage = true
	return a
}

// PageIndex is the requested page, 0 when the token carries none.
func (a Action) PageIndex() int {
	if !a.HasPage {
		return 0
	}
	return a.Page
}

func (a Action) String() string {
	return Encode(a)
}

// Encode renders the action as a token. Only representable actions round
// trip: a code needs a non-negative target, a page needs a target.
func Encode(a Action) string {
	var sb strings.Builder
	sb.WriteString(a.Namespace)
	sb.WriteString(string(a.Code))
	if a.HasTarget {
		sb.WriteString(strconv.FormatInt(a.TargetID, 10))
	}
	if a.HasPage {
		sb.WriteString(pageMarker)
		sb.WriteString(strconv.Itoa(a.Page))
	}
	return sb.String()
}

// Codec knows which namespaces and codes exist.
type Codec struct {
	mu         sync.RWMutex
	namespaces map[string][]Code
}

func NewCodec() *Codec {
	return &Codec{namespaces: make(map[string][]Code)}
}

// Register declares a namespace and its action codes. It rejects
// registrations that would make decoding ambiguous.
func (c *Codec) Register(namespace string, codes ...Code) error {
	if namespace == "" {
		return fmt.Errorf("callback: empty namespace")
	}
	if strings.ContainsAny(namespace, "0123456789 ") {
		return fmt.Errorf("callback: namespace %q must not contain digits or spaces", namespace)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for ns := range c.namespaces {
		if strings.HasPrefix(ns, namespace) || strings.HasPrefix(namespace, ns) {
			return fmt.Errorf("callback: namespace %q conflicts with %q", namespace, ns)
		}
	}

	seen := make(map[byte]Code, len(codes))
	for _, code := range codes {
		if code == "" {
			return fmt.Errorf("callback: empty code in namespace %q", namespace)
		}
		if strings.ContainsAny(string(code), "0123456789 ") {
			return fmt.Errorf("callback: code %q must not contain digits or spaces", code)
		}
		if prev, ok := seen[code[0]]; ok {
			return fmt.Errorf("callback: codes %q and %q share a first character", prev, code)
		}
		seen[code[0]] = code
	}

	c.namespaces[namespace] = append([]Code(nil), codes...)
	return nil
}

// Decode parses a token produced by Encode.
func (c *Codec) Decode(token string) (Action, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var (
		ns    string
		codes []Code
		found bool
	)
	for name, cs := range c.namespaces {
		if strings.HasPrefix(token, name) {
			ns, codes, found = name, cs, true
			break
		}
	}
	if !found {
		return Action{}, fmt.Errorf("%w: unknown namespace in %q", ErrDecode, token)
	}

	rest := token[len(ns):]
	if rest == "" {
		return ListRoot(ns), nil
	}

	var code Code
	for _, cd := range codes {
		if strings.HasPrefix(rest, string(cd)) {
			code = cd
			break
		}
	}
	if code == "" {
		return Action{}, fmt.Errorf("%w: unknown action in %q", ErrDecode, token)
	}
	rest = rest[len(code):]

	digits := leadingDigits(rest)
	if digits == "" {
		return Action{}, fmt.Errorf("%w: missing target in %q", ErrDecode, token)
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Action{}, fmt.Errorf("%w: target in %q: %v", ErrDecode, token, err)
	}
	action := Target(ns, code, id)
	rest = rest[len(digits):]

	if rest == "" {
		return action, nil
	}
	if !strings.HasPrefix(rest, pageMarker) {
		return Action{}, fmt.Errorf("%w: trailing data in %q", ErrDecode, token)
	}
	rest = rest[len(pageMarker):]
	pageDigits := leadingDigits(rest)
	if pageDigits == "" || pageDigits != rest {
		return Action{}, fmt.Errorf("%w: bad page in %q", ErrDecode, token)
	}
	page, err := strconv.Atoi(pageDigits)
	if err != nil {
		return Action{}, fmt.Errorf("%w: page in %q: %v", ErrDecode, token, err)
	}
	action.Page = page
	action.HasPage = true
	return action, nil
}

// Namespaces lists registered namespaces.
func (c *Codec) Namespaces() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.namespaces))
	for ns := range c.namespaces {
		out = append(out, ns)
	}
	return out
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
