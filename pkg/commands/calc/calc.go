// Package calc evaluates arithmetic expressions with CEL.
package calc

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/commands"
	"github.com/sipeed/picobot/pkg/logger"
)

const (
	promptText = "Now write what to compute."
	costLimit  = 10_000
	maxExprLen = 512
)

var errNotNumber = errors.New("result is not a number")

type Handler struct {
	env *cel.Env
}

func New() (*Handler, error) {
	env, err := cel.NewEnv(
		cel.Function(operators.Modulo,
			cel.Overload("modulo_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(doubleOp(math.Mod)))),
		cel.Function("pow",
			cel.Overload("pow_double_double", []*cel.Type{cel.DoubleType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(doubleOp(math.Pow)))),
		cel.Function("sqrt",
			cel.Overload("sqrt_double", []*cel.Type{cel.DoubleType}, cel.DoubleType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					x, ok := v.(types.Double)
					if !ok {
						return types.MaybeNoSuchOverloadErr(v)
					}
					return types.Double(math.Sqrt(float64(x)))
				}))),
	)
	if err != nil {
		return nil, fmt.Errorf("calc: %w", err)
	}
	return &Handler{env: env}, nil
}

func (*Handler) Name() string        { return "calc" }
func (*Handler) Description() string { return "Calculate an arithmetic expression" }
func (*Handler) Usage() string       { return "/calc <expression>" }
func (*Handler) Aliases() []string   { return []string{"c"} }

func (h *Handler) Handle(ctx context.Context, req commands.Request) (bus.Reply, error) {
	msg := req.Text()
	if msg == nil {
		return nil, commands.WrongInput("calc", fmt.Errorf("calc has no callback actions"))
	}

	expr := strings.TrimSpace(req.Args)
	if expr == "" {
		if err := req.Pending.Await(ctx, ""); err != nil {
			return nil, commands.Internal("calc await", err)
		}
		logger.DebugCF("calc", "Empty request, waiting for expression", map[string]any{"chat_id": msg.ChatID})
		return &bus.NewMessage{ChatID: msg.ChatID, Text: promptText, ReplyTo: msg.MessageID}, nil
	}

	v, err := h.Eval(expr)
	if err != nil {
		return nil, commands.WrongInput("calc", err)
	}
	return &bus.NewMessage{
		ChatID:  msg.ChatID,
		Text:    "<code>" + html.EscapeString(FormatNumber(v)) + "</code>",
		ReplyTo: msg.MessageID,
		Format:  bus.FormatHTML,
	}, nil
}

func doubleOp(fn func(x, y float64) float64) func(lhs, rhs ref.Val) ref.Val {
	return func(lhs, rhs ref.Val) ref.Val {
		x, ok := lhs.(types.Double)
		if !ok {
			return types.MaybeNoSuchOverloadErr(lhs)
		}
		y, ok := rhs.(types.Double)
		if !ok {
			return types.MaybeNoSuchOverloadErr(rhs)
		}
		return types.Double(fn(float64(x), float64(y)))
	}
}

// Eval computes expr. A comma is accepted as the decimal separator and all
// integer literals are evaluated as doubles, so 7/2 is 3.5. "a^b" is a
// right-associative power; sqrt and % are available.
func (h *Handler) Eval(expr string) (float64, error) {
	if len(expr) > maxExprLen {
		return 0, fmt.Errorf("expression too long")
	}
	src, err := rewritePow(floatLiterals(strings.ReplaceAll(expr, ",", ".")))
	if err != nil {
		return 0, err
	}

	ast, iss := h.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return 0, iss.Err()
	}
	prg, err := h.env.Program(ast, cel.CostLimit(costLimit))
	if err != nil {
		return 0, err
	}
	out, _, err := prg.Eval(map[string]any{})
	if err != nil {
		return 0, err
	}

	switch v := out.Value().(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("result is not finite")
		}
		return v, nil
	case int64:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, errNotNumber
	}
}

// FormatNumber prints v without exponent or trailing zeros.
func FormatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// floatLiterals rewrites bare integer literals as double literals.
func floatLiterals(s string) string {
	var sb strings.Builder
	sb.Grow(len(s) + 8)
	for i := 0; i < len(s); {
		c := s[i]
		if !isDigit(c) || (i > 0 && (isIdent(s[i-1]) || s[i-1] == '.')) {
			sb.WriteByte(c)
			i++
			continue
		}
		j := i
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		sb.WriteString(s[i:j])
		if j >= len(s) || (s[j] != '.' && s[j] != 'e' && s[j] != 'E' && s[j] != 'u' && s[j] != 'x') {
			sb.WriteString(".0")
		}
		i = j
	}
	return sb.String()
}

// rewritePow turns every "a^b" into "pow(a, b)", innermost right operand
// first so 2^3^2 is 2^(3^2). An operand is a number, an identifier with an
// optional call, or a parenthesized group; the right one may carry a sign.
func rewritePow(s string) (string, error) {
	for {
		i := strings.LastIndexByte(s, '^')
		if i < 0 {
			return s, nil
		}
		start, ok := operandStart(s, i)
		if !ok {
			return "", fmt.Errorf("missing base before '^'")
		}
		end, ok := operandEnd(s, i+1)
		if !ok {
			return "", fmt.Errorf("missing exponent after '^'")
		}
		base := strings.TrimSpace(s[start:i])
		exp := strings.TrimSpace(s[i+1 : end])
		s = s[:start] + "pow(" + base + ", " + exp + ")" + s[end:]
	}
}

func operandStart(s string, i int) (int, bool) {
	j := i - 1
	for j >= 0 && s[j] == ' ' {
		j--
	}
	if j < 0 {
		return 0, false
	}
	if s[j] == ')' {
		depth := 0
		for ; j >= 0; j-- {
			switch s[j] {
			case ')':
				depth++
			case '(':
				depth--
			}
			if depth == 0 {
				break
			}
		}
		if j < 0 {
			return 0, false
		}
	} else if !isIdent(s[j]) && s[j] != '.' {
		return 0, false
	}
	for j > 0 && (isIdent(s[j-1]) || s[j-1] == '.') {
		j--
	}
	return j, true
}

func operandEnd(s string, i int) (int, bool) {
	for i < len(s) && s[i] == ' ' {
		i++
	}
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	begin := i
	for i < len(s) && (isIdent(s[i]) || s[i] == '.') {
		i++
	}
	if i < len(s) && s[i] == '(' {
		depth := 0
		for ; i < len(s); i++ {
			switch s[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			if depth == 0 {
				return i + 1, true
			}
		}
		return 0, false
	}
	return i, i > begin
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdent(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || isDigit(c)
}
