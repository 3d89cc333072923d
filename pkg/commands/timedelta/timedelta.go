// Package timedelta answers "how long until" questions and shifts dates by
// a number of days.
package timedelta

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sipeed/picobot/pkg/bus"
	"github.com/sipeed/picobot/pkg/commands"
)

const (
	dateLayout     = "02.01.2006"
	dateTimeLayout = "02.01.2006 15:04:05"
	timeLayout     = "15:04:05"
)

var (
	dateTimeRe = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4} \d{2}:\d{2}:\d{2}`)
	timeRe     = regexp.MustCompile(`\d{2}:\d{2}(:\d{2})?`)
	dateRe     = regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`)
	shiftRe    = regexp.MustCompile(`^\s*([+-]?\d+)\s*$`)
)

type Handler struct {
	loc *time.Location
	now func() time.Time
}

// New creates the handler. A nil loc means time.Local.
func New(loc *time.Location) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{loc: loc, now: time.Now}
}

func (*Handler) Name() string        { return "timedelta" }
func (*Handler) Aliases() []string   { return []string{"td"} }
func (*Handler) Description() string { return "Time left until a date, or a date shifted by days" }
func (*Handler) Usage() string {
	return "/timedelta dd.mm.yyyy [hh:mm:ss] | hh:mm[:ss] | dd.mm.yyyy ±days"
}

func (h *Handler) Handle(_ context.Context, req commands.Request) (bus.Reply, error) {
	msg := req.Text()
	if msg == nil {
		return nil, commands.WrongInput("timedelta", fmt.Errorf("no callback actions"))
	}
	text, err := h.Compute(req.Args)
	if err != nil {
		return nil, commands.WrongInput("timedelta", err)
	}
	return &bus.NewMessage{ChatID: msg.ChatID, Text: text, ReplyTo: msg.MessageID, Format: bus.FormatHTML}, nil
}

// Compute evaluates one request line and returns the reply text.
func (h *Handler) Compute(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("empty input")
	}
	now := h.now().In(h.loc)

	if strings.Contains(input, ":") {
		if strings.Contains(input, ".") {
			found := dateTimeRe.FindAllString(input, 2)
			if len(found) == 0 {
				return "", fmt.Errorf("no date and time in %q", input)
			}
			first, err := time.ParseInLocation(dateTimeLayout, found[0], h.loc)
			if err != nil {
				return "", err
			}
			second := now
			if len(found) > 1 {
				if second, err = time.ParseInLocation(dateTimeLayout, found[1], h.loc); err != nil {
					return "", err
				}
			}
			return until(first.Format(dateTimeLayout), first, second), nil
		}

		found := timeRe.FindString(input)
		if found == "" {
			return "", fmt.Errorf("no time in %q", input)
		}
		if len(found) == len("15:04") {
			found += ":00"
		}
		clock, err := time.ParseInLocation(timeLayout, found, h.loc)
		if err != nil {
			return "", err
		}
		first := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, h.loc)
		return until(first.Format(dateTimeLayout), first, now), nil
	}

	loc := dateRe.FindStringIndex(input)
	if loc == nil {
		return "", fmt.Errorf("no date in %q", input)
	}
	first, err := time.ParseInLocation(dateLayout, input[loc[0]:loc[1]], h.loc)
	if err != nil {
		return "", err
	}
	rest := input[loc[1]:]

	if m := dateRe.FindString(rest); m != "" {
		second, err := time.ParseInLocation(dateLayout, m, h.loc)
		if err != nil {
			return "", err
		}
		return until(first.Format(dateLayout), first, second), nil
	}
	if strings.TrimSpace(rest) != "" {
		m := shiftRe.FindStringSubmatch(rest)
		if m == nil {
			return "", fmt.Errorf("bad day shift %q", rest)
		}
		days, err := strconv.Atoi(m[1])
		if err != nil {
			return "", err
		}
		shifted := first.AddDate(0, 0, days)
		return fmt.Sprintf("%s <b>%+d</b> = <b>%s</b>", first.Format(dateLayout), days, shifted.Format(dateLayout)), nil
	}
	return until(first.Format(dateLayout), first, now), nil
}

func until(label string, target, from time.Time) string {
	return fmt.Sprintf("Until %s:\n<b>%s</b>", label, FormatDelta(target.Sub(from)))
}

// FormatDelta renders d as days, hours, minutes and seconds. A negative
// duration is prefixed with a minus sign.
func FormatDelta(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	return fmt.Sprintf("%s%d d %d h %d min %d s", sign, days, hours, minutes, seconds)
}
