package core

import (
	"strconv"
	"strings"
)

// Action is the typed form of a step. Each variant carries only the fields its
// step type uses.
type Action interface {
	Type() StepType
}

type NavigateAction struct{ URL string }

type ClickAction struct{ Selector string }

type InputAction struct {
	Selector string
	Text     string
}

type WaitAction struct{ Seconds int }

type ScreenshotAction struct{ Selector string }

type ScrollAction struct{ Offset int }

type SelectAction struct {
	Selector string
	Value    string
}

func (NavigateAction) Type() StepType   { return StepNavigate }
func (ClickAction) Type() StepType      { return StepClick }
func (InputAction) Type() StepType      { return StepInput }
func (WaitAction) Type() StepType       { return StepWait }
func (ScreenshotAction) Type() StepType { return StepScreenshot }
func (ScrollAction) Type() StepType     { return StepScroll }
func (SelectAction) Type() StepType     { return StepSelect }

// Action decodes the step into its typed variant, enforcing the per-type
// required fields.
func (s Step) Action() (Action, error) {
	selector := strings.TrimSpace(s.Selector)
	value := strings.TrimSpace(s.Value)
	switch s.Type {
	case StepNavigate:
		if value == "" {
			return nil, invalid("value", "navigate step requires a URL")
		}
		return NavigateAction{URL: NormalizeURL(value)}, nil
	case StepClick:
		if selector == "" {
			return nil, invalid("selector", "click step requires a selector")
		}
		return ClickAction{Selector: selector}, nil
	case StepInput:
		if selector == "" {
			return nil, invalid("selector", "input step requires a selector")
		}
		return InputAction{Selector: selector, Text: s.Value}, nil
	case StepWait:
		return WaitAction{Seconds: max(s.WaitSeconds, 1)}, nil
	case StepScreenshot:
		return ScreenshotAction{Selector: strings.TrimSpace(s.CaptureSelector)}, nil
	case StepScroll:
		if value == "" {
			return ScrollAction{}, nil
		}
		offset, err := strconv.Atoi(value)
		if err != nil {
			return nil, invalid("value", "scroll offset %q is not an integer", s.Value)
		}
		return ScrollAction{Offset: offset}, nil
	case StepSelect:
		if selector == "" {
			return nil, invalid("selector", "select step requires a selector")
		}
		if value == "" {
			return nil, invalid("value", "select step requires a value")
		}
		return SelectAction{Selector: selector, Value: value}, nil
	case "":
		return nil, invalid("type", "step type is required")
	default:
		return nil, invalid("type", "unknown step type %q", s.Type)
	}
}

// NormalizeURL prefixes https:// when the URL carries no scheme.
func NormalizeURL(raw string) string {
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.Contains(lower, "://") {
		return raw
	}
	return "https://" + raw
}
