package cmd

import (
	"strings"

	"github.com/charmbracelet/huh"
)

// filterThreshold enables type-to-filter on lists longer than this.
const filterThreshold = 5

// SelectOption is one entry of a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

func runField(f huh.Field) error {
	return huh.NewForm(huh.NewGroup(f)).WithShowHelp(true).Run()
}

// promptString asks for a line of text. An empty answer returns defaultVal.
// validate, when non-nil, runs on the trimmed answer before it is accepted.
func promptString(title, description, defaultVal string, validate ...func(string) error) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if defaultVal != "" {
		inp = inp.Placeholder(defaultVal)
	}
	if len(validate) > 0 {
		inp = inp.Validate(func(s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				s = defaultVal
			}
			return validate[0](s)
		})
	}
	if err := runField(inp); err != nil {
		return "", err
	}
	if value = strings.TrimSpace(value); value == "" {
		return defaultVal, nil
	}
	return value, nil
}

// promptPassword asks for a value without echoing it.
func promptPassword(title, description string) (string, error) {
	var value string
	inp := huh.NewInput().Title(title).EchoMode(huh.EchoModePassword).Value(&value)
	if description != "" {
		inp = inp.Description(description)
	}
	if err := runField(inp); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// promptSecret asks for a secret, keeping the current value on empty input.
func promptSecret(dst *string, title, description string) error {
	if *dst != "" {
		description = strings.TrimSpace(description + " (leave empty to keep the current value)")
	}
	v, err := promptPassword(title, description)
	if err != nil {
		return err
	}
	if v != "" {
		*dst = v
	}
	return nil
}

// promptSelect shows a single-select list and returns the chosen value.
func promptSelect[T comparable](title string, options []SelectOption[T], defaultIdx int) (T, error) {
	var value T
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(i == defaultIdx)
	}
	sel := huh.NewSelect[T]().Title(title).Options(opts...).Value(&value)
	if len(options) > filterThreshold {
		sel = sel.Filtering(true)
	}
	if err := runField(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptMultiSelect shows a multi-select list and returns every checked value.
func promptMultiSelect[T comparable](title, description string, options []SelectOption[T], preselected []T) ([]T, error) {
	checked := make(map[T]bool, len(preselected))
	for _, v := range preselected {
		checked[v] = true
	}
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(checked[o.Value])
	}

	var values []T
	ms := huh.NewMultiSelect[T]().Title(title).Options(opts...).Value(&values)
	if description != "" {
		ms = ms.Description(description)
	}
	if len(options) > filterThreshold {
		ms = ms.Filtering(true)
	}
	if err := runField(ms); err != nil {
		return nil, err
	}
	return values, nil
}

// promptConfirm asks a yes/no question.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&value)
	if err := runField(c); err != nil {
		return false, err
	}
	return value, nil
}
