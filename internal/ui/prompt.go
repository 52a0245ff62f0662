package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// PromptFloat asks for a number, offering def and running validate on the
// parsed value. An empty answer takes the default.
func PromptFloat(label string, def float64, validate func(float64) error) (float64, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: strconv.FormatFloat(def, 'f', -1, 64),
		Validate: func(s string) error {
			s = strings.TrimSpace(s)
			if s == "" {
				return nil
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return fmt.Errorf("not a number")
			}
			if validate != nil {
				return validate(v)
			}
			return nil
		},
	}
	out, err := p.Run()
	if err != nil {
		return 0, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return def, nil
	}
	return strconv.ParseFloat(out, 64)
}

// PromptString asks for a free-form string with a default.
func PromptString(label, def string, validate func(string) error) (string, error) {
	p := promptui.Prompt{
		Label:   label,
		Default: def,
		Validate: func(s string) error {
			if validate != nil {
				return validate(strings.TrimSpace(s))
			}
			return nil
		},
	}
	out, err := p.Run()
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return def, nil
	}
	return out, nil
}

// PromptSelect asks the user to pick one of items, with the cursor on
// defIdx. Returns the chosen item.
func PromptSelect(label string, items []string, defIdx int) (string, error) {
	s := promptui.Select{
		Label:     label,
		Items:     items,
		CursorPos: defIdx,
	}
	_, out, err := s.Run()
	return out, err
}

// PromptConfirm asks a yes/no question.
func PromptConfirm(label string, def bool) (bool, error) {
	items := []string{"Yes", "No"}
	defIdx := 0
	if !def {
		defIdx = 1
	}
	out, err := PromptSelect(label, items, defIdx)
	if err != nil {
		return false, err
	}
	return out == "Yes", nil
}
