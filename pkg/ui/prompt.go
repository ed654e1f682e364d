package ui

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"
)

// Prompter asks the user questions.
type Prompter interface {
	Input(message, defaultValue string) (string, error)
	Password(message string) (string, error)
	Select(message string, options []string, defaultOption string) (string, error)
	Confirm(message string, defaultValue bool) (bool, error)
}

// Terminal prompts interactively with pterm.
type Terminal struct{}

// NewTerminal creates an interactive prompter.
func NewTerminal() *Terminal {
	return &Terminal{}
}

func (Terminal) Input(message, defaultValue string) (string, error) {
	p := pterm.DefaultInteractiveTextInput
	if defaultValue != "" {
		p = *p.WithDefaultValue(defaultValue)
	}
	return p.Show(message)
}

func (Terminal) Password(message string) (string, error) {
	return pterm.DefaultInteractiveTextInput.WithMask("*").Show(message)
}

func (Terminal) Select(message string, options []string, defaultOption string) (string, error) {
	p := pterm.DefaultInteractiveSelect.WithOptions(options).WithMaxHeight(10)
	if defaultOption != "" {
		p = p.WithDefaultOption(defaultOption)
	}
	return p.Show(message)
}

func (Terminal) Confirm(message string, defaultValue bool) (bool, error) {
	return pterm.DefaultInteractiveConfirm.WithDefaultValue(defaultValue).Show(message)
}

// PasswordWithConfirmation asks for a password twice until both entries
// match.
func PasswordWithConfirmation(p Prompter, out io.Writer, message, confirmMessage string) (string, error) {
	for {
		first, err := p.Password(message)
		if err != nil {
			return "", err
		}
		second, err := p.Password(confirmMessage)
		if err != nil {
			return "", err
		}
		if first == second {
			return first, nil
		}
		fmt.Fprintln(out, "Passwords do not match. Please try again.")
	}
}
