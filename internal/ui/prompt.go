package ui

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

// Prompter asks the user a yes/no question. The orchestrator depends on
// this interface so tests can script responses.
type Prompter interface {
	Confirm(question string) (bool, error)
}

// ConfirmPrompter is the interactive terminal prompter.
type ConfirmPrompter struct{}

// NewConfirmPrompter creates the default interactive prompter.
func NewConfirmPrompter() *ConfirmPrompter {
	return &ConfirmPrompter{}
}

// Confirm shows a yes/no form and returns the answer.
func (p *ConfirmPrompter) Confirm(question string) (bool, error) {
	var confirmed bool
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(question).
			Affirmative("Yes").
			Negative("No").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return confirmed, nil
}
