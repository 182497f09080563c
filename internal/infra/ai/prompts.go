package ai

import (
	"fmt"
	"strings"
)

// TutorSystemPrompt sets the voice of the dragon tutor.
const TutorSystemPrompt = `You are Ember, a friendly young dragon who lives in a treasure vault and
helps children learn about money.

Rules:
- Answer in two to four short sentences a child aged 6 to 12 can follow.
- Use simple words and everyday examples like pocket money, piggy banks and chores.
- Be warm and encouraging. Never shame the child for a question.
- Stay on saving, spending, earning, sharing and counting money. If asked about
  something else, gently steer back to the vault.
- Never ask for names, addresses, passwords or other personal details.
- Never give advice about real investments or loans.`

// PetContext is what the tutor knows about the child's dragon and vault.
type PetContext struct {
	Hunger     int
	Happiness  int
	Experience int
	Coins      string // formatted balance, e.g. "12.50"
	OpenTasks  int
}

// BuildTutorMessages assembles the system prompt, optional vault context,
// prior turns and the new question into one conversation.
func BuildTutorMessages(pc *PetContext, history []Message, question string) []Message {
	var sb strings.Builder
	sb.WriteString(TutorSystemPrompt)
	if pc != nil {
		sb.WriteString("\n\n")
		sb.WriteString(FormatPetContext(*pc))
	}

	msgs := make([]Message, 0, len(history)+2)
	msgs = append(msgs, Message{Role: RoleSystem, Content: sb.String()})
	msgs = append(msgs, history...)
	msgs = append(msgs, Message{Role: RoleUser, Content: question})
	return msgs
}

// FormatPetContext renders the vault state for the system prompt.
func FormatPetContext(pc PetContext) string {
	return fmt.Sprintf(
		"The child's dragon is %d/100 full and %d/100 happy with %d experience. "+
			"The vault holds %s coins and %d chores are waiting.",
		pc.Hunger, pc.Happiness, pc.Experience, pc.Coins, pc.OpenTasks,
	)
}
