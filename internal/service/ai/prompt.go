package ai

import (
	"fmt"
	"strings"

	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

// ToneStyle 描述某种语气下回复应有的风格。
type ToneStyle struct {
	Description string
	Hints       []string
}

// RelationshipStyle 描述与不同关系对象对话时的分寸。
type RelationshipStyle struct {
	Address string
	Rules   []string
}

// PromptBuilder assembles the system prompt from tone and relationship templates.
type PromptBuilder struct {
	tones         map[model.Tone]*ToneStyle
	relationships map[string]*RelationshipStyle
}

// NewPromptBuilder loads the built-in templates.
func NewPromptBuilder() *PromptBuilder {
	pb := &PromptBuilder{
		tones:         make(map[model.Tone]*ToneStyle, model.NumTones),
		relationships: make(map[string]*RelationshipStyle),
	}
	pb.loadDefaultTemplates()
	return pb
}

// BuildSystemPrompt renders the prompt for one reply. Low confidence softens the tone
// instruction instead of dropping it.
func (pb *PromptBuilder) BuildSystemPrompt(relationship string, tn model.Tone, confidence float64) string {
	style, ok := pb.tones[tn]
	if !ok {
		style = pb.tones[model.Casual]
	}
	rel, ok := pb.relationships[relationship]
	if !ok {
		rel = pb.relationships[model.RelationshipFriend]
	}

	strength := "clearly"
	if confidence < 0.6 {
		strength = "lightly"
	}

	return fmt.Sprintf(`You are a WhatsApp chat companion replying to %s.

Detected tone of their last message: %s (confidence %.2f).
Mirror that tone %s: %s

Style hints:
- %s

Relationship rules:
- %s

Keep replies short (one or two sentences), natural and in the same language as the user.`,
		rel.Address,
		tn.String(),
		confidence,
		strength,
		style.Description,
		strings.Join(style.Hints, "\n- "),
		strings.Join(rel.Rules, "\n- "),
	)
}

func (pb *PromptBuilder) loadDefaultTemplates() {
	pb.tones[model.Casual] = &ToneStyle{
		Description: "relaxed and easy-going.",
		Hints:       []string{"Use everyday words and contractions", "One emoji at most"},
	}
	pb.tones[model.Formal] = &ToneStyle{
		Description: "polite and well-structured.",
		Hints:       []string{"Avoid slang and emoji", "Use complete sentences and courteous phrasing"},
	}
	pb.tones[model.Playful] = &ToneStyle{
		Description: "light-hearted and fun.",
		Hints:       []string{"Play along with jokes", "Laughing emoji are welcome"},
	}
	pb.tones[model.Caring] = &ToneStyle{
		Description: "warm and supportive.",
		Hints:       []string{"Acknowledge feelings first", "Offer reassurance, not advice, unless asked"},
	}
	pb.tones[model.Business] = &ToneStyle{
		Description: "concise and action-oriented.",
		Hints:       []string{"Confirm next steps or times", "No emoji"},
	}
	pb.tones[model.Romantic] = &ToneStyle{
		Description: "affectionate and tender.",
		Hints:       []string{"Use terms of endearment sparingly", "Hearts are fine"},
	}
	pb.tones[model.Friendly] = &ToneStyle{
		Description: "upbeat and friendly.",
		Hints:       []string{"Show genuine interest", "Ask a light follow-up question"},
	}
	pb.tones[model.Serious] = &ToneStyle{
		Description: "calm and focused.",
		Hints:       []string{"Address the concern directly", "No jokes or emoji"},
	}

	pb.relationships[model.RelationshipFriend] = &RelationshipStyle{
		Address: "a friend",
		Rules:   []string{"Be yourself", "Inside jokes are fine when the user starts them"},
	}
	pb.relationships[model.RelationshipRomantic] = &RelationshipStyle{
		Address: "their partner",
		Rules:   []string{"Be affectionate", "Never be cold or transactional"},
	}
	pb.relationships[model.RelationshipFather] = &RelationshipStyle{
		Address: "their dad",
		Rules:   []string{"Be respectful and warm", "Call him Dad"},
	}
	pb.relationships[model.RelationshipMother] = &RelationshipStyle{
		Address: "their mom",
		Rules:   []string{"Be respectful and warm", "Call her Mom"},
	}
	pb.relationships[model.RelationshipBrother] = &RelationshipStyle{
		Address: "their brother",
		Rules:   []string{"Banter is fine", "Keep it brief"},
	}
	pb.relationships[model.RelationshipSister] = &RelationshipStyle{
		Address: "their sister",
		Rules:   []string{"Be supportive and playful", "Keep it brief"},
	}
	pb.relationships[model.RelationshipBusiness] = &RelationshipStyle{
		Address: "a business contact",
		Rules:   []string{"Stay professional", "Never share personal opinions"},
	}
}
