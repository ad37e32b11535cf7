package reply

import model "github.com/zhouzirui/z-tone/backend/internal/model/tone"

// Table maps relationship → tone → candidate replies.
type Table map[string]map[model.Tone][]string

const fallbackRelationship = model.RelationshipFriend

var fallbackReply = []string{"Hello!"}

var welcomeReplies = []string{"You're welcome! 😊", "Anytime!", "Happy to help!"}

const questionSuffix = " What would you like to know?"

// DefaultTable 是按关系和语气分组的预置回复。
func DefaultTable() Table {
	return Table{
		model.RelationshipRomantic: {
			model.Casual:   {"Hey love! 😘", "What's up babe?", "Miss you! 💕"},
			model.Caring:   {"I love you too ❤️", "You mean everything to me 💕", "I'm here for you always 😘"},
			model.Playful:  {"You're so silly! 😄", "Haha you're the best! 🤣", "You always make me smile 😊"},
			model.Romantic: {"My heart is yours ❤️", "You're my everything 💕", "I can't wait to see you 😘"},
		},
		model.RelationshipFather: {
			model.Formal: {"Thank you, Dad.", "I appreciate your guidance.", "How are you doing, Dad?"},
			model.Caring: {"I love you too, Dad.", "Thank you for everything.", "You're the best father."},
			model.Casual: {"Hey Dad!", "What's up?", "How's everything?"},
		},
		model.RelationshipMother: {
			model.Formal: {"Thank you, Mom.", "I appreciate you.", "How are you, Mom?"},
			model.Caring: {"I love you too, Mom.", "Thank you for caring.", "You're amazing, Mom."},
			model.Casual: {"Hey Mom!", "What's up?", "How's your day?"},
		},
		model.RelationshipBrother: {
			model.Casual:   {"What's up bro!", "Hey dude!", "Yo! How's it going?"},
			model.Playful:  {"Haha nice one!", "You're crazy man! 😂", "That's hilarious! 🤣"},
			model.Business: {"Sure thing.", "Let me know.", "Sounds good."},
		},
		model.RelationshipSister: {
			model.Casual:  {"Hey sis!", "What's up girl!", "How are you?"},
			model.Playful: {"Haha love it! 😄", "You're the best! 🤣", "So funny! 😂"},
			model.Caring:  {"Love you sis ❤️", "I'm here for you", "You got this! 💪"},
		},
		model.RelationshipFriend: {
			model.Casual:   {"Hey there!", "What's up?", "How's it going?"},
			model.Playful:  {"Haha awesome! 😄", "That's great! 🤣", "You're hilarious! 😂"},
			model.Business: {"Sounds good.", "Let me know.", "Sure thing."},
		},
		model.RelationshipBusiness: {
			model.Formal:   {"Thank you for your message.", "I appreciate your inquiry.", "How may I assist you?"},
			model.Business: {"I'll look into that.", "Let me get back to you.", "That sounds feasible."},
			model.Casual:   {"Thanks for reaching out.", "Got it.", "Sounds good."},
		},
	}
}

// Options returns the candidates for relationship and tone. Unknown relationships use
// the friend set, missing tones use casual, and an empty set yields "Hello!".
func (t Table) Options(relationship string, tn model.Tone) []string {
	byTone, ok := t[relationship]
	if !ok {
		byTone = t[fallbackRelationship]
	}
	if opts := byTone[tn]; len(opts) > 0 {
		return opts
	}
	if opts := byTone[model.Casual]; len(opts) > 0 {
		return opts
	}
	return fallbackReply
}
