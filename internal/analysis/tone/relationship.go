package tone

import (
	"strings"

	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
)

var relationshipHints = []struct {
	relationship string
	keywords     []string
}{
	{model.RelationshipRomantic, []string{"love", "baby", "babe", "honey"}},
	{model.RelationshipFather, []string{"dad", "father", "papa"}},
	{model.RelationshipMother, []string{"mom", "mother", "mama"}},
	{model.RelationshipBrother, []string{"bro", "brother"}},
	{model.RelationshipSister, []string{"sis", "sister"}},
	{model.RelationshipBusiness, []string{"work", "office", "meeting"}},
}

// DetectRelationship guesses the relationship from the first message of a new contact.
// The first matching group wins; anything else is treated as a friend.
func DetectRelationship(text string) string {
	lower := strings.ToLower(text)
	for _, h := range relationshipHints {
		if countPresent(lower, h.keywords) > 0 {
			return h.relationship
		}
	}
	return model.RelationshipFriend
}
