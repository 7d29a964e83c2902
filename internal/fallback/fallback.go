// Package fallback produces the canned assistant replies shown when the
// assistant service cannot be reached. Replies depend only on the input text.
package fallback

import (
	"fmt"
	"strings"
	"unicode"
)

// Category names a family of canned replies.
type Category string

const (
	CategoryGreeting Category = "greeting"
	CategoryCoding   Category = "coding"
	CategoryWriting  Category = "writing"
	CategoryTrip     Category = "trip"
	CategoryGeneral  Category = "general"
)

type rule struct {
	category Category
	// words must match a whole word of the input.
	words []string
	// stems match anywhere in the input.
	stems []string
	reply string
}

// Checked in order; the first match wins.
var rules = []rule{
	{
		category: CategoryGreeting,
		words:    []string{"hi", "hey", "hiya", "yo"},
		stems:    []string{"hello", "greetings", "good morning", "good evening"},
		reply: "Hello! I'm **Lumina AI**. How can I assist you today?\n\n" +
			"I can help with:\n- Writing & content creation\n- Code & debugging\n- Analysis & research\n- Planning & brainstorming",
	},
	{
		category: CategoryCoding,
		stems:    []string{"code", "coding", "python", "javascript", "golang", "debug", "bug", "function", "compile"},
		reply: "Here's an example to get you started:\n\n```python\ndef greet(name):\n    return f\"Hello, {name}! Welcome to Lumina AI.\"\n\nprint(greet(\"Developer\"))\n```\n\n" +
			"Paste your code and I'll help debug or improve it!",
	},
	{
		category: CategoryWriting,
		stems:    []string{"poem", "poetry", "story", "write", "lyrics"},
		reply: "## A Digital Dream\n\nIn circuits deep where data streams flow,\nA spark of thought begins to grow.\n" +
			"Through silicon valleys, vast and wide,\nCreativity and code reside.\n\n*Generated by Lumina AI*",
	},
	{
		category: CategoryTrip,
		stems:    []string{"trip", "travel", "itinerary", "vacation", "italy", "plan"},
		reply: "## Italy Trip Plan\n\n**Day 1-2: Rome**\n- Colosseum & Roman Forum\n- Vatican Museums\n\n" +
			"**Day 3-4: Amalfi Coast**\n- Positano\n- Boat tour to Capri\n\n**Day 5: Florence**\n- Uffizi Gallery\n- Ponte Vecchio\n\n" +
			"> **Tip:** Book trains early for the best prices!",
	},
}

const generalReply = "Great question about **\"%s\"**! Here's my analysis:\n\n" +
	"1. **Understanding**: I've processed your request carefully\n" +
	"2. **Key insight**: This is an interesting area to explore\n" +
	"3. **Suggestion**: I can dive deeper if you provide more context\n\n" +
	"What would you like to know more about?"

// Classify returns the category whose keywords first match text.
func Classify(text string) Category {
	if r, ok := match(text); ok {
		return r.category
	}
	return CategoryGeneral
}

// Reply returns the canned reply for text.
func Reply(text string) string {
	if r, ok := match(text); ok {
		return r.reply
	}
	return fmt.Sprintf(generalReply, strings.TrimSpace(text))
}

func match(text string) (rule, bool) {
	lower := strings.ToLower(text)
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	for _, r := range rules {
		for _, w := range r.words {
			if _, ok := words[w]; ok {
				return r, true
			}
		}
		for _, s := range r.stems {
			if strings.Contains(lower, s) {
				return r, true
			}
		}
	}
	return rule{}, false
}
