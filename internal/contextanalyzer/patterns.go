package contextanalyzer

import "regexp"

func compilePatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile("(?i)"+e))
	}
	return out
}

// standalonePatterns and contextDependentPatterns are ported word-for-word
// in semantics from `context_analyzer.py`'s two pattern lists (§4.4
// Algorithm step 2, SPEC_FULL.md supplemented features).
var standalonePatterns = compilePatterns(
	`\b(weather|temperature|temp|forecast|rain|snow|humidity|wind)\b`,
	`\b(time|date|today|tomorrow|yesterday|now|current)\b`,
	`\b(calculate|compute|solve|math|equation|\+|\-|\*|/|=)\b`,
	`\b(what is|who is|define|explain|meaning|definition)\b`,
	`\b(how to|how do|tell me|show me|find|search)\b`,
	`\b(convert|translate|summarize|list|create|generate)\b`,
)

var contextDependentPatterns = compilePatterns(
	`\b(that|this|it|they|them|earlier|before|previous|above|mentioned)\b`,
	`\b(also|additionally|furthermore|moreover|and|but|however|though)\b`,
	`\b(compared to|versus|vs|different from|similar to|like that)\b`,
	`\b(more about|details about|expand on|continue|follow up)\b`,
)

// standaloneInterruptionPatterns detect a clear standalone question
// breaking into an ongoing conversation (§4.4 step 6, second clause).
var standaloneInterruptionPatterns = compilePatterns(
	`\b(weather|temperature|time|date|calculate|math|convert|translate)\b`,
	`\b(what is|who is|define|explain|meaning)\b`,
	`\b(how to|how do|show me|tell me how)\b`,
)

// conversationIndicators are the lowercase substrings `context_analyzer.py`
// checks for to decide whether recent history shows an "ongoing
// conversation" (§4.4 step 6, first clause).
var conversationIndicators = []string{
	"that", "this", "it", "they", "also", "furthermore", "however",
	"what about", "tell me more", "expand on", "continue", "additionally",
}
