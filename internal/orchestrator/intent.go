package orchestrator

import (
	"strings"

	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
)

// Verb sets used by intent classification. Latin-script verbs are matched as
// whole tokens; CJK verbs as substrings, since CJK input has no word breaks.
var (
	dialogueVerbs = map[string]bool{
		"say": true, "ask": true, "tell": true, "talk": true,
		"greet": true, "whisper": true, "shout": true, "answer": true,
		"reply": true, "call": true, "speak": true,
	}
	dialogueVerbsCJK = []string{"说", "问", "告诉", "喊", "聊", "回答"}

	explorationVerbs = map[string]bool{
		"look": true, "search": true, "examine": true, "explore": true,
		"inspect": true, "read": true, "study": true, "investigate": true,
		"watch": true, "listen": true, "check": true,
	}
	explorationVerbsCJK = []string{"看", "搜", "找", "调查", "检查", "观察", "探索"}
)

// classifyIntent buckets a player action into one of the input kinds:
// dialogue, exploration, or action. The classification only steers which
// responders run and how the pacing ratio moves, so a coarse verb heuristic
// is enough.
func classifyIntent(action string) string {
	lowered := strings.ToLower(action)

	if strings.HasPrefix(lowered, `"`) || strings.HasPrefix(lowered, "“") {
		return responder.KindDialogue
	}
	for _, v := range dialogueVerbsCJK {
		if strings.Contains(action, v) {
			return responder.KindDialogue
		}
	}
	for _, v := range explorationVerbsCJK {
		if strings.Contains(action, v) {
			return responder.KindExploration
		}
	}

	for _, tok := range strings.Fields(lowered) {
		tok = strings.Trim(tok, `.,!?:;"'`)
		if dialogueVerbs[tok] {
			return responder.KindDialogue
		}
		if explorationVerbs[tok] {
			return responder.KindExploration
		}
	}
	return responder.KindAction
}
