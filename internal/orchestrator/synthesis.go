package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Rene-Zhou/Astinus-sub001/internal/responder"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/gating"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/knowledge"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/pacing"
	"github.com/Rene-Zhou/Astinus-sub001/internal/responder/voice"
)

// synthesize merges responder envelopes into one turn response. Envelope
// contents are concatenated in fixed priority order: check outcome (when
// resuming), gating reasoning, knowledge context, then voice responses in
// stable npc order. Failed envelopes are excluded from the narrative but
// recorded in Diagnostics. Pacing output never joins the narrative; it is
// surfaced separately as advice.
//
// gEnv is nil when the turn is resuming from a check (gating already ran
// before the suspension).
func synthesize(gEnv *responder.Envelope, envelopes map[string]responder.Envelope, res *resumed, lang string) *TurnResponse {
	resp := &TurnResponse{Diagnostics: make(map[string]string)}
	var parts []string

	appendPart := func(name string, env responder.Envelope) {
		if !env.Success {
			resp.Diagnostics[name] = env.Err
			return
		}
		if env.Content != "" {
			parts = append(parts, env.Content)
		}
	}

	if res != nil {
		parts = append(parts, narrateOutcome(res, lang))
	}
	if gEnv != nil {
		appendPart(gating.Name, *gEnv)
	}
	if env, ok := envelopes[knowledge.Name]; ok {
		appendPart(knowledge.Name, env)
	}

	var voices []string
	for name := range envelopes {
		if strings.HasPrefix(name, voice.NamePrefix) {
			voices = append(voices, name)
		}
	}
	sort.Strings(voices)
	for _, name := range voices {
		env := envelopes[name]
		if env.Success && env.Content != "" && env.Metadata[voice.MetaNPCName] != "" {
			env.Content = env.Metadata[voice.MetaNPCName] + ": " + env.Content
		}
		appendPart(name, env)
	}

	if env, ok := envelopes[pacing.Name]; ok {
		if env.Success {
			resp.PacingAdvice = env.Content
		} else {
			resp.Diagnostics[pacing.Name] = env.Err
		}
	}

	resp.Narrative = strings.Join(parts, "\n\n")
	return resp
}

// narrateOutcome renders the resolved check as the turn's opening line.
func narrateOutcome(res *resumed, lang string) string {
	if lang == "zh" {
		var tier string
		switch res.result.Outcome {
		case responder.OutcomeCriticalSuccess:
			tier = "大成功"
		case responder.OutcomeSuccess:
			tier = "成功"
		case responder.OutcomeFailure:
			tier = "失败"
		case responder.OutcomeCriticalFailure:
			tier = "大失败"
		}
		return fmt.Sprintf("检定结果为 %d：%s。", res.result.Total, tier)
	}

	var tier string
	switch res.result.Outcome {
	case responder.OutcomeCriticalSuccess:
		tier = "a critical success"
	case responder.OutcomeSuccess:
		tier = "a success"
	case responder.OutcomeFailure:
		tier = "a failure"
	case responder.OutcomeCriticalFailure:
		tier = "a critical failure"
	}
	if res.spec != nil && res.spec.Intention != "" {
		return fmt.Sprintf("The roll for %q comes up %d: %s.", res.spec.Intention, res.result.Total, tier)
	}
	return fmt.Sprintf("The roll comes up %d: %s.", res.result.Total, tier)
}
