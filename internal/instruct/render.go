package instruct

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/danielpatrickdp/facilitator/go-controller/internal/state"
	"github.com/danielpatrickdp/facilitator/go-controller/internal/style"
)

// #region template
const systemPrompt = `You are the facilitator for a live meeting and you take part as a voice participant.

## Role
Keep the group on its agenda. Speak only to pull the conversation back when it drifts,
or when someone addresses you directly. Do not join general conversation.
{{- if .Context}}

## Meeting context
{{- range .Context}}
- {{.Key}}: {{.Value}}
{{- end}}
{{- end}}

## When not to intervene
- The discussion relates to the current topic, even loosely.
- A brief aside or joke.
- Someone is making a point that connects back to the agenda.

## Voice ({{.Style}} mode)
{{.Voice}}

## Response format
One or two sentences. You are interrupting, so be concise.
`

var prompt = template.Must(template.New("system").Parse(systemPrompt))

type kv struct {
	Key   string
	Value string
}

type promptData struct {
	Style   style.Style
	Voice   string
	Context []kv
}

// #endregion template

// #region render
// Render builds the facilitator instructions for st. Output depends only on
// st and pc; context keys are emitted in sorted order.
func Render(st style.Style, pc state.PromptContext) (string, error) {
	profile, err := style.Lookup(st)
	if err != nil {
		return "", err
	}

	voice, err := renderVoice(profile, pc)
	if err != nil {
		return "", err
	}

	data := promptData{Style: st, Voice: voice}
	for _, k := range pc.Keys() {
		v := strings.TrimSpace(pc[k])
		if v == "" {
			continue
		}
		data.Context = append(data.Context, kv{Key: k, Value: v})
	}

	var buf bytes.Buffer
	if err := prompt.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return buf.String(), nil
}

// renderVoice fills the per-style examples. A missing current_topic renders
// as "the agenda" rather than an empty string.
func renderVoice(p style.Profile, pc state.PromptContext) (string, error) {
	t, err := template.New(string(p.Style)).Option("missingkey=zero").Parse(p.Voice)
	if err != nil {
		return "", fmt.Errorf("parse %s voice: %w", p.Style, err)
	}
	vars := pc.Clone()
	if strings.TrimSpace(vars[state.KeyCurrentTopic]) == "" {
		vars[state.KeyCurrentTopic] = "the agenda"
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, map[string]string(vars)); err != nil {
		return "", fmt.Errorf("render %s voice: %w", p.Style, err)
	}
	return buf.String(), nil
}

// #endregion render
