// Package nlu interprets recognized text against trained sentence templates
// and answers queries on the bus with intents or non-recognitions.
package nlu

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/parley-ai/parley/internal/wire"
)

// Source supplies the training material: sentence templates per intent and
// slot vocabularies referenced by the templates.
type Source interface {
	Sentences(ctx context.Context) (map[string][]string, error)
	Slots(ctx context.Context) (map[string][]string, error)
}

// Recognition is a successful match of text against a trained template.
type Recognition struct {
	IntentName string
	Confidence float64
	Slots      []wire.Slot
}

type compiledTemplate struct {
	intent  string
	pattern *regexp.Regexp
	// groups maps regexp group name to the slot's entity (the slot name in
	// the profile, or the literal alternation for inline groups).
	entities map[string]string
}

// Recognizer matches text against sentence templates. Template grammar:
//
//	turn (on | off){state} the light     inline alternation captured as "state"
//	set ($color){color} lights           reference to the "color" slot vocabulary
//	what [is] the time                   optional word
//
// Matching is whole-utterance, case-insensitive.
type Recognizer struct {
	mu        sync.RWMutex
	templates []compiledTemplate
}

// NewRecognizer returns an untrained recognizer; every input is a
// non-recognition until Train succeeds.
func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

// Train compiles the source's templates, replacing the active set wholesale.
// A template that fails to compile fails the whole run and leaves the
// previous set active.
func (r *Recognizer) Train(ctx context.Context, source Source) error {
	sentences, err := source.Sentences(ctx)
	if err != nil {
		return fmt.Errorf("nlu: load sentences: %w", err)
	}
	slots, err := source.Slots(ctx)
	if err != nil {
		return fmt.Errorf("nlu: load slots: %w", err)
	}

	intents := make([]string, 0, len(sentences))
	for intent := range sentences {
		intents = append(intents, intent)
	}
	sort.Strings(intents)

	var compiled []compiledTemplate
	for _, intent := range intents {
		for _, template := range sentences[intent] {
			ct, err := compile(intent, template, slots)
			if err != nil {
				return fmt.Errorf("nlu: intent %s template %q: %w", intent, template, err)
			}
			compiled = append(compiled, ct)
		}
	}

	r.mu.Lock()
	r.templates = compiled
	r.mu.Unlock()
	return nil
}

// TemplateCount reports the size of the active template set.
func (r *Recognizer) TemplateCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.templates)
}

// Recognize matches text against the active templates. The first matching
// template wins; templates are ordered by intent name, then insertion order.
func (r *Recognizer) Recognize(text string) (Recognition, bool) {
	normalized := normalize(text)
	if normalized == "" {
		return Recognition{}, false
	}

	r.mu.RLock()
	templates := r.templates
	r.mu.RUnlock()

	for _, ct := range templates {
		match := ct.pattern.FindStringSubmatch(normalized)
		if match == nil {
			continue
		}

		var slots []wire.Slot
		for i, name := range ct.pattern.SubexpNames() {
			if name == "" || i >= len(match) || match[i] == "" {
				continue
			}
			slots = append(slots, wire.Slot{
				Entity:     ct.entities[name],
				SlotName:   name,
				Value:      wire.SlotValue{Value: match[i]},
				Confidence: 1,
				RawValue:   match[i],
			})
		}
		return Recognition{IntentName: ct.intent, Confidence: 1, Slots: slots}, true
	}
	return Recognition{}, false
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// compile translates one template into a regexp. Group names must be valid
// regexp identifiers, so slot names are restricted to word characters.
func compile(intent, template string, slots map[string][]string) (compiledTemplate, error) {
	entities := make(map[string]string)
	var pattern strings.Builder
	pattern.WriteString(`^`)

	rest := normalize(template)
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "("):
			end := strings.Index(rest, ")")
			if end < 0 {
				return compiledTemplate{}, fmt.Errorf("unclosed group")
			}
			body := rest[1:end]
			rest = rest[end+1:]

			name, after, err := captureName(rest)
			if err != nil {
				return compiledTemplate{}, err
			}
			rest = after

			alternatives, entity, err := expandGroup(body, slots)
			if err != nil {
				return compiledTemplate{}, err
			}
			if name == "" {
				pattern.WriteString(`(?:` + alternatives + `)`)
			} else {
				if entity == "" {
					entity = name
				}
				entities[name] = entity
				pattern.WriteString(`(?P<` + name + `>` + alternatives + `)`)
			}

		case strings.HasPrefix(rest, "["):
			end := strings.Index(rest, "]")
			if end < 0 {
				return compiledTemplate{}, fmt.Errorf("unclosed optional")
			}
			body := regexp.QuoteMeta(strings.TrimSpace(rest[1:end]))
			rest = rest[end+1:]

			// The optional absorbs its separating space so the template
			// matches with the word absent, wherever it sits.
			current := pattern.String()
			if current == `^` {
				pattern.WriteString(`(?:` + body + ` )?`)
				rest = strings.TrimPrefix(rest, " ")
			} else {
				pattern.Reset()
				pattern.WriteString(strings.TrimSuffix(current, ` `))
				pattern.WriteString(`(?: ` + body + `)?`)
			}

		case strings.HasPrefix(rest, " "):
			rest = rest[1:]
			pattern.WriteString(` `)

		default:
			end := strings.IndexAny(rest, " ([")
			if end < 0 {
				end = len(rest)
			}
			pattern.WriteString(regexp.QuoteMeta(rest[:end]))
			rest = rest[end:]
		}
	}

	pattern.WriteString(`$`)
	compiled, err := regexp.Compile(pattern.String())
	if err != nil {
		return compiledTemplate{}, err
	}
	return compiledTemplate{intent: intent, pattern: compiled, entities: entities}, nil
}

var namePattern = regexp.MustCompile(`^\{(\w+)\}`)

// captureName consumes a trailing {name} tag, if present.
func captureName(rest string) (name, after string, err error) {
	match := namePattern.FindStringSubmatch(rest)
	if match == nil {
		if strings.HasPrefix(rest, "{") {
			return "", "", fmt.Errorf("malformed capture name")
		}
		return "", rest, nil
	}
	return match[1], rest[len(match[0]):], nil
}

// expandGroup renders a group body into a regexp alternation. A body of the
// form "$slot" references the slot vocabulary; otherwise it is a literal
// "a | b | c" alternation.
func expandGroup(body string, slots map[string][]string) (alternation, entity string, err error) {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "$") {
		slotName := body[1:]
		values, ok := slots[slotName]
		if !ok || len(values) == 0 {
			return "", "", fmt.Errorf("unknown slot $%s", slotName)
		}
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = regexp.QuoteMeta(normalize(v))
		}
		return strings.Join(quoted, "|"), slotName, nil
	}

	parts := strings.Split(body, "|")
	quoted := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(part))
	}
	if len(quoted) == 0 {
		return "", "", fmt.Errorf("empty group")
	}
	return strings.Join(quoted, "|"), "", nil
}
