package extraction

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"caption-service/internal/logger"
)

// Kind is the expected JSON type of a validated field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	// KindBox is an array of exactly four numbers.
	KindBox
	// KindText is a string with at least one non-space character.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindBox:
		return "array of 4 numbers"
	case KindText:
		return "non-empty string"
	default:
		return "unknown"
	}
}

// Field is a required field and its expected kind.
type Field struct {
	Name string
	Kind Kind
}

// Shape describes the structured data expected inside the answer block.
//
// When ListField is empty the root must be an array of items. Otherwise the
// root must be an object whose ListField member is an array of items.
type Shape struct {
	ListField  string
	ItemFields []Field
	TopFields  []Field
}

// Result is what could be pulled out of one model response.
type Result struct {
	// Reasoning is the free-form text of the reasoning block, if any.
	Reasoning string
	// Data is the validated JSON, byte-for-byte as the model produced it.
	// It is nil when nothing usable was extracted.
	Data json.RawMessage
}

// Empty reports whether nothing usable was extracted.
func (r Result) Empty() bool { return len(r.Data) == 0 }

// RejectionRecorder is notified every time a response yields nothing usable.
type RejectionRecorder interface {
	ModelOutputRejected(stage string)
}

// ReasoningTag and AnswerTag delimit the two blocks of a structured model answer.
const (
	ReasoningTag = "details"
	AnswerTag    = "output"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")

// Extractor pulls validated structured data out of free-form model text.
// It never returns an error and never panics: every failure yields an empty Result.
type Extractor struct {
	log      *logger.Logger
	recorder RejectionRecorder
}

func NewExtractor(log *logger.Logger, recorder RejectionRecorder) *Extractor {
	if log == nil {
		log = logger.Nop()
	}
	return &Extractor{log: log.With("service", "Extractor"), recorder: recorder}
}

// Extract reads the block delimited by tag, takes the first fenced JSON
// block inside it, parses it and validates it against shape.
func (e *Extractor) Extract(stage, text, tag string, shape Shape) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			e.reject(stage, "panic while extracting", "panic", fmt.Sprint(r))
			res = Result{}
		}
	}()

	res.Reasoning, _ = TagContent(text, ReasoningTag)

	answer, ok := TagContent(text, tag)
	if !ok {
		e.reject(stage, "answer block not found", "tag", tag)
		return Result{Reasoning: res.Reasoning}
	}
	block, ok := FencedBlock(answer)
	if !ok {
		e.reject(stage, "no fenced JSON block inside answer")
		return Result{Reasoning: res.Reasoning}
	}

	var parsed interface{}
	if err := json.Unmarshal([]byte(block), &parsed); err != nil {
		e.reject(stage, "answer JSON does not parse", "error", err)
		return Result{Reasoning: res.Reasoning}
	}
	if violations := Validate(parsed, shape); len(violations) > 0 {
		e.reject(stage, "answer JSON failed validation", "violations", violations)
		return Result{Reasoning: res.Reasoning}
	}

	res.Data = json.RawMessage(block)
	return res
}

func (e *Extractor) reject(stage, msg string, kv ...interface{}) {
	e.log.Warn(msg, append([]interface{}{"stage", stage}, kv...)...)
	if e.recorder != nil {
		e.recorder.ModelOutputRejected(stage)
	}
}

// TagContent returns the text between the first <tag> and the following </tag>.
func TagContent(text, tag string) (string, bool) {
	openTag, closeTag := "<"+tag+">", "</"+tag+">"
	start := strings.Index(text, openTag)
	if start < 0 {
		return "", false
	}
	rest := text[start+len(openTag):]
	end := strings.Index(rest, closeTag)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}

// FencedBlock returns the trimmed body of the first ``` fenced block.
func FencedBlock(text string) (string, bool) {
	m := fencedJSON.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// Validate walks every required field and returns the list of violations.
func Validate(parsed interface{}, shape Shape) []string {
	var violations []string
	var items []interface{}

	if shape.ListField == "" {
		list, ok := parsed.([]interface{})
		if !ok {
			return []string{"root is not an array"}
		}
		items = list
	} else {
		root, ok := parsed.(map[string]interface{})
		if !ok {
			return []string{"root is not an object"}
		}
		list, ok := root[shape.ListField].([]interface{})
		if !ok {
			violations = append(violations, fmt.Sprintf("missing or invalid %q (expected array)", shape.ListField))
		}
		items = list
		for _, f := range shape.TopFields {
			if !matches(root[f.Name], f.Kind) {
				violations = append(violations, fmt.Sprintf("missing or invalid %q (expected %s)", f.Name, f.Kind))
			}
		}
	}

	for i, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			violations = append(violations, fmt.Sprintf("item %d is not an object", i))
			continue
		}
		for _, f := range shape.ItemFields {
			if !matches(item[f.Name], f.Kind) {
				violations = append(violations, fmt.Sprintf("item %d: missing or invalid %q (expected %s)", i, f.Name, f.Kind))
			}
		}
	}
	return violations
}

func matches(v interface{}, kind Kind) bool {
	switch kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindText:
		s, ok := v.(string)
		return ok && strings.TrimSpace(s) != ""
	case KindNumber:
		_, ok := v.(float64)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindBox:
		arr, ok := v.([]interface{})
		if !ok || len(arr) != 4 {
			return false
		}
		for _, n := range arr {
			if _, ok := n.(float64); !ok {
				return false
			}
		}
		return true
	}
	return false
}
