package services

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"caption-service/internal/extraction"
	"caption-service/internal/generation"
	"caption-service/internal/models"
)

var analysisShape = extraction.Shape{
	ListField: "objects",
	ItemFields: []extraction.Field{
		{Name: "object", Kind: extraction.KindString},
		{Name: "description", Kind: extraction.KindString},
		{Name: "context", Kind: extraction.KindString},
	},
	TopFields: []extraction.Field{{Name: "generalLabel", Kind: extraction.KindString}},
}

var bboxShape = extraction.Shape{
	ItemFields: []extraction.Field{
		{Name: "object", Kind: extraction.KindText},
		{Name: "bbox_2d", Kind: extraction.KindBox},
	},
}

// Analysis is the outcome of the analysis stage. Objects is empty when the
// model produced nothing usable.
type Analysis struct {
	Objects         []models.Object `json:"objects"`
	WholeImageLabel string          `json:"generalLabel"`
}

type stageRunner struct {
	generator generation.Generator
	extractor *extraction.Extractor
	maxTokens int
}

func (r *stageRunner) generate(ctx context.Context, model string, p Prompt, image []byte) (string, error) {
	return r.generator.Generate(ctx, generation.Request{
		Model:     model,
		System:    p.System,
		User:      p.User,
		ImageJPEG: image,
		MaxTokens: r.maxTokens,
	})
}

// generateLenient is generate for stages that degrade to an empty result:
// an empty completion is handed to the extractor as blank text.
func (r *stageRunner) generateLenient(ctx context.Context, model string, p Prompt, image []byte) (string, error) {
	text, err := r.generate(ctx, model, p, image)
	if errors.Is(err, generation.ErrEmptyResponse) {
		return "", nil
	}
	return text, err
}

// analyze runs the analysis stage. Only transport failures are returned as errors.
func (r *stageRunner) analyze(ctx context.Context, model string, image []byte) (Analysis, error) {
	text, err := r.generateLenient(ctx, model, AnalysisPrompt(), image)
	if err != nil {
		return Analysis{}, err
	}
	res := r.extractor.Extract(StageAnalysis, text, extraction.AnswerTag, analysisShape)
	if res.Empty() {
		return Analysis{Objects: []models.Object{}}, nil
	}
	var out Analysis
	if err := json.Unmarshal(res.Data, &out); err != nil {
		return Analysis{Objects: []models.Object{}}, nil
	}
	if out.Objects == nil {
		out.Objects = []models.Object{}
	}
	for i := range out.Objects {
		out.Objects[i].ID = 0
		out.Objects[i].Box = nil
	}
	return out, nil
}

// locate runs the bounding-box stage and assigns ids 1..N in returned order.
// It must only be called with at least one object.
func (r *stageRunner) locate(ctx context.Context, model string, image []byte, width, height int, objects []models.Object) ([]models.Object, error) {
	text, err := r.generateLenient(ctx, model, BBoxPrompt(width, height, objects), image)
	if err != nil {
		return nil, err
	}
	res := r.extractor.Extract(StageBBox, text, extraction.AnswerTag, bboxShape)
	if res.Empty() {
		return []models.Object{}, nil
	}
	var located []models.Object
	if err := json.Unmarshal(res.Data, &located); err != nil {
		return []models.Object{}, nil
	}
	sameCount := len(located) == len(objects)
	for i := range located {
		located[i].ID = i + 1
		// Models sometimes drop or rename fields. Recover the text from the
		// analysis object at the same position when the lists line up.
		if i < len(objects) && (sameCount || strings.EqualFold(located[i].Label, objects[i].Label)) {
			if located[i].Descriptor == "" {
				located[i].Descriptor = objects[i].Descriptor
			}
			if located[i].Context == "" {
				located[i].Context = objects[i].Context
			}
		}
	}
	return located, nil
}

// caption runs the tiered caption stage and returns the marked narrative.
// A response without an answer block is fatal.
func (r *stageRunner) caption(ctx context.Context, model string, image []byte, objects []models.Object, tier int) (string, error) {
	text, err := r.generate(ctx, model, CaptionPrompt(objects, tier), image)
	if err != nil {
		return "", err
	}
	narrative, ok := extraction.TagContent(text, extraction.AnswerTag)
	if !ok || strings.TrimSpace(StripTags(narrative)) == "" {
		return "", ErrCaptionMissing
	}
	return SanitizeMarkers(strings.TrimSpace(narrative), objects), nil
}

// FormattedObject is one object projected to a single text field.
type FormattedObject struct {
	ID   int         `json:"id"`
	Text string      `json:"text"`
	Box  *[4]float64 `json:"box,omitempty"`
}

// FormatCaption projects objects to one text field per tier:
// 1 label, 2 descriptor, 3 context. Any other tier uses the label.
func FormatCaption(objects []models.Object, tier int) []FormattedObject {
	out := make([]FormattedObject, 0, len(objects))
	for _, o := range objects {
		text := o.Label
		switch tier {
		case 2:
			text = o.Descriptor
		case 3:
			text = o.Context
		}
		var box *[4]float64
		if o.Box != nil {
			b := *o.Box
			box = &b
		}
		out = append(out, FormattedObject{ID: o.ID, Text: text, Box: box})
	}
	return out
}

var (
	markerPattern = regexp.MustCompile(`(?s)<mark\s+id\s*=\s*["']?(\d+)["']?\s*>(.*?)</mark>`)
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// SanitizeMarkers rewrites markers to the canonical <mark id="N"> form and
// unwraps markers whose id is not one of the objects.
func SanitizeMarkers(text string, objects []models.Object) string {
	known := make(map[int]bool, len(objects))
	for _, o := range objects {
		known[o.ID] = true
	}
	return markerPattern.ReplaceAllStringFunc(text, func(m string) string {
		sub := markerPattern.FindStringSubmatch(m)
		id, err := strconv.Atoi(sub[1])
		if err != nil || !known[id] {
			return sub[2]
		}
		return `<mark id="` + sub[1] + `">` + sub[2] + `</mark>`
	})
}

// MarkerIDs returns the ids referenced by markers, in order of appearance.
func MarkerIDs(text string) []int {
	var ids []int
	for _, sub := range markerPattern.FindAllStringSubmatch(text, -1) {
		if id, err := strconv.Atoi(sub[1]); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// StripTags removes every markup tag and collapses whitespace.
func StripTags(text string) string {
	return strings.TrimSpace(spacePattern.ReplaceAllString(tagPattern.ReplaceAllString(text, ""), " "))
}

// chooseChallenge picks the correct answer for the challenge. It reports
// false for an empty list.
func chooseChallenge(objects []models.Object, pick func(n int) int) (string, bool) {
	if len(objects) == 0 {
		return "", false
	}
	i := pick(len(objects))
	if i < 0 || i >= len(objects) {
		i = 0
	}
	return objects[i].Label, true
}

