package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"caption-service/internal/models"
)

// Prompt is a system/user prompt pair for one generation call.
type Prompt struct {
	System string
	User   string
}

const analysisSystemPrompt = "You are an image analysis assistant. Examine the image and describe its most salient objects as structured JSON.\n" +
	"\n" +
	"Reason step by step inside <details> tags first:\n" +
	"- Identify the main subject and the prominent elements of the scene.\n" +
	"- Choose between 1 and 5 objects that best represent the image. One object is enough for a simple image.\n" +
	"- For each object decide a single-word name (`object`), a 3-5 word description (`description`) and one sentence about its role in the scene (`context`).\n" +
	"- The `context` sentence must never mention where the object is in the frame (no \"on the left\", \"in the background\", \"at the top\").\n" +
	"- Pick one word or short phrase that summarises the whole image (`generalLabel`).\n" +
	"- If the image is abstract or has no distinct objects, return an empty object list.\n" +
	"\n" +
	"After </details>, write the answer inside <output> tags as one JSON object in a ```json code block:\n" +
	"<details>\n" +
	"[your reasoning]\n" +
	"</details>\n" +
	"<output>\n" +
	"```json\n" +
	"{\n" +
	"  \"objects\": [\n" +
	"    {\"object\": \"apple\", \"description\": \"a ripe red apple\", \"context\": \"An apple rests beside a cup of tea.\"}\n" +
	"  ],\n" +
	"  \"generalLabel\": \"breakfast\"\n" +
	"}\n" +
	"```\n" +
	"</output>\n" +
	"\n" +
	"The JSON must parse as-is. Do not write anything outside the two tag pairs. The tags are mandatory."

const analysisUserPrompt = "Here is the image to analyze. Produce the reasoning and the JSON output."

// AnalysisPrompt asks for 1-5 salient objects and one whole-image label.
func AnalysisPrompt() Prompt {
	return Prompt{System: analysisSystemPrompt, User: analysisUserPrompt}
}

const bboxSystemPrompt = "You are an expert at locating objects in images. For every object in the list, add the key \"bbox_2d\" " +
	"holding its bounding box as [ymin, xmin, ymax, xmax] in pixels of the image as given.\n" +
	"Keep `object`, `description` and `context` exactly as provided and keep the list order. Use description and context only to tell which object is meant.\n" +
	"The box must enclose the object itself and nothing else mentioned in the context.\n" +
	"Answer with the JSON array in a ```json code block inside <output> tags and nothing else:\n" +
	"<output>\n" +
	"```json\n" +
	"[\n" +
	"  {\"object\": \"apple\", \"bbox_2d\": [100, 100, 400, 400], \"description\": \"a ripe red apple\", \"context\": \"An apple rests beside a cup of tea.\"}\n" +
	"]\n" +
	"```\n" +
	"</output>"

// BBoxPrompt asks for one box per object in the canonical coordinate space.
func BBoxPrompt(width, height int, objects []models.Object) Prompt {
	type item struct {
		Object      string `json:"object"`
		Description string `json:"description"`
		Context     string `json:"context"`
	}
	items := make([]item, 0, len(objects))
	for _, o := range objects {
		items = append(items, item{Object: o.Label, Description: o.Descriptor, Context: o.Context})
	}
	listing, _ := json.MarshalIndent(items, "", "  ")

	user := fmt.Sprintf("Image dimensions: %dx%d\nHere are the objects in the image:\n```json\n%s\n```", width, height, listing)
	return Prompt{System: bboxSystemPrompt, User: user}
}

var tierInstructions = map[int]string{
	1: "Write one very simple sentence for very young children (about ages 3-5). Use basic words.",
	2: "Write 2 to 3 medium-length descriptive sentences for young children (about ages 5-7). Use some adjectives and varied sentence structure.",
	3: "Write one detailed paragraph of several complex sentences for older children (about ages 7-10). Use rich vocabulary and engaging sentence constructions.",
}

// TierInstruction returns the complexity instruction for a tier, defaulting to tier 2.
func TierInstruction(tier int) string {
	if s, ok := tierInstructions[tier]; ok {
		return s
	}
	return tierInstructions[DefaultTier]
}

// CaptionPrompt asks for one narrative caption with <mark id="N"> markers.
func CaptionPrompt(objects []models.Object, tier int) Prompt {
	system := "You write engaging, age-appropriate image captions for children, guided by the object list that accompanies the image.\n" +
		"\n" +
		"Instructions:\n" +
		"1. Look at the image and the object list.\n" +
		"2. Write a caption describing the scene.\n" +
		"3. Whenever the caption refers to a listed object, wrap a short natural phrase for it in <mark id=\"N\">...</mark>, where N is that object's id. Only use ids from the list.\n" +
		"4. " + TierInstruction(tier) + "\n" +
		"5. Put the whole caption inside <output> and </output>. Write nothing before or after these tags.\n" +
		"\n" +
		"Example:\n" +
		"<output>A <mark id=\"1\">shiny red apple</mark> sits next to <mark id=\"2\">a bright window</mark>.</output>"

	user := "Write the caption for this image using the following objects:\n" + objectListing(objects) +
		"\nFollow the tagging and output format rules exactly."
	return Prompt{System: system, User: user}
}

// objectListing renders objects compactly, with ids and without boxes.
func objectListing(objects []models.Object) string {
	parts := make([]string, 0, len(objects))
	for _, o := range objects {
		label, _ := json.Marshal(o.Label)
		desc, _ := json.Marshal(o.Descriptor)
		ctx, _ := json.Marshal(o.Context)
		parts = append(parts, fmt.Sprintf("{id:%d, object:%s, description:%s, context:%s}", o.ID, label, desc, ctx))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

const explainSystemPrompt = "You explain words, phrases or sentences in one or two short sentences. " +
	"You receive a full text and a selection from it. Reply with the explanation only: no introduction, no formatting, " +
	"and do not repeat the selected text."

// ExplainPrompt asks for a short explanation of a selection within a caption.
func ExplainPrompt(fullText, selected string) Prompt {
	user := fmt.Sprintf("Full text: %q\n\nSelected text: %q\n\nExplain the selected text briefly.", fullText, selected)
	return Prompt{System: explainSystemPrompt, User: user}
}
