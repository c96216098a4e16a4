package services

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-service/internal/extraction"
	"caption-service/internal/generation"
	"caption-service/internal/models"
	"caption-service/internal/repository"
)

func sampleObjects() []models.Object {
	a := [4]float64{10, 20, 30, 40}
	b := [4]float64{50, 60, 70, 80}
	return []models.Object{
		{ID: 1, Label: "cat", Descriptor: "a grey cat", Context: "The cat naps.", Box: &a},
		{ID: 2, Label: "dog", Descriptor: "a brown dog", Context: "The dog waits.", Box: &b},
		{ID: 3, Label: "sky", Descriptor: "a blue sky", Context: "The sky is clear."},
	}
}

func TestFormatCaptionTiers(t *testing.T) {
	objects := sampleObjects()

	tests := []struct {
		tier int
		want []string
	}{
		{1, []string{"cat", "dog", "sky"}},
		{2, []string{"a grey cat", "a brown dog", "a blue sky"}},
		{3, []string{"The cat naps.", "The dog waits.", "The sky is clear."}},
		{0, []string{"cat", "dog", "sky"}},
		{7, []string{"cat", "dog", "sky"}},
	}
	for _, tt := range tests {
		got := FormatCaption(objects, tt.tier)
		require.Len(t, got, 3)
		for i, o := range got {
			assert.Equal(t, tt.want[i], o.Text, "tier %d", tt.tier)
			assert.Equal(t, objects[i].ID, o.ID)
			if objects[i].Box == nil {
				assert.Nil(t, o.Box)
			} else {
				assert.Equal(t, *objects[i].Box, *o.Box)
			}
		}
	}
}

func TestFormatCaptionIsPure(t *testing.T) {
	objects := sampleObjects()
	first := FormatCaption(objects, 2)
	second := FormatCaption(objects, 2)
	assert.Equal(t, first, second)

	first[0].Box[0] = 999
	assert.Equal(t, 10.0, objects[0].Box[0], "formatter output does not alias input boxes")
	assert.Equal(t, sampleObjects(), objects)
}

func TestFormatCaptionEmpty(t *testing.T) {
	for tier := 1; tier <= 3; tier++ {
		got := FormatCaption(nil, tier)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
}

func TestSanitizeMarkers(t *testing.T) {
	objects := sampleObjects()
	tests := []struct {
		name, in, want string
	}{
		{"canonical kept", `A <mark id="1">cat</mark>.`, `A <mark id="1">cat</mark>.`},
		{"single quotes", `A <mark id='2'>dog</mark>.`, `A <mark id="2">dog</mark>.`},
		{"unquoted", `A <mark id=3>sky</mark>.`, `A <mark id="3">sky</mark>.`},
		{"unknown id unwrapped", `A <mark id="4">tree</mark> and <mark id="1">cat</mark>.`, `A tree and <mark id="1">cat</mark>.`},
		{"no markers", "Plain text.", "Plain text."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMarkers(tt.in, objects))
		})
	}
	assert.Equal(t, "A cat.", SanitizeMarkers(`A <mark id="1">cat</mark>.`, nil))
}

func TestStripTagsAndMarkerIDs(t *testing.T) {
	text := "A <mark id=\"1\">grey cat</mark>\n and <mark id=\"2\">dog</mark>."
	assert.Equal(t, "A grey cat and dog.", StripTags(text))
	assert.Equal(t, []int{1, 2}, MarkerIDs(text))
	assert.Empty(t, MarkerIDs("none"))
}

func TestChooseChallenge(t *testing.T) {
	_, ok := chooseChallenge(nil, func(int) int { t.Fatal("pick called for empty list"); return 0 })
	assert.False(t, ok)

	label, ok := chooseChallenge(sampleObjects(), func(n int) int { return n - 1 })
	assert.True(t, ok)
	assert.Equal(t, "sky", label)

	label, _ = chooseChallenge(sampleObjects(), func(int) int { return 42 })
	assert.Equal(t, "cat", label)
}

func TestClampTier(t *testing.T) {
	assert.Equal(t, 1, ClampTier(-3))
	assert.Equal(t, 1, ClampTier(1))
	assert.Equal(t, 2, ClampTier(2))
	assert.Equal(t, 3, ClampTier(8))
}

func TestAccountDirectory(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAccountRepository(newTestDB(t), time.Minute)
	dir := NewAccountDirectory(repo)

	tier, err := dir.ComplexityTierFor(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, DefaultTier, tier)
	ok, err := dir.CanUpload(ctx, "child-1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, repo.SaveSetting(ctx, models.AccountSetting{UserID: "child-1", ComplexityTier: 5, CanUpload: false}))
	tier, err = dir.ComplexityTierFor(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, MaxTier, tier)
	ok, err = dir.CanUpload(ctx, "child-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Link(ctx, "parent-1", "child-1"))
	linked, err := dir.IsLinked(ctx, "child-1", "parent-1")
	require.NoError(t, err)
	assert.True(t, linked)
}

type stageRejections struct{ stages []string }

func (r *stageRejections) ModelOutputRejected(stage string) { r.stages = append(r.stages, stage) }

func newTestRunner(gen *fakeGenerator, rec *stageRejections) *stageRunner {
	return &stageRunner{generator: gen, extractor: extraction.NewExtractor(nil, rec), maxTokens: 256}
}

func TestStagesTreatEmptyCompletionAsRejected(t *testing.T) {
	gen := newFakeGenerator(map[string]string{})
	gen.errs[StageAnalysis] = errors.Wrap(generation.ErrEmptyResponse, "no choices")
	gen.errs[StageBBox] = generation.ErrEmptyResponse
	rec := &stageRejections{}
	r := newTestRunner(gen, rec)
	ctx := context.Background()

	analysis, err := r.analyze(ctx, "m", []byte("jpeg"))
	require.NoError(t, err)
	assert.NotNil(t, analysis.Objects)
	assert.Empty(t, analysis.Objects)

	located, err := r.locate(ctx, "m", []byte("jpeg"), 1024, 768, sampleObjects())
	require.NoError(t, err)
	assert.NotNil(t, located)
	assert.Empty(t, located)

	assert.Equal(t, []string{StageAnalysis, StageBBox}, rec.stages)
}

func TestCaptionEmptyCompletionStaysFatal(t *testing.T) {
	gen := newFakeGenerator(map[string]string{})
	gen.errs[StageCaption] = generation.ErrEmptyResponse
	r := newTestRunner(gen, &stageRejections{})

	_, err := r.caption(context.Background(), "m", []byte("jpeg"), sampleObjects(), 1)
	assert.ErrorIs(t, err, generation.ErrEmptyResponse)
}

func TestLocateRecoversTextFromRenamedObjects(t *testing.T) {
	analysis := []models.Object{
		{Label: "cat", Descriptor: "a grey cat", Context: "The cat naps."},
		{Label: "dog", Descriptor: "a brown dog", Context: "The dog waits."},
	}
	tests := []struct {
		name     string
		answer   string
		wantDesc []string
	}{
		{
			name: "same count renamed",
			answer: "<output>```json\n" +
				`[{"object": "kitten", "bbox_2d": [1, 2, 3, 4]}, {"object": "puppy", "bbox_2d": [5, 6, 7, 8]}]` +
				"\n```</output>",
			wantDesc: []string{"a grey cat", "a brown dog"},
		},
		{
			name: "extra box keeps matching labels only",
			answer: "<output>```json\n" +
				`[{"object": "cat", "bbox_2d": [1, 2, 3, 4]}, {"object": "rug", "bbox_2d": [5, 6, 7, 8]}, {"object": "dog", "bbox_2d": [0, 0, 9, 9]}]` +
				"\n```</output>",
			wantDesc: []string{"a grey cat", "", ""},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newFakeGenerator(map[string]string{StageBBox: tt.answer})
			located, err := newTestRunner(gen, &stageRejections{}).locate(context.Background(), "m", nil, 1024, 1024, analysis)
			require.NoError(t, err)
			require.Len(t, located, len(tt.wantDesc))
			for i, want := range tt.wantDesc {
				assert.Equal(t, i+1, located[i].ID)
				assert.Equal(t, want, located[i].Descriptor, "object %d", i+1)
			}
		})
	}

	gen := newFakeGenerator(map[string]string{StageBBox: "<output>```json\n" +
		`[{"object": "kitten", "bbox_2d": [1, 2, 3, 4]}, {"object": "puppy", "bbox_2d": [5, 6, 7, 8]}]` +
		"\n```</output>"})
	located, err := newTestRunner(gen, &stageRejections{}).locate(context.Background(), "m", nil, 1024, 1024, analysis)
	require.NoError(t, err)
	assert.Equal(t, "kitten", located[0].Label, "the located label wins")
	assert.Equal(t, "The cat naps.", located[0].Context)
}

func TestLocateRejectsBlankLabels(t *testing.T) {
	gen := newFakeGenerator(map[string]string{StageBBox: "<output>```json\n" +
		`[{"object": "cat", "bbox_2d": [1, 2, 3, 4]}, {"object": " ", "bbox_2d": [5, 6, 7, 8]}]` +
		"\n```</output>"})
	rec := &stageRejections{}

	located, err := newTestRunner(gen, rec).locate(context.Background(), "m", nil, 1024, 1024, sampleObjects()[:2])
	require.NoError(t, err)
	assert.Empty(t, located)
	assert.Equal(t, []string{StageBBox}, rec.stages)
}
