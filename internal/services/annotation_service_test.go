package services

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caption-service/internal/generation"
	"caption-service/internal/models"
	"caption-service/internal/repository"
)

func TestProcessUploadThreeObjects(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	ctx := context.Background()

	view, err := f.svc.ProcessUpload(ctx, testPNG(t, 800, 600), "adult-1", RoleAdult)
	require.NoError(t, err)

	assert.Equal(t, 1024, view.ImageWidth)
	assert.Equal(t, 768, view.ImageHeight)
	assert.Equal(t, "pets", view.WholeImageLabel)
	assert.Equal(t, DefaultTier, view.ComplexityTier)

	require.Len(t, view.Objects, 3)
	for i, o := range view.Objects {
		assert.Equal(t, i+1, o.ID)
		require.NotNil(t, o.Box)
	}
	assert.Equal(t, "a sleepy grey cat", view.Objects[0].Text)
	assert.Equal(t, "a small brown dog", view.Objects[1].Text, "descriptor recovered from analysis")
	assert.Equal(t, [4]float64{100, 50, 400, 300}, *view.Objects[0].Box)

	for _, id := range MarkerIDs(view.NarrativeCaption) {
		assert.True(t, id >= 1 && id <= 3, "marker id %d outside object list", id)
	}
	assert.Equal(t, []int{1, 2, 3}, MarkerIDs(view.NarrativeCaption))
	assert.Contains(t, view.NarrativeCaption, "the sofa")
	assert.NotContains(t, view.NarrativeCaption, `id="9"`)

	require.Len(t, view.ObjectAudio, 3)
	for i, a := range view.ObjectAudio {
		assert.Equal(t, i+1, a.ObjectID)
	}
	main, err := base64.StdEncoding.DecodeString(view.MainAudio)
	require.NoError(t, err)
	assert.Equal(t, "audio:A sleepy cat rests while a little dog guards the ball near the sofa.", string(main))

	assert.Equal(t, 1, f.gen.callCount(StageAnalysis))
	assert.Equal(t, 1, f.gen.callCount(StageBBox))
	assert.Equal(t, 1, f.gen.callCount(StageCaption))
	assert.Equal(t, "vision-model", f.gen.requests[StageBBox].Model, "box model falls back to the caption model")
	assert.Contains(t, f.gen.requests[StageBBox].User, "1024x768")

	images, audio := f.assetCount(t)
	assert.Equal(t, 1, images)
	assert.Equal(t, 4, audio)

	record, err := f.repo.GetActive(ctx, mustUUID(t, view.RecordID))
	require.NoError(t, err)
	assert.Equal(t, "adult-1", record.OwnerID)
	assert.Equal(t, "vision-model", record.TierMetadata.Data().ModelIdentifier)
	challenge := record.ChallengeData.Data()
	assert.Len(t, challenge.Objects, 3)
	assert.Equal(t, "cat", challenge.CorrectAnswerLabel)
	stored := record.ObjectAudio.Data()
	require.Len(t, stored, 3)
	assert.Equal(t, "dog", stored[1].ObjectLabel)
}

func TestProcessUploadDuplicateLabelsKeepSeparateAudio(t *testing.T) {
	responses := threeObjectResponses()
	responses[StageBBox] = "<output>\n```json\n" +
		`[{"object": "cat", "bbox_2d": [0, 0, 100, 100]}, {"object": "cat", "bbox_2d": [200, 200, 300, 300]}]` +
		"\n```\n</output>"
	f := newFixture(t, responses)

	view, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 64, 64), "adult-1", RoleAdult)
	require.NoError(t, err)
	require.Len(t, view.ObjectAudio, 2)
	assert.Equal(t, 1, view.ObjectAudio[0].ObjectID)
	assert.Equal(t, 2, view.ObjectAudio[1].ObjectID)
	assert.Equal(t, []string{"cat", "cat"}, f.synth.texts[1:])
	assert.Equal(t, []int{1, 2}, MarkerIDs(view.NarrativeCaption))
}

func TestProcessUploadNoObjects(t *testing.T) {
	f := newFixture(t, map[string]string{
		StageAnalysis: analysisNoObjects,
		StageCaption:  "<output>Colours swirl across the page.</output>",
	})
	ctx := context.Background()

	view, err := f.svc.ProcessUpload(ctx, testPNG(t, 32, 32), "adult-1", RoleAdult)
	require.NoError(t, err)
	assert.Zero(t, f.gen.callCount(StageBBox))
	assert.NotNil(t, view.Objects)
	assert.Empty(t, view.Objects)
	assert.Empty(t, view.ObjectAudio)

	record, err := f.repo.GetActive(ctx, mustUUID(t, view.RecordID))
	require.NoError(t, err)
	assert.Empty(t, record.ChallengeData.Data().Objects)
	assert.Empty(t, record.ChallengeData.Data().CorrectAnswerLabel)

	_, err = f.svc.GetChallenge(ctx, view.RecordID, "adult-1")
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestProcessUploadMalformedAnalysisContinues(t *testing.T) {
	f := newFixture(t, map[string]string{
		StageAnalysis: "<output>```json\n{\"objects\": [{\"object\": 7}]}\n```</output>",
		StageCaption:  "<output>Something is here.</output>",
	})
	view, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
	require.NoError(t, err)
	assert.Empty(t, view.Objects)
	assert.Zero(t, f.gen.callCount(StageBBox))
}

func TestProcessUploadMalformedBoxesEmptiesObjectList(t *testing.T) {
	responses := threeObjectResponses()
	responses[StageBBox] = "<output>```json\n[{\"object\": \"cat\", \"bbox_2d\": [1, 2, 3]}]\n```</output>"
	responses[StageCaption] = `<output>A <mark id="1">cat</mark> naps.</output>`
	f := newFixture(t, responses)

	view, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
	require.NoError(t, err)
	assert.Empty(t, view.Objects)
	assert.Equal(t, "A cat naps.", view.NarrativeCaption, "markers without objects are unwrapped")
}

func TestProcessUploadEmptyCompletionContinues(t *testing.T) {
	t.Run("analysis", func(t *testing.T) {
		f := newFixture(t, map[string]string{StageCaption: "<output>Something is here.</output>"})
		f.gen.errs[StageAnalysis] = generation.ErrEmptyResponse

		view, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
		require.NoError(t, err)
		assert.Empty(t, view.Objects)
		assert.Zero(t, f.gen.callCount(StageBBox))
		assert.Equal(t, 1, f.gen.callCount(StageCaption))
	})

	t.Run("boxes", func(t *testing.T) {
		responses := threeObjectResponses()
		responses[StageCaption] = `<output>A <mark id="1">cat</mark> naps.</output>`
		f := newFixture(t, responses)
		f.gen.errs[StageBBox] = errors.Wrap(generation.ErrEmptyResponse, "blank content")

		view, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
		require.NoError(t, err)
		assert.Empty(t, view.Objects)
		assert.Empty(t, view.ObjectAudio)
		assert.Equal(t, "A cat naps.", view.NarrativeCaption)
	})
}

func TestProcessUploadBlankBoxLabelEmptiesObjectList(t *testing.T) {
	responses := threeObjectResponses()
	responses[StageBBox] = "<output>```json\n" +
		`[{"object": "cat", "bbox_2d": [0, 0, 100, 100]}, {"object": "", "bbox_2d": [200, 200, 300, 300], "description": "a small brown dog"}]` +
		"\n```\n</output>"
	responses[StageCaption] = `<output>A <mark id="1">cat</mark> and <mark id="2">a dog</mark>.</output>`
	f := newFixture(t, responses)

	view, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
	require.NoError(t, err)
	assert.Empty(t, view.Objects)
	assert.Len(t, view.ObjectAudio, len(view.Objects))
	assert.Equal(t, "A cat and a dog.", view.NarrativeCaption)
	assert.Len(t, f.synth.texts, 1, "only the main caption is spoken")
}

func TestProcessUploadCaptionMissingIsFatal(t *testing.T) {
	responses := threeObjectResponses()
	responses[StageCaption] = "A cat and a dog."
	f := newFixture(t, responses)

	_, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.ErrorIs(t, err, ErrCaptionMissing)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageCaption, se.Stage)

	images, audio := f.assetCount(t)
	assert.Zero(t, images)
	assert.Zero(t, audio)
	assert.Empty(t, f.synth.texts)
}

func TestProcessUploadTransportFailure(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	f.gen.errs[StageAnalysis] = errors.Wrap(generation.ErrTransport, "connection refused")

	_, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	assert.ErrorIs(t, err, generation.ErrTransport)
	assert.Zero(t, f.gen.callCount(StageCaption))
}

func TestProcessUploadSpeechFailure(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	f.synth.err = errors.New("tts down")

	_, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	images, audio := f.assetCount(t)
	assert.Zero(t, images)
	assert.Zero(t, audio)
}

type failingCreateRepo struct {
	repository.AnnotationRepository
}

func (failingCreateRepo) Create(context.Context, *models.AnnotationRecord) error {
	return errors.New("disk full")
}

func TestProcessUploadInsertFailureRemovesAssets(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	f.svc.Repo = failingCreateRepo{AnnotationRepository: f.repo}

	_, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 32, 32), "adult-1", RoleAdult)
	assert.ErrorIs(t, err, ErrProcessingFailed)
	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StagePersist, se.Stage)

	images, audio := f.assetCount(t)
	assert.Zero(t, images)
	assert.Zero(t, audio)
}

func TestProcessUploadRejectsBadInput(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	ctx := context.Background()

	_, err := f.svc.ProcessUpload(ctx, testPNG(t, 8, 8), "", RoleAdult)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.svc.ProcessUpload(ctx, nil, "adult-1", RoleAdult)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.ProcessUpload(ctx, []byte("not an image"), "adult-1", RoleAdult)
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.accounts.noUpload["child-1"] = true
	_, err = f.svc.ProcessUpload(ctx, testPNG(t, 8, 8), "child-1", RoleChild)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	assert.Zero(t, f.gen.callCount(StageAnalysis))
}

func TestProcessUploadEnforcesPixelLimit(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	f.svc.opts.MaxImagePixels = 1000

	_, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 40, 40), "adult-1", RoleAdult)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "40x40")
	assert.Zero(t, f.gen.callCount(StageAnalysis))

	_, err = f.svc.ProcessUpload(context.Background(), testPNG(t, 30, 30), "adult-1", RoleAdult)
	require.NoError(t, err)
}

func TestProcessUploadUsesChildTier(t *testing.T) {
	f := newFixture(t, threeObjectResponses())
	f.accounts.tiers["child-1"] = 3
	f.accounts.tiers["adult-1"] = 1

	view, err := f.svc.ProcessUpload(context.Background(), testPNG(t, 16, 16), "child-1", RoleChild)
	require.NoError(t, err)
	assert.Equal(t, 3, view.ComplexityTier)
	assert.Equal(t, "The cat naps after playing.", view.Objects[0].Text)
	assert.Contains(t, f.gen.requests[StageCaption].System, TierInstruction(3))

	view, err = f.svc.ProcessUpload(context.Background(), testPNG(t, 16, 16), "adult-1", RoleAdult)
	require.NoError(t, err)
	assert.Equal(t, DefaultTier, view.ComplexityTier, "only child accounts use a stored tier")

	f.accounts.tiers["child-2"] = 9
	view, err = f.svc.ProcessUpload(context.Background(), testPNG(t, 16, 16), "child-2", RoleChild)
	require.NoError(t, err)
	assert.Equal(t, MaxTier, view.ComplexityTier)
}

func TestCanUpload(t *testing.T) {
	f := newFixture(t, nil)
	f.accounts.noUpload["child-1"] = true

	ok, err := f.svc.CanUpload(context.Background(), "child-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.svc.CanUpload(context.Background(), "adult-1")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.CanUpload(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
