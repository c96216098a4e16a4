package services

import (
	"context"
	"encoding/base64"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"caption-service/internal/conversion"
	"caption-service/internal/extraction"
	"caption-service/internal/generation"
	"caption-service/internal/logger"
	"caption-service/internal/metrics"
	"caption-service/internal/models"
	"caption-service/internal/repository"
	"caption-service/internal/speech"
	"caption-service/internal/storage"
)

const unknownModel = "unknown"

// Options configures the pipeline.
type Options struct {
	CaptionModel string
	BBoxModel    string
	MaxTokens    int
	AudioFormat  string
	Location     *time.Location

	// MaxImagePixels caps width*height of an upload. Zero uses the converter default.
	MaxImagePixels int
}

// AnnotationService runs the captioning pipeline and serves stored records.
type AnnotationService struct {
	Repo      repository.AnnotationRepository
	Accounts  AccountDirectory
	Assets    storage.AssetStore
	Generator generation.Generator
	Speech    speech.Synthesizer

	stages  *stageRunner
	metrics *metrics.Metrics
	log     *logger.Logger
	opts    Options

	now  func() time.Time
	pick func(n int) int
}

// NewAnnotationService wires the pipeline from its collaborators.
func NewAnnotationService(
	repo repository.AnnotationRepository,
	accounts AccountDirectory,
	assets storage.AssetStore,
	generator generation.Generator,
	synth speech.Synthesizer,
	m *metrics.Metrics,
	log *logger.Logger,
	opts Options,
) *AnnotationService {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	if opts.BBoxModel == "" {
		opts.BBoxModel = opts.CaptionModel
	}
	return &AnnotationService{
		Repo:      repo,
		Accounts:  accounts,
		Assets:    assets,
		Generator: generator,
		Speech:    synth,
		stages: &stageRunner{
			generator: generator,
			extractor: extraction.NewExtractor(log, m),
			maxTokens: opts.MaxTokens,
		},
		metrics: m,
		log:     log.With("service", "AnnotationService"),
		opts:    opts,
		now:     time.Now,
		pick:    rand.IntN,
	}
}

// ObjectAudioView is one object's label audio, base64 encoded.
type ObjectAudioView struct {
	ObjectID int    `json:"objectId"`
	Label    string `json:"label"`
	Audio    string `json:"audio"`
}

// RecordView is the caller-facing shape of one annotation record.
type RecordView struct {
	RecordID           string            `json:"recordId"`
	Image              string            `json:"image"`
	ImageWidth         int               `json:"imageWidth"`
	ImageHeight        int               `json:"imageHeight"`
	NarrativeCaption   string            `json:"narrativeCaption"`
	WholeImageLabel    string            `json:"generalLabel"`
	ComplexityTier     int               `json:"complexityTier"`
	Objects            []FormattedObject `json:"objects"`
	MainAudio          string            `json:"mainAudio"`
	ObjectAudio        []ObjectAudioView `json:"objectAudio"`
	IsBookmarked       bool              `json:"isBookmarked"`
	ChallengeCompleted bool              `json:"challengeCompleted"`
	UploadedAt         time.Time         `json:"uploadedAt"`
}

type writtenAsset struct {
	key, contentType string
	data             []byte
}

// ProcessUpload turns one uploaded image into a persisted annotation record.
func (s *AnnotationService) ProcessUpload(ctx context.Context, image []byte, ownerID, role string) (*RecordView, error) {
	if ownerID == "" {
		return nil, ErrUnauthenticated
	}
	if len(image) == 0 {
		return nil, errors.Wrap(ErrInvalidInput, "image is required")
	}

	allowed, err := s.Accounts.CanUpload(ctx, ownerID)
	if err != nil {
		return nil, s.fail(nil, stageErr(StageAccount, err))
	}
	if !allowed {
		return nil, ErrPermissionDenied
	}

	timings := metrics.NewPipelineTimings(s.metrics)

	timings.StartStage(StageNormalize)
	normalized, err := conversion.Normalize(image, s.opts.MaxImagePixels)
	timings.EndStage(StageNormalize)
	if err != nil {
		timings.Finalize("rejected")
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}

	tier, err := s.tierFor(ctx, ownerID, role)
	if err != nil {
		return nil, s.fail(timings, stageErr(StageAccount, err))
	}

	timings.StartStage(StageAnalysis)
	analysis, err := s.stages.analyze(ctx, s.opts.CaptionModel, normalized.JPEG)
	timings.EndStage(StageAnalysis)
	if err != nil {
		return nil, s.fail(timings, stageErr(StageAnalysis, err))
	}

	objects := analysis.Objects
	if len(objects) > 0 {
		timings.StartStage(StageBBox)
		objects, err = s.stages.locate(ctx, s.opts.BBoxModel, normalized.JPEG, normalized.Width, normalized.Height, objects)
		timings.EndStage(StageBBox)
		if err != nil {
			return nil, s.fail(timings, stageErr(StageBBox, err))
		}
	}

	timings.StartStage(StageCaption)
	narrative, err := s.stages.caption(ctx, s.opts.CaptionModel, normalized.JPEG, objects, tier)
	timings.EndStage(StageCaption)
	if err != nil {
		return nil, s.fail(timings, stageErr(StageCaption, err))
	}

	timings.StartStage(StageSpeech)
	mainAudio, err := s.Speech.Synthesize(ctx, StripTags(narrative))
	if err != nil {
		timings.EndStage(StageSpeech)
		return nil, s.fail(timings, stageErr(StageSpeech, err))
	}
	objectAudio := make([]models.ObjectAudio, 0, len(objects))
	objectAudioViews := make([]ObjectAudioView, 0, len(objects))
	assets := []writtenAsset{
		{key: storage.NewImageKey(), contentType: "image/jpeg", data: normalized.JPEG},
		{key: storage.NewAudioKey(s.opts.AudioFormat), contentType: storage.AudioContentType(s.opts.AudioFormat), data: mainAudio},
	}
	for _, o := range objects {
		clip, err := s.Speech.Synthesize(ctx, strings.TrimSpace(o.Label))
		if err != nil {
			timings.EndStage(StageSpeech)
			return nil, s.fail(timings, stageErr(StageSpeech, err))
		}
		key := storage.NewAudioKey(s.opts.AudioFormat)
		assets = append(assets, writtenAsset{key: key, contentType: storage.AudioContentType(s.opts.AudioFormat), data: clip})
		objectAudio = append(objectAudio, models.ObjectAudio{ObjectID: o.ID, ObjectLabel: o.Label, AudioKey: key})
		objectAudioViews = append(objectAudioViews, ObjectAudioView{ObjectID: o.ID, Label: o.Label, Audio: base64.StdEncoding.EncodeToString(clip)})
	}
	timings.EndStage(StageSpeech)

	correct, _ := chooseChallenge(objects, s.pick)
	now := s.now().UTC()
	record := &models.AnnotationRecord{
		ID:           uuid.New(),
		OwnerID:      ownerID,
		ImageKey:     assets[0].key,
		MainAudioKey: assets[1].key,
		CaptionPayload: datatypes.NewJSONType(models.CaptionPayload{
			RawObjects:       objects,
			WholeImageLabel:  analysis.WholeImageLabel,
			NarrativeCaption: narrative,
			ImageWidth:       normalized.Width,
			ImageHeight:      normalized.Height,
			GeneratedAt:      now,
		}),
		TierMetadata: datatypes.NewJSONType(models.TierMetadata{
			ComplexityTier:  tier,
			ModelIdentifier: s.modelIdentifier(),
		}),
		ChallengeData: datatypes.NewJSONType(models.ChallengeData{
			Objects:            objects,
			CorrectAnswerLabel: correct,
		}),
		ObjectAudio: datatypes.NewJSONType(objectAudio),
		Status:      models.StatusActive,
		UploadedAt:  now,
	}

	timings.StartStage(StagePersist)
	err = s.persist(ctx, record, assets)
	timings.EndStage(StagePersist)
	if err != nil {
		return nil, s.fail(timings, stageErr(StagePersist, err))
	}

	timings.SetRecord(record.ID.String(), len(objects))
	timings.Finalize("success")
	s.log.Info("pipeline completed", timings.Fields()...)

	return &RecordView{
		RecordID:         record.ID.String(),
		Image:            base64.StdEncoding.EncodeToString(normalized.JPEG),
		ImageWidth:       normalized.Width,
		ImageHeight:      normalized.Height,
		NarrativeCaption: narrative,
		WholeImageLabel:  analysis.WholeImageLabel,
		ComplexityTier:   tier,
		Objects:          FormatCaption(objects, tier),
		MainAudio:        base64.StdEncoding.EncodeToString(mainAudio),
		ObjectAudio:      objectAudioViews,
		UploadedAt:       now,
	}, nil
}

// persist writes every asset concurrently, then inserts the record. Assets
// already written are removed on a best-effort basis when anything fails.
func (s *AnnotationService) persist(ctx context.Context, record *models.AnnotationRecord, assets []writtenAsset) error {
	var (
		mu      sync.Mutex
		written []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range assets {
		g.Go(func() error {
			if err := s.Assets.Put(gctx, a.key, a.data, a.contentType); err != nil {
				return errors.Wrapf(err, "write asset %s", a.key)
			}
			mu.Lock()
			written = append(written, a.key)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = errors.Wrap(s.Repo.Create(ctx, record), "insert record")
	}
	if err != nil {
		s.removeAssets(written)
		return err
	}
	return nil
}

func (s *AnnotationService) removeAssets(keys []string) {
	// The request context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.Assets.Delete(ctx, key); err != nil {
			s.log.Warn("could not remove orphaned asset", "key", key, "error", err)
		}
	}
}

func (s *AnnotationService) fail(timings *metrics.PipelineTimings, err error) error {
	var se *StageError
	if errors.As(err, &se) {
		s.log.Error("pipeline failed", "stage", se.Stage, "error", se.Err)
	}
	if timings != nil {
		timings.Finalize("failed")
	} else {
		s.metrics.RecordPipelineRun("failed")
	}
	return err
}

func (s *AnnotationService) modelIdentifier() string {
	if s.opts.CaptionModel == "" {
		return unknownModel
	}
	return s.opts.CaptionModel
}

// tierFor resolves the caption tier. Only child accounts have a configurable tier.
func (s *AnnotationService) tierFor(ctx context.Context, userID, role string) (int, error) {
	if role != RoleChild {
		return DefaultTier, nil
	}
	tier, err := s.Accounts.ComplexityTierFor(ctx, userID)
	if err != nil {
		return 0, err
	}
	return ClampTier(tier), nil
}

// CanUpload reports whether the account may start the pipeline.
func (s *AnnotationService) CanUpload(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, ErrUnauthenticated
	}
	ok, err := s.Accounts.CanUpload(ctx, userID)
	if err != nil {
		return false, stageErr(StageAccount, err)
	}
	return ok, nil
}
