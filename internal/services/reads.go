package services

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"caption-service/internal/models"
	"caption-service/internal/repository"
	"caption-service/pkg/overlay"
)

// RecordSummary is one entry of a record listing.
type RecordSummary struct {
	RecordID         string    `json:"recordId"`
	Image            string    `json:"image"`
	NarrativeCaption string    `json:"narrativeCaption"`
	WholeImageLabel  string    `json:"generalLabel"`
	IsBookmarked     bool      `json:"isBookmarked"`
	UploadedAt       time.Time `json:"uploadedAt"`
}

// ChallengeView is what a caller needs to run the find-the-object challenge.
type ChallengeView struct {
	RecordID           string          `json:"recordId"`
	Image              string          `json:"image"`
	ImageWidth         int             `json:"imageWidth"`
	ImageHeight        int             `json:"imageHeight"`
	WholeImageLabel    string          `json:"generalLabel"`
	Objects            []models.Object `json:"objects"`
	CorrectAnswerLabel string          `json:"correctAnswerLabel"`
	ChallengeCompleted bool            `json:"challengeCompleted"`
}

// OverlayBox is one object's projected on-screen rectangle.
type OverlayBox struct {
	ID   int          `json:"id"`
	Text string       `json:"text"`
	Rect overlay.Rect `json:"rect"`
}

func parseRecordID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, errors.Wrap(ErrInvalidInput, "malformed record id")
	}
	return id, nil
}

// authorize loads an active record and checks that the requester owns it or
// is linked to its owner.
func (s *AnnotationService) authorize(ctx context.Context, rawID, requesterID string) (*models.AnnotationRecord, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}
	id, err := parseRecordID(rawID)
	if err != nil {
		return nil, err
	}
	record, err := s.Repo.GetActive(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, stageErr(StageRead, err)
	}
	if err := s.checkAccess(ctx, requesterID, record.OwnerID); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *AnnotationService) checkAccess(ctx context.Context, requesterID, ownerID string) error {
	if requesterID == ownerID {
		return nil
	}
	linked, err := s.Accounts.IsLinked(ctx, requesterID, ownerID)
	if err != nil {
		return stageErr(StageAccount, err)
	}
	if !linked {
		return ErrPermissionDenied
	}
	return nil
}

func (s *AnnotationService) readAsset(ctx context.Context, key string) (string, error) {
	data, err := s.Assets.Get(ctx, key)
	if err != nil {
		return "", stageErr(StageRead, errors.Wrapf(err, "read asset %s", key))
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// GetRecord returns a stored record in the same shape ProcessUpload produced.
func (s *AnnotationService) GetRecord(ctx context.Context, rawID, requesterID string) (*RecordView, error) {
	record, err := s.authorize(ctx, rawID, requesterID)
	if err != nil {
		return nil, err
	}

	image, err := s.readAsset(ctx, record.ImageKey)
	if err != nil {
		return nil, err
	}
	mainAudio, err := s.readAsset(ctx, record.MainAudioKey)
	if err != nil {
		return nil, err
	}
	stored := record.ObjectAudio.Data()
	objectAudio := make([]ObjectAudioView, 0, len(stored))
	for _, a := range stored {
		clip, err := s.readAsset(ctx, a.AudioKey)
		if err != nil {
			return nil, err
		}
		objectAudio = append(objectAudio, ObjectAudioView{ObjectID: a.ObjectID, Label: a.ObjectLabel, Audio: clip})
	}

	payload := record.CaptionPayload.Data()
	tier := record.TierMetadata.Data().ComplexityTier
	return &RecordView{
		RecordID:           record.ID.String(),
		Image:              image,
		ImageWidth:         payload.ImageWidth,
		ImageHeight:        payload.ImageHeight,
		NarrativeCaption:   payload.NarrativeCaption,
		WholeImageLabel:    payload.WholeImageLabel,
		ComplexityTier:     tier,
		Objects:            FormatCaption(payload.RawObjects, tier),
		MainAudio:          mainAudio,
		ObjectAudio:        objectAudio,
		IsBookmarked:       record.IsBookmarked,
		ChallengeCompleted: record.ChallengeCompleted,
		UploadedAt:         record.UploadedAt,
	}, nil
}

// ListRecords returns the owner's active records, bookmarked first then newest first.
func (s *AnnotationService) ListRecords(ctx context.Context, ownerID, requesterID string) ([]RecordSummary, error) {
	if requesterID == "" {
		return nil, ErrUnauthenticated
	}
	if ownerID == "" {
		ownerID = requesterID
	}
	if err := s.checkAccess(ctx, requesterID, ownerID); err != nil {
		return nil, err
	}
	records, err := s.Repo.ListActiveByOwner(ctx, ownerID)
	if err != nil {
		return nil, stageErr(StageRead, err)
	}

	out := make([]RecordSummary, 0, len(records))
	for _, r := range records {
		image, err := s.readAsset(ctx, r.ImageKey)
		if err != nil {
			return nil, err
		}
		payload := r.CaptionPayload.Data()
		out = append(out, RecordSummary{
			RecordID:         r.ID.String(),
			Image:            image,
			NarrativeCaption: payload.NarrativeCaption,
			WholeImageLabel:  payload.WholeImageLabel,
			IsBookmarked:     r.IsBookmarked,
			UploadedAt:       r.UploadedAt,
		})
	}
	return out, nil
}

// GetChallenge returns the challenge for a record. Records without objects
// have no challenge.
func (s *AnnotationService) GetChallenge(ctx context.Context, rawID, requesterID string) (*ChallengeView, error) {
	record, err := s.authorize(ctx, rawID, requesterID)
	if err != nil {
		return nil, err
	}
	challenge := record.ChallengeData.Data()
	if len(challenge.Objects) == 0 || challenge.CorrectAnswerLabel == "" {
		return nil, ErrNoChallenge
	}
	image, err := s.readAsset(ctx, record.ImageKey)
	if err != nil {
		return nil, err
	}
	payload := record.CaptionPayload.Data()
	return &ChallengeView{
		RecordID:           record.ID.String(),
		Image:              image,
		ImageWidth:         payload.ImageWidth,
		ImageHeight:        payload.ImageHeight,
		WholeImageLabel:    payload.WholeImageLabel,
		Objects:            challenge.Objects,
		CorrectAnswerLabel: challenge.CorrectAnswerLabel,
		ChallengeCompleted: record.ChallengeCompleted,
	}, nil
}

// Overlay projects the record's boxes onto an on-screen image of the given
// size. natural is the size of the image as the client decoded it. Only
// renderable rectangles are returned.
func (s *AnnotationService) Overlay(ctx context.Context, rawID, requesterID string, natural, onScreen overlay.Size) ([]OverlayBox, error) {
	record, err := s.authorize(ctx, rawID, requesterID)
	if err != nil {
		return nil, err
	}
	projection, ok := overlay.NewProjection(natural, onScreen)
	if !ok {
		return nil, errors.Wrap(ErrInvalidInput, "image sizes must be positive")
	}
	tier := record.TierMetadata.Data().ComplexityTier
	out := make([]OverlayBox, 0)
	for _, o := range FormatCaption(record.CaptionPayload.Data().RawObjects, tier) {
		if o.Box == nil {
			continue
		}
		rect := projection.Rect(*o.Box)
		if !rect.Renderable() {
			continue
		}
		out = append(out, OverlayBox{ID: o.ID, Text: o.Text, Rect: rect})
	}
	return out, nil
}

// ToggleBookmark flips the bookmark flag and returns the new state.
func (s *AnnotationService) ToggleBookmark(ctx context.Context, rawID, requesterID string) (bool, error) {
	record, err := s.authorize(ctx, rawID, requesterID)
	if err != nil {
		return false, err
	}
	state, err := s.Repo.ToggleBookmark(ctx, record.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, stageErr(StageRead, err)
	}
	return state, nil
}

// MarkChallengeComplete sets the challenge flag. Repeated calls are no-ops.
func (s *AnnotationService) MarkChallengeComplete(ctx context.Context, rawID, requesterID string) error {
	record, err := s.authorize(ctx, rawID, requesterID)
	if err != nil {
		return err
	}
	err = s.Repo.MarkChallengeComplete(ctx, record.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return stageErr(StageRead, err)
	}
	return nil
}

// SoftDelete hides a record from reads. Only the owner may delete; assets
// stay in the store.
func (s *AnnotationService) SoftDelete(ctx context.Context, rawID, requesterID string) error {
	if requesterID == "" {
		return ErrUnauthenticated
	}
	id, err := parseRecordID(rawID)
	if err != nil {
		return err
	}
	record, err := s.Repo.GetActive(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return stageErr(StageRead, err)
	}
	if record.OwnerID != requesterID {
		return ErrPermissionDenied
	}
	err = s.Repo.SoftDelete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return stageErr(StageRead, err)
	}
	s.log.Info("record deleted", "record_id", id.String(), "owner_id", requesterID)
	return nil
}

// ExplainSelection asks the caption model to explain a selected part of a caption.
func (s *AnnotationService) ExplainSelection(ctx context.Context, caption, selected string) (string, error) {
	caption = strings.TrimSpace(StripTags(caption))
	selected = strings.TrimSpace(selected)
	if caption == "" || selected == "" {
		return "", errors.Wrap(ErrInvalidInput, "caption and selection are required")
	}
	text, err := s.stages.generate(ctx, s.opts.CaptionModel, ExplainPrompt(caption, selected), nil)
	if err != nil {
		s.log.Error("explanation failed", "error", err)
		return "", stageErr(StageExplain, err)
	}
	return strings.TrimSpace(text), nil
}
