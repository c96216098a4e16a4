package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Object is one salient thing detected in an image.
// JSON names follow the wire format the generation prompts ask for.
type Object struct {
	ID         int         `json:"id,omitempty"`
	Label      string      `json:"object"`
	Descriptor string      `json:"description"`
	Context    string      `json:"context"`
	Box        *[4]float64 `json:"bbox_2d,omitempty"` // yMin, xMin, yMax, xMax in canonical space
}

// CaptionPayload is the full structured output of one pipeline run.
type CaptionPayload struct {
	RawObjects       []Object  `json:"rawObjectList"`
	WholeImageLabel  string    `json:"generalLabel"`
	NarrativeCaption string    `json:"narrativeCaptionMarked"`
	ImageWidth       int       `json:"imageWidth"`
	ImageHeight      int       `json:"imageHeight"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

type TierMetadata struct {
	ComplexityTier  int    `json:"complexityTier"`
	ModelIdentifier string `json:"modelIdentifier"`
}

type ChallengeData struct {
	Objects            []Object `json:"objectList"`
	CorrectAnswerLabel string   `json:"correctAnswerLabel"`
}

// ObjectAudio links one object to its synthesized label audio.
type ObjectAudio struct {
	ObjectID    int    `json:"objectId"`
	ObjectLabel string `json:"objectLabel"`
	AudioKey    string `json:"audioKey"`
}

// AnnotationRecord is one processed image.
type AnnotationRecord struct {
	ID                 uuid.UUID                          `gorm:"type:uuid;primaryKey" json:"recordId"`
	OwnerID            string                             `gorm:"index;not null" json:"ownerId"`
	ImageKey           string                             `gorm:"not null" json:"imageKey"`
	MainAudioKey       string                             `gorm:"not null" json:"mainAudioKey"`
	CaptionPayload     datatypes.JSONType[CaptionPayload] `json:"captionPayload"`
	TierMetadata       datatypes.JSONType[TierMetadata]   `json:"tierMetadata"`
	ChallengeData      datatypes.JSONType[ChallengeData]  `json:"challengeData"`
	ObjectAudio        datatypes.JSONType[[]ObjectAudio]  `json:"objectAudio"`
	Status             string                             `gorm:"index;not null;default:active" json:"status"`
	IsBookmarked       bool                               `gorm:"not null;default:false" json:"isBookmarked"`
	ChallengeCompleted bool                               `gorm:"not null;default:false" json:"challengeCompleted"`
	UploadedAt         time.Time                          `gorm:"index;not null" json:"uploadedAt"`
}

// AssetKeys returns every asset key the record references.
func (r *AnnotationRecord) AssetKeys() []string {
	keys := []string{r.ImageKey, r.MainAudioKey}
	for _, a := range r.ObjectAudio.Data() {
		keys = append(keys, a.AudioKey)
	}
	return keys
}
