package models

// AccountSetting holds per-account preferences owned by the account subsystem.
type AccountSetting struct {
	UserID         string `gorm:"primaryKey" json:"userId"`
	ComplexityTier int    `gorm:"not null" json:"complexityTier"`
	CanUpload      bool   `gorm:"not null" json:"canUpload"`
}

// AccountLink relates a supervising account to a child account.
type AccountLink struct {
	AdultID string `gorm:"primaryKey" json:"adultId"`
	ChildID string `gorm:"primaryKey" json:"childId"`
}
