package configdb

import (
	"errors"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Variable is one key/value configuration row
type Variable struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

func (Variable) TableName() string {
	return "variable"
}

// Settings are the operator-tunable knobs of the server.
// Zero values mean "use the default".
type Settings struct {
	VideoSource      string  `json:"videoSource"`      // Path or URL of the video feed
	FinishFraction   float64 `json:"finishFraction"`   // Fraction of frame width that is the finish line
	MinBibConfidence float64 `json:"minBibConfidence"` // Detector confidence gate before OCR
	OCRCropPadding   int     `json:"ocrCropPadding"`   // Pixels of margin around a bib crop
	HTTPPort         int     `json:"httpPort"`         // Port the API listens on
}

func DefaultSettings() Settings {
	return Settings{
		FinishFraction:   0.85,
		MinBibConfidence: 0.70,
		OCRCropPadding:   15,
		HTTPPort:         8000,
	}
}

const (
	varVideoSource      = "VideoSource"
	varFinishFraction   = "FinishFraction"
	varMinBibConfidence = "MinBibConfidence"
	varOCRCropPadding   = "OCRCropPadding"
	varHTTPPort         = "HTTPPort"
)

// GetSettings reads the stored settings, falling back to defaults for keys
// that have never been set.
func (c *ConfigDB) GetSettings() (Settings, error) {
	s := DefaultSettings()
	vars := []Variable{}
	if err := c.DB.Find(&vars).Error; err != nil {
		return s, err
	}
	for _, v := range vars {
		switch v.Key {
		case varVideoSource:
			s.VideoSource = v.Value
		case varFinishFraction:
			if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
				s.FinishFraction = f
			}
		case varMinBibConfidence:
			if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
				s.MinBibConfidence = f
			}
		case varOCRCropPadding:
			if n, err := strconv.Atoi(v.Value); err == nil {
				s.OCRCropPadding = n
			}
		case varHTTPPort:
			if n, err := strconv.Atoi(v.Value); err == nil {
				s.HTTPPort = n
			}
		}
	}
	return s, nil
}

// SetSettings validates and stores the settings
func (c *ConfigDB) SetSettings(s Settings) error {
	if s.FinishFraction <= 0 || s.FinishFraction > 1 {
		return errors.New("finishFraction must be in (0, 1]")
	}
	if s.MinBibConfidence < 0 || s.MinBibConfidence > 1 {
		return errors.New("minBibConfidence must be in [0, 1]")
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return errors.New("httpPort must be a valid port number")
	}
	vars := []Variable{
		{Key: varVideoSource, Value: s.VideoSource},
		{Key: varFinishFraction, Value: strconv.FormatFloat(s.FinishFraction, 'f', -1, 64)},
		{Key: varMinBibConfidence, Value: strconv.FormatFloat(s.MinBibConfidence, 'f', -1, 64)},
		{Key: varOCRCropPadding, Value: strconv.Itoa(s.OCRCropPadding)},
		{Key: varHTTPPort, Value: strconv.Itoa(s.HTTPPort)},
	}
	return c.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&vars).Error
	})
}
