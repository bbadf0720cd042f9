package database

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the moderation state of a pass record. Only StatusNew records
// can be edited through UpdatePass.
type Status string

const (
	StatusNew      Status = "new"
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusPending, StatusAccepted, StatusRejected:
		return true
	}
	return false
}

// maxGradeLen matches the width of the level_* columns in the FSTR schema
const maxGradeLen = 10

// timeLayout is fixed-width UTC so add_time sorts lexically
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// Decimal is a base-10 number kept as the exact text it was received as
type Decimal string

// ParseDecimal validates s as a plain decimal literal
func ParseDecimal(s string) (Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty number")
	}
	if !json.Valid([]byte(s)) {
		return "", fmt.Errorf("invalid number %q", s)
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return "", fmt.Errorf("invalid number %q", s)
	}
	return Decimal(s), nil
}

// Float64 returns the nearest float64
func (d Decimal) Float64() float64 {
	f, _ := strconv.ParseFloat(string(d), 64)
	return f
}

func (d Decimal) String() string {
	return string(d)
}

// MarshalJSON writes the decimal as a JSON number without reformatting it
func (d Decimal) MarshalJSON() ([]byte, error) {
	if d == "" {
		return []byte("null"), nil
	}
	return []byte(d), nil
}

// UnmarshalJSON accepts a JSON number or a numeric string
func (d *Decimal) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		*d = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = s
	}
	parsed, err := ParseDecimal(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Submitter is the person reporting a pass
type Submitter struct {
	ID         int64            `json:"id"`
	Email      string           `json:"email"`
	FamilyName string           `json:"family_name"`
	GivenName  string           `json:"given_name"`
	Patronymic Optional[string] `json:"patronymic"`
	Phone      string           `json:"phone"`
}

// Coordinate is the location of a pass. It belongs to exactly one record.
type Coordinate struct {
	ID        int64   `json:"id"`
	Latitude  Decimal `json:"latitude"`
	Longitude Decimal `json:"longitude"`
	Elevation int64   `json:"elevation"`
}

// Difficulty holds a grade per season. An empty grade means no rating.
type Difficulty struct {
	Winter string `json:"winter"`
	Summer string `json:"summer"`
	Autumn string `json:"autumn"`
	Spring string `json:"spring"`
}

// Image is an opaque photo payload attached to a record
type Image struct {
	ID      int64  `json:"id,omitempty"`
	Payload string `json:"payload"`
	Caption string `json:"caption"`
}

// PassRecord is a fully loaded pass submission
type PassRecord struct {
	ID                  int64      `json:"id"`
	DisplayTitle        string     `json:"display_title"`
	OfficialTitle       string     `json:"official_title"`
	AltTitles           string     `json:"alt_titles"`
	ConnectsDescription string     `json:"connects_description"`
	SubmittedAt         time.Time  `json:"submitted_at"`
	Submitter           Submitter  `json:"submitter"`
	Coordinate          Coordinate `json:"coordinate"`
	Difficulty          Difficulty `json:"difficulty"`
	Status              Status     `json:"status"`
	Images              []Image    `json:"images"`
}

// NewPass is the input to CreatePass
type NewPass struct {
	Submitter           Submitter
	Coordinate          Coordinate
	DisplayTitle        string
	OfficialTitle       string
	AltTitles           string
	ConnectsDescription string
	SubmittedAt         time.Time
	Difficulty          Difficulty
	Images              []Image
}

// CoordinatePatch updates a record's coordinate in place
type CoordinatePatch struct {
	Latitude  Optional[Decimal] `json:"latitude"`
	Longitude Optional[Decimal] `json:"longitude"`
	Elevation Optional[int64]   `json:"elevation"`
}

// DifficultyPatch updates individual season grades
type DifficultyPatch struct {
	Winter Optional[string] `json:"winter"`
	Summer Optional[string] `json:"summer"`
	Autumn Optional[string] `json:"autumn"`
	Spring Optional[string] `json:"spring"`
}

// PassPatch is a sparse update. Absent fields are left untouched; the
// submitter, id and status cannot be expressed here.
type PassPatch struct {
	DisplayTitle        Optional[string]
	OfficialTitle       Optional[string]
	AltTitles           Optional[string]
	ConnectsDescription Optional[string]
	SubmittedAt         Optional[time.Time]
	Coordinate          Optional[CoordinatePatch]
	Difficulty          DifficultyPatch
	Images              Optional[[]Image]
}

// Empty reports whether the patch carries no fields at all
func (p *PassPatch) Empty() bool {
	if p.Coordinate.Set || p.Images.Set {
		return false
	}
	for _, col := range passColumns {
		if _, ok := col.value(p); ok {
			return false
		}
	}
	return true
}

// UpdateResult reports whether UpdatePass applied the patch
type UpdateResult struct {
	Accepted bool
	Reason   string
}

func (np *NewPass) validate() error {
	if strings.TrimSpace(np.OfficialTitle) == "" {
		return &ValidationError{Field: "official_title", Message: "is required"}
	}
	if err := validateEmail(np.Submitter.Email); err != nil {
		return err
	}
	if err := validateLatitude(np.Coordinate.Latitude); err != nil {
		return err
	}
	if err := validateLongitude(np.Coordinate.Longitude); err != nil {
		return err
	}
	for _, g := range np.Difficulty.grades() {
		if err := validateGrade(g.field, g.grade); err != nil {
			return err
		}
	}
	return validateImages(np.Images)
}

func (p *PassPatch) validate() error {
	if title, ok := p.OfficialTitle.Get(); ok && strings.TrimSpace(title) == "" {
		return &ValidationError{Field: "official_title", Message: "cannot be empty"}
	}
	if at, ok := p.SubmittedAt.Get(); ok && at.IsZero() {
		return &ValidationError{Field: "submitted_at", Message: "cannot be empty"}
	}
	if c, ok := p.Coordinate.Get(); ok {
		if lat, ok := c.Latitude.Get(); ok {
			if err := validateLatitude(lat); err != nil {
				return err
			}
		}
		if lon, ok := c.Longitude.Get(); ok {
			if err := validateLongitude(lon); err != nil {
				return err
			}
		}
	}
	for _, col := range passColumns {
		if !col.grade {
			continue
		}
		if v, ok := col.value(p); ok {
			if err := validateGrade(col.field, v.(string)); err != nil {
				return err
			}
		}
	}
	if images, ok := p.Images.Get(); ok {
		return validateImages(images)
	}
	return nil
}

type seasonGrade struct {
	field string
	grade string
}

func (d Difficulty) grades() []seasonGrade {
	return []seasonGrade{
		{"difficulty.winter", d.Winter},
		{"difficulty.summer", d.Summer},
		{"difficulty.autumn", d.Autumn},
		{"difficulty.spring", d.Spring},
	}
}

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "submitter.email", Message: "is required"}
	}
	if !strings.Contains(email, "@") {
		return &ValidationError{Field: "submitter.email", Message: "is not an email address"}
	}
	return nil
}

func validateLatitude(d Decimal) error {
	if d == "" {
		return &ValidationError{Field: "coordinate.latitude", Message: "is required"}
	}
	if f := d.Float64(); f < -90 || f > 90 {
		return &ValidationError{Field: "coordinate.latitude", Message: "must be between -90 and 90"}
	}
	return nil
}

func validateLongitude(d Decimal) error {
	if d == "" {
		return &ValidationError{Field: "coordinate.longitude", Message: "is required"}
	}
	if f := d.Float64(); f < -180 || f > 180 {
		return &ValidationError{Field: "coordinate.longitude", Message: "must be between -180 and 180"}
	}
	return nil
}

func validateGrade(field, grade string) error {
	if len(grade) > maxGradeLen {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be at most %d characters", maxGradeLen)}
	}
	return nil
}

func validateImages(images []Image) error {
	for i, img := range images {
		if img.Payload == "" {
			return &ValidationError{Field: fmt.Sprintf("images[%d].payload", i), Message: "is required"}
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// storedTimeLayouts also covers rows written by the previous service
var storedTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid add_time %q", s)
}
