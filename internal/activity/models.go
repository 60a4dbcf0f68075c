package activity

import (
	"encoding/json"
	"time"
)

const (
	DifficultyEasy          = "Easy"
	DifficultyModerate      = "Moderate"
	DifficultyHard          = "Hard"
	DifficultyVeryHard      = "Very Hard"
	DifficultyExtremelyHard = "Extremely Hard"
	TypeRun                 = "Run"
	TypeBike                = "Bike"
	TypeHike                = "Hike"
	RouteFlat               = "Flat"
	RouteRolling            = "Rolling"
	RouteHilly              = "Hilly"
	ClimbFour               = "Four"
	ClimbThree              = "Three"
	ClimbTwo                = "Two"
	ClimbOne                = "One"
	ClimbHorsCategorie      = "Hors Categorie (HC)"
)

var (
	DifficultyLevels = []string{DifficultyEasy, DifficultyModerate, DifficultyHard, DifficultyVeryHard, DifficultyExtremelyHard}
	ActivityTypes    = []string{TypeRun, TypeBike, TypeHike}
	RouteTypes       = []string{RouteFlat, RouteRolling, RouteHilly}
	ClimbCategories  = []string{ClimbFour, ClimbThree, ClimbTwo, ClimbOne, ClimbHorsCategorie}
)

type Address struct {
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	Country string `json:"country" validate:"required"`
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Activity struct {
	ID               string      `json:"id"`
	Slug             string      `json:"slug"`
	Name             string      `json:"name"`
	Description      string      `json:"description"`
	Distance         float64     `json:"distance"`
	ElevationGain    float64     `json:"elevationGain"`
	MinimumGrade     *float64    `json:"minimumGrade,omitempty"`
	MaximumGrade     *float64    `json:"maximumGrade,omitempty"`
	AverageGrade     float64     `json:"averageGrade"`
	TimeToComplete   *float64    `json:"timeToComplete,omitempty"`
	DifficultyLevel  string      `json:"difficultyLevel"`
	ActivityType     string      `json:"activityType"`
	RouteType        string      `json:"routeType"`
	ClimbCategory    *string     `json:"climbCategory,omitempty"`
	Photos           []string    `json:"photos"`
	Tags             []string    `json:"tags"`
	Address          *Address    `json:"address,omitempty"`
	StartCoordinate  *Coordinate `json:"startCoordinate,omitempty"`
	EndCoordinate    *Coordinate `json:"endCoordinate,omitempty"`
	StartToEndKm     *float64    `json:"startToEndKm,omitempty"`
	CreatedBy        string      `json:"createdBy"`
	IsCreatedByAdmin bool        `json:"isCreatedByAdmin"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// CoordinateInput distinguishes a missing latitude from 0.
type CoordinateInput struct {
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

// Payload is the full write shape of an activity. Server-owned fields
// (id, slug, createdBy, isCreatedByAdmin, timestamps) are not part of it,
// so strict decoding rejects them.
type Payload struct {
	Name            string           `json:"name" validate:"required,max=200"`
	Description     string           `json:"description" validate:"required"`
	Distance        *float64         `json:"distance" validate:"required,gte=0"`
	ElevationGain   *float64         `json:"elevationGain" validate:"required"`
	MinimumGrade    *float64         `json:"minimumGrade"`
	MaximumGrade    *float64         `json:"maximumGrade"`
	AverageGrade    *float64         `json:"averageGrade" validate:"required"`
	TimeToComplete  *float64         `json:"timeToComplete" validate:"omitempty,gte=0"`
	DifficultyLevel string           `json:"difficultyLevel" validate:"required,difficulty"`
	ActivityType    string           `json:"activityType" validate:"required,activitytype"`
	RouteType       string           `json:"routeType" validate:"required,routetype"`
	ClimbCategory   *string          `json:"climbCategory" validate:"omitempty,climbcategory"`
	Photos          []string         `json:"photos" validate:"omitempty,dive,required"`
	Tags            []string         `json:"tags" validate:"omitempty,dive,required"`
	Address         *Address         `json:"address" validate:"required"`
	StartCoordinate *CoordinateInput `json:"startCoordinate"`
	EndCoordinate   *CoordinateInput `json:"endCoordinate"`
}

// Nullable tracks whether a patch field was sent, and whether it was null.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if string(data) == "null" {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// Patch is a partial update. Absent fields keep their stored value; the
// nullable ones can be cleared with an explicit null.
type Patch struct {
	Name            *string           `json:"name"`
	Description     *string           `json:"description"`
	Distance        *float64          `json:"distance"`
	ElevationGain   *float64          `json:"elevationGain"`
	MinimumGrade    Nullable[float64] `json:"minimumGrade"`
	MaximumGrade    Nullable[float64] `json:"maximumGrade"`
	AverageGrade    *float64          `json:"averageGrade"`
	TimeToComplete  Nullable[float64] `json:"timeToComplete"`
	DifficultyLevel *string           `json:"difficultyLevel"`
	ActivityType    *string           `json:"activityType"`
	RouteType       *string           `json:"routeType"`
	ClimbCategory   Nullable[string]  `json:"climbCategory"`
	Photos          *[]string         `json:"photos"`
	Tags            *[]string         `json:"tags"`
	Address         *Address          `json:"address"`
	StartCoordinate *CoordinateInput  `json:"startCoordinate"`
	EndCoordinate   *CoordinateInput  `json:"endCoordinate"`
}

type Filter struct {
	City          string
	State         string
	Country       string
	ClimbCategory string
}

type SeedRequest struct {
	Activities []json.RawMessage `json:"activities"`
}
