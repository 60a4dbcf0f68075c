package activity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/damygoes/EcoStride-REST-API/internal/apperror"
	"github.com/damygoes/EcoStride-REST-API/internal/shared/validation"

	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
)

func newValidator() *validator.Validate {
	v := validation.New()
	for tag, values := range map[string][]string{
		"difficulty":    DifficultyLevels,
		"activitytype":  ActivityTypes,
		"routetype":     RouteTypes,
		"climbcategory": ClimbCategories,
	} {
		if err := validation.RegisterEnum(v, tag, values); err != nil {
			panic(err)
		}
	}
	return v
}

// Slugify derives the URL identifier of an activity from its name.
func Slugify(name string) string {
	return slug.Make(name)
}

// DecodePayload strictly decodes a create payload: unknown fields and
// wrongly typed values are validation errors.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := decodeStrict(raw, &p); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func DecodePatch(raw []byte) (Patch, error) {
	var p Patch
	if err := decodeStrict(raw, &p); err != nil {
		return Patch{}, err
	}
	return p, nil
}

func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("", "payload must be a single JSON object")
	}
	return nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return apperror.ValidationFailed(typeErr.Field, fmt.Sprintf("%s must be of type %s", typeErr.Field, typeErr.Type.String()))
	}
	msg := err.Error()
	if field, ok := strings.CutPrefix(msg, "json: unknown field "); ok {
		field = strings.Trim(field, `"`)
		return apperror.ValidationFailed(field, field+" is not allowed")
	}
	if errors.Is(err, io.EOF) {
		return apperror.ValidationFailed("", "payload is required")
	}
	return apperror.ValidationFailed("", "invalid JSON payload")
}

// Validate checks a payload and reports the first failing field.
func (s *Service) Validate(p Payload) error {
	if err := validation.Struct(s.validate, p); err != nil {
		return err
	}
	if Slugify(p.Name) == "" {
		return apperror.ValidationFailed("name", "name must contain letters or digits")
	}
	return checkClimbCategory(p.ActivityType, p.RouteType, p.ClimbCategory)
}

// checkClimbCategory enforces that climbCategory is present exactly when
// the activity is a Bike activity or runs on a Hilly route.
func checkClimbCategory(activityType, routeType string, category *string) error {
	applicable := activityType == TypeBike || routeType == RouteHilly
	switch {
	case applicable && category == nil:
		return apperror.ValidationFailed("climbCategory", `climbCategory is required for "Bike" activities and "Hilly" routes`)
	case !applicable && category != nil:
		return apperror.ValidationFailed("climbCategory", `climbCategory can only be specified for "Bike" activities or "Hilly" routes`)
	}
	return nil
}

// payloadOf rebuilds the write shape of a stored activity.
func payloadOf(a Activity) Payload {
	p := Payload{
		Name:            a.Name,
		Description:     a.Description,
		Distance:        ptr(a.Distance),
		ElevationGain:   ptr(a.ElevationGain),
		MinimumGrade:    a.MinimumGrade,
		MaximumGrade:    a.MaximumGrade,
		AverageGrade:    ptr(a.AverageGrade),
		TimeToComplete:  a.TimeToComplete,
		DifficultyLevel: a.DifficultyLevel,
		ActivityType:    a.ActivityType,
		RouteType:       a.RouteType,
		ClimbCategory:   a.ClimbCategory,
		Photos:          a.Photos,
		Tags:            a.Tags,
		Address:         a.Address,
	}
	if a.StartCoordinate != nil {
		p.StartCoordinate = &CoordinateInput{Latitude: ptr(a.StartCoordinate.Latitude), Longitude: ptr(a.StartCoordinate.Longitude)}
	}
	if a.EndCoordinate != nil {
		p.EndCoordinate = &CoordinateInput{Latitude: ptr(a.EndCoordinate.Latitude), Longitude: ptr(a.EndCoordinate.Longitude)}
	}
	return p
}

// Apply merges the patch over p field by field.
func (patch Patch) Apply(p Payload) Payload {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Distance != nil {
		p.Distance = patch.Distance
	}
	if patch.ElevationGain != nil {
		p.ElevationGain = patch.ElevationGain
	}
	if patch.MinimumGrade.Set {
		p.MinimumGrade = patch.MinimumGrade.Value
	}
	if patch.MaximumGrade.Set {
		p.MaximumGrade = patch.MaximumGrade.Value
	}
	if patch.AverageGrade != nil {
		p.AverageGrade = patch.AverageGrade
	}
	if patch.TimeToComplete.Set {
		p.TimeToComplete = patch.TimeToComplete.Value
	}
	if patch.DifficultyLevel != nil {
		p.DifficultyLevel = *patch.DifficultyLevel
	}
	if patch.ActivityType != nil {
		p.ActivityType = *patch.ActivityType
	}
	if patch.RouteType != nil {
		p.RouteType = *patch.RouteType
	}
	if patch.ClimbCategory.Set {
		p.ClimbCategory = patch.ClimbCategory.Value
	}
	if patch.Photos != nil {
		p.Photos = *patch.Photos
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
	if patch.Address != nil {
		p.Address = patch.Address
	}
	if patch.StartCoordinate != nil {
		p.StartCoordinate = patch.StartCoordinate
	}
	if patch.EndCoordinate != nil {
		p.EndCoordinate = patch.EndCoordinate
	}
	return p
}

func ptr[T any](v T) *T {
	return &v
}
