package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltbora/volt/internal/models"
)

// ErrMissingTimestamp rejects a session that cannot be placed on the calendar.
var ErrMissingTimestamp = errors.New("session has no timestamp")

// Number accepts a JSON number, a numeric string (with "," or "." as decimal
// separator), null, or garbage. Anything that is not a finite number decodes
// as absent.
type Number struct {
	Value float64
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	*n = Number{Value: f, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler. An absent number encodes as null.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// Or returns the value, or def when absent.
func (n Number) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

// ExercisePayload is one set as clients send it.
type ExercisePayload struct {
	Name     string `json:"name"`
	Exercise string `json:"exercise"`
	WeightKg Number `json:"weight_kg"`
	Weight   Number `json:"weight"`
	RPE      Number `json:"rpe"`
	Reps     Number `json:"reps"`
	Note     string `json:"note"`
}

// SessionPayload is a workout session as clients send it. Field aliases cover
// the shapes older clients used.
type SessionPayload struct {
	ID          string            `json:"id"`
	StartedAt   string            `json:"started_at"`
	Date        string            `json:"date"`
	Focus       string            `json:"focus"`
	Name        string            `json:"name"`
	DurationMin Number            `json:"duration_min"`
	Duration    Number            `json:"duration"`
	Exercises   []ExercisePayload `json:"exercises"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	time.DateOnly,
}

// parseTimestamp accepts RFC 3339 or a zone-less local time, interpreted in loc.
func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrMissingTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Normalize converts a payload into a typed session owned by userID. Missing,
// non-numeric or implausible weights (see models.MaxSetWeightKg) become 0, RPE is clamped to 0-10, and a missing ID is
// generated. Only a missing or unparsable timestamp is an error.
func (p SessionPayload) Normalize(userID int, loc *time.Location) (models.WorkoutSession, error) {
	ts := p.StartedAt
	if ts == "" {
		ts = p.Date
	}
	startedAt, err := parseTimestamp(ts, loc)
	if err != nil {
		return models.WorkoutSession{}, err
	}

	id, err := uuid.Parse(p.ID)
	if err != nil {
		id = uuid.New()
	}

	s := models.WorkoutSession{
		ID:          id,
		UserID:      userID,
		StartedAt:   startedAt,
		Focus:       firstNonEmpty(p.Focus, p.Name),
		DurationMin: nonNegative(p.DurationMin.Or(p.Duration.Or(0))),
		Exercises:   make([]models.ExerciseEntry, 0, len(p.Exercises)),
	}
	for _, e := range p.Exercises {
		entry := models.ExerciseEntry{
			Name:     strings.TrimSpace(firstNonEmpty(e.Name, e.Exercise)),
			WeightKg: models.SetWeight(e.WeightKg.Or(e.Weight.Or(0))),
			RPE:      math.Min(10, nonNegative(e.RPE.Or(0))),
			Note:     e.Note,
		}
		if e.Reps.Valid && e.Reps.Value >= 0 {
			reps := int(math.Round(e.Reps.Value))
			entry.Reps = &reps
		}
		s.Exercises = append(s.Exercises, entry)
	}
	return s, nil
}

// NormalizeAll normalizes a batch, skipping and counting sessions that cannot be
// placed on the calendar.
func NormalizeAll(payloads []SessionPayload, userID int, loc *time.Location) ([]models.WorkoutSession, *Result) {
	res := &Result{SessionsReceived: len(payloads)}
	sessions := make([]models.WorkoutSession, 0, len(payloads))
	for i, p := range payloads {
		s, err := p.Normalize(userID, loc)
		if err != nil {
			res.reject(fmt.Sprintf("session %d: %v", i, err))
			continue
		}
		res.SetsReceived += len(s.Exercises)
		sessions = append(sessions, s)
	}
	return sessions, res
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
