package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/voltbora/volt/internal/models"
)

// TestNumberUnmarshal verifies the tolerant number decoding.
func TestNumberUnmarshal(t *testing.T) {
	tests := []struct {
		in    string
		want  float64
		valid bool
	}{
		{`12.5`, 12.5, true},
		{`"102,5"`, 102.5, true},
		{`" 80 "`, 80, true},
		{`null`, 0, false},
		{`"heavy"`, 0, false},
		{`true`, 0, false},
		{`{"kg": 5}`, 0, false},
		{`"NaN"`, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var n Number
			if err := json.Unmarshal([]byte(tt.in), &n); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if n.Valid != tt.valid || n.Value != tt.want {
				t.Errorf("got %+v, want {%v %v}", n, tt.want, tt.valid)
			}
		})
	}
}

// TestPayloadRoundTrip verifies a payload re-encoded by a client decodes to the same values.
func TestPayloadRoundTrip(t *testing.T) {
	in := SessionPayload{
		StartedAt:   "2024-03-06T07:30:00Z",
		DurationMin: Number{Value: 45, Valid: true},
		Exercises:   []ExercisePayload{{Name: "Bench", WeightKg: Number{Value: 80, Valid: true}}},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out SessionPayload
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.DurationMin != in.DurationMin || out.Exercises[0].WeightKg != in.Exercises[0].WeightKg || out.Exercises[0].RPE.Valid {
		t.Errorf("round trip = %+v", out)
	}
}

// TestNormalizeDefaults verifies missing fields default to zero and RPE is clamped.
func TestNormalizeDefaults(t *testing.T) {
	raw := `{
		"started_at": "2024-01-10T07:30:00Z",
		"name": "Push",
		"duration": "45",
		"exercises": [
			{"name": "Bench", "weight_kg": 80, "rpe": 14, "reps": 5},
			{"exercise": "Dips", "weight": "abc", "rpe": -2},
			{"name": "Fly", "weight": "12,5"}
		]
	}`
	var p SessionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s, err := p.Normalize(3, time.UTC)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	if s.UserID != 3 || s.Focus != "Push" || s.DurationMin != 45 || s.ID == uuid.Nil {
		t.Errorf("session = %+v", s)
	}
	if len(s.Exercises) != 3 {
		t.Fatalf("exercises = %d, want 3", len(s.Exercises))
	}
	bench, dips, fly := s.Exercises[0], s.Exercises[1], s.Exercises[2]
	if bench.WeightKg != 80 || bench.RPE != 10 || bench.Reps == nil || *bench.Reps != 5 {
		t.Errorf("bench = %+v", bench)
	}
	if dips.Name != "Dips" || dips.WeightKg != 0 || dips.RPE != 0 || dips.Reps != nil {
		t.Errorf("dips = %+v", dips)
	}
	if fly.WeightKg != 12.5 {
		t.Errorf("fly weight = %v, want 12.5", fly.WeightKg)
	}
	if s.Volume() != 92.5 {
		t.Errorf("volume = %v, want 92.5", s.Volume())
	}
}

// TestNormalizeImplausibleWeights verifies sets above the per-set cap are zeroed
// so they cannot overflow a volume total.
func TestNormalizeImplausibleWeights(t *testing.T) {
	raw := `{
		"started_at": "2024-01-10T07:30:00Z",
		"exercises": [
			{"name": "Squat", "weight_kg": 1e308},
			{"name": "Squat", "weight_kg": 1e308},
			{"name": "Squat", "weight_kg": 1000},
			{"name": "Squat", "weight_kg": 1000.5}
		]
	}`
	var p SessionPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s, err := p.Normalize(1, time.UTC)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := []float64{0, 0, 1000, 0}
	for i, e := range s.Exercises {
		if e.WeightKg != want[i] {
			t.Errorf("set %d weight = %v, want %v", i, e.WeightKg, want[i])
		}
	}
	if s.Volume() != 1000 {
		t.Errorf("volume = %v, want 1000", s.Volume())
	}
}

// TestNormalizeLocalTimestamp verifies zone-less timestamps are read in the configured zone.
func TestNormalizeLocalTimestamp(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	s, err := SessionPayload{Date: "2024-01-10 06:15"}.Normalize(1, loc)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	want := time.Date(2024, 1, 10, 6, 15, 0, 0, loc)
	if !s.StartedAt.Equal(want) {
		t.Errorf("StartedAt = %v, want %v", s.StartedAt, want)
	}
}

// TestNormalizeKeepsID verifies a client-supplied ID is kept so retries deduplicate.
func TestNormalizeKeepsID(t *testing.T) {
	id := uuid.New()
	s, err := SessionPayload{ID: id.String(), StartedAt: "2024-01-10"}.Normalize(1, time.UTC)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if s.ID != id {
		t.Errorf("ID = %v, want %v", s.ID, id)
	}
}

// TestNormalizeRejectsMissingTimestamp verifies sessions without a timestamp are rejected.
func TestNormalizeRejectsMissingTimestamp(t *testing.T) {
	_, err := SessionPayload{Focus: "Legs"}.Normalize(1, time.UTC)
	if !errors.Is(err, ErrMissingTimestamp) {
		t.Errorf("error = %v, want ErrMissingTimestamp", err)
	}
	if _, err := (SessionPayload{StartedAt: "yesterday"}).Normalize(1, time.UTC); err == nil {
		t.Error("expected error for unparsable timestamp")
	}
}

// TestNormalizeAllCountsRejects verifies one bad record does not drop the rest.
func TestNormalizeAllCountsRejects(t *testing.T) {
	payloads := []SessionPayload{
		{StartedAt: "2024-01-10", Exercises: []ExercisePayload{{Name: "Squat"}, {Name: "Lunge"}}},
		{Focus: "no date"},
		{StartedAt: "2024-01-11"},
	}
	sessions, res := NormalizeAll(payloads, 1, time.UTC)
	if len(sessions) != 2 {
		t.Errorf("sessions = %d, want 2", len(sessions))
	}
	if res.SessionsReceived != 3 || res.SessionsRejected != 1 || len(res.RejectedReasons) != 1 || res.SetsReceived != 2 {
		t.Errorf("result = %+v", res)
	}
}

type memRecorder struct {
	seen map[uuid.UUID]bool
	fail bool
}

func (m *memRecorder) Record(_ context.Context, s models.WorkoutSession) (bool, error) {
	if m.fail {
		return false, errors.New("db down")
	}
	if m.seen[s.ID] {
		return false, nil
	}
	m.seen[s.ID] = true
	return true, nil
}

// TestStoreTallies verifies inserted and duplicate sessions are counted separately.
func TestStoreTallies(t *testing.T) {
	rec := &memRecorder{seen: map[uuid.UUID]bool{}}
	s := models.WorkoutSession{ID: uuid.New(), StartedAt: time.Now()}
	res := &Result{}
	if err := Store(context.Background(), rec, []models.WorkoutSession{s, s}, res); err != nil {
		t.Fatalf("store: %v", err)
	}
	if res.SessionsInserted != 1 || res.SessionsSkipped != 1 {
		t.Errorf("result = %+v, want 1 inserted 1 skipped", res)
	}

	rec.fail = true
	if err := Store(context.Background(), rec, []models.WorkoutSession{s}, &Result{}); err == nil {
		t.Error("expected storage error")
	}
}
