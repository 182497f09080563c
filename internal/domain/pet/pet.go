package pet

// ExperienceCap is the ceiling for experience points. The XP bar renders
// experience out of this value.
const ExperienceCap = 100

// State is the dragon owned by one session.
type State struct {
	Hunger     Gauge
	Happiness  Gauge
	experience int
}

// NewState creates a dragon with the configured starting gauges and no
// experience.
func NewState(hunger, happiness int) *State {
	return &State{
		Hunger:    NewGauge(hunger),
		Happiness: NewGauge(happiness),
	}
}

// Restore rebuilds a dragon from a persisted snapshot.
func Restore(hunger, happiness, experience int) *State {
	s := NewState(hunger, happiness)
	s.GainExperience(experience)
	return s
}

// Experience returns the current experience points.
func (s *State) Experience() int {
	return s.experience
}

// GainExperience adds points, saturating at ExperienceCap. Experience never
// decreases.
func (s *State) GainExperience(points int) {
	if points <= 0 {
		return
	}
	s.experience += points
	if s.experience > ExperienceCap {
		s.experience = ExperienceCap
	}
}

// Stats is a read-only view of the dragon for rendering and persistence.
type Stats struct {
	Hunger     int `json:"hunger"`
	Happiness  int `json:"happiness"`
	Experience int `json:"experience"`
}

// Stats returns the current values.
func (s *State) Stats() Stats {
	return Stats{
		Hunger:     s.Hunger.Value(),
		Happiness:  s.Happiness.Value(),
		Experience: s.experience,
	}
}

// Mood picks the sprite the client shows for the current stats.
func (s *State) Mood() Mood {
	switch {
	case s.Hunger.Full() && s.Happiness.Full():
		return MoodHappy
	case s.Hunger.Value() < 20:
		return MoodHungry
	default:
		return MoodIdle
	}
}

// Mood is the dragon's displayed state.
type Mood string

const (
	MoodIdle   Mood = "idle"
	MoodHungry Mood = "hungry"
	MoodEating Mood = "eating"
	MoodHappy  Mood = "happy"
)
