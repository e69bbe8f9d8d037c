package models

// Address is the postal address handed to the geocoding collaborator.
type Address struct {
	Street         string `json:"street" yaml:"street"`
	BuildingNumber string `json:"building_number" yaml:"building_number"`
	ZipCode        string `json:"zip_code" yaml:"zip_code"`
	City           string `json:"city" yaml:"city"`
}

// Empty reports whether the address carries no usable location.
func (a Address) Empty() bool {
	return a.Street == "" && a.City == ""
}

// Coordinates is a geocoded point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Preferences is a client's stated training profile.
type Preferences struct {
	ActivityLevel string   `json:"activity_level" yaml:"activity_level"`
	TrainingTypes []string `json:"training_types" yaml:"training_types"`
	Goal          string   `json:"goal" yaml:"goal"`
}

// WantsType reports whether the training type passes the preference filter.
// An empty interest list keeps everything.
func (p *Preferences) WantsType(trainingType string) bool {
	if p == nil || len(p.TrainingTypes) == 0 {
		return true
	}
	for _, t := range p.TrainingTypes {
		if t == trainingType {
			return true
		}
	}
	return false
}

type Client struct {
	ID          int64        `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	ScheduleID  int64        `json:"schedule_id" yaml:"-"`
	Address     Address      `json:"address" yaml:"address"`
	Preferences *Preferences `json:"preferences,omitempty" yaml:"preferences"`
}

type Trainer struct {
	ID             int64  `json:"id" yaml:"id"`
	Name           string `json:"name" yaml:"name"`
	Specialization string `json:"specialization" yaml:"specialization"`
	ScheduleID     int64  `json:"schedule_id" yaml:"-"`
}

// Gym owns rooms and, usually, a schedule. A gym without a schedule is a
// valid state: its rooms are simply excluded from conflict checking.
type Gym struct {
	ID         int64   `json:"id" yaml:"id"`
	Name       string  `json:"name" yaml:"name"`
	Address    Address `json:"address" yaml:"address"`
	ScheduleID *int64  `json:"schedule_id,omitempty" yaml:"-"`
}

type Room struct {
	ID       int64 `json:"id" yaml:"id"`
	GymID    int64 `json:"gym_id" yaml:"gym_id"`
	Capacity int64 `json:"capacity" yaml:"capacity"`
}
