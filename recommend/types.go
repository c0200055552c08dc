package recommend

type Product struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	Color    string  `json:"color"`
	Image    string  `json:"image,omitempty"`
}

type Purchase struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Price    float64 `json:"price"`
	Color    string  `json:"color"`
}

type User struct {
	ID        int        `json:"id"`
	Name      string     `json:"name"`
	Age       float64    `json:"age"`
	Purchases []Purchase `json:"purchases"`
}

type EventType string

const (
	EventProgress         EventType = "progress"
	EventVisData          EventType = "tfvis_data"
	EventTrainingLog      EventType = "training_log"
	EventTrainingComplete EventType = "training_complete"
	EventRecommend        EventType = "recommend"
)

// Event is what the worker publishes. Data holds one of the payload types
// below, or nil for EventTrainingComplete.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data,omitempty"`
}

type Progress struct {
	Progress int `json:"progress"`
}

type VisData struct {
	Weights map[string]float64 `json:"weights"`
	Catalog []Product          `json:"catalog"`
	Users   []User             `json:"users"`
}

type TrainingLog struct {
	Epoch    int     `json:"epoch"`
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

type Recommendation struct {
	User            User      `json:"user"`
	Recommendations []Product `json:"recommendations"`
}
