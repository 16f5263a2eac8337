package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ForecastRequestMessage asks a worker to compute a forecast run that has
// already been recorded as pending. The worker loads transactions itself.
type ForecastRequestMessage struct {
	RunID        string    `json:"run_id"`
	UserID       string    `json:"user_id"`
	Model        string    `json:"model"`
	Horizon      int       `json:"horizon"`
	MonthsAmount int       `json:"months_amount"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewForecastRequestMessage(runID, userID, model string, horizon, monthsAmount int) *ForecastRequestMessage {
	return &ForecastRequestMessage{
		RunID:        runID,
		UserID:       userID,
		Model:        model,
		Horizon:      horizon,
		MonthsAmount: monthsAmount,
		Timestamp:    time.Now(),
	}
}

func (m *ForecastRequestMessage) Validate() error {
	var errs []error
	if m.RunID == "" {
		errs = append(errs, errors.New("missing run_id"))
	}
	if m.UserID == "" {
		errs = append(errs, errors.New("missing user_id"))
	}
	if m.Model == "" {
		errs = append(errs, errors.New("missing model"))
	}
	if m.Horizon < 1 {
		errs = append(errs, errors.New("horizon must be at least 1"))
	}
	return errors.Join(errs...)
}

func (m *ForecastRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ForecastRequestMessageFromJSON(data []byte) (*ForecastRequestMessage, error) {
	var msg ForecastRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
