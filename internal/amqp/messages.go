package amqp

import (
	"encoding/json"
	"time"
)

// SyncRequest asks the worker to pull one account's statement for a date
// range. It carries only identifiers; the worker loads everything else
// from the database.
type SyncRequest struct {
	AccountID int64     `json:"account_id"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

func NewSyncRequest(accountID int64, from, to time.Time) *SyncRequest {
	return &SyncRequest{
		AccountID: accountID,
		From:      from,
		To:        to,
		Timestamp: time.Now(),
	}
}

func (m *SyncRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func SyncRequestFromJSON(data []byte) (*SyncRequest, error) {
	var msg SyncRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// BudgetAlert notifies subscribers that a budget crossed its alert
// threshold during a sync.
type BudgetAlert struct {
	BudgetID     int64     `json:"budget_id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	UsagePercent float64   `json:"usage_percent"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewBudgetAlert(budgetID int64, name, category string, usagePercent float64) *BudgetAlert {
	return &BudgetAlert{
		BudgetID:     budgetID,
		Name:         name,
		Category:     category,
		UsagePercent: usagePercent,
		Timestamp:    time.Now(),
	}
}

func (m *BudgetAlert) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BudgetAlertFromJSON(data []byte) (*BudgetAlert, error) {
	var msg BudgetAlert
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
