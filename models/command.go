package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdMonitorNow CommandType = "monitor_now"
	CmdCheckNow   CommandType = "check_now"
	CmdCheckCars  CommandType = "check_cars"
	CmdDropsAlert CommandType = "drops_alert"
	CmdPause      CommandType = "pause"
	CmdResume     CommandType = "resume"
)

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Filter string  `json:"filter,omitempty"`
	CarIDs []int64 `json:"car_ids,omitempty"`
}
