package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdPollNow    CommandType = "poll_now"
	CmdImportNow  CommandType = "import_now"
	CmdCompactNow CommandType = "compact_now"
	CmdPause      CommandType = "pause"
	CmdResume     CommandType = "resume"
)

var CommandTypes = []CommandType{CmdPollNow, CmdImportNow, CmdCompactNow, CmdPause, CmdResume}

type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

func ParseCommandType(s string) (CommandType, bool) {
	for _, c := range CommandTypes {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}
