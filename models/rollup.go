package models

import "time"

const DayLayout = "2006-01-02"

type DailyRollup struct {
	Date     string  `json:"date" db:"date"`
	ItemID   string  `json:"item_id" db:"item_id"`
	ItemName string  `json:"item_name" db:"item_name"`
	Median   float64 `json:"median" db:"median"`
	P25      float64 `json:"p25" db:"p25"`
	P75      float64 `json:"p75" db:"p75"`
	Count    int     `json:"count" db:"count"`
}

// Day is a UTC calendar day counted from the unix epoch.
type Day int64

const dayMillis = int64(24 * time.Hour / time.Millisecond)

func DayOf(tsMillis int64) Day {
	if tsMillis < 0 {
		return Day((tsMillis - dayMillis + 1) / dayMillis)
	}
	return Day(tsMillis / dayMillis)
}

func (d Day) StartMillis() int64 { return int64(d) * dayMillis }
func (d Day) EndMillis() int64   { return int64(d+1) * dayMillis }

func (d Day) String() string {
	return time.UnixMilli(d.StartMillis()).UTC().Format(DayLayout)
}
