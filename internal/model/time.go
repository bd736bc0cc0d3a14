package model

import (
	"fmt"
	"time"
)

// LocalTime is a custom time type to format time as "YYYY-MM-DD HH:MM:SS".
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// MarshalJSON implements the json.Marshaler interface.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%q", t.String())), nil
}

func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}
