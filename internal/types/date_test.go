package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateMarshalJSON(t *testing.T) {
	d := NewDate(time.Date(2024, 3, 15, 17, 42, 9, 0, time.UTC))

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-03-15"` {
		t.Errorf("MarshalJSON = %s, want %q", data, "2024-03-15")
	}
}

func TestNewDateTruncatesToUTCDay(t *testing.T) {
	zone := time.FixedZone("UTC+5", 5*3600)
	// 02:30 on the 16th in UTC+5 is 21:30 on the 15th in UTC.
	d := NewDate(time.Date(2024, 3, 16, 2, 30, 0, 0, zone))

	data, _ := json.Marshal(d)
	if string(data) != `"2024-03-15"` {
		t.Errorf("NewDate should bucket by the UTC day, got %s", data)
	}
}

func TestDateUnmarshalJSON(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"2024-03-15"`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Year() != 2024 || d.Month() != time.March || d.Day() != 15 {
		t.Errorf("unmarshaled wrong date: %v", d.Time)
	}
}

func TestDateUnmarshalRejectsNonString(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`20240315`), &d); err == nil {
		t.Error("expected error for unquoted value")
	}
}

func TestDateUnmarshalRejectsBadFormat(t *testing.T) {
	var d Date
	if err := json.Unmarshal([]byte(`"15/03/2024"`), &d); err == nil {
		t.Error("expected error for non-ISO date")
	}
}
