package ratelimit

import (
	"testing"
	"time"
)

func TestLimit_Emission(t *testing.T) {
	l := Limit{Rate: 10, Burst: 5, Period: time.Second}
	if got := l.Emission(); got != 100*time.Millisecond {
		t.Errorf("Emission() = %v", got)
	}
	if got := l.Tolerance(); got != 500*time.Millisecond {
		t.Errorf("Tolerance() = %v", got)
	}
}

func TestLimit_ZeroValues(t *testing.T) {
	l := Limit{Period: time.Minute}
	if got := l.Emission(); got != time.Minute {
		t.Errorf("Emission() = %v, want 1m", got)
	}
	if got := l.Tolerance(); got != time.Minute {
		t.Errorf("Tolerance() = %v, want 1m", got)
	}

	l = Limit{Rate: 4, Period: time.Second}
	if got := l.Tolerance(); got != time.Second {
		t.Errorf("burst defaults to rate: Tolerance() = %v", got)
	}
}

func TestClientKey(t *testing.T) {
	if got := ClientKey("10.0.0.1"); got != "edge:ip:10.0.0.1" {
		t.Errorf("ClientKey() = %q", got)
	}
}
