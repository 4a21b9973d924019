package command

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPattern_Channel(t *testing.T) {
	tests := []struct {
		pattern Pattern
		channel string
		reply   string
	}{
		{Cmd("login"), `{"cmd":"login"}`, `{"cmd":"login"}.reply`},
		{Topic("purchases.ping"), "purchases.ping", "purchases.ping.reply"},
	}
	for _, tt := range tests {
		if got := tt.pattern.Channel(); got != tt.channel {
			t.Errorf("Channel() = %q, want %q", got, tt.channel)
		}
		if got := tt.pattern.ReplyChannel(); got != tt.reply {
			t.Errorf("ReplyChannel() = %q, want %q", got, tt.reply)
		}
	}
}

func TestPattern_JSONRoundTrip(t *testing.T) {
	for _, p := range []Pattern{Cmd("verify_token"), Topic("process_gescom_data")} {
		data, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		var back Pattern
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("Unmarshal(%s): %v", data, err)
		}
		if back != p {
			t.Errorf("round trip of %s gave %+v", data, back)
		}
	}
}

func TestRequestPacket_Wire(t *testing.T) {
	data, err := json.Marshal(RequestPacket{
		Pattern: Cmd("login"),
		Data:    map[string]string{"email": "a@b.c"},
		ID:      "42",
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"pattern":{"cmd":"login"},"data":{"email":"a@b.c"},"id":"42"}`
	if string(data) != want {
		t.Errorf("packet = %s, want %s", data, want)
	}

	data, _ = json.Marshal(RequestPacket{Pattern: Topic("jobs.process"), Data: 1})
	if string(data) != `{"pattern":"jobs.process","data":1}` {
		t.Errorf("event packet = %s", data)
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantResult string
		wantErr    string
	}{
		{"response", `{"id":"1","response":{"token":"t"}}`, `{"token":"t"}`, ""},
		{"null response", `{"id":"1","response":null,"isDisposed":true}`, "null", ""},
		{"error", `{"id":"1","err":{"statusCode":400,"message":"bad"},"isDisposed":true}`, "", `{"statusCode":400,"message":"bad"}`},
		{"null err with response", `{"id":"1","err":null,"response":[1,2]}`, "[1,2]", ""},
		{"neither", `{"id":"1","isDisposed":true}`, `{"id":"1","isDisposed":true}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pkt ReplyPacket
			if err := json.Unmarshal([]byte(tt.raw), &pkt); err != nil {
				t.Fatal(err)
			}
			out := Settle([]byte(tt.raw), pkt)
			if string(out.Result) != tt.wantResult {
				t.Errorf("Result = %s, want %s", out.Result, tt.wantResult)
			}
			if string(out.Err) != tt.wantErr {
				t.Errorf("Err = %s, want %s", out.Err, tt.wantErr)
			}
			if (out.Result == nil) == (out.Err == nil) {
				t.Error("exactly one of Result and Err must be set")
			}
		})
	}
}

func TestRemoteError_Payload(t *testing.T) {
	e := &RemoteError{Backend: "auth", Pattern: Cmd("update"), Raw: json.RawMessage(`{"statusCode":400}`)}
	if string(e.Payload()) != `{"statusCode":400}` {
		t.Errorf("Payload() = %s", e.Payload())
	}
	if e.Error() != "backend auth answered update with an error" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestWithTimeout(t *testing.T) {
	tests := []struct {
		name string
		d    time.Duration
		want time.Duration
	}{
		{"positive overrides", 50 * time.Millisecond, 50 * time.Millisecond},
		{"zero keeps default", 0, 5 * time.Second},
		{"negative keeps default", -time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := SendOptions{Timeout: 5 * time.Second}
			WithTimeout(tt.d)(&o)
			if o.Timeout != tt.want {
				t.Errorf("Timeout = %v, want %v", o.Timeout, tt.want)
			}
		})
	}
}
