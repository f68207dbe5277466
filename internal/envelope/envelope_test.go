package envelope

import (
	"encoding/json"
	"reflect"
	"testing"

	apperrors "github.com/chatlink/client/internal/errors"
)

func TestEncodeInit(t *testing.T) {
	tests := []struct {
		name  string
		token string
		ok    bool
		want  string
	}{
		{"with token", "abc", true, `{"type":"initWS","value":"abc"}`},
		{"without token", "", false, `{"type":"initWS","value":null}`},
		{"quotes escaped", `a"b`, true, `{"type":"initWS","value":"a\"b"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeInit(tt.token, tt.ok); got != tt.want {
				t.Errorf("EncodeInit() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestControlToken(t *testing.T) {
	c, err := DecodeControl(EncodeInit("t1", true))
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	token, ok, err := c.Token()
	if err != nil || !ok || token != "t1" {
		t.Errorf("Token() = (%q, %v, %v)", token, ok, err)
	}

	c, _ = DecodeControl(EncodeInit("", false))
	if _, ok, err := c.Token(); ok || err != nil {
		t.Errorf("null token: ok=%v err=%v", ok, err)
	}
}

func TestEncodeMessage_RoundTrip(t *testing.T) {
	values := []any{
		Request{Type: RequestLoginQrCode},
		map[string]any{"roomId": float64(1), "msgType": float64(1), "body": map[string]any{"content": "hi"}},
		"plain string",
		[]any{float64(1), "two", true},
	}

	for _, v := range values {
		line, err := EncodeMessage(v)
		if err != nil {
			t.Fatalf("EncodeMessage(%v): %v", v, err)
		}
		c, err := DecodeControl(line)
		if err != nil {
			t.Fatalf("DecodeControl(%s): %v", line, err)
		}
		if c.Type != TypeMessage {
			t.Errorf("Type = %q, want %q", c.Type, TypeMessage)
		}

		want, _ := json.Marshal(v)
		if string(c.Value) != string(want) {
			t.Errorf("Value = %s, want %s", c.Value, want)
		}

		var back any
		if err := json.Unmarshal(c.Value, &back); err != nil {
			t.Fatalf("unmarshal value: %v", err)
		}
		var orig any
		_ = json.Unmarshal(want, &orig)
		if !reflect.DeepEqual(back, orig) {
			t.Errorf("round trip = %#v, want %#v", back, orig)
		}
	}
}

func TestEncodeMessage_RawMessage(t *testing.T) {
	line, err := EncodeMessage(json.RawMessage(`{"type":3,"data":{"token":"x"}}`))
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if line != `{"type":"message","value":{"type":3,"data":{"token":"x"}}}` {
		t.Errorf("line = %s", line)
	}

	_, err = EncodeMessage(json.RawMessage(`{broken`))
	if !apperrors.IsCode(err, apperrors.CodeChannelEncodeFail) {
		t.Errorf("invalid raw JSON error = %v", err)
	}
}

func TestEncodeMessage_Unencodable(t *testing.T) {
	_, err := EncodeMessage(make(chan int))
	if !apperrors.IsCode(err, apperrors.CodeChannelEncodeFail) {
		t.Errorf("error = %v, want %s", err, apperrors.CodeChannelEncodeFail)
	}
}

func TestSignalsAndData(t *testing.T) {
	for _, kind := range []string{TypeOpen, TypeClose, TypeError} {
		c, err := DecodeControl(EncodeSignal(kind))
		if err != nil {
			t.Fatalf("DecodeControl(%s): %v", kind, err)
		}
		if c.Type != kind || len(c.Value) != 0 {
			t.Errorf("signal %s decoded as %+v", kind, c)
		}
	}

	raw := `{"type":4,"data":{"content":"hi"}}`
	c, err := DecodeControl(EncodeData(raw))
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	text, err := c.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != raw {
		t.Errorf("Text() = %s, want %s", text, raw)
	}
}

func TestDecodeControl_Invalid(t *testing.T) {
	for _, line := range []string{"", "not json", `{"value":1}`, `[]`} {
		if _, err := DecodeControl(line); !apperrors.IsCode(err, apperrors.CodeDecodeInvalidEnvelope) {
			t.Errorf("DecodeControl(%q) error = %v", line, err)
		}
	}
}

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind EventKind
		wantMsg  string
		wantData string
		wantErr  bool
	}{
		{
			name:     "typed",
			raw:      `{"type":1,"data":{"loginUrl":"http://x"}}`,
			wantKind: KindLoginQrCode,
			wantData: `{"loginUrl":"http://x"}`,
		},
		{
			name:     "no data",
			raw:      `{"type":6}`,
			wantKind: KindTokenExpired,
		},
		{
			name:     "bare error form",
			raw:      `{"code":1000,"msg":"bad password"}`,
			wantKind: KindLoginError,
			wantMsg:  "bad password",
		},
		{
			name:     "unknown kind still decodes",
			raw:      `{"type":77,"data":null}`,
			wantKind: EventKind(77),
			wantData: "null",
		},
		{name: "missing type", raw: `{"data":{}}`, wantErr: true},
		{name: "other code", raw: `{"code":500,"msg":"x"}`, wantErr: true},
		{name: "not json", raw: `{"type":`, wantErr: true},
		{name: "string type", raw: `{"type":"LoginSuccess"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := DecodeInbound(tt.raw)
			if tt.wantErr {
				if !apperrors.IsCode(err, apperrors.CodeDecodeInvalidEnvelope) {
					t.Errorf("error = %v, want %s", err, apperrors.CodeDecodeInvalidEnvelope)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeInbound: %v", err)
			}
			if in.Type != tt.wantKind {
				t.Errorf("Type = %v, want %v", in.Type, tt.wantKind)
			}
			if in.Msg != tt.wantMsg {
				t.Errorf("Msg = %q, want %q", in.Msg, tt.wantMsg)
			}
			if string(in.Data) != tt.wantData {
				t.Errorf("Data = %s, want %s", in.Data, tt.wantData)
			}
		})
	}
}

func TestEncodeInbound_RoundTrip(t *testing.T) {
	raw, err := EncodeInbound(KindLoginSuccess, map[string]any{"token": "t1", "name": "Alice"})
	if err != nil {
		t.Fatalf("EncodeInbound: %v", err)
	}
	in, err := DecodeInbound(raw)
	if err != nil {
		t.Fatalf("DecodeInbound: %v", err)
	}
	if in.Type != KindLoginSuccess {
		t.Errorf("Type = %v", in.Type)
	}
	var data map[string]string
	if err := json.Unmarshal(in.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data["token"] != "t1" || data["name"] != "Alice" {
		t.Errorf("data = %v", data)
	}
}

func TestEventKindString(t *testing.T) {
	if KindWSMsgRecall.String() != "WSMsgRecall" {
		t.Errorf("String() = %q", KindWSMsgRecall.String())
	}
	if EventKind(42).String() != "EventKind(42)" {
		t.Errorf("String() = %q", EventKind(42).String())
	}
	if len(Kinds()) != len(kindNames) {
		t.Errorf("Kinds() has %d entries, names has %d", len(Kinds()), len(kindNames))
	}
	for _, k := range Kinds() {
		if !k.Known() {
			t.Errorf("%v not Known()", k)
		}
	}
}
