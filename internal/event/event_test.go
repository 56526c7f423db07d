package event

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestTextContent(t *testing.T) {
	raw := TextContent("hello world")
	if got := StringMember(raw, "msgtype"); got != MsgText {
		t.Errorf("msgtype = %q, want %q", got, MsgText)
	}
	if got := StringMember(raw, "body"); got != "hello world" {
		t.Errorf("body = %q", got)
	}
}

func TestTextContentEmote(t *testing.T) {
	raw := TextContent("/me waves")
	if got := StringMember(raw, "msgtype"); got != MsgEmote {
		t.Errorf("msgtype = %q, want %q", got, MsgEmote)
	}
	if got := StringMember(raw, "body"); got != "waves" {
		t.Errorf("emote body must drop the prefix, got %q", got)
	}
}

func TestTextContentBareMePrefix(t *testing.T) {
	// "/me " alone carries no body; it stays a plain text message.
	raw := TextContent("/me ")
	if got := StringMember(raw, "msgtype"); got != MsgText {
		t.Errorf("msgtype = %q, want %q", got, MsgText)
	}
}

func TestNewQueuedDefaults(t *testing.T) {
	q := NewQueued(TypeMessage, TextContent("x"))
	if q.Phase != PhasePending {
		t.Errorf("new event phase = %v, want pending", q.Phase)
	}
	if q.TxnID == "" {
		t.Error("new event must carry a transaction id")
	}
	if q.Hook != nil {
		t.Error("default event must have no hook")
	}
}

func TestNewTxnIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewTxnID()
		if seen[id] {
			t.Fatalf("duplicate transaction id %q", id)
		}
		seen[id] = true
	}
}

func TestPhaseString(t *testing.T) {
	cases := map[Phase]string{
		PhasePending:   "pending",
		PhaseUploading: "uploading",
		PhaseSending:   "sending",
		PhaseDone:      "done",
		PhaseFailed:    "failed",
		Phase(42):      "phase(42)",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(p), got, want)
		}
	}
}

func TestAccessorsTolerateMissingFields(t *testing.T) {
	raw := []byte(`{}`)
	if Type(raw) != "" || Sender(raw) != "" || StateKey(raw) != "" {
		t.Error("missing fields must read as empty")
	}
	if Timestamp(raw) != 0 {
		t.Error("missing timestamp must read as zero")
	}
	if Content(raw) != nil {
		t.Error("missing content must read as nil")
	}
	if TransactionID(raw) != "" {
		t.Error("missing transaction id must read as empty")
	}
}

func TestStringMemberRejectsNonStrings(t *testing.T) {
	content := []byte(`{"body": 42, "msgtype": "m.text"}`)
	if got := StringMember(content, "body"); got != "" {
		t.Errorf("non-string member must read as empty, got %q", got)
	}
	if got := StringMember(content, "msgtype"); got != "m.text" {
		t.Errorf("msgtype = %q", got)
	}
}

func TestContentRejectsNonObject(t *testing.T) {
	if Content([]byte(`{"content": "just a string"}`)) != nil {
		t.Error("non-object content must read as nil")
	}
	raw := Content([]byte(`{"content": {"body": "x"}}`))
	if !gjson.ValidBytes(raw) || StringMember(raw, "body") != "x" {
		t.Errorf("object content must round-trip, got %s", raw)
	}
}

func TestTransactionIDNested(t *testing.T) {
	raw := []byte(`{"unsigned": {"transaction_id": "abc123"}}`)
	if got := TransactionID(raw); got != "abc123" {
		t.Errorf("TransactionID = %q", got)
	}
}
