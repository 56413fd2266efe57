package twiml

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestSpeakAndRecord(t *testing.T) {
	got, err := SpeakAndRecord("Hello there", "alice", "/handle_speech", 15)
	if err != nil {
		t.Fatalf("SpeakAndRecord failed: %v", err)
	}

	want := xml.Header +
		`<Response><Say voice="alice">Hello there</Say>` +
		`<Record action="/handle_speech" maxLength="15" playBeep="true" trim="do-not-trim"></Record></Response>`
	if got != want {
		t.Errorf("markup mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func TestSpeakAndRecordIsIdempotent(t *testing.T) {
	first, err := SpeakAndRecord("Welcome", "alice", "/handle_speech", 15)
	if err != nil {
		t.Fatalf("SpeakAndRecord failed: %v", err)
	}
	second, err := SpeakAndRecord("Welcome", "alice", "/handle_speech", 15)
	if err != nil {
		t.Fatalf("SpeakAndRecord failed: %v", err)
	}
	if first != second {
		t.Error("identical inputs must produce byte-identical markup")
	}
}

func TestSpeakAndRecordEscapesText(t *testing.T) {
	got, err := SpeakAndRecord("Tom & Jerry <3", "", "/handle_speech", 15)
	if err != nil {
		t.Fatalf("SpeakAndRecord failed: %v", err)
	}
	if !strings.Contains(got, "Tom &amp; Jerry &lt;3") {
		t.Errorf("reply text must be XML-escaped, got: %s", got)
	}
	if strings.Contains(got, `voice=""`) {
		t.Error("empty voice attribute must be omitted")
	}
}

func TestSpeakAndRecordIsValidXML(t *testing.T) {
	got, err := SpeakAndRecord("Sure, turning on the lights now.", "alice", "/handle_speech", 15)
	if err != nil {
		t.Fatalf("SpeakAndRecord failed: %v", err)
	}

	var doc Response
	if err := xml.Unmarshal([]byte(got), &doc); err != nil {
		t.Fatalf("rendered markup does not parse: %v", err)
	}
	if doc.Say == nil || doc.Say.Text != "Sure, turning on the lights now." {
		t.Errorf("unexpected say element: %+v", doc.Say)
	}
	if doc.Record == nil || doc.Record.Action != "/handle_speech" || doc.Record.Trim != "do-not-trim" {
		t.Errorf("unexpected record element: %+v", doc.Record)
	}
}
