// Package twiml renders the markup documents Twilio executes on a live
// call: speak a line of text, then record the caller's next utterance.
package twiml

import (
	"encoding/xml"
	"fmt"
)

// Say is the TwiML <Say> verb, rendered with the provider's native TTS.
type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Record is the TwiML <Record> verb. PlayBeep and the do-not-trim setting
// match the original call flow: an audible start tone and no silence
// trimming, so the byte-size heuristic downstream sees the full capture.
type Record struct {
	XMLName   xml.Name `xml:"Record"`
	Action    string   `xml:"action,attr"`
	MaxLength int      `xml:"maxLength,attr"`
	PlayBeep  bool     `xml:"playBeep,attr"`
	Trim      string   `xml:"trim,attr"`
}

// Response is the TwiML document root.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Say     *Say
	Record  *Record
}

// SpeakAndRecord renders a document that speaks text and then records the
// next turn, directing the provider's callback at action. Rendering is a
// pure function of its arguments, so identical inputs produce byte-identical
// markup.
func SpeakAndRecord(text, voice, action string, maxLength int) (string, error) {
	doc := Response{
		Say: &Say{Voice: voice, Text: text},
		Record: &Record{
			Action:    action,
			MaxLength: maxLength,
			PlayBeep:  true,
			Trim:      "do-not-trim",
		},
	}
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("render twiml: %w", err)
	}
	return xml.Header + string(out), nil
}
