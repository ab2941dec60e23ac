package calendar

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

var testEvent = Event{
	Title:       "Mentoring session: Ada with Grace",
	Start:       time.Date(2026, time.March, 2, 17, 0, 0, 0, time.UTC),
	End:         time.Date(2026, time.March, 2, 18, 0, 0, 0, time.UTC),
	Description: "Session link:\nhttps://devmentor.example/join/abc",
	Location:    "https://devmentor.example/join/abc",
}

func TestGoogleURL(t *testing.T) {
	raw := GoogleURL(testEvent)
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("unparseable URL: %v", err)
	}
	q := parsed.Query()
	if q.Get("dates") != "20260302T170000Z/20260302T180000Z" {
		t.Errorf("dates = %q", q.Get("dates"))
	}
	if q.Get("action") != "TEMPLATE" {
		t.Errorf("action = %q", q.Get("action"))
	}
	if q.Get("text") != testEvent.Title {
		t.Errorf("text = %q", q.Get("text"))
	}
}

func TestOutlookURL(t *testing.T) {
	raw := OutlookURL(testEvent)
	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("unparseable URL: %v", err)
	}
	q := parsed.Query()
	if q.Get("startdt") != "2026-03-02T17:00:00.000Z" {
		t.Errorf("startdt = %q", q.Get("startdt"))
	}
	if q.Get("enddt") != "2026-03-02T18:00:00.000Z" {
		t.Errorf("enddt = %q", q.Get("enddt"))
	}
}

func TestICalContent(t *testing.T) {
	now := time.Date(2026, time.February, 28, 12, 0, 0, 0, time.UTC)
	content := ICalContent(testEvent, now)

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"DTSTAMP:20260228T120000Z",
		"DTSTART:20260302T170000Z",
		"DTEND:20260302T180000Z",
		"SUMMARY:Mentoring session: Ada with Grace",
		"END:VCALENDAR",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("ICal content missing %q", want)
		}
	}
	// Newlines inside the description must be escaped per RFC 5545.
	if !strings.Contains(content, `Session link:\n`) {
		t.Error("description newline not escaped")
	}
}
