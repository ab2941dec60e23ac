// Package calendar builds "add to calendar" artifacts for confirmed
// bookings: Google and Outlook deep links plus raw iCalendar content.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	googleBaseURL  = "https://calendar.google.com/calendar/render"
	outlookBaseURL = "https://outlook.live.com/calendar/0/deeplink/compose"
)

// Event is a calendar entry for one booked session. Times are instants;
// they are rendered in UTC for every provider.
type Event struct {
	Title       string
	Start       time.Time
	End         time.Time
	Description string
	Location    string
}

// Links bundles the per-provider artifacts for one event.
type Links struct {
	Google      string `json:"google"`
	Outlook     string `json:"outlook"`
	ICalContent string `json:"ical_content"`
}

func ForEvent(ev Event) Links {
	return Links{
		Google:      GoogleURL(ev),
		Outlook:     OutlookURL(ev),
		ICalContent: ICalContent(ev, time.Now().UTC()),
	}
}

func GoogleURL(ev Event) string {
	start := ev.Start.UTC().Format("20060102T150405Z")
	end := ev.End.UTC().Format("20060102T150405Z")

	params := url.Values{}
	params.Set("action", "TEMPLATE")
	params.Set("text", ev.Title)
	params.Set("dates", start+"/"+end)
	params.Set("details", ev.Description)
	params.Set("location", ev.Location)
	return googleBaseURL + "?" + params.Encode()
}

func OutlookURL(ev Event) string {
	params := url.Values{}
	params.Set("subject", ev.Title)
	params.Set("startdt", ev.Start.UTC().Format("2006-01-02T15:04:05.000Z"))
	params.Set("enddt", ev.End.UTC().Format("2006-01-02T15:04:05.000Z"))
	params.Set("body", ev.Description)
	params.Set("location", ev.Location)
	return outlookBaseURL + "?" + params.Encode()
}

// ICalContent renders a minimal single-event VCALENDAR. now is the
// DTSTAMP instant, injected so tests stay deterministic.
func ICalContent(ev Event, now time.Time) string {
	escaper := strings.NewReplacer("\n", "\\n", ",", "\\,", ";", "\\;")

	return fmt.Sprintf(`BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//DevMentor//DevMentor Platform//EN
BEGIN:VEVENT
UID:%s
DTSTAMP:%s
DTSTART:%s
DTEND:%s
SUMMARY:%s
DESCRIPTION:%s
LOCATION:%s
END:VEVENT
END:VCALENDAR`,
		uuid.NewString(),
		now.UTC().Format("20060102T150405Z"),
		ev.Start.UTC().Format("20060102T150405Z"),
		ev.End.UTC().Format("20060102T150405Z"),
		ev.Title,
		escaper.Replace(ev.Description),
		ev.Location,
	)
}
