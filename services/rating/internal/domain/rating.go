package domain

import (
	"errors"
	"time"
)

// Score bounds. Ratings outside them are rejected before anything is sent.
const (
	MinScore = 1
	MaxScore = 5
)

// Domain errors.
var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrInvalidRating   = errors.New("invalid rating")
)

// Rating is one feedback submission for a meeting.
type Rating struct {
	MeetingID string `json:"meeting_id"`
	Score     int    `json:"score"`
	Remarks   string `json:"remarks,omitempty"`
}

// Recipient is a mail identity: display name plus address.
type Recipient struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Meeting is the calendar event being rated. ScheduledDate and ScheduledTime
// are display strings produced by FormatSchedule.
type Meeting struct {
	ID            string    `json:"id"`
	Organizer     Recipient `json:"organizer"`
	Subject       string    `json:"subject"`
	ScheduledDate string    `json:"scheduled_date"`
	ScheduledTime string    `json:"scheduled_time"`
}

// Owner returns the identity ratings are recorded against: the organizer's
// address.
func (m *Meeting) Owner() string {
	return m.Organizer.Address
}

// StoredRating is a rating as persisted by the rating store.
type StoredRating struct {
	ID        int64     `json:"id"`
	Owner     string    `json:"owner"`
	MeetingID string    `json:"meeting_id"`
	Score     int       `json:"score"`
	Remarks   string    `json:"remarks,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationMessage is the composed rating email.
type NotificationMessage struct {
	ToRecipients []Recipient `json:"to_recipients"`
	Sender       Recipient   `json:"sender"`
	From         Recipient   `json:"from"`
	ReplyTo      []Recipient `json:"reply_to"`
	Subject      string      `json:"subject"`
	Body         string      `json:"body"`
}

// Display formats for the meeting schedule, e.g. "Jan 5" and "10:00".
const (
	ScheduleDateLayout = "Jan 2"
	ScheduleTimeLayout = "15:04"
)

// FormatSchedule renders start in loc as the display date and time used in
// rating emails. A nil loc means UTC.
func FormatSchedule(start time.Time, loc *time.Location) (date, clock string) {
	if loc == nil {
		loc = time.UTC
	}
	local := start.In(loc)
	return local.Format(ScheduleDateLayout), local.Format(ScheduleTimeLayout)
}

// MeetingDetails is the stored form of a meeting. The display strings of
// Meeting are derived from StartsAt.
type MeetingDetails struct {
	ID        string    `json:"id"`
	Organizer Recipient `json:"organizer"`
	Subject   string    `json:"subject"`
	StartsAt  time.Time `json:"starts_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToMeeting formats d for display in loc.
func (d *MeetingDetails) ToMeeting(loc *time.Location) *Meeting {
	date, clock := FormatSchedule(d.StartsAt, loc)
	return &Meeting{
		ID:            d.ID,
		Organizer:     d.Organizer,
		Subject:       d.Subject,
		ScheduledDate: date,
		ScheduledTime: clock,
	}
}
