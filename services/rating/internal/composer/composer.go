// Package composer builds the rating notification email.
package composer

import (
	"fmt"
	"strings"

	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// NoRemarks replaces empty remarks in the message body.
const NoRemarks = "No Remarks."

// Composer turns a rating and its meeting into a NotificationMessage sent
// on behalf of a fixed reviewer identity.
type Composer struct {
	reviewer domain.Recipient
}

// New returns a Composer that signs every message as reviewer.
func New(reviewer domain.Recipient) *Composer {
	return &Composer{reviewer: reviewer}
}

// Reviewer returns the configured sender identity.
func (c *Composer) Reviewer() domain.Recipient {
	return c.reviewer
}

// Compose builds the email for rating. It never fails; missing meeting
// fields are rendered as empty strings.
func (c *Composer) Compose(rating domain.Rating, meeting *domain.Meeting) *domain.NotificationMessage {
	if meeting == nil {
		meeting = &domain.Meeting{ID: rating.MeetingID}
	}
	return &domain.NotificationMessage{
		ToRecipients: []domain.Recipient{meeting.Organizer},
		Sender:       c.reviewer,
		From:         c.reviewer,
		ReplyTo:      []domain.Recipient{c.reviewer},
		Subject:      Subject(meeting),
		Body:         Body(rating, meeting),
	}
}

// Subject returns "<meeting subject> was rated!".
func Subject(meeting *domain.Meeting) string {
	return meeting.Subject + " was rated!"
}

// Body renders the plain-text message body.
func Body(rating domain.Rating, meeting *domain.Meeting) string {
	remarks := strings.TrimSpace(rating.Remarks)
	if remarks == "" {
		remarks = NoRemarks
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your meeting, %s, on %s (%s), was recently reviewed.\n\n",
		meeting.Subject, meeting.ScheduledDate, meeting.ScheduledTime)
	fmt.Fprintf(&b, "Rating: %d\n", rating.Score)
	fmt.Fprintf(&b, "Remarks/How to improve: %s", remarks)
	return b.String()
}
