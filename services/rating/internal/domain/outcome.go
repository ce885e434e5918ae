package domain

import "time"

// OutcomeStatus is the tag of a SubmissionOutcome.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// SubmissionOutcome is the single result published for one submission.
//
// A failed outcome carries Cause. A succeeded outcome may carry RecordingErr
// when the email went out but the rating could not be recorded.
type SubmissionOutcome struct {
	Status       OutcomeStatus
	MeetingID    string
	Cause        error
	RecordingErr error
	OccurredAt   time.Time
}

// Success reports a delivered and recorded rating.
func Success(meetingID string) SubmissionOutcome {
	return SubmissionOutcome{Status: OutcomeSucceeded, MeetingID: meetingID, OccurredAt: time.Now().UTC()}
}

// PartialSuccess reports a delivered rating whose recording failed.
func PartialSuccess(meetingID string, recordingErr error) SubmissionOutcome {
	o := Success(meetingID)
	o.RecordingErr = recordingErr
	return o
}

// Failure reports a submission that did not deliver the email.
func Failure(meetingID string, cause error) SubmissionOutcome {
	return SubmissionOutcome{Status: OutcomeFailed, MeetingID: meetingID, Cause: cause, OccurredAt: time.Now().UTC()}
}

// Succeeded reports whether the email was delivered.
func (o SubmissionOutcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}

// Partial reports a success whose recording step failed.
func (o SubmissionOutcome) Partial() bool {
	return o.Succeeded() && o.RecordingErr != nil
}

// CauseText returns the failure cause as a string, or "".
func (o SubmissionOutcome) CauseText() string {
	if o.Cause == nil {
		return ""
	}
	return o.Cause.Error()
}

// OutcomeRecord is the serializable form of a SubmissionOutcome, used by the
// outcome cache, the HTTP API and Kafka events.
type OutcomeRecord struct {
	MeetingID      string        `json:"meeting_id"`
	Status         OutcomeStatus `json:"status"`
	Cause          string        `json:"cause,omitempty"`
	RecordingError string        `json:"recording_error,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// Record converts o to its serializable form.
func (o SubmissionOutcome) Record() OutcomeRecord {
	r := OutcomeRecord{
		MeetingID:  o.MeetingID,
		Status:     o.Status,
		Cause:      o.CauseText(),
		OccurredAt: o.OccurredAt,
	}
	if o.RecordingErr != nil {
		r.RecordingError = o.RecordingErr.Error()
	}
	return r
}
