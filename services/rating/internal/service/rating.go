package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/meetingfeedback/ratings/pkg/errors"
	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/pkg/tracing"
	"github.com/meetingfeedback/ratings/services/rating/internal/bus"
	"github.com/meetingfeedback/ratings/services/rating/internal/composer"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
	"github.com/meetingfeedback/ratings/services/rating/internal/mail"
)

// ErrShuttingDown is the failure cause for submissions made after Shutdown.
var ErrShuttingDown = errors.New("rating service is shutting down")

// MeetingLookup finds the meeting a rating refers to. A missing meeting is
// reported as apperrors.ErrNotFound or a nil meeting.
type MeetingLookup interface {
	GetMeeting(ctx context.Context, id string) (*domain.Meeting, error)
}

// RatingRecorder persists a rating against the meeting owner.
type RatingRecorder interface {
	AddRating(ctx context.Context, owner string, rating domain.Rating) error
}

// MailSender starts an asynchronous send. The channel yields one Result.
type MailSender interface {
	Send(ctx context.Context, msg *domain.NotificationMessage) <-chan mail.Result
}

// RatingService runs rating submissions: look up the meeting, compose and
// send the email, record the rating once the email is out, and publish
// exactly one outcome on the bus.
type RatingService struct {
	meetings MeetingLookup
	composer *composer.Composer
	mailer   MailSender
	recorder RatingRecorder
	outcomes bus.Bus
	logger   *slog.Logger
	tracer   trace.Tracer

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewRatingService creates a new rating service.
func NewRatingService(
	meetings MeetingLookup,
	composer *composer.Composer,
	mailer MailSender,
	recorder RatingRecorder,
	outcomes bus.Bus,
	logger *slog.Logger,
) *RatingService {
	return &RatingService{
		meetings: meetings,
		composer: composer,
		mailer:   mailer,
		recorder: recorder,
		outcomes: outcomes,
		logger:   logger,
		tracer:   tracing.Tracer("rating-service"),
	}
}

// SendRating submits rating in the background and returns immediately.
// The result is only observable on the outcome bus. Cancelling ctx does not
// stop a submission that has started.
func (s *RatingService) SendRating(ctx context.Context, rating domain.Rating) {
	ctx = logger.WithMeetingID(context.WithoutCancel(ctx), rating.MeetingID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.publish(ctx, domain.Failure(rating.MeetingID, ErrShuttingDown))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.submit(ctx, rating)
	}()
}

// Shutdown stops accepting submissions and waits for in-flight ones to
// publish their outcome, or for ctx to end.
func (s *RatingService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight ratings: %w", ctx.Err())
	}
}

func (s *RatingService) submit(ctx context.Context, rating domain.Rating) {
	ctx, span := s.tracer.Start(ctx, "rating.submit",
		trace.WithAttributes(
			attribute.String("meeting.id", rating.MeetingID),
			attribute.Int("rating.score", rating.Score),
		),
	)
	defer span.End()

	published := false
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("rating submission panicked: %v", r)
			logger.WithContext(ctx, s.logger).ErrorContext(ctx, "recovered panic in rating submission",
				slog.String("panic", fmt.Sprint(r)),
			)
			span.RecordError(err)
			if !published {
				published = true
				s.publish(ctx, domain.Failure(rating.MeetingID, err))
			}
		}
	}()

	outcome := s.run(ctx, rating)
	if !outcome.Succeeded() {
		span.SetStatus(codes.Error, outcome.CauseText())
	}
	published = true
	s.publish(ctx, outcome)
}

func (s *RatingService) run(ctx context.Context, rating domain.Rating) domain.SubmissionOutcome {
	id := rating.MeetingID
	if strings.TrimSpace(id) == "" {
		return domain.Failure(id, domain.ErrInvalidRating)
	}
	if rating.Score < domain.MinScore || rating.Score > domain.MaxScore {
		return domain.Failure(id, fmt.Errorf("%w: score %d outside %d-%d",
			domain.ErrInvalidRating, rating.Score, domain.MinScore, domain.MaxScore))
	}

	meeting, err := s.lookup(ctx, id)
	if err != nil {
		return domain.Failure(id, err)
	}

	msg := s.composer.Compose(rating, meeting)

	if err := s.send(ctx, msg); err != nil {
		return domain.Failure(id, err)
	}

	if err := s.record(ctx, meeting.Owner(), rating); err != nil {
		recordingFailuresTotal.Inc()
		logger.WithContext(ctx, s.logger).ErrorContext(ctx, "rating sent but not recorded",
			slog.String("owner", meeting.Owner()),
			slog.String("error", err.Error()),
		)
		return domain.PartialSuccess(id, err)
	}
	return domain.Success(id)
}

func (s *RatingService) lookup(ctx context.Context, id string) (*domain.Meeting, error) {
	ctx, span := s.tracer.Start(ctx, "rating.lookup")
	defer span.End()

	meeting, err := s.meetings.GetMeeting(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound), err == nil && meeting == nil:
		span.SetStatus(codes.Error, domain.ErrMeetingNotFound.Error())
		return nil, domain.ErrMeetingNotFound
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "lookup failed")
		return nil, fmt.Errorf("look up meeting %s: %w", id, err)
	}
	return meeting, nil
}

func (s *RatingService) send(ctx context.Context, msg *domain.NotificationMessage) error {
	ctx, span := s.tracer.Start(ctx, "rating.send")
	defer span.End()

	res, ok := <-s.mailer.Send(ctx, msg)
	if !ok {
		res.Err = errors.New("mail dispatcher closed without a result")
	}
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, "send failed")
	}
	return res.Err
}

func (s *RatingService) record(ctx context.Context, owner string, rating domain.Rating) (err error) {
	ctx, span := s.tracer.Start(ctx, "rating.record")
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rating recorder panicked: %v", r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "record failed")
		}
	}()

	return s.recorder.AddRating(ctx, owner, rating)
}

func (s *RatingService) publish(ctx context.Context, outcome domain.SubmissionOutcome) {
	log := logger.WithContext(ctx, s.logger)
	switch {
	case outcome.Partial():
		submissionsTotal.WithLabelValues("partial").Inc()
		log.WarnContext(ctx, "rating delivered with recording failure")
	case outcome.Succeeded():
		submissionsTotal.WithLabelValues(string(domain.OutcomeSucceeded)).Inc()
		log.InfoContext(ctx, "rating delivered")
	default:
		submissionsTotal.WithLabelValues(string(domain.OutcomeFailed)).Inc()
		log.WarnContext(ctx, "rating submission failed",
			slog.String("cause", outcome.CauseText()),
		)
	}

	s.outcomes.Publish(ctx, outcome)
}
