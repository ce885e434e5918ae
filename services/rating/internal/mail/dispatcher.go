package mail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/meetingfeedback/ratings/pkg/logger"
	"github.com/meetingfeedback/ratings/services/rating/internal/domain"
)

// Result is the completion of one Dispatcher.Send. Err is nil on success.
type Result struct {
	Err error
}

// Dispatcher sends messages in the background and reports each completion
// on a channel owned by the caller.
type Dispatcher struct {
	transport Transport
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher over transport. limiter may be nil.
func NewDispatcher(transport Transport, limiter *rate.Limiter, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		limiter:   limiter,
		logger:    logger,
	}
}

// NewLimiter returns a token bucket allowing perSecond sends with the given
// burst, or nil when perSecond is not positive.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// TransportName returns the name of the underlying transport.
func (d *Dispatcher) TransportName() string {
	return d.transport.Name()
}

// Send starts one delivery attempt and returns immediately. The returned
// channel receives exactly one Result and is then closed.
func (d *Dispatcher) Send(ctx context.Context, msg *domain.NotificationMessage) <-chan Result {
	done := make(chan Result, 1)
	go func() {
		defer close(done)
		done <- Result{Err: d.send(ctx, msg)}
	}()
	return done
}

func (d *Dispatcher) send(ctx context.Context, msg *domain.NotificationMessage) (err error) {
	name := d.transport.Name()
	log := logger.WithContext(ctx, d.logger)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mail transport %s panicked: %v", name, r)
		}
	}()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			sendTotal.WithLabelValues(name, "throttled").Inc()
			return fmt.Errorf("wait for mail quota: %w", err)
		}
	}

	start := time.Now()
	err = d.transport.Send(ctx, msg)
	sendDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		sendTotal.WithLabelValues(name, "failure").Inc()
		log.WarnContext(ctx, "mail send failed",
			slog.String("transport", name),
			slog.String("subject", msg.Subject),
			slog.String("error", err.Error()),
		)
		return err
	}

	sendTotal.WithLabelValues(name, "success").Inc()
	log.DebugContext(ctx, "mail sent",
		slog.String("transport", name),
		slog.String("subject", msg.Subject),
	)
	return nil
}
