package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/boyiajas/omni247-sub001/internal/usecase/verify"
)

const (
	consumerTag        = "omni247-verifier-consumer"
	connectRetryDelay  = 5 * time.Second
	maxConnectRetries  = 10
	jobTimeout         = 60 * time.Second
	publishTimeout     = 30 * time.Second
	defaultConcurrency = 10
)

// VerificationJob is the payload published by the reporting service when a
// report needs (re-)verification.
type VerificationJob struct {
	ReportID string `json:"report_id"`
}

// Verifier runs the verification pipeline for a single report.
type Verifier interface {
	VerifyReport(ctx context.Context, reportID string) (verify.Outcome, error)
}

// Logger is the subset of the observability logger the consumer needs.
type Logger interface {
	LogDebug(ctx context.Context, msg string, fields map[string]interface{})
	LogInfo(ctx context.Context, msg string, fields map[string]interface{})
	LogWarning(ctx context.Context, msg string, fields map[string]interface{})
	LogError(ctx context.Context, msg string, fields map[string]interface{})
}

// ConsumerConfig holds the broker settings for a JobConsumer.
type ConsumerConfig struct {
	URL         string
	JobQueue    string
	ResultQueue string
	Workers     int
}

// JobConsumer pulls verification jobs off an AMQP queue, runs them through
// the verifier, and publishes the resulting audit record to the result queue.
type JobConsumer struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	cfg             ConsumerConfig
	verifier        Verifier
	logger          Logger
	done            chan bool
	isStopping      atomic.Bool
	notifyConnClose chan *amqp.Error
	notifyChanClose chan *amqp.Error
	slots           chan struct{}
	wg              sync.WaitGroup
}

func NewJobConsumer(cfg ConsumerConfig, verifier Verifier, logger Logger) (*JobConsumer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("queue URL cannot be empty")
	}
	if cfg.JobQueue == "" {
		return nil, fmt.Errorf("job queue name cannot be empty")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultConcurrency
	}

	jc := &JobConsumer{
		cfg:      cfg,
		verifier: verifier,
		logger:   logger,
		done:     make(chan bool),
		slots:    make(chan struct{}, cfg.Workers),
	}

	if err := jc.connect(); err != nil {
		jc.logger.LogWarning(context.Background(), "initial broker connection failed, retrying once", map[string]interface{}{
			"error": err.Error(),
		})
		time.Sleep(connectRetryDelay)
		if err = jc.connect(); err != nil {
			return nil, fmt.Errorf("connect to broker: %w", err)
		}
	}

	return jc, nil
}

func (jc *JobConsumer) connect() error {
	var err error

	jc.conn, err = amqp.Dial(jc.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}

	jc.channel, err = jc.conn.Channel()
	if err != nil {
		jc.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	jc.notifyConnClose = make(chan *amqp.Error)
	jc.notifyChanClose = make(chan *amqp.Error)
	jc.conn.NotifyClose(jc.notifyConnClose)
	jc.channel.NotifyClose(jc.notifyChanClose)

	// Queue declaration must match the producer's assertion.
	if _, err = jc.channel.QueueDeclare(jc.cfg.JobQueue, true, false, false, false, nil); err != nil {
		jc.channel.Close()
		jc.conn.Close()
		return fmt.Errorf("declare queue %s: %w", jc.cfg.JobQueue, err)
	}

	// Prefetch only as many messages as we have worker slots so a slow
	// batch does not starve other consumers.
	if err = jc.channel.Qos(jc.cfg.Workers, 0, false); err != nil {
		jc.logger.LogWarning(context.Background(), "failed to set channel QoS", map[string]interface{}{
			"error": err.Error(),
		})
	}

	jc.logger.LogInfo(context.Background(), "connected to broker", map[string]interface{}{
		"queue":   jc.cfg.JobQueue,
		"workers": jc.cfg.Workers,
	})
	return nil
}

// StartConsuming blocks until the context is cancelled, Stop is called, or
// the connection is lost beyond recovery.
func (jc *JobConsumer) StartConsuming(ctx context.Context) {
	if jc.channel == nil || jc.conn == nil || jc.conn.IsClosed() {
		if err := jc.handleReconnect(ctx); err != nil {
			jc.logger.LogError(ctx, "failed to reconnect before consuming, consumer stopping", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
	}

	deliveries, err := jc.channel.Consume(jc.cfg.JobQueue, consumerTag, false, false, false, false, nil)
	if err != nil {
		jc.logger.LogError(ctx, "failed to register consumer", map[string]interface{}{
			"error": err.Error(),
		})
		if reconnErr := jc.handleReconnect(ctx); reconnErr != nil {
			jc.logger.LogError(ctx, "failed to reconnect after consume failure, consumer stopping", map[string]interface{}{
				"error": reconnErr.Error(),
			})
		}
		return
	}

	jc.logger.LogInfo(ctx, "waiting for verification jobs", map[string]interface{}{
		"queue": jc.cfg.JobQueue,
	})

	for {
		select {
		case <-ctx.Done():
			jc.Stop()
			return

		case d, ok := <-deliveries:
			if !ok {
				if !jc.isStopping.Load() {
					if err := jc.handleReconnect(ctx); err != nil {
						jc.logger.LogError(ctx, "failed to reconnect after delivery channel closed", map[string]interface{}{
							"error": err.Error(),
						})
					}
				}
				return
			}
			jc.wg.Add(1)
			jc.slots <- struct{}{}
			go jc.processDelivery(ctx, d)

		case err := <-jc.notifyConnClose:
			jc.logger.LogWarning(ctx, "broker connection closed", map[string]interface{}{
				"error": fmt.Sprintf("%v", err),
			})
			jc.clearNotifications()
			if !jc.isStopping.Load() {
				if reconnErr := jc.handleReconnect(ctx); reconnErr != nil {
					jc.logger.LogError(ctx, "failed to reconnect after connection loss, consumer stopping", map[string]interface{}{
						"error": reconnErr.Error(),
					})
				}
			}
			return

		case <-jc.done:
			return
		}
	}
}

// processDelivery handles a single verification job in its own goroutine.
func (jc *JobConsumer) processDelivery(ctx context.Context, d amqp.Delivery) {
	defer func() {
		<-jc.slots
		jc.wg.Done()
		if r := recover(); r != nil {
			jc.logger.LogError(ctx, "panic recovered while processing delivery", map[string]interface{}{
				"delivery_tag": d.DeliveryTag,
				"panic":        fmt.Sprintf("%v", r),
			})
			if nackErr := d.Nack(false, false); nackErr != nil {
				jc.logger.LogError(ctx, "failed to nack delivery after panic", map[string]interface{}{
					"delivery_tag": d.DeliveryTag,
					"error":        nackErr.Error(),
				})
			}
		}
	}()

	var job VerificationJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.ReportID == "" {
		jc.logger.LogWarning(ctx, "discarding unparseable verification job", map[string]interface{}{
			"delivery_tag": d.DeliveryTag,
			"body":         string(d.Body),
		})
		if nackErr := d.Nack(false, false); nackErr != nil {
			jc.logger.LogError(ctx, "failed to nack unparseable job", map[string]interface{}{
				"delivery_tag": d.DeliveryTag,
				"error":        nackErr.Error(),
			})
		}
		return
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	outcome, err := jc.verifier.VerifyReport(jobCtx, job.ReportID)
	cancel()

	if err != nil {
		if errors.Is(err, verify.ErrRunInProgress) {
			// Another run holds the lock; leave the job on the queue so it
			// is retried once the in-flight run completes.
			jc.logger.LogInfo(ctx, "report verification already in progress, requeueing", map[string]interface{}{
				"report_id": job.ReportID,
			})
			if nackErr := d.Nack(false, true); nackErr != nil {
				jc.logger.LogError(ctx, "failed to requeue in-progress job", map[string]interface{}{
					"delivery_tag": d.DeliveryTag,
					"error":        nackErr.Error(),
				})
			}
			return
		}
		jc.logger.LogError(ctx, "verification run failed", map[string]interface{}{
			"report_id": job.ReportID,
			"error":     err.Error(),
		})
		if nackErr := d.Nack(false, false); nackErr != nil {
			jc.logger.LogError(ctx, "failed to nack failed job", map[string]interface{}{
				"delivery_tag": d.DeliveryTag,
				"error":        nackErr.Error(),
			})
		}
		return
	}

	if err := jc.publishOutcome(job.ReportID, outcome); err != nil {
		jc.logger.LogError(ctx, "failed to publish verification result", map[string]interface{}{
			"report_id": job.ReportID,
			"error":     err.Error(),
		})
		if nackErr := d.Nack(false, true); nackErr != nil {
			jc.logger.LogError(ctx, "failed to requeue job after publish failure", map[string]interface{}{
				"delivery_tag": d.DeliveryTag,
				"error":        nackErr.Error(),
			})
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		jc.logger.LogError(ctx, "failed to ack delivery", map[string]interface{}{
			"delivery_tag": d.DeliveryTag,
			"error":        ackErr.Error(),
		})
	}
}

// VerificationResult is the message published to the result queue after a job
// has been processed.
type VerificationResult struct {
	ReportID string      `json:"report_id"`
	Status   string      `json:"status"`
	Audit    interface{} `json:"audit,omitempty"`
}

func (jc *JobConsumer) publishOutcome(reportID string, outcome verify.Outcome) error {
	if jc.cfg.ResultQueue == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if jc.channel == nil || jc.conn == nil || jc.conn.IsClosed() {
		if err := jc.handleReconnect(ctx); err != nil {
			return fmt.Errorf("reconnect before publish: %w", err)
		}
	}

	if _, err := jc.channel.QueueDeclare(jc.cfg.ResultQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare result queue: %w", err)
	}

	msg := VerificationResult{
		ReportID: reportID,
		Status:   string(outcome.Status),
	}
	if outcome.Result != nil {
		msg.Audit = outcome.Result.ToAuditRecord()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	err = jc.channel.PublishWithContext(ctx, "", jc.cfg.ResultQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    reportID,
	})
	if err != nil {
		return fmt.Errorf("publish result: %w", err)
	}
	return nil
}

// clearNotifications drops the notify channel references. The library owns
// registered NotifyClose channels and closes them itself during shutdown;
// closing them here would double-close and panic in either goroutine.
func (jc *JobConsumer) clearNotifications() {
	jc.notifyConnClose = nil
	jc.notifyChanClose = nil
}

func (jc *JobConsumer) handleReconnect(ctx context.Context) error {
	jc.clearNotifications()
	if jc.channel != nil {
		jc.channel.Close()
		jc.channel = nil
	}
	if jc.conn != nil {
		jc.conn.Close()
		jc.conn = nil
	}

	for i := 0; i < maxConnectRetries; i++ {
		if jc.isStopping.Load() || ctx.Err() != nil {
			return fmt.Errorf("reconnect aborted: %w", ctx.Err())
		}
		if err := jc.connect(); err == nil {
			go jc.StartConsuming(ctx)
			return nil
		}
		select {
		case <-time.After(connectRetryDelay):
		case <-ctx.Done():
			return ctx.Err()
		case <-jc.done:
			return fmt.Errorf("reconnect aborted: consumer stopping")
		}
	}

	return fmt.Errorf("failed to reconnect after %d attempts", maxConnectRetries)
}

// Stop signals the consume loop to exit. Safe to call more than once.
func (jc *JobConsumer) Stop() {
	jc.isStopping.Store(true)
	select {
	case jc.done <- true:
	default:
	}
}

// Close waits for in-flight jobs and releases broker resources.
func (jc *JobConsumer) Close() {
	jc.wg.Wait()
	if jc.channel != nil {
		if err := jc.channel.Close(); err != nil {
			jc.logger.LogWarning(context.Background(), "error closing channel", map[string]interface{}{
				"error": err.Error(),
			})
		}
		jc.channel = nil
	}
	if jc.conn != nil {
		if err := jc.conn.Close(); err != nil {
			jc.logger.LogWarning(context.Background(), "error closing connection", map[string]interface{}{
				"error": err.Error(),
			})
		}
		jc.conn = nil
	}
}
