package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	JobIDRefresh            = "authclient.refresh"
	refreshJobDedupPolicy   = "drop"
	defaultRefreshJobRetry  = 30 * time.Second
	refreshJobParamKey      = "session_key"
	refreshJobParamForce    = "force"
	refreshJobParamExpireAt = "expires_at"
)

type ScheduleRefreshRequest struct {
	// Force refreshes even when the credential is not expiring soon.
	Force bool
}

// ScheduleRefresh enqueues a background refresh job for the current session.
// Jobs for the same credential collapse on their idempotency key.
func (s *Service) ScheduleRefresh(ctx context.Context, req ScheduleRefreshRequest) (err error) {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	startedAt := time.Now().UTC()
	fields := map[string]any{"force": req.Force}
	defer func() {
		s.observeOperation(ctx, startedAt, "schedule_refresh", err, fields)
	}()

	if s.jobEnqueuer == nil {
		err = s.mapError(fmt.Errorf("core: job enqueuer is required to schedule refresh"))
		return err
	}
	cred, ok := s.store.Current()
	if !ok {
		err = s.mapError(ErrNoSession)
		return err
	}
	expiresAt := cred.ExpiresAt.UTC().Format(time.RFC3339)
	fields["job_id"] = JobIDRefresh
	err = s.jobEnqueuer.Enqueue(ctx, &JobExecutionMessage{
		JobID:      JobIDRefresh,
		ScriptPath: JobIDRefresh,
		Parameters: map[string]any{
			refreshJobParamKey:      s.store.Key(),
			refreshJobParamForce:    req.Force,
			refreshJobParamExpireAt: expiresAt,
		},
		IdempotencyKey: strings.Join([]string{JobIDRefresh, s.store.Key(), expiresAt}, ":"),
		DedupPolicy:    refreshJobDedupPolicy,
	})
	if err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

// HandleRefreshJob runs a delivered refresh job and settles the delivery.
// A terminated session is acknowledged since retrying cannot succeed; other
// failures are requeued.
func (s *Service) HandleRefreshJob(ctx context.Context, delivery JobDelivery) (err error) {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if delivery == nil {
		return s.mapError(fmt.Errorf("core: job delivery is required"))
	}
	msg := delivery.Message()
	if msg == nil || strings.TrimSpace(msg.JobID) != JobIDRefresh {
		jobID := ""
		if msg != nil {
			jobID = msg.JobID
		}
		nackErr := delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "unsupported job " + jobID})
		if nackErr != nil {
			return s.mapError(nackErr)
		}
		return s.mapError(fmt.Errorf("core: unsupported job id %q: invalid job", jobID))
	}

	startedAt := time.Now().UTC()
	fields := map[string]any{"job_id": msg.JobID, "idempotency_key": msg.IdempotencyKey}
	defer func() {
		s.observeOperation(ctx, startedAt, "refresh_job", err, fields)
	}()

	if key, _ := msg.Parameters[refreshJobParamKey].(string); key != "" && key != s.store.Key() {
		fields["reason"] = "session_key_mismatch"
		return delivery.Ack(ctx)
	}

	force, _ := msg.Parameters[refreshJobParamForce].(bool)
	if force {
		_, err = s.RefreshNow(ctx)
	} else {
		var result EnsureFreshResult
		result, err = s.EnsureFresh(ctx)
		fields["refreshed"] = result.Refreshed
	}

	switch {
	case err == nil:
		return delivery.Ack(ctx)
	case IsRefreshFailure(err), hasTextCode(err, ServiceErrorSessionNotFound):
		fields["reason"] = refreshFailureReason(err)
		if ackErr := delivery.Ack(ctx); ackErr != nil {
			return s.mapError(ackErr)
		}
		return err
	default:
		if nackErr := delivery.Nack(ctx, JobNackOptions{
			Delay:   defaultRefreshJobRetry,
			Requeue: true,
			Reason:  err.Error(),
		}); nackErr != nil {
			return s.mapError(nackErr)
		}
		return err
	}
}
