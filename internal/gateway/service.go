package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mehmetcc/zerodrop/internal/audit"
	"github.com/mehmetcc/zerodrop/internal/authentication"
	"github.com/mehmetcc/zerodrop/internal/denylist"
)

// EmptyOutputMessage replaces the output of a successful command that printed nothing.
const EmptyOutputMessage = "Command executed successfully (no output)"

type GatewayService interface {
	ExecuteCommand(ctx context.Context, cmd string, claims *authentication.Claims) (string, error)
	ExecuteQuery(ctx context.Context, query string, claims *authentication.Claims) (*QueryResult, error)
}

type gatewayService struct {
	filter   denylist.DenylistService
	runner   Runner
	executor QueryExecutor
	recorder audit.Recorder
	logger   *zap.Logger
}

func NewGatewayService(
	filter denylist.DenylistService,
	runner Runner,
	executor QueryExecutor,
	recorder audit.Recorder,
	logger *zap.Logger,
) GatewayService {
	return &gatewayService{
		filter:   filter,
		runner:   runner,
		executor: executor,
		recorder: recorder,
		logger:   logger,
	}
}

func (g *gatewayService) ExecuteCommand(ctx context.Context, cmd string, claims *authentication.Claims) (string, error) {
	if strings.TrimSpace(cmd) == "" {
		return "", ErrEmptyInput
	}
	start := time.Now()

	allowed, err := g.filter.IsAllowed(ctx, denylist.KindCommand, cmd)
	if err != nil {
		return "", err
	}
	if !allowed {
		g.record(ctx, claims, audit.ActionCommand, cmd, audit.OutcomeBlocked, "", start)
		return "", ErrBlocked
	}

	result, err := g.runner.Run(ctx, cmd)
	switch {
	case errors.Is(err, ErrTimeout):
		g.record(ctx, claims, audit.ActionCommand, cmd, audit.OutcomeTimedOut, "", start)
		return "", ErrTimeout
	case err != nil:
		g.record(ctx, claims, audit.ActionCommand, cmd, audit.OutcomeFailed, err.Error(), start)
		return "", err
	case result.ExitCode != 0:
		exitErr := &NonZeroExitError{ExitCode: result.ExitCode, Stderr: strings.TrimSpace(result.Stderr)}
		g.record(ctx, claims, audit.ActionCommand, cmd, audit.OutcomeFailed, exitErr.Error(), start)
		return "", exitErr
	}

	if result.Truncated {
		g.logger.Warn("command output truncated", zap.String("cmd", cmd))
	}
	g.record(ctx, claims, audit.ActionCommand, cmd, audit.OutcomeSucceeded, "", start)

	output := strings.TrimSpace(result.Stdout)
	if output == "" {
		return EmptyOutputMessage, nil
	}
	return output, nil
}

func (g *gatewayService) ExecuteQuery(ctx context.Context, query string, claims *authentication.Claims) (*QueryResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyInput
	}
	start := time.Now()

	allowed, err := g.filter.IsAllowed(ctx, denylist.KindQuery, query)
	if err != nil {
		return nil, err
	}
	if !allowed {
		g.record(ctx, claims, audit.ActionQuery, query, audit.OutcomeBlocked, "", start)
		return nil, ErrBlocked
	}

	result, err := g.executor.Execute(ctx, query)
	if err != nil {
		g.record(ctx, claims, audit.ActionQuery, query, audit.OutcomeFailed, err.Error(), start)
		return nil, err
	}
	g.record(ctx, claims, audit.ActionQuery, query, audit.OutcomeSucceeded, "", start)
	return result, nil
}

func (g *gatewayService) record(
	ctx context.Context,
	claims *authentication.Claims,
	action audit.Action,
	input string,
	outcome audit.Outcome,
	detail string,
	start time.Time,
) {
	event := &audit.Event{
		Action:     action,
		Input:      input,
		Outcome:    outcome,
		Detail:     detail,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if claims != nil {
		event.AccountID = claims.AccountID
		event.Identifier = claims.Identifier
	}
	g.recorder.Record(ctx, event)
}
