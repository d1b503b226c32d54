package service

import (
	"context"
	"errors"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/eventbus"
	"learnhub_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// NotificationHandler 所有领域事件转为通知
func NotificationHandler(n Notifier) eventbus.Handler {
	return func(ctx context.Context, ev model.DomainEvent) error {
		return n.Notify(ctx, ev.StudentID, ev.Kind, ev)
	}
}

// CertificateHandler ProgramCompleted 后签发证书；签发幂等，可以放心重试
func CertificateHandler(issuer CertificateIssuer, retries int, backoff time.Duration) eventbus.Handler {
	if retries < 1 {
		retries = 1
	}
	return func(ctx context.Context, ev model.DomainEvent) error {
		if ev.Kind != model.EventProgramCompleted {
			return nil
		}
		var err error
		for i := 0; i < retries; i++ {
			var cert *model.Certificate
			cert, err = issuer.Issue(ctx, ev.StudentID, ev.ProgramID)
			if err == nil {
				logger.Log.Info("Certificate ready",
					zap.String("certificateId", cert.ID),
					zap.String("studentId", ev.StudentID),
					zap.String("programId", ev.ProgramID))
				return nil
			}
			// 校验类/策略类错误重试也不会成功
			if kind := util.ErrorKind(err); kind == util.KindValidation || kind == util.KindPolicy || kind == util.KindNotFound {
				return err
			}
			if i == retries-1 {
				break
			}
			select {
			case <-ctx.Done():
				return errors.Join(err, ctx.Err())
			case <-time.After(backoff * time.Duration(i+1)):
			}
		}
		return err
	}
}

// RegisterHandlers 订阅引擎的事件处理器
func RegisterHandlers(bus eventbus.Bus, notifier Notifier, issuer CertificateIssuer, retries int) {
	bus.Subscribe(NotificationHandler(notifier))
	bus.Subscribe(CertificateHandler(issuer, retries, 200*time.Millisecond), model.EventProgramCompleted)
}
