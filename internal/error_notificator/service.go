package error_notificator

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

type Service struct {
	infra Notificator
	log   *zap.Logger
}

func NewService(infra Notificator, log *zap.Logger) *Service {
	if infra == nil {
		infra = NopInfra{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{infra: infra, log: log}
}

func (s *Service) Notify(ctx context.Context, source string, err error, details string) error {
	return s.infra.Notify(ctx, source, err, details)
}

// Report шлёт уведомление в фоне: запрос клиента его не ждёт.
func (s *Service) Report(source string, err error, details string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if nerr := s.infra.Notify(ctx, source, err, details); nerr != nil {
			s.log.Warn("error notification failed", zap.String("source", source), zap.Error(nerr))
		}
	}()
}
