// Package service реализует синхронизацию файлов экспорта с магазином.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/ordersync/internal/config"
	"github.com/mmeshcher/ordersync/internal/mapper"
	"github.com/mmeshcher/ordersync/internal/metrics"
	"github.com/mmeshcher/ordersync/internal/model"
	"github.com/mmeshcher/ordersync/internal/parser"
	"github.com/mmeshcher/ordersync/internal/shopware"
)

// Gateway описывает контракт удалённой системы заказов, используемый сервисом.
type Gateway interface {
	mapper.Gateway
	FindOrderByExternalID(ctx context.Context, externalID string) (*model.RemoteOrder, error)
	CreateOrder(ctx context.Context, order shopware.CreateOrderRequest) (int, error)
}

// Journal описывает журнал результатов синхронизации. Может отсутствовать.
type Journal interface {
	Close() error
	RecordFile(ctx context.Context, report model.FileReport) error
	RecordOrder(ctx context.Context, rec model.OrderRecord) error
	ListOrders(ctx context.Context, limit int) ([]model.OrderRecord, error)
}

// Service содержит логику обработки файлов экспорта.
type Service struct {
	queuePath    string
	pollInterval time.Duration

	parser  *parser.Parser
	mapper  *mapper.Mapper
	gateway Gateway
	journal Journal
	metrics *metrics.Registry
	logger  *zap.Logger
	now     func() time.Time
}

// NewService создаёт сервис синхронизации. journal и reg могут быть nil.
func NewService(cfg *config.Config, gateway Gateway, journal Journal, reg *metrics.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		queuePath:    cfg.QueuePath,
		pollInterval: cfg.PollInterval,
		parser:       parser.New(cfg.Mapping.KeyColumn, logger),
		mapper:       mapper.New(cfg, gateway, logger),
		gateway:      gateway,
		journal:      journal,
		metrics:      reg,
		logger:       logger,
		now:          time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}

// ProcessFile проводит один файл через разбор, сопоставление и создание заказов.
// При ошибке разбора файл остаётся на месте и возвращается ошибка. Иначе файл удаляется
// после попытки обработать каждый заказ, независимо от их результатов.
func (s *Service) ProcessFile(ctx context.Context, path string) (*model.FileReport, error) {
	name := filepath.Base(path)
	logger := s.logger.With(zap.String("file", name))
	report := &model.FileReport{File: name, StartedAt: s.now()}

	logger.Info("processing file")

	result, err := s.parser.ParseFile(path)
	if err != nil {
		report.Status = model.FileStatusAborted
		report.Error = err.Error()
		logger.Error("file rejected, keeping it for inspection", zap.Error(err))
		s.finishFile(ctx, report)
		return report, err
	}

	report.Rows = result.Rows
	report.SkippedRows = len(result.Warnings)
	s.metrics.ObserveSkippedRows(report.SkippedRows)

	for _, group := range result.Groups {
		if err := ctx.Err(); err != nil {
			logger.Warn("processing interrupted, file kept for the next run", zap.Error(err))
			return report, err
		}

		outcome := s.processOrder(ctx, name, group)
		switch outcome {
		case model.OrderOutcomeCreated:
			report.Created++
		case model.OrderOutcomeSkipped:
			report.Skipped++
		case model.OrderOutcomeFailed:
			report.Failed++
		}
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Error("failed to delete processed file", zap.Error(err))
	}

	report.Status = model.FileStatusDone
	logger.Info("file processed",
		zap.Int("orders", len(result.Groups)),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Int("skipped_rows", report.SkippedRows),
	)
	s.finishFile(ctx, report)

	return report, nil
}

func (s *Service) processOrder(ctx context.Context, file string, group model.OrderGroup) model.OrderOutcome {
	logger := s.logger.With(zap.String("file", file), zap.String("order", group.ExternalID))
	rec := model.OrderRecord{ExternalID: group.ExternalID, File: file}

	existing, err := s.gateway.FindOrderByExternalID(ctx, group.ExternalID)
	switch {
	case err != nil:
		logger.Error("order lookup failed, attempting create", zap.Error(err))
	case existing != nil:
		logger.Info("order already exists, skipping", zap.Int("remote_id", existing.ID), zap.String("number", existing.Number))
		rec.RemoteID = &existing.ID
		return s.finishOrder(ctx, rec, model.OrderOutcomeSkipped, nil)
	}

	mapped, err := s.mapper.Map(ctx, group)
	if err != nil {
		logger.Error("order mapping failed", zap.Error(err))
		return s.finishOrder(ctx, rec, model.OrderOutcomeFailed, err)
	}

	id, err := s.gateway.CreateOrder(ctx, mapped.Request)
	if err != nil {
		logger.Error("order creation failed", zap.Error(err))
		return s.finishOrder(ctx, rec, model.OrderOutcomeFailed, err)
	}

	logger.Info("order created",
		zap.Int("remote_id", id),
		zap.Int("items", len(mapped.Order.Items)),
		zap.String("invoice_amount", mapped.Order.InvoiceAmount.StringFixed(2)),
	)
	rec.RemoteID = &id
	return s.finishOrder(ctx, rec, model.OrderOutcomeCreated, nil)
}

func (s *Service) finishOrder(ctx context.Context, rec model.OrderRecord, outcome model.OrderOutcome, cause error) model.OrderOutcome {
	rec.Outcome = outcome
	rec.ProcessedAt = s.now()
	if cause != nil {
		rec.Error = cause.Error()
	}

	s.metrics.ObserveOrder(string(outcome))
	if s.journal != nil {
		if err := s.journal.RecordOrder(ctx, rec); err != nil {
			s.logger.Warn("failed to record order", zap.String("order", rec.ExternalID), zap.Error(err))
		}
	}

	return outcome
}

func (s *Service) finishFile(ctx context.Context, report *model.FileReport) {
	report.FinishedAt = s.now()
	s.metrics.ObserveFile(string(report.Status))
	if s.journal != nil {
		if err := s.journal.RecordFile(ctx, *report); err != nil {
			s.logger.Warn("failed to record file", zap.String("file", report.File), zap.Error(err))
		}
	}
}

// ProcessQueue обрабатывает все файлы очереди по порядку имён и возвращает число обработанных файлов.
// Отклонённые файлы остаются в очереди.
func (s *Service) ProcessQueue(ctx context.Context) (int, error) {
	files, err := filepath.Glob(filepath.Join(s.queuePath, "*.csv"))
	if err != nil {
		return 0, fmt.Errorf("list queue: %w", err)
	}

	processed := 0
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if _, err := s.ProcessFile(ctx, path); err != nil {
			if ctx.Err() != nil {
				return processed, ctx.Err()
			}
			continue
		}
		processed++
	}

	return processed, nil
}

// RunQueuePolling обрабатывает очередь сразу и затем с интервалом опроса до отмены контекста.
func (s *Service) RunQueuePolling(ctx context.Context) error {
	interval := s.pollInterval
	if interval <= 0 {
		interval = 300 * time.Second
	}

	s.logger.Info("queue polling started", zap.String("queue", s.queuePath), zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.ProcessQueue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("queue pass failed", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("queue pass finished", zap.Int("files", n))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("queue polling stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RecentOrders возвращает последние записи журнала. Без журнала возвращается пустой список.
func (s *Service) RecentOrders(ctx context.Context, limit int) ([]model.OrderRecord, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.ListOrders(ctx, limit)
}
