package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/prizzzz/leaseIQ/model"
	"github.com/prizzzz/leaseIQ/pkg/events"
	"github.com/prizzzz/leaseIQ/pkg/logger"
	"github.com/prizzzz/leaseIQ/pkg/metrics"
	"github.com/prizzzz/leaseIQ/scoring"
)

// Upload is a PDF received from a tenant.
type Upload struct {
	Tenant      string
	Filename    string
	ContentType string
	Data        []byte
}

// Pipeline runs an upload through storage, OCR, extraction and scoring, and
// locks the result onto the contract record.
type Pipeline struct {
	repo      ContractRepository
	ocr       OCR
	extractor *Extractor
	scorer    *scoring.Scorer
	objects   ObjectStore
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewPipeline(repo ContractRepository, ocr OCR, extractor *Extractor, scorer *scoring.Scorer) *Pipeline {
	return &Pipeline{
		repo:      repo,
		ocr:       ocr,
		extractor: extractor,
		scorer:    scorer,
		publisher: events.Noop{},
		now:       time.Now,
	}
}

// WithObjectStore mirrors uploads to object storage and hands OCR a presigned URL.
func (p *Pipeline) WithObjectStore(objects ObjectStore) *Pipeline {
	p.objects = objects
	return p
}

func (p *Pipeline) WithPublisher(publisher events.Publisher) *Pipeline {
	if publisher != nil {
		p.publisher = publisher
	}
	return p
}

func (p *Pipeline) WithMetrics(m *metrics.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// Strategy is the scoring strategy used for the upload-time lock.
func (p *Pipeline) Strategy() model.ScoringStrategy {
	return p.scorer.Strategy
}

// Analyze processes one upload synchronously. When a step fails after the
// record was created, the record is marked failed and returned with the error.
func (p *Pipeline) Analyze(ctx context.Context, u Upload) (*model.Contract, error) {
	now := p.now()
	contract := &model.Contract{
		ID:        uuid.New().String(),
		Filename:  u.Filename,
		Tenant:    u.Tenant,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ctx = logger.WithContract(ctx, contract.ID)

	doc := Document{Name: u.Filename, Data: u.Data}
	if p.objects != nil {
		contract.ObjectName = ObjectName(u.Tenant, contract.ID, u.Filename)
		if err := p.objects.UploadFile(ctx, contract.ObjectName, bytes.NewReader(u.Data), int64(len(u.Data)), u.ContentType); err != nil {
			logger.Error(ctx, "failed to upload file to object storage", "error", err)
			return nil, fmt.Errorf("failed to upload file: %w", err)
		}
		url, err := p.objects.GetPresignedURL(ctx, contract.ObjectName)
		if err != nil {
			logger.Error(ctx, "failed to presign file", "error", err)
			return nil, fmt.Errorf("failed to generate file URL: %w", err)
		}
		contract.PDFURL = url
		doc.URL = url
	}

	if err := p.repo.Create(ctx, contract); err != nil {
		return nil, fmt.Errorf("failed to save contract: %w", err)
	}
	logger.Info(ctx, "contract created", "filename", u.Filename, "size", len(u.Data))

	if err := p.repo.UpdateStatus(ctx, contract.ID, model.StatusProcessing, ""); err != nil {
		return p.fail(ctx, contract, err)
	}

	start := p.now()
	text, err := p.ocr.ExtractText(ctx, doc)
	p.metrics.ObserveOCR(p.ocr.Name(), p.now().Sub(start), err)
	if err != nil {
		return p.fail(ctx, contract, fmt.Errorf("ocr failed: %w", err))
	}

	data, err := p.extractor.ExtractContract(ctx, text)
	if err != nil {
		return p.fail(ctx, contract, err)
	}

	fairness := p.scorer.Lock(data)
	err = p.repo.Lock(ctx, contract.ID, model.Analysis{
		Text:     text,
		Data:     data,
		Fairness: fairness,
		Strategy: p.scorer.Strategy,
	})
	if err != nil {
		return p.fail(ctx, contract, fmt.Errorf("failed to lock score: %w", err))
	}
	p.metrics.ObserveAnalysis(string(p.scorer.Strategy), fairness.Score, nil)
	logger.Info(ctx, "contract analyzed", "score", fairness.Score, "rating", fairness.Rating, "strategy", p.scorer.Strategy)

	p.publish(ctx, events.New(events.ContractAnalyzed, u.Tenant, contract.ID, map[string]any{
		"filename": u.Filename,
		"score":    fairness.Score,
		"rating":   fairness.Rating,
		"strategy": p.scorer.Strategy,
	}))

	return p.repo.Get(ctx, contract.ID)
}

func (p *Pipeline) fail(ctx context.Context, contract *model.Contract, cause error) (*model.Contract, error) {
	logger.Error(ctx, "contract analysis failed", "error", cause)
	p.metrics.ObserveAnalysis(string(p.scorer.Strategy), 0, cause)

	if err := p.repo.UpdateStatus(ctx, contract.ID, model.StatusFailed, cause.Error()); err != nil {
		logger.Error(ctx, "failed to mark contract failed", "error", err)
	}
	p.publish(ctx, events.New(events.ContractFailed, contract.Tenant, contract.ID, map[string]any{
		"filename": contract.Filename,
		"error":    cause.Error(),
	}))

	if stored, err := p.repo.Get(ctx, contract.ID); err == nil {
		return stored, cause
	}
	contract.Status = model.StatusFailed
	contract.ErrorMsg = cause.Error()
	return contract, cause
}

func (p *Pipeline) publish(ctx context.Context, e events.Event) {
	if err := p.publisher.Publish(ctx, e); err != nil {
		logger.Warn(ctx, "failed to publish event", "type", e.Type, "error", err)
	}
}

// Delete removes a contract and its stored PDF.
func (p *Pipeline) Delete(ctx context.Context, c *model.Contract) error {
	if p.objects != nil && c.ObjectName != "" {
		if err := p.objects.DeleteFile(ctx, c.ObjectName); err != nil {
			logger.Warn(ctx, "failed to delete file from object storage", "object", c.ObjectName, "error", err)
		}
	}
	if err := p.repo.Delete(ctx, c.ID); err != nil {
		return err
	}
	p.publish(ctx, events.New(events.ContractDeleted, c.Tenant, c.ID, nil))
	return nil
}
