package scan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-anomaly/internal/anomaly"
	"github.com/zombor/invoice-anomaly/internal/invoice"
	"github.com/zombor/invoice-anomaly/internal/narrative"
)

const (
	auditModule = "accounting"
	auditAction = "anomaly_scan"
)

// AuditEntry records that a scan ran
type AuditEntry struct {
	ID              string       `json:"id"`
	TenantID        string       `json:"tenant_id"`
	Module          string       `json:"module"`
	Action          string       `json:"action"`
	Payload         AuditPayload `json:"payload"`
	UserID          string       `json:"user_id"`
	ConfidenceScore float64      `json:"confidence_score"`
	CreatedAt       time.Time    `json:"created_at"`
}

// AuditPayload summarizes a scan's findings
type AuditPayload struct {
	AnomalyCount int            `json:"anomaly_count"`
	Types        []anomaly.Type `json:"types"`
}

// Result is the outcome of one scan
type Result struct {
	Anomalies []anomaly.Anomaly `json:"anomalies"`
	Narrative string            `json:"narrative"`
	Summary   anomaly.Summary   `json:"summary"`
}

// Config tunes a Service
type Config struct {
	// WindowDays limits the scan to invoices dated within this many days
	WindowDays int
	// NarrativeTimeout bounds the narrative call
	NarrativeTimeout time.Duration
	// NarrativeLimit is how many top anomalies the narrator sees
	NarrativeLimit int
	Thresholds     anomaly.Thresholds
}

// DefaultConfig returns the production settings
func DefaultConfig() Config {
	return Config{
		WindowDays:       90,
		NarrativeTimeout: 20 * time.Second,
		NarrativeLimit:   20,
		Thresholds:       anomaly.DefaultThresholds(),
	}
}

// IDGenerator generates unique IDs for audit entries
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type uuidGenerator struct{}

func (g *uuidGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service runs anomaly scans
type Service struct {
	db          DB
	narrator    narrative.Narrator
	engine      *anomaly.Engine
	config      Config
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service. narrator may be nil to skip narratives.
func NewService(db DB, narrator narrative.Narrator, config Config) *Service {
	return NewServiceWithDeps(db, narrator, config, &uuidGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, narrator narrative.Narrator, config Config, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		narrator:    narrator,
		engine:      anomaly.NewEngine(config.Thresholds),
		config:      config,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// IsMember reports whether userID may scan tenantID
func (s *Service) IsMember(tenantID, userID string) (bool, error) {
	member, err := s.db.IsMember(tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("checking membership: %w", err)
	}
	return member, nil
}

// Scan analyzes the tenant's recent invoices. Only reading the invoice
// snapshot can fail; narrative and audit problems are logged and ignored.
func (s *Service) Scan(ctx context.Context, tenantID, userID string) (*Result, error) {
	now := s.timeSource.Now()
	since := invoice.CalendarDate(now.UTC()).AddDate(0, 0, -s.config.WindowDays)

	receivables, err := s.db.ListReceivables(tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("listing receivables: %w", err)
	}
	payables, err := s.db.ListPayables(tenantID, since)
	if err != nil {
		return nil, fmt.Errorf("listing payables: %w", err)
	}
	records := invoice.Normalize(receivables, payables)

	names, err := s.db.VendorNames(tenantID, invoice.VendorIDs(records))
	if err != nil {
		return nil, fmt.Errorf("looking up vendor names: %w", err)
	}
	records = invoice.ResolveVendors(records, names)

	anomalies, err := s.engine.Run(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("detecting anomalies: %w", err)
	}

	result := &Result{
		Anomalies: anomalies,
		Narrative: s.narrate(ctx, tenantID, anomalies),
		Summary:   anomaly.Summarize(anomalies),
	}

	entry := &AuditEntry{
		ID:       s.idGenerator.Generate(),
		TenantID: tenantID,
		Module:   auditModule,
		Action:   auditAction,
		Payload: AuditPayload{
			AnomalyCount: len(anomalies),
			Types:        anomaly.DistinctTypes(anomalies),
		},
		UserID:          userID,
		ConfidenceScore: anomaly.MeanConfidence(anomalies),
		CreatedAt:       now,
	}
	if err := s.db.AppendAudit(entry); err != nil {
		slog.Warn("Failed to write audit entry", "tenant_id", tenantID, "error", err)
	}

	slog.Info("Anomaly scan completed",
		"tenant_id", tenantID,
		"records", len(records),
		"anomalies", len(anomalies),
	)

	return result, nil
}

// narrate asks the narrator once for a summary, returning "" on any failure
func (s *Service) narrate(ctx context.Context, tenantID string, anomalies []anomaly.Anomaly) string {
	if s.narrator == nil || len(anomalies) == 0 {
		return ""
	}

	if s.config.NarrativeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.NarrativeTimeout)
		defer cancel()
	}

	text, err := s.narrator.Narrate(ctx, anomaly.Top(anomalies, s.config.NarrativeLimit))
	if err != nil {
		slog.Warn("Failed to generate narrative", "tenant_id", tenantID, "error", err)
		return ""
	}
	return text
}

// AuditTrail returns the tenant's scan history, oldest first
func (s *Service) AuditTrail(tenantID string) ([]*AuditEntry, error) {
	entries, err := s.db.ListAudit(tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	return entries, nil
}
