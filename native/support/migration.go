package support

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "supportstake/native/support"

// SnapshotStore persists encoded migration snapshots.
type SnapshotStore interface {
	PutSnapshot(id string, data []byte) error
	GetSnapshot(id string) ([]byte, error)
}

// MigrationReport summarises a completed migration.
type MigrationReport struct {
	ID           string        `json:"id"`
	SourceEngine string        `json:"sourceEngine"`
	TargetEngine string        `json:"targetEngine"`
	Digest       string        `json:"digest"`
	Pools        int           `json:"pools"`
	Stakes       int           `json:"stakes"`
	ReserveMoved *big.Int      `json:"reserveMoved"`
	Duration     time.Duration `json:"duration"`
}

// MigrationAdapter moves the accounting of a retiring engine into a fresh
// successor: freeze source, export, encode and persist, decode, import,
// move the vault balance, activate target, retire source.
type MigrationAdapter struct {
	source    *Engine
	target    *Engine
	principal PrincipalLedger
	store     SnapshotStore
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewMigrationAdapter binds a source and target engine. The principal ledger
// is used to move the source vault balance to the target vault. store may be
// nil, in which case the encoded snapshot is only held in memory.
func NewMigrationAdapter(source, target *Engine, principal PrincipalLedger, store SnapshotStore) (*MigrationAdapter, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("%w: source and target engines required", ErrInvalidParameter)
	}
	if source == target {
		return nil, fmt.Errorf("%w: source and target must differ", ErrInvalidParameter)
	}
	if principal == nil {
		return nil, fmt.Errorf("%w: principal ledger required", ErrInvalidParameter)
	}
	return &MigrationAdapter{
		source:    source,
		target:    target,
		principal: principal,
		store:     store,
		tracer:    otel.Tracer(tracerName),
		logger:    slog.Default(),
	}, nil
}

// SetLogger configures the structured logger.
func (m *MigrationAdapter) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger
}

// Migrate runs the full migration. If a step after Freeze fails the source
// stays frozen and the target stays importing, so the operator can inspect
// and retry with a fresh target.
func (m *MigrationAdapter) Migrate(ctx context.Context) (report *MigrationReport, err error) {
	started := time.Now()
	id := uuid.NewString()
	ctx, span := m.tracer.Start(ctx, "support.migrate", trace.WithAttributes(
		attribute.String("migration.id", id),
		attribute.String("migration.source", m.source.ID()),
		attribute.String("migration.target", m.target.ID()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			m.logger.Error("migration failed", "id", id, "error", err)
		}
		span.End()
	}()
	logger := m.logger.With("migration", id)

	if m.source.Status() == StatusActive {
		if err := m.phase(ctx, "freeze", m.source.Freeze); err != nil {
			return nil, err
		}
	}

	var snap *MigrationSnapshot
	if err := m.phase(ctx, "export", func() (err error) {
		snap, err = m.source.ExportSnapshot()
		return err
	}); err != nil {
		return nil, err
	}

	var encoded []byte
	if err := m.phase(ctx, "encode", func() (err error) {
		encoded, err = EncodeSnapshot(snap)
		return err
	}); err != nil {
		return nil, err
	}
	digest := SnapshotDigest(encoded)

	if m.store != nil {
		if err := m.phase(ctx, "persist", func() error {
			if err := m.store.PutSnapshot(id, encoded); err != nil {
				return err
			}
			stored, err := m.store.GetSnapshot(id)
			if err != nil {
				return err
			}
			encoded = stored
			return nil
		}); err != nil {
			return nil, err
		}
	}

	var decoded *MigrationSnapshot
	if err := m.phase(ctx, "decode", func() (err error) {
		decoded, err = DecodeSnapshot(encoded)
		return err
	}); err != nil {
		return nil, err
	}

	if err := m.phase(ctx, "import", func() error {
		return m.target.ImportSnapshot(decoded)
	}); err != nil {
		return nil, err
	}

	reserve := big.NewInt(0)
	if err := m.phase(ctx, "move_reserve", func() (err error) {
		reserve, err = m.moveReserve()
		return err
	}); err != nil {
		return nil, err
	}

	if err := m.phase(ctx, "activate", m.target.Activate); err != nil {
		return nil, err
	}
	if err := m.phase(ctx, "retire", m.source.Retire); err != nil {
		return nil, err
	}

	report = &MigrationReport{
		ID:           id,
		SourceEngine: m.source.ID(),
		TargetEngine: m.target.ID(),
		Digest:       hex.EncodeToString(digest[:]),
		Pools:        len(decoded.Pools),
		Stakes:       len(decoded.Stakes),
		ReserveMoved: reserve,
		Duration:     time.Since(started),
	}
	span.SetAttributes(
		attribute.String("migration.digest", report.Digest),
		attribute.Int("migration.stakes", report.Stakes),
	)
	logger.Info("migration complete",
		"source", report.SourceEngine,
		"target", report.TargetEngine,
		"stakes", report.Stakes,
		"pools", report.Pools,
		"reserve", reserve.String(),
		"digest", report.Digest)
	return report, nil
}

func (m *MigrationAdapter) phase(ctx context.Context, name string, fn func() error) error {
	_, span := m.tracer.Start(ctx, "support.migrate."+name)
	defer span.End()
	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("migration %s: %w", name, err)
	}
	return nil
}

func (m *MigrationAdapter) moveReserve() (*big.Int, error) {
	from, to := m.source.Vault(), m.target.Vault()
	if from == to {
		return big.NewInt(0), nil
	}
	balance, err := m.principal.BalanceOf(from)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return balance, nil
	}
	if err := m.principal.Debit(from, balance); err != nil {
		return nil, err
	}
	if err := m.principal.Credit(to, balance); err != nil {
		if rollback := m.principal.Credit(from, balance); rollback != nil {
			m.logger.Error("reserve rollback failed", "error", rollback)
		}
		return nil, err
	}
	return balance, nil
}
