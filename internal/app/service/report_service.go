package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// Lo implementa internal/infra/storage.ReportRepo
type ReportStore interface {
	Get(ctx context.Context, id int64) (domain.MatchReport, error)
	Pending(ctx context.Context, limit int) ([]domain.MatchReport, error)
	MarkProcessed(ctx context.Context, id int64, procErr error) error
}

// ReportService aplica los resultados externos como si fueran un override de
// admin sobre el lobby.
type ReportService struct {
	reports ReportStore
	lobbies *LobbyService
}

func NewReportService(reports ReportStore, lobbies *LobbyService) *ReportService {
	return &ReportService{reports: reports, lobbies: lobbies}
}

// Handle procesa el reporte id. Un reporte ya procesado no hace nada.
func (s *ReportService) Handle(ctx context.Context, id int64) {
	rep, err := s.reports.Get(ctx, id)
	if err != nil {
		log.Printf("[reports] get %d: %v", id, err)
		return
	}
	s.apply(ctx, rep)
}

// Drain procesa lo pendiente; se llama al arrancar.
func (s *ReportService) Drain(ctx context.Context) int {
	pending, err := s.reports.Pending(ctx, 100)
	if err != nil {
		log.Printf("[reports] pending: %v", err)
		return 0
	}
	for _, rep := range pending {
		s.apply(ctx, rep)
	}
	return len(pending)
}

func (s *ReportService) apply(ctx context.Context, rep domain.MatchReport) {
	err := s.resolve(ctx, rep)
	if err != nil {
		log.Printf("[reports] ⚠️ reporte %d lobby=%s: %v", rep.ID, rep.LobbyID, err)
	} else {
		log.Printf("[reports] ✅ reporte %d lobby=%s outcome=%s", rep.ID, rep.LobbyID, rep.Outcome)
	}
	if err := s.reports.MarkProcessed(ctx, rep.ID, err); err != nil {
		log.Printf("[reports] mark %d: %v", rep.ID, err)
	}
}

func (s *ReportService) resolve(ctx context.Context, rep domain.MatchReport) error {
	l, ok := s.lobbies.Get(rep.LobbyID)
	if !ok {
		return domain.ErrLobbyNotFound
	}
	o, err := domain.ParseOutcome(rep.Outcome, l.Config().TeamCount)
	if err != nil {
		return err
	}
	if _, err := s.lobbies.ForceOutcome(ctx, rep.LobbyID, o); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return fmt.Errorf("lobby ya cerrado: %w", err)
		}
		return err
	}
	return nil
}
