package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

const (
	DefaultInviteTTL = 5 * time.Minute
	DefaultPartySize = 5
)

// Party es un grupo armado antes de entrar a la cola. Su ID es el ID de la
// entrada de grupo en la cola.
type Party struct {
	ID      string
	Leader  string
	Members []string
	// invitado -> vencimiento
	Invites map[string]time.Time
}

func (p Party) PendingInvites(now time.Time) int {
	n := 0
	for _, until := range p.Invites {
		if now.Before(until) {
			n++
		}
	}
	return n
}

func (p Party) clone() Party {
	c := p
	c.Members = append([]string(nil), p.Members...)
	c.Invites = make(map[string]time.Time, len(p.Invites))
	for k, v := range p.Invites {
		c.Invites[k] = v
	}
	return c
}

// PartyService vive sólo en memoria: un reinicio disuelve los grupos.
type PartyService struct {
	mu       sync.Mutex
	parties  map[string]*Party
	byPlayer map[string]string

	ttl      time.Duration
	maxSize  int
	opts     options
	onChange []func(ctx context.Context, playerID string)
}

func NewPartyService(maxSize int, ttl time.Duration, opts ...Option) *PartyService {
	if maxSize <= 0 {
		maxSize = DefaultPartySize
	}
	if ttl <= 0 {
		ttl = DefaultInviteTTL
	}
	return &PartyService{
		parties:  map[string]*Party{},
		byPlayer: map[string]string{},
		ttl:      ttl,
		maxSize:  maxSize,
		opts:     buildOptions(opts),
	}
}

// OnChange registra un callback que corre (sin lock) cada vez que un grupo
// cambia de composición. Recibe un jugador del grupo afectado.
func (s *PartyService) OnChange(f func(ctx context.Context, playerID string)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, f)
	s.mu.Unlock()
}

func (s *PartyService) changed(ctx context.Context, playerID string) {
	s.mu.Lock()
	hooks := append([]func(context.Context, string){}, s.onChange...)
	s.mu.Unlock()
	for _, f := range hooks {
		f(ctx, playerID)
	}
}

// Of devuelve una copia del grupo del jugador.
func (s *PartyService) Of(playerID string) (Party, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byPlayer[playerID]
	if !ok {
		return Party{}, false
	}
	return s.parties[id].clone(), true
}

func (s *PartyService) Invite(ctx context.Context, leader, target string) (string, error) {
	if leader == target {
		return "", fmt.Errorf("%w: no podés invitarte a vos mismo", domain.ErrValidation)
	}
	now := s.opts.now()

	s.mu.Lock()
	if _, busy := s.byPlayer[target]; busy {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: <@%s> ya está en un grupo", domain.ErrValidation, target)
	}
	id, ok := s.byPlayer[leader]
	if !ok {
		id = s.opts.newID()
		s.parties[id] = &Party{ID: id, Leader: leader, Members: []string{leader}, Invites: map[string]time.Time{}}
		s.byPlayer[leader] = id
	}
	p := s.parties[id]
	if p.Leader != leader {
		s.mu.Unlock()
		return "", domain.ErrNotPartyLeader
	}
	if len(p.Members)+p.PendingInvites(now) >= s.maxSize {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: el grupo ya tiene %d lugares ocupados", domain.ErrEntryTooLarge, s.maxSize)
	}
	p.Invites[target] = now.Add(s.ttl)
	s.mu.Unlock()

	log.Printf("[party] %s invitó a %s (%s)", leader, target, id)
	s.changed(ctx, leader)
	return fmt.Sprintf("📨 Invitaste a <@%s>. La invitación vence en %s.", target, s.ttl), nil
}

// Accept une al jugador al grupo que lo invitó. Con varias invitaciones
// vigentes gana la más reciente.
func (s *PartyService) Accept(ctx context.Context, player string) (string, error) {
	now := s.opts.now()

	s.mu.Lock()
	if _, busy := s.byPlayer[player]; busy {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: ya estás en un grupo", domain.ErrValidation)
	}
	p := s.pendingFor(player, now)
	if p == nil {
		s.mu.Unlock()
		return "", domain.ErrNoInvitePending
	}
	delete(p.Invites, player)
	p.Members = append(p.Members, player)
	s.byPlayer[player] = p.ID
	leader, size := p.Leader, len(p.Members)
	s.mu.Unlock()

	log.Printf("[party] %s se unió a %s", player, p.ID)
	s.changed(ctx, leader)
	return fmt.Sprintf("✅ Te uniste al grupo de <@%s> (%d jugadores).", leader, size), nil
}

func (s *PartyService) Decline(ctx context.Context, player string) (string, error) {
	now := s.opts.now()

	s.mu.Lock()
	p := s.pendingFor(player, now)
	if p == nil {
		s.mu.Unlock()
		return "", domain.ErrNoInvitePending
	}
	delete(p.Invites, player)
	leader := p.Leader
	s.mu.Unlock()

	s.changed(ctx, leader)
	return "👋 Rechazaste la invitación.", nil
}

func (s *PartyService) pendingFor(player string, now time.Time) *Party {
	var best *Party
	var bestAt time.Time
	for _, p := range s.parties {
		until, ok := p.Invites[player]
		if !ok || !now.Before(until) {
			continue
		}
		if best == nil || until.After(bestAt) {
			best, bestAt = p, until
		}
	}
	return best
}

// Leave saca al jugador de su grupo. Si era el líder lo hereda el siguiente
// en orden de ingreso; un grupo de uno solo se disuelve.
func (s *PartyService) Leave(ctx context.Context, player string) (string, error) {
	s.mu.Lock()
	id, ok := s.byPlayer[player]
	if !ok {
		s.mu.Unlock()
		return "ℹ️ No estabas en un grupo.", nil
	}
	p := s.parties[id]
	rest := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		if m != player {
			rest = append(rest, m)
		}
	}
	delete(s.byPlayer, player)
	p.Members = rest
	if len(rest) == 0 || (len(rest) == 1 && p.PendingInvites(s.opts.now()) == 0) {
		for _, m := range rest {
			delete(s.byPlayer, m)
		}
		delete(s.parties, id)
	} else if p.Leader == player {
		p.Leader = rest[0]
	}
	s.mu.Unlock()

	// el que sale también sale de la cola si estaba encolado con el grupo
	s.changed(ctx, player)
	return "✅ Saliste del grupo.", nil
}

// Expire limpia invitaciones vencidas y grupos que quedaron de uno.
func (s *PartyService) Expire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.parties {
		for who, until := range p.Invites {
			if !now.Before(until) {
				delete(p.Invites, who)
				n++
			}
		}
		if len(p.Members) <= 1 && len(p.Invites) == 0 {
			for _, m := range p.Members {
				delete(s.byPlayer, m)
			}
			delete(s.parties, id)
		}
	}
	return n
}

// List devuelve una copia de los grupos, ordenados por id.
func (s *PartyService) List() []Party {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Party, 0, len(s.parties))
	for _, p := range s.parties {
		out = append(out, p.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
