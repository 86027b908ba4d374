package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
	"github.com/jose-valero/lobby-queue-bot/internal/infra/storage"
)

var t0 = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func inline(f func()) { f() }

// deferredSpawn junta el trabajo en segundo plano hasta que el test lo corre.
type deferredSpawn struct {
	mu  sync.Mutex
	fns []func()
}

func (d *deferredSpawn) spawn(f func()) {
	d.mu.Lock()
	d.fns = append(d.fns, f)
	d.mu.Unlock()
}

// drain corre todo, incluido lo que se encole mientras tanto.
func (d *deferredSpawn) drain() {
	for {
		d.mu.Lock()
		if len(d.fns) == 0 {
			d.mu.Unlock()
			return
		}
		f := d.fns[0]
		d.fns = d.fns[1:]
		d.mu.Unlock()
		f()
	}
}

// fakeTimers reemplaza time.AfterFunc: nada corre hasta que el test llama fire.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	owner   *fakeTimers
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{owner: ft, d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// pending son los timers que no corrieron ni se frenaron.
func (ft *fakeTimers) pending() []*fakeTimer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	var out []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire corre el callback aunque el timer esté frenado, como un AfterFunc
// que ya había disparado cuando llegó el Stop.
func (ft *fakeTimers) fire(t *fakeTimer) {
	ft.mu.Lock()
	t.fired = true
	ft.mu.Unlock()
	t.f()
}

// memChat implementa ChatLogStore.
type memChat struct {
	mu    sync.Mutex
	lines []domain.ChatLine
}

func (c *memChat) Append(_ context.Context, l domain.ChatLine) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, l)
	return nil
}

func (c *memChat) ChatLog(_ context.Context, lobbyID string, limit int) ([]domain.ChatLine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.ChatLine
	for _, l := range c.lines {
		if l.LobbyID == lobbyID {
			out = append(out, l)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// memStore implementa ProfileStore y BanStore en memoria.
type memStore struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	bans     []domain.Ban
	results  map[string][]domain.PlayerResult
}

func newMemStore(ps ...domain.Profile) *memStore {
	s := &memStore{profiles: map[string]domain.Profile{}, results: map[string][]domain.PlayerResult{}}
	for _, p := range ps {
		s.profiles[p.ID] = p
	}
	return s
}

func (s *memStore) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, storage.ErrNotFound
	}
	p.Bans = nil
	for _, b := range s.bans {
		if b.PlayerID == id {
			p.Bans = append(p.Bans, b)
		}
	}
	return p, nil
}

func (s *memStore) UpsertProfile(_ context.Context, p domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *memStore) UpdateRating(_ context.Context, id string, r domain.Rating) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[id]
	p.Rating = r
	s.profiles[id] = p
	return nil
}

func (s *memStore) RecordResult(_ context.Context, id string, res domain.PlayerResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = append(s.results[id], res)
	return nil
}

func (s *memStore) IncrementStrike(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[id]
	p.Strikes++
	s.profiles[id] = p
	return p.Strikes, nil
}

func (s *memStore) Leaderboard(_ context.Context, limit int) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Profile
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rating.Mu > out[j].Rating.Mu })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SetBan(_ context.Context, b domain.Ban) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bans = append(s.bans, b)
	return nil
}

func (s *memStore) ClearBan(_ context.Context, player, queue string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.bans[:0]
	found := false
	for _, b := range s.bans {
		if b.PlayerID == player && b.QueueID == queue {
			found = true
			continue
		}
		kept = append(kept, b)
	}
	s.bans = kept
	return found, nil
}

func (s *memStore) ListBans(_ context.Context, now time.Time) ([]domain.Ban, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Ban
	for _, b := range s.bans {
		if now.Before(b.Until) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.bans[:0]
	var n int64
	for _, b := range s.bans {
		if now.Before(b.Until) {
			kept = append(kept, b)
			continue
		}
		n++
	}
	s.bans = kept
	return n, nil
}

func (s *memStore) profile(id string) domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[id]
}

type memMatches struct {
	mu       sync.Mutex
	archived []domain.MatchRecord
	leavers  []domain.LeaverRecord
	recent   []string
}

func (m *memMatches) Archive(_ context.Context, rec domain.MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.archived = append(m.archived, rec)
	return nil
}

func (m *memMatches) RecentMaps(context.Context, string, int) ([]string, error) {
	return m.recent, nil
}

func (m *memMatches) RecordLeaver(_ context.Context, r domain.LeaverRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leavers = append(m.leavers, r)
	return nil
}

func (m *memMatches) ListLeavers(_ context.Context, limit int) ([]domain.LeaverRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.leavers) > limit {
		return m.leavers[:limit], nil
	}
	return m.leavers, nil
}

type memRooms struct {
	mu    sync.Mutex
	rooms map[string]domain.ChannelHandles
}

func newMemRooms() *memRooms { return &memRooms{rooms: map[string]domain.ChannelHandles{}} }

func (r *memRooms) Save(_ context.Context, id string, h domain.ChannelHandles) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[id] = h
	return nil
}

func (r *memRooms) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, id)
	return nil
}

func (r *memRooms) List(context.Context) (map[string]domain.ChannelHandles, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.ChannelHandles, len(r.rooms))
	for k, v := range r.rooms {
		out[k] = v
	}
	return out, nil
}

type memConfigs struct {
	mu   sync.Mutex
	cfgs map[string]domain.QueueConfig
}

func newMemConfigs(cfgs ...domain.QueueConfig) *memConfigs {
	c := &memConfigs{cfgs: map[string]domain.QueueConfig{}}
	for _, cfg := range cfgs {
		c.cfgs[cfg.ID] = cfg
	}
	return c
}

func (c *memConfigs) Get(_ context.Context, id string) (domain.QueueConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cfg, ok := c.cfgs[id]
	if !ok {
		return domain.QueueConfig{}, storage.ErrNotFound
	}
	return cfg, nil
}

func (c *memConfigs) Upsert(_ context.Context, cfg domain.QueueConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfgs[cfg.ID] = cfg
	return nil
}

func (c *memConfigs) List(context.Context) ([]domain.QueueConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.QueueConfig
	for _, cfg := range c.cfgs {
		out = append(out, cfg)
	}
	return out, nil
}

// fakeProvider crea sólo lo que falta. Los primeros failCreate intentos
// crean la categoría y el primer canal y después fallan.
type fakeProvider struct {
	mu         sync.Mutex
	failCreate int
	failAlways bool
	calls      int
	categories int
	voices     int
	moves      map[string][]string
	torndown   []domain.ChannelHandles

	// con entered != nil cada CreateGameChannels avisa y espera a release
	entered chan struct{}
	release chan struct{}
}

func newFakeProvider() *fakeProvider { return &fakeProvider{moves: map[string][]string{}} }

func (p *fakeProvider) CreateGameChannels(_ context.Context, req ChannelRequest) (domain.ChannelHandles, error) {
	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	fail := p.failAlways || p.calls <= p.failCreate

	h := req.Existing
	h.GuildID = req.GuildID
	if h.CategoryID == "" {
		p.categories++
		h.CategoryID = fmt.Sprintf("cat-%d", p.categories)
	}
	if len(h.TeamVoice) < len(req.TeamNames) {
		grown := make([]string, len(req.TeamNames))
		copy(grown, h.TeamVoice)
		h.TeamVoice = grown
	}
	for i := range req.TeamNames {
		if h.TeamVoice[i] != "" {
			continue
		}
		if fail && i > 0 {
			return h, errors.New("discord 503")
		}
		p.voices++
		h.TeamVoice[i] = fmt.Sprintf("voice-%d", p.voices)
	}
	if fail {
		return h, errors.New("discord 503")
	}
	return h, nil
}

func (p *fakeProvider) MovePlayersToVoice(_ context.Context, _ string, players []string, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.moves[channelID] = append(p.moves[channelID], players...)
	return nil
}

func (p *fakeProvider) TeardownChannels(_ context.Context, h domain.ChannelHandles) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.torndown = append(p.torndown, h)
	return nil
}

func (p *fakeProvider) stats() (calls, categories int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls, p.categories
}

func (p *fakeProvider) setFailAlways(v bool) {
	p.mu.Lock()
	p.failAlways = v
	p.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Notify(_ context.Context, e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(kind domain.EventKind) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func profile(id string, mu float64) domain.Profile {
	return domain.Profile{ID: id, Name: id, Rating: domain.Rating{Mu: mu}}
}

func idSeq(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func cfg2x2() domain.QueueConfig {
	c := domain.DefaultQueueConfig("q")
	c.GuildID = "g"
	c.TeamCount = 2
	c.TeamSize = 2
	c.MaxNoShows = 1
	c.ProviderAttempts = 3
	c.ChannelTimeout = 5 * time.Second
	c.LeaverVerification = 0
	return c
}

func proposal2x2(skills ...float64) domain.MatchProposal {
	p := domain.MatchProposal{QueueID: "q"}
	for t := 0; t < 2; t++ {
		var team domain.Team
		for i := 0; i < 2; i++ {
			n := t*2 + i
			m := domain.Member{PlayerID: fmt.Sprintf("p%d", n), Name: fmt.Sprintf("p%d", n), Skill: skills[n], Rating: domain.Rating{Mu: skills[n]}}
			team.Players = append(team.Players, domain.Assignment{Member: m, Role: domain.RoleAny})
			p.Entries = append(p.Entries, domain.NewSolo(m))
		}
		p.Teams = append(p.Teams, team)
	}
	return p
}
