package lobby

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

type State int

const (
	Forming State = iota
	Voting
	InProgress
	Resolving
	Completed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Forming:
		return "forming"
	case Voting:
		return "voting"
	case InProgress:
		return "in_progress"
	case Resolving:
		return "resolving"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool { return s == Completed || s == Cancelled }

var transitions = map[State][]State{
	Forming:    {Voting, InProgress, Cancelled},
	Voting:     {InProgress, Cancelled},
	InProgress: {Resolving, Cancelled},
	Resolving:  {Completed, Cancelled},
}

func canMove(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type ChannelStatus string

const (
	ChannelPending ChannelStatus = "pending"
	ChannelReady   ChannelStatus = "ready"
	ChannelFailed  ChannelStatus = "failed"
)

// SystemReporter marca leavers detectados automáticamente (desconexión de voz).
const SystemReporter = "system"

// Lobby es el dueño de un match formado. Cada transición se serializa con mu;
// el I/O (canales, store) lo hace el servicio afuera del lock.
type Lobby struct {
	mu sync.Mutex

	id      string
	queueID string
	cfg     domain.QueueConfig
	teams   []domain.Team
	state   State

	hosts      []string
	volunteers map[string]bool

	tally        *Tally
	mapName      string
	voteDeadline time.Time

	leavers     map[string]domain.LeaverKind
	disputable  map[string]PendingLeaver
	resultVotes map[string]domain.Outcome

	channels      domain.ChannelHandles
	channelStatus []ChannelStatus

	outcome      *domain.Outcome
	cancelReason string
	alerts       []string

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
	now       func() time.Time
}

// New arma el lobby en Forming. recent son los últimos mapas jugados en la cola.
func New(id string, p domain.MatchProposal, cfg domain.QueueConfig, recent []string, now func() time.Time) *Lobby {
	if now == nil {
		now = time.Now
	}
	l := &Lobby{
		id:            id,
		queueID:       cfg.ID,
		cfg:           cfg,
		teams:         p.Teams,
		state:         Forming,
		volunteers:    map[string]bool{},
		leavers:       map[string]domain.LeaverKind{},
		disputable:    map[string]PendingLeaver{},
		resultVotes:   map[string]domain.Outcome{},
		channelStatus: make([]ChannelStatus, len(p.Teams)),
		createdAt:     now(),
		now:           now,
	}
	for i := range l.channelStatus {
		l.channelStatus[i] = ChannelPending
	}

	if cfg.PreventRecentMaps < len(recent) {
		recent = recent[:cfg.PreventRecentMaps]
	}
	candidates := PickCandidates(id, cfg.MapPool, cfg.VoteSize, recent)
	l.tally = NewTally(id, candidates, p.PlayerIDs(), cfg.VoteRounds)
	l.hosts = l.pickHosts()
	return l
}

func (l *Lobby) ID() string      { return l.id }
func (l *Lobby) QueueID() string { return l.queueID }

func (l *Lobby) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lobby) Teams() []domain.Team {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.Team(nil), l.teams...)
}

func (l *Lobby) Config() domain.QueueConfig { return l.cfg }

func (l *Lobby) moveLocked(to State) error {
	if !canMove(l.state, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, l.state, to)
	}
	l.state = to
	switch to {
	case Voting:
		l.voteDeadline = l.now().Add(l.cfg.VoteTime)
	case InProgress:
		l.startedAt = l.now()
	case Completed, Cancelled:
		l.endedAt = l.now()
	}
	return nil
}

// TeamOf devuelve el índice del equipo del jugador, o -1.
func (l *Lobby) TeamOf(player string) int {
	for i, t := range l.teams {
		for _, a := range t.Players {
			if a.Member.PlayerID == player {
				return i
			}
		}
	}
	return -1
}

func (l *Lobby) Has(player string) bool { return l.TeamOf(player) >= 0 }

func (l *Lobby) PlayerIDs() []string {
	var out []string
	for _, t := range l.teams {
		out = append(out, t.PlayerIDs()...)
	}
	return out
}

// ---------- canales ----------

// SetChannels incorpora lo creado por el proveedor y recalcula el estado por equipo.
func (l *Lobby) SetChannels(h domain.ChannelHandles) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.channels = l.channels.Merge(h)
	for i := range l.channelStatus {
		if i < len(l.channels.TeamVoice) && l.channels.TeamVoice[i] != "" {
			l.channelStatus[i] = ChannelReady
		}
	}
}

func (l *Lobby) MarkChannelsFailed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, st := range l.channelStatus {
		if st != ChannelReady {
			l.channelStatus[i] = ChannelFailed
		}
	}
}

func (l *Lobby) Channels() domain.ChannelHandles {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channels.Merge(domain.ChannelHandles{})
}

// ChannelsReady pasa de Forming a Voting, o directo a InProgress si no hay
// nada que votar.
func (l *Lobby) ChannelsReady() (State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Forming {
		return l.state, fmt.Errorf("%w: channels ready in %s", domain.ErrInvalidTransition, l.state)
	}
	if !l.channels.Complete(len(l.teams)) {
		return l.state, fmt.Errorf("%w: channels incomplete", domain.ErrInvalidTransition)
	}
	if len(l.tally.Candidates()) > 1 {
		return Voting, l.moveLocked(Voting)
	}
	l.mapName, _ = l.tally.Close()
	return InProgress, l.moveLocked(InProgress)
}

// ---------- votación de mapa ----------

func (l *Lobby) Vote(player, mapName string) (allVoted bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Voting {
		return false, domain.ErrVotingClosed
	}
	if _, gone := l.leavers[player]; gone {
		return false, domain.ErrNotInLobby
	}
	if err := l.tally.Register(player, mapName); err != nil {
		return false, err
	}
	return l.tally.AllVoted(), nil
}

// CloseVote cierra la ronda. Con rondas pendientes sigue en Voting y
// reinicia el deadline; en la final elige mapa y pasa a InProgress.
func (l *Lobby) CloseVote() (mapName string, final bool, err error) {
	return l.CloseVoteRound(-1)
}

// CloseVoteRound cierra sólo si la ronda abierta sigue siendo round (un
// deadline viejo no cierra la ronda siguiente). round < 0 cierra la actual.
func (l *Lobby) CloseVoteRound(round int) (mapName string, final bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Voting {
		return "", false, domain.ErrVotingClosed
	}
	if round >= 0 && l.tally.Round() != round {
		return "", false, domain.ErrVotingClosed
	}
	winner, final := l.tally.Close()
	if !final {
		l.voteDeadline = l.now().Add(l.cfg.VoteTime)
		return "", false, nil
	}
	l.mapName = winner
	return winner, true, l.moveLocked(InProgress)
}

func (l *Lobby) VoteRound() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tally.Round()
}

// NonVoters: en Voting los que no votaron mapa; en InProgress los que no
// votaron resultado. Los leavers no cuentan.
func (l *Lobby) NonVoters() ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case Voting:
		return l.tally.Pending(), nil
	case InProgress:
		var out []string
		for _, t := range l.teams {
			for _, id := range t.PlayerIDs() {
				if _, gone := l.leavers[id]; gone {
					continue
				}
				if _, voted := l.resultVotes[id]; !voted {
					out = append(out, id)
				}
			}
		}
		sort.Strings(out)
		return out, nil
	}
	return nil, fmt.Errorf("%w: lobby is %s", domain.ErrInvalidTransition, l.state)
}

func (l *Lobby) VoteDeadline() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.voteDeadline
}

func (l *Lobby) Map() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mapName
}

// ---------- hosts ----------

// pickHosts: voluntarios primero, si no el de mayor skill (empate por id).
func (l *Lobby) pickHosts() []string {
	best := func(players []domain.Assignment) string {
		ps := append([]domain.Assignment(nil), players...)
		sort.SliceStable(ps, func(i, j int) bool {
			vi, vj := l.volunteers[ps[i].Member.PlayerID], l.volunteers[ps[j].Member.PlayerID]
			if vi != vj {
				return vi
			}
			if ps[i].Member.Skill != ps[j].Member.Skill {
				return ps[i].Member.Skill > ps[j].Member.Skill
			}
			return ps[i].Member.PlayerID < ps[j].Member.PlayerID
		})
		for _, a := range ps {
			if _, gone := l.leavers[a.Member.PlayerID]; !gone {
				return a.Member.PlayerID
			}
		}
		return ""
	}

	if l.cfg.HostMode == domain.HostPerTeam {
		out := make([]string, len(l.teams))
		for i, t := range l.teams {
			out[i] = best(t.Players)
		}
		return out
	}
	var all []domain.Assignment
	for _, t := range l.teams {
		all = append(all, t.Players...)
	}
	return []string{best(all)}
}

func (l *Lobby) Hosts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.hosts...)
}

func (l *Lobby) IsHost(player string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return contains(l.hosts, player)
}

// VolunteerHost anota al jugador como voluntario y recalcula los hosts.
func (l *Lobby) VolunteerHost(player string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Terminal() || l.state == Resolving {
		return fmt.Errorf("%w: lobby is %s", domain.ErrInvalidTransition, l.state)
	}
	if !l.Has(player) {
		return domain.ErrNotInLobby
	}
	if _, gone := l.leavers[player]; gone {
		return domain.ErrNotInLobby
	}
	for p := range l.volunteers {
		if l.TeamOf(p) == l.TeamOf(player) || l.cfg.HostMode != domain.HostPerTeam {
			delete(l.volunteers, p)
		}
	}
	l.volunteers[player] = true
	l.hosts = l.pickHosts()
	return nil
}

// ---------- leavers ----------

// MarkLeaver registra un leaver/no-show. Lo pueden marcar los hosts, un admin
// o el sistema. tooMany indica que el lobby debería cancelarse (demasiados
// no-shows antes de arrancar).
func (l *Lobby) MarkLeaver(reporter, player string, kind domain.LeaverKind, admin bool) (tooMany bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.canMarkLocked(reporter, player, admin); err != nil {
		return false, err
	}
	delete(l.disputable, player)
	return l.markLocked(player, kind), nil
}

func (l *Lobby) canMarkLocked(reporter, player string, admin bool) error {
	if l.state.Terminal() || l.state == Resolving {
		return fmt.Errorf("%w: lobby is %s", domain.ErrInvalidTransition, l.state)
	}
	if !admin && reporter != SystemReporter && !contains(l.hosts, reporter) {
		return domain.ErrNotHost
	}
	if !l.Has(player) {
		return domain.ErrNotInLobby
	}
	return nil
}

func (l *Lobby) markLocked(player string, kind domain.LeaverKind) (tooMany bool) {
	if kind == "" {
		kind = domain.KindLeaver
		if l.state != InProgress {
			kind = domain.KindNoShow
		}
	}
	l.leavers[player] = kind
	l.tally.Revoke(player)
	delete(l.resultVotes, player)
	if contains(l.hosts, player) {
		l.hosts = l.pickHosts()
	}

	if l.state == InProgress {
		return false
	}
	return len(l.leavers) > l.cfg.MaxNoShows
}

// PendingLeaver es una marca que el jugador todavía puede disputar.
type PendingLeaver struct {
	Reporter string
	Deadline time.Time
}

// ProposeLeaver deja la marca en disputa hasta deadline; la confirma
// ConfirmLeaver o la levanta el propio jugador con DisputeLeaver.
func (l *Lobby) ProposeLeaver(reporter, player string, admin bool, deadline time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.canMarkLocked(reporter, player, admin); err != nil {
		return err
	}
	if _, done := l.leavers[player]; done {
		return domain.ErrAlreadyMarked
	}
	if _, pending := l.disputable[player]; pending {
		return domain.ErrAlreadyMarked
	}
	l.disputable[player] = PendingLeaver{Reporter: reporter, Deadline: deadline}
	return nil
}

func (l *Lobby) DisputeLeaver(player string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.disputable[player]; !ok {
		return domain.ErrNoPendingMark
	}
	delete(l.disputable, player)
	return nil
}

// ConfirmLeaver aplica una marca pendiente. ok=false si ya no había (la
// disputaron o el lobby terminó).
func (l *Lobby) ConfirmLeaver(player string) (tooMany, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, pending := l.disputable[player]; !pending {
		return false, false
	}
	delete(l.disputable, player)
	if l.state.Terminal() || l.state == Resolving {
		return false, false
	}
	return l.markLocked(player, ""), true
}

func (l *Lobby) PendingLeavers() map[string]PendingLeaver {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]PendingLeaver, len(l.disputable))
	for k, v := range l.disputable {
		out[k] = v
	}
	return out
}

func (l *Lobby) Leavers() map[string]domain.LeaverKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]domain.LeaverKind, len(l.leavers))
	for k, v := range l.leavers {
		out[k] = v
	}
	return out
}

// ---------- resultado ----------

// SubmitResultVote devuelve el outcome cuando alcanza el quórum configurado.
func (l *Lobby) SubmitResultVote(player string, o domain.Outcome) (*domain.Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != InProgress {
		return nil, fmt.Errorf("%w: lobby is %s", domain.ErrInvalidTransition, l.state)
	}
	if !l.Has(player) {
		return nil, domain.ErrNotInLobby
	}
	if _, gone := l.leavers[player]; gone {
		return nil, domain.ErrNotInLobby
	}
	if o.Kind == domain.OutcomeWin && (o.Winner < 0 || o.Winner >= len(l.teams)) {
		return nil, fmt.Errorf("%w: no such team", domain.ErrValidation)
	}
	l.resultVotes[player] = o

	n := 0
	for _, v := range l.resultVotes {
		if v == o {
			n++
		}
	}
	if n >= l.cfg.ResultVotesNeeded() {
		out := o
		return &out, nil
	}
	return nil, nil
}

func (l *Lobby) ResultVotes() map[string]domain.Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]domain.Outcome, len(l.resultVotes))
	for k, v := range l.resultVotes {
		out[k] = v
	}
	return out
}

// Resolution es lo que necesita el servicio para aplicar ratings y strikes.
type Resolution struct {
	LobbyID string
	Outcome domain.Outcome
	// Participants[i] son los jugadores del equipo i que cuentan para rating
	Participants [][]domain.Member
	Leavers      map[string]domain.LeaverKind
}

// BeginResolve pasa de InProgress a Resolving con el resultado reportado.
func (l *Lobby) BeginResolve(o domain.Outcome) (Resolution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if o.Kind == domain.OutcomeCancel {
		return Resolution{}, fmt.Errorf("%w: use cancel", domain.ErrValidation)
	}
	if o.Kind == domain.OutcomeWin && (o.Winner < 0 || o.Winner >= len(l.teams)) {
		return Resolution{}, fmt.Errorf("%w: no such team", domain.ErrValidation)
	}
	if err := l.moveLocked(Resolving); err != nil {
		return Resolution{}, err
	}
	l.outcome = &o

	res := Resolution{LobbyID: l.id, Outcome: o, Leavers: map[string]domain.LeaverKind{}}
	for k, v := range l.leavers {
		res.Leavers[k] = v
	}
	for _, t := range l.teams {
		var ms []domain.Member
		for _, a := range t.Players {
			if _, gone := l.leavers[a.Member.PlayerID]; !gone {
				ms = append(ms, a.Member)
			}
		}
		res.Participants = append(res.Participants, ms)
	}
	return res, nil
}

func (l *Lobby) Complete() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(Completed)
}

// Cancel vale desde cualquier estado no terminal.
func (l *Lobby) Cancel(reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.moveLocked(Cancelled); err != nil {
		return err
	}
	l.cancelReason = reason
	c := domain.Outcome{Kind: domain.OutcomeCancel}
	l.outcome = &c
	return nil
}

// AddAlert deja registro visible para admins (lobby degradado).
func (l *Lobby) AddAlert(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.alerts = append(l.alerts, msg)
}

// View es una copia para render/persistencia.
type View struct {
	ID            string
	QueueID       string
	State         State
	Teams         []domain.Team
	Hosts         []string
	Map           string
	Candidates    []string
	VoteRound     int
	VoteCounts    map[string]int
	VoteDeadline  time.Time
	Leavers       map[string]domain.LeaverKind
	Channels      domain.ChannelHandles
	ChannelStatus []ChannelStatus
	Outcome       *domain.Outcome
	CancelReason  string
	Alerts        []string
	CreatedAt     time.Time
	StartedAt     time.Time
	EndedAt       time.Time
}

func (l *Lobby) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := View{
		ID:            l.id,
		QueueID:       l.queueID,
		State:         l.state,
		Teams:         append([]domain.Team(nil), l.teams...),
		Hosts:         append([]string(nil), l.hosts...),
		Map:           l.mapName,
		Candidates:    l.tally.Candidates(),
		VoteRound:     l.tally.Round(),
		VoteCounts:    l.tally.Counts(),
		VoteDeadline:  l.voteDeadline,
		Leavers:       make(map[string]domain.LeaverKind, len(l.leavers)),
		Channels:      l.channels.Merge(domain.ChannelHandles{}),
		ChannelStatus: append([]ChannelStatus(nil), l.channelStatus...),
		CancelReason:  l.cancelReason,
		Alerts:        append([]string(nil), l.alerts...),
		CreatedAt:     l.createdAt,
		StartedAt:     l.startedAt,
		EndedAt:       l.endedAt,
	}
	for k, kind := range l.leavers {
		v.Leavers[k] = kind
	}
	if l.outcome != nil {
		o := *l.outcome
		v.Outcome = &o
	}
	return v
}

// Record arma el registro histórico; sólo tiene sentido en estado terminal.
func (l *Lobby) Record() domain.MatchRecord {
	v := l.View()
	rec := domain.MatchRecord{
		LobbyID:   v.ID,
		QueueID:   v.QueueID,
		Map:       v.Map,
		StartedAt: v.StartedAt,
		EndedAt:   v.EndedAt,
	}
	if v.Outcome != nil {
		rec.Outcome = *v.Outcome
	}
	for _, t := range v.Teams {
		rec.Teams = append(rec.Teams, t.PlayerIDs())
	}
	for p := range v.Leavers {
		rec.Leavers = append(rec.Leavers, p)
	}
	sort.Strings(rec.Leavers)
	return rec
}
