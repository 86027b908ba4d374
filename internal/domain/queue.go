package domain

import (
	"sort"
	"time"
)

type EntryKind int

const (
	SoloEntry EntryKind = iota
	GroupEntry
)

func (k EntryKind) String() string {
	if k == GroupEntry {
		return "group"
	}
	return "solo"
}

// QueueEntry es un jugador solo o un grupo; ocupa Slots() lugares de un equipo.
// Para Solo el ID es el del jugador, para Group el id del grupo.
type QueueEntry struct {
	ID       string
	Kind     EntryKind
	Members  []Member
	JoinedAt time.Time
}

func NewSolo(m Member) QueueEntry {
	return QueueEntry{ID: m.PlayerID, Kind: SoloEntry, Members: []Member{m}}
}

func NewGroup(id string, members []Member) QueueEntry {
	return QueueEntry{ID: id, Kind: GroupEntry, Members: members}
}

func (e QueueEntry) Slots() int { return len(e.Members) }

// RoleDecls devuelve las preferencias declaradas por cada miembro, en orden.
func (e QueueEntry) RoleDecls() [][]Role {
	out := make([][]Role, len(e.Members))
	for i, m := range e.Members {
		out[i] = m.Roles
	}
	return out
}

func (e QueueEntry) Has(playerID string) bool {
	for _, m := range e.Members {
		if m.PlayerID == playerID {
			return true
		}
	}
	return false
}

func (e QueueEntry) PlayerIDs() []string {
	out := make([]string, len(e.Members))
	for i, m := range e.Members {
		out[i] = m.PlayerID
	}
	return out
}

// Region devuelve la región común del grupo, o "" si los miembros no coinciden.
func (e QueueEntry) Region() string {
	if len(e.Members) == 0 {
		return ""
	}
	r := e.Members[0].Region
	for _, m := range e.Members[1:] {
		if m.Region != r {
			return ""
		}
	}
	return r
}

func (e QueueEntry) SkillSum() float64 {
	var s float64
	for _, m := range e.Members {
		s += m.Skill
	}
	return s
}

func (e QueueEntry) BannedAt(t time.Time) bool {
	for _, m := range e.Members {
		if m.BannedAt(t) {
			return true
		}
	}
	return false
}

// RoleCombo es un multiconjunto de roles para un equipo, ej {tank:1, dps:2, support:2}.
type RoleCombo map[Role]int

func (c RoleCombo) Size() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// Slots expande la combinación a una lista ordenada de roles.
func (c RoleCombo) Slots() []Role {
	keys := make([]string, 0, len(c))
	for r := range c {
		keys = append(keys, string(r))
	}
	sort.Strings(keys)
	out := make([]Role, 0, c.Size())
	for _, k := range keys {
		for i := 0; i < c[Role(k)]; i++ {
			out = append(out, Role(k))
		}
	}
	return out
}

type RegionMode string

const (
	RegionOff        RegionMode = "off"
	RegionMatch      RegionMode = "match"
	RegionTeam       RegionMode = "team"
	RegionBestEffort RegionMode = "best_effort"
)

type HostMode string

const (
	HostOverall HostMode = "overall"
	HostPerTeam HostMode = "per_team"
)

// QueueConfig es la configuración de una cola (una por guild/cola).
type QueueConfig struct {
	ID        string
	GuildID   string
	TeamCount int
	TeamSize  int
	// vacío = cualquier combinación de roles
	RoleCombos []RoleCombo
	RegionMode RegionMode

	MapPool           []string
	VoteSize          int
	VoteRounds        []int
	VoteTime          time.Duration
	PreventRecentMaps int

	Capacity         int
	MinWait          time.Duration
	BalanceThreshold float64
	MaxSearchNodes   int

	ChannelTimeout   time.Duration
	ProviderAttempts int
	HostMode         HostMode
	MaxNoShows       int
	ResultQuorum     int
	// cuánto tiene un jugador marcado como leaver para decir "sigo acá";
	// 0 = la marca se aplica en el acto
	LeaverVerification time.Duration
	LogChats           bool

	CategoryID string
	// LobbyVoiceID es el canal de voz al que vuelven todos al terminar.
	LobbyVoiceID   string
	AuditChannel   string
	ResultsChannel string
}

func (c QueueConfig) PlayersPerMatch() int { return c.TeamCount * c.TeamSize }

// Quorum de votos de resultado; por defecto mayoría simple del match.
func (c QueueConfig) ResultVotesNeeded() int {
	if c.ResultQuorum > 0 {
		return c.ResultQuorum
	}
	return c.PlayersPerMatch()/2 + 1
}

// DefaultQueueConfig: 2 equipos de 5, sin roles ni regiones.
func DefaultQueueConfig(id string) QueueConfig {
	return QueueConfig{
		ID:               id,
		GuildID:          id,
		TeamCount:        2,
		TeamSize:         5,
		RegionMode:       RegionOff,
		VoteSize:         3,
		VoteTime:         2 * time.Minute,
		MaxSearchNodes:   50000,
		ChannelTimeout:   45 * time.Second,
		ProviderAttempts: 3,
		HostMode:         HostOverall,
		MaxNoShows:       1,

		LeaverVerification: 30 * time.Second,
		LogChats:           true,
	}
}
