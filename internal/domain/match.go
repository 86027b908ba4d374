package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Assignment struct {
	Member Member
	Role   Role
}

type Team struct {
	Players []Assignment
	Average float64
}

func (t Team) PlayerIDs() []string {
	out := make([]string, len(t.Players))
	for i, a := range t.Players {
		out[i] = a.Member.PlayerID
	}
	return out
}

// MatchProposal es la salida del motor de formación. Efímera.
type MatchProposal struct {
	QueueID string
	Region  string
	Teams   []Team
	Score   float64
	Entries []QueueEntry
	At      time.Time
}

func (p MatchProposal) PlayerIDs() []string {
	var out []string
	for _, t := range p.Teams {
		out = append(out, t.PlayerIDs()...)
	}
	return out
}

func (p MatchProposal) EntryIDs() []string {
	out := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		out[i] = e.ID
	}
	return out
}

type OutcomeKind string

const (
	OutcomeWin    OutcomeKind = "win"
	OutcomeDraw   OutcomeKind = "draw"
	OutcomeCancel OutcomeKind = "cancel"
)

// Outcome: Winner es el índice del equipo ganador cuando Kind == win.
type Outcome struct {
	Kind   OutcomeKind
	Winner int
}

func Win(team int) Outcome { return Outcome{Kind: OutcomeWin, Winner: team} }
func Draw() Outcome        { return Outcome{Kind: OutcomeDraw} }

// Placements devuelve el puesto de cada equipo (0 = mejor). Empate = mismo puesto.
func (o Outcome) Placements(teams int) []int {
	out := make([]int, teams)
	if o.Kind != OutcomeWin {
		return out
	}
	for i := range out {
		if i != o.Winner {
			out[i] = 1
		}
	}
	return out
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeWin:
		return "team" + strconv.Itoa(o.Winner+1)
	case OutcomeDraw:
		return "draw"
	default:
		return "cancel"
	}
}

// MatchRecord es lo que se archiva al cerrar un lobby.
type MatchRecord struct {
	LobbyID   string
	QueueID   string
	Map       string
	Outcome   Outcome
	Teams     [][]string
	Leavers   []string
	StartedAt time.Time
	EndedAt   time.Time
}

// PlayerResult es el resultado individual que se suma a las stats.
type PlayerResult string

const (
	ResultWin  PlayerResult = "win"
	ResultLoss PlayerResult = "loss"
	ResultDraw PlayerResult = "draw"
)

// ResultFor traduce el outcome al resultado del equipo team.
func (o Outcome) ResultFor(team int) PlayerResult {
	switch {
	case o.Kind == OutcomeDraw:
		return ResultDraw
	case o.Kind == OutcomeWin && o.Winner == team:
		return ResultWin
	default:
		return ResultLoss
	}
}

// ParseOutcome acepta "team1".."teamN", "draw" y "cancel".
func ParseOutcome(s string, teams int) (Outcome, error) {
	switch s {
	case "draw":
		return Draw(), nil
	case "cancel":
		return Outcome{Kind: OutcomeCancel}, nil
	}
	if rest, ok := strings.CutPrefix(s, "team"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 1 && n <= teams {
			return Win(n - 1), nil
		}
	}
	return Outcome{}, fmt.Errorf("%w: unknown outcome %q", ErrValidation, s)
}

// MatchReport es un resultado que llega desde afuera (HTTP -> cmd/reporter).
// Outcome viene crudo: "team1".."teamN", "draw" o "cancel".
type MatchReport struct {
	ID         int64
	LobbyID    string
	Outcome    string
	Reporter   string
	ReceivedAt time.Time
}

// ChatLine es un mensaje escrito en el canal de texto de un lobby.
type ChatLine struct {
	LobbyID  string    `json:"lobby_id"`
	QueueID  string    `json:"queue_id"`
	AuthorID string    `json:"author_id"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}
