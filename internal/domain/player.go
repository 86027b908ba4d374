package domain

import "time"

type Role string

// RoleAny ocupa cualquier slot de una combinación.
const RoleAny Role = "any"

// Rating es el par (mu, sigma) que persiste el store. Con Elo sigma queda en 0.
type Rating struct {
	Mu    float64
	Sigma float64
}

// Profile es la vista autoritativa de un jugador (vive en el store).
// Bans trae sólo los bans vigentes al momento de la lectura.
type Profile struct {
	ID        string
	Name      string
	Rating    Rating
	Region    string
	Roles     []Role
	Bans      []Ban
	Strikes   int
	Wins      int
	Losses    int
	Draws     int
	UpdatedAt time.Time
}

// BanFor devuelve el ban que más dura entre los globales y los de la cola.
func (p Profile) BanFor(queueID string, t time.Time) (Ban, bool) {
	var best Ban
	found := false
	for _, b := range p.Bans {
		if !b.Global() && b.QueueID != queueID {
			continue
		}
		if !t.Before(b.Until) {
			continue
		}
		if !found || b.Until.After(best.Until) {
			best, found = b, true
		}
	}
	return best, found
}

// MemberFor arma la foto que entra a la cola. skill viene de la función de rating.
func (p Profile) MemberFor(queueID string, skill float64, t time.Time) Member {
	m := Member{
		PlayerID: p.ID,
		Name:     p.Name,
		Skill:    skill,
		Rating:   p.Rating,
		Region:   p.Region,
		Roles:    append([]Role(nil), p.Roles...),
	}
	if b, ok := p.BanFor(queueID, t); ok {
		until := b.Until
		m.BannedUntil = &until
	}
	return m
}

func (p Profile) Games() int { return p.Wins + p.Losses + p.Draws }

// Member es la foto transitoria de un jugador dentro de una entrada de cola.
type Member struct {
	PlayerID    string
	Name        string
	Skill       float64
	Rating      Rating
	Region      string
	Roles       []Role
	BannedUntil *time.Time
}

func (m Member) BannedAt(t time.Time) bool {
	return m.BannedUntil != nil && t.Before(*m.BannedUntil)
}

// Ban: QueueID vacío significa ban global.
type Ban struct {
	PlayerID  string
	QueueID   string
	Until     time.Time
	Reason    string
	IssuedBy  string
	CreatedAt time.Time
}

func (b Ban) Global() bool { return b.QueueID == "" }

// LeaverRecord es una fila del historial de leavers/no-shows.
type LeaverRecord struct {
	PlayerID string
	LobbyID  string
	Kind     LeaverKind
	At       time.Time
}

type LeaverKind string

const (
	KindLeaver LeaverKind = "leaver"
	KindNoShow LeaverKind = "no_show"
)
