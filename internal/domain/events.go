package domain

import "time"

type EventKind string

const (
	EventQueueChanged   EventKind = "queue_changed"
	EventLobbyFormed    EventKind = "lobby_formed"
	EventVoteOpened     EventKind = "vote_opened"
	EventVoteRound      EventKind = "vote_round"
	EventMapChosen      EventKind = "map_chosen"
	EventHostChanged    EventKind = "host_changed"
	EventLeaverMarked   EventKind = "leaver_marked"
	EventLeaverPending  EventKind = "leaver_pending"
	EventLeaverDisputed EventKind = "leaver_disputed"
	EventVoteReminder   EventKind = "vote_reminder"
	EventMatchResolved  EventKind = "match_resolved"
	EventLobbyCancelled EventKind = "lobby_cancelled"
	EventLobbyAlert     EventKind = "lobby_alert"
	EventPlayerBanned   EventKind = "player_banned"
	EventEntryDropped   EventKind = "entry_dropped"
)

// Event es lo que el core emite hacia los sinks (Discord, Kafka). Los sinks
// no devuelven nada: si fallan, loguean.
type Event struct {
	Kind    EventKind          `json:"kind"`
	QueueID string             `json:"queue_id"`
	GuildID string             `json:"guild_id,omitempty"`
	LobbyID string             `json:"lobby_id,omitempty"`
	At      time.Time          `json:"at"`
	Players []string           `json:"players,omitempty"`
	Teams   [][]string         `json:"teams,omitempty"`
	Hosts   []string           `json:"hosts,omitempty"`
	Maps    []string           `json:"maps,omitempty"`
	Map     string             `json:"map,omitempty"`
	Outcome string             `json:"outcome,omitempty"`
	Deltas  map[string]float64 `json:"deltas,omitempty"`
	// ChannelID es el canal de texto del lobby cuando ya existe.
	ChannelID string `json:"channel_id,omitempty"`
	// ResultsChannel es el canal de texto configurado para resultados.
	ResultsChannel string `json:"results_channel,omitempty"`
	Message        string `json:"message,omitempty"`
}
