package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// configRow es la forma en que la config vive en la columna JSONB.
// Las duraciones van en segundos para que se puedan editar a mano.
type configRow struct {
	TeamCount         int              `json:"team_count"`
	TeamSize          int              `json:"team_size"`
	RoleCombos        []map[string]int `json:"role_combos,omitempty"`
	RegionMode        string           `json:"region_mode"`
	MapPool           []string         `json:"map_pool,omitempty"`
	VoteSize          int              `json:"vote_size"`
	VoteRounds        []int            `json:"vote_rounds,omitempty"`
	VoteTimeSeconds   int              `json:"vote_time_seconds"`
	PreventRecentMaps int              `json:"prevent_recent_maps"`
	Capacity          int              `json:"capacity"`
	MinWaitSeconds    int              `json:"min_wait_seconds"`
	BalanceThreshold  float64          `json:"balance_threshold"`
	MaxSearchNodes    int              `json:"max_search_nodes"`
	ChannelTimeoutSec int              `json:"channel_timeout_seconds"`
	ProviderAttempts  int              `json:"provider_attempts"`
	HostMode          string           `json:"host_mode"`
	MaxNoShows        int              `json:"max_no_shows"`
	ResultQuorum      int              `json:"result_quorum"`
	LeaverVerifySec   int              `json:"leaver_verification_seconds"`
	LogChats          bool             `json:"log_chats"`
	ResultsChannel    string           `json:"results_channel,omitempty"`
	CategoryID        string           `json:"category_id,omitempty"`
	LobbyVoiceID      string           `json:"lobby_voice_id,omitempty"`
	AuditChannel      string           `json:"audit_channel,omitempty"`
}

func encodeConfig(c domain.QueueConfig) ([]byte, error) {
	row := configRow{
		TeamCount:         c.TeamCount,
		TeamSize:          c.TeamSize,
		RegionMode:        string(c.RegionMode),
		MapPool:           c.MapPool,
		VoteSize:          c.VoteSize,
		VoteRounds:        c.VoteRounds,
		VoteTimeSeconds:   int(c.VoteTime / time.Second),
		PreventRecentMaps: c.PreventRecentMaps,
		Capacity:          c.Capacity,
		MinWaitSeconds:    int(c.MinWait / time.Second),
		BalanceThreshold:  c.BalanceThreshold,
		MaxSearchNodes:    c.MaxSearchNodes,
		ChannelTimeoutSec: int(c.ChannelTimeout / time.Second),
		ProviderAttempts:  c.ProviderAttempts,
		HostMode:          string(c.HostMode),
		MaxNoShows:        c.MaxNoShows,
		ResultQuorum:      c.ResultQuorum,
		LeaverVerifySec:   int(c.LeaverVerification / time.Second),
		LogChats:          c.LogChats,
		ResultsChannel:    c.ResultsChannel,
		CategoryID:        c.CategoryID,
		LobbyVoiceID:      c.LobbyVoiceID,
		AuditChannel:      c.AuditChannel,
	}
	for _, combo := range c.RoleCombos {
		m := make(map[string]int, len(combo))
		for r, n := range combo {
			m[string(r)] = n
		}
		row.RoleCombos = append(row.RoleCombos, m)
	}
	return json.Marshal(row)
}

func decodeConfig(queueID, guildID string, raw []byte) (domain.QueueConfig, error) {
	var row configRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.QueueConfig{}, err
	}
	c := domain.QueueConfig{
		ID:                 queueID,
		GuildID:            guildID,
		TeamCount:          row.TeamCount,
		TeamSize:           row.TeamSize,
		RegionMode:         domain.RegionMode(row.RegionMode),
		MapPool:            row.MapPool,
		VoteSize:           row.VoteSize,
		VoteRounds:         row.VoteRounds,
		VoteTime:           time.Duration(row.VoteTimeSeconds) * time.Second,
		PreventRecentMaps:  row.PreventRecentMaps,
		Capacity:           row.Capacity,
		MinWait:            time.Duration(row.MinWaitSeconds) * time.Second,
		BalanceThreshold:   row.BalanceThreshold,
		MaxSearchNodes:     row.MaxSearchNodes,
		ChannelTimeout:     time.Duration(row.ChannelTimeoutSec) * time.Second,
		ProviderAttempts:   row.ProviderAttempts,
		HostMode:           domain.HostMode(row.HostMode),
		MaxNoShows:         row.MaxNoShows,
		ResultQuorum:       row.ResultQuorum,
		LeaverVerification: time.Duration(row.LeaverVerifySec) * time.Second,
		LogChats:           row.LogChats,
		ResultsChannel:     row.ResultsChannel,
		CategoryID:         row.CategoryID,
		LobbyVoiceID:       row.LobbyVoiceID,
		AuditChannel:       row.AuditChannel,
	}
	for _, m := range row.RoleCombos {
		combo := domain.RoleCombo{}
		for r, n := range m {
			combo[domain.Role(r)] = n
		}
		c.RoleCombos = append(c.RoleCombos, combo)
	}
	if c.RegionMode == "" {
		c.RegionMode = domain.RegionOff
	}
	if c.HostMode == "" {
		c.HostMode = domain.HostOverall
	}
	return c, nil
}

type QueueConfigRepo struct{ db *sql.DB }

func NewQueueConfigRepo(db *sql.DB) *QueueConfigRepo { return &QueueConfigRepo{db: db} }

func (r *QueueConfigRepo) Get(ctx context.Context, queueID string) (domain.QueueConfig, error) {
	var (
		guildID string
		raw     []byte
	)
	err := r.db.QueryRowContext(ctx, `
SELECT guild_id, config FROM queue_configs WHERE queue_id = $1
`, queueID).Scan(&guildID, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QueueConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.QueueConfig{}, err
	}
	return decodeConfig(queueID, guildID, raw)
}

func (r *QueueConfigRepo) Upsert(ctx context.Context, c domain.QueueConfig) error {
	raw, err := encodeConfig(c)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO queue_configs (queue_id, guild_id, config)
VALUES ($1,$2,$3::jsonb)
ON CONFLICT (queue_id) DO UPDATE SET
  guild_id   = EXCLUDED.guild_id,
  config     = EXCLUDED.config,
  updated_at = now()
`, c.ID, c.GuildID, string(raw))
	return err
}

func (r *QueueConfigRepo) List(ctx context.Context) ([]domain.QueueConfig, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT queue_id, guild_id, config FROM queue_configs ORDER BY queue_id
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.QueueConfig
	for rows.Next() {
		var (
			id, guildID string
			raw         []byte
		)
		if err := rows.Scan(&id, &guildID, &raw); err != nil {
			return nil, err
		}
		c, err := decodeConfig(id, guildID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
