package domain

// ChannelHandles son los recursos creados por el proveedor para un lobby.
// TeamVoice[i] vacío = el canal del equipo i todavía no existe.
type ChannelHandles struct {
	GuildID    string
	CategoryID string
	TextID     string
	TeamVoice  []string
}

// Merge completa los huecos con lo que trae o (sin pisar lo ya creado).
func (h ChannelHandles) Merge(o ChannelHandles) ChannelHandles {
	if h.GuildID == "" {
		h.GuildID = o.GuildID
	}
	if h.CategoryID == "" {
		h.CategoryID = o.CategoryID
	}
	if h.TextID == "" {
		h.TextID = o.TextID
	}
	if len(o.TeamVoice) > len(h.TeamVoice) {
		grown := make([]string, len(o.TeamVoice))
		copy(grown, h.TeamVoice)
		h.TeamVoice = grown
	} else {
		h.TeamVoice = append([]string(nil), h.TeamVoice...)
	}
	for i, id := range o.TeamVoice {
		if h.TeamVoice[i] == "" {
			h.TeamVoice[i] = id
		}
	}
	return h
}

func (h ChannelHandles) Complete(teams int) bool {
	if h.CategoryID == "" || len(h.TeamVoice) < teams {
		return false
	}
	for i := 0; i < teams; i++ {
		if h.TeamVoice[i] == "" {
			return false
		}
	}
	return true
}

func (h ChannelHandles) Empty() bool {
	if h.CategoryID != "" || h.TextID != "" {
		return false
	}
	for _, id := range h.TeamVoice {
		if id != "" {
			return false
		}
	}
	return true
}
