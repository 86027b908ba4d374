package discord

import "github.com/bwmarrin/discordgo"

func strOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionString, Name: name, Description: desc, Required: required}
}

func intOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionInteger, Name: name, Description: desc, Required: required}
}

func userOpt(name, desc string, required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionUser, Name: name, Description: desc, Required: required}
}

func sub(name, desc string, opts ...*discordgo.ApplicationCommandOption) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionSubCommand, Name: name, Description: desc, Options: opts}
}

var queueOpt = strOpt("cola", "Cola (por defecto la del servidor)", false)

var resultChoices = []*discordgo.ApplicationCommandOptionChoice{
	{Name: "Ganó Equipo 1", Value: "team1"},
	{Name: "Ganó Equipo 2", Value: "team2"},
	{Name: "Ganó Equipo 3", Value: "team3"},
	{Name: "Ganó Equipo 4", Value: "team4"},
	{Name: "Empate", Value: "draw"},
}

func resultOpt(withCancel bool) *discordgo.ApplicationCommandOption {
	o := strOpt("resultado", "Resultado del partido", true)
	o.Choices = resultChoices
	if withCancel {
		o.Choices = append(append([]*discordgo.ApplicationCommandOptionChoice(nil), resultChoices...),
			&discordgo.ApplicationCommandOptionChoice{Name: "Cancelar", Value: "cancel"})
	}
	return o
}

var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "queue",
		Description: "Cola de matchmaking",
		Options: []*discordgo.ApplicationCommandOption{
			sub("join", "Unirte a la cola (con tu grupo si sos líder)", queueOpt),
			sub("leave", "Salir de la cola", queueOpt),
			sub("status", "Ver la cola", queueOpt),
		},
	},
	{
		Name:        "party",
		Description: "Grupos para entrar juntos a la cola",
		Options: []*discordgo.ApplicationCommandOption{
			sub("invite", "Invitar a un jugador", userOpt("jugador", "A quién invitar", true)),
			sub("accept", "Aceptar la última invitación"),
			sub("decline", "Rechazar la última invitación"),
			sub("leave", "Salir del grupo"),
			sub("show", "Ver tu grupo"),
		},
	},
	{
		Name:        "lobby",
		Description: "Acciones dentro de tu lobby",
		Options: []*discordgo.ApplicationCommandOption{
			sub("vote", "Votar mapa", strOpt("mapa", "Mapa", true)),
			sub("host", "Ofrecerte como host"),
			sub("leaver", "Reportar un leaver / no-show (host)", userOpt("jugador", "Jugador", true)),
			sub("result", "Reportar el resultado (host)", resultOpt(true)),
			sub("resultvote", "Votar el resultado", resultOpt(false)),
			sub("cancel", "Cancelar el lobby (host)", strOpt("motivo", "Motivo", false)),
			sub("status", "Ver tu lobby"),
			sub("ping", "Avisar a los que faltan votar"),
		},
	},
	{
		Name:        "register",
		Description: "Registrarte: región y roles",
		Options: []*discordgo.ApplicationCommandOption{
			strOpt("region", "Tu región (ej: sa, na, eu)", false),
			strOpt("roles", "Roles separados por coma (ej: tank,support)", false),
		},
	},
	{
		Name:        "stats",
		Description: "Estadísticas de un jugador",
		Options:     []*discordgo.ApplicationCommandOption{userOpt("jugador", "Jugador (por defecto vos)", false)},
	},
	{
		Name:        "leaderboard",
		Description: "Top 10 por skill",
	},
	{
		Name:        "configure",
		Description: "Ver o cambiar la configuración de la cola (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			sub("show", "Ver configuración", queueOpt),
			sub("set", "Actualizar configuración (sólo lo que pases)",
				queueOpt,
				intOpt("team_count", "Cantidad de equipos", false),
				intOpt("team_size", "Jugadores por equipo", false),
				strOpt("roles", "Combinaciones de roles (ej: tank:1,dps:2;dps:3)", false),
				strOpt("region_mode", "off | match | team | best_effort", false),
				strOpt("maps", "Pool de mapas separados por coma", false),
				intOpt("vote_size", "Mapas a votar", false),
				intOpt("vote_time_seconds", "Duración de la votación", false),
				intOpt("prevent_recent_maps", "No ofrecer los últimos N mapas", false),
				intOpt("capacity", "Máximo de jugadores en cola (0 = sin tope)", false),
				intOpt("min_wait_seconds", "Espera mínima antes de relajar el balance", false),
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionNumber, Name: "balance_threshold", Description: "Diferencia máxima de skill entre equipos (0 = sin tope)"},
				intOpt("max_no_shows", "No-shows que cancelan el lobby", false),
				intOpt("result_quorum", "Votos para cerrar el resultado (0 = mayoría)", false),
				strOpt("host_mode", "overall | per_team", false),
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionChannel, Name: "category", Description: "Categoría de referencia para los lobbies"},
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionChannel, Name: "lobby_voice", Description: "Canal de voz de espera"},
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionChannel, Name: "audit_channel", Description: "Canal de auditoría"},
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionChannel, Name: "results_channel", Description: "Canal donde se publican los resultados"},
				intOpt("leaver_check_seconds", "Tiempo para disputar una marca de leaver (0 = inmediata)", false),
				&discordgo.ApplicationCommandOption{Type: discordgo.ApplicationCommandOptionBoolean, Name: "log_chats", Description: "Guardar el chat de los lobbies"},
			),
		},
	},
	{
		Name:        "admin",
		Description: "Moderación (admins)",
		Options: []*discordgo.ApplicationCommandOption{
			sub("ban", "Banear a un jugador",
				userOpt("jugador", "Jugador", true),
				intOpt("minutos", "Duración en minutos", true),
				strOpt("cola", "Cola (vacío = todas)", false),
				strOpt("motivo", "Motivo", false)),
			sub("unban", "Quitar un ban", userOpt("jugador", "Jugador", true), strOpt("cola", "Cola (vacío = global)", false)),
			sub("bans", "Listar bans vigentes"),
			sub("leavers", "Últimos leavers / no-shows"),
			sub("force", "Forzar el resultado de un lobby", strOpt("lobby", "ID del lobby", true), resultOpt(true)),
			sub("cancel", "Cancelar un lobby", strOpt("lobby", "ID del lobby", true), strOpt("motivo", "Motivo", false)),
			sub("retry", "Reintentar crear los canales de un lobby", strOpt("lobby", "ID del lobby", true)),
			sub("closevote", "Cerrar la votación de mapa ya", strOpt("lobby", "ID del lobby", true)),
			sub("lobbies", "Listar lobbies activos"),
			sub("chatlog", "Ver el chat guardado de un lobby", strOpt("lobby", "ID del lobby", true)),
			sub("kick", "Sacar a un jugador de todas las colas", userOpt("jugador", "Jugador", true)),
		},
	},
	{
		Name:        "queueui",
		Description: "Publica el mensaje de la cola en este canal (admins)",
		Options:     []*discordgo.ApplicationCommandOption{queueOpt},
	},
}
