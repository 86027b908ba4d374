package discord

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/bwmarrin/discordgo"
)

// Ctx es lo que recibe cada handler de slash command o componente.
type Ctx struct {
	Log     *slog.Logger
	Session *discordgo.Session
	Event   *discordgo.InteractionCreate
	GuildID string
	UserID  string
	Name    string // display name de quien interactúa
	Admin   bool
	// Sub es el subcomando ("" si el comando no tiene)
	Sub string
	// Args de slash command (por nombre, ya aplanados)
	Args map[string]string
	// Para components: partes del custom_id después de la acción
	Params []string
	// Values de un select menu
	Values []string
}

func (c *Ctx) Arg(name string) (string, bool) {
	v, ok := c.Args[name]
	return v, ok && v != ""
}

func (c *Ctx) IntArg(name string) (int, bool) {
	v, ok := c.Arg(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return int(n), true
}

func (c *Ctx) BoolArg(name string) (bool, bool) {
	v, ok := c.Arg(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	return b, err == nil
}

func (c *Ctx) FloatArg(name string) (float64, bool) {
	v, ok := c.Arg(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func (c *Ctx) Param(i int) string {
	if i < len(c.Params) {
		return c.Params[i]
	}
	return ""
}

// Los handlers devuelven el texto de respuesta; el error se traduce con userMessage.
type CommandHandler func(ctx context.Context, c *Ctx) (string, error)

type Command struct {
	Name      string
	AdminOnly bool
	Handler   CommandHandler
}

type ComponentHandler func(ctx context.Context, c *Ctx) (string, error)
