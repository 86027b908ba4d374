package discord

import (
	"errors"
	"fmt"
	"log"

	"github.com/jose-valero/lobby-queue-bot/internal/domain"
)

// los más específicos primero: varios envuelven ErrValidation/ErrNotEligible
var errMessages = []struct {
	err error
	msg string
}{
	{domain.ErrAlreadyQueued, "Ya estás en la cola."},
	{domain.ErrInvalidRoleCombination, "Tu grupo no entra en ninguna combinación de roles de esta cola."},
	{domain.ErrQueueFull, "La cola está llena, probá en un rato."},
	{domain.ErrEntryTooLarge, "El grupo es más grande que un equipo."},
	{domain.ErrMixedRegions, "Los miembros del grupo son de regiones distintas."},
	{domain.ErrPendingInvites, "Tu grupo tiene invitaciones pendientes."},
	{domain.ErrInvalidTransition, "El lobby no está en un estado que permita eso."},
	{domain.ErrUnknownMap, "Ese mapa no está entre las opciones."},
	{domain.ErrAlreadyMarked, "Ese jugador ya está marcado como leaver."},
	{domain.ErrBanned, "Estás baneado de esta cola."},
	{domain.ErrNotInLobby, "No estás en un lobby activo."},
	{domain.ErrVotingClosed, "La votación ya cerró."},
	{domain.ErrNotHost, "Sólo un host o un admin puede hacer eso."},
	{domain.ErrAlreadyInLobby, "Ya estás en un lobby activo."},
	{domain.ErrLobbyNotFound, "No encontré ese lobby."},
	{domain.ErrNotRegistered, "Ese jugador no está registrado. Usá `/register`."},
	{domain.ErrNotPartyLeader, "Sólo el líder del grupo puede hacer eso."},
	{domain.ErrNoInvitePending, "No tenés invitaciones pendientes."},
	{domain.ErrNoPendingMark, "No tenés ninguna marca de leaver pendiente."},
	{domain.ErrConsistencyViolation, "Se detectó una inconsistencia; un admin ya fue avisado."},
	{domain.ErrProvider, "Discord no respondió, reintentá en unos segundos."},
}

// userMessage traduce un error del core a lo que ve el usuario.
func userMessage(err error) string {
	for _, m := range errMessages {
		if errors.Is(err, m.err) {
			return "⚠️ " + m.msg
		}
	}
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fmt.Sprintf("⚠️ Datos inválidos: %v", err)
	case errors.Is(err, domain.ErrNotEligible):
		return fmt.Sprintf("⚠️ No podés hacer eso: %v", err)
	}
	log.Printf("[discord] error inesperado: %v", err)
	return "❌ Ocurrió un error inesperado. Contacta con un administrador."
}
