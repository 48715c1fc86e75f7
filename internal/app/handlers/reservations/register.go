package reservations

import (
	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/policies"
	"bookingengine/internal/app/queries"
)

// Register wires every lifecycle command and query onto the registries.
func Register(cmds *commands.Registry, qs *queries.Registry, deps Deps, charger policies.Charger, currency string) {
	commands.Register[CreateCommand, *dto.Reservation](cmds, createKey, &CreateHandler{Deps: deps, Charger: charger, Currency: currency})
	commands.Register[AcceptCommand, *dto.Reservation](cmds, acceptKey, &AcceptHandler{Deps: deps})
	commands.Register[RejectCommand, *dto.Reservation](cmds, rejectKey, &RejectHandler{Deps: deps})
	commands.Register[UpdateCommand, *dto.Reservation](cmds, updateKey, &UpdateHandler{Deps: deps})
	commands.Register[CancelCommand, *dto.Reservation](cmds, cancelKey, &CancelHandler{Deps: deps})
	commands.Register[DeleteCommand, *DeleteResult](cmds, deleteKey, &DeleteHandler{Deps: deps})

	queries.Register[GetQuery, *dto.Reservation](qs, getKey, &GetHandler{Deps: deps})
	queries.Register[ListQuery, dto.ReservationCollection](qs, listKey, &ListHandler{Deps: deps})
	queries.Register[HistoryQuery, dto.ReservationHistory](qs, historyKey, &HistoryHandler{Deps: deps})
}
