package inventory

import (
	"bookingengine/internal/app/commands"
	"bookingengine/internal/app/dto"
	"bookingengine/internal/app/queries"
)

func Register(cmds *commands.Registry, qs *queries.Registry, deps Deps, reports ReportSink) {
	commands.Register[UpsertWindowCommand, *dto.LedgerEntry](cmds, upsertKey, &UpsertWindowHandler{Deps: deps})
	commands.Register[BlockDatesCommand, *dto.LedgerEntry](cmds, blockKey, &BlockDatesHandler{Deps: deps})
	commands.Register[RemoveEntryCommand, *RemoveEntryResult](cmds, removeKey, &RemoveEntryHandler{Deps: deps})
	commands.Register[ReconcileCommand, *dto.ReconcileReport](cmds, reconcileKey, &ReconcileHandler{Deps: deps, Reports: reports})

	queries.Register[SummaryQuery, dto.LedgerSummary](qs, summaryKey, &SummaryHandler{Deps: deps})
	queries.Register[CalendarQuery, dto.Calendar](qs, calendarKey, &CalendarHandler{Deps: deps})
	queries.Register[BlockedDatesQuery, BlockedDates](qs, blockedDatesKey, &BlockedDatesHandler{Deps: deps})
	queries.Register[AvailabilityQuery, dto.Availability](qs, availabilityKey, &AvailabilityHandler{Deps: deps})
}
