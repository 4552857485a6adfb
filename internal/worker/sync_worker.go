package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gestionjm/internal/amqp"
	"gestionjm/internal/core"
	"gestionjm/internal/log"
	"gestionjm/internal/records"
	"gestionjm/internal/sheets"
)

// SyncWorker mirrors records from the database into the spreadsheet.
type SyncWorker struct {
	repo   records.Repository
	mirror sheets.RecordMirror
	logger *log.Logger
}

func NewSyncWorker(repo records.Repository, mirror sheets.RecordMirror, logger *log.Logger) *SyncWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &SyncWorker{
		repo:   repo,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleRecordSync processes one sync message. Upserts read the current
// record; if it is gone by then, a delete message is on its way and the
// upsert is dropped.
func (w *SyncWorker) HandleRecordSync(ctx context.Context, msg *amqp.RecordSyncMessage) error {
	w.logger.InfoContext(ctx, "Processing sync message",
		log.FieldRecordKind, msg.Kind,
		log.FieldRecordID, msg.ID,
		log.FieldOperation, msg.Op)

	if msg.Op == amqp.OpDelete {
		if err := w.mirror.DeleteRecord(ctx, string(msg.Kind), msg.ID, msg.Date.Year()); err != nil {
			return fmt.Errorf("delete %s %s from mirror: %w", msg.Kind, msg.ID, err)
		}
		return nil
	}

	var err error
	switch msg.Kind {
	case amqp.KindExpense:
		var e core.Expense
		if e, err = w.repo.GetExpense(ctx, msg.ID); err == nil {
			err = w.mirror.UpsertExpense(ctx, e)
		}
	case amqp.KindTransfer:
		var t core.Transfer
		if t, err = w.repo.GetTransfer(ctx, msg.ID); err == nil {
			err = w.mirror.UpsertTransfer(ctx, t)
		}
	default:
		return fmt.Errorf("unknown record kind %q", msg.Kind)
	}

	if errors.Is(err, records.ErrNotFound) {
		w.logger.WarnContext(ctx, "Record vanished before sync, skipping",
			log.FieldRecordKind, msg.Kind,
			log.FieldRecordID, msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync %s %s: %w", msg.Kind, msg.ID, err)
	}
	return nil
}

// FullResync rewrites every year present in the database. Mirrors that
// cannot replace a year wholesale get a row-by-row upsert instead, which
// does not remove stale rows.
func (w *SyncWorker) FullResync(ctx context.Context) error {
	expenses, err := w.repo.ListExpenses(ctx)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	transfers, err := w.repo.ListTransfers(ctx)
	if err != nil {
		return fmt.Errorf("list transfers: %w", err)
	}

	byYearExp := map[int][]core.Expense{}
	byYearTr := map[int][]core.Transfer{}
	for _, e := range expenses {
		byYearExp[e.Date.Year()] = append(byYearExp[e.Date.Year()], e)
	}
	for _, t := range transfers {
		byYearTr[t.Date.Year()] = append(byYearTr[t.Date.Year()], t)
	}
	years := make([]int, 0, len(byYearExp)+len(byYearTr))
	for y := range byYearExp {
		years = append(years, y)
	}
	for y := range byYearTr {
		if _, dup := byYearExp[y]; !dup {
			years = append(years, y)
		}
	}
	sort.Ints(years)

	replacer, canReplace := w.mirror.(sheets.YearReplacer)
	for _, y := range years {
		if err := ctx.Err(); err != nil {
			return err
		}
		exp, tr := byYearExp[y], byYearTr[y]
		sort.SliceStable(exp, func(i, j int) bool { return exp[i].Date.Before(exp[j].Date.Time) })
		sort.SliceStable(tr, func(i, j int) bool { return tr[i].Date.Before(tr[j].Date.Time) })

		if canReplace {
			if err := replacer.ReplaceYear(ctx, y, exp, tr); err != nil {
				return fmt.Errorf("replace year %d: %w", y, err)
			}
		} else {
			for _, e := range exp {
				if err := w.mirror.UpsertExpense(ctx, e); err != nil {
					return fmt.Errorf("upsert expense %s: %w", e.ID, err)
				}
			}
			for _, t := range tr {
				if err := w.mirror.UpsertTransfer(ctx, t); err != nil {
					return fmt.Errorf("upsert transfer %s: %w", t.ID, err)
				}
			}
		}
		w.logger.InfoContext(ctx, "Year resynced",
			log.FieldYear, y,
			"expenses", len(exp),
			"transfers", len(tr))
	}

	w.logger.InfoContext(ctx, "Full resync completed",
		log.FieldOperation, log.OpResync,
		"years", len(years))
	return nil
}
