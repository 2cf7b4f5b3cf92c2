package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/bounty-escrow/internal/domain/entity"
	"github.com/ignatzorin/bounty-escrow/internal/ledger"
	dbcommon "github.com/ignatzorin/bounty-escrow/internal/repository/common"
)

var ErrEventNotFound = errors.New("event not found")

const (
	upsertStateQuery = `INSERT INTO ledger_state (kind, key, data, updated_at)`
	upsertStateTail  = `ON CONFLICT (kind, key) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	insertEventQuery = `INSERT INTO ledger_events (id, type, parties, payload, occurred_at)`

	stateBatchSize = 200
	eventBatchSize = 100
)

// LedgerRepository это журнал реестра в PostgreSQL: текущие строки состояния и лента событий.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

type stateRow struct {
	Kind string `db:"kind"`
	Key  string `db:"key"`
	Data []byte `db:"data"`
}

type eventRow struct {
	Seq        int64          `db:"seq"`
	ID         uuid.UUID      `db:"id"`
	Type       string         `db:"type"`
	Parties    pq.StringArray `db:"parties"`
	Payload    []byte         `db:"payload"`
	OccurredAt time.Time      `db:"occurred_at"`
}

// Persist сохраняет строки и события одной транзакции реестра атомарно.
func (r *LedgerRepository) Persist(ctx context.Context, records []ledger.Record, events []entity.Event) error {
	if len(records) == 0 && len(events) == 0 {
		return nil
	}

	return dbcommon.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		now := time.Now().UTC()

		states := dbcommon.NewBatchInserter(tx, upsertStateQuery, 4, stateBatchSize).OnConflict(upsertStateTail)
		for _, rec := range records {
			// jsonb принимает текст, []byte lib/pq отправил бы как bytea
			if err := states.Add(ctx, rec.Kind, rec.Key, string(rec.Data), now); err != nil {
				return fmt.Errorf("ledger journal: state %s/%s: %w", rec.Kind, rec.Key, err)
			}
		}
		if err := states.Flush(ctx); err != nil {
			return fmt.Errorf("ledger journal: state: %w", err)
		}

		feed := dbcommon.NewBatchInserter(tx, insertEventQuery, 5, eventBatchSize)
		for _, ev := range events {
			payload, err := json.Marshal(ev.Payload)
			if err != nil {
				return fmt.Errorf("ledger journal: event %s payload: %w", ev.Type, err)
			}
			if err := feed.Add(ctx, ev.ID, ev.Type, pq.StringArray(partyStrings(ev.Parties)), string(payload), ev.At); err != nil {
				return fmt.Errorf("ledger journal: event %s: %w", ev.Type, err)
			}
		}
		if err := feed.Flush(ctx); err != nil {
			return fmt.Errorf("ledger journal: events: %w", err)
		}
		return nil
	})
}

// Load читает все строки состояния для ledger.Restore.
func (r *LedgerRepository) Load(ctx context.Context) ([]ledger.Record, error) {
	var rows []stateRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT kind, key, data FROM ledger_state ORDER BY kind, key`); err != nil {
		return nil, fmt.Errorf("ledger journal: load: %w", err)
	}

	records := make([]ledger.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, ledger.Record{Kind: row.Kind, Key: row.Key, Data: json.RawMessage(row.Data)})
	}
	return records, nil
}

// EventFilter ограничивает выборку ленты событий.
type EventFilter struct {
	Party  *common.Address
	Type   string
	Limit  int
	Offset int
}

// ListEvents возвращает события, сначала новые.
func (r *LedgerRepository) ListEvents(ctx context.Context, filter EventFilter) ([]entity.Event, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}

	query := `SELECT seq, id, type, parties, payload, occurred_at FROM ledger_events WHERE 1=1`
	args := []any{}
	if filter.Party != nil {
		args = append(args, filter.Party.Hex())
		query += fmt.Sprintf(" AND $%d = ANY(parties)", len(args))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY seq DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("ledger journal: list events: %w", err)
	}

	out := make([]entity.Event, 0, len(rows))
	for _, row := range rows {
		ev, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetEvent возвращает событие по id.
func (r *LedgerRepository) GetEvent(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	row, err := dbcommon.GetByField[eventRow](ctx, r.db, "ledger_events", "id", id)
	if errors.Is(err, dbcommon.ErrNotFound) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	ev, err := row.toEntity()
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (row eventRow) toEntity() (entity.Event, error) {
	ev := entity.Event{ID: row.ID, Type: row.Type, At: row.OccurredAt.UTC()}
	for _, p := range row.Parties {
		ev.Parties = append(ev.Parties, common.HexToAddress(p))
	}
	if len(row.Payload) > 0 {
		// суммы в wei не должны терять точность через float64
		dec := json.NewDecoder(bytes.NewReader(row.Payload))
		dec.UseNumber()
		if err := dec.Decode(&ev.Payload); err != nil {
			return entity.Event{}, fmt.Errorf("ledger journal: event %s payload: %w", row.ID, err)
		}
	}
	return ev, nil
}

func partyStrings(parties []common.Address) []string {
	out := make([]string, 0, len(parties))
	for _, p := range parties {
		out = append(out, p.Hex())
	}
	return out
}
