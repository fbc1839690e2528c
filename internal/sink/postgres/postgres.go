// Package postgres is a durable sink.Sink backed by PostgreSQL via
// uptrace/bun, grounded on the teacher's own bun-backed store.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/mbflow/internal/sink"
)

// Sink persists execution and per-node results to PostgreSQL.
type Sink struct {
	db *bun.DB
}

// New opens a bun.DB against dsn. The connection is lazy: no network
// call happens until the first query.
func New(dsn string) *Sink {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return &Sink{db: bun.NewDB(sqldb, pgdialect.New())}
}

var _ sink.Sink = (*Sink)(nil)

// ExecutionModel is one row per routine run.
type ExecutionModel struct {
	bun.BaseModel `bun:"table:routine_executions,alias:e"`

	ID          uuid.UUID  `bun:"id,pk"`
	RoutineID   string     `bun:"routine_id"`
	WorkflowID  string     `bun:"workflow_id"`
	UserID      string     `bun:"user_id"`
	RunID       string     `bun:"run_id,unique"`
	TriggerType string     `bun:"trigger_type"`
	TriggerData []byte     `bun:"trigger_data,type:jsonb"`
	Status      string     `bun:"status"`
	Path        []byte     `bun:"execution_path,type:jsonb"`
	Error       string     `bun:"error_message"`
	CreatedAt   time.Time  `bun:"created_at"`
	CompletedAt *time.Time `bun:"completed_at"`
}

// NodeResultModel is one row per completed (or failed) node dispatch.
type NodeResultModel struct {
	bun.BaseModel `bun:"table:routine_node_results,alias:n"`

	ID          uuid.UUID `bun:"id,pk"`
	RunID       string    `bun:"run_id"`
	NodeID      string    `bun:"node_id"`
	Status      string    `bun:"status"`
	Input       []byte    `bun:"input,type:jsonb"`
	Output      []byte    `bun:"output,type:jsonb"`
	Error       string    `bun:"error_message"`
	StartedAt   time.Time `bun:"started_at"`
	CompletedAt time.Time `bun:"completed_at"`
}

// InitSchema creates the tables this sink writes, idempotently.
func (s *Sink) InitSchema(ctx context.Context) error {
	models := []interface{}{(*ExecutionModel)(nil), (*NodeResultModel)(nil)}
	for _, model := range models {
		if _, err := s.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) CreateExecution(ctx context.Context, p sink.CreateExecutionParams) error {
	triggerData, _ := json.Marshal(p.TriggerData)
	model := &ExecutionModel{
		ID:          uuid.New(),
		RoutineID:   p.RoutineID,
		WorkflowID:  p.WorkflowID,
		UserID:      p.UserID,
		RunID:       p.RunID,
		TriggerType: p.TriggerType,
		TriggerData: triggerData,
		Status:      "running",
		CreatedAt:   time.Now(),
	}
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

func (s *Sink) StoreNodeResult(ctx context.Context, p sink.StoreNodeResultParams) error {
	input, _ := json.Marshal(p.Input)
	output, _ := json.Marshal(p.Output)
	errMsg := ""
	if p.Err != nil {
		errMsg = p.Err.Error()
	}
	model := &NodeResultModel{
		ID:          uuid.New(),
		RunID:       p.WorkflowID,
		NodeID:      p.NodeID,
		Status:      p.Status,
		Input:       input,
		Output:      output,
		Error:       errMsg,
		StartedAt:   p.StartedAt,
		CompletedAt: p.CompletedAt,
	}
	_, err := s.db.NewInsert().Model(model).Exec(ctx)
	return err
}

func (s *Sink) UpdateStatus(ctx context.Context, p sink.UpdateStatusParams) error {
	path, _ := json.Marshal(p.ExecutionPath)
	errMsg := ""
	if p.Err != nil {
		errMsg = p.Err.Error()
	}
	_, err := s.db.NewUpdate().
		Model((*ExecutionModel)(nil)).
		Set("status = ?", p.Status).
		Set("execution_path = ?", path).
		Set("error_message = ?", errMsg).
		Set("completed_at = ?", p.CompletedAt).
		Where("run_id = ?", p.WorkflowID).
		Exec(ctx)
	return err
}
