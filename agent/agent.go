package agent

import (
	"context"
	"sync"

	"github.com/formpulse/automate/action"
	"github.com/formpulse/automate/config"
	"github.com/formpulse/automate/engine"
	"github.com/formpulse/automate/logger"
	"github.com/formpulse/automate/metadata"
	"github.com/formpulse/automate/persistence/postgres"
	"github.com/formpulse/automate/rest"
	"github.com/formpulse/automate/sweeper"
	"github.com/formpulse/automate/trigger"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Agent wires the engine, classifier, sweeper and http server together and
// owns their lifecycle.
type Agent struct {
	Config config.Config

	pool         *pgxpool.Pool
	engine       *engine.Engine
	classifier   *trigger.Classifier
	retrySweeper *sweeper.Sweeper
	httpServer   *rest.Server

	shutdown     bool
	shutdownLock sync.Mutex
}

func New(conf config.Config) (*Agent, error) {
	a := &Agent{Config: conf}
	setup := []func() error{
		a.setupStorage,
		a.setupEngine,
		a.setupSweeper,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupStorage() error {
	pool, err := postgres.NewPool(context.Background(), a.Config.PostgresConfig)
	if err != nil {
		return err
	}
	a.pool = pool
	return nil
}

func (a *Agent) setupEngine() error {
	workflows := metadata.NewWorkflowService(postgres.NewWorkflowDao(a.pool), a.Config.WorkflowCacheTTL)
	executions := postgres.NewExecutionDao(a.pool)
	steps := postgres.NewStepLogDao(a.pool)
	records := postgres.NewRecordStore(a.pool)

	dispatcher := action.NewDispatcher(records, &logMailer{}, a.Config.WebhookTimeout)
	a.engine = engine.NewEngine(workflows, executions, steps, dispatcher)
	a.classifier = trigger.NewClassifier(a.engine)
	return nil
}

func (a *Agent) setupSweeper() error {
	executions := postgres.NewExecutionDao(a.pool)
	a.retrySweeper = sweeper.NewSweeper(executions, a.engine, a.Config.SweepInterval, a.Config.SweepBatchSize)
	return nil
}

func (a *Agent) setupHttpServer() error {
	executions := postgres.NewExecutionDao(a.pool)
	steps := postgres.NewStepLogDao(a.pool)
	a.httpServer = rest.NewServer(a.Config.HttpPort, a.engine, a.classifier, executions, steps)
	return nil
}

func (a *Agent) Start() error {
	a.retrySweeper.Start()
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true
	logger.Info("shutting down")

	a.retrySweeper.Stop()
	if err := a.httpServer.Stop(); err != nil {
		return err
	}
	a.pool.Close()
	logger.Sync()
	return nil
}

// logMailer stands in for the transactional email collaborator, which lives
// in a separate service. It records the send and succeeds.
type logMailer struct{}

func (m *logMailer) SendTransactionalEmail(ctx context.Context, email action.Email) error {
	logger.Info("transactional email dispatched",
		zap.String("to", email.To), zap.String("subject", email.Subject),
		zap.String("tenant", email.TenantId))
	return nil
}
