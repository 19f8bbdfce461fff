package services

import (
	"context"
	"log"
	"time"
)

const compensationTimeout = 30 * time.Second

// SagaStep представляет шаг в SAGA
type SagaStep struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// StepObserver получает длительность и результат каждого шага
type StepObserver func(step string, duration time.Duration, err error)

// Saga - последовательность шагов с компенсациями в обратном порядке при сбое
type Saga struct {
	ID      string
	Steps   []*SagaStep
	observe StepObserver
}

func NewSaga(id string, observe StepObserver) *Saga {
	return &Saga{
		ID:      id,
		Steps:   make([]*SagaStep, 0),
		observe: observe,
	}
}

// AddStep добавляет шаг в SAGA
func (saga *Saga) AddStep(name string, execute func(ctx context.Context) error, compensate func(ctx context.Context) error) *Saga {
	saga.Steps = append(saga.Steps, &SagaStep{
		Name:       name,
		Execute:    execute,
		Compensate: compensate,
	})
	return saga
}

// Execute выполняет шаги последовательно; ошибка шага возвращается без изменений
func (saga *Saga) Execute(ctx context.Context) error {
	executedSteps := make([]*SagaStep, 0, len(saga.Steps))

	for _, step := range saga.Steps {
		start := time.Now()
		err := step.Execute(ctx)
		if saga.observe != nil {
			saga.observe(step.Name, time.Since(start), err)
		}
		if err != nil {
			log.Printf("ERROR: SAGA %s: step %s failed: %v", saga.ID, step.Name, err)
			saga.compensate(ctx, executedSteps)
			return err
		}
		executedSteps = append(executedSteps, step)
	}

	log.Printf("DEBUG: SAGA %s completed successfully", saga.ID)
	return nil
}

func (saga *Saga) compensate(ctx context.Context, executed []*SagaStep) {
	// Компенсации выполняются даже если запрос клиента уже отменен
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(compCtx); err != nil {
			log.Printf("ERROR: SAGA %s: compensation for %s failed: %v", saga.ID, step.Name, err)
		} else {
			log.Printf("DEBUG: SAGA %s: compensation for %s completed", saga.ID, step.Name)
		}
	}
}
